package strategies

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scroll positions a strategy can request before searching
const (
	ScrollNone   = ""
	ScrollTop    = "top"
	ScrollBottom = "bottom"
)

// StrategySpec is one data-driven entry in the detection chain. Strategies
// differ only in where they look and what they do first; the finder and
// submit logic is shared.
type StrategySpec struct {
	Name          string   `yaml:"name"`
	Scopes        []string `yaml:"scopes"`         // Container selectors searched in order; empty = whole document
	Scroll        string   `yaml:"scroll"`         // "top", "bottom", or empty
	PopupTriggers []string `yaml:"popup_triggers"` // JS expressions fired before searching, each best-effort
}

// DefaultStrategies returns the built-in chain, ordered by signal quality.
// Popup and dedicated newsletter sections are the highest-confidence email
// capture points; the generic document-wide sweep runs last.
func DefaultStrategies() []StrategySpec {
	return []StrategySpec{
		{
			Name: "popup",
			PopupTriggers: []string{
				`window._klOnsite = window._klOnsite || []; window._klOnsite.push(['openForm', '']);`,
				`if (window.Privy && window.Privy.open) { window.Privy.open(); }`,
				`if (window.sumo && window.sumo.openPopup) { window.sumo.openPopup(); }`,
			},
			Scopes: []string{
				`[class*="popup"]`,
				`[id*="popup"]`,
				`[class*="modal"]`,
				`[role="dialog"]`,
				`.mc-modal`,
				`[class*="klaviyo"]`,
				`[id*="om-"]`,
			},
		},
		{
			Name: "newsletter",
			Scopes: []string{
				`[class*="newsletter"]`,
				`[id*="newsletter"]`,
				`[class*="subscribe"]`,
				`[id*="subscribe"]`,
				`[class*="signup"]`,
				`[id*="signup"]`,
			},
		},
		{
			Name:   "footer",
			Scroll: ScrollBottom,
			Scopes: []string{
				`footer`,
				`#footer`,
				`[class*="footer"]`,
			},
		},
		{
			Name:   "header",
			Scroll: ScrollTop,
			Scopes: []string{
				`header`,
				`#header`,
				`[class*="header"]`,
				`nav`,
			},
		},
		{
			// Document-wide sweep; the finder excludes login forms so a
			// site's password field never gets an email stuffed into it.
			Name: "generic",
		},
	}
}

// LoadStrategies reads a YAML strategy definition file. The file replaces
// the built-in chain wholesale so operators control ordering too.
func LoadStrategies(path string) ([]StrategySpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read strategies file %s: %w", path, err)
	}

	var specs []StrategySpec
	if err := yaml.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("failed to parse strategies file %s: %w", path, err)
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("strategies file %s defines no strategies", path)
	}
	for i, spec := range specs {
		if spec.Name == "" {
			return nil, fmt.Errorf("strategy %d in %s has no name", i+1, path)
		}
		switch spec.Scroll {
		case ScrollNone, ScrollTop, ScrollBottom:
		default:
			return nil, fmt.Errorf("strategy %q has invalid scroll %q", spec.Name, spec.Scroll)
		}
	}

	return specs, nil
}
