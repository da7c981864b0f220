package strategies

import (
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/ascribo/internal/browser"
	"github.com/ternarybob/ascribo/internal/common"
	"github.com/ternarybob/ascribo/internal/models"
)

// Outcome is the result of running the detection chain against one loaded
// page. Submitted and Confirmed are deliberately separate: a click that
// produced no confirmation signal is not a success.
type Outcome struct {
	Strategy  string
	Submitted bool
	Confirmed bool
	Reason    models.FailureReason
	Trace     []string
}

// Chain runs the strategy specs in order and stops at the first one that
// finds a fillable email input. Later strategies never run once an input
// is filled; a submitted-but-unconfirmed form is a terminal outcome, not a
// cue to keep hunting for other forms on the page.
type Chain struct {
	specs      []StrategySpec
	browserCfg *common.BrowserConfig
	logger     arbor.ILogger
}

// NewChain creates a detection chain over the given specs
func NewChain(specs []StrategySpec, browserCfg *common.BrowserConfig) *Chain {
	return &Chain{
		specs:      specs,
		browserCfg: browserCfg,
		logger:     common.GetLogger(),
	}
}

// Run drives every strategy against the page until one finds an email
// input, then fills, submits, and verifies.
func (c *Chain) Run(page browser.Page, email string) *Outcome {
	outcome := &Outcome{}

	for _, spec := range c.specs {
		c.prepare(page, spec, outcome)

		result, err := findTargets(page, spec)
		if err != nil {
			outcome.Trace = append(outcome.Trace, fmt.Sprintf("%s: finder error: %v", spec.Name, err))
			continue
		}
		if !result.Found {
			outcome.Trace = append(outcome.Trace, fmt.Sprintf("%s: no email input", spec.Name))
			continue
		}

		outcome.Strategy = spec.Name
		outcome.Trace = append(outcome.Trace,
			fmt.Sprintf("%s: email input %s in %s", spec.Name, result.Email, result.Scope))
		c.logger.Debug().
			Str("strategy", spec.Name).
			Str("input", result.Email).
			Str("scope", result.Scope).
			Msg("Email input located")

		c.fillAndSubmit(page, spec, result, email, outcome)
		return outcome
	}

	outcome.Reason = models.ReasonNoEmailInput
	return outcome
}

// prepare applies a strategy's pre-actions: scrolling into the region it
// searches and firing popup-widget APIs
func (c *Chain) prepare(page browser.Page, spec StrategySpec, outcome *Outcome) {
	switch spec.Scroll {
	case ScrollTop:
		if err := page.ScrollTop(); err != nil {
			outcome.Trace = append(outcome.Trace, fmt.Sprintf("%s: scroll top failed", spec.Name))
		}
	case ScrollBottom:
		if err := page.ScrollBottom(); err != nil {
			outcome.Trace = append(outcome.Trace, fmt.Sprintf("%s: scroll bottom failed", spec.Name))
		}
	}

	if len(spec.PopupTriggers) > 0 {
		for _, trigger := range spec.PopupTriggers {
			// Widget APIs are absent on most pages; failures are expected
			_ = page.Evaluate(trigger, nil)
		}
		page.Sleep(c.browserCfg.PopupWait)
	}
}

func (c *Chain) fillAndSubmit(page browser.Page, spec StrategySpec, result *findResult, email string, outcome *Outcome) {
	if err := page.Fill(emailMarkerSelector, email); err != nil {
		outcome.Trace = append(outcome.Trace, fmt.Sprintf("%s: fill failed: %v", spec.Name, err))
		outcome.Reason = models.ReasonNoEmailInput
		return
	}
	outcome.Trace = append(outcome.Trace, fmt.Sprintf("%s: filled %s", spec.Name, result.Email))

	if result.SubmitFound {
		if err := page.Click(submitMarkerSelector); err != nil {
			outcome.Trace = append(outcome.Trace, fmt.Sprintf("%s: click %s failed: %v", spec.Name, result.Submit, err))
			c.submitWithEnter(page, spec, outcome)
		} else {
			outcome.Submitted = true
			outcome.Trace = append(outcome.Trace, fmt.Sprintf("%s: clicked %s", spec.Name, result.Submit))
		}
	} else {
		outcome.Trace = append(outcome.Trace, fmt.Sprintf("%s: no submit control", spec.Name))
		c.submitWithEnter(page, spec, outcome)
	}
	if !outcome.Submitted {
		outcome.Reason = models.ReasonNoSubmitButton
		return
	}

	page.Sleep(c.browserCfg.SettleTime)

	confirmed, signal := verifySubmission(page)
	if confirmed {
		outcome.Confirmed = true
		outcome.Trace = append(outcome.Trace, fmt.Sprintf("%s: confirmed via %s", spec.Name, signal))
		return
	}

	outcome.Reason = models.ReasonUnconfirmed
	outcome.Trace = append(outcome.Trace, fmt.Sprintf("%s: no confirmation signal", spec.Name))
}

// submitWithEnter is the fallback for forms with no clickable submit,
// common with enter-to-subscribe inputs
func (c *Chain) submitWithEnter(page browser.Page, spec StrategySpec, outcome *Outcome) {
	if err := page.PressEnter(emailMarkerSelector); err != nil {
		outcome.Trace = append(outcome.Trace, fmt.Sprintf("%s: enter key failed: %v", spec.Name, err))
		return
	}
	outcome.Submitted = true
	outcome.Trace = append(outcome.Trace, fmt.Sprintf("%s: submitted with enter key", spec.Name))
}
