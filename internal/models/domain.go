package models

import (
	"fmt"
	"net/url"
	"strings"
)

// DomainStatus tracks where a domain sits in the run lifecycle
type DomainStatus string

const (
	DomainStatusUnprocessed DomainStatus = "unprocessed"
	DomainStatusSucceeded   DomainStatus = "succeeded"
	DomainStatusFailed      DomainStatus = "failed"
)

// Domain is one signup target. The domain list itself is immutable for the
// run; outcomes are recorded as append-only AttemptResults, never by
// mutating the list in place.
type Domain struct {
	Raw    string        `json:"raw"`    // As read from the input file
	URL    string        `json:"url"`    // Normalized absolute URL (scheme + host, path/query stripped)
	Status DomainStatus  `json:"status"` // Last known terminal status
	Reason FailureReason `json:"reason,omitempty"`
}

// NormalizeDomain converts a raw domain row into an absolute URL with the
// path and query stripped. Rows that cannot be parsed into a host are
// rejected so the loader can silently filter them.
func NormalizeDomain(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("empty domain")
	}

	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		s = "https://" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("unparseable domain %q: %w", raw, err)
	}
	if u.Host == "" || !strings.Contains(u.Host, ".") {
		return "", fmt.Errorf("invalid host in %q", raw)
	}

	return fmt.Sprintf("%s://%s", u.Scheme, u.Host), nil
}
