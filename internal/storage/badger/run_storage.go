package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/ascribo/internal/models"
)

// RunStorage persists terminal attempt results keyed by normalized domain.
// It backs resume dedup (a domain with a stored success is not reprocessed)
// and the retry-list command. Stored failures stay retryable so a follow-up
// run over the retry list replaces them with a new terminal outcome.
type RunStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewRunStorage creates a run storage instance
func NewRunStorage(db *BadgerDB, logger arbor.ILogger) *RunStorage {
	return &RunStorage{
		db:     db,
		logger: logger,
	}
}

// SaveResult upserts the terminal result for a domain
func (s *RunStorage) SaveResult(ctx context.Context, result *models.AttemptResult) error {
	if result.Domain == "" {
		return fmt.Errorf("result domain is required")
	}

	if err := s.db.Store().Upsert(result.Domain, result); err != nil {
		return fmt.Errorf("failed to save result for %s: %w", result.Domain, err)
	}
	return nil
}

// GetResult returns the stored result for a domain, or nil when the domain
// has never reached a terminal state
func (s *RunStorage) GetResult(ctx context.Context, domain string) (*models.AttemptResult, error) {
	var result models.AttemptResult
	if err := s.db.Store().Get(domain, &result); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get result for %s: %w", domain, err)
	}
	return &result, nil
}

// HasSucceeded reports whether a domain already has a stored successful
// result. Failures do not count: they remain eligible for retry runs.
func (s *RunStorage) HasSucceeded(ctx context.Context, domain string) (bool, error) {
	result, err := s.GetResult(ctx, domain)
	if err != nil {
		return false, err
	}
	return result != nil && result.Success, nil
}

// ListFailedDomains returns every domain whose stored terminal result is a
// failure
func (s *RunStorage) ListFailedDomains(ctx context.Context) ([]string, error) {
	var failures []models.AttemptResult
	if err := s.db.Store().Find(&failures, badgerhold.Where("Success").Eq(false)); err != nil {
		return nil, fmt.Errorf("failed to list failed domains: %w", err)
	}

	domains := make([]string, 0, len(failures))
	for _, f := range failures {
		domains = append(domains, f.Domain)
	}

	s.logger.Debug().Int("count", len(domains)).Msg("Listed failed domains")
	return domains, nil
}

// CountResults returns processed, successful, and failed counts from the
// stored terminal results
func (s *RunStorage) CountResults(ctx context.Context) (processed, successful, failed int, err error) {
	var all []models.AttemptResult
	if err := s.db.Store().Find(&all, badgerhold.Where("Domain").Ne("")); err != nil {
		return 0, 0, 0, fmt.Errorf("failed to count results: %w", err)
	}

	for _, r := range all {
		if r.Success {
			successful++
		} else {
			failed++
		}
	}
	return len(all), successful, failed, nil
}
