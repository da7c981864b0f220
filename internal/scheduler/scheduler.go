package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/ascribo/internal/common"
	"github.com/ternarybob/ascribo/internal/models"
)

// DomainProcessor produces one terminal result per domain
type DomainProcessor interface {
	Process(ctx context.Context, domain models.Domain) *models.AttemptResult
}

// ResultSink receives every terminal result and the progress snapshots
type ResultSink interface {
	Record(result *models.AttemptResult) error
	WriteSnapshot(snapshot *models.ProgressSnapshot) error
}

// RunStore is the resume-state surface: which domains already succeeded in
// an earlier run. Failures are not part of the surface so that a retry run
// over previously failed domains processes them again.
type RunStore interface {
	HasSucceeded(ctx context.Context, domain string) (bool, error)
	SaveResult(ctx context.Context, result *models.AttemptResult) error
}

// ProgressNotifier pushes progress to the chat webhook
type ProgressNotifier interface {
	SendProgress(ctx context.Context, snapshot *models.ProgressSnapshot)
	SendFinal(ctx context.Context, snapshot *models.ProgressSnapshot, interrupted bool)
}

// Scheduler partitions the domain list into batches and fans each batch
// out to concurrent workers. Batches are sized to the session pool's
// concurrency ceiling so a full batch can hold a session each without
// queueing on the provider.
type Scheduler struct {
	processor DomainProcessor
	sink      ResultSink
	store     RunStore
	notifier  ProgressNotifier
	stats     *models.RunStats
	config    *common.Config
	logger    arbor.ILogger
}

// NewScheduler creates a batch scheduler
func NewScheduler(processor DomainProcessor, sink ResultSink, store RunStore, notifier ProgressNotifier, stats *models.RunStats, config *common.Config) *Scheduler {
	return &Scheduler{
		processor: processor,
		sink:      sink,
		store:     store,
		notifier:  notifier,
		stats:     stats,
		config:    config,
		logger:    common.GetLogger(),
	}
}

// Run processes every batch from startBatch (1-based) onward. On context
// cancellation no new work is launched; in-flight domains drain, the
// snapshot is flushed, and the interrupted notification goes out. The
// final snapshot is returned either way.
func (s *Scheduler) Run(ctx context.Context, domains []models.Domain, startBatch int) (*models.ProgressSnapshot, error) {
	batchSize := s.config.EffectiveBatchSize()
	batches := partition(domains, batchSize)
	if startBatch < 1 {
		startBatch = 1
	}

	s.logger.Info().
		Int("domains", len(domains)).
		Int("batches", len(batches)).
		Int("batch_size", batchSize).
		Int("start_batch", startBatch).
		Msg("Starting campaign run")

	tickerDone := make(chan struct{})
	s.startProgressTicker(len(domains), tickerDone)
	defer close(tickerDone)

	interrupted := false
	lastNotified := 0
	currentBatch := startBatch - 1

	for i, batch := range batches {
		batchNum := i + 1
		if batchNum < startBatch {
			continue
		}
		if ctx.Err() != nil {
			interrupted = true
			break
		}
		currentBatch = batchNum

		pending := s.filterProcessed(ctx, batch)
		if len(pending) < len(batch) {
			s.logger.Info().
				Int("batch", batchNum).
				Int("skipped", len(batch)-len(pending)).
				Msg("Skipping domains that already succeeded")
		}

		batchSuccess := s.runBatch(ctx, batchNum, pending, &lastNotified)

		snapshot := s.stats.Snapshot(batchNum)
		if err := s.sink.WriteSnapshot(snapshot); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to write progress snapshot")
		}

		s.logger.Info().
			Int("batch", batchNum).
			Int("batch_processed", len(pending)).
			Int("batch_successful", batchSuccess).
			Int("total_processed", snapshot.TotalProcessed).
			Str("success_rate", percent(snapshot.SuccessRate)).
			Dur("eta", s.stats.ETA(len(domains))).
			Msg("Batch complete")

		if ctx.Err() != nil {
			interrupted = true
			break
		}

		if batchNum < len(batches) && s.config.Campaign.BatchPause > 0 {
			select {
			case <-ctx.Done():
				interrupted = true
			case <-time.After(s.config.Campaign.BatchPause):
			}
			if interrupted {
				break
			}
		}
	}

	final := s.stats.Snapshot(currentBatch)
	if err := s.sink.WriteSnapshot(final); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to write final snapshot")
	}

	// The run context may already be cancelled; the final notification
	// still has to go out
	notifyCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	s.notifier.SendFinal(notifyCtx, final, interrupted)

	if interrupted {
		s.logger.Warn().Msg("Run interrupted, state flushed for resume")
	} else {
		s.logger.Info().
			Int("processed", final.TotalProcessed).
			Str("success_rate", percent(final.SuccessRate)).
			Msg("Run complete")
	}

	return final, nil
}

// progressTickInterval paces the console progress line during long batches
const progressTickInterval = 30 * time.Second

// startProgressTicker logs a progress line at a fixed interval until the
// run finishes, independent of batch boundaries
func (s *Scheduler) startProgressTicker(totalDomains int, done <-chan struct{}) {
	common.SafeGo(s.logger, "progress-ticker", func() {
		ticker := time.NewTicker(progressTickInterval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				processed := s.stats.Processed()
				if processed == 0 {
					continue
				}
				s.logger.Info().
					Int("processed", processed).
					Int("total", totalDomains).
					Str("success_rate", percent(s.stats.SuccessRate())).
					Dur("eta", s.stats.ETA(totalDomains)).
					Msg("Progress")
			}
		}
	})
}

// runBatch fans one batch out to a goroutine per domain and drains their
// results. Returns the batch's success count.
func (s *Scheduler) runBatch(ctx context.Context, batchNum int, batch []models.Domain, lastNotified *int) int {
	if len(batch) == 0 {
		return 0
	}

	var wg sync.WaitGroup
	resultCh := make(chan *models.AttemptResult, len(batch))

	for _, domain := range batch {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		d := domain
		common.SafeGo(s.logger, "domain-worker:"+d.URL, func() {
			defer wg.Done()
			resultCh <- s.processor.Process(ctx, d)
		})
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	successes := 0
	for result := range resultCh {
		if result == nil {
			continue
		}
		if result.Success {
			successes++
		}
		s.record(ctx, result)

		if s.config.Campaign.NotifyEvery > 0 {
			processed := s.stats.Processed()
			if processed-*lastNotified >= s.config.Campaign.NotifyEvery {
				*lastNotified = processed
				s.notifier.SendProgress(ctx, s.stats.Snapshot(batchNum))
			}
		}
	}

	return successes
}

func (s *Scheduler) record(ctx context.Context, result *models.AttemptResult) {
	s.stats.RecordResult(result)

	if err := s.sink.Record(result); err != nil {
		s.logger.Error().Err(err).Str("domain", result.Domain).Msg("Failed to append result log")
	}
	if s.store != nil {
		if err := s.store.SaveResult(ctx, result); err != nil {
			s.logger.Warn().Err(err).Str("domain", result.Domain).Msg("Failed to persist result for resume")
		}
	}
}

// filterProcessed drops domains the run store already holds a success for.
// Stored failures are kept so retry runs reprocess them. Store errors fail
// open: the domain is processed again rather than silently dropped.
func (s *Scheduler) filterProcessed(ctx context.Context, batch []models.Domain) []models.Domain {
	if s.store == nil {
		return batch
	}

	pending := make([]models.Domain, 0, len(batch))
	for _, domain := range batch {
		done, err := s.store.HasSucceeded(ctx, domain.URL)
		if err != nil {
			s.logger.Warn().Err(err).Str("domain", domain.URL).Msg("Resume lookup failed, reprocessing")
			pending = append(pending, domain)
			continue
		}
		if !done {
			pending = append(pending, domain)
		}
	}
	return pending
}

// partition splits domains into fixed-size batches, last one ragged
func partition(domains []models.Domain, size int) [][]models.Domain {
	if size <= 0 {
		size = 1
	}
	var batches [][]models.Domain
	for start := 0; start < len(domains); start += size {
		end := start + size
		if end > len(domains) {
			end = len(domains)
		}
		batches = append(batches, domains[start:end])
	}
	return batches
}

func percent(rate float64) string {
	return fmt.Sprintf("%.1f%%", rate*100)
}
