package models

import (
	"sync"
	"time"
)

// RunStats holds process-wide aggregate counters. All mutation paths take
// the internal mutex so concurrent domain completions produce exactly one
// increment each - no double counting, no lost updates.
type RunStats struct {
	mu sync.Mutex

	startTime       time.Time
	processed       int
	successful      int
	failed          int
	failureReasons  map[FailureReason]int
	sessionsCreated int
	sessionsReused  int
}

// ProgressSnapshot is the JSON document written to the progress file and
// flushed to the notifier. Round-trips losslessly against RunStats counts.
type ProgressSnapshot struct {
	Timestamp       time.Time      `json:"timestamp"`
	CurrentBatch    int            `json:"currentBatch"`
	TotalProcessed  int            `json:"totalProcessed"`
	TotalSuccessful int            `json:"totalSuccessful"`
	TotalFailed     int            `json:"totalFailed"`
	SuccessRate     float64        `json:"successRate"`
	FailureReasons  map[string]int `json:"failureReasons"`
	SessionsCreated int            `json:"sessionsCreated"`
	SessionsReused  int            `json:"sessionsReused"`
}

// NewRunStats initializes counters at run start
func NewRunStats() *RunStats {
	return &RunStats{
		startTime:      time.Now(),
		failureReasons: make(map[FailureReason]int),
	}
}

// RecordResult applies one terminal attempt result to the aggregates
func (s *RunStats) RecordResult(result *AttemptResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.processed++
	if result.Success {
		s.successful++
	} else {
		s.failed++
		if result.Reason != "" {
			s.failureReasons[result.Reason]++
		}
	}
}

// RecordSessionCreated counts a fresh provider session
func (s *RunStats) RecordSessionCreated() {
	s.mu.Lock()
	s.sessionsCreated++
	s.mu.Unlock()
}

// RecordSessionReused counts a session handed out from the available queue
func (s *RunStats) RecordSessionReused() {
	s.mu.Lock()
	s.sessionsReused++
	s.mu.Unlock()
}

// Processed returns the terminal-result count so far
func (s *RunStats) Processed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processed
}

// Successful returns the success count so far
func (s *RunStats) Successful() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.successful
}

// Failed returns the failure count so far
func (s *RunStats) Failed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed
}

// StartTime returns when the run began
func (s *RunStats) StartTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startTime
}

// SuccessRate returns successes over processed, 0 when nothing processed
func (s *RunStats) SuccessRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.successRateLocked()
}

func (s *RunStats) successRateLocked() float64 {
	if s.processed == 0 {
		return 0
	}
	return float64(s.successful) / float64(s.processed)
}

// ETA estimates remaining wall time from the observed per-domain rate
func (s *RunStats) ETA(totalDomains int) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.processed == 0 || totalDomains <= s.processed {
		return 0
	}
	elapsed := time.Since(s.startTime)
	perDomain := elapsed / time.Duration(s.processed)
	return perDomain * time.Duration(totalDomains-s.processed)
}

// Snapshot captures the current aggregates as an immutable snapshot
func (s *RunStats) Snapshot(currentBatch int) *ProgressSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	reasons := make(map[string]int, len(s.failureReasons))
	for reason, count := range s.failureReasons {
		reasons[string(reason)] = count
	}

	return &ProgressSnapshot{
		Timestamp:       time.Now(),
		CurrentBatch:    currentBatch,
		TotalProcessed:  s.processed,
		TotalSuccessful: s.successful,
		TotalFailed:     s.failed,
		SuccessRate:     s.successRateLocked(),
		FailureReasons:  reasons,
		SessionsCreated: s.sessionsCreated,
		SessionsReused:  s.sessionsReused,
	}
}
