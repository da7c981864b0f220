package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/ascribo/internal/common"
	"github.com/ternarybob/ascribo/internal/models"
)

// SessionPool reuses remote browser sessions across domain attempts so a
// batch of N domains does not cost N session creations. Released healthy
// sessions go onto a LIFO stack; LIFO keeps the warmest session on top and
// lets cold ones age toward the provider's idle reaper.
//
// Invariants: a session is in available or inUse, never both; available
// never exceeds maxSize; after Shutdown no session survives locally.
type SessionPool struct {
	mu        sync.Mutex
	available []*models.Session
	inUse     map[string]*models.Session
	maxSize   int
	closed    bool

	api    SessionAPI
	stats  *models.RunStats
	logger arbor.ILogger
}

// NewSessionPool creates a pool over the given provider API
func NewSessionPool(api SessionAPI, maxSize int, stats *models.RunStats) *SessionPool {
	return &SessionPool{
		available: make([]*models.Session, 0, maxSize),
		inUse:     make(map[string]*models.Session),
		maxSize:   maxSize,
		api:       api,
		stats:     stats,
		logger:    common.GetLogger(),
	}
}

// Acquire hands out a pooled session when one is available, otherwise
// creates a fresh one. The caller owns the session until Release.
func (p *SessionPool) Acquire(ctx context.Context) (*models.Session, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, fmt.Errorf("session pool is shut down")
	}

	if n := len(p.available); n > 0 {
		session := p.available[n-1]
		p.available = p.available[:n-1]
		session.Reused = true
		session.UseCount++
		p.inUse[session.ID] = session
		p.mu.Unlock()

		if p.stats != nil {
			p.stats.RecordSessionReused()
		}
		p.logger.Debug().
			Str("session_id", session.ID).
			Int("use_count", session.UseCount).
			Msg("Reusing pooled session")
		return session, nil
	}
	p.mu.Unlock()

	session, err := p.api.CreateSession(ctx)
	if err != nil {
		return nil, err
	}
	session.UseCount = 1

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		go p.closeRemote(session.ID)
		return nil, fmt.Errorf("session pool is shut down")
	}
	p.inUse[session.ID] = session
	p.mu.Unlock()

	if p.stats != nil {
		p.stats.RecordSessionCreated()
	}
	return session, nil
}

// Release returns a session to the pool. Unhealthy sessions and overflow
// beyond maxSize are closed remotely instead of pooled.
func (p *SessionPool) Release(session *models.Session, healthy bool) {
	if session == nil {
		return
	}

	p.mu.Lock()
	delete(p.inUse, session.ID)

	if healthy && !p.closed && len(p.available) < p.maxSize {
		p.available = append(p.available, session)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	p.closeRemote(session.ID)
}

// Shutdown closes every session the pool knows about, idle and in-use
// alike. Safe to call more than once.
func (p *SessionPool) Shutdown(ctx context.Context) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true

	toClose := make([]*models.Session, 0, len(p.available)+len(p.inUse))
	toClose = append(toClose, p.available...)
	for _, s := range p.inUse {
		toClose = append(toClose, s)
	}
	p.available = nil
	p.inUse = make(map[string]*models.Session)
	p.mu.Unlock()

	p.logger.Info().
		Int("sessions", len(toClose)).
		Msg("Shutting down session pool")

	for _, session := range toClose {
		if err := p.api.CloseSession(ctx, session.ID); err != nil {
			p.logger.Warn().
				Str("session_id", session.ID).
				Err(err).
				Msg("Failed to close session during shutdown")
		}
	}
}

// AvailableCount returns the idle session count
func (p *SessionPool) AvailableCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.available)
}

// InUseCount returns the checked-out session count
func (p *SessionPool) InUseCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inUse)
}

func (p *SessionPool) closeRemote(sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := p.api.CloseSession(ctx, sessionID); err != nil {
		p.logger.Warn().
			Str("session_id", sessionID).
			Err(err).
			Msg("Failed to close discarded session")
	}
}
