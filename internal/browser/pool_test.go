package browser

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/ascribo/internal/models"
)

type stubAPI struct {
	created atomic.Int64
	closed  atomic.Int64
}

func (s *stubAPI) CreateSession(ctx context.Context) (*models.Session, error) {
	n := s.created.Add(1)
	return &models.Session{
		ID:         fmt.Sprintf("sess-%d", n),
		ConnectURL: "ws://example.invalid/devtools",
	}, nil
}

func (s *stubAPI) CloseSession(ctx context.Context, sessionID string) error {
	s.closed.Add(1)
	return nil
}

func TestPoolReusesReleasedSession(t *testing.T) {
	api := &stubAPI{}
	pool := NewSessionPool(api, 5, models.NewRunStats())

	first, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	assert.False(t, first.Reused)

	pool.Release(first, true)
	assert.Equal(t, 1, pool.AvailableCount())

	second, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.Reused)
	assert.Equal(t, 2, second.UseCount)
	assert.Equal(t, int64(1), api.created.Load())
}

func TestPoolLIFOOrder(t *testing.T) {
	api := &stubAPI{}
	pool := NewSessionPool(api, 5, nil)

	a, _ := pool.Acquire(context.Background())
	b, _ := pool.Acquire(context.Background())
	pool.Release(a, true)
	pool.Release(b, true)

	// Most recently released comes back first
	next, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, b.ID, next.ID)
}

func TestPoolDiscardsUnhealthySession(t *testing.T) {
	api := &stubAPI{}
	pool := NewSessionPool(api, 5, nil)

	s, _ := pool.Acquire(context.Background())
	pool.Release(s, false)

	assert.Equal(t, 0, pool.AvailableCount())
	assert.Equal(t, int64(1), api.closed.Load())
}

func TestPoolCapsIdleSessions(t *testing.T) {
	api := &stubAPI{}
	pool := NewSessionPool(api, 2, nil)

	sessions := make([]*models.Session, 4)
	for i := range sessions {
		s, err := pool.Acquire(context.Background())
		require.NoError(t, err)
		sessions[i] = s
	}
	for _, s := range sessions {
		pool.Release(s, true)
	}

	assert.Equal(t, 2, pool.AvailableCount())
	assert.Equal(t, int64(2), api.closed.Load())
}

func TestPoolShutdownClosesEverything(t *testing.T) {
	api := &stubAPI{}
	pool := NewSessionPool(api, 5, nil)

	a, _ := pool.Acquire(context.Background())
	b, _ := pool.Acquire(context.Background())
	pool.Release(a, true)
	_ = b // Still in use at shutdown

	pool.Shutdown(context.Background())

	assert.Equal(t, 0, pool.AvailableCount())
	assert.Equal(t, 0, pool.InUseCount())
	assert.Equal(t, int64(2), api.closed.Load())
	// No session leaks: every created session eventually sees a close call
	assert.GreaterOrEqual(t, api.closed.Load(), api.created.Load())

	_, err := pool.Acquire(context.Background())
	assert.Error(t, err)
}
