package models

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDomain(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "bare domain", raw: "example.com", want: "https://example.com"},
		{name: "whitespace trimmed", raw: "  example.com  ", want: "https://example.com"},
		{name: "existing https kept", raw: "https://example.com", want: "https://example.com"},
		{name: "existing http kept", raw: "http://example.com", want: "http://example.com"},
		{name: "path stripped", raw: "example.com/newsletter?ref=x", want: "https://example.com"},
		{name: "subdomain kept", raw: "news.example.co.uk", want: "https://news.example.co.uk"},
		{name: "empty rejected", raw: "", wantErr: true},
		{name: "whitespace only rejected", raw: "   ", wantErr: true},
		{name: "no dot rejected", raw: "localhost", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeDomain(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEmailPoolRotation(t *testing.T) {
	pool := NewEmailPool([]EmailAccount{
		{Address: "a@example.com"},
		{Address: "b@example.com"},
	})

	assert.Equal(t, "a@example.com", pool.Next().Address)
	assert.Equal(t, "b@example.com", pool.Next().Address)
	assert.Equal(t, "a@example.com", pool.Next().Address)
	assert.Equal(t, "b@example.com", pool.Next().Address)
}

func TestEmailPoolPeek(t *testing.T) {
	pool := NewEmailPool([]EmailAccount{
		{Address: "a@example.com"},
		{Address: "b@example.com"},
		{Address: "c@example.com"},
	})

	assert.Equal(t, "a@example.com", pool.Peek(0).Address)
	assert.Equal(t, "c@example.com", pool.Peek(2).Address)
	assert.Equal(t, "b@example.com", pool.Peek(4).Address)
	assert.Equal(t, 3, pool.Len())
}

func TestRunStatsAggregation(t *testing.T) {
	stats := NewRunStats()

	stats.RecordResult(&AttemptResult{Domain: "a.com", Success: true})
	stats.RecordResult(&AttemptResult{Domain: "b.com", Success: false, Reason: ReasonNoEmailInput})
	stats.RecordResult(&AttemptResult{Domain: "c.com", Success: false, Reason: ReasonNoEmailInput})
	stats.RecordResult(&AttemptResult{Domain: "d.com", Success: false, Reason: ReasonUnconfirmed})
	stats.RecordSessionCreated()
	stats.RecordSessionCreated()
	stats.RecordSessionReused()

	snap := stats.Snapshot(2)
	assert.Equal(t, 2, snap.CurrentBatch)
	assert.Equal(t, 4, snap.TotalProcessed)
	assert.Equal(t, 1, snap.TotalSuccessful)
	assert.Equal(t, 3, snap.TotalFailed)
	assert.InDelta(t, 0.25, snap.SuccessRate, 0.0001)
	assert.Equal(t, 2, snap.FailureReasons[string(ReasonNoEmailInput)])
	assert.Equal(t, 1, snap.FailureReasons[string(ReasonUnconfirmed)])
	assert.Equal(t, 2, snap.SessionsCreated)
	assert.Equal(t, 1, snap.SessionsReused)
}

func TestRunStatsConcurrentRecords(t *testing.T) {
	stats := NewRunStats()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(success bool) {
			defer wg.Done()
			stats.RecordResult(&AttemptResult{Domain: "x.com", Success: success})
		}(i%2 == 0)
	}
	wg.Wait()

	assert.Equal(t, 50, stats.Processed())
	assert.Equal(t, 25, stats.Successful())
	assert.Equal(t, 25, stats.Failed())
}

func TestRunStatsEmptySuccessRate(t *testing.T) {
	stats := NewRunStats()
	assert.Equal(t, 0.0, stats.SuccessRate())
}
