package results

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/ascribo/internal/common"
	"github.com/ternarybob/ascribo/internal/models"
)

func newTestWriter(t *testing.T) (*Writer, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := &common.ResultsConfig{
		Dir:          dir,
		SuccessFile:  "successful_signups.jsonl",
		FailureFile:  "failed_signups.jsonl",
		SnapshotFile: "progress.json",
	}
	w, err := NewWriter(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	return w, dir
}

func TestRecordRoutesBySuccess(t *testing.T) {
	w, dir := newTestWriter(t)

	require.NoError(t, w.Record(&models.AttemptResult{
		Domain: "https://a.com", Email: "x@example.com", Success: true,
		Timestamp: time.Now(), SessionID: "sess-1",
	}))
	require.NoError(t, w.Record(&models.AttemptResult{
		Domain: "https://b.com", Email: "x@example.com", Success: false,
		Reason: models.ReasonNoEmailInput, Timestamp: time.Now(), SessionID: "sess-1",
		Attempts: []string{"popup: no email input"},
	}))
	require.NoError(t, w.Close())

	successes, err := ReadResults(filepath.Join(dir, "successful_signups.jsonl"))
	require.NoError(t, err)
	require.Len(t, successes, 1)
	assert.Equal(t, "https://a.com", successes[0].Domain)
	assert.True(t, successes[0].Success)

	failures, err := ReadResults(filepath.Join(dir, "failed_signups.jsonl"))
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, models.ReasonNoEmailInput, failures[0].Reason)
	assert.Equal(t, []string{"popup: no email input"}, failures[0].Attempts)
}

func TestReadResultsSkipsTornLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "failed.jsonl")
	content := `{"domain":"https://a.com","email":"x@example.com","success":false,"reason":"navigation_failed","timestamp":"2026-01-02T15:04:05Z","sessionId":"s1"}
{"domain":"https://b.com","email":"x@exam`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	results, err := ReadResults(path)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "https://a.com", results[0].Domain)
}

func TestWriteSnapshot(t *testing.T) {
	w, dir := newTestWriter(t)

	require.NoError(t, w.WriteSnapshot(&models.ProgressSnapshot{
		Timestamp:       time.Now(),
		CurrentBatch:    3,
		TotalProcessed:  250,
		TotalSuccessful: 100,
		TotalFailed:     150,
		SuccessRate:     0.4,
		FailureReasons:  map[string]int{string(models.ReasonUnconfirmed): 150},
	}))

	data, err := os.ReadFile(filepath.Join(dir, "progress.json"))
	require.NoError(t, err)

	var snap models.ProgressSnapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, 3, snap.CurrentBatch)
	assert.Equal(t, 250, snap.TotalProcessed)
	assert.Equal(t, 150, snap.FailureReasons[string(models.ReasonUnconfirmed)])

	// Overwrite replaces, never appends
	require.NoError(t, w.WriteSnapshot(&models.ProgressSnapshot{CurrentBatch: 4}))
	data, err = os.ReadFile(filepath.Join(dir, "progress.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, 4, snap.CurrentBatch)
}

func TestExtractRetryList(t *testing.T) {
	w, dir := newTestWriter(t)

	for _, domain := range []string{"https://a.com", "https://b.com", "https://a.com", "https://c.com"} {
		require.NoError(t, w.Record(&models.AttemptResult{
			Domain: domain, Success: false, Reason: models.ReasonUnconfirmed, Timestamp: time.Now(),
		}))
	}
	require.NoError(t, w.Close())

	domains, err := ExtractRetryList(filepath.Join(dir, "failed_signups.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.com", "https://b.com", "https://c.com"}, domains)
}
