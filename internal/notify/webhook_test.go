package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/ascribo/internal/common"
	"github.com/ternarybob/ascribo/internal/models"
)

func TestSendPostsMessage(t *testing.T) {
	var received atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		received.Store(msg["text"])
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := NewNotifier(&common.NotifyConfig{WebhookURL: server.URL, RequestTimeout: 5 * time.Second})
	notifier.Send(context.Background(), "hello")

	assert.Equal(t, "hello", received.Load())
}

func TestSendProgressFormat(t *testing.T) {
	var received atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg map[string]string
		json.NewDecoder(r.Body).Decode(&msg)
		received.Store(msg["text"])
	}))
	defer server.Close()

	notifier := NewNotifier(&common.NotifyConfig{WebhookURL: server.URL})
	notifier.SendProgress(context.Background(), &models.ProgressSnapshot{
		CurrentBatch:    2,
		TotalProcessed:  200,
		TotalSuccessful: 80,
		TotalFailed:     120,
		SuccessRate:     0.4,
	})

	text := received.Load().(string)
	assert.Contains(t, text, "batch 2")
	assert.Contains(t, text, "200 processed")
	assert.Contains(t, text, "40.0% success")
}

func TestSendFinalInterrupted(t *testing.T) {
	var received atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg map[string]string
		json.NewDecoder(r.Body).Decode(&msg)
		received.Store(msg["text"])
	}))
	defer server.Close()

	notifier := NewNotifier(&common.NotifyConfig{WebhookURL: server.URL})
	notifier.SendFinal(context.Background(), &models.ProgressSnapshot{
		TotalProcessed: 50, TotalSuccessful: 20, TotalFailed: 30, SuccessRate: 0.4,
		FailureReasons: map[string]int{string(models.ReasonNavigationFailed): 30},
	}, true)

	text := received.Load().(string)
	assert.Contains(t, text, "interrupted")
	assert.Contains(t, text, "navigation_failed: 30")
}

func TestDisabledNotifierIsNoOp(t *testing.T) {
	notifier := NewNotifier(&common.NotifyConfig{})
	assert.False(t, notifier.Enabled())
	// Must not panic or block with no URL configured
	notifier.Send(context.Background(), "dropped")
}

func TestSendSwallowsServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	notifier := NewNotifier(&common.NotifyConfig{WebhookURL: server.URL})
	// Failure is logged, never returned
	notifier.Send(context.Background(), "hello")
}
