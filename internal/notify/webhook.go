package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/ascribo/internal/common"
	"github.com/ternarybob/ascribo/internal/models"
)

// Notifier posts campaign progress to a chat webhook. Delivery is
// best-effort: a dead webhook must never stall or fail a run, so every
// error is logged and swallowed.
type Notifier struct {
	webhookURL string
	httpClient *http.Client
	logger     arbor.ILogger
}

type webhookMessage struct {
	Text string `json:"text"`
}

// NewNotifier creates a webhook notifier. An empty URL produces a no-op
// notifier so callers never branch.
func NewNotifier(cfg *common.NotifyConfig) *Notifier {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Notifier{
		webhookURL: cfg.WebhookURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     common.GetLogger(),
	}
}

// Enabled reports whether a webhook URL is configured
func (n *Notifier) Enabled() bool {
	return n.webhookURL != ""
}

// Send posts a plain text message
func (n *Notifier) Send(ctx context.Context, text string) {
	if !n.Enabled() {
		return
	}

	body, err := json.Marshal(webhookMessage{Text: text})
	if err != nil {
		n.logger.Warn().Err(err).Msg("Failed to encode webhook message")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		n.logger.Warn().Err(err).Msg("Failed to build webhook request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		n.logger.Warn().Err(err).Msg("Webhook delivery failed")
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		n.logger.Warn().Int("status", resp.StatusCode).Msg("Webhook returned non-success status")
	}
}

// SendProgress posts a formatted progress update
func (n *Notifier) SendProgress(ctx context.Context, snapshot *models.ProgressSnapshot) {
	if !n.Enabled() {
		return
	}

	text := fmt.Sprintf(
		"Signup campaign progress: batch %d, %d processed, %d succeeded, %d failed (%.1f%% success)",
		snapshot.CurrentBatch,
		snapshot.TotalProcessed,
		snapshot.TotalSuccessful,
		snapshot.TotalFailed,
		snapshot.SuccessRate*100,
	)
	n.Send(ctx, text)
}

// SendFinal posts the end-of-run summary, including per-reason failure
// counts when any failures occurred
func (n *Notifier) SendFinal(ctx context.Context, snapshot *models.ProgressSnapshot, interrupted bool) {
	if !n.Enabled() {
		return
	}

	status := "complete"
	if interrupted {
		status = "interrupted"
	}

	text := fmt.Sprintf(
		"Signup campaign %s: %d processed, %d succeeded, %d failed (%.1f%% success)",
		status,
		snapshot.TotalProcessed,
		snapshot.TotalSuccessful,
		snapshot.TotalFailed,
		snapshot.SuccessRate*100,
	)
	for reason, count := range snapshot.FailureReasons {
		text += fmt.Sprintf("\n  %s: %d", reason, count)
	}
	n.Send(ctx, text)
}
