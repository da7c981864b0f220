package browser

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/ascribo/internal/common"
	"github.com/ternarybob/ascribo/internal/models"
)

// ErrRateLimited marks a provider 429. The creation retry policy backs
// off on this error and fails fast on everything else.
var ErrRateLimited = errors.New("provider rate limited")

// SessionAPI is the provider surface the pool depends on
type SessionAPI interface {
	CreateSession(ctx context.Context) (*models.Session, error)
	CloseSession(ctx context.Context, sessionID string) error
}

// ProviderClient talks to the remote browser provider's session API.
// A shared rate limiter spaces out creation calls so concurrent workers
// collectively stay under the provider's per-minute quota.
type ProviderClient struct {
	config      *common.ProviderConfig
	httpClient  *http.Client
	limiter     *rate.Limiter
	retryPolicy *common.RetryPolicy
	logger      arbor.ILogger
}

type createSessionRequest struct {
	ProjectID string `json:"projectId,omitempty"`
}

type sessionResponse struct {
	ID         string `json:"id"`
	ConnectURL string `json:"connectUrl"`
	Status     string `json:"status,omitempty"`
}

// NewProviderClient creates a session API client from provider config
func NewProviderClient(config *common.ProviderConfig) *ProviderClient {
	return &ProviderClient{
		config: config,
		httpClient: &http.Client{
			Timeout: config.RequestTimeout,
		},
		limiter: rate.NewLimiter(rate.Every(config.CreateDelay), 1),
		retryPolicy: &common.RetryPolicy{
			MaxAttempts:       config.CreateMaxAttempts,
			InitialBackoff:    config.CreateBaseBackoff,
			MaxBackoff:        30 * time.Second,
			BackoffMultiplier: 2.0,
			IsRetryable: func(err error) bool {
				return errors.Is(err, ErrRateLimited) || common.IsTransientError(err)
			},
		},
		logger: common.GetLogger(),
	}
}

// CreateSession provisions a fresh remote browser session. Creation calls
// wait on the shared limiter first, then retry with exponential backoff
// when the provider answers 429. The returned session carries the CDP
// connect URL the page layer dials.
func (c *ProviderClient) CreateSession(ctx context.Context) (*models.Session, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("session creation cancelled: %w", err)
	}

	var session *models.Session
	err := c.retryPolicy.Execute(ctx, c.logger, func() error {
		s, err := c.createOnce(ctx)
		if err != nil {
			return err
		}
		session = s
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	if c.config.VerifyConnectURL {
		if err := c.probeConnectURL(ctx, session.ConnectURL); err != nil {
			c.logger.Warn().
				Str("session_id", session.ID).
				Err(err).
				Msg("Connect URL probe failed, closing unusable session")
			_ = c.CloseSession(ctx, session.ID)
			return nil, fmt.Errorf("session %s connect URL unreachable: %w", session.ID, err)
		}
	}

	c.logger.Debug().
		Str("session_id", session.ID).
		Msg("Created browser session")

	return session, nil
}

func (c *ProviderClient) createOnce(ctx context.Context) (*models.Session, error) {
	body, err := json.Marshal(createSessionRequest{ProjectID: c.config.ProjectID})
	if err != nil {
		return nil, fmt.Errorf("failed to encode session request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/v1/sessions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build session request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.config.APIKey)
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("session request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		io.Copy(io.Discard, resp.Body)
		return nil, ErrRateLimited
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("provider returned status %d: %s", resp.StatusCode, string(payload))
	}

	var parsed sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode session response: %w", err)
	}
	if parsed.ID == "" || parsed.ConnectURL == "" {
		return nil, fmt.Errorf("provider response missing session id or connect URL")
	}

	return &models.Session{
		ID:         parsed.ID,
		ConnectURL: parsed.ConnectURL,
		CreatedAt:  time.Now(),
	}, nil
}

// CloseSession releases a session back to the provider. Callers treat
// failures as best-effort; the provider reaps abandoned sessions on its
// own timeout anyway.
func (c *ProviderClient) CloseSession(ctx context.Context, sessionID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.config.BaseURL+"/v1/sessions/"+sessionID, nil)
	if err != nil {
		return fmt.Errorf("failed to build close request: %w", err)
	}
	req.Header.Set("X-API-Key", c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("close request failed for session %s: %w", sessionID, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || (resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound) {
		return fmt.Errorf("provider returned status %d closing session %s", resp.StatusCode, sessionID)
	}

	c.logger.Debug().
		Str("session_id", sessionID).
		Msg("Closed browser session")

	return nil
}

// probeConnectURL dials the CDP websocket endpoint and immediately hangs
// up. Catches sessions the provider reports as created but whose endpoint
// is not yet accepting connections.
func (c *ProviderClient) probeConnectURL(ctx context.Context, connectURL string) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: c.config.ConnectProbeWindow,
	}

	conn, resp, err := dialer.DialContext(ctx, connectURL, nil)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("websocket dial failed: %w", err)
	}

	return conn.Close()
}
