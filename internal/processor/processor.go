package processor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/ascribo/internal/browser"
	"github.com/ternarybob/ascribo/internal/common"
	"github.com/ternarybob/ascribo/internal/models"
	"github.com/ternarybob/ascribo/internal/strategies"
)

// SessionSource is the pool surface the processor needs
type SessionSource interface {
	Acquire(ctx context.Context) (*models.Session, error)
	Release(session *models.Session, healthy bool)
}

// PageConnector attaches a rented session to an automatable page
type PageConnector interface {
	Connect(ctx context.Context, session *models.Session) (browser.Page, error)
}

// FormRunner drives the detection chain against a loaded page
type FormRunner interface {
	Run(page browser.Page, email string) *strategies.Outcome
}

// Processor takes one domain through up to MaxRetries attempts and
// produces exactly one terminal result. Each attempt rents a session,
// rotates to the next email, and runs the full detection chain.
type Processor struct {
	pool      SessionSource
	connector PageConnector
	chain     FormRunner
	emails    *models.EmailPool
	config    *common.Config
	logger    arbor.ILogger
}

// NewProcessor creates a domain processor
func NewProcessor(pool SessionSource, connector PageConnector, chain FormRunner, emails *models.EmailPool, config *common.Config) *Processor {
	return &Processor{
		pool:      pool,
		connector: connector,
		chain:     chain,
		emails:    emails,
		config:    config,
		logger:    common.GetLogger(),
	}
}

// Process runs the attempt loop for one domain. The returned result is
// terminal: the last attempt's outcome with the trace of every attempt
// merged in order.
func (p *Processor) Process(ctx context.Context, domain models.Domain) *models.AttemptResult {
	var trace []string
	var result *models.AttemptResult

	maxRetries := p.config.Campaign.MaxRetries
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			if result == nil {
				result = p.fail(domain, "", "", models.ReasonProcessingError, err)
			}
			break
		}

		email := p.emails.Next()
		result = p.attemptOnce(ctx, domain, email.Address)
		trace = append(trace, prefixTrace(attempt, result.Attempts)...)

		if result.Success {
			break
		}

		p.logger.Debug().
			Str("domain", domain.URL).
			Int("attempt", attempt).
			Str("reason", string(result.Reason)).
			Msg("Attempt failed")

		if attempt < maxRetries {
			select {
			case <-ctx.Done():
			case <-time.After(p.config.Campaign.RetryDelay):
			}
		}
	}

	result.Attempts = trace
	if result.Success {
		p.logger.Info().
			Str("domain", domain.URL).
			Str("email", result.Email).
			Msg("Signup confirmed")
	} else {
		p.logger.Info().
			Str("domain", domain.URL).
			Str("reason", string(result.Reason)).
			Msg("Signup failed")
	}
	return result
}

// attemptOnce performs a single attempt. The page is always closed before
// its session goes back to the pool, on every exit path.
func (p *Processor) attemptOnce(ctx context.Context, domain models.Domain, email string) *models.AttemptResult {
	session, err := p.pool.Acquire(ctx)
	if err != nil {
		return p.fail(domain, email, "", models.ReasonSessionCreation, err)
	}

	page, err := p.connector.Connect(ctx, session)
	if err != nil {
		p.pool.Release(session, false)
		return p.fail(domain, email, session.ID, models.ReasonProcessingError, err)
	}

	healthy := true
	defer func() {
		page.Close()
		p.pool.Release(session, healthy)
	}()

	targetURL := appendTrackingParams(domain.URL, p.config.Campaign.TrackingParams)
	if err := page.Navigate(targetURL); err != nil {
		result := p.fail(domain, email, session.ID, models.ReasonNavigationFailed, err)
		result.Attempts = []string{fmt.Sprintf("navigate %s: %v", targetURL, err)}
		return result
	}

	// Let client-side rendering settle before the chain starts probing
	page.Sleep(p.config.Browser.SettleTime)

	outcome := p.chain.Run(page, email)

	result := &models.AttemptResult{
		Domain:    domain.URL,
		Email:     email,
		Success:   outcome.Submitted && outcome.Confirmed,
		Timestamp: time.Now(),
		SessionID: session.ID,
		Attempts:  outcome.Trace,
	}
	if !result.Success {
		result.Reason = outcome.Reason
		if result.Reason == "" {
			result.Reason = models.ReasonProcessingError
		}
	}
	return result
}

func (p *Processor) fail(domain models.Domain, email, sessionID string, reason models.FailureReason, err error) *models.AttemptResult {
	result := &models.AttemptResult{
		Domain:    domain.URL,
		Email:     email,
		Success:   false,
		Reason:    reason,
		Timestamp: time.Now(),
		SessionID: sessionID,
	}
	if err != nil {
		result.Error = err.Error()
	}
	return result
}

func prefixTrace(attempt int, entries []string) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, fmt.Sprintf("attempt %d: %s", attempt, e))
	}
	return out
}

// appendTrackingParams joins the campaign tracking query string onto a URL
func appendTrackingParams(rawURL, params string) string {
	if params == "" {
		return rawURL
	}
	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + params
}
