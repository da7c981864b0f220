package processor

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/ascribo/internal/browser"
	"github.com/ternarybob/ascribo/internal/common"
	"github.com/ternarybob/ascribo/internal/models"
	"github.com/ternarybob/ascribo/internal/strategies"
)

type stubPage struct {
	navErr error
	navURL string
	events *[]string
}

func (p *stubPage) Navigate(url string) error {
	p.navURL = url
	return p.navErr
}
func (p *stubPage) Fill(selector, value string) error         { return nil }
func (p *stubPage) Click(selector string) error               { return nil }
func (p *stubPage) PressEnter(selector string) error          { return nil }
func (p *stubPage) ScrollTop() error                          { return nil }
func (p *stubPage) ScrollBottom() error                       { return nil }
func (p *stubPage) Evaluate(js string, res interface{}) error { return nil }
func (p *stubPage) Sleep(d time.Duration)                     {}
func (p *stubPage) URL() (string, error)                      { return p.navURL, nil }
func (p *stubPage) HTML() (string, error)                     { return "<html></html>", nil }
func (p *stubPage) Close() {
	if p.events != nil {
		*p.events = append(*p.events, "page closed")
	}
}

type scriptedPool struct {
	mu         sync.Mutex
	nextID     int
	acquireErr error
	events     *[]string
}

func (s *scriptedPool) Acquire(ctx context.Context) (*models.Session, error) {
	if s.acquireErr != nil {
		return nil, s.acquireErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := fmt.Sprintf("sess-%d", s.nextID)
	if s.events != nil {
		*s.events = append(*s.events, "acquired "+id)
	}
	return &models.Session{ID: id, ConnectURL: "ws://example.invalid"}, nil
}

func (s *scriptedPool) Release(session *models.Session, healthy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.events != nil {
		*s.events = append(*s.events, fmt.Sprintf("released %s healthy=%v", session.ID, healthy))
	}
}

type scriptedConnector struct {
	connectErr error
	page       *stubPage
}

func (c *scriptedConnector) Connect(ctx context.Context, session *models.Session) (browser.Page, error) {
	if c.connectErr != nil {
		return nil, c.connectErr
	}
	return c.page, nil
}

type scriptedChain struct {
	outcomes   []*strategies.Outcome
	emailsSeen []string
}

func (c *scriptedChain) Run(page browser.Page, email string) *strategies.Outcome {
	c.emailsSeen = append(c.emailsSeen, email)
	if len(c.outcomes) == 0 {
		return &strategies.Outcome{Reason: models.ReasonNoEmailInput}
	}
	out := c.outcomes[0]
	c.outcomes = c.outcomes[1:]
	return out
}

func testConfig() *common.Config {
	cfg := common.NewDefaultConfig()
	cfg.Campaign.MaxRetries = 3
	cfg.Campaign.RetryDelay = time.Millisecond
	cfg.Campaign.TrackingParams = "utm_source=newsletter"
	cfg.Browser.SettleTime = 0
	return cfg
}

func testEmails(addrs ...string) *models.EmailPool {
	accounts := make([]models.EmailAccount, len(addrs))
	for i, a := range addrs {
		accounts[i] = models.EmailAccount{Address: a}
	}
	return models.NewEmailPool(accounts)
}

func TestProcessSuccessFirstAttempt(t *testing.T) {
	var events []string
	page := &stubPage{events: &events}
	pool := &scriptedPool{events: &events}
	chain := &scriptedChain{outcomes: []*strategies.Outcome{
		{Strategy: "newsletter", Submitted: true, Confirmed: true, Trace: []string{"newsletter: confirmed via url:thank"}},
	}}

	p := NewProcessor(pool, &scriptedConnector{page: page}, chain, testEmails("a@example.com"), testConfig())
	result := p.Process(context.Background(), models.Domain{URL: "https://example.com"})

	assert.True(t, result.Success)
	assert.Empty(t, result.Reason)
	assert.Equal(t, "a@example.com", result.Email)
	assert.Equal(t, "sess-1", result.SessionID)
	assert.Equal(t, []string{"attempt 1: newsletter: confirmed via url:thank"}, result.Attempts)
	// Tracking params rode along on the navigation
	assert.Equal(t, "https://example.com?utm_source=newsletter", page.navURL)
}

func TestProcessRetriesThenSucceedsWithRotatedEmail(t *testing.T) {
	page := &stubPage{}
	pool := &scriptedPool{}
	chain := &scriptedChain{outcomes: []*strategies.Outcome{
		{Strategy: "generic", Submitted: true, Confirmed: false, Reason: models.ReasonUnconfirmed, Trace: []string{"generic: no confirmation signal"}},
		{Strategy: "generic", Submitted: true, Confirmed: true, Trace: []string{"generic: confirmed via content:thank you"}},
	}}

	p := NewProcessor(pool, &scriptedConnector{page: page}, chain, testEmails("a@example.com", "b@example.com"), testConfig())
	result := p.Process(context.Background(), models.Domain{URL: "https://example.com"})

	assert.True(t, result.Success)
	assert.Equal(t, "b@example.com", result.Email)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, chain.emailsSeen)
	require.Len(t, result.Attempts, 2)
	assert.Contains(t, result.Attempts[0], "attempt 1:")
	assert.Contains(t, result.Attempts[1], "attempt 2:")
}

func TestProcessExhaustsRetries(t *testing.T) {
	pool := &scriptedPool{}
	chain := &scriptedChain{} // Every attempt finds no email input

	p := NewProcessor(pool, &scriptedConnector{page: &stubPage{}}, chain, testEmails("a@example.com"), testConfig())
	result := p.Process(context.Background(), models.Domain{URL: "https://example.com"})

	assert.False(t, result.Success)
	assert.Equal(t, models.ReasonNoEmailInput, result.Reason)
	assert.Len(t, chain.emailsSeen, 3)
}

func TestProcessSessionCreationFailure(t *testing.T) {
	pool := &scriptedPool{acquireErr: fmt.Errorf("rate limited after 4 attempts")}

	p := NewProcessor(pool, &scriptedConnector{page: &stubPage{}}, &scriptedChain{}, testEmails("a@example.com"), testConfig())
	result := p.Process(context.Background(), models.Domain{URL: "https://example.com"})

	assert.False(t, result.Success)
	assert.Equal(t, models.ReasonSessionCreation, result.Reason)
	assert.Contains(t, result.Error, "rate limited")
}

func TestProcessNavigationFailure(t *testing.T) {
	cfg := testConfig()
	cfg.Campaign.MaxRetries = 1
	pool := &scriptedPool{}

	p := NewProcessor(pool, &scriptedConnector{page: &stubPage{navErr: fmt.Errorf("net::ERR_CONNECTION_REFUSED")}}, &scriptedChain{}, testEmails("a@example.com"), cfg)
	result := p.Process(context.Background(), models.Domain{URL: "https://down.example.com"})

	assert.False(t, result.Success)
	assert.Equal(t, models.ReasonNavigationFailed, result.Reason)
}

func TestProcessClosesPageBeforeReleasingSession(t *testing.T) {
	var events []string
	cfg := testConfig()
	cfg.Campaign.MaxRetries = 1
	page := &stubPage{events: &events}
	pool := &scriptedPool{events: &events}
	chain := &scriptedChain{outcomes: []*strategies.Outcome{
		{Submitted: true, Confirmed: true},
	}}

	p := NewProcessor(pool, &scriptedConnector{page: page}, chain, testEmails("a@example.com"), cfg)
	p.Process(context.Background(), models.Domain{URL: "https://example.com"})

	require.Equal(t, []string{"acquired sess-1", "page closed", "released sess-1 healthy=true"}, events)
}

func TestProcessReleasesUnhealthyOnConnectError(t *testing.T) {
	var events []string
	cfg := testConfig()
	cfg.Campaign.MaxRetries = 1
	pool := &scriptedPool{events: &events}

	p := NewProcessor(pool, &scriptedConnector{connectErr: fmt.Errorf("websocket dial failed")}, &scriptedChain{}, testEmails("a@example.com"), cfg)
	result := p.Process(context.Background(), models.Domain{URL: "https://example.com"})

	assert.Equal(t, models.ReasonProcessingError, result.Reason)
	require.Equal(t, []string{"acquired sess-1", "released sess-1 healthy=false"}, events)
}

func TestAppendTrackingParams(t *testing.T) {
	assert.Equal(t, "https://a.com?x=1", appendTrackingParams("https://a.com", "x=1"))
	assert.Equal(t, "https://a.com?q=2&x=1", appendTrackingParams("https://a.com?q=2", "x=1"))
	assert.Equal(t, "https://a.com", appendTrackingParams("https://a.com", ""))
}
