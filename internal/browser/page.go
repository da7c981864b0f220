package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/ascribo/internal/common"
	"github.com/ternarybob/ascribo/internal/models"
)

// Element actions that find nothing should fail quickly instead of eating
// the whole navigation budget.
const actionTimeout = 10 * time.Second

// Page is the automation surface the strategy chain drives. One Page maps
// to one CDP tab on one remote session.
type Page interface {
	Navigate(url string) error
	Fill(selector, value string) error
	Click(selector string) error
	PressEnter(selector string) error
	ScrollTop() error
	ScrollBottom() error
	Evaluate(expression string, result interface{}) error
	Sleep(d time.Duration)
	URL() (string, error)
	HTML() (string, error)
	Close()
}

// Connector dials remote sessions into automatable pages
type Connector struct {
	config *common.BrowserConfig
	logger arbor.ILogger
}

// NewConnector creates a page connector with the given browser settings
func NewConnector(config *common.BrowserConfig) *Connector {
	return &Connector{
		config: config,
		logger: common.GetLogger(),
	}
}

// Connect attaches to a session's CDP endpoint and applies the fingerprint
// overrides before any navigation happens. The returned page must be
// closed before the session is released so the provider sees a clean tab.
func (c *Connector) Connect(ctx context.Context, session *models.Session) (Page, error) {
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(ctx, session.ConnectURL)
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)

	err := chromedp.Run(taskCtx,
		chromedp.EmulateViewport(int64(c.config.ViewportWidth), int64(c.config.ViewportHeight)),
		emulation.SetUserAgentOverride(c.config.UserAgent),
		emulation.SetTimezoneOverride(c.config.Timezone),
		emulation.SetLocaleOverride().WithLocale(c.config.Locale),
		emulation.SetGeolocationOverride().
			WithLatitude(c.config.Latitude).
			WithLongitude(c.config.Longitude).
			WithAccuracy(100),
	)
	if err != nil {
		taskCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to attach to session %s: %w", session.ID, err)
	}

	c.logger.Debug().
		Str("session_id", session.ID).
		Msg("Connected page to remote session")

	return &remotePage{
		ctx:         taskCtx,
		taskCancel:  taskCancel,
		allocCancel: allocCancel,
		navTimeout:  c.config.NavigationTimeout,
	}, nil
}

type remotePage struct {
	ctx         context.Context
	taskCancel  context.CancelFunc
	allocCancel context.CancelFunc
	navTimeout  time.Duration
}

func (p *remotePage) Navigate(url string) error {
	ctx, cancel := context.WithTimeout(p.ctx, p.navTimeout)
	defer cancel()

	err := chromedp.Run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

func (p *remotePage) Fill(selector, value string) error {
	ctx, cancel := context.WithTimeout(p.ctx, actionTimeout)
	defer cancel()

	err := chromedp.Run(ctx,
		chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("fill %s failed: %w", selector, err)
	}
	return nil
}

func (p *remotePage) Click(selector string) error {
	ctx, cancel := context.WithTimeout(p.ctx, actionTimeout)
	defer cancel()

	if err := chromedp.Run(ctx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("click %s failed: %w", selector, err)
	}
	return nil
}

func (p *remotePage) PressEnter(selector string) error {
	ctx, cancel := context.WithTimeout(p.ctx, actionTimeout)
	defer cancel()

	if err := chromedp.Run(ctx, chromedp.SendKeys(selector, kb.Enter, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("enter key on %s failed: %w", selector, err)
	}
	return nil
}

func (p *remotePage) ScrollTop() error {
	ctx, cancel := context.WithTimeout(p.ctx, actionTimeout)
	defer cancel()
	return chromedp.Run(ctx, chromedp.Evaluate(`window.scrollTo(0, 0)`, nil))
}

func (p *remotePage) ScrollBottom() error {
	ctx, cancel := context.WithTimeout(p.ctx, actionTimeout)
	defer cancel()
	return chromedp.Run(ctx, chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil))
}

func (p *remotePage) Evaluate(expression string, result interface{}) error {
	ctx, cancel := context.WithTimeout(p.ctx, actionTimeout)
	defer cancel()
	return chromedp.Run(ctx, chromedp.Evaluate(expression, result))
}

func (p *remotePage) Sleep(d time.Duration) {
	_ = chromedp.Run(p.ctx, chromedp.Sleep(d))
}

func (p *remotePage) URL() (string, error) {
	ctx, cancel := context.WithTimeout(p.ctx, actionTimeout)
	defer cancel()

	var location string
	if err := chromedp.Run(ctx, chromedp.Location(&location)); err != nil {
		return "", fmt.Errorf("failed to read page URL: %w", err)
	}
	return location, nil
}

func (p *remotePage) HTML() (string, error) {
	ctx, cancel := context.WithTimeout(p.ctx, actionTimeout)
	defer cancel()

	var html string
	if err := chromedp.Run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to capture page HTML: %w", err)
	}
	return html, nil
}

// Close tears down the tab context first, then the allocator connection.
// Both must be gone before the owning session goes back to the pool.
func (p *remotePage) Close() {
	p.taskCancel()
	p.allocCancel()
}
