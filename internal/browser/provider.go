package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/mrussa/meeshosync/internal/portal"
)

const (
	TransportPage   = "page"
	TransportCookie = "cookie"

	defaultStepTimeout = 60 * time.Second

	selLoginButton = `#loginbutton`
	selEmail       = `input[name="emailOrPhone"]`
	selPassword    = `input[name="password"]`
	selSubmit      = `button[type="submit"]`
)

// AuthError reports the login step that failed.
type AuthError struct {
	Step string
	Err  error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed at %s: %v", e.Step, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

type Config struct {
	BaseURL     string
	Headless    bool
	NoSandbox   bool
	RemoteURL   string
	UserAgent   string
	StepTimeout time.Duration
	Transport   string
}

// Provider opens one Chrome per account session and logs in through the
// portal's login form.
type Provider struct {
	cfg Config
	log *zap.Logger
}

func NewProvider(cfg Config, log *zap.Logger) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = portal.DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.UserAgent == "" {
		cfg.UserAgent = portal.DefaultUserAgent
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = defaultStepTimeout
	}
	if cfg.Transport == "" {
		cfg.Transport = TransportPage
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Provider{cfg: cfg, log: log}
}

func (p *Provider) allocator(parent context.Context) (context.Context, context.CancelFunc) {
	if p.cfg.RemoteURL != "" {
		return chromedp.NewRemoteAllocator(parent, p.cfg.RemoteURL)
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", p.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-sync", true),
		chromedp.UserAgent(p.cfg.UserAgent),
	)
	if p.cfg.NoSandbox {
		opts = append(opts, chromedp.Flag("no-sandbox", true))
	}
	return chromedp.NewExecAllocator(parent, opts...)
}

type step struct {
	name    string
	actions chromedp.Tasks
}

func loginSteps(baseURL, email, password string, timeout time.Duration) []step {
	return []step{
		{"navigate", chromedp.Tasks{
			chromedp.Navigate(baseURL + "/"),
			chromedp.WaitReady("body", chromedp.ByQuery),
		}},
		{"open_login", chromedp.Tasks{
			chromedp.WaitVisible(selLoginButton, chromedp.ByQuery),
			chromedp.Click(selLoginButton, chromedp.ByQuery),
		}},
		{"credentials", chromedp.Tasks{
			chromedp.WaitVisible(selEmail, chromedp.ByQuery),
			chromedp.SendKeys(selEmail, email, chromedp.ByQuery),
			chromedp.SendKeys(selPassword, password, chromedp.ByQuery),
		}},
		{"submit", chromedp.Tasks{
			chromedp.Poll(submitEnabledJS, nil, chromedp.WithPollingTimeout(timeout)),
			chromedp.Click(selSubmit, chromedp.ByQuery),
		}},
		{"post_login", chromedp.Tasks{
			chromedp.WaitNotPresent(selPassword, chromedp.ByQuery),
		}},
	}
}

const submitEnabledJS = `(() => { const b = document.querySelector('button[type="submit"]'); return !!b && !b.disabled; })()`

// Open logs in and returns a live session. On any failure the browser is
// torn down and an *AuthError is returned.
func (p *Provider) Open(ctx context.Context, email, password string) (portal.Session, error) {
	allocCtx, allocCancel := p.allocator(ctx)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			p.log.Debug(fmt.Sprintf(format, args...))
		}),
	)
	closeAll := func() {
		tabCancel()
		allocCancel()
	}

	fail := func(stepName string, err error) (portal.Session, error) {
		closeAll()
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %v", ctxErr, err)
		}
		return nil, &AuthError{Step: stepName, Err: err}
	}

	// Starts the browser under the parent context, not a step deadline.
	if err := chromedp.Run(tabCtx); err != nil {
		return fail("launch", err)
	}

	for _, s := range loginSteps(p.cfg.BaseURL, email, password, p.cfg.StepTimeout) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(tabCtx, p.cfg.StepTimeout)
		err := chromedp.Run(stepCtx, s.actions)
		cancel()
		if err != nil {
			return fail(s.name, err)
		}
		p.log.Debug("login step done", zap.String("step", s.name), zap.Duration("took", time.Since(start)))
	}

	var cookies []*network.Cookie
	stepCtx, cancel := context.WithTimeout(tabCtx, p.cfg.StepTimeout)
	err := chromedp.Run(stepCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().WithURLs([]string{p.cfg.BaseURL + "/"}).Do(ctx)
		return err
	}))
	cancel()
	if err != nil {
		return fail("cookies", err)
	}
	if len(cookies) == 0 {
		return fail("cookies", errors.New("no session cookies after login"))
	}

	s := &Session{
		tabCtx: tabCtx,
		cancel: closeAll,
	}
	switch p.cfg.Transport {
	case TransportCookie:
		s.exec = portal.NewHTTPExecutor(p.cfg.BaseURL, CookieHeader(cookies))
	default:
		s.exec = &PageExecutor{ctx: tabCtx, baseURL: p.cfg.BaseURL, timeout: p.cfg.StepTimeout}
	}
	p.log.Info("portal session established",
		zap.String("transport", p.cfg.Transport),
		zap.Int("cookies", len(cookies)),
	)
	return s, nil
}

// CookieHeader renders cookies as a Cookie request header value.
func CookieHeader(cookies []*network.Cookie) string {
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		if c == nil || c.Name == "" {
			continue
		}
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

type Session struct {
	tabCtx context.Context
	exec   portal.Executor

	once   sync.Once
	cancel func()
}

func (s *Session) Executor() portal.Executor { return s.exec }

func (s *Session) Close() error {
	var err error
	s.once.Do(func() {
		err = chromedp.Cancel(s.tabCtx)
		s.cancel()
		if errors.Is(err, context.Canceled) {
			err = nil
		}
	})
	return err
}
