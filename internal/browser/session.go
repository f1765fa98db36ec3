package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"sjsage522/stockscraper/logger"
	scrapeerrors "sjsage522/stockscraper/pkg/errors"
	"sjsage522/stockscraper/services/cache"
)

// Options configures a browser session
type Options struct {
	// Addr is the base URL of the headless Chrome service (browserless API)
	Addr  string
	Token string
	// FlareSolverrAddr enables a fallback fetch when the browser service fails
	FlareSolverrAddr string
	// DiagnosticsDir receives snapshots written by Snapshot
	DiagnosticsDir string
	Blocks         *cache.RateLimitBlocks
	HTTPClient     *http.Client
	Logger         *logger.Logger
}

// Session owns the single browsing context used by a run. It is not safe for
// concurrent use; the orchestrator drives it from one goroutine.
type Session struct {
	opts     Options
	client   *http.Client
	log      *logger.Logger
	last     *Page
	lastHTML []byte
	lastURL  string
	closed   bool
}

// Open checks that the browser service is reachable and returns a session.
// Failure here is fatal for the run.
func Open(ctx context.Context, opts Options) (*Session, error) {
	if opts.Addr == "" {
		return nil, scrapeerrors.NewSession("browser address not configured", nil)
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 3 * time.Minute}
	}
	log := opts.Logger
	if log == nil {
		log = logger.ForComponent("browser")
	}

	s := &Session{opts: opts, client: client, log: log}
	if err := s.checkHealth(ctx); err != nil {
		return nil, scrapeerrors.NewSession("browser service unavailable", err)
	}
	return s, nil
}

// checkHealth checks if the browser service answers at all
func (s *Session) checkHealth(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint("/"), nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("browser service not reachable at %s: %w", s.opts.Addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("browser service error (status %d)", resp.StatusCode)
	}

	s.log.Debug().Int("status", resp.StatusCode).Msg("Browser health check passed")
	return nil
}

// endpoint builds an API URL carrying the access token
func (s *Session) endpoint(path string) string {
	u := s.opts.Addr + path
	if s.opts.Token == "" {
		return u
	}
	return u + "?token=" + url.QueryEscape(s.opts.Token)
}

// Close releases the session. It is safe to call more than once.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.client.CloseIdleConnections()
	s.last = nil
	s.lastHTML = nil
	s.lastURL = ""
	s.log.Debug().Msg("Browser session released")
	return nil
}

func (s *Session) ensureOpen() error {
	if s.closed {
		return scrapeerrors.NewSession("session already closed", nil)
	}
	return nil
}

// navigate marks rawURL as the page occupying the browsing context. The
// previous page is forgotten so a failed load never snapshots stale HTML.
func (s *Session) navigate(rawURL string) {
	s.lastURL = rawURL
	s.last = nil
	s.lastHTML = nil
}

// remember records the page that now occupies the browsing context
func (s *Session) remember(page *Page, html []byte) {
	s.last = page
	s.lastHTML = html
}

// Current returns the page loaded by the last navigation, or nil when that
// navigation failed
func (s *Session) Current() *Page {
	return s.last
}
