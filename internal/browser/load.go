package browser

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"sjsage522/stockscraper/helpers"
	scrapeerrors "sjsage522/stockscraper/pkg/errors"
)

// contentStrategy is one way of asking the browser service for a page
type contentStrategy struct {
	Name    string
	Payload map[string]interface{}
}

// errRateLimited marks a target that answered 429
type errRateLimited struct {
	host string
}

func (e errRateLimited) Error() string {
	return "rate limited by " + e.host
}

// Load navigates the browsing context to rawURL and waits up to timeout for
// any of markers, most specific first. A page whose markers never appear is
// returned with State Degraded; an error means no HTML could be obtained.
func (s *Session) Load(ctx context.Context, rawURL string, markers []string, timeout time.Duration) (*Page, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	s.navigate(rawURL)
	host := hostOf(rawURL)
	if s.opts.Blocks.Blocked(host) {
		return nil, scrapeerrors.NewRateLimit(host, s.opts.Blocks.BlockTime())
	}

	html, contentType, err := s.fetchContent(ctx, rawURL, markers, timeout)
	if err != nil {
		if asRateLimited(err, &errRateLimited{}) {
			return nil, s.block(host)
		}
		return nil, scrapeerrors.NewNavigation(host, "load "+rawURL, err)
	}

	page, err := s.parse(rawURL, html, contentType, markers)
	if err != nil {
		return nil, scrapeerrors.NewNavigation(host, "parse "+rawURL, err)
	}

	if page.Degraded() {
		s.log.Warn().Str("url", rawURL).Strs("markers", markers).Msg("Structural marker not found, continuing degraded")
	} else {
		s.log.Debug().Str("url", rawURL).Str("marker", page.Marker).Msg("Page loaded")
	}
	return page, nil
}

// block starts the rate-limit window for host after a 429
func (s *Session) block(host string) error {
	if err := s.opts.Blocks.Block(host); err != nil {
		s.log.Debug().Err(err).Str("host", host).Msg("Failed to set rate limit block")
	}
	s.log.Warn().Str("host", host).Dur("block", s.opts.Blocks.BlockTime()).Msg("Rate limited, blocking host")
	return scrapeerrors.NewRateLimit(host, s.opts.Blocks.BlockTime())
}

// tooManyRequests reports whether the browser service relayed a 429 from
// the target site
func tooManyRequests(resp *http.Response) bool {
	code, err := strconv.Atoi(resp.Header.Get("X-Response-Code"))
	return err == nil && code == http.StatusTooManyRequests
}

func (s *Session) parse(rawURL string, html []byte, contentType string, markers []string) (*Page, error) {
	reader, err := helpers.DecodeHTML(html, contentType)
	if err != nil {
		return nil, err
	}
	decoded, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	page, err := NewPage(rawURL, bytes.NewReader(decoded), markers)
	if err != nil {
		return nil, err
	}
	s.remember(page, decoded)
	return page, nil
}

// fetchContent tries each content strategy, then FlareSolverr when configured
func (s *Session) fetchContent(ctx context.Context, rawURL string, markers []string, timeout time.Duration) ([]byte, string, error) {
	gotoOptions := map[string]interface{}{
		"waitUntil": "domcontentloaded",
		"timeout":   (2 * timeout).Milliseconds(),
	}

	var strategies []contentStrategy
	if selector := joinMarkers(markers); selector != "" {
		strategies = append(strategies, contentStrategy{
			Name: "wait-for-marker",
			Payload: map[string]interface{}{
				"url":         rawURL,
				"gotoOptions": gotoOptions,
				"waitForSelector": map[string]interface{}{
					"selector": selector,
					"timeout":  timeout.Milliseconds(),
				},
				"bestAttempt": true,
			},
		})
	}
	strategies = append(strategies, contentStrategy{
		Name: "plain-content",
		Payload: map[string]interface{}{
			"url":         rawURL,
			"gotoOptions": gotoOptions,
		},
	})

	var lastErr error
	for i, strategy := range strategies {
		s.log.Debug().Str("strategy", strategy.Name).Int("attempt", i+1).Str("url", rawURL).Msg("Requesting page content")

		html, contentType, err := s.executeStrategy(ctx, strategy, 3*timeout)
		if err == nil {
			return html, contentType, nil
		}
		if asRateLimited(err, &errRateLimited{}) {
			return nil, "", err
		}
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		s.log.Debug().Err(err).Str("strategy", strategy.Name).Msg("Content strategy failed")
		lastErr = err
	}

	if s.opts.FlareSolverrAddr != "" {
		s.log.Warn().Err(lastErr).Str("url", rawURL).Msg("Browser service failed, falling back to FlareSolverr")
		html, err := s.fetchWithFlareSolverr(ctx, rawURL, timeout)
		if err == nil {
			return html, "text/html; charset=utf-8", nil
		}
		lastErr = fmt.Errorf("%v; flaresolverr: %w", lastErr, err)
	}

	return nil, "", fmt.Errorf("all fetch strategies failed: %w", lastErr)
}

// executeStrategy executes a single /content request
func (s *Session) executeStrategy(ctx context.Context, strategy contentStrategy, budget time.Duration) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	data, err := json.Marshal(strategy.Payload)
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint("/content"), bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", helpers.RandomUserAgent())

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if tooManyRequests(resp) {
		target, _ := strategy.Payload["url"].(string)
		return nil, "", errRateLimited{host: hostOf(target)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if len(body) > 0 && len(body) < 500 {
			s.log.Debug().Str("body", string(body)).Msg("Error response body")
		}
		return nil, "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	if !helpers.LooksLikeHTML(body) {
		return nil, "", fmt.Errorf("response doesn't appear to be valid HTML (%d bytes)", len(body))
	}

	return body, resp.Header.Get("Content-Type"), nil
}

// fetchWithFlareSolverr fetches rawURL through FlareSolverr
func (s *Session) fetchWithFlareSolverr(ctx context.Context, rawURL string, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*timeout)
	defer cancel()

	data, err := json.Marshal(map[string]interface{}{
		"cmd":        "request.get",
		"url":        rawURL,
		"maxTimeout": (2 * timeout).Milliseconds(),
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.opts.FlareSolverrAddr+"/v1", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var flareResp struct {
		Status   string `json:"status"`
		Message  string `json:"message"`
		Solution struct {
			Status   int    `json:"status"`
			Response string `json:"response"`
		} `json:"solution"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&flareResp); err != nil {
		return nil, fmt.Errorf("failed to parse FlareSolverr response: %w", err)
	}

	if flareResp.Status != "ok" {
		return nil, fmt.Errorf("FlareSolverr error: %s", flareResp.Message)
	}
	if flareResp.Solution.Status == http.StatusTooManyRequests {
		return nil, errRateLimited{host: hostOf(rawURL)}
	}
	if flareResp.Solution.Response == "" {
		return nil, fmt.Errorf("no content in FlareSolverr response")
	}

	return []byte(flareResp.Solution.Response), nil
}

func asRateLimited(err error, target *errRateLimited) bool {
	return errors.As(err, target)
}

func joinMarkers(markers []string) string {
	var parts []string
	for _, m := range markers {
		if m = strings.TrimSpace(m); m != "" {
			parts = append(parts, m)
		}
	}
	return strings.Join(parts, ", ")
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}
