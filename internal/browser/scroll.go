package browser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"sjsage522/stockscraper/helpers"
	scrapeerrors "sjsage522/stockscraper/pkg/errors"
)

// scrollScript runs inside the browser service. It loads the page, waits for
// the marker, then scrolls step times and returns the DOM after each step.
const scrollScript = `export default async function ({ page, context }) {
  await page.setUserAgent(context.userAgent);
  const response = await page.goto(context.url, { waitUntil: "domcontentloaded", timeout: context.gotoTimeout });
  const status = response ? response.status() : 0;
  if (status === 429) {
    return { data: { status, ready: false, snapshots: [] }, type: "application/json" };
  }
  let ready = true;
  try {
    await page.waitForSelector(context.selector, { timeout: context.waitTimeout });
  } catch (e) {
    ready = false;
  }
  const snapshots = [];
  for (let i = 0; i < context.steps; i++) {
    await page.evaluate(() => window.scrollTo(0, document.body.scrollHeight));
    await new Promise((resolve) => setTimeout(resolve, context.delay));
    snapshots.push(await page.content());
  }
  if (snapshots.length === 0) {
    snapshots.push(await page.content());
  }
  return { data: { status, ready, snapshots }, type: "application/json" };
}`

type scrollResult struct {
	Status    int      `json:"status"`
	Ready     bool     `json:"ready"`
	Snapshots []string `json:"snapshots"`
}

// LoadScrolled loads an infinite-scroll listing and returns one page per
// scroll step, capped at steps. The caller decides when to stop consuming.
func (s *Session) LoadScrolled(ctx context.Context, rawURL string, markers []string, timeout time.Duration, steps int, stepDelay time.Duration) ([]*Page, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	s.navigate(rawURL)
	host := hostOf(rawURL)
	if s.opts.Blocks.Blocked(host) {
		return nil, scrapeerrors.NewRateLimit(host, s.opts.Blocks.BlockTime())
	}
	if steps < 0 {
		steps = 0
	}

	payload, err := json.Marshal(map[string]interface{}{
		"code": scrollScript,
		"context": map[string]interface{}{
			"url":         rawURL,
			"selector":    joinMarkers(markers),
			"userAgent":   helpers.RandomUserAgent(),
			"gotoTimeout": (2 * timeout).Milliseconds(),
			"waitTimeout": timeout.Milliseconds(),
			"steps":       steps,
			"delay":       stepDelay.Milliseconds(),
		},
	})
	if err != nil {
		return nil, scrapeerrors.NewNavigation(host, "marshal scroll payload", err)
	}

	budget := 3*timeout + time.Duration(steps)*stepDelay
	reqCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, s.endpoint("/function"), bytes.NewReader(payload))
	if err != nil {
		return nil, scrapeerrors.NewNavigation(host, "create scroll request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, scrapeerrors.NewNavigation(host, "scroll "+rawURL, err)
	}
	defer resp.Body.Close()

	if tooManyRequests(resp) {
		return nil, s.block(host)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, scrapeerrors.NewNavigation(host, "read scroll response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, scrapeerrors.NewNavigation(host, "scroll "+rawURL, fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var result scrollResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, scrapeerrors.NewNavigation(host, "decode scroll response", err)
	}
	if result.Status == http.StatusTooManyRequests {
		return nil, s.block(host)
	}
	if len(result.Snapshots) == 0 {
		return nil, scrapeerrors.NewNavigation(host, "scroll "+rawURL, fmt.Errorf("no snapshots returned"))
	}

	pages := make([]*Page, 0, len(result.Snapshots))
	for i, snapshot := range result.Snapshots {
		page, err := s.parse(rawURL, []byte(snapshot), "text/html; charset=utf-8", markers)
		if err != nil {
			return nil, scrapeerrors.NewNavigation(host, fmt.Sprintf("parse scroll step %d", i+1), err)
		}
		pages = append(pages, page)
	}

	if !result.Ready {
		s.log.Warn().Str("url", rawURL).Strs("markers", markers).Msg("Structural marker not found while scrolling, continuing degraded")
	}
	return pages, nil
}
