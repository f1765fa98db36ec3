package browser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

var unsafeLabel = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Snapshot saves the page of the last navigation for offline debugging: its
// HTML when the load produced any, and a full-page PNG when the browser
// service can render one. It returns the path of the first file written, or
// "" when nothing has been navigated yet.
func (s *Session) Snapshot(ctx context.Context, label string) (string, error) {
	if s.closed || s.lastURL == "" {
		return "", nil
	}
	dir := s.opts.DiagnosticsDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create diagnostics dir: %w", err)
	}

	base := filepath.Join(dir, fmt.Sprintf("error-%s-%d", unsafeLabel.ReplaceAllString(label, "_"), time.Now().UnixNano()))
	var saved string
	if s.lastHTML != nil {
		if err := os.WriteFile(base+".html", s.lastHTML, 0o644); err != nil {
			return "", fmt.Errorf("write html snapshot: %w", err)
		}
		saved = base + ".html"
	}

	if s.opts.Blocks.Blocked(hostOf(s.lastURL)) {
		s.log.Debug().Str("url", s.lastURL).Msg("Host is rate limited, skipping screenshot")
	} else if png, err := s.screenshot(ctx, s.lastURL); err != nil {
		s.log.Debug().Err(err).Str("url", s.lastURL).Msg("Screenshot unavailable")
	} else if err := os.WriteFile(base+".png", png, 0o644); err != nil {
		s.log.Debug().Err(err).Msg("Failed to write screenshot")
	} else if saved == "" {
		saved = base + ".png"
	}

	if saved == "" {
		return "", fmt.Errorf("nothing captured for %s", s.lastURL)
	}
	s.log.Info().Str("path", saved).Str("url", s.lastURL).Msg("Diagnostic snapshot saved")
	return saved, nil
}

func (s *Session) screenshot(ctx context.Context, rawURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	data, err := json.Marshal(map[string]interface{}{
		"url": rawURL,
		"options": map[string]interface{}{
			"fullPage": true,
			"type":     "png",
		},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint("/screenshot"), bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
