package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"sjsage522/stockscraper/internal/model"
	"sjsage522/stockscraper/logger"
)

// FileSink writes each batch to a dated JSON document. Re-running on the
// same day replaces that day's file.
type FileSink struct {
	dir string
	now func() time.Time
}

// NewFileSink creates dir if needed
func NewFileSink(dir string) (*FileSink, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &FileSink{dir: dir, now: time.Now}, nil
}

// WriteItems implements Sink. Articles and posts go to separate files.
func (s *FileSink) WriteItems(ctx context.Context, query string, items []model.Item) (Result, error) {
	result := newResult("", len(items), StatusNotAttempted)

	var articles, posts []model.Item
	var articleIdx, postIdx []int
	for i, item := range items {
		if item.Kind == model.KindPost {
			posts = append(posts, item)
			postIdx = append(postIdx, i)
		} else {
			articles = append(articles, item)
			articleIdx = append(articleIdx, i)
		}
	}

	var targets []string
	for _, batch := range []struct {
		label string
		items []model.Item
		idx   []int
	}{
		{"news", articles, articleIdx},
		{"posts", posts, postIdx},
	} {
		if len(batch.items) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			result.Target = strings.Join(targets, ", ")
			return result, err
		}
		path := s.path(query, batch.label)
		if err := writeJSON(path, batch.items); err != nil {
			for _, i := range batch.idx {
				result.Statuses[i] = StatusFailed
			}
			result.Target = strings.Join(append(targets, path), ", ")
			return result, err
		}
		for _, i := range batch.idx {
			result.Statuses[i] = StatusInserted
		}
		targets = append(targets, path)
	}

	result.Target = strings.Join(targets, ", ")
	logger.ForComponent("file_sink").Info().
		Str("target", result.Target).
		Int("records", len(items)).
		Msg("Wrote items")
	return result, nil
}

// WritePrices implements Sink
func (s *FileSink) WritePrices(ctx context.Context, ticker string, bars []model.PriceBar) (Result, error) {
	path := s.path(ticker, "prices")
	result := newResult(path, len(bars), StatusNotAttempted)
	if len(bars) == 0 {
		return result, nil
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}
	if err := writeJSON(path, bars); err != nil {
		return newResult(path, len(bars), StatusFailed), err
	}
	for i := range result.Statuses {
		result.Statuses[i] = StatusInserted
	}
	logger.ForComponent("file_sink").Info().
		Str("target", path).
		Int("records", len(bars)).
		Msg("Wrote price bars")
	return result, nil
}

// Close implements Sink
func (s *FileSink) Close() error {
	return nil
}

func (s *FileSink) path(query, label string) string {
	symbol := strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(query), "$"))
	symbol = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == ' ' {
			return '_'
		}
		return r
	}, symbol)
	name := fmt.Sprintf("%s_%s_%s.json", symbol, label, s.now().Format("2006-01-02"))
	return filepath.Join(s.dir, name)
}

// writeJSON writes v through a temporary file so a failed write never leaves
// a truncated document behind
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".stockscraper-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
