package sink

import (
	"context"
	"fmt"

	"sjsage522/stockscraper/internal/model"
)

// Status is the persistence outcome of one record
type Status string

const (
	StatusInserted     Status = "inserted"
	StatusIgnored      Status = "ignored"
	StatusFailed       Status = "failed"
	StatusNotAttempted Status = "not_attempted"
)

// Result reports per-record outcomes. Statuses is aligned with the input.
type Result struct {
	Target   string
	Statuses []Status
}

func newResult(target string, n int, initial Status) Result {
	statuses := make([]Status, n)
	for i := range statuses {
		statuses[i] = initial
	}
	return Result{Target: target, Statuses: statuses}
}

// Count returns how many records ended with status
func (r Result) Count(status Status) int {
	n := 0
	for _, s := range r.Statuses {
		if s == status {
			n++
		}
	}
	return n
}

func (r Result) String() string {
	return fmt.Sprintf("%s: %d inserted, %d ignored, %d failed, %d not attempted",
		r.Target,
		r.Count(StatusInserted),
		r.Count(StatusIgnored),
		r.Count(StatusFailed),
		r.Count(StatusNotAttempted),
	)
}

// Sink persists scraped records
type Sink interface {
	// WriteItems persists articles and posts gathered for query
	WriteItems(ctx context.Context, query string, items []model.Item) (Result, error)

	// WritePrices persists daily bars for ticker
	WritePrices(ctx context.Context, ticker string, bars []model.PriceBar) (Result, error)

	// Close releases the sink's resources
	Close() error
}

// Type selects a sink back end
type Type string

const (
	TypeFile Type = "file"
	TypeSQL  Type = "sql"
)

// Config is everything needed to build a sink
type Config struct {
	Type        Type
	OutputDir   string
	Driver      string
	DSN         string
	AutoMigrate bool
}

// New builds the sink selected by cfg
func New(cfg Config) (Sink, error) {
	switch cfg.Type {
	case TypeFile, "":
		return NewFileSink(cfg.OutputDir)
	case TypeSQL:
		return OpenSQLSink(cfg)
	default:
		return nil, fmt.Errorf("unknown sink type %q", cfg.Type)
	}
}
