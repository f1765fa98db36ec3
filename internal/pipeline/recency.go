package pipeline

import (
	"time"

	"sjsage522/stockscraper/internal/model"
)

// Reasons an item is turned away by the recency filter
const (
	ReasonNoDate = "no_date"
	ReasonTooOld = "too_old"
)

// Decision is the outcome of a recency check
type Decision struct {
	Accepted bool
	Reason   string
}

// RecencyFilter accepts items published within a trailing window
type RecencyFilter struct {
	windowDays int
	cutoff     time.Time
}

// NewRecencyFilter builds a filter for items published at or after
// now minus windowDays
func NewRecencyFilter(windowDays int, now time.Time) *RecencyFilter {
	return &RecencyFilter{
		windowDays: windowDays,
		cutoff:     now.AddDate(0, 0, -windowDays),
	}
}

// Accept decides whether item is recent enough to keep. Items without a
// resolvable timestamp are never accepted.
func (f *RecencyFilter) Accept(item model.Item) Decision {
	if !item.HasTimestamp() {
		return Decision{Reason: ReasonNoDate}
	}
	if item.PublishedTime.Before(f.cutoff) {
		return Decision{Reason: ReasonTooOld}
	}
	return Decision{Accepted: true}
}

// Cutoff returns the oldest accepted publication time
func (f *RecencyFilter) Cutoff() time.Time {
	return f.cutoff
}

// WindowDays returns the configured window length
func (f *RecencyFilter) WindowDays() int {
	return f.windowDays
}
