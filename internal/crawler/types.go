package crawler

import (
	"time"

	"sjsage522/stockscraper/internal/model"
)

// Field names used in FieldRules
const (
	FieldTitle       = "title"
	FieldBody        = "body"
	FieldPublishedAt = "published_at"
	FieldUsername    = "username"
	FieldText        = "text"
	FieldReshares    = "reshares"
	FieldLikes       = "likes"
)

// Link is a candidate item discovered on a listing page
type Link struct {
	Title string
	URL   string
}

// LinkRules is the relevance predicate for listing links
type LinkRules struct {
	Selector    string
	Allow       []string
	Deny        []string
	RequireTerm bool
}

// FieldRules maps a field name to its prioritized strategies
type FieldRules map[string]Chain

// Source is a fully resolved content source
type Source struct {
	Name         model.Source
	Kind         model.Kind
	ListingURL   string
	ReadyMarkers []string
	ReadyTimeout time.Duration
	LinkCap      int
	ItemCap      int
	Links        LinkRules
	ItemMarkers  []string
	ItemTimeout  time.Duration
	ItemSelector string
	ScrollSteps  int
	ScrollDelay  time.Duration
	Fields       FieldRules
}

// PriceSource describes the price history page
type PriceSource struct {
	ListingURL   string
	ReadyMarkers []string
	ReadyTimeout time.Duration
	Table        string
}
