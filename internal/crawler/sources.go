package crawler

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"sjsage522/stockscraper/config"
	"sjsage522/stockscraper/internal/model"
)

const (
	defaultLinkCap      = 20
	defaultItemCap      = 10
	defaultReadyTimeout = 30 * time.Second
	defaultItemTimeout  = 20 * time.Second
	defaultScrollDelay  = 2 * time.Second
)

// DefaultTimestampChain reads a datetime attribute, then a data attribute,
// then element text
var DefaultTimestampChain = FirstOf(
	Attr("time", "datetime"),
	Attr("[data-timestamp]", "data-timestamp"),
	Text("time"),
)

// BuildSources resolves the selector configuration into sources
func BuildSources(sel *config.Selectors) ([]Source, error) {
	sources := make([]Source, 0, len(sel.Sources))
	for _, spec := range sel.Sources {
		src, err := buildSource(spec)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, nil
}

func buildSource(spec config.SourceSpec) (Source, error) {
	var kind model.Kind
	switch spec.Kind {
	case string(model.KindArticle):
		kind = model.KindArticle
	case string(model.KindPost):
		kind = model.KindPost
	default:
		return Source{}, fmt.Errorf("source %s: unknown kind %q", spec.Name, spec.Kind)
	}

	fields := make(FieldRules, len(spec.Fields))
	for name, specs := range spec.Fields {
		fields[name] = FromSpecs(specs)
	}
	if len(fields[FieldPublishedAt]) == 0 {
		fields[FieldPublishedAt] = DefaultTimestampChain
	}

	src := Source{
		Name:         model.Source(spec.Name),
		Kind:         kind,
		ListingURL:   spec.ListingURL,
		ReadyMarkers: spec.ReadyMarkers,
		ReadyTimeout: orDuration(spec.ReadyTimeout, defaultReadyTimeout),
		LinkCap:      orInt(spec.LinkCap, defaultLinkCap),
		ItemCap:      orInt(spec.ItemCap, defaultItemCap),
		Links: LinkRules{
			Selector:    spec.Links.Selector,
			Allow:       spec.Links.Allow,
			Deny:        spec.Links.Deny,
			RequireTerm: spec.Links.RequireTerm,
		},
		ItemMarkers:  spec.ItemMarkers,
		ItemTimeout:  orDuration(spec.ItemTimeout, defaultItemTimeout),
		ItemSelector: spec.ItemSelector,
		ScrollSteps:  spec.ScrollSteps,
		ScrollDelay:  orDuration(spec.ScrollDelay, defaultScrollDelay),
		Fields:       fields,
	}
	return src, nil
}

// BuildPriceSource resolves the price history configuration
func BuildPriceSource(sel *config.Selectors) PriceSource {
	return PriceSource{
		ListingURL:   sel.Prices.ListingURL,
		ReadyMarkers: sel.Prices.ReadyMarkers,
		ReadyTimeout: orDuration(sel.Prices.ReadyTimeout, 10*time.Second),
		Table:        sel.Prices.Table,
	}
}

// ListingFor fills the listing URL template for a search term. {symbol} is
// the upper-cased term as a path segment, {term} the raw term as a query value.
func (s Source) ListingFor(term string) string {
	return strings.NewReplacer(
		"{symbol}", url.PathEscape(strings.ToUpper(strings.TrimPrefix(term, "$"))),
		"{term}", url.QueryEscape(term),
	).Replace(s.ListingURL)
}

// URLFor fills the price history template with a ticker and a unix range
func (p PriceSource) URLFor(ticker string, from, to time.Time) string {
	return strings.NewReplacer(
		"{symbol}", url.PathEscape(strings.ToUpper(ticker)),
		"{from}", strconv.FormatInt(from.Unix(), 10),
		"{to}", strconv.FormatInt(to.Unix(), 10),
	).Replace(p.ListingURL)
}

func orInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func orDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}
