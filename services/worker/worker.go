package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sjsage522/stockscraper/internal/browser"
	"sjsage522/stockscraper/internal/crawler"
	"sjsage522/stockscraper/internal/model"
	"sjsage522/stockscraper/internal/pipeline"
	"sjsage522/stockscraper/logger"
	scrapeerrors "sjsage522/stockscraper/pkg/errors"
	"sjsage522/stockscraper/services/publisher"
	"sjsage522/stockscraper/services/sink"

	"github.com/google/uuid"
)

// Navigator loads pages in the shared browsing context
type Navigator interface {
	Load(ctx context.Context, url string, markers []string, timeout time.Duration) (*browser.Page, error)
	LoadScrolled(ctx context.Context, url string, markers []string, timeout time.Duration, steps int, stepDelay time.Duration) ([]*browser.Page, error)
	Snapshot(ctx context.Context, label string) (string, error)
}

// Query is what a run searches for
type Query struct {
	Symbol  string
	Aliases []string
	// Kind restricts the run to article or post sources; empty runs both
	Kind model.Kind
}

// Terms returns the symbol followed by its aliases, without blanks or
// case-insensitive repeats
func (q Query) Terms() []string {
	seen := make(map[string]bool)
	var terms []string
	for _, term := range append([]string{q.Symbol}, q.Aliases...) {
		term = strings.TrimSpace(term)
		key := strings.ToLower(term)
		if term == "" || seen[key] {
			continue
		}
		seen[key] = true
		terms = append(terms, term)
	}
	return terms
}

// Report is the outcome of one run. Items is available even when
// persistence failed.
type Report struct {
	RunID      string
	Query      Query
	Items      []model.Item
	Sources    []Summary
	Dropped    int
	Persist    sink.Result
	PersistErr error
	Published  int
}

// Recent returns up to n of the newest items
func (r *Report) Recent(n int) []model.Item {
	if n > len(r.Items) {
		n = len(r.Items)
	}
	return r.Items[:n]
}

// PriceReport is the outcome of a price history run
type PriceReport struct {
	RunID      string
	Ticker     string
	Bars       []model.PriceBar
	Skipped    int
	Persist    sink.Result
	PersistErr error
}

// Options configures a Worker
type Options struct {
	Navigator  Navigator
	Sources    []crawler.Source
	Prices     crawler.PriceSource
	Sink       sink.Sink
	Publisher  publisher.Publisher
	Pacer      *Pacer
	TermPause  time.Duration
	WindowDays int
	Now        func() time.Time
}

// Worker runs the scrape pipeline one source at a time
type Worker struct {
	nav        Navigator
	sources    []crawler.Source
	prices     crawler.PriceSource
	sink       sink.Sink
	publisher  publisher.Publisher
	pacer      *Pacer
	termPause  time.Duration
	windowDays int
	now        func() time.Time
}

// NewWorker creates a new worker
func NewWorker(opts Options) *Worker {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Worker{
		nav:        opts.Navigator,
		sources:    opts.Sources,
		prices:     opts.Prices,
		sink:       opts.Sink,
		publisher:  opts.Publisher,
		pacer:      opts.Pacer,
		termPause:  opts.TermPause,
		windowDays: opts.WindowDays,
		now:        now,
	}
}

// Run scrapes every matching source, merges and persists the result. Source
// failures only empty that source's contribution; the returned error is
// non-nil only for a fatal browser failure or cancellation.
func (w *Worker) Run(ctx context.Context, q Query) (*Report, error) {
	report := &Report{RunID: uuid.NewString(), Query: q}
	log := logger.ForComponent("worker").WithFields(logger.Fields{
		"run_id": report.RunID,
		"symbol": q.Symbol,
	})
	filter := pipeline.NewRecencyFilter(w.windowDays, w.now())

	log.Info().
		Int("window_days", w.windowDays).
		Time("cutoff", filter.Cutoff()).
		Msg("Starting run")

	var (
		merged    []model.Item
		summaries []*Summary
		runErr    error
	)
	for _, src := range w.sources {
		if q.Kind != "" && src.Kind != q.Kind {
			continue
		}
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		summary := newSummary(src.Name, src.Kind)
		summaries = append(summaries, summary)

		var items []model.Item
		var err error
		if src.Kind == model.KindPost {
			items, err = w.scrapePosts(ctx, src, q, filter, summary)
		} else {
			items, err = w.scrapeArticles(ctx, src, q.Symbol, filter, summary)
		}
		merged = append(merged, items...)

		logger.ForSource(string(src.Name)).Info().
			Str("summary", summary.String()).
			Msg("Source finished")

		if err != nil {
			runErr = err
			break
		}
	}

	kept, dropped := pipeline.Dedupe(merged)
	pipeline.SortNewestFirst(kept)
	applyDedupe(summaries, kept)
	report.Items = kept
	report.Dropped = dropped

	if runErr != nil {
		report.Sources = flatten(summaries)
		return report, runErr
	}

	report.Persist, report.PersistErr = w.sink.WriteItems(ctx, q.Symbol, kept)
	if report.PersistErr != nil {
		log.Error().Err(report.PersistErr).Msg("Persistence aborted")
	}
	applyPersistence(summaries, kept, report.Persist)
	report.Sources = flatten(summaries)

	report.Published = w.publish(kept, report.Persist)

	log.Info().
		Int("items", len(kept)).
		Int("duplicates", dropped).
		Str("persist", report.Persist.String()).
		Msg("Run finished")
	return report, nil
}

// scrapeArticles loads a listing page, follows discovered links and returns
// the accepted articles
func (w *Worker) scrapeArticles(ctx context.Context, src crawler.Source, symbol string, filter *pipeline.RecencyFilter, summary *Summary) ([]model.Item, error) {
	log := logger.ForSource(string(src.Name))

	listing, err := w.nav.Load(ctx, src.ListingFor(symbol), src.ReadyMarkers, src.ReadyTimeout)
	if err != nil {
		return nil, w.sourceFailed(ctx, src, summary, "listing", err)
	}
	if listing.Degraded() {
		summary.Degraded++
		log.Warn().Str("url", listing.URL).Msg("Listing loaded without ready marker")
	}

	links := crawler.DiscoverLinks(listing, src.Links, symbol, src.LinkCap)
	summary.Discovered = len(links)
	log.Info().Int("links", len(links)).Msg("Discovered links")

	var accepted []model.Item
	for i, link := range links {
		if len(accepted) >= src.ItemCap {
			break
		}
		if i > 0 {
			if err := w.pacer.Wait(ctx); err != nil {
				return accepted, err
			}
		}

		c := newCandidate(link.URL)
		if err := w.processArticle(ctx, src, symbol, link, filter, c, summary); err != nil {
			summary.record(c)
			return accepted, err
		}
		summary.record(c)
		if c.state == StateAccepted {
			accepted = append(accepted, c.item)
		}
	}
	return accepted, nil
}

// processArticle drives one link through navigation, extraction and the
// recency filter. A navigation error is retried once. Unexpected failures
// only fail this candidate.
func (w *Worker) processArticle(ctx context.Context, src crawler.Source, symbol string, link crawler.Link, filter *pipeline.RecencyFilter, c *candidate, summary *Summary) (err error) {
	log := logger.ForSource(string(src.Name)).WithField("url", link.URL)
	defer func() {
		if r := recover(); r != nil {
			c.state = StateFailed
			log.Error().
				Err(scrapeerrors.NewExtraction(string(src.Name), fmt.Sprintf("panic: %v", r), nil)).
				Msg("Item skipped")
			w.snapshot(ctx, src, "item")
		}
	}()

	page, loadErr := w.nav.Load(ctx, link.URL, src.ItemMarkers, src.ItemTimeout)
	if scrapeerrors.IsRetryable(loadErr) {
		log.Debug().Err(loadErr).Msg("Item load failed, retrying")
		if waitErr := w.pacer.Wait(ctx); waitErr != nil {
			_ = c.advance(StateFailed)
			return waitErr
		}
		page, loadErr = w.nav.Load(ctx, link.URL, src.ItemMarkers, src.ItemTimeout)
	}
	if loadErr != nil {
		_ = c.advance(StateFailed)
		log.Warn().Err(loadErr).Msg("Item load failed")
		if scrapeerrors.IsFatal(loadErr) {
			return loadErr
		}
		w.snapshot(ctx, src, "item")
		return nil
	}
	_ = c.advance(StateNavigated)
	if page.Degraded() {
		summary.Degraded++
		log.Debug().Msg("Item loaded without ready marker")
	}

	c.item = crawler.ExtractArticle(page, src.Fields, src.Name, symbol, link)
	_ = c.advance(StateExtracted)

	w.decide(c, filter)
	return nil
}

// scrapePosts runs a scrolled search once per term and returns the accepted
// posts, stopping when the cap is reached
func (w *Worker) scrapePosts(ctx context.Context, src crawler.Source, q Query, filter *pipeline.RecencyFilter, summary *Summary) ([]model.Item, error) {
	log := logger.ForSource(string(src.Name))

	var (
		accepted []model.Item
		failures int
		lastErr  error
	)
	seen := make(map[string]bool)
	terms := q.Terms()

	for t, term := range terms {
		if len(accepted) >= src.ItemCap {
			break
		}
		if t > 0 {
			if err := sleep(ctx, w.termPause); err != nil {
				return accepted, err
			}
		}

		pages, err := w.nav.LoadScrolled(ctx, src.ListingFor(term), src.ReadyMarkers, src.ReadyTimeout, src.ScrollSteps, src.ScrollDelay)
		if err != nil {
			if scrapeerrors.IsFatal(err) {
				return accepted, err
			}
			failures++
			lastErr = err
			w.snapshot(ctx, src, "search-"+term)
			log.Warn().Err(err).Str("term", term).Msg("Search failed")
			continue
		}

		for _, page := range pages {
			if page.Degraded() {
				summary.Degraded++
			}
			fresh := 0
			for _, post := range w.extractPosts(page, src, term) {
				if seen[post.Key()] {
					continue
				}
				seen[post.Key()] = true
				fresh++
				summary.Discovered++

				c := newCandidate(post.Key())
				c.item = post
				_ = c.advance(StateNavigated)
				_ = c.advance(StateExtracted)
				w.decide(c, filter)
				summary.record(c)

				if c.state == StateAccepted {
					accepted = append(accepted, post)
					if len(accepted) >= src.ItemCap {
						break
					}
				}
			}
			if fresh == 0 || len(accepted) >= src.ItemCap {
				break
			}
		}
		log.Info().
			Str("term", term).
			Int("accepted", len(accepted)).
			Msg("Search finished")
	}

	if len(terms) > 0 && failures == len(terms) {
		summary.Err = lastErr
	}
	return accepted, nil
}

// extractPosts isolates a panicking snapshot so the remaining snapshots
// still run
func (w *Worker) extractPosts(page *browser.Page, src crawler.Source, term string) (posts []model.Item) {
	defer func() {
		if r := recover(); r != nil {
			logger.ForSource(string(src.Name)).Error().
				Err(scrapeerrors.NewExtraction(string(src.Name), fmt.Sprintf("panic: %v", r), nil)).
				Msg("Snapshot skipped")
			posts = nil
		}
	}()
	return crawler.ExtractPosts(page, src.ItemSelector, src.Fields, src.Name, term)
}

func (w *Worker) decide(c *candidate, filter *pipeline.RecencyFilter) {
	decision := filter.Accept(c.item)
	switch {
	case decision.Accepted:
		_ = c.advance(StateAccepted)
	case decision.Reason == pipeline.ReasonNoDate:
		_ = c.advance(StateRejectedNoDate)
	default:
		_ = c.advance(StateRejectedOld)
	}
}

// sourceFailed records a source-level failure and captures diagnostics.
// Only fatal errors are returned.
func (w *Worker) sourceFailed(ctx context.Context, src crawler.Source, summary *Summary, stage string, err error) error {
	summary.Err = err
	logger.ForSource(string(src.Name)).Error().
		Err(err).
		Str("stage", stage).
		Msg("Source failed, continuing with other sources")
	if scrapeerrors.IsFatal(err) {
		return err
	}
	w.snapshot(ctx, src, stage)
	return nil
}

func (w *Worker) snapshot(ctx context.Context, src crawler.Source, stage string) {
	label := strings.ToLower(strings.ReplaceAll(string(src.Name), " ", "-")) + "-" + stage
	path, err := w.nav.Snapshot(ctx, label)
	if err != nil {
		logger.ForSource(string(src.Name)).Debug().Err(err).Msg("No diagnostic snapshot")
		return
	}
	logger.ForSource(string(src.Name)).Info().Str("path", path).Msg("Saved diagnostic snapshot")
}

// publish announces newly inserted items; failures are logged only
func (w *Worker) publish(items []model.Item, result sink.Result) int {
	if w.publisher == nil {
		return 0
	}
	var inserted []model.Item
	for i, item := range items {
		if i < len(result.Statuses) && result.Statuses[i] == sink.StatusInserted {
			inserted = append(inserted, item)
		}
	}
	if len(inserted) == 0 {
		return 0
	}

	log := logger.ForComponent("publisher")
	n, err := publisher.PublishItems(w.publisher, inserted)
	if err != nil {
		log.Error().Err(scrapeerrors.NewPublisher("redis", "publish failed", err)).Int("published", n).Msg("Publish failed")
	}
	if err := w.publisher.TrimStreams(); err != nil {
		log.Error().Err(err).Msg("Stream trimming failed")
	}
	return n
}

// RunPrices loads the price history for ticker between from and to and
// persists the parsed bars
func (w *Worker) RunPrices(ctx context.Context, ticker string, from, to time.Time) (*PriceReport, error) {
	report := &PriceReport{RunID: uuid.NewString(), Ticker: strings.ToUpper(ticker)}
	log := logger.ForComponent("worker").WithFields(logger.Fields{
		"run_id": report.RunID,
		"ticker": report.Ticker,
	})

	page, err := w.nav.Load(ctx, w.prices.URLFor(ticker, from, to), w.prices.ReadyMarkers, w.prices.ReadyTimeout)
	if err != nil {
		w.priceSnapshot(ctx)
		return report, err
	}

	report.Bars, report.Skipped = crawler.ParsePriceTable(page, w.prices.Table, ticker)
	if len(report.Bars) == 0 {
		w.priceSnapshot(ctx)
		return report, scrapeerrors.NewExtraction("prices", "no price rows found for "+report.Ticker, nil)
	}
	log.Info().
		Int("bars", len(report.Bars)).
		Int("skipped", report.Skipped).
		Msg("Parsed price history")

	report.Persist, report.PersistErr = w.sink.WritePrices(ctx, report.Ticker, report.Bars)
	if report.PersistErr != nil {
		log.Error().Err(report.PersistErr).Msg("Persistence aborted")
	}
	return report, nil
}

func (w *Worker) priceSnapshot(ctx context.Context) {
	if path, err := w.nav.Snapshot(ctx, "prices"); err == nil {
		logger.ForComponent("worker").Info().Str("path", path).Msg("Saved diagnostic snapshot")
	}
}

func flatten(summaries []*Summary) []Summary {
	out := make([]Summary, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, *s)
	}
	return out
}
