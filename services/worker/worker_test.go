package worker

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"sjsage522/stockscraper/internal/browser"
	"sjsage522/stockscraper/internal/crawler"
	"sjsage522/stockscraper/internal/model"
	scrapeerrors "sjsage522/stockscraper/pkg/errors"
	"sjsage522/stockscraper/services/publisher"
	"sjsage522/stockscraper/services/sink"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)

// fakeNavigator serves canned HTML by URL
type fakeNavigator struct {
	pages     map[string]string
	scrolled  map[string][]string
	errs      map[string]error
	failOnce  map[string]error
	broken    map[string]bool
	loads     []string
	snapshots []string
}

var _ Navigator = (*fakeNavigator)(nil)

func newFakeNavigator() *fakeNavigator {
	return &fakeNavigator{
		pages:    make(map[string]string),
		scrolled: make(map[string][]string),
		errs:     make(map[string]error),
		failOnce: make(map[string]error),
		broken:   make(map[string]bool),
	}
}

func (f *fakeNavigator) Load(_ context.Context, url string, markers []string, _ time.Duration) (*browser.Page, error) {
	f.loads = append(f.loads, url)
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	if err, ok := f.failOnce[url]; ok {
		delete(f.failOnce, url)
		return nil, err
	}
	if f.broken[url] {
		return &browser.Page{URL: url}, nil
	}
	html, ok := f.pages[url]
	if !ok {
		return nil, scrapeerrors.NewNavigation("fake", "no page for "+url, nil)
	}
	return browser.NewPage(url, strings.NewReader(html), markers)
}

func (f *fakeNavigator) LoadScrolled(_ context.Context, url string, markers []string, _ time.Duration, _ int, _ time.Duration) ([]*browser.Page, error) {
	f.loads = append(f.loads, url)
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	var pages []*browser.Page
	for _, html := range f.scrolled[url] {
		page, err := browser.NewPage(url, strings.NewReader(html), markers)
		if err != nil {
			return nil, err
		}
		pages = append(pages, page)
	}
	return pages, nil
}

func (f *fakeNavigator) Snapshot(_ context.Context, label string) (string, error) {
	f.snapshots = append(f.snapshots, label)
	return "diagnostics/error-" + label + ".html", nil
}

// recordingSink keeps what it was asked to persist
type recordingSink struct {
	items []model.Item
	bars  []model.PriceBar
	err   error
}

var _ sink.Sink = (*recordingSink)(nil)

func (s *recordingSink) WriteItems(_ context.Context, _ string, items []model.Item) (sink.Result, error) {
	s.items = append(s.items, items...)
	return s.result(len(items))
}

func (s *recordingSink) WritePrices(_ context.Context, _ string, bars []model.PriceBar) (sink.Result, error) {
	s.bars = append(s.bars, bars...)
	return s.result(len(bars))
}

func (s *recordingSink) result(n int) (sink.Result, error) {
	r := sink.Result{Target: "memory", Statuses: make([]sink.Status, n)}
	for i := range r.Statuses {
		if s.err != nil {
			r.Statuses[i] = sink.StatusNotAttempted
		} else {
			r.Statuses[i] = sink.StatusInserted
		}
	}
	return r, s.err
}

func (s *recordingSink) Close() error { return nil }

// MockPublisher records published topics
type MockPublisher struct {
	topics  []string
	trimmed int
}

var _ publisher.Publisher = (*MockPublisher)(nil)

func (m *MockPublisher) Publish(topic, _ string, _ []byte) error {
	m.topics = append(m.topics, topic)
	return nil
}

func (m *MockPublisher) TrimStreams() error {
	m.trimmed++
	return nil
}

func (m *MockPublisher) Close() error { return nil }

func articleSource(name, host string, itemCap int) crawler.Source {
	return crawler.Source{
		Name:         model.Source(name),
		Kind:         model.KindArticle,
		ListingURL:   "https://" + host + "/news/{symbol}",
		ReadyMarkers: []string{"ul.news"},
		LinkCap:      20,
		ItemCap:      itemCap,
		Links:        crawler.LinkRules{Selector: "ul.news a"},
		ItemMarkers:  []string{"article"},
		Fields: crawler.FieldRules{
			crawler.FieldTitle:       crawler.FirstOf(crawler.Text("h1")),
			crawler.FieldBody:        crawler.FirstOf(crawler.JoinText("article p")),
			crawler.FieldPublishedAt: crawler.DefaultTimestampChain,
		},
	}
}

func postSource() crawler.Source {
	return crawler.Source{
		Name:         model.SourceX,
		Kind:         model.KindPost,
		ListingURL:   "https://x.test/search?q={term}",
		ReadyMarkers: []string{"article"},
		ItemCap:      50,
		ItemSelector: "article",
		ScrollSteps:  3,
		Fields: crawler.FieldRules{
			crawler.FieldText:        crawler.FirstOf(crawler.Text("p.text")),
			crawler.FieldUsername:    crawler.FirstOf(crawler.Text("span.user")),
			crawler.FieldPublishedAt: crawler.DefaultTimestampChain,
		},
	}
}

func listingHTML(hrefs ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body><ul class="news">`)
	for i, href := range hrefs {
		fmt.Fprintf(&b, `<li><a href="%s">AAPL headline %d</a></li>`, href, i)
	}
	b.WriteString(`</ul></body></html>`)
	return b.String()
}

func articleHTML(title string, age time.Duration) string {
	ts := ""
	if age >= 0 {
		ts = fmt.Sprintf(`<time datetime="%s"></time>`, testNow.Add(-age).Format(time.RFC3339))
	}
	return fmt.Sprintf(`<html><body><article><h1>%s</h1>%s<p>Body of %s.</p></article></body></html>`, title, ts, title)
}

func postHTML(posts ...string) string {
	return "<html><body>" + strings.Join(posts, "") + "</body></html>"
}

func post(text string, age time.Duration) string {
	ts := ""
	if age >= 0 {
		ts = fmt.Sprintf(`<time datetime="%s"></time>`, testNow.Add(-age).Format(time.RFC3339))
	}
	return fmt.Sprintf(`<article><span class="user">trader</span><p class="text">%s</p>%s</article>`, text, ts)
}

const day = 24 * time.Hour

func newTestWorker(nav Navigator, s sink.Sink, pub publisher.Publisher, sources ...crawler.Source) *Worker {
	return NewWorker(Options{
		Navigator:  nav,
		Sources:    sources,
		Sink:       s,
		Publisher:  pub,
		Pacer:      NewPacer(0, 0),
		WindowDays: 14,
		Now:        func() time.Time { return testNow },
	})
}

func TestRun_MergesSortsAndIsolatesFailures(t *testing.T) {
	nav := newFakeNavigator()
	nav.pages["https://alpha.test/news/AAPL"] = listingHTML("/story/1", "/story/2", "/story/3", "/story/4", "/story/5")
	nav.pages["https://alpha.test/story/1"] = articleHTML("One", 2*day)
	nav.pages["https://alpha.test/story/2"] = articleHTML("Two", 20*day)
	nav.pages["https://alpha.test/story/3"] = articleHTML("Three", -1)
	nav.errs["https://alpha.test/story/4"] = scrapeerrors.NewNavigation("Alpha", "timeout", nil)
	nav.pages["https://alpha.test/story/5"] = articleHTML("Five", day)
	nav.errs["https://beta.test/news/AAPL"] = scrapeerrors.NewNavigation("Beta", "listing never loaded", nil)
	nav.pages["https://gamma.test/news/AAPL"] = listingHTML("https://alpha.test/story/1")

	store := &recordingSink{}
	pub := &MockPublisher{}
	w := newTestWorker(nav, store, pub,
		articleSource("Alpha", "alpha.test", 10),
		articleSource("Beta", "beta.test", 10),
		articleSource("Gamma", "gamma.test", 10),
	)

	report, err := w.Run(context.Background(), Query{Symbol: "AAPL"})
	require.NoError(t, err)
	require.NotEmpty(t, report.RunID)

	require.Len(t, report.Items, 2)
	assert.Equal(t, "https://alpha.test/story/5", report.Items[0].URL)
	assert.Equal(t, "https://alpha.test/story/1", report.Items[1].URL)
	assert.Equal(t, "Five", report.Items[0].Title)
	assert.Equal(t, 1, report.Dropped)

	require.Len(t, report.Sources, 3)
	alpha, beta, gamma := report.Sources[0], report.Sources[1], report.Sources[2]

	assert.Equal(t, 5, alpha.Discovered)
	assert.Equal(t, 2, alpha.Accepted)
	assert.Equal(t, 2, alpha.States[StatePersisted])
	assert.Equal(t, 1, alpha.States[StateRejectedOld])
	assert.Equal(t, 1, alpha.States[StateRejectedNoDate])
	assert.Equal(t, 1, alpha.States[StateFailed])
	assert.NoError(t, alpha.Err)

	assert.Error(t, beta.Err)
	assert.Zero(t, beta.Discovered)
	assert.Equal(t, []string{"alpha-item", "beta-listing"}, nav.snapshots)

	assert.Equal(t, 1, gamma.Accepted)
	assert.Equal(t, 1, gamma.Duplicates)
	assert.Zero(t, gamma.States[StatePersisted])

	assert.Len(t, store.items, 2)
	assert.Equal(t, 2, report.Persist.Count(sink.StatusInserted))
	assert.NoError(t, report.PersistErr)

	assert.Equal(t, 2, report.Published)
	assert.Equal(t, []string{"article", "article"}, pub.topics)
	assert.Equal(t, 1, pub.trimmed)

	assert.Equal(t, report.Items[:1], report.Recent(1))
	assert.Len(t, report.Recent(5), 2)
}

func TestRun_StopsAtItemCap(t *testing.T) {
	nav := newFakeNavigator()
	hrefs := make([]string, 12)
	for i := range hrefs {
		hrefs[i] = fmt.Sprintf("/story/%d", i)
		nav.pages["https://alpha.test"+hrefs[i]] = articleHTML(fmt.Sprintf("Story %d", i), time.Duration(i+1)*time.Hour)
	}
	nav.pages["https://alpha.test/news/AAPL"] = listingHTML(hrefs...)

	w := newTestWorker(nav, &recordingSink{}, nil, articleSource("Alpha", "alpha.test", 10))

	report, err := w.Run(context.Background(), Query{Symbol: "AAPL"})
	require.NoError(t, err)

	assert.Len(t, report.Items, 10)
	assert.Len(t, nav.loads, 11)
	assert.Equal(t, 12, report.Sources[0].Discovered)
	assert.Equal(t, 10, report.Sources[0].Accepted)
	assert.Equal(t, 0, report.Published)
}

func TestRun_ItemPanicSkipsOnlyThatItem(t *testing.T) {
	nav := newFakeNavigator()
	nav.pages["https://alpha.test/news/AAPL"] = listingHTML("/story/1", "/story/2")
	nav.broken["https://alpha.test/story/1"] = true
	nav.pages["https://alpha.test/story/2"] = articleHTML("Two", day)

	w := newTestWorker(nav, &recordingSink{}, nil, articleSource("Alpha", "alpha.test", 10))

	report, err := w.Run(context.Background(), Query{Symbol: "AAPL"})
	require.NoError(t, err)

	require.Len(t, report.Items, 1)
	assert.Equal(t, "Two", report.Items[0].Title)
	assert.Equal(t, 1, report.Sources[0].States[StateFailed])
	assert.Equal(t, []string{"alpha-item"}, nav.snapshots)
}

func TestRun_RetriesItemNavigationOnce(t *testing.T) {
	nav := newFakeNavigator()
	nav.pages["https://alpha.test/news/AAPL"] = listingHTML("/story/1", "/story/2")
	nav.pages["https://alpha.test/story/1"] = articleHTML("One", day)
	nav.failOnce["https://alpha.test/story/1"] = scrapeerrors.NewNavigation("Alpha", "timeout", nil)
	nav.pages["https://alpha.test/story/2"] = articleHTML("Two", day)
	nav.errs["https://alpha.test/story/2"] = scrapeerrors.NewNavigation("Alpha", "timeout", nil)

	w := newTestWorker(nav, &recordingSink{}, nil, articleSource("Alpha", "alpha.test", 10))

	report, err := w.Run(context.Background(), Query{Symbol: "AAPL"})
	require.NoError(t, err)

	require.Len(t, report.Items, 1)
	assert.Equal(t, "One", report.Items[0].Title)
	assert.Equal(t, []string{
		"https://alpha.test/news/AAPL",
		"https://alpha.test/story/1",
		"https://alpha.test/story/1",
		"https://alpha.test/story/2",
		"https://alpha.test/story/2",
	}, nav.loads)
	assert.Equal(t, 1, report.Sources[0].States[StateFailed])
	assert.Equal(t, []string{"alpha-item"}, nav.snapshots)
}

func TestRun_RateLimitedItemIsNotRetried(t *testing.T) {
	nav := newFakeNavigator()
	nav.pages["https://alpha.test/news/AAPL"] = listingHTML("/story/1")
	nav.errs["https://alpha.test/story/1"] = scrapeerrors.NewRateLimit("alpha.test", time.Minute)

	w := newTestWorker(nav, &recordingSink{}, nil, articleSource("Alpha", "alpha.test", 10))

	report, err := w.Run(context.Background(), Query{Symbol: "AAPL"})
	require.NoError(t, err)

	assert.Empty(t, report.Items)
	assert.Equal(t, []string{"https://alpha.test/news/AAPL", "https://alpha.test/story/1"}, nav.loads)
	assert.Equal(t, 1, report.Sources[0].States[StateFailed])
}

func TestRun_FatalSessionErrorAbortsRun(t *testing.T) {
	nav := newFakeNavigator()
	nav.errs["https://alpha.test/news/AAPL"] = scrapeerrors.NewSession("browser gone", nil)
	store := &recordingSink{}

	w := newTestWorker(nav, store, nil,
		articleSource("Alpha", "alpha.test", 10),
		articleSource("Beta", "beta.test", 10),
	)

	report, err := w.Run(context.Background(), Query{Symbol: "AAPL"})

	require.Error(t, err)
	assert.True(t, scrapeerrors.IsFatal(err))
	assert.Equal(t, []string{"https://alpha.test/news/AAPL"}, nav.loads)
	assert.Empty(t, store.items)
	assert.Len(t, report.Sources, 1)
}

func TestRun_CancelledContext(t *testing.T) {
	nav := newFakeNavigator()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := newTestWorker(nav, &recordingSink{}, nil, articleSource("Alpha", "alpha.test", 10))

	_, err := w.Run(ctx, Query{Symbol: "AAPL"})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, nav.loads)
}

func TestRun_PersistenceFailureKeepsItems(t *testing.T) {
	nav := newFakeNavigator()
	nav.pages["https://alpha.test/news/AAPL"] = listingHTML("/story/1")
	nav.pages["https://alpha.test/story/1"] = articleHTML("One", day)
	store := &recordingSink{err: scrapeerrors.NewPersistence("items", "connection lost", nil)}
	pub := &MockPublisher{}

	w := newTestWorker(nav, store, pub, articleSource("Alpha", "alpha.test", 10))

	report, err := w.Run(context.Background(), Query{Symbol: "AAPL"})
	require.NoError(t, err)

	assert.Len(t, report.Items, 1)
	assert.Error(t, report.PersistErr)
	assert.Equal(t, 1, report.Sources[0].States[StateFailed])
	assert.Empty(t, pub.topics)
}

func TestRun_PostsAcrossTerms(t *testing.T) {
	nav := newFakeNavigator()
	nav.scrolled["https://x.test/search?q=%24AAPL"] = []string{
		postHTML(post("AAPL up", time.Hour), post("AAPL old", 30*day)),
		postHTML(post("AAPL up", time.Hour), post("AAPL old", 30*day)),
		postHTML(post("never reached", time.Hour)),
	}
	nav.scrolled["https://x.test/search?q=Apple"] = []string{
		postHTML(post("AAPL up", time.Hour), post("Apple undated", -1), post("Apple news", 2*time.Hour)),
	}
	store := &recordingSink{}
	pub := &MockPublisher{}

	w := newTestWorker(nav, store, pub, articleSource("Alpha", "alpha.test", 10), postSource())

	report, err := w.Run(context.Background(), Query{
		Symbol:  "$AAPL",
		Aliases: []string{"Apple", "$aapl"},
		Kind:    model.KindPost,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"https://x.test/search?q=%24AAPL", "https://x.test/search?q=Apple"}, nav.loads)

	require.Len(t, report.Items, 2)
	assert.Equal(t, "AAPL up", report.Items[0].Title)
	assert.Equal(t, "$AAPL", report.Items[0].QueryTerm)
	assert.Equal(t, "Apple news", report.Items[1].Title)
	assert.Equal(t, "Apple", report.Items[1].QueryTerm)

	require.Len(t, report.Sources, 1)
	x := report.Sources[0]
	assert.Equal(t, 4, x.Discovered)
	assert.Equal(t, 2, x.States[StatePersisted])
	assert.Equal(t, 1, x.States[StateRejectedOld])
	assert.Equal(t, 1, x.States[StateRejectedNoDate])

	assert.Equal(t, []string{"post", "post"}, pub.topics)
}

func TestRun_PostSearchFailureIsolatedPerTerm(t *testing.T) {
	nav := newFakeNavigator()
	nav.errs["https://x.test/search?q=%24AAPL"] = scrapeerrors.NewNavigation("X", "blocked", nil)
	nav.scrolled["https://x.test/search?q=Apple"] = []string{postHTML(post("Apple news", time.Hour))}

	w := newTestWorker(nav, &recordingSink{}, nil, postSource())

	report, err := w.Run(context.Background(), Query{Symbol: "$AAPL", Aliases: []string{"Apple"}})
	require.NoError(t, err)

	assert.Len(t, report.Items, 1)
	assert.NoError(t, report.Sources[0].Err)
	assert.Equal(t, []string{"x-search-$AAPL"}, nav.snapshots)
}

const priceTable = `<html><body><table data-testid="history-table">
<thead><tr><th>Date</th><th>Open</th><th>High</th><th>Low</th><th>Close</th><th>Adj Close</th><th>Volume</th></tr></thead>
<tbody>
<tr><td>May 2, 2024</td><td>172.51</td><td>173.42</td><td>170.89</td><td>173.03</td><td>172.78</td><td>94,214,900</td></tr>
<tr><td>May 1, 2024</td><td>169.58</td><td>172.71</td><td>169.11</td><td>169.30</td><td>169.06</td><td>50,383,100</td></tr>
</tbody></table></body></html>`

func priceWorker(nav Navigator, s sink.Sink) *Worker {
	return NewWorker(Options{
		Navigator: nav,
		Sink:      s,
		Prices: crawler.PriceSource{
			ListingURL:   "https://prices.test/{symbol}?from={from}&to={to}",
			ReadyMarkers: []string{"table"},
			Table:        "table",
		},
	})
}

func TestRunPrices(t *testing.T) {
	from := time.Unix(1710288000, 0)
	to := time.Unix(1714521600, 0)
	nav := newFakeNavigator()
	nav.pages["https://prices.test/AAPL?from=1710288000&to=1714521600"] = priceTable
	store := &recordingSink{}

	report, err := priceWorker(nav, store).RunPrices(context.Background(), "aapl", from, to)
	require.NoError(t, err)

	assert.Equal(t, "AAPL", report.Ticker)
	assert.Len(t, report.Bars, 2)
	assert.Len(t, store.bars, 2)
	assert.Equal(t, "2024-05-01", store.bars[1].Date)
	assert.Equal(t, 2, report.Persist.Count(sink.StatusInserted))
}

func TestRunPrices_NoRows(t *testing.T) {
	from := time.Unix(1710288000, 0)
	to := time.Unix(1714521600, 0)
	nav := newFakeNavigator()
	nav.pages["https://prices.test/AAPL?from=1710288000&to=1714521600"] = "<html><body><table></table></body></html>"
	store := &recordingSink{}

	_, err := priceWorker(nav, store).RunPrices(context.Background(), "AAPL", from, to)

	require.Error(t, err)
	errType, _ := scrapeerrors.TypeOf(err)
	assert.Equal(t, scrapeerrors.ErrorTypeExtraction, errType)
	assert.Equal(t, []string{"prices"}, nav.snapshots)
	assert.Empty(t, store.bars)
}

func TestQueryTerms(t *testing.T) {
	q := Query{Symbol: "$AAPL", Aliases: []string{" Apple ", "", "$aapl", "AAPL"}}

	assert.Equal(t, []string{"$AAPL", "Apple", "AAPL"}, q.Terms())
}

func TestCandidateTransitions(t *testing.T) {
	c := newCandidate("https://example.com")

	assert.Error(t, c.advance(StateAccepted))
	require.NoError(t, c.advance(StateNavigated))
	require.NoError(t, c.advance(StateExtracted))
	require.NoError(t, c.advance(StateRejectedOld))
	assert.True(t, c.state.Terminal())
	assert.Error(t, c.advance(StatePersisted))
}

func TestPacer(t *testing.T) {
	p := NewPacer(10*time.Millisecond, 5*time.Millisecond)
	for i := 0; i < 20; i++ {
		d := p.Next()
		assert.GreaterOrEqual(t, d, 10*time.Millisecond)
		assert.Less(t, d, 15*time.Millisecond)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, NewPacer(time.Hour, 0).Wait(ctx), context.Canceled)

	var nilPacer *Pacer
	assert.NoError(t, nilPacer.Wait(context.Background()))
}
