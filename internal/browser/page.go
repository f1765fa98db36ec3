package browser

import (
	"fmt"
	"io"

	"github.com/PuerkitoBio/goquery"
)

// LoadState tells callers whether the page reached its structural marker
type LoadState int

const (
	// Loaded means one of the requested markers is present
	Loaded LoadState = iota
	// Degraded means no marker appeared; extraction falls back to defaults
	Degraded
)

func (s LoadState) String() string {
	if s == Loaded {
		return "loaded"
	}
	return "degraded"
}

// Page is a loaded document. Pages are read-only snapshots of the shared
// browsing context at the time of the load.
type Page struct {
	URL    string
	Doc    *goquery.Document
	State  LoadState
	Marker string
}

// NewPage parses r and checks markers in priority order
func NewPage(url string, r io.Reader, markers []string) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", url, err)
	}

	page := &Page{URL: url, Doc: doc, State: Degraded}
	for _, marker := range markers {
		if marker == "" {
			continue
		}
		if doc.Find(marker).Length() > 0 {
			page.State = Loaded
			page.Marker = marker
			break
		}
	}
	return page, nil
}

// Degraded reports whether no structural marker was found
func (p *Page) Degraded() bool {
	return p.State == Degraded
}

// Root returns the document root selection
func (p *Page) Root() *goquery.Selection {
	return p.Doc.Selection
}
