package crawler

import (
	"strings"

	"sjsage522/stockscraper/helpers"
	"sjsage522/stockscraper/internal/browser"

	"github.com/PuerkitoBio/goquery"
)

// DiscoverLinks returns up to limit relevant item links from a listing page,
// in page order. A limit of zero or less means no cap. An empty result is
// not an error.
func DiscoverLinks(page *browser.Page, rules LinkRules, term string, limit int) []Link {
	if page == nil || page.Doc == nil || rules.Selector == "" {
		return nil
	}

	upperTerm := strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(term), "$"))
	lowerTerm := strings.ToLower(upperTerm)

	var links []Link
	seen := make(map[string]bool)

	page.Doc.Find(rules.Selector).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, ok := a.Attr("href")
		if !ok {
			return true
		}
		link := helpers.ResolveURL(page.URL, href)
		if link == "" || seen[link] {
			return true
		}

		title := linkTitle(a)
		if title == "" {
			return true
		}
		if !rules.allows(link) {
			return true
		}
		if rules.RequireTerm && upperTerm != "" &&
			!strings.Contains(title, upperTerm) &&
			!strings.Contains(strings.ToLower(link), lowerTerm) {
			return true
		}

		seen[link] = true
		links = append(links, Link{Title: title, URL: link})
		return limit <= 0 || len(links) < limit
	})

	return links
}

// allows applies the path allow-list and deny-list to a resolved URL
func (r LinkRules) allows(link string) bool {
	lower := strings.ToLower(link)
	for _, deny := range r.Deny {
		if deny != "" && strings.Contains(lower, strings.ToLower(deny)) {
			return false
		}
	}
	if len(r.Allow) == 0 {
		return true
	}
	for _, allow := range r.Allow {
		if strings.Contains(link, allow) {
			return true
		}
	}
	return false
}

func linkTitle(a *goquery.Selection) string {
	if title := visibleText(a); title != "" {
		return title
	}
	for _, attr := range []string{"title", "aria-label"} {
		if v, ok := a.Attr(attr); ok {
			if v = helpers.NormalizeSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}
