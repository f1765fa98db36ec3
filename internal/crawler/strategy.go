package crawler

import (
	"strings"

	"sjsage522/stockscraper/config"
	"sjsage522/stockscraper/helpers"

	"github.com/PuerkitoBio/goquery"
)

// Strategy pulls one value out of a selection. ok is false when the
// strategy's target is absent or empty.
type Strategy interface {
	Extract(s *goquery.Selection) (value string, ok bool)
}

// StrategyFunc adapts a function to Strategy
type StrategyFunc func(*goquery.Selection) (string, bool)

// Extract implements Strategy
func (f StrategyFunc) Extract(s *goquery.Selection) (string, bool) {
	return f(s)
}

// Chain is a prioritized list of strategies; the first non-empty result wins
type Chain []Strategy

// Extract implements Strategy
func (c Chain) Extract(s *goquery.Selection) (string, bool) {
	for _, strategy := range c {
		if strategy == nil {
			continue
		}
		if value, ok := strategy.Extract(s); ok && value != "" {
			return value, true
		}
	}
	return "", false
}

// FirstOf builds a Chain
func FirstOf(strategies ...Strategy) Chain {
	return Chain(strategies)
}

// Text returns the visible text of the first element matching selector
func Text(selector string) Strategy {
	return StrategyFunc(func(s *goquery.Selection) (string, bool) {
		sel := find(s, selector).First()
		if sel.Length() == 0 {
			return "", false
		}
		text := visibleText(sel)
		return text, text != ""
	})
}

// Attr returns attr from the first element matching selector that carries a
// non-empty value for it
func Attr(selector, attr string) Strategy {
	return StrategyFunc(func(s *goquery.Selection) (string, bool) {
		var value string
		find(s, selector).EachWithBreak(func(_ int, el *goquery.Selection) bool {
			if v, exists := el.Attr(attr); exists && strings.TrimSpace(v) != "" {
				value = strings.TrimSpace(v)
				return false
			}
			return true
		})
		return value, value != ""
	})
}

// JoinText joins the text of every element matching selector, in document
// order, with single spaces
func JoinText(selector string) Strategy {
	return StrategyFunc(func(s *goquery.Selection) (string, bool) {
		var parts []string
		find(s, selector).Each(func(_ int, el *goquery.Selection) {
			if text := visibleText(el); text != "" {
				parts = append(parts, text)
			}
		})
		joined := strings.Join(parts, " ")
		return joined, joined != ""
	})
}

// OwnText returns the text nodes directly under the first element matching
// selector, ignoring nested elements
func OwnText(selector string) Strategy {
	return StrategyFunc(func(s *goquery.Selection) (string, bool) {
		sel := find(s, selector).First()
		if sel.Length() == 0 {
			return "", false
		}
		var parts []string
		sel.Contents().Each(func(_ int, c *goquery.Selection) {
			if goquery.NodeName(c) == "#text" {
				parts = append(parts, c.Text())
			}
		})
		text := helpers.NormalizeSpace(strings.Join(parts, " "))
		return text, text != ""
	})
}

// FromSpecs converts operator rules into a Chain
func FromSpecs(specs []config.RuleSpec) Chain {
	chain := make(Chain, 0, len(specs))
	for _, spec := range specs {
		switch {
		case spec.Attr != "":
			chain = append(chain, Attr(spec.Selector, spec.Attr))
		case spec.Join:
			chain = append(chain, JoinText(spec.Selector))
		case spec.Own:
			chain = append(chain, OwnText(spec.Selector))
		default:
			chain = append(chain, Text(spec.Selector))
		}
	}
	return chain
}

// find matches selector against s itself and its descendants
func find(s *goquery.Selection, selector string) *goquery.Selection {
	return s.Filter(selector).AddSelection(s.Find(selector))
}

// visibleText returns whitespace-normalized text without script and style
func visibleText(sel *goquery.Selection) string {
	clone := sel.Clone()
	clone.Find("script, style, noscript").Remove()
	return helpers.NormalizeSpace(clone.Text())
}
