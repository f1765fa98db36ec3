package crawler

import (
	"sjsage522/stockscraper/helpers"
	"sjsage522/stockscraper/internal/browser"
	"sjsage522/stockscraper/internal/model"

	"github.com/PuerkitoBio/goquery"
)

// field runs the chain configured for name; a missing chain or a chain where
// every strategy misses yields ""
func (r FieldRules) field(s *goquery.Selection, name string) string {
	chain, ok := r[name]
	if !ok {
		return ""
	}
	value, _ := chain.Extract(s)
	return value
}

// ExtractArticle builds an article from a loaded item page. Missing fields
// are left empty; the listing title is used when the page has none.
func ExtractArticle(page *browser.Page, rules FieldRules, source model.Source, symbol string, link Link) model.Item {
	root := page.Root()

	title := rules.field(root, FieldTitle)
	if title == "" {
		title = link.Title
	}
	body := rules.field(root, FieldBody)
	publishedAt := rules.field(root, FieldPublishedAt)

	return model.NewArticle(source, symbol, title, body, link.URL, publishedAt)
}

// ExtractPosts builds one post per element matching itemSelector. Elements
// without text are skipped since they cannot be identified.
func ExtractPosts(page *browser.Page, itemSelector string, rules FieldRules, source model.Source, term string) []model.Item {
	var posts []model.Item

	page.Doc.Find(itemSelector).Each(func(_ int, s *goquery.Selection) {
		text := rules.field(s, FieldText)
		if text == "" {
			return
		}
		engagement := model.Engagement{
			Reshares: helpers.ParseCount(rules.field(s, FieldReshares)),
			Likes:    helpers.ParseCount(rules.field(s, FieldLikes)),
		}
		posts = append(posts, model.NewPost(
			source,
			term,
			rules.field(s, FieldUsername),
			text,
			rules.field(s, FieldPublishedAt),
			engagement,
		))
	})

	return posts
}
