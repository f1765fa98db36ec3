package model

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Kind distinguishes the two record shapes an Item can take
type Kind string

const (
	KindArticle Kind = "article"
	KindPost    Kind = "post"
)

// Source names the origin of an item
type Source string

const (
	SourceYahoo   Source = "Yahoo Finance"
	SourceReuters Source = "Reuters"
	SourceX       Source = "X"
)

const (
	// MaxBodyLength is the number of runes kept from an article body
	MaxBodyLength = 1000
	// Ellipsis is appended to a body cut at MaxBodyLength
	Ellipsis = "..."

	dateLayout = "2006-01-02"
)

// Engagement holds optional post counters
type Engagement struct {
	Reshares int `json:"retweets"`
	Likes    int `json:"likes"`
}

// Item is a normalized article or post. Build it with NewArticle or NewPost.
type Item struct {
	Kind          Kind        `json:"-"`
	Source        Source      `json:"-"`
	QueryTerm     string      `json:"-"`
	Title         string      `json:"-"`
	Body          string      `json:"-"`
	URL           string      `json:"-"`
	Username      string      `json:"-"`
	PublishedAt   string      `json:"-"`
	PublishedDate string      `json:"-"`
	PublishedTime time.Time   `json:"-"`
	Engagement    *Engagement `json:"-"`
}

// NewArticle creates an article item. An unparseable publishedAt leaves the
// item without a timestamp.
func NewArticle(source Source, symbol, title, body, url, publishedAt string) Item {
	item := Item{
		Kind:      KindArticle,
		Source:    source,
		QueryTerm: symbol,
		Title:     strings.TrimSpace(title),
		Body:      Truncate(strings.TrimSpace(body), MaxBodyLength),
		URL:       url,
	}
	item.setTimestamp(publishedAt)
	return item
}

// NewPost creates a social post item. Engagement is never nil on posts.
func NewPost(source Source, term, username, text, createdAt string, engagement Engagement) Item {
	item := Item{
		Kind:       KindPost,
		Source:     source,
		QueryTerm:  term,
		Title:      strings.TrimSpace(text),
		Username:   strings.TrimSpace(username),
		Engagement: &engagement,
	}
	item.setTimestamp(createdAt)
	return item
}

func (i *Item) setTimestamp(raw string) {
	raw = strings.TrimSpace(raw)
	t, ok := ParseTimestamp(raw)
	if !ok {
		return
	}
	i.PublishedAt = raw
	i.PublishedTime = t
	i.PublishedDate = t.UTC().Format(dateLayout)
}

// HasTimestamp reports whether the item carries a resolvable timestamp
func (i Item) HasTimestamp() bool {
	return i.PublishedAt != "" && !i.PublishedTime.IsZero()
}

// Key returns the identity key used for deduplication. Parts are quoted so
// no text can collide with a different text and timestamp pair.
func (i Item) Key() string {
	if i.Kind == KindPost {
		return "post:" + strconv.Quote(i.Title) + ":" + strconv.Quote(i.PublishedAt)
	}
	return "article:" + strconv.Quote(i.URL)
}

// Truncate cuts s to max runes and appends Ellipsis when it was longer
func Truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + Ellipsis
}

type articleJSON struct {
	Source        Source  `json:"source"`
	StockSymbol   string  `json:"stock_symbol"`
	Title         string  `json:"title"`
	MainText      string  `json:"main_text"`
	PublishedAt   *string `json:"published_at"`
	PublishedDate *string `json:"published_date"`
	URL           string  `json:"url"`
}

type postJSON struct {
	Username  string  `json:"username"`
	Text      string  `json:"text"`
	CreatedAt *string `json:"created_at"`
	Retweets  int     `json:"retweets"`
	Likes     int     `json:"likes"`
	Query     string  `json:"query"`
}

// MarshalJSON renders the article or post output record
func (i Item) MarshalJSON() ([]byte, error) {
	if i.Kind == KindPost {
		out := postJSON{
			Username:  i.Username,
			Text:      i.Title,
			CreatedAt: nullable(i.PublishedAt),
			Query:     i.QueryTerm,
		}
		if i.Engagement != nil {
			out.Retweets = i.Engagement.Reshares
			out.Likes = i.Engagement.Likes
		}
		return json.Marshal(out)
	}
	return json.Marshal(articleJSON{
		Source:        i.Source,
		StockSymbol:   i.QueryTerm,
		Title:         i.Title,
		MainText:      i.Body,
		PublishedAt:   nullable(i.PublishedAt),
		PublishedDate: nullable(i.PublishedDate),
		URL:           i.URL,
	})
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
