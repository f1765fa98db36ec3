package helpers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCount(t *testing.T) {
	testCases := []struct {
		in   string
		want int
	}{
		{in: "", want: 0},
		{in: "0", want: 0},
		{in: "42", want: 42},
		{in: "1,204", want: 1204},
		{in: "3.4K", want: 3400},
		{in: "2M", want: 2000000},
		{in: "12 Reposts. Repost", want: 12},
		{in: "Like", want: 0},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.want, ParseCount(tc.in), tc.in)
	}
}

func TestResolveURL(t *testing.T) {
	testCases := []struct {
		base, href, want string
	}{
		{base: "https://www.reuters.com/site-search/?query=AAPL", href: "/business/apple-1/", want: "https://www.reuters.com/business/apple-1/"},
		{base: "https://finance.yahoo.com/quote/AAPL/news", href: "https://finance.yahoo.com/news/a.html", want: "https://finance.yahoo.com/news/a.html"},
		{base: "https://finance.yahoo.com/", href: "//finance.yahoo.com/news/b.html", want: "https://finance.yahoo.com/news/b.html"},
		{base: "https://finance.yahoo.com/", href: "  ", want: ""},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.want, ResolveURL(tc.base, tc.href))
	}
}

func TestNormalizeSpace(t *testing.T) {
	assert.Equal(t, "Apple shares rise", NormalizeSpace("  Apple\n\tshares   rise "))
}
