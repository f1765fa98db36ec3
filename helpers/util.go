package helpers

import (
	"math"
	"net/url"
	"strconv"
	"strings"
)

// NormalizeSpace collapses runs of whitespace into single spaces
func NormalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ResolveURL resolves href against base. It returns "" when either cannot be
// parsed.
func ResolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if ref.IsAbs() {
		return ref.String()
	}
	b, err := url.Parse(base)
	if err != nil {
		return ""
	}
	return b.ResolveReference(ref).String()
}

// ParseCount parses engagement counters such as "1,204", "3.4K" or
// "12 Likes. Like". Anything without a number yields 0.
func ParseCount(s string) int {
	s = strings.TrimSpace(s)
	start := strings.IndexFunc(s, isDigit)
	if start < 0 {
		return 0
	}

	end := start
	for end < len(s) && (isDigit(rune(s[end])) || s[end] == ',' || s[end] == '.') {
		end++
	}
	number := strings.ReplaceAll(s[start:end], ",", "")
	value, err := strconv.ParseFloat(number, 64)
	if err != nil {
		return 0
	}

	if end < len(s) {
		switch s[end] {
		case 'K', 'k':
			value *= 1_000
		case 'M', 'm':
			value *= 1_000_000
		case 'B', 'b':
			value *= 1_000_000_000
		}
	}
	return int(math.Round(value))
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
