package helpers

import (
	"bytes"
	"fmt"
	"io"
	"math/rand"
	"strings"

	"golang.org/x/net/html/charset"
)

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
}

// RandomUserAgent returns a browser-like User-Agent string
func RandomUserAgent() string {
	return userAgents[rand.Intn(len(userAgents))]
}

// DecodeHTML converts an HTML body to UTF-8 using the Content-Type header and
// the document's own meta tags.
func DecodeHTML(body []byte, contentType string) (io.Reader, error) {
	encoding, name, _ := charset.DetermineEncoding(body, contentType)

	if strings.EqualFold(name, "utf-8") {
		return bytes.NewReader(body), nil
	}

	utf8Reader := encoding.NewDecoder().Reader(bytes.NewReader(body))
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, utf8Reader); err != nil {
		return nil, fmt.Errorf("failed to read converted UTF-8 body: %w", err)
	}

	return &buf, nil
}

// LooksLikeHTML reports whether data resembles an HTML document
func LooksLikeHTML(data []byte) bool {
	if len(data) < 50 {
		return false
	}
	head := strings.ToLower(string(data[:min(len(data), 2048)]))
	return strings.Contains(head, "<html") ||
		strings.Contains(head, "<!doctype") ||
		strings.Contains(head, "<body")
}
