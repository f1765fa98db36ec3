package helpers

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeHTML_UTF8(t *testing.T) {
	body := []byte(`<html><head><meta charset="utf-8"></head><body>Apple – earnings</body></html>`)

	reader, err := DecodeHTML(body, "text/html; charset=utf-8")
	require.NoError(t, err)

	out, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Contains(t, string(out), "Apple – earnings")
}

func TestDecodeHTML_Latin1(t *testing.T) {
	// "café" in ISO-8859-1
	body := append([]byte("<html><body>caf"), 0xe9)
	body = append(body, []byte("</body></html>")...)

	reader, err := DecodeHTML(body, "text/html; charset=iso-8859-1")
	require.NoError(t, err)

	out, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Contains(t, string(out), "café")
}

func TestLooksLikeHTML(t *testing.T) {
	assert.True(t, LooksLikeHTML([]byte("<!DOCTYPE html><html><body>some padding text for length</body></html>")))
	assert.False(t, LooksLikeHTML([]byte(`{"error":"navigation timeout exceeded while waiting"}`)))
	assert.False(t, LooksLikeHTML([]byte("<html>")))
}

func TestRandomUserAgent(t *testing.T) {
	assert.Contains(t, userAgents, RandomUserAgent())
}
