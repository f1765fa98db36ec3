package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf).WithFields(Fields{"source": "Reuters", "term": "AAPL"})

	log.Info().Int("links", 3).Msg("discovered")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Reuters", entry["source"])
	assert.Equal(t, "AAPL", entry["term"])
	assert.Equal(t, float64(3), entry["links"])
	assert.Equal(t, "discovered", entry["message"])
}

func TestGetLogLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	assert.Equal(t, "warn", getLogLevel().String())

	t.Setenv("LOG_LEVEL", "")
	t.Setenv("SCRAPER_ENVIRONMENT", "production")
	assert.Equal(t, "info", getLogLevel().String())

	t.Setenv("SCRAPER_ENVIRONMENT", "development")
	assert.Equal(t, "debug", getLogLevel().String())
}
