package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	SinkFile = "file"
	SinkSQL  = "sql"
)

// Config represents the application configuration
type Config struct {
	// Browser service configuration
	BrowserAddr      string
	BrowserToken     string
	FlareSolverrAddr string
	DiagnosticsDir   string

	// Pipeline configuration
	WindowDays int
	PaceBase   time.Duration
	PaceJitter time.Duration
	TermPause  time.Duration

	// Sink configuration
	SinkType       string
	OutputDir      string
	DatabaseDriver string
	DatabaseDSN    string
	AutoMigrate    bool

	// Redis configuration (empty address disables stream notifications)
	RedisAddr            string
	RedisDB              int
	RedisStream          string
	RedisStreamMaxLength int

	// Memcache configuration (empty address disables rate-limit blocks)
	MemcacheAddr   string
	RateLimitBlock time.Duration

	// Selector configuration file; empty uses the embedded defaults
	SelectorsFile string

	// Sources restricts a run to the named sources; empty runs all of them
	Sources []string

	// Environment
	Environment string
}

// LoadConfig loads the configuration from environment variables with defaults
func LoadConfig() *Config {
	return &Config{
		BrowserAddr:          strings.TrimRight(getEnv("BROWSER_ADDR", "http://localhost:3000"), "/"),
		BrowserToken:         getEnv("BROWSER_TOKEN", ""),
		FlareSolverrAddr:     strings.TrimRight(getEnv("FLARESOLVERR_ADDR", ""), "/"),
		DiagnosticsDir:       getEnv("DIAGNOSTICS_DIR", "./diagnostics"),
		WindowDays:           getEnvInt("WINDOW_DAYS", 14),
		PaceBase:             time.Duration(getEnvInt("PACE_BASE_MS", 2000)) * time.Millisecond,
		PaceJitter:           time.Duration(getEnvInt("PACE_JITTER_MS", 1000)) * time.Millisecond,
		TermPause:            time.Duration(getEnvInt("TERM_PAUSE_MS", 5000)) * time.Millisecond,
		SinkType:             getEnv("SINK_TYPE", SinkFile),
		OutputDir:            getEnv("OUTPUT_DIR", "./scraped_data"),
		DatabaseDriver:       getEnv("DATABASE_DRIVER", "postgres"),
		DatabaseDSN:          getEnv("DATABASE_DSN", ""),
		AutoMigrate:          getEnvBool("SINK_AUTO_MIGRATE", false),
		RedisAddr:            getEnv("REDIS_ADDR", ""),
		RedisDB:              getEnvInt("REDIS_DB", 0),
		RedisStream:          getEnv("REDIS_STREAM", "stockscraper"),
		RedisStreamMaxLength: getEnvInt("REDIS_STREAM_MAX_LENGTH", 1000),
		MemcacheAddr:         getEnv("MEMCACHE_ADDR", ""),
		RateLimitBlock:       time.Duration(getEnvInt("RATE_LIMIT_BLOCK_SECONDS", 300)) * time.Second,
		SelectorsFile:        getEnv("SELECTORS_FILE", ""),
		Sources:              getEnvList("SOURCES"),
		Environment:          getEnv("SCRAPER_ENVIRONMENT", "development"),
	}
}

// Validate checks the configuration for values the pipeline cannot run with
func (c *Config) Validate() error {
	if c.BrowserAddr == "" {
		return fmt.Errorf("BROWSER_ADDR is required")
	}
	if c.WindowDays <= 0 {
		return fmt.Errorf("WINDOW_DAYS must be positive, got %d", c.WindowDays)
	}
	if c.PaceBase < 0 || c.PaceJitter < 0 || c.TermPause < 0 {
		return fmt.Errorf("pacing delays must not be negative")
	}
	switch c.SinkType {
	case SinkFile:
		if c.OutputDir == "" {
			return fmt.Errorf("OUTPUT_DIR is required for the file sink")
		}
	case SinkSQL:
		if c.DatabaseDSN == "" {
			return fmt.Errorf("DATABASE_DSN is required for the sql sink")
		}
		if c.DatabaseDriver != "postgres" && c.DatabaseDriver != "sqlite" {
			return fmt.Errorf("unsupported DATABASE_DRIVER %q", c.DatabaseDriver)
		}
	default:
		return fmt.Errorf("unsupported SINK_TYPE %q", c.SinkType)
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvList splits a comma separated variable, dropping blank entries
func getEnvList(key string) []string {
	var out []string
	for _, v := range strings.Split(getEnv(key, ""), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnvBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}
