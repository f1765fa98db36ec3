package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"sjsage522/stockscraper/config"
	"sjsage522/stockscraper/internal/browser"
	"sjsage522/stockscraper/internal/crawler"
	"sjsage522/stockscraper/logger"
	"sjsage522/stockscraper/services/cache"
	"sjsage522/stockscraper/services/publisher"
	"sjsage522/stockscraper/services/sink"
	"sjsage522/stockscraper/services/worker"

	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	godotenv.Load()

	// Initialize logger first
	logger.Init()

	// Cancel the run on SIGINT/SIGTERM; the worker stops between items
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		logger.Default.Error().Err(err).Msg("Run failed")
		os.Exit(1)
	}
}

// Services holds all the initialized services
type Services struct {
	Browser   *browser.Session
	Cache     cache.CacheService
	Sink      sink.Sink
	Publisher publisher.Publisher
	Worker    *worker.Worker
}

// Cleanup cleans up all services
func (s *Services) Cleanup() {
	if s.Browser != nil {
		s.Browser.Close()
	}
	if s.Sink != nil {
		if err := s.Sink.Close(); err != nil {
			logger.Default.Warn().Err(err).Msg("Failed to close sink")
		}
	}
	if s.Publisher != nil {
		s.Publisher.Close()
	}
}

// initializeServices builds the browser session, sink and optional cache and
// publisher, then wires them into a worker
func initializeServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	log := logger.Default
	services := &Services{}

	selectors, err := config.LoadSelectors(cfg.SelectorsFile)
	if err != nil {
		return nil, err
	}
	if selectors, err = selectors.Only(cfg.Sources); err != nil {
		return nil, fmt.Errorf("invalid SOURCES: %w", err)
	}
	sources, err := crawler.BuildSources(selectors)
	if err != nil {
		return nil, err
	}

	// Initialize cache service
	var blocks *cache.RateLimitBlocks
	if cfg.MemcacheAddr != "" {
		memcacheService := cache.NewMemcacheService(cfg.MemcacheAddr)
		if err := memcacheService.Ping(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.MemcacheAddr).Msg("Memcache unavailable, rate-limit blocks disabled")
		} else {
			services.Cache = memcacheService
			blocks = cache.NewRateLimitBlocks(memcacheService, cfg.RateLimitBlock)
			log.Info().Str("addr", cfg.MemcacheAddr).Msg("Connected to Memcache")
		}
	}

	// Initialize sink
	services.Sink, err = sink.New(sink.Config{
		Type:        sink.Type(cfg.SinkType),
		OutputDir:   cfg.OutputDir,
		Driver:      cfg.DatabaseDriver,
		DSN:         cfg.DatabaseDSN,
		AutoMigrate: cfg.AutoMigrate,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sink: %w", err)
	}

	// Initialize publisher
	if cfg.RedisAddr != "" {
		redisPublisher := publisher.NewRedisPublisher(
			ctx,
			cfg.RedisAddr,
			cfg.RedisDB,
			cfg.RedisStream,
			cfg.RedisStreamMaxLength,
		)
		if err := redisPublisher.Ping(); err != nil {
			redisPublisher.Close()
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("Redis unavailable, notifications disabled")
		} else {
			services.Publisher = redisPublisher
			log.Info().
				Str("addr", cfg.RedisAddr).
				Int("db", cfg.RedisDB).
				Str("stream", cfg.RedisStream).
				Msg("Connected to Redis")
		}
	}

	// Open the browser session last; failing here aborts the run
	session, err := browser.Open(ctx, browser.Options{
		Addr:             cfg.BrowserAddr,
		Token:            cfg.BrowserToken,
		FlareSolverrAddr: cfg.FlareSolverrAddr,
		DiagnosticsDir:   cfg.DiagnosticsDir,
		Blocks:           blocks,
	})
	if err != nil {
		services.Cleanup()
		return nil, err
	}
	services.Browser = session

	services.Worker = worker.NewWorker(worker.Options{
		Navigator:  session,
		Sources:    sources,
		Prices:     crawler.BuildPriceSource(selectors),
		Sink:       services.Sink,
		Publisher:  services.Publisher,
		Pacer:      worker.NewPacer(cfg.PaceBase, cfg.PaceJitter),
		TermPause:  cfg.TermPause,
		WindowDays: cfg.WindowDays,
	})

	return services, nil
}
