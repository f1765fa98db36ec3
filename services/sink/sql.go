package sink

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"sjsage522/stockscraper/internal/model"
	"sjsage522/stockscraper/logger"
	"sjsage522/stockscraper/migrations"
	scrapeerrors "sjsage522/stockscraper/pkg/errors"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	defaultMaxOpenConns    = 4
	defaultConnMaxLifetime = 5 * time.Minute
	pingTimeout            = 5 * time.Second
)

const (
	insertArticle = `INSERT INTO news_stories
		(source, stock_symbol, title, main_text, published_at, published_date, url)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (url) DO NOTHING`

	insertPost = `INSERT INTO x_posts
		(username, text, created_at, retweets, likes, query)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (text, created_at) DO NOTHING`

	insertPriceBar = `INSERT INTO stock_data
		(ticker, date, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (ticker, date) DO NOTHING`
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// SQLSink inserts records one row at a time with insert-or-ignore semantics.
// Every row is its own unit of work.
type SQLSink struct {
	db *sqlx.DB
}

// OpenSQLSink connects to the configured database and optionally migrates it
func OpenSQLSink(cfg Config) (*SQLSink, error) {
	if cfg.DSN == "" {
		return nil, scrapeerrors.NewConfiguration("DATABASE_DSN is required for the sql sink", nil)
	}

	db, err := sqlx.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if cfg.AutoMigrate {
		if err := migrations.Run(db.DB, cfg.Driver); err != nil {
			db.Close()
			return nil, err
		}
	}

	return NewSQLSink(db), nil
}

// NewSQLSink wraps an open database
func NewSQLSink(db *sqlx.DB) *SQLSink {
	return &SQLSink{db: db}
}

// WriteItems implements Sink
func (s *SQLSink) WriteItems(ctx context.Context, query string, items []model.Item) (Result, error) {
	return s.writeBatch(ctx, "items", len(items), func(i int) (string, []any) {
		item := items[i]
		if item.Kind == model.KindPost {
			var reshares, likes int
			if item.Engagement != nil {
				reshares, likes = item.Engagement.Reshares, item.Engagement.Likes
			}
			return insertPost, []any{
				nullString(item.Username),
				item.Title,
				nullString(item.PublishedAt),
				reshares,
				likes,
				item.QueryTerm,
			}
		}
		return insertArticle, []any{
			string(item.Source),
			item.QueryTerm,
			item.Title,
			nullString(item.Body),
			nullString(item.PublishedAt),
			nullString(item.PublishedDate),
			item.URL,
		}
	})
}

// WritePrices implements Sink
func (s *SQLSink) WritePrices(ctx context.Context, ticker string, bars []model.PriceBar) (Result, error) {
	return s.writeBatch(ctx, "stock_data", len(bars), func(i int) (string, []any) {
		bar := bars[i]
		return insertPriceBar, []any{bar.Ticker, bar.Date, bar.Open, bar.High, bar.Low, bar.Close, bar.Volume}
	})
}

// writeBatch runs n independent inserts over one connection. A failed row is
// followed by a ping: if the connection is gone the rest of the batch is
// abandoned, otherwise the row is marked failed and the batch continues.
func (s *SQLSink) writeBatch(ctx context.Context, target string, n int, row func(i int) (string, []any)) (Result, error) {
	log := logger.ForComponent("sql_sink")
	result := newResult(target, n, StatusNotAttempted)
	if n == 0 {
		return result, nil
	}

	conn, err := s.db.Connx(ctx)
	if err != nil {
		return result, scrapeerrors.NewPersistence(target, "failed to acquire connection", err)
	}
	defer conn.Close()

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return result, scrapeerrors.NewPersistence(target, "batch cancelled", err)
		}

		query, args := row(i)
		res, err := conn.ExecContext(ctx, conn.Rebind(query), args...)
		if err != nil {
			if pingErr := ping(ctx, conn); pingErr != nil {
				result.Statuses[i] = StatusFailed
				log.Error().Err(err).
					Int("row", i).
					Int("remaining", n-i-1).
					Msg("Connection lost, aborting batch")
				return result, scrapeerrors.NewPersistence(target, "connection lost", err)
			}
			result.Statuses[i] = StatusFailed
			log.Warn().Err(err).Int("row", i).Msg("Row insert failed")
			continue
		}

		affected, err := res.RowsAffected()
		if err == nil && affected == 0 {
			result.Statuses[i] = StatusIgnored
		} else {
			result.Statuses[i] = StatusInserted
		}
	}

	log.Info().Str("result", result.String()).Msg("Batch persisted")
	return result, nil
}

// Close implements Sink
func (s *SQLSink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func ping(ctx context.Context, conn *sqlx.Conn) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return conn.PingContext(ctx)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
