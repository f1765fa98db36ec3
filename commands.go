package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"sjsage522/stockscraper/config"
	"sjsage522/stockscraper/internal/model"
	"sjsage522/stockscraper/logger"
	"sjsage522/stockscraper/migrations"
	"sjsage522/stockscraper/services/sink"
	"sjsage522/stockscraper/services/worker"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
)

const recentItems = 5

// flag overrides shared by the scrape commands
type runFlags struct {
	days    int
	sink    string
	output  string
	sources []string
	aliases []string
}

func newRootCommand() *cobra.Command {
	flags := &runFlags{}

	root := &cobra.Command{
		Use:           "stockscraper",
		Short:         "Scrape recent news, posts and prices for a stock symbol",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().IntVar(&flags.days, "days", 0, "recency window in days (overrides WINDOW_DAYS)")
	root.PersistentFlags().StringVar(&flags.sink, "sink", "", "sink type, file or sql (overrides SINK_TYPE)")
	root.PersistentFlags().StringVar(&flags.output, "output", "", "output directory for the file sink (overrides OUTPUT_DIR)")
	root.PersistentFlags().StringSliceVar(&flags.sources, "source", nil, "only scrape the named sources (overrides SOURCES)")

	root.AddCommand(
		newScrapeCommand(flags, "news SYMBOL", "Scrape news articles for a symbol", model.KindArticle),
		newScrapeCommand(flags, "posts TERM", "Scrape social posts for a search term", model.KindPost),
		newPricesCommand(flags),
		newMigrateCommand(),
	)
	return root
}

// loadConfig reads the environment and applies command line overrides
func loadConfig(flags *runFlags) (*config.Config, error) {
	cfg := config.LoadConfig()
	if flags.days > 0 {
		cfg.WindowDays = flags.days
	}
	if flags.sink != "" {
		cfg.SinkType = flags.sink
	}
	if flags.output != "" {
		cfg.OutputDir = flags.output
	}
	if len(flags.sources) > 0 {
		cfg.Sources = flags.sources
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newScrapeCommand(flags *runFlags, use, short string, kind model.Kind) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			services, err := initializeServices(ctx, cfg)
			if err != nil {
				return err
			}
			defer services.Cleanup()

			query := worker.Query{Symbol: args[0], Aliases: flags.aliases, Kind: kind}
			logger.Default.Info().
				Str("environment", cfg.Environment).
				Str("symbol", query.Symbol).
				Strs("aliases", query.Aliases).
				Str("sink", cfg.SinkType).
				Msg("Starting scrape")

			report, runErr := services.Worker.Run(ctx, query)
			if runErr != nil {
				snapshotOnFailure(services)
			}
			if report != nil {
				renderReport(cmd.OutOrStdout(), report)
			}
			if runErr != nil {
				return runErr
			}
			if report.PersistErr != nil {
				return fmt.Errorf("persistence incomplete: %w", report.PersistErr)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&flags.aliases, "aliases", nil, "additional search terms, comma separated")
	return cmd
}

func newPricesCommand(flags *runFlags) *cobra.Command {
	var weeks int

	cmd := &cobra.Command{
		Use:   "prices TICKER",
		Short: "Scrape daily price history for a ticker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if weeks <= 0 {
				return fmt.Errorf("--weeks must be positive")
			}
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			services, err := initializeServices(ctx, cfg)
			if err != nil {
				return err
			}
			defer services.Cleanup()

			to := time.Now().UTC()
			from := to.AddDate(0, 0, -7*weeks)
			report, err := services.Worker.RunPrices(ctx, args[0], from, to)
			if err != nil {
				return err
			}
			renderPrices(cmd.OutOrStdout(), report)
			if report.PersistErr != nil {
				return fmt.Errorf("persistence incomplete: %w", report.PersistErr)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&weeks, "weeks", 7, "number of weeks of history")
	return cmd
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|up-one|down|status|version|reset]",
		Short:     "Manage the relational sink schema",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"up", "up-one", "down", "status", "version", "reset"},
		RunE: func(cmd *cobra.Command, args []string) error {
			command := "up"
			if len(args) == 1 {
				command = args[0]
			}

			cfg := config.LoadConfig()
			if cfg.DatabaseDSN == "" {
				return fmt.Errorf("DATABASE_DSN is required")
			}
			db, err := sqlx.Open(cfg.DatabaseDriver, cfg.DatabaseDSN)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			return migrations.Command(db.DB, cfg.DatabaseDriver, command)
		},
	}
}

// snapshotOnFailure captures the browser state after a failed run
func snapshotOnFailure(services *Services) {
	if services.Browser == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if path, err := services.Browser.Snapshot(ctx, "run-failure"); err == nil && path != "" {
		logger.Default.Info().Str("path", path).Msg("Saved diagnostic snapshot")
	}
}

// renderReport prints the per-source counts and the most recent items
func renderReport(w io.Writer, report *worker.Report) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle(fmt.Sprintf("Run %s (%s)", report.RunID, report.Query.Symbol))
	t.AppendHeader(table.Row{"Source", "Discovered", "Accepted", "Persisted", "Too Old", "No Date", "Failed", "Duplicates", "Error"})

	for _, s := range report.Sources {
		errText := ""
		if s.Err != nil {
			errText = text.Trim(s.Err.Error(), 60)
		}
		t.AppendRow(table.Row{
			s.Source,
			s.Discovered,
			s.Accepted,
			s.States[worker.StatePersisted],
			s.States[worker.StateRejectedOld],
			s.States[worker.StateRejectedNoDate],
			s.States[worker.StateFailed],
			s.Duplicates,
			errText,
		})
	}
	t.AppendFooter(table.Row{"Total", "", "", report.Persist.Count(sink.StatusInserted), "", "", "", report.Dropped, ""})
	t.Render()

	recent := report.Recent(recentItems)
	if len(recent) == 0 {
		fmt.Fprintln(w, "No items found.")
		return
	}

	r := table.NewWriter()
	r.SetOutputMirror(w)
	r.SetStyle(table.StyleLight)
	r.SetTitle("Most recent")
	r.AppendHeader(table.Row{"Date", "Source", "Title", "Link"})
	for _, item := range recent {
		link := item.URL
		if item.Kind == model.KindPost {
			link = "@" + strings.TrimPrefix(item.Username, "@")
		}
		r.AppendRow(table.Row{item.PublishedDate, item.Source, text.Trim(item.Title, 70), link})
	}
	r.Render()
}

func renderPrices(w io.Writer, report *worker.PriceReport) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle(fmt.Sprintf("%s price history", report.Ticker))
	t.AppendHeader(table.Row{"Date", "Open", "High", "Low", "Close", "Volume"})
	for i, bar := range report.Bars {
		if i == recentItems {
			break
		}
		t.AppendRow(table.Row{bar.Date, bar.Open, bar.High, bar.Low, bar.Close, bar.Volume})
	}
	t.AppendFooter(table.Row{"Bars", len(report.Bars), "Skipped", report.Skipped, "Persisted", report.Persist.Count(sink.StatusInserted)})
	t.Render()
}
