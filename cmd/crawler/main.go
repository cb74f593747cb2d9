package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aluiziolira/go-track-books/config"
	"github.com/aluiziolira/go-track-books/crawler"
	"github.com/aluiziolira/go-track-books/fetcher"
	"github.com/aluiziolira/go-track-books/metrics"
	"github.com/aluiziolira/go-track-books/models"
	"github.com/aluiziolira/go-track-books/reports"
	"github.com/aluiziolira/go-track-books/scheduler"
	"github.com/aluiziolira/go-track-books/store"
	"github.com/aluiziolira/go-track-books/tracker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid environment: %v\n", err)
		os.Exit(1)
	}

	baseURL := flag.String("base-url", cfg.BaseURL, "Base URL of the catalog to crawl")
	parallelism := flag.Int("parallel", cfg.Parallelism, "Number of concurrent item fetches per page")
	maxRetries := flag.Int("max-retries", cfg.MaxRetries, "Maximum fetch attempts per URL")
	keepRawHTML := flag.Bool("keep-raw-html", cfg.KeepRawHTML, "Retain raw page HTML on stored records")
	storageDriver := flag.String("storage", cfg.StorageDriver, "Storage driver: postgres or memory")
	databaseURL := flag.String("database-url", cfg.DatabaseURL, "PostgreSQL connection string")
	fromPage := flag.Int("from-page", 0, "Start from this page instead of the saved checkpoint")
	schedule := flag.Bool("schedule", false, "Run as a daemon on the configured daily schedule")
	report := flag.Bool("report", cfg.GenerateReport, "Generate a daily change report after each crawl")
	reportFormat := flag.String("report-format", cfg.ReportFormat, "Report format: csv or json")
	reportDir := flag.String("report-dir", cfg.ReportDir, "Directory for generated reports")
	metricsAddr := flag.String("metrics-addr", cfg.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	verbose := flag.Bool("v", cfg.Verbose, "Enable verbose logging")

	flag.Parse()

	cfg.BaseURL = *baseURL
	cfg.Parallelism = *parallelism
	cfg.MaxRetries = *maxRetries
	cfg.KeepRawHTML = *keepRawHTML
	cfg.StorageDriver = strings.ToLower(*storageDriver)
	cfg.DatabaseURL = *databaseURL
	cfg.GenerateReport = *report
	cfg.ReportFormat = strings.ToLower(*reportFormat)
	cfg.ReportDir = *reportDir
	cfg.MetricsAddr = *metricsAddr
	cfg.Verbose = *verbose

	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := openStore(cfg)
	if err != nil {
		slog.Error("opening store", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Error("close store", slog.Any("error", err))
		}
	}()

	m := metrics.New()
	f, err := fetcher.New(cfg, m)
	if err != nil {
		slog.Error("initialising fetcher", slog.Any("error", err))
		os.Exit(1)
	}
	tr, err := tracker.New(db, tracker.DefaultCacheSize)
	if err != nil {
		slog.Error("initialising tracker", slog.Any("error", err))
		os.Exit(1)
	}
	c, err := crawler.New(cfg, f, tr, db, m)
	if err != nil {
		slog.Error("initialising crawler", slog.Any("error", err))
		os.Exit(1)
	}

	var generator *reports.Generator
	if cfg.GenerateReport {
		generator, err = reports.New(db, cfg.ReportDir, cfg.ReportFormat)
		if err != nil {
			slog.Error("initialising report generator", slog.Any("error", err))
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, waiting for in-flight work to finish")
	}()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	if *schedule {
		runScheduled(ctx, cfg, c, generator)
	} else {
		runOnce(ctx, c, generator, *fromPage)
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}
}

func runScheduled(ctx context.Context, cfg *config.Config, c *crawler.Crawler, generator *reports.Generator) {
	s, err := scheduler.New(c, generator, cfg.CrawlHour, cfg.CrawlMinute)
	if err != nil {
		slog.Error("initialising scheduler", slog.Any("error", err))
		os.Exit(1)
	}
	if err := s.Start(ctx); err != nil {
		slog.Error("starting scheduler", slog.Any("error", err))
		os.Exit(1)
	}
	<-ctx.Done()
	s.Stop()
}

func runOnce(ctx context.Context, c *crawler.Crawler, generator *reports.Generator, fromPage int) {
	slog.Info("starting crawl")

	var result *models.CrawlResult
	var err error
	if fromPage > 0 {
		result, err = c.RunFrom(ctx, fromPage)
	} else {
		result, err = c.Run(ctx)
	}
	if err != nil {
		slog.Error("crawl failed", slog.Any("error", err))
		os.Exit(1)
	}

	if generator != nil {
		path, reportErr := generator.Daily(ctx, time.Now())
		if reportErr != nil {
			slog.Error("report generation failed", slog.Any("error", reportErr))
		} else if path != "" {
			slog.Info("daily report written", slog.String("path", path))
		}
	}

	printSummary(result)
}

func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.StorageDriver {
	case "postgres":
		return store.NewPostgresStore(cfg.DatabaseURL)
	case "memory":
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.StorageDriver)
	}
}

func printSummary(result *models.CrawlResult) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Crawl complete")
	fmt.Printf("  Start page:    %d\n", result.StartPage)
	fmt.Printf("  Pages crawled: %d\n", result.PagesCrawled)
	fmt.Printf("  New books:     %d\n", result.Created)
	fmt.Printf("  Updated:       %d\n", result.Updated)
	fmt.Printf("  Unchanged:     %d\n", result.Unchanged)
	fmt.Printf("  Item errors:   %d\n", result.ItemErrors)
	if len(result.ErrorsByType) > 0 {
		fmt.Printf("  Error types:   %v\n", result.ErrorsByType)
	}
	fmt.Printf("  Duration:      %v\n", result.EndTime.Sub(result.StartTime).Round(time.Millisecond))
	fmt.Println(separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
