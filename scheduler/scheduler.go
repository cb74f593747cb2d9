// Package scheduler runs the daily crawl pass and report generation on
// a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/aluiziolira/go-track-books/crawler"
	"github.com/aluiziolira/go-track-books/reports"
)

// Scheduler wraps a cron runner around one recurring job: crawl the
// catalog, then render the day's change report.
type Scheduler struct {
	cron    *cron.Cron
	crawler *crawler.Crawler
	reports *reports.Generator
	spec    string
}

// New builds a scheduler firing daily at hour:minute. The reports
// generator may be nil when report generation is disabled.
func New(c *crawler.Crawler, g *reports.Generator, hour, minute int) (*Scheduler, error) {
	spec := fmt.Sprintf("%d %d * * *", minute, hour)
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return &Scheduler{
		cron:    cron.New(),
		crawler: c,
		reports: g,
		spec:    spec,
	}, nil
}

// Start registers the daily job and starts the cron loop. The given
// context bounds every triggered run.
func (s *Scheduler) Start(ctx context.Context) error {
	entryID, err := s.cron.AddFunc(s.spec, func() {
		if err := s.RunOnce(ctx); err != nil {
			slog.Error("scheduled run failed", slog.Any("error", err))
		}
	})
	if err != nil {
		return fmt.Errorf("add cron job: %w", err)
	}

	s.cron.Start()
	slog.Info("scheduler started",
		slog.String("schedule", s.spec),
		slog.Time("next_run", s.cron.Entry(entryID).Next),
	)
	return nil
}

// Stop halts the cron loop and waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	slog.Info("scheduler stopped")
}

// RunOnce executes one crawl pass followed by report generation.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	slog.Info("scheduled crawl starting")

	result, err := s.crawler.Run(ctx)
	if err != nil {
		return fmt.Errorf("crawl: %w", err)
	}
	slog.Info("scheduled crawl finished",
		slog.Int("pages", result.PagesCrawled),
		slog.Int("created", result.Created),
		slog.Int("updated", result.Updated),
		slog.Int("unchanged", result.Unchanged),
		slog.Int("errors", result.ItemErrors),
		slog.Duration("elapsed", result.EndTime.Sub(result.StartTime)),
	)

	if s.reports == nil {
		return nil
	}
	path, err := s.reports.Daily(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}
	if path != "" {
		slog.Info("daily report written", slog.String("path", path))
	}
	return nil
}
