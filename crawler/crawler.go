// Package crawler walks the catalog page by page, fanning out item
// work per page and checkpointing progress between pages.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aluiziolira/go-track-books/config"
	"github.com/aluiziolira/go-track-books/fetcher"
	"github.com/aluiziolira/go-track-books/metrics"
	"github.com/aluiziolira/go-track-books/models"
	"github.com/aluiziolira/go-track-books/parser"
	"github.com/aluiziolira/go-track-books/store"
	"github.com/aluiziolira/go-track-books/tracker"
)

// Crawler orchestrates one crawl pass: listing fetch, link extraction,
// concurrent item processing, and per-page checkpointing.
type Crawler struct {
	cfg     *config.Config
	base    *url.URL
	fetcher *fetcher.Fetcher
	tracker *tracker.Tracker
	store   store.Store
	metrics *metrics.Metrics
}

// runStats accumulates counters for a single pass. A fresh value per
// RunFrom keeps long-lived crawlers (the scheduler reuses one daily)
// reporting per-run totals.
type runStats struct {
	created    int64
	updated    int64
	unchanged  int64
	itemErrors int64

	mu           sync.Mutex
	errorsByType map[string]int
}

func (s *runStats) recordError(label string) {
	s.mu.Lock()
	s.errorsByType[label]++
	s.mu.Unlock()
}

func (s *runStats) snapshotErrors() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.errorsByType))
	for k, v := range s.errorsByType {
		out[k] = v
	}
	return out
}

// New builds a crawler from its collaborators. The store handle is
// passed in explicitly; nothing here owns process-wide state.
func New(cfg *config.Config, f *fetcher.Fetcher, tr *tracker.Tracker, s store.Store, m *metrics.Metrics) (*Crawler, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	return &Crawler{
		cfg:     cfg,
		base:    base,
		fetcher: f,
		tracker: tr,
		store:   s,
		metrics: m,
	}, nil
}

// Run crawls from the last checkpoint to catalog exhaustion. A fresh
// store starts at page 1; otherwise the crawl resumes at the page after
// the last checkpointed one.
func (c *Crawler) Run(ctx context.Context) (*models.CrawlResult, error) {
	startPage := 1
	progress, err := c.store.Progress(ctx, c.cfg.CrawlerName)
	switch {
	case errors.Is(err, store.ErrNotFound):
		slog.Info("starting fresh crawl from page 1")
	case err != nil:
		return nil, err
	default:
		startPage = progress.LastPage + 1
		slog.Info("resuming crawl", slog.Int("page", startPage))
	}
	return c.RunFrom(ctx, startPage)
}

// RunFrom crawls from an explicit page index to catalog exhaustion.
func (c *Crawler) RunFrom(ctx context.Context, startPage int) (*models.CrawlResult, error) {
	if startPage < 1 {
		startPage = 1
	}

	result := &models.CrawlResult{
		StartTime: time.Now(),
		StartPage: startPage,
	}
	stats := &runStats{errorsByType: make(map[string]int)}

	for page := startPage; ; page++ {
		if ctx.Err() != nil {
			slog.Info("crawl interrupted between pages", slog.Int("page", page))
			break
		}
		if !c.crawlPage(ctx, page, stats) {
			break
		}
		result.PagesCrawled++
	}

	result.EndTime = time.Now()
	result.Created = int(atomic.LoadInt64(&stats.created))
	result.Updated = int(atomic.LoadInt64(&stats.updated))
	result.Unchanged = int(atomic.LoadInt64(&stats.unchanged))
	result.ItemErrors = int(atomic.LoadInt64(&stats.itemErrors))
	result.ErrorsByType = stats.snapshotErrors()
	return result, nil
}

// crawlPage visits one listing page. The returned bool reports whether
// pagination should continue; both termination conditions (listing
// fetch failure, zero links) leave the page unchecked.
func (c *Crawler) crawlPage(ctx context.Context, page int, stats *runStats) bool {
	pageURL := c.listingURL(page)
	slog.Info("crawling listing page", slog.Int("page", page), slog.String("url", pageURL))

	c.metrics.IncRequest("listing")
	content, err := c.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		c.recordError(stats, err)
		slog.Error("listing page failed, stopping pagination",
			slog.Int("page", page),
			slog.Any("error", err),
		)
		return false
	}

	links, err := parser.ExtractBookLinks(content, pageURL)
	if err != nil {
		c.recordError(stats, err)
		slog.Error("listing page unparseable, stopping pagination",
			slog.Int("page", page),
			slog.Any("error", err),
		)
		return false
	}
	if len(links) == 0 {
		slog.Info("no books found, end of catalog reached", slog.Int("page", page))
		return false
	}

	// Fan out all items for this page; the semaphore bounds in-flight
	// fetches without serialising unrelated items.
	sem := make(chan struct{}, c.cfg.Parallelism)
	var wg sync.WaitGroup
	for _, link := range links {
		wg.Add(1)
		go func(link string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			c.processBook(ctx, link, stats)
		}(link)
	}
	wg.Wait()

	// Checkpoint reflects "page visited", not "page fully succeeded".
	if err := c.store.SetProgress(ctx, c.cfg.CrawlerName, page); err != nil {
		c.recordError(stats, err)
		slog.Error("checkpoint write failed, stopping pagination",
			slog.Int("page", page),
			slog.Any("error", err),
		)
		return false
	}

	c.metrics.IncPage()
	slog.Info("finished page, checkpoint saved", slog.Int("page", page), slog.Int("books", len(links)))
	return true
}

// processBook runs fetch -> parse -> upsert for a single item. Errors
// are caught here so one bad item never aborts its siblings.
func (c *Crawler) processBook(ctx context.Context, bookURL string, stats *runStats) {
	c.metrics.IncRequest("item")

	content, err := c.fetcher.Fetch(ctx, bookURL)
	if err != nil {
		c.itemFailed(stats, bookURL, err)
		return
	}

	book, err := parser.ParseBook(content, bookURL, c.cfg.KeepRawHTML)
	if err != nil {
		c.itemFailed(stats, bookURL, err)
		return
	}

	outcome, err := c.tracker.Upsert(ctx, book)
	if err != nil {
		c.itemFailed(stats, bookURL, err)
		return
	}

	c.metrics.IncUpsert(outcome.String())
	switch outcome {
	case tracker.Created:
		atomic.AddInt64(&stats.created, 1)
		slog.Info("saved new book", slog.String("name", book.Name))
	case tracker.Updated:
		atomic.AddInt64(&stats.updated, 1)
		slog.Info("updated book", slog.String("name", book.Name))
	case tracker.Unchanged:
		atomic.AddInt64(&stats.unchanged, 1)
		slog.Debug("book unchanged", slog.String("name", book.Name))
	}
}

func (c *Crawler) itemFailed(stats *runStats, bookURL string, err error) {
	atomic.AddInt64(&stats.itemErrors, 1)
	c.recordError(stats, err)
	slog.Error("error processing book",
		slog.String("url", bookURL),
		slog.Any("error", err),
	)
}

func (c *Crawler) recordError(stats *runStats, err error) {
	label := errorLabel(err)
	c.metrics.IncError(label)
	stats.recordError(label)
}

func (c *Crawler) listingURL(page int) string {
	ref, _ := url.Parse(fmt.Sprintf("catalogue/page-%d.html", page))
	return c.base.ResolveReference(ref).String()
}

func errorLabel(err error) string {
	var fetchErr *fetcher.FetchError
	if errors.As(err, &fetchErr) {
		return fetcher.ErrorTypeLabel(fetchErr.Err)
	}
	var parseErr *parser.ParseError
	if errors.As(err, &parseErr) {
		return "parse"
	}
	var storageErr *store.StorageError
	if errors.As(err, &storageErr) {
		return "storage"
	}
	return "other"
}
