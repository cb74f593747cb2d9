// Package fetcher retrieves pages with bounded retries and backoff.
package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/aluiziolira/go-track-books/config"
	"github.com/aluiziolira/go-track-books/metrics"
	"github.com/gocolly/colly/v2"
)

// Fetcher wraps colly collectors with retry logic. A fresh collector is
// built per attempt so concurrent fetches never share callback state.
type Fetcher struct {
	cfg       *config.Config
	host      string
	transport http.RoundTripper
	metrics   *metrics.Metrics
}

// New builds a fetcher configured from cfg.
func New(cfg *config.Config, m *metrics.Metrics) (*Fetcher, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	return &Fetcher{
		cfg:     cfg,
		host:    parsed.Host,
		metrics: m,
	}, nil
}

// WithTransport overrides the HTTP transport, used by tests to plug in
// a mock round tripper.
func (f *Fetcher) WithTransport(rt http.RoundTripper) {
	f.transport = rt
}

// Fetch retrieves url, retrying up to MaxRetries attempts with a
// backoff sleep of BackoffBase*attempt between failures. The sleep is
// local to this call and cancellable through ctx. After exhausting all
// attempts the last classified cause is returned inside a *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) ([]byte, error) {
	// Cancellation before any attempt is not a fetch failure.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", pageURL, err)
	}

	var lastErr error

	for attempt := 1; attempt <= f.cfg.MaxRetries; attempt++ {
		start := time.Now()
		body, err := f.attempt(pageURL)
		f.metrics.ObserveDuration(time.Since(start))
		if err == nil {
			return body, nil
		}
		lastErr = err

		slog.Warn("fetch attempt failed",
			slog.String("url", pageURL),
			slog.Int("attempt", attempt),
			slog.Any("error", err),
		)

		if attempt == f.cfg.MaxRetries {
			break
		}

		f.metrics.IncRetries()
		wait := f.cfg.BackoffBase * time.Duration(attempt)
		select {
		case <-ctx.Done():
			return nil, &FetchError{URL: pageURL, Attempts: attempt, Err: ctx.Err()}
		case <-time.After(wait):
		}
	}

	return nil, &FetchError{URL: pageURL, Attempts: f.cfg.MaxRetries, Err: lastErr}
}

func (f *Fetcher) attempt(pageURL string) ([]byte, error) {
	c := f.newCollector()

	var body []byte
	var fetchErr error
	var statusCode int

	c.OnResponse(func(r *colly.Response) {
		body = r.Body
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			statusCode = r.StatusCode
		}
		fetchErr = err
	})

	if err := c.Visit(pageURL); err != nil && fetchErr == nil {
		fetchErr = err
	}
	c.Wait()

	if fetchErr != nil {
		return nil, classifyError(fetchErr, statusCode)
	}
	return body, nil
}

func (f *Fetcher) newCollector() *colly.Collector {
	c := colly.NewCollector(
		colly.AllowedDomains(f.host),
		colly.UserAgent(f.cfg.UserAgent),
	)
	c.IgnoreRobotsTxt = true
	c.SetRequestTimeout(f.cfg.Timeout)

	if f.transport != nil {
		c.WithTransport(f.transport)
	} else {
		c.WithTransport(&http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   f.cfg.Timeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		})
	}
	return c
}
