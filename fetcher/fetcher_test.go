package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/aluiziolira/go-track-books/config"
	"github.com/aluiziolira/go-track-books/metrics"
	"github.com/jarcoal/httpmock"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.BaseURL = "http://example.test/"
	cfg.MaxRetries = 3
	cfg.BackoffBase = 5 * time.Millisecond
	cfg.Timeout = time.Second
	return cfg
}

func newTestFetcher(t *testing.T, cfg *config.Config, transport http.RoundTripper) *Fetcher {
	t.Helper()
	f, err := New(cfg, metrics.New())
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}
	f.WithTransport(transport)
	return f
}

func TestFetchSuccess(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://example.test/page-1.html",
		httpmock.NewStringResponder(200, "<html>ok</html>"))

	f := newTestFetcher(t, testConfig(), transport)

	body, err := f.Fetch(context.Background(), "http://example.test/page-1.html")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(body) != "<html>ok</html>" {
		t.Fatalf("body = %q", body)
	}
}

func TestFetchRetriesThenSucceeds(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://example.test/flaky.html",
		func(req *http.Request) (*http.Response, error) {
			mu.Lock()
			calls++
			n := calls
			mu.Unlock()
			if n < 3 {
				return httpmock.NewStringResponse(500, "boom"), nil
			}
			return httpmock.NewStringResponse(200, "recovered"), nil
		})

	cfg := testConfig()
	cfg.BackoffBase = 20 * time.Millisecond
	f := newTestFetcher(t, cfg, transport)

	start := time.Now()
	body, err := f.Fetch(context.Background(), "http://example.test/flaky.html")
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(body) != "recovered" {
		t.Fatalf("body = %q, want recovered", body)
	}

	mu.Lock()
	total := calls
	mu.Unlock()
	if total != 3 {
		t.Fatalf("attempts = %d, want 3", total)
	}
	// Two backoff waits: base*1 + base*2.
	if minWait := 3 * cfg.BackoffBase; elapsed < minWait {
		t.Fatalf("elapsed %v, want at least %v of backoff", elapsed, minWait)
	}
}

func TestFetchExhaustsRetries(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://example.test/broken.html",
		func(req *http.Request) (*http.Response, error) {
			mu.Lock()
			calls++
			mu.Unlock()
			return httpmock.NewStringResponse(500, "boom"), nil
		})

	f := newTestFetcher(t, testConfig(), transport)

	_, err := f.Fetch(context.Background(), "http://example.test/broken.html")
	if err == nil {
		t.Fatal("expected terminal error")
	}
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("error type = %T, want *FetchError", err)
	}
	if fetchErr.Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", fetchErr.Attempts)
	}

	mu.Lock()
	total := calls
	mu.Unlock()
	if total != 3 {
		t.Fatalf("requests issued = %d, want 3", total)
	}
}

func TestFetchStatusClassification(t *testing.T) {
	tests := []struct {
		status   int
		expected string
	}{
		{status: http.StatusForbidden, expected: "forbidden"},
		{status: http.StatusNotFound, expected: "not_found"},
		{status: http.StatusTooManyRequests, expected: "rate_limited"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			transport := httpmock.NewMockTransport()
			url := fmt.Sprintf("http://example.test/status-%d.html", tt.status)
			transport.RegisterResponder("GET", url,
				httpmock.NewStringResponder(tt.status, ""))

			cfg := testConfig()
			cfg.MaxRetries = 1
			f := newTestFetcher(t, cfg, transport)

			_, err := f.Fetch(context.Background(), url)
			if err == nil {
				t.Fatal("expected error")
			}
			var fetchErr *FetchError
			if !errors.As(err, &fetchErr) {
				t.Fatalf("error type = %T, want *FetchError", err)
			}
			if got := ErrorTypeLabel(fetchErr.Err); got != tt.expected {
				t.Fatalf("label = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestFetchCancelledDuringBackoff(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://example.test/slow.html",
		httpmock.NewStringResponder(500, ""))

	cfg := testConfig()
	cfg.BackoffBase = time.Hour
	f := newTestFetcher(t, cfg, transport)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := f.Fetch(ctx, "http://example.test/slow.html")
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context deadline", err)
	}
}

func TestFetchCancelledBeforeFirstAttempt(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://example.test/never.html",
		httpmock.NewStringResponder(200, "unreachable"))

	f := newTestFetcher(t, testConfig(), transport)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Fetch(ctx, "http://example.test/never.html")
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context cancellation", err)
	}
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		t.Fatalf("err = %v, must not claim failed attempts when none ran", err)
	}
	if calls := transport.GetTotalCallCount(); calls != 0 {
		t.Fatalf("requests issued = %d, want 0", calls)
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		statusCode int
		expected   string
	}{
		{name: "nil", err: nil, statusCode: 0, expected: "unknown"},
		{name: "context timeout", err: context.DeadlineExceeded, statusCode: 0, expected: "timeout"},
		{name: "net timeout", err: &net.DNSError{IsTimeout: true}, statusCode: 0, expected: "timeout"},
		{name: "connection", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, statusCode: 0, expected: "connection"},
		{name: "forbidden", err: nil, statusCode: http.StatusForbidden, expected: "forbidden"},
		{name: "not found", err: nil, statusCode: http.StatusNotFound, expected: "not_found"},
		{name: "rate limited", err: nil, statusCode: http.StatusTooManyRequests, expected: "rate_limited"},
		{name: "other", err: errors.New("some other error"), statusCode: 0, expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorTypeLabel(classifyError(tt.err, tt.statusCode)); got != tt.expected {
				t.Fatalf("classifyError(%v, %d) = %q, want %q", tt.err, tt.statusCode, got, tt.expected)
			}
		})
	}
}
