package api

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// rateLimitInfo tracks request counts for one client within the
// current window.
type rateLimitInfo struct {
	count       int
	windowStart time.Time
}

// rateLimiter enforces a fixed-window request cap per client key.
type rateLimiter struct {
	mu      sync.Mutex
	clients map[string]rateLimitInfo
	limit   int
	window  time.Duration
	now     func() time.Time
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		clients: make(map[string]rateLimitInfo),
		limit:   limit,
		window:  window,
		now:     time.Now,
	}
}

// allow records one request for key and reports whether it fits within
// the window's budget.
func (r *rateLimiter) allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	info, exists := r.clients[key]
	if !exists || now.Sub(info.windowStart) > r.window {
		r.clients[key] = rateLimitInfo{count: 1, windowStart: now}
		return true
	}
	if info.count >= r.limit {
		return false
	}
	info.count++
	r.clients[key] = info
	return true
}

// prune drops clients whose window expired.
func (r *rateLimiter) prune() {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.window)
	for key, info := range r.clients {
		if info.windowStart.Before(cutoff) {
			delete(r.clients, key)
		}
	}
}

// authMiddleware rejects requests without the configured API key. An
// empty configured key disables authentication.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.apiKey == "" {
			c.Next()
			return
		}
		key := c.GetHeader("X-API-Key")
		if key == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing API key"})
			return
		}
		if key != s.apiKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
			return
		}
		c.Next()
	}
}

// rateLimitMiddleware throttles per API key, falling back to client IP
// when authentication is disabled.
func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("X-API-Key")
		if key == "" {
			key = c.ClientIP()
		}
		if !s.limiter.allow(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

func loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Info("request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("elapsed", time.Since(start)),
		)
	}
}
