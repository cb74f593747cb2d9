// Package api serves the read-only query surface over stored books and
// change-log entries.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aluiziolira/go-track-books/config"
	"github.com/aluiziolira/go-track-books/models"
	"github.com/aluiziolira/go-track-books/parser"
	"github.com/aluiziolira/go-track-books/store"
)

const (
	defaultPageSize    = 20
	maxPageSize        = 100
	defaultChangeLimit = 100
	maxChangeLimit     = 1000
	readHeaderTimeout  = 10 * time.Second
)

// Server exposes stored records over HTTP. All routes except /healthz
// sit behind API-key auth and per-client rate limiting.
type Server struct {
	store   store.Store
	router  *gin.Engine
	limiter *rateLimiter
	apiKey  string
	addr    string
}

// NewServer wires routes and middleware around the given store handle.
func NewServer(cfg *config.Config, s store.Store) *Server {
	gin.SetMode(gin.ReleaseMode)

	srv := &Server{
		store:   s,
		limiter: newRateLimiter(cfg.RateLimit, cfg.RateLimitWindow),
		apiKey:  cfg.APIKey,
		addr:    cfg.APIAddr,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggingMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	protected := router.Group("")
	protected.Use(srv.authMiddleware())
	protected.Use(srv.rateLimitMiddleware())
	protected.GET("/books", srv.listBooks)
	protected.GET("/books/:id", srv.getBook)
	protected.GET("/changes", srv.listChanges)

	srv.router = router
	return srv
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	pruneDone := make(chan struct{})
	go func() {
		defer close(pruneDone)
		ticker := time.NewTicker(s.limiter.window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.limiter.prune()
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := httpServer.Shutdown(shutdownCtx)
	<-pruneDone
	return err
}

// listBooks serves GET /books. Category, rating, sorting, and paging
// push down to the store; price bounds compare against the display
// price parsed per record.
func (s *Server) listBooks(c *gin.Context) {
	filter := store.BookFilter{
		Category: c.Query("category"),
		SortBy:   c.Query("sort_by"),
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "page_size", defaultPageSize),
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 || filter.PageSize > maxPageSize {
		filter.PageSize = defaultPageSize
	}

	if raw := c.Query("rating"); raw != "" {
		rating, err := strconv.Atoi(raw)
		if err != nil || rating < 0 || rating > 5 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "rating must be an integer between 0 and 5"})
			return
		}
		filter.MinRating = rating
	}

	minPrice, ok := queryPrice(c, "min_price")
	if !ok {
		return
	}
	maxPrice, ok := queryPrice(c, "max_price")
	if !ok {
		return
	}

	books, total, err := s.store.ListBooks(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list books"})
		return
	}

	if minPrice >= 0 || maxPrice >= 0 {
		books = filterByPrice(books, minPrice, maxPrice)
	}

	c.JSON(http.StatusOK, gin.H{
		"books":     books,
		"total":     total,
		"page":      filter.Page,
		"page_size": filter.PageSize,
	})
}

// getBook serves GET /books/:id.
func (s *Server) getBook(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid book id"})
		return
	}

	book, err := s.store.BookByID(c.Request.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "book not found"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch book"})
	default:
		c.JSON(http.StatusOK, book)
	}
}

// listChanges serves GET /changes, newest first.
func (s *Server) listChanges(c *gin.Context) {
	limit := queryInt(c, "limit", defaultChangeLimit)
	if limit < 1 || limit > maxChangeLimit {
		limit = defaultChangeLimit
	}

	sinceHours := queryInt(c, "since_hours", 24)
	if sinceHours < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "since_hours must be positive"})
		return
	}

	since := time.Now().Add(-time.Duration(sinceHours) * time.Hour)
	entries, err := s.store.ChangesSince(c.Request.Context(), since, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list changes"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"changes":     entries,
		"count":       len(entries),
		"since_hours": sinceHours,
	})
}

// filterByPrice keeps books whose incl-tax price parses inside the
// bounds. A negative bound is open.
func filterByPrice(books []*models.Book, minPrice, maxPrice float64) []*models.Book {
	filtered := make([]*models.Book, 0, len(books))
	for _, book := range books {
		price := parser.ParsePrice(book.PriceInclTax)
		if minPrice >= 0 && price < minPrice {
			continue
		}
		if maxPrice >= 0 && price > maxPrice {
			continue
		}
		filtered = append(filtered, book)
	}
	return filtered
}

// queryPrice parses an optional price bound, returning -1 when absent.
// On malformed input it writes the error response and reports false.
func queryPrice(c *gin.Context, name string) (float64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return -1, true
	}
	price, err := strconv.ParseFloat(raw, 64)
	if err != nil || price < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be a non-negative number"})
		return 0, false
	}
	return price, true
}

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
