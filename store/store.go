// Package store persists book records, change-log entries, and crawl
// checkpoints. Implementations are handed to components explicitly;
// there is no process-wide store handle.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aluiziolira/go-track-books/models"
)

// ErrNotFound is returned for point lookups that match nothing.
var ErrNotFound = errors.New("store: not found")

// StorageError wraps any failure from the persistence layer. The core
// never retries these; item-level callers log and move on.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// BookFilter narrows and orders ListBooks results.
type BookFilter struct {
	Category  string
	MinRating int
	SortBy    string // rating, price, or reviews
	Page      int
	PageSize  int
}

// Store is the durable collaborator consumed by the crawl core and the
// query API.
type Store interface {
	// FindByURL looks up the record for a source URL, ErrNotFound when absent.
	FindByURL(ctx context.Context, sourceURL string) (*models.Book, error)
	// UpsertBook inserts or overwrites the record keyed by source URL.
	UpsertBook(ctx context.Context, book *models.Book) error
	// ListBooks returns one page of records plus the unpaginated total.
	ListBooks(ctx context.Context, filter BookFilter) ([]*models.Book, int, error)
	// BookByID fetches a single record by its storage identifier.
	BookByID(ctx context.Context, id int64) (*models.Book, error)

	// AppendChange appends an immutable change-log entry.
	AppendChange(ctx context.Context, entry *models.ChangeLogEntry) error
	// ChangesSince returns entries detected at or after since, newest first.
	ChangesSince(ctx context.Context, since time.Time, limit int) ([]*models.ChangeLogEntry, error)
	// ChangesForDay returns entries within [UTC start of day, +24h).
	ChangesForDay(ctx context.Context, day time.Time) ([]*models.ChangeLogEntry, error)

	// Progress reads the checkpoint singleton, ErrNotFound on a fresh store.
	Progress(ctx context.Context, crawlerName string) (*models.CrawlProgress, error)
	// SetProgress writes the checkpoint idempotently.
	SetProgress(ctx context.Context, crawlerName string, lastPage int) error

	// Close releases the underlying resources.
	Close() error
}
