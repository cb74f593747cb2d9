package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aluiziolira/go-track-books/models"
)

// MemoryStore is an in-process Store for tests and dry runs. It mirrors
// the PostgreSQL implementation's semantics, including per-key upsert
// and the append-only change log.
type MemoryStore struct {
	mu       sync.RWMutex
	books    map[string]*models.Book // keyed by source_url
	changes  []*models.ChangeLogEntry
	progress map[string]*models.CrawlProgress
	nextID   int64
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		books:    make(map[string]*models.Book),
		progress: make(map[string]*models.CrawlProgress),
		nextID:   1,
	}
}

// FindByURL looks up a record by its source URL.
func (s *MemoryStore) FindByURL(_ context.Context, sourceURL string) (*models.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	book, ok := s.books[sourceURL]
	if !ok {
		return nil, ErrNotFound
	}
	return copyBook(book), nil
}

// UpsertBook inserts or overwrites the record keyed by source_url.
func (s *MemoryStore) UpsertBook(_ context.Context, book *models.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.books[book.SourceURL]; ok {
		book.ID = existing.ID
	} else {
		book.ID = s.nextID
		s.nextID++
	}
	s.books[book.SourceURL] = copyBook(book)
	return nil
}

// ListBooks returns one page of records and the unpaginated total.
func (s *MemoryStore) ListBooks(_ context.Context, filter BookFilter) ([]*models.Book, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.Book
	for _, book := range s.books {
		if filter.Category != "" && book.Category != filter.Category {
			continue
		}
		if book.Rating < filter.MinRating {
			continue
		}
		matched = append(matched, copyBook(book))
	}

	sort.Slice(matched, func(i, j int) bool {
		switch filter.SortBy {
		case "price":
			if matched[i].PriceInclTax != matched[j].PriceInclTax {
				return matched[i].PriceInclTax < matched[j].PriceInclTax
			}
		case "reviews":
			if matched[i].NumberOfReviews != matched[j].NumberOfReviews {
				return matched[i].NumberOfReviews < matched[j].NumberOfReviews
			}
		default:
			if matched[i].Rating != matched[j].Rating {
				return matched[i].Rating < matched[j].Rating
			}
		}
		return matched[i].ID < matched[j].ID
	})

	total := len(matched)
	start := (filter.Page - 1) * filter.PageSize
	if start >= total {
		return nil, total, nil
	}
	end := start + filter.PageSize
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

// BookByID fetches a record by storage identifier.
func (s *MemoryStore) BookByID(_ context.Context, id int64) (*models.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, book := range s.books {
		if book.ID == id {
			return copyBook(book), nil
		}
	}
	return nil, ErrNotFound
}

// AppendChange appends an immutable change-log entry.
func (s *MemoryStore) AppendChange(_ context.Context, entry *models.ChangeLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := copyEntry(entry)
	stored.ID = s.nextID
	s.nextID++
	entry.ID = stored.ID
	s.changes = append(s.changes, stored)
	return nil
}

// ChangesSince returns entries detected at or after since, newest first.
func (s *MemoryStore) ChangesSince(_ context.Context, since time.Time, limit int) ([]*models.ChangeLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.ChangeLogEntry
	for _, entry := range s.changes {
		if entry.ChangedAt.Before(since) {
			continue
		}
		matched = append(matched, copyEntry(entry))
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].ChangedAt.After(matched[j].ChangedAt)
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// ChangesForDay returns entries inside the UTC day window containing day.
func (s *MemoryStore) ChangesForDay(_ context.Context, day time.Time) ([]*models.ChangeLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := day.UTC().Truncate(24 * time.Hour)
	end := start.Add(24 * time.Hour)

	var matched []*models.ChangeLogEntry
	for _, entry := range s.changes {
		at := entry.ChangedAt.UTC()
		if at.Before(start) || !at.Before(end) {
			continue
		}
		matched = append(matched, copyEntry(entry))
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].ChangedAt.Before(matched[j].ChangedAt)
	})
	return matched, nil
}

// Progress reads the checkpoint singleton.
func (s *MemoryStore) Progress(_ context.Context, crawlerName string) (*models.CrawlProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	progress, ok := s.progress[crawlerName]
	if !ok {
		return nil, ErrNotFound
	}
	out := *progress
	return &out, nil
}

// SetProgress writes the checkpoint idempotently.
func (s *MemoryStore) SetProgress(_ context.Context, crawlerName string, lastPage int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.progress[crawlerName] = &models.CrawlProgress{
		CrawlerName: crawlerName,
		LastPage:    lastPage,
		UpdatedAt:   time.Now().UTC(),
	}
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

func copyBook(b *models.Book) *models.Book {
	out := *b
	return &out
}

func copyEntry(e *models.ChangeLogEntry) *models.ChangeLogEntry {
	out := *e
	out.Changes = make(map[string]models.FieldChange, len(e.Changes))
	for field, change := range e.Changes {
		out.Changes[field] = change
	}
	return &out
}
