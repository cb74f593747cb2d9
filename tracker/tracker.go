// Package tracker decides whether a parsed record is new, unchanged, or
// updated, writes the record store, and appends change-log entries.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/go-track-books/fingerprint"
	"github.com/aluiziolira/go-track-books/models"
	"github.com/aluiziolira/go-track-books/store"
)

// Outcome is the result of an upsert.
type Outcome int

const (
	Created Outcome = iota
	Unchanged
	Updated
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case Unchanged:
		return "unchanged"
	case Updated:
		return "updated"
	default:
		return "unknown"
	}
}

// DefaultCacheSize bounds the per-process source_url -> content_hash cache.
const DefaultCacheSize = 4096

// Tracker owns the upsert-and-change-log contract. The hash cache
// short-circuits store lookups for records already seen unchanged in
// this process; correctness never depends on it.
type Tracker struct {
	store  store.Store
	hashes *lru.Cache[string, string]
	now    func() time.Time
}

// New builds a tracker around the given store handle.
func New(s store.Store, cacheSize int) (*Tracker, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create hash cache: %w", err)
	}
	return &Tracker{
		store:  s,
		hashes: cache,
		now:    time.Now,
	}, nil
}

// Upsert stores book keyed by its source URL and logs the detected
// change. The lookup-then-write pair is not transactional; each source
// URL is visited at most once per crawl pass.
func (t *Tracker) Upsert(ctx context.Context, book *models.Book) (Outcome, error) {
	hash := fingerprint.ContentHash(book)

	if cached, ok := t.hashes.Get(book.SourceURL); ok && cached == hash {
		return Unchanged, nil
	}

	existing, err := t.store.FindByURL(ctx, book.SourceURL)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return t.insert(ctx, book, hash)
	case err != nil:
		return Unchanged, err
	}

	if existing.ContentHash == hash {
		t.hashes.Add(book.SourceURL, hash)
		return Unchanged, nil
	}
	return t.update(ctx, book, existing, hash)
}

func (t *Tracker) insert(ctx context.Context, book *models.Book, hash string) (Outcome, error) {
	now := t.now().UTC()
	book.ContentHash = hash
	book.CreatedAt = now
	book.UpdatedAt = now

	if err := t.store.UpsertBook(ctx, book); err != nil {
		return Unchanged, err
	}

	entry := &models.ChangeLogEntry{
		BookURL:    book.SourceURL,
		BookName:   book.Name,
		ChangeType: models.ChangeTypeNew,
		Changes:    map[string]models.FieldChange{},
		ChangedAt:  now,
	}
	if err := t.store.AppendChange(ctx, entry); err != nil {
		return Created, err
	}

	t.hashes.Add(book.SourceURL, hash)
	return Created, nil
}

func (t *Tracker) update(ctx context.Context, book, existing *models.Book, hash string) (Outcome, error) {
	changes := fingerprint.Diff(book, existing)

	now := t.now().UTC()
	book.ID = existing.ID
	book.ContentHash = hash
	book.CreatedAt = existing.CreatedAt
	book.UpdatedAt = now

	if err := t.store.UpsertBook(ctx, book); err != nil {
		return Unchanged, err
	}

	entry := &models.ChangeLogEntry{
		BookURL:    book.SourceURL,
		BookName:   book.Name,
		ChangeType: models.ChangeTypeUpdate,
		Changes:    changes,
		ChangedAt:  now,
	}
	if err := t.store.AppendChange(ctx, entry); err != nil {
		return Updated, err
	}

	t.hashes.Add(book.SourceURL, hash)
	return Updated, nil
}
