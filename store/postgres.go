package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/aluiziolira/go-track-books/models"
)

const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 5 * time.Minute
	defaultPingTimeout     = 5 * time.Second
)

const schema = `
CREATE TABLE IF NOT EXISTS books (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT '',
	price_excl_tax TEXT NOT NULL,
	price_incl_tax TEXT NOT NULL,
	availability TEXT NOT NULL,
	rating INT NOT NULL DEFAULT 0,
	number_of_reviews TEXT NOT NULL DEFAULT '',
	image_url TEXT NOT NULL DEFAULT '',
	source_url TEXT NOT NULL UNIQUE,
	raw_html TEXT NOT NULL DEFAULT '',
	crawl_timestamp TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	content_hash CHAR(64) NOT NULL,
	status TEXT NOT NULL DEFAULT 'success'
);

CREATE TABLE IF NOT EXISTS book_changes (
	id BIGSERIAL PRIMARY KEY,
	book_url TEXT NOT NULL,
	book_name TEXT NOT NULL,
	change_type TEXT NOT NULL,
	changes JSONB NOT NULL DEFAULT '{}'::jsonb,
	changed_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_book_changes_changed_at ON book_changes (changed_at);

CREATE TABLE IF NOT EXISTS crawl_progress (
	crawler_name TEXT PRIMARY KEY,
	last_page INT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`

const bookColumns = `id, name, description, category, price_excl_tax, price_incl_tax,
	availability, rating, number_of_reviews, image_url, source_url, raw_html,
	crawl_timestamp, created_at, updated_at, content_hash, status`

// PostgresStore persists records in PostgreSQL via sqlx.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore connects to dsn and bootstraps the schema.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), defaultPingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &PostgresStore{db: db}
	if err := s.ensureSchema(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return &StorageError{Op: "ensure schema", Err: err}
	}
	return nil
}

// FindByURL looks up a record by its source URL.
func (s *PostgresStore) FindByURL(ctx context.Context, sourceURL string) (*models.Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books WHERE source_url = $1`

	var book models.Book
	err := s.db.GetContext(ctx, &book, query, sourceURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &StorageError{Op: "find book", Err: err}
	}
	return &book, nil
}

// UpsertBook inserts or overwrites the record keyed by source_url.
func (s *PostgresStore) UpsertBook(ctx context.Context, book *models.Book) error {
	query := `
		INSERT INTO books (name, description, category, price_excl_tax, price_incl_tax,
			availability, rating, number_of_reviews, image_url, source_url, raw_html,
			crawl_timestamp, created_at, updated_at, content_hash, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (source_url) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			category = EXCLUDED.category,
			price_excl_tax = EXCLUDED.price_excl_tax,
			price_incl_tax = EXCLUDED.price_incl_tax,
			availability = EXCLUDED.availability,
			rating = EXCLUDED.rating,
			number_of_reviews = EXCLUDED.number_of_reviews,
			image_url = EXCLUDED.image_url,
			raw_html = EXCLUDED.raw_html,
			crawl_timestamp = EXCLUDED.crawl_timestamp,
			updated_at = EXCLUDED.updated_at,
			content_hash = EXCLUDED.content_hash,
			status = EXCLUDED.status
		RETURNING id`

	var id int64
	err := s.db.QueryRowContext(ctx, query,
		book.Name, book.Description, book.Category, book.PriceExclTax, book.PriceInclTax,
		book.Availability, book.Rating, book.NumberOfReviews, book.ImageURL, book.SourceURL,
		book.RawHTML, book.CrawlTimestamp, book.CreatedAt, book.UpdatedAt,
		book.ContentHash, book.Status,
	).Scan(&id)
	if err != nil {
		return &StorageError{Op: "upsert book", Err: err}
	}
	book.ID = id
	return nil
}

// ListBooks returns one page of records and the unpaginated total.
func (s *PostgresStore) ListBooks(ctx context.Context, filter BookFilter) ([]*models.Book, int, error) {
	where := ` WHERE rating >= $1`
	args := []any{filter.MinRating}
	if filter.Category != "" {
		where += ` AND category = $2`
		args = append(args, filter.Category)
	}

	var total int
	if err := s.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM books`+where, args...); err != nil {
		return nil, 0, &StorageError{Op: "count books", Err: err}
	}

	orderBy := map[string]string{
		"rating":  "rating",
		"price":   "price_incl_tax",
		"reviews": "number_of_reviews",
	}[filter.SortBy]
	if orderBy == "" {
		orderBy = "rating"
	}

	query := fmt.Sprintf(`SELECT `+bookColumns+` FROM books`+where+
		` ORDER BY %s ASC, id ASC LIMIT $%d OFFSET $%d`,
		orderBy, len(args)+1, len(args)+2)
	args = append(args, filter.PageSize, (filter.Page-1)*filter.PageSize)

	var books []*models.Book
	if err := s.db.SelectContext(ctx, &books, query, args...); err != nil {
		return nil, 0, &StorageError{Op: "list books", Err: err}
	}
	return books, total, nil
}

// BookByID fetches a record by storage identifier.
func (s *PostgresStore) BookByID(ctx context.Context, id int64) (*models.Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books WHERE id = $1`

	var book models.Book
	err := s.db.GetContext(ctx, &book, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &StorageError{Op: "get book", Err: err}
	}
	return &book, nil
}

// AppendChange appends an immutable change-log entry.
func (s *PostgresStore) AppendChange(ctx context.Context, entry *models.ChangeLogEntry) error {
	changes, err := json.Marshal(entry.Changes)
	if err != nil {
		return &StorageError{Op: "encode changes", Err: err}
	}

	query := `
		INSERT INTO book_changes (book_url, book_name, change_type, changes, changed_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	var id int64
	err = s.db.QueryRowContext(ctx, query,
		entry.BookURL, entry.BookName, string(entry.ChangeType), changes, entry.ChangedAt,
	).Scan(&id)
	if err != nil {
		return &StorageError{Op: "append change", Err: err}
	}
	entry.ID = id
	return nil
}

type changeRow struct {
	ID         int64     `db:"id"`
	BookURL    string    `db:"book_url"`
	BookName   string    `db:"book_name"`
	ChangeType string    `db:"change_type"`
	Changes    []byte    `db:"changes"`
	ChangedAt  time.Time `db:"changed_at"`
}

func (r *changeRow) toEntry() (*models.ChangeLogEntry, error) {
	entry := &models.ChangeLogEntry{
		ID:         r.ID,
		BookURL:    r.BookURL,
		BookName:   r.BookName,
		ChangeType: models.ChangeType(r.ChangeType),
		Changes:    map[string]models.FieldChange{},
		ChangedAt:  r.ChangedAt,
	}
	if len(r.Changes) > 0 {
		if err := json.Unmarshal(r.Changes, &entry.Changes); err != nil {
			return nil, err
		}
	}
	return entry, nil
}

// ChangesSince returns entries detected at or after since, newest first.
func (s *PostgresStore) ChangesSince(ctx context.Context, since time.Time, limit int) ([]*models.ChangeLogEntry, error) {
	query := `
		SELECT id, book_url, book_name, change_type, changes, changed_at
		FROM book_changes
		WHERE changed_at >= $1
		ORDER BY changed_at DESC
		LIMIT $2`

	var rows []changeRow
	if err := s.db.SelectContext(ctx, &rows, query, since, limit); err != nil {
		return nil, &StorageError{Op: "changes since", Err: err}
	}
	return decodeChangeRows(rows)
}

// ChangesForDay returns entries inside the UTC day window containing day.
func (s *PostgresStore) ChangesForDay(ctx context.Context, day time.Time) ([]*models.ChangeLogEntry, error) {
	start := day.UTC().Truncate(24 * time.Hour)
	end := start.Add(24 * time.Hour)

	query := `
		SELECT id, book_url, book_name, change_type, changes, changed_at
		FROM book_changes
		WHERE changed_at >= $1 AND changed_at < $2
		ORDER BY changed_at ASC`

	var rows []changeRow
	if err := s.db.SelectContext(ctx, &rows, query, start, end); err != nil {
		return nil, &StorageError{Op: "changes for day", Err: err}
	}
	return decodeChangeRows(rows)
}

func decodeChangeRows(rows []changeRow) ([]*models.ChangeLogEntry, error) {
	entries := make([]*models.ChangeLogEntry, 0, len(rows))
	for i := range rows {
		entry, err := rows[i].toEntry()
		if err != nil {
			return nil, &StorageError{Op: "decode changes", Err: err}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Progress reads the checkpoint singleton.
func (s *PostgresStore) Progress(ctx context.Context, crawlerName string) (*models.CrawlProgress, error) {
	query := `SELECT crawler_name, last_page, updated_at FROM crawl_progress WHERE crawler_name = $1`

	var progress models.CrawlProgress
	err := s.db.GetContext(ctx, &progress, query, crawlerName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &StorageError{Op: "get progress", Err: err}
	}
	return &progress, nil
}

// SetProgress writes the checkpoint idempotently.
func (s *PostgresStore) SetProgress(ctx context.Context, crawlerName string, lastPage int) error {
	query := `
		INSERT INTO crawl_progress (crawler_name, last_page, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (crawler_name) DO UPDATE SET
			last_page = EXCLUDED.last_page,
			updated_at = NOW()`

	if _, err := s.db.ExecContext(ctx, query, crawlerName, lastPage); err != nil {
		return &StorageError{Op: "set progress", Err: err}
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
