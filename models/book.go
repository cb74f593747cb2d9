// Package models defines data structures shared across the tracker.
package models

import "time"

// Book represents one catalog item keyed by its source URL.
// Price fields keep the site's display strings; numeric parsing is a
// query-time concern, never part of the stored record.
type Book struct {
	ID              int64     `db:"id" json:"id,omitempty"`
	Name            string    `db:"name" json:"name"`
	Description     string    `db:"description" json:"description"`
	Category        string    `db:"category" json:"category"`
	PriceExclTax    string    `db:"price_excl_tax" json:"price_excl_tax"`
	PriceInclTax    string    `db:"price_incl_tax" json:"price_incl_tax"`
	Availability    string    `db:"availability" json:"availability"`
	Rating          int       `db:"rating" json:"rating"`
	NumberOfReviews string    `db:"number_of_reviews" json:"number_of_reviews"`
	ImageURL        string    `db:"image_url" json:"image_url"`
	SourceURL       string    `db:"source_url" json:"source_url"`
	RawHTML         string    `db:"raw_html" json:"raw_html,omitempty"`
	CrawlTimestamp  time.Time `db:"crawl_timestamp" json:"crawl_timestamp"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
	ContentHash     string    `db:"content_hash" json:"content_hash"`
	Status          string    `db:"status" json:"status"`
}

// ChangeType labels a change-log entry.
type ChangeType string

const (
	ChangeTypeNew    ChangeType = "new"
	ChangeTypeUpdate ChangeType = "update"
)

// FieldChange carries the before/after values of one tracked field.
type FieldChange struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// ChangeLogEntry is an immutable record of a detected new or updated
// book. Changes is empty for new books.
type ChangeLogEntry struct {
	ID         int64                  `db:"id" json:"id,omitempty"`
	BookURL    string                 `db:"book_url" json:"book_url"`
	BookName   string                 `db:"book_name" json:"book_name"`
	ChangeType ChangeType             `db:"change_type" json:"change_type"`
	Changes    map[string]FieldChange `json:"changes"`
	ChangedAt  time.Time              `db:"changed_at" json:"changed_at"`
}

// CrawlProgress is the per-crawler checkpoint singleton.
type CrawlProgress struct {
	CrawlerName string    `db:"crawler_name" json:"crawler_name"`
	LastPage    int       `db:"last_page" json:"last_page"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// CrawlResult summarises a single crawl pass.
type CrawlResult struct {
	StartTime    time.Time
	EndTime      time.Time
	StartPage    int
	PagesCrawled int
	Created      int
	Updated      int
	Unchanged    int
	ItemErrors   int
	ErrorsByType map[string]int
}
