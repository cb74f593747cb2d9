// Package reports renders daily change-log extracts to CSV or JSON
// files for downstream consumers.
package reports

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/aluiziolira/go-track-books/models"
	"github.com/aluiziolira/go-track-books/store"
)

// FormatCSV and FormatJSON are the supported report encodings.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// Row is one flattened report line. Update entries produce one row per
// changed field; new entries produce a single row with empty field
// columns.
type Row struct {
	BookURL    string `json:"book_url"`
	BookName   string `json:"book_name"`
	ChangeType string `json:"change_type"`
	Field      string `json:"field"`
	OldValue   string `json:"old_value"`
	NewValue   string `json:"new_value"`
	ChangedAt  string `json:"changed_at"`
}

// Generator reads a day's change entries and writes one report file.
type Generator struct {
	store  store.Store
	dir    string
	format string
}

// New builds a generator writing format-encoded reports under dir.
func New(s store.Store, dir, format string) (*Generator, error) {
	if format != FormatCSV && format != FormatJSON {
		return nil, fmt.Errorf("unsupported report format %q", format)
	}
	return &Generator{store: s, dir: dir, format: format}, nil
}

// Daily writes the report for the UTC day containing t and returns the
// file path. A day with no change entries produces no file and an empty
// path.
func (g *Generator) Daily(ctx context.Context, t time.Time) (string, error) {
	day := t.UTC().Truncate(24 * time.Hour)

	entries, err := g.store.ChangesForDay(ctx, day)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		slog.Info("no changes recorded, skipping report", slog.String("day", day.Format("2006-01-02")))
		return "", nil
	}

	rows := Flatten(entries)
	path := filepath.Join(g.dir, fmt.Sprintf("change_report_%s.%s", day.Format("2006-01-02"), g.format))
	if err := ensureDir(path); err != nil {
		return "", err
	}

	switch g.format {
	case FormatCSV:
		err = writeCSV(path, rows)
	case FormatJSON:
		err = writeJSON(path, rows)
	}
	if err != nil {
		return "", err
	}

	slog.Info("report generated",
		slog.String("path", path),
		slog.Int("rows", len(rows)),
	)
	return path, nil
}

// Flatten expands change entries into report rows. Field rows within an
// entry are sorted by field name so output is deterministic.
func Flatten(entries []*models.ChangeLogEntry) []Row {
	var rows []Row
	for _, entry := range entries {
		changedAt := entry.ChangedAt.UTC().Format(time.RFC3339)

		if len(entry.Changes) == 0 {
			rows = append(rows, Row{
				BookURL:    entry.BookURL,
				BookName:   entry.BookName,
				ChangeType: string(entry.ChangeType),
				ChangedAt:  changedAt,
			})
			continue
		}

		fields := make([]string, 0, len(entry.Changes))
		for field := range entry.Changes {
			fields = append(fields, field)
		}
		sort.Strings(fields)

		for _, field := range fields {
			change := entry.Changes[field]
			rows = append(rows, Row{
				BookURL:    entry.BookURL,
				BookName:   entry.BookName,
				ChangeType: string(entry.ChangeType),
				Field:      field,
				OldValue:   formatValue(change.Old),
				NewValue:   formatValue(change.New),
				ChangedAt:  changedAt,
			})
		}
	}
	return rows
}

func formatValue(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

func writeCSV(path string, rows []Row) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv report: %w", err)
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	header := []string{"book_url", "book_name", "change_type", "field", "old_value", "new_value", "changed_at"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range rows {
		record := []string{row.BookURL, row.BookName, row.ChangeType, row.Field, row.OldValue, row.NewValue, row.ChangedAt}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv report: %w", err)
	}
	return nil
}

func writeJSON(path string, rows []Row) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create json report: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(rows); err != nil {
		return fmt.Errorf("encode json report: %w", err)
	}
	return nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
