// Package fingerprint derives stable content signatures from the six
// tracked fields of a book record. The signatures drive idempotent
// upserts and field-level change detection.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-track-books/models"
)

// Field names as they appear in change-log entries and reports.
const (
	FieldName            = "name"
	FieldPriceExclTax    = "price_excl_tax"
	FieldPriceInclTax    = "price_incl_tax"
	FieldAvailability    = "availability"
	FieldRating          = "rating"
	FieldNumberOfReviews = "number_of_reviews"
)

// TrackedFields lists the fields that participate in change detection,
// in fingerprint order. The order is part of the contract: reordering
// would change every stored hash.
var TrackedFields = []string{
	FieldName,
	FieldPriceExclTax,
	FieldPriceInclTax,
	FieldAvailability,
	FieldRating,
	FieldNumberOfReviews,
}

// Fingerprint joins the tracked field values with a pipe separator.
// Rating is coerced to its decimal string form; absent string fields
// contribute an empty segment.
func Fingerprint(b *models.Book) string {
	parts := []string{
		b.Name,
		b.PriceExclTax,
		b.PriceInclTax,
		b.Availability,
		strconv.Itoa(b.Rating),
		b.NumberOfReviews,
	}
	return strings.Join(parts, "|")
}

// ContentHash returns the SHA-256 hex digest of the fingerprint.
// Always 64 lowercase hex characters.
func ContentHash(b *models.Book) string {
	sum := sha256.Sum256([]byte(Fingerprint(b)))
	return hex.EncodeToString(sum[:])
}

// Diff compares the tracked fields of current against existing and
// reports every difference with its raw old/new values. Fields that
// agree are omitted; an empty map means the records match.
func Diff(current, existing *models.Book) map[string]models.FieldChange {
	changes := make(map[string]models.FieldChange)

	if current.Name != existing.Name {
		changes[FieldName] = models.FieldChange{Old: existing.Name, New: current.Name}
	}
	if current.PriceExclTax != existing.PriceExclTax {
		changes[FieldPriceExclTax] = models.FieldChange{Old: existing.PriceExclTax, New: current.PriceExclTax}
	}
	if current.PriceInclTax != existing.PriceInclTax {
		changes[FieldPriceInclTax] = models.FieldChange{Old: existing.PriceInclTax, New: current.PriceInclTax}
	}
	if current.Availability != existing.Availability {
		changes[FieldAvailability] = models.FieldChange{Old: existing.Availability, New: current.Availability}
	}
	if current.Rating != existing.Rating {
		changes[FieldRating] = models.FieldChange{Old: existing.Rating, New: current.Rating}
	}
	if current.NumberOfReviews != existing.NumberOfReviews {
		changes[FieldNumberOfReviews] = models.FieldChange{Old: existing.NumberOfReviews, New: current.NumberOfReviews}
	}

	return changes
}
