// Package parser converts raw catalog pages into structured records.
package parser

import (
	"bytes"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-track-books/models"
)

// Fallbacks used when optional page elements are absent.
const (
	DefaultDescription = "No description"
	DefaultCategory    = "Books"
)

// ParseError indicates page content did not match the expected
// structure for a required field. It is never retried.
type ParseError struct {
	URL   string
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %s: field %s: %v", e.URL, e.Field, e.Err)
	}
	return fmt.Sprintf("parse %s: missing required field %s", e.URL, e.Field)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ParseBook extracts a book record from a product page. Optional fields
// fall back to fixed defaults; a missing required field surfaces a
// *ParseError instead of a half-populated record. Raw page content is
// retained only when keepRawHTML is set.
func ParseBook(html []byte, sourceURL string, keepRawHTML bool) (*models.Book, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, &ParseError{URL: sourceURL, Field: "document", Err: err}
	}

	name := strings.TrimSpace(doc.Find("h1").First().Text())
	if name == "" {
		return nil, &ParseError{URL: sourceURL, Field: "name"}
	}

	description := strings.TrimSpace(doc.Find("#product_description ~ p").First().Text())
	if description == "" {
		description = DefaultDescription
	}

	category := strings.TrimSpace(doc.Find(".breadcrumb li:nth-child(3) a").First().Text())
	if category == "" {
		category = DefaultCategory
	}

	priceExcl := tableValue(doc, "Price (excl. tax)")
	if priceExcl == "" {
		return nil, &ParseError{URL: sourceURL, Field: "price_excl_tax"}
	}
	priceIncl := tableValue(doc, "Price (incl. tax)")
	if priceIncl == "" {
		return nil, &ParseError{URL: sourceURL, Field: "price_incl_tax"}
	}
	availability := tableValue(doc, "Availability")
	if availability == "" {
		return nil, &ParseError{URL: sourceURL, Field: "availability"}
	}
	reviews := tableValue(doc, "Number of reviews")

	book := &models.Book{
		Name:            name,
		Description:     description,
		Category:        category,
		PriceExclTax:    priceExcl,
		PriceInclTax:    priceIncl,
		Availability:    availability,
		Rating:          RatingToNumeric(ratingWord(doc)),
		NumberOfReviews: reviews,
		ImageURL:        imageURL(doc, sourceURL),
		SourceURL:       sourceURL,
		CrawlTimestamp:  time.Now().UTC(),
		Status:          "success",
	}
	if keepRawHTML {
		book.RawHTML = string(html)
	}
	return book, nil
}

// ExtractBookLinks returns the absolute product URLs found on a listing
// page. An empty slice signals the end of the catalog, not an error.
func ExtractBookLinks(html []byte, pageURL string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, &ParseError{URL: pageURL, Field: "document", Err: err}
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, &ParseError{URL: pageURL, Field: "page_url", Err: err}
	}

	var links []string
	doc.Find("article.product_pod h3 a").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || href == "" {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		links = append(links, base.ResolveReference(ref).String())
	})
	return links, nil
}

// RatingToNumeric converts the textual star rating to a numeric scale.
// Unrecognised ratings map to 0.
func RatingToNumeric(rating string) int {
	switch strings.TrimSpace(rating) {
	case "One":
		return 1
	case "Two":
		return 2
	case "Three":
		return 3
	case "Four":
		return 4
	case "Five":
		return 5
	default:
		return 0
	}
}

// ParsePrice converts a display price such as "£1,010.00" to its
// numeric value. Any parse failure yields 0.0; this helper belongs to
// the query side only, stored prices stay as display strings.
func ParsePrice(display string) float64 {
	cleaned := strings.NewReplacer("£", "", ",", "").Replace(display)
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return 0.0
	}
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0.0
	}
	return value
}

func tableValue(doc *goquery.Document, label string) string {
	var value string
	doc.Find("th").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.TrimSpace(s.Text()) != label {
			return true
		}
		value = strings.TrimSpace(s.Next().Text())
		return false
	})
	return value
}

func ratingWord(doc *goquery.Document) string {
	class, ok := doc.Find("p.star-rating").First().Attr("class")
	if !ok {
		return ""
	}
	parts := strings.Fields(class)
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

func imageURL(doc *goquery.Document, sourceURL string) string {
	src, ok := doc.Find("img").First().Attr("src")
	if !ok || src == "" {
		return ""
	}

	base, err := url.Parse(sourceURL)
	if err != nil {
		return src
	}
	ref, err := url.Parse(src)
	if err != nil {
		return src
	}
	return base.ResolveReference(ref).String()
}
