package parser

import (
	"errors"
	"strings"
	"testing"
)

const productPage = `
<html>
  <body>
    <ul class="breadcrumb">
      <li><a href="/">Home</a></li>
      <li><a href="/catalogue/category/books_1/index.html">Books</a></li>
      <li><a href="/catalogue/category/books/poetry_23/index.html">Poetry</a></li>
      <li class="active">A Light in the Attic</li>
    </ul>
    <div class="product_main">
      <h1>A Light in the Attic</h1>
      <p class="star-rating Three"></p>
    </div>
    <img src="../../media/cache/fe/72/cover.jpg" alt="A Light in the Attic"/>
    <div id="product_description"><h2>Product Description</h2></div>
    <p>It's hard to imagine a world without A Light in the Attic.</p>
    <table class="table table-striped">
      <tr><th>UPC</th><td>a897fe39b1053632</td></tr>
      <tr><th>Price (excl. tax)</th><td>£51.77</td></tr>
      <tr><th>Price (incl. tax)</th><td>£51.77</td></tr>
      <tr><th>Availability</th><td>In stock (22 available)</td></tr>
      <tr><th>Number of reviews</th><td>0</td></tr>
    </table>
  </body>
</html>`

const sourceURL = "https://books.toscrape.com/catalogue/a-light-in-the-attic_1000/index.html"

func TestParseBookExtractsFields(t *testing.T) {
	book, err := ParseBook([]byte(productPage), sourceURL, false)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if book.Name != "A Light in the Attic" {
		t.Errorf("name = %q", book.Name)
	}
	if !strings.HasPrefix(book.Description, "It's hard to imagine") {
		t.Errorf("description = %q", book.Description)
	}
	if book.Category != "Poetry" {
		t.Errorf("category = %q, want Poetry", book.Category)
	}
	if book.PriceExclTax != "£51.77" || book.PriceInclTax != "£51.77" {
		t.Errorf("prices = %q/%q", book.PriceExclTax, book.PriceInclTax)
	}
	if book.Availability != "In stock (22 available)" {
		t.Errorf("availability = %q", book.Availability)
	}
	if book.NumberOfReviews != "0" {
		t.Errorf("reviews = %q", book.NumberOfReviews)
	}
	if book.Rating != 3 {
		t.Errorf("rating = %d, want 3", book.Rating)
	}
	if book.ImageURL != "https://books.toscrape.com/media/cache/fe/72/cover.jpg" {
		t.Errorf("image url = %q", book.ImageURL)
	}
	if book.SourceURL != sourceURL {
		t.Errorf("source url = %q", book.SourceURL)
	}
	if book.Status != "success" {
		t.Errorf("status = %q", book.Status)
	}
	if book.CrawlTimestamp.IsZero() {
		t.Error("crawl timestamp not stamped")
	}
	if book.RawHTML != "" {
		t.Error("raw html should not be retained by default")
	}
}

func TestParseBookRetainsRawHTMLWhenEnabled(t *testing.T) {
	book, err := ParseBook([]byte(productPage), sourceURL, true)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if book.RawHTML != productPage {
		t.Error("raw html snapshot missing")
	}
}

func TestParseBookOptionalFallbacks(t *testing.T) {
	page := `
<html><body>
  <h1>Bare Book</h1>
  <p class="star-rating Invalid"></p>
  <table>
    <tr><th>Price (excl. tax)</th><td>£10.00</td></tr>
    <tr><th>Price (incl. tax)</th><td>£12.00</td></tr>
    <tr><th>Availability</th><td>In stock</td></tr>
  </table>
</body></html>`

	book, err := ParseBook([]byte(page), sourceURL, false)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if book.Description != DefaultDescription {
		t.Errorf("description = %q, want %q", book.Description, DefaultDescription)
	}
	if book.Category != DefaultCategory {
		t.Errorf("category = %q, want %q", book.Category, DefaultCategory)
	}
	if book.Rating != 0 {
		t.Errorf("rating = %d, want 0 for unrecognised word", book.Rating)
	}
	if book.NumberOfReviews != "" {
		t.Errorf("reviews = %q, want empty when absent", book.NumberOfReviews)
	}
}

func TestParseBookMissingRequiredFields(t *testing.T) {
	tests := []struct {
		name  string
		page  string
		field string
	}{
		{
			name:  "missing name",
			page:  `<html><body><table><tr><th>Price (excl. tax)</th><td>£1</td></tr></table></body></html>`,
			field: "name",
		},
		{
			name:  "missing prices",
			page:  `<html><body><h1>Book</h1></body></html>`,
			field: "price_excl_tax",
		},
		{
			name: "missing availability",
			page: `<html><body><h1>Book</h1><table>
				<tr><th>Price (excl. tax)</th><td>£1</td></tr>
				<tr><th>Price (incl. tax)</th><td>£1</td></tr>
			</table></body></html>`,
			field: "availability",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBook([]byte(tt.page), sourceURL, false)
			if err == nil {
				t.Fatal("expected parse error")
			}
			var parseErr *ParseError
			if !errors.As(err, &parseErr) {
				t.Fatalf("error type = %T, want *ParseError", err)
			}
			if parseErr.Field != tt.field {
				t.Fatalf("field = %q, want %q", parseErr.Field, tt.field)
			}
		})
	}
}

func TestExtractBookLinks(t *testing.T) {
	page := `
<html><body>
  <article class="product_pod"><h3><a href="../book-one_1/index.html">Book One</a></h3></article>
  <article class="product_pod"><h3><a href="../book-two_2/index.html">Book Two</a></h3></article>
</body></html>`

	links, err := ExtractBookLinks([]byte(page), "https://books.toscrape.com/catalogue/category/page-1.html")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	want := []string{
		"https://books.toscrape.com/catalogue/book-one_1/index.html",
		"https://books.toscrape.com/catalogue/book-two_2/index.html",
	}
	if len(links) != len(want) {
		t.Fatalf("links = %v, want %v", links, want)
	}
	for i := range want {
		if links[i] != want[i] {
			t.Errorf("links[%d] = %q, want %q", i, links[i], want[i])
		}
	}
}

func TestExtractBookLinksEmptyPage(t *testing.T) {
	links, err := ExtractBookLinks([]byte("<html><body></body></html>"), "https://books.toscrape.com/catalogue/page-51.html")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(links) != 0 {
		t.Fatalf("links = %v, want none", links)
	}
}

func TestRatingToNumeric(t *testing.T) {
	tests := []struct {
		input    string
		expected int
	}{
		{"One", 1},
		{"Two", 2},
		{"Three", 3},
		{"Four", 4},
		{"Five", 5},
		{"Zero", 0},
		{"three", 0},
		{"", 0},
		{"Invalid", 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := RatingToNumeric(tt.input); got != tt.expected {
				t.Errorf("RatingToNumeric(%q) = %d, want %d", tt.input, got, tt.expected)
			}
		})
	}
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected float64
	}{
		{"with currency symbol", "£10.00", 10.0},
		{"with thousands separator", "£1,010.50", 1010.5},
		{"with whitespace", "  £51.77 ", 51.77},
		{"already clean", "25.99", 25.99},
		{"empty", "", 0.0},
		{"garbage", "free", 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParsePrice(tt.input); got != tt.expected {
				t.Errorf("ParsePrice(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}
