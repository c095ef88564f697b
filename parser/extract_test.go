package parser

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/aluiziolira/go-scrape-hotels/document"
	"github.com/aluiziolira/go-scrape-hotels/models"
)

var lumiere = models.ResultHandle{
	Position: 4,
	Name:     " Hotel Lumiere ",
	Link:     "https://example.test/hotel/lumiere.html",
}

func TestExtractFallbackAndTrim(t *testing.T) {
	doc := parseDoc(t, `<html><body>
		<p class="desc">  A quiet place by the river.  </p>
		<span class="score-new">   </span>
		<span class="score-old">  8.7 </span>
		<span class="reviews"> 1,024 reviews </span>
		<a id="map" data-atlas-latlng="48.8566, 2.3522">map</a>
	</body></html>`, lumiere.Link)

	got, err := NewExtractor(testLocators()).Extract(doc, lumiere)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	want := &models.Hotel{
		Name:        models.StringPtr("Hotel Lumiere"),
		Score:       models.StringPtr("8.7"),
		Reviews:     models.StringPtr("1,024 reviews"),
		Lat:         models.StringPtr("48.8566"),
		Lon:         models.StringPtr("2.3522"),
		URL:         models.StringPtr(lumiere.Link),
		Description: models.StringPtr("A quiet place by the river."),
		Position:    4,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractAbsentFields(t *testing.T) {
	doc := parseDoc(t, `<html><body><h1>Sparse page</h1></body></html>`, lumiere.Link)

	got, err := NewExtractor(testLocators()).Extract(doc, lumiere)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if got.Lat != nil || got.Lon != nil {
		t.Fatalf("coordinates should both be absent, got %v/%v", got.Lat, got.Lon)
	}
	if got.Score != nil || got.Reviews != nil || got.Description != nil {
		t.Fatalf("unexpected values on sparse page")
	}
	if models.Deref(got.URL) != lumiere.Link {
		t.Fatalf("url = %q, want handle link", models.Deref(got.URL))
	}
}

func TestExtractMalformedCoordinates(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"single part", "48.8566"},
		{"three parts", "48.8,2.3,9"},
		{"empty longitude", "48.8566,"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := parseDoc(t, `<html><body><a id="map" data-atlas-latlng="`+tt.value+`">m</a></body></html>`, lumiere.Link)
			_, err := NewExtractor(testLocators()).Extract(doc, lumiere)
			if !errors.Is(err, ErrMalformedCoordinates) {
				t.Fatalf("expected ErrMalformedCoordinates, got %v", err)
			}
			var extractErr *ExtractError
			if !errors.As(err, &extractErr) || extractErr.URL != lumiere.Link {
				t.Fatalf("expected ExtractError for %s, got %v", lumiere.Link, err)
			}
		})
	}
}

func TestExtractLocatorError(t *testing.T) {
	loc := testLocators()
	loc.Reviews = []string{`//span[`}
	doc := parseDoc(t, `<html><body></body></html>`, lumiere.Link)

	_, err := NewExtractor(loc).Extract(doc, lumiere)
	var locErr *document.LocatorError
	if !errors.As(err, &locErr) {
		t.Fatalf("expected LocatorError, got %v", err)
	}
}

func TestFirst(t *testing.T) {
	doc := parseDoc(t, `<html><body><b>  </b><i>two</i><u>three</u></body></html>`, lumiere.Link)

	got, err := First(doc, []string{`//b/text()`, `//em/text()`, `//i/text()`, `//u/text()`})
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if models.Deref(got) != "two" {
		t.Fatalf("First = %q, want two", models.Deref(got))
	}

	none, err := First(doc, []string{`//em/text()`})
	if err != nil || none != nil {
		t.Fatalf("First with no match = %v, %v", none, err)
	}
}

func TestValidateHotel(t *testing.T) {
	tests := []struct {
		name    string
		hotel   *models.Hotel
		wantErr bool
	}{
		{"nil", nil, true},
		{"missing url", &models.Hotel{Name: models.StringPtr("A")}, true},
		{"blank url", &models.Hotel{URL: &[]string{"  "}[0]}, true},
		{"valid", &models.Hotel{URL: models.StringPtr("https://example.test/a.html")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateHotel(tt.hotel)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateHotel err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNormalizeHotel(t *testing.T) {
	blank := "   "
	h := NormalizeHotel(&models.Hotel{
		Name:        models.StringPtr("  Hotel  "),
		Description: &blank,
		URL:         models.StringPtr("https://example.test/a.html"),
	})
	if models.Deref(h.Name) != "Hotel" {
		t.Fatalf("name = %q", models.Deref(h.Name))
	}
	if h.Description != nil {
		t.Fatalf("blank description should be nil")
	}
}
