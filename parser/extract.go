// Package parser walks results pages and extracts hotel records from detail
// pages.
package parser

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aluiziolira/go-scrape-hotels/config"
	"github.com/aluiziolira/go-scrape-hotels/document"
	"github.com/aluiziolira/go-scrape-hotels/models"
)

// ErrMalformedCoordinates is returned when the combined coordinate value does
// not split into exactly latitude and longitude.
var ErrMalformedCoordinates = errors.New("malformed coordinates")

// ExtractError wraps any failure while extracting one detail page.
type ExtractError struct {
	URL string
	Err error
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.URL, e.Err)
}

func (e *ExtractError) Unwrap() error {
	return e.Err
}

// Extractor pulls hotel fields from a detail page using ordered locator
// attempts per field.
type Extractor struct {
	description []string
	score       []string
	reviews     []string
	coordinates string
	sep         string
}

// NewExtractor builds an extractor from the detail locators.
func NewExtractor(loc config.Locators) *Extractor {
	return &Extractor{
		description: loc.Description,
		score:       loc.Score,
		reviews:     loc.Reviews,
		coordinates: loc.Coordinates,
		sep:         loc.CoordinateSep,
	}
}

// Extract builds the record for the detail page reached through handle.
// Missing fields are nil; only locator failures and malformed coordinates
// are errors.
func (e *Extractor) Extract(doc *document.Document, handle models.ResultHandle) (*models.Hotel, error) {
	wrap := func(err error) error {
		return &ExtractError{URL: handle.Link, Err: err}
	}

	description, err := First(doc, e.description)
	if err != nil {
		return nil, wrap(err)
	}
	score, err := First(doc, e.score)
	if err != nil {
		return nil, wrap(err)
	}
	reviews, err := First(doc, e.reviews)
	if err != nil {
		return nil, wrap(err)
	}
	lat, lon, err := e.latLon(doc)
	if err != nil {
		return nil, wrap(err)
	}

	return &models.Hotel{
		Name:        models.StringPtr(strings.TrimSpace(handle.Name)),
		Score:       score,
		Reviews:     reviews,
		Lat:         lat,
		Lon:         lon,
		URL:         models.StringPtr(strings.TrimSpace(handle.Link)),
		Description: description,
		Position:    handle.Position,
	}, nil
}

func (e *Extractor) latLon(doc *document.Document) (*string, *string, error) {
	if e.coordinates == "" {
		return nil, nil, nil
	}
	combined, err := doc.Text(e.coordinates)
	if err != nil {
		return nil, nil, err
	}
	combined = strings.TrimSpace(combined)
	if combined == "" {
		return nil, nil, nil
	}
	parts := strings.Split(combined, e.sep)
	if len(parts) != 2 {
		return nil, nil, fmt.Errorf("%w: %q", ErrMalformedCoordinates, combined)
	}
	lat := models.StringPtr(strings.TrimSpace(parts[0]))
	lon := models.StringPtr(strings.TrimSpace(parts[1]))
	if lat == nil || lon == nil {
		return nil, nil, fmt.Errorf("%w: %q", ErrMalformedCoordinates, combined)
	}
	return lat, lon, nil
}

// First returns the trimmed value of the first expression that yields a
// non-empty result, or nil when none does.
func First(doc *document.Document, exprs []string) (*string, error) {
	for _, expr := range exprs {
		value, err := doc.Text(expr)
		if err != nil {
			return nil, err
		}
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return &trimmed, nil
		}
	}
	return nil, nil
}
