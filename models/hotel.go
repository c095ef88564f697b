// Package models defines data structures for the scraper.
package models

import "time"

// Columns is the output column order shared by every writer.
var Columns = []string{
	"hotel_name",
	"hotel_score",
	"hotel_reviews",
	"hotel_lat",
	"hotel_lon",
	"hotel_url",
	"hotel_description",
}

// ResultHandle is a (name, link) pair found at one position of the results list.
type ResultHandle struct {
	Position int
	Name     string
	Link     string
}

// Hotel is the record extracted from one detail page. A nil field means the
// value could not be located.
type Hotel struct {
	Name        *string `csv:"hotel_name" json:"hotel_name"`
	Score       *string `csv:"hotel_score" json:"hotel_score"`
	Reviews     *string `csv:"hotel_reviews" json:"hotel_reviews"`
	Lat         *string `csv:"hotel_lat" json:"hotel_lat"`
	Lon         *string `csv:"hotel_lon" json:"hotel_lon"`
	URL         *string `csv:"hotel_url" json:"hotel_url"`
	Description *string `csv:"hotel_description" json:"hotel_description"`

	// Position is the results-list index the record was discovered at.
	Position int `csv:"-" json:"-"`
}

// Values returns the record fields in Columns order.
func (h *Hotel) Values() []*string {
	return []*string{h.Name, h.Score, h.Reviews, h.Lat, h.Lon, h.URL, h.Description}
}

// SetValues assigns fields from a slice in Columns order.
func (h *Hotel) SetValues(values []*string) {
	fields := []**string{&h.Name, &h.Score, &h.Reviews, &h.Lat, &h.Lon, &h.URL, &h.Description}
	for i := range fields {
		if i < len(values) {
			*fields[i] = values[i]
		}
	}
}

// StringPtr returns nil for an empty string and a pointer to s otherwise.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or "" for nil.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// CrawlStatus is the terminal state of a crawl run.
type CrawlStatus string

const (
	StatusCompleted CrawlStatus = "completed"
	StatusAborted   CrawlStatus = "aborted"
)

// CrawlResult holds the overall result of one crawl run.
type CrawlResult struct {
	Status CrawlStatus
	// AbortedCriteria is set when the run was aborted and its criteria recorded.
	AbortedCriteria SearchCriteria
	Records         []*Hotel

	StartTime      time.Time
	EndTime        time.Time
	Hits           int
	Misses         int
	LastPosition   int
	DetailAttempts int
	DetailFailures int
	RequestCount   int
	ErrorCount     int
	FailedURLs     []string
	ErrorsByType   map[string]int
}
