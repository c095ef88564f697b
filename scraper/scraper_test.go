package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/aluiziolira/go-scrape-hotels/config"
	"github.com/aluiziolira/go-scrape-hotels/document"
	"github.com/aluiziolira/go-scrape-hotels/models"
)

const (
	baseURL    = "https://example.test/"
	resultsURL = "https://example.test/searchresults.html"
)

func landingPage(method string) string {
	return fmt.Sprintf(`<html><body>
<form id="search" action="/searchresults.html" method="%s">
  <input type="hidden" name="label" value="gen173">
  <input type="text" name="ss" value="">
  <button type="submit">Search</button>
</form>
</body></html>`, method)
}

// resultsPage renders cards at positions 1..len(links). An empty link leaves
// the anchor without href.
func resultsPage(links ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body><div id="results">`)
	for i, link := range links {
		if link == "" {
			fmt.Fprintf(&b, `<div><a><div>Hotel %d</div></a></div>`, i+1)
			continue
		}
		fmt.Fprintf(&b, `<div><a href="%s"><div>Hotel %d</div></a></div>`, link, i+1)
	}
	b.WriteString(`</div></body></html>`)
	return b.String()
}

func detailPage(score, latlng string) string {
	return fmt.Sprintf(`<html><body>
<p class="desc">Close to the station.</p>
<span class="score">%s</span>
<a id="map" data-atlas-latlng="%s">map</a>
</body></html>`, score, latlng)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.BaseURL = baseURL
	cfg.Parallelism = 2
	cfg.FailLogPath = t.TempDir() + "/fails.jsonl"
	cfg.Locators.ResultEntry = `//div[@id="results"]/div[{i}]/a`
	cfg.Locators.Description = []string{`//p[@class="desc"]/text()`}
	cfg.Locators.Score = []string{`//span[@class="score"]/text()`}
	cfg.Locators.Reviews = []string{`//span[@class="reviews"]/text()`}
	cfg.Locators.Coordinates = `//a[@id="map"]/@data-atlas-latlng`
	return cfg
}

// stubFetcher serves pages keyed by URL without query string.
type stubFetcher struct {
	mu       sync.Mutex
	pages    map[string]string
	requests []Request
}

func (f *stubFetcher) Fetch(ctx context.Context, req Request) (*document.Document, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	pageURL, err := url.Parse(req.URL)
	if err != nil {
		return nil, err
	}
	key := *pageURL
	key.RawQuery = ""
	body, ok := f.pages[key.String()]
	if !ok {
		return nil, &FetchError{Kind: KindNotFound, URL: req.URL, Status: http.StatusNotFound, Err: errors.New("not found")}
	}
	return document.ParseBytes([]byte(body), pageURL)
}

func (f *stubFetcher) requestsFor(stage State) []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Request
	for _, r := range f.requests {
		if r.Stage == stage {
			out = append(out, r)
		}
	}
	return out
}

type fakeRecorder struct {
	mu    sync.Mutex
	calls []models.SearchCriteria
	err   error
}

func (r *fakeRecorder) Record(criteria models.SearchCriteria) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, criteria.Clone())
	return r.err
}

type collectSink struct {
	mu     sync.Mutex
	hotels []*models.Hotel
}

func (s *collectSink) Process(hotels ...*models.Hotel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hotels = append(s.hotels, hotels...)
	return nil
}

var paris = models.SearchCriteria{{Name: "ss", Value: "Paris"}, {Name: "group_adults", Value: "2"}}

func newTestScraper(t *testing.T, cfg *config.Config, fetcher Fetcher, rec Recorder) *Scraper {
	t.Helper()
	s, err := NewScraper(cfg, WithFetcher(fetcher), WithRecorder(rec))
	if err != nil {
		t.Fatalf("new scraper: %v", err)
	}
	return s
}

func TestRunAbortsAfterLinklessMisses(t *testing.T) {
	cfg := testConfig(t)
	fetcher := &stubFetcher{pages: map[string]string{
		baseURL:    landingPage("get"),
		resultsURL: resultsPage(),
	}}
	rec := &fakeRecorder{}
	s := newTestScraper(t, cfg, fetcher, rec)

	result, err := s.Run(context.Background(), paris, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if result.Status != models.StatusAborted {
		t.Fatalf("status = %s, want aborted", result.Status)
	}
	if len(result.Records) != 0 {
		t.Fatalf("records = %d, want 0", len(result.Records))
	}
	if result.Misses != cfg.MissThreshold {
		t.Fatalf("misses = %d, want %d", result.Misses, cfg.MissThreshold)
	}
	if want := cfg.Window.Start + cfg.MissThreshold - 1; result.LastPosition != want {
		t.Fatalf("last position = %d, want %d", result.LastPosition, want)
	}
	if len(rec.calls) != 1 {
		t.Fatalf("record calls = %d, want 1", len(rec.calls))
	}
	if diff := cmp.Diff(paris, rec.calls[0]); diff != "" {
		t.Fatalf("recorded criteria mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(paris, result.AbortedCriteria); diff != "" {
		t.Fatalf("aborted criteria mismatch (-want +got):\n%s", diff)
	}
	if got := len(fetcher.requestsFor(StateDetail)); got != 0 {
		t.Fatalf("detail requests = %d, want 0", got)
	}
	if got := testutil.ToFloat64(s.Metrics.AbortsTotal); got != 1 {
		t.Fatalf("aborts metric = %v, want 1", got)
	}
	if got := testutil.ToFloat64(s.Metrics.PositionsTotal.WithLabelValues("miss")); got != float64(cfg.MissThreshold) {
		t.Fatalf("miss positions metric = %v", got)
	}
}

func TestRunMixedResults(t *testing.T) {
	tests := []struct {
		name       string
		failing    string
		errorKind  string
		wantErrors int
	}{
		{name: "detail page not found", failing: "", errorKind: KindNotFound, wantErrors: 1},
		{name: "malformed coordinates", failing: detailPage("7.1", "48.85"), wantErrors: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Window = config.Window{Start: 3, End: 10}

			pages := map[string]string{
				baseURL:    landingPage("get"),
				resultsURL: resultsPage("", "", "/hotel/3.html", "/hotel/4.html", "/hotel/5.html"),
				"https://example.test/hotel/3.html": detailPage(" 8.7 ", "48.8566,2.3522"),
				"https://example.test/hotel/5.html": detailPage("9.1", ""),
			}
			if tt.failing != "" {
				pages["https://example.test/hotel/4.html"] = tt.failing
			}
			fetcher := &stubFetcher{pages: pages}
			rec := &fakeRecorder{}
			sink := &collectSink{}
			s := newTestScraper(t, cfg, fetcher, rec)

			result, err := s.Run(context.Background(), paris, sink)
			if err != nil {
				t.Fatalf("run: %v", err)
			}

			if result.Status != models.StatusCompleted {
				t.Fatalf("status = %s, want completed", result.Status)
			}
			if result.DetailAttempts != 3 || result.Hits != 3 {
				t.Fatalf("attempts = %d hits = %d, want 3/3", result.DetailAttempts, result.Hits)
			}
			if result.DetailFailures != 1 {
				t.Fatalf("detail failures = %d, want 1", result.DetailFailures)
			}
			if result.Misses != 5 {
				t.Fatalf("misses = %d, want 5", result.Misses)
			}
			if len(rec.calls) != 0 {
				t.Fatalf("recorder should not be called, got %d calls", len(rec.calls))
			}
			if len(sink.hotels) != 2 {
				t.Fatalf("sink received %d records, want 2", len(sink.hotels))
			}
			if tt.errorKind != "" && result.ErrorsByType[tt.errorKind] != tt.wantErrors {
				t.Fatalf("errors by type = %v", result.ErrorsByType)
			}

			want := []*models.Hotel{
				{
					Name:        models.StringPtr("Hotel 3"),
					Score:       models.StringPtr("8.7"),
					Lat:         models.StringPtr("48.8566"),
					Lon:         models.StringPtr("2.3522"),
					URL:         models.StringPtr("https://example.test/hotel/3.html"),
					Description: models.StringPtr("Close to the station."),
					Position:    3,
				},
				{
					Name:        models.StringPtr("Hotel 5"),
					Score:       models.StringPtr("9.1"),
					URL:         models.StringPtr("https://example.test/hotel/5.html"),
					Description: models.StringPtr("Close to the station."),
					Position:    5,
				},
			}
			if diff := cmp.Diff(want, result.Records); diff != "" {
				t.Fatalf("records mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRunLinkedMissesDoNotAbort(t *testing.T) {
	cfg := testConfig(t)
	cfg.Window = config.Window{Start: 1, End: 4}
	cfg.MissThreshold = 2
	// Anchors with a link but no name text.
	results := `<html><body><div id="results">` +
		strings.Repeat(`<div><a href="/hotel/x.html"></a></div>`, 4) +
		`</div></body></html>`
	fetcher := &stubFetcher{pages: map[string]string{
		baseURL:    landingPage("get"),
		resultsURL: results,
	}}
	rec := &fakeRecorder{}
	s := newTestScraper(t, cfg, fetcher, rec)

	result, err := s.Run(context.Background(), paris, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Status != models.StatusCompleted {
		t.Fatalf("status = %s, want completed", result.Status)
	}
	if result.Misses != 4 || result.LastPosition != 4 {
		t.Fatalf("misses = %d last = %d, want 4/4", result.Misses, result.LastPosition)
	}
	if len(rec.calls) != 0 {
		t.Fatalf("recorder called %d times", len(rec.calls))
	}
}

func TestRunRecorderFailureStillAborts(t *testing.T) {
	cfg := testConfig(t)
	cfg.Window = config.Window{Start: 1, End: 5}
	cfg.MissThreshold = 1
	fetcher := &stubFetcher{pages: map[string]string{
		baseURL:    landingPage("get"),
		resultsURL: resultsPage(),
	}}
	rec := &fakeRecorder{err: errors.New("disk full")}
	s := newTestScraper(t, cfg, fetcher, rec)

	result, err := s.Run(context.Background(), paris, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Status != models.StatusAborted {
		t.Fatalf("status = %s, want aborted", result.Status)
	}
	if result.AbortedCriteria != nil {
		t.Fatalf("aborted criteria should be unset when recording fails")
	}
	if result.LastPosition != 1 {
		t.Fatalf("last position = %d, want 1", result.LastPosition)
	}
}

func TestRunSubmitsCriteria(t *testing.T) {
	cfg := testConfig(t)
	cfg.Window = config.Window{Start: 1, End: 1}
	fetcher := &stubFetcher{pages: map[string]string{
		baseURL:    landingPage("get"),
		resultsURL: resultsPage(),
	}}
	s := newTestScraper(t, cfg, fetcher, &fakeRecorder{})

	if _, err := s.Run(context.Background(), paris, nil); err != nil {
		t.Fatalf("run: %v", err)
	}

	submits := fetcher.requestsFor(StateSubmit)
	if len(submits) != 1 {
		t.Fatalf("submit requests = %d, want 1", len(submits))
	}
	target, err := url.Parse(submits[0].URL)
	if err != nil {
		t.Fatalf("parse submit url: %v", err)
	}
	query := target.Query()
	if query.Get("ss") != "Paris" || query.Get("group_adults") != "2" || query.Get("label") != "gen173" {
		t.Fatalf("unexpected submit query %q", target.RawQuery)
	}
	if submits[0].Method != http.MethodGet {
		t.Fatalf("submit method = %s", submits[0].Method)
	}
}

func TestRunFatalErrors(t *testing.T) {
	tests := []struct {
		name    string
		pages   map[string]string
		wantErr error
	}{
		{
			name:    "landing page unavailable",
			pages:   map[string]string{},
			wantErr: ErrLandingPage,
		},
		{
			name:    "search input missing",
			pages:   map[string]string{baseURL: `<html><body><form><input name="q"></form></body></html>`},
			wantErr: document.ErrSearchInputNotFound,
		},
		{
			name:    "results page unavailable",
			pages:   map[string]string{baseURL: landingPage("get")},
			wantErr: ErrSearchSubmit,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &fakeRecorder{}
			s := newTestScraper(t, testConfig(t), &stubFetcher{pages: tt.pages}, rec)

			result, err := s.Run(context.Background(), paris, nil)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if result != nil {
				t.Fatalf("fatal errors should not return a result")
			}
			if len(rec.calls) != 0 {
				t.Fatalf("fatal errors should not be recorded")
			}
		})
	}
}

func TestRunDoesNotShareStateBetweenRuns(t *testing.T) {
	cfg := testConfig(t)
	cfg.Window = config.Window{Start: 1, End: 3}
	cfg.MissThreshold = 2
	fetcher := &stubFetcher{pages: map[string]string{
		baseURL:    landingPage("get"),
		resultsURL: resultsPage(),
	}}
	rec := &fakeRecorder{}
	s := newTestScraper(t, cfg, fetcher, rec)

	var wg sync.WaitGroup
	results := make([]*models.CrawlResult, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			criteria := models.SearchCriteria{{Name: "ss", Value: fmt.Sprintf("city-%d", i)}}
			res, err := s.Run(context.Background(), criteria, nil)
			if err != nil {
				t.Errorf("run %d: %v", i, err)
				return
			}
			results[i] = res
		}(i)
	}
	wg.Wait()

	for i, res := range results {
		if res == nil {
			continue
		}
		if res.Misses != 2 || res.Status != models.StatusAborted {
			t.Fatalf("run %d: misses = %d status = %s", i, res.Misses, res.Status)
		}
	}
	if len(rec.calls) != len(results) {
		t.Fatalf("record calls = %d, want %d", len(rec.calls), len(results))
	}
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		StateInit:      "init",
		StateSubmit:    "submit",
		StateWalk:      "walk",
		StateDetail:    "detail",
		StateCompleted: "completed",
		StateAborted:   "aborted",
		State(42):      "state(42)",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(state), got, want)
		}
	}
}
