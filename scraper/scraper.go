// Package scraper drives a crawl run: landing page, search submission,
// results walk and detail extraction.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-hotels/config"
	"github.com/aluiziolira/go-scrape-hotels/document"
	"github.com/aluiziolira/go-scrape-hotels/faillog"
	"github.com/aluiziolira/go-scrape-hotels/models"
	"github.com/aluiziolira/go-scrape-hotels/parser"
	"github.com/aluiziolira/go-scrape-hotels/pipeline"
	"golang.org/x/sync/errgroup"
)

// State is a stage of a crawl run.
type State int

const (
	StateInit State = iota
	StateSubmit
	StateWalk
	StateDetail
	StateCompleted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateSubmit:
		return "submit"
	case StateWalk:
		return "walk"
	case StateDetail:
		return "detail"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Sink receives records as they are extracted.
type Sink interface {
	Process(hotels ...*models.Hotel) error
}

// Recorder persists the criteria of an aborted run.
type Recorder interface {
	Record(criteria models.SearchCriteria) error
}

// Scraper runs crawls against the configured site. One Scraper may serve
// several concurrent runs; each run owns its own counters and records.
type Scraper struct {
	cfg       *config.Config
	fetcher   Fetcher
	walker    *parser.Walker
	extractor *parser.Extractor
	recorder  Recorder
	Metrics   *Metrics
}

// Option customises a Scraper.
type Option func(*Scraper)

// WithFetcher replaces the default colly fetcher.
func WithFetcher(f Fetcher) Option {
	return func(s *Scraper) { s.fetcher = f }
}

// WithRecorder replaces the fail log recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Scraper) { s.recorder = r }
}

// NewScraper builds a scraper instance configured from cfg.
func NewScraper(cfg *config.Config, opts ...Option) (*Scraper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	s := &Scraper{
		cfg:       cfg,
		walker:    parser.NewWalker(cfg.Locators),
		extractor: parser.NewExtractor(cfg.Locators),
		Metrics:   NewMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.fetcher == nil {
		fetcher, err := NewCollyFetcher(cfg, s.Metrics)
		if err != nil {
			return nil, err
		}
		s.fetcher = fetcher
	}
	if s.recorder == nil {
		s.recorder = faillog.NewRecorder(cfg.FailLogPath)
	}
	return s, nil
}

// Run crawls the site for criteria and sends every extracted record to sink,
// which may be nil. Only a failed landing page fetch or search submission is
// returned as an error; an aborted run is reported through the result.
func (s *Scraper) Run(ctx context.Context, criteria models.SearchCriteria, sink Sink) (*models.CrawlResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	r := &run{
		s:            s,
		criteria:     criteria.Clone(),
		sink:         sink,
		errorsByType: make(map[string]int),
		result:       &models.CrawlResult{StartTime: time.Now()},
	}
	return r.execute(ctx)
}

type run struct {
	s        *Scraper
	criteria models.SearchCriteria
	sink     Sink
	state    State

	mu           sync.Mutex
	result       *models.CrawlResult
	errorsByType map[string]int
}

func (r *run) execute(ctx context.Context) (*models.CrawlResult, error) {
	cfg := r.s.cfg

	r.transition(StateInit)
	landing, err := r.fetch(ctx, Request{Stage: StateInit, Method: http.MethodGet, URL: cfg.BaseURL})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLandingPage, err)
	}

	r.transition(StateSubmit)
	form, err := landing.Form(cfg.Locators.SearchInput, r.criteria)
	if err != nil {
		return nil, fmt.Errorf("locate search form: %w", err)
	}
	target, err := form.TargetURL()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSearchSubmit, err)
	}
	req := Request{Stage: StateSubmit, Method: form.Method, URL: target}
	if form.Method == http.MethodPost {
		req.Body = form.Encode()
	}
	results, err := r.fetch(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSearchSubmit, err)
	}
	slog.Info("reached search results", slog.String("url", target))

	r.transition(StateWalk)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Parallelism)

	final := StateCompleted
	misses := 0
	for pos := range r.s.walker.Walk(results, cfg.Window) {
		if ctx.Err() != nil {
			slog.Info("crawl cancelled, no further detail pages scheduled", slog.Int("index", pos.Index))
			break
		}
		r.result.LastPosition = pos.Index
		r.s.Metrics.IncPosition(pos.Outcome.String())

		if pos.Outcome == parser.Hit {
			r.result.Hits++
			r.result.DetailAttempts++
			handle := *pos.Handle
			g.Go(func() error {
				r.detail(gctx, handle)
				return nil
			})
			continue
		}

		misses++
		r.result.Misses = misses
		if misses >= cfg.MissThreshold && !pos.LinkFound {
			slog.Error("no URL found, saving to fail log",
				slog.Int("index", pos.Index),
				slog.Int("misses", misses),
				slog.String("criteria", r.criteria.String()),
			)
			if err := r.s.recorder.Record(r.criteria); err != nil {
				slog.Error("record failed criteria", slog.Any("error", err))
			} else {
				r.result.AbortedCriteria = r.criteria.Clone()
			}
			r.s.Metrics.IncAborts()
			final = StateAborted
			break
		}
	}

	r.transition(StateDetail)
	_ = g.Wait()

	r.transition(final)
	return r.finish(final), nil
}

func (r *run) transition(next State) {
	slog.Debug("crawl state", slog.String("from", r.state.String()), slog.String("to", next.String()))
	r.state = next
}

func (r *run) detail(ctx context.Context, handle models.ResultHandle) {
	doc, err := r.fetch(ctx, Request{Stage: StateDetail, Method: http.MethodGet, URL: handle.Link})
	if err != nil {
		r.detailFailed(handle, err)
		return
	}

	hotel, err := r.s.extractor.Extract(doc, handle)
	if err != nil {
		r.detailFailed(handle, err)
		return
	}

	r.mu.Lock()
	r.result.Records = append(r.result.Records, hotel)
	r.mu.Unlock()
	r.s.Metrics.IncRecords()

	if r.sink == nil {
		return
	}
	if err := r.sink.Process(hotel); err != nil && !errors.Is(err, pipeline.ErrPipelineClosed) {
		slog.Error("pipeline process error", slog.Any("error", err))
	}
}

func (r *run) detailFailed(handle models.ResultHandle, err error) {
	slog.Error("error after url",
		slog.Int("index", handle.Position),
		slog.String("url", handle.Link),
		slog.Any("error", err),
	)
	r.s.Metrics.IncDetailFailures()

	r.mu.Lock()
	r.result.DetailFailures++
	r.mu.Unlock()
}

func (r *run) fetch(ctx context.Context, req Request) (*document.Document, error) {
	r.mu.Lock()
	r.result.RequestCount++
	r.mu.Unlock()

	doc, err := r.s.fetcher.Fetch(ctx, req)
	if err == nil {
		return doc, nil
	}

	category := errorLabel(err)
	slog.Error("request error",
		slog.String("stage", req.Stage.String()),
		slog.String("url", req.URL),
		slog.String("category", category),
		slog.Any("error", err),
	)
	r.s.Metrics.IncError(category)

	r.mu.Lock()
	r.result.ErrorCount++
	r.errorsByType[category]++
	r.result.FailedURLs = append(r.result.FailedURLs, req.URL)
	r.mu.Unlock()
	return nil, err
}

func (r *run) finish(final State) *models.CrawlResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := r.result
	res.EndTime = time.Now()
	res.Status = models.StatusCompleted
	if final == StateAborted {
		res.Status = models.StatusAborted
	}
	res.ErrorsByType = make(map[string]int, len(r.errorsByType))
	for k, v := range r.errorsByType {
		res.ErrorsByType[k] = v
	}
	slices.SortStableFunc(res.Records, func(a, b *models.Hotel) int {
		return a.Position - b.Position
	})
	return res
}
