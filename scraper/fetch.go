package scraper

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/aluiziolira/go-scrape-hotels/config"
	"github.com/aluiziolira/go-scrape-hotels/document"
	"github.com/gocolly/colly/v2"
)

// Request is one outbound fetch.
type Request struct {
	Stage  State
	Method string
	URL    string
	// Body is the urlencoded form for POST requests.
	Body string
}

// Fetcher retrieves and parses a page.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (*document.Document, error)
}

// CollyFetcher fetches through a synchronous colly collector. Every call
// runs on a clone so concurrent fetches keep their own callbacks while
// sharing the HTTP client and rate limits.
type CollyFetcher struct {
	collector *colly.Collector
	metrics   *Metrics
}

// NewCollyFetcher builds a fetcher that identifies itself with cfg.UserAgent.
func NewCollyFetcher(cfg *config.Config, metrics *Metrics) (*CollyFetcher, error) {
	collector := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = true
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.Parallelism,
		Delay:       cfg.Delay,
		RandomDelay: cfg.RandomDelay,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	return &CollyFetcher{collector: collector, metrics: metrics}, nil
}

// WithTransport replaces the HTTP transport of every subsequent fetch.
func (f *CollyFetcher) WithTransport(rt http.RoundTripper) {
	f.collector.WithTransport(rt)
}

// Fetch issues req and parses the response body. Non-2xx responses and
// transport failures are returned as *FetchError.
func (f *CollyFetcher) Fetch(ctx context.Context, req Request) (*document.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, &FetchError{Kind: KindCanceled, URL: req.URL, Err: err}
	}

	c := f.collector.Clone()

	var (
		body    []byte
		pageURL *url.URL
		status  int
		start   time.Time
	)
	c.OnRequest(func(r *colly.Request) {
		start = time.Now()
	})
	c.OnResponse(func(r *colly.Response) {
		body = r.Body
		status = r.StatusCode
		pageURL = r.Request.URL
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
	})

	var err error
	switch req.Method {
	case http.MethodPost:
		err = c.PostRaw(req.URL, []byte(req.Body))
	case "", http.MethodGet:
		err = c.Visit(req.URL)
	default:
		return nil, fmt.Errorf("unsupported method %q", req.Method)
	}
	if !start.IsZero() {
		f.metrics.ObserveRequest(req.Stage.String(), time.Since(start))
	}

	if classified := classifyError(req.URL, err, status); classified != nil {
		return nil, classified
	}
	if pageURL == nil {
		pageURL, _ = url.Parse(req.URL)
	}

	doc, err := document.ParseBytes(body, pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", req.URL, err)
	}
	return doc, nil
}
