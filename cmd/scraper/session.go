package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-hotels/config"
	"github.com/aluiziolira/go-scrape-hotels/models"
	"github.com/aluiziolira/go-scrape-hotels/pipeline"
	"github.com/aluiziolira/go-scrape-hotels/scraper"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

// loadConfig layers defaults, the config file, SCRAPER_* environment
// variables and explicitly set flags, in that order.
func loadConfig(cmd *cobra.Command, outputFile string) (*config.Config, error) {
	cfg := config.DefaultConfig()

	if opts.configFile != "" {
		file, err := config.ReadFile(opts.configFile)
		if err != nil {
			return nil, err
		}
		if err := file.Apply(cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("base-url") {
		cfg.BaseURL = opts.baseURL
	}
	if flags.Changed("user-agent") {
		cfg.UserAgent = opts.userAgent
	}
	if flags.Changed("parallel") {
		cfg.Parallelism = opts.parallelism
	}
	if flags.Changed("delay") {
		cfg.Delay = opts.delay
	}
	if flags.Changed("random-delay") {
		cfg.RandomDelay = opts.randomDelay
	}
	if flags.Changed("timeout") {
		cfg.Timeout = opts.timeout
	}
	if flags.Changed("window-start") {
		cfg.Window.Start = opts.windowStart
	}
	if flags.Changed("window-end") {
		cfg.Window.End = opts.windowEnd
	}
	if flags.Changed("miss-threshold") {
		cfg.MissThreshold = opts.missThreshold
	}
	if flags.Changed("output-dir") {
		cfg.OutputDir = opts.outputDir
	}
	if flags.Changed("format") {
		cfg.OutputFormat = strings.ToLower(opts.outputFormat)
	}
	if flags.Changed("fail-log") {
		cfg.FailLogPath = opts.failLog
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = opts.metricsAddr
	}
	cfg.Verbose = opts.verbose
	cfg.OutputFile = outputFile

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *config.Config) error {
	if value, ok, err := config.EnvInt("SCRAPER_PARALLEL"); err != nil {
		return fmt.Errorf("invalid SCRAPER_PARALLEL: %w", err)
	} else if ok {
		cfg.Parallelism = value
	}
	if value, ok, err := config.EnvInt("SCRAPER_MISS_THRESHOLD"); err != nil {
		return fmt.Errorf("invalid SCRAPER_MISS_THRESHOLD: %w", err)
	} else if ok {
		cfg.MissThreshold = value
	}
	if value, ok := config.EnvString("SCRAPER_USER_AGENT"); ok {
		cfg.UserAgent = value
	}
	if value, ok := config.EnvString("SCRAPER_OUTPUT_DIR"); ok {
		cfg.OutputDir = value
	}
	if value, ok := config.EnvString("SCRAPER_FAIL_LOG"); ok {
		cfg.FailLogPath = value
	}
	if value, ok := config.EnvString("SCRAPER_METRICS_ADDR"); ok {
		cfg.MetricsAddr = value
	}
	return nil
}

// session owns the scraper, the output pipeline and the metrics server for
// one command invocation.
type session struct {
	cfg           *config.Config
	scraper       *scraper.Scraper
	writer        pipeline.OutputWriter
	pipeline      *pipeline.Pipeline
	metricsServer *http.Server
	start         time.Time
}

func newSession(ctx context.Context, cfg *config.Config) (*session, error) {
	s, err := scraper.NewScraper(cfg)
	if err != nil {
		return nil, fmt.Errorf("initialising scraper: %w", err)
	}

	writer, err := pipeline.NewWriter(cfg.OutputFormat, cfg.OutputPath())
	if err != nil {
		return nil, fmt.Errorf("creating writer: %w", err)
	}

	sess := &session{cfg: cfg, scraper: s, writer: writer, start: time.Now()}

	if cfg.MetricsAddr != "" {
		sess.metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(s.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := sess.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	// Records already extracted are still written after a shutdown signal.
	sess.pipeline = pipeline.NewPipeline(context.WithoutCancel(ctx), writer, cfg)
	sess.pipeline.Start(1)
	if cfg.Verbose {
		sess.pipeline.StartMetricsReporting(10 * time.Second)
	}
	return sess, nil
}

func (s *session) run(ctx context.Context, criteria models.SearchCriteria) (*models.CrawlResult, error) {
	slog.Info("starting crawl",
		slog.String("base_url", s.cfg.BaseURL),
		slog.String("criteria", criteria.String()),
		slog.Int("window_start", s.cfg.Window.Start),
		slog.Int("window_end", s.cfg.Window.End),
	)
	return s.scraper.Run(ctx, criteria, s.pipeline)
}

// close drains the pipeline, closes the writer and stops the metrics server.
func (s *session) close() error {
	var errs []error
	if err := s.pipeline.Close(); err != nil {
		errs = append(errs, fmt.Errorf("pipeline shutdown failed: %w", err))
	}
	if err := s.writer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close writer: %w", err))
	}
	if len(errs) == 0 {
		if err := s.writer.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("output validation failed: %w", err))
		}
	}

	if s.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}
	return errors.Join(errs...)
}

func (s *session) printSummary(results []*models.CrawlResult) {
	stats := s.pipeline.Stats()
	duration := time.Since(s.start)

	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Crawl complete")

	var hits, misses, attempts, failures, requests, errCount, aborted int
	errorsByType := make(map[string]int)
	for _, r := range results {
		hits += r.Hits
		misses += r.Misses
		attempts += r.DetailAttempts
		failures += r.DetailFailures
		requests += r.RequestCount
		errCount += r.ErrorCount
		if r.Status == models.StatusAborted {
			aborted++
		}
		for k, v := range r.ErrorsByType {
			errorsByType[k] += v
		}
	}

	fmt.Printf("  Runs:            %d (aborted %d)\n", len(results), aborted)
	fmt.Printf("  Positions:       %d hits, %d misses\n", hits, misses)
	fmt.Printf("  Detail pages:    %d attempted, %d failed\n", attempts, failures)
	fmt.Printf("  Records written: %d\n", stats.Processed)
	fmt.Printf("  Requests:        %d (%d errors)\n", requests, errCount)
	if len(errorsByType) > 0 {
		fmt.Printf("  Error types:     %v\n", errorsByType)
	}
	if len(stats.Rejected) > 0 {
		fmt.Printf("  Rejected:        %v\n", stats.Rejected)
	}
	fmt.Printf("  Duration:        %v\n", duration)
	fmt.Printf("  Output file:     %s\n", s.cfg.OutputPath())
	if aborted > 0 {
		fmt.Printf("  Fail log:        %s\n", s.cfg.FailLogPath)
	}
	fmt.Println(separator)
}
