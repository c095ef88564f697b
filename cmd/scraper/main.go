package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aluiziolira/go-scrape-hotels/config"
	"github.com/spf13/cobra"
)

type options struct {
	configFile    string
	baseURL       string
	userAgent     string
	parallelism   int
	delay         time.Duration
	randomDelay   time.Duration
	timeout       time.Duration
	windowStart   int
	windowEnd     int
	missThreshold int
	outputDir     string
	outputFormat  string
	failLog       string
	metricsAddr   string
	verbose       bool
}

var opts options

var rootCmd = &cobra.Command{
	Use:           "scraper",
	Short:         "scraper crawls hotel search results into CSV or JSONL.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger, level := newLogger(opts.verbose)
		slog.SetDefault(logger)
		slog.SetLogLoggerLevel(level.Level())
	},
}

func init() {
	defaults := config.DefaultConfig()
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "json5 configuration file (locators, window, threshold)")
	flags.StringVar(&opts.baseURL, "base-url", defaults.BaseURL, "Landing page of the site to crawl")
	flags.StringVar(&opts.userAgent, "user-agent", defaults.UserAgent, "Identification header sent with every request")
	flags.IntVar(&opts.parallelism, "parallel", defaults.Parallelism, "Maximum concurrent detail page fetches")
	flags.DurationVar(&opts.delay, "delay", defaults.Delay, "Delay between requests")
	flags.DurationVar(&opts.randomDelay, "random-delay", defaults.RandomDelay, "Random jitter added to delay")
	flags.DurationVar(&opts.timeout, "timeout", defaults.Timeout, "Per-request timeout")
	flags.IntVar(&opts.windowStart, "window-start", defaults.Window.Start, "First results-list position to walk")
	flags.IntVar(&opts.windowEnd, "window-end", defaults.Window.End, "Last results-list position to walk")
	flags.IntVar(&opts.missThreshold, "miss-threshold", defaults.MissThreshold, "Misses after which a linkless position aborts the run")
	flags.StringVar(&opts.outputDir, "output-dir", defaults.OutputDir, "Directory output files are written to")
	flags.StringVar(&opts.outputFormat, "format", defaults.OutputFormat, "Output format: csv, json, or dual")
	flags.StringVar(&opts.failLog, "fail-log", defaults.FailLogPath, "Append-only log of aborted search criteria")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", defaults.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose logging")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
