package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Window is the one-based, inclusive range of result-list positions walked.
type Window struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Size returns the number of positions in the window.
func (w Window) Size() int {
	if w.End < w.Start {
		return 0
	}
	return w.End - w.Start + 1
}

// Locators holds the XPath expressions used against the target site. The
// ResultEntry template is evaluated once per position with {i} replaced by
// the position index. ResultName and ResultLink are relative to the entry.
type Locators struct {
	SearchInput   string   `json:"search_input"`
	ResultEntry   string   `json:"result_entry"`
	ResultName    string   `json:"result_name"`
	ResultLink    string   `json:"result_link"`
	Description   []string `json:"description"`
	Score         []string `json:"score"`
	Reviews       []string `json:"reviews"`
	Coordinates   string   `json:"coordinates"`
	CoordinateSep string   `json:"coordinate_separator"`
}

// Config holds scraper configuration.
type Config struct {
	BaseURL            string
	UserAgent          string
	Parallelism        int
	Delay              time.Duration
	RandomDelay        time.Duration
	Timeout            time.Duration
	Window             Window
	MissThreshold      int
	OutputDir          string
	OutputFile         string
	OutputFormat       string // csv, json, or dual
	FailLogPath        string
	PipelineBufferSize int
	BatchSize          int
	DedupeMaxSize      int
	MetricsAddr        string
	Verbose            bool
	Locators           Locators
}

// DefaultLocators returns the locators for the current booking.com markup.
func DefaultLocators() Locators {
	return Locators{
		SearchInput: `//input[@name="ss"]`,
		ResultEntry: `//*[@id="search_results_table"]/div[2]/div/div/div[3]/div[{i}]/div[1]/div[2]/div/div/div/div[1]/div/div[1]/div/h3/a`,
		ResultName:  `div[1]/text()`,
		ResultLink:  `@href`,
		Description: []string{
			`//*[@id="property_description_content"]/div/p/text()`,
		},
		Score: []string{
			`//*[@id="basiclayout"]/div[1]/div[10]/div/div[3]/div/div[2]/div/button/div/div/div[1]/text()`,
			`//*[@id="basiclayout"]/div[1]/div[10]/div/div[5]/div/div/header/div[2]/div[1]/span[1]//text()`,
		},
		Reviews: []string{
			`//*[@id="basiclayout"]/div[1]/div[10]/div/div[3]/div/div[2]/div/button/div/div/div[2]/span[2]/text()[2]`,
			`//*[@id="basiclayout"]/div[1]/div[10]/div/div[5]/div/div/header/div[2]/div[1]/span[2]/text()[1]`,
		},
		Coordinates:   `//a[@id="hotel_sidebar_static_map"]/@data-atlas-latlng`,
		CoordinateSep: ",",
	}
}

// DefaultConfig returns defaults for the booking.com target.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:            "https://www.booking.com",
		UserAgent:          "MyCustomUserAgent/1.0",
		Parallelism:        8,
		Delay:              0,
		RandomDelay:        0,
		Timeout:            30 * time.Second,
		Window:             Window{Start: 3, End: 55},
		MissThreshold:      30,
		OutputDir:          "source",
		OutputFile:         "output.csv",
		OutputFormat:       "csv",
		FailLogPath:        "fails.jsonl",
		PipelineBufferSize: 256,
		BatchSize:          32,
		DedupeMaxSize:      10000,
		Verbose:            false,
		Locators:           DefaultLocators(),
	}
}

// OutputPath joins the output directory and file name. Absolute file names
// are used as is.
func (c *Config) OutputPath() string {
	if c.OutputDir == "" || filepath.IsAbs(c.OutputFile) {
		return c.OutputFile
	}
	return filepath.Join(c.OutputDir, c.OutputFile)
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive")
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.RandomDelay < 0 {
		return fmt.Errorf("random delay cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.Window.Start <= 0 {
		return fmt.Errorf("window start must be positive")
	}
	if c.Window.End < c.Window.Start {
		return fmt.Errorf("window end (%d) cannot precede window start (%d)", c.Window.End, c.Window.Start)
	}
	if c.MissThreshold <= 0 {
		return fmt.Errorf("miss threshold must be positive")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	if c.FailLogPath == "" {
		return fmt.Errorf("fail log path cannot be empty")
	}
	if c.PipelineBufferSize <= 0 {
		return fmt.Errorf("pipeline buffer size must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.DedupeMaxSize < 0 {
		return fmt.Errorf("dedupe max size cannot be negative")
	}
	return c.Locators.Validate()
}

// Validate checks that every locator the crawl depends on is set.
func (l Locators) Validate() error {
	switch {
	case l.SearchInput == "":
		return fmt.Errorf("search input locator cannot be empty")
	case !strings.Contains(l.ResultEntry, "{i}"):
		return fmt.Errorf("result entry locator must contain the {i} placeholder")
	case l.ResultName == "" || l.ResultLink == "":
		return fmt.Errorf("result name and link locators cannot be empty")
	case l.Coordinates != "" && l.CoordinateSep == "":
		return fmt.Errorf("coordinate separator cannot be empty")
	}
	return nil
}

// EnvString returns the value of key when it is set and non-empty.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return "", false
	}
	return value, true
}

// EnvInt parses key as an integer when it is set.
func EnvInt(key string) (int, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, true, nil
}
