package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/titanous/json5"
)

// File is the on-disk configuration. Zero values leave the defaults alone.
type File struct {
	BaseURL       string   `json:"base_url"`
	UserAgent     string   `json:"user_agent"`
	Parallelism   int      `json:"parallelism"`
	Delay         string   `json:"delay"`
	RandomDelay   string   `json:"random_delay"`
	Timeout       string   `json:"timeout"`
	Window        Window   `json:"window"`
	MissThreshold int      `json:"miss_threshold"`
	OutputDir     string   `json:"output_dir"`
	OutputFormat  string   `json:"output_format"`
	FailLogPath   string   `json:"fail_log"`
	DedupeMaxSize int      `json:"dedupe_max_size"`
	MetricsAddr   string   `json:"metrics_addr"`
	Locators      Locators `json:"locators"`
}

// ReadFile reads a json5 configuration file and merges <name>.local.<ext>
// over it when present.
func ReadFile(name string) (File, error) {
	var out File

	data, err := os.ReadFile(name)
	if err != nil {
		return out, fmt.Errorf("read config %q: %w", name, err)
	}
	if err := json5.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("parse config %q: %w", name, err)
	}

	ext := filepath.Ext(name)
	localPath := strings.TrimSuffix(name, ext) + ".local" + ext
	local, err := os.ReadFile(localPath)
	if err != nil && !os.IsNotExist(err) {
		return out, fmt.Errorf("read config %q: %w", localPath, err)
	}
	if len(local) > 0 {
		var override File
		if err := json5.Unmarshal(local, &override); err != nil {
			return out, fmt.Errorf("parse config %q: %w", localPath, err)
		}
		if err := mergo.Merge(&out, override, mergo.WithOverride); err != nil {
			return out, fmt.Errorf("merge config %q: %w", localPath, err)
		}
		slog.Info("merging config with local overrides", slog.String("local", localPath))
	}

	return out, nil
}

// Apply copies the set fields of f onto cfg.
func (f File) Apply(cfg *Config) error {
	// Locators are merged field-by-field so a file can override a single one.
	if err := mergo.Merge(&cfg.Locators, f.Locators, mergo.WithOverride); err != nil {
		return fmt.Errorf("merge locators: %w", err)
	}

	if f.BaseURL != "" {
		cfg.BaseURL = f.BaseURL
	}
	if f.UserAgent != "" {
		cfg.UserAgent = f.UserAgent
	}
	if f.Parallelism != 0 {
		cfg.Parallelism = f.Parallelism
	}
	if f.Window.Start != 0 {
		cfg.Window.Start = f.Window.Start
	}
	if f.Window.End != 0 {
		cfg.Window.End = f.Window.End
	}
	if f.MissThreshold != 0 {
		cfg.MissThreshold = f.MissThreshold
	}
	if f.OutputDir != "" {
		cfg.OutputDir = f.OutputDir
	}
	if f.OutputFormat != "" {
		cfg.OutputFormat = strings.ToLower(f.OutputFormat)
	}
	if f.FailLogPath != "" {
		cfg.FailLogPath = f.FailLogPath
	}
	if f.DedupeMaxSize != 0 {
		cfg.DedupeMaxSize = f.DedupeMaxSize
	}
	if f.MetricsAddr != "" {
		cfg.MetricsAddr = f.MetricsAddr
	}

	durations := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"delay", f.Delay, &cfg.Delay},
		{"random_delay", f.RandomDelay, &cfg.RandomDelay},
		{"timeout", f.Timeout, &cfg.Timeout},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", d.name, d.value, err)
		}
		*d.dst = parsed
	}
	return nil
}
