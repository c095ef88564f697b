// Package faillog keeps the append-only log of search criteria whose crawl
// was aborted, for later replay.
package faillog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/aluiziolira/go-scrape-hotels/models"
)

// DefaultPath is the log used when none is configured.
const DefaultPath = "fails.jsonl"

// ErrNotMapping is returned when Record is given criteria that are not a mapping.
var ErrNotMapping = errors.New("faillog: criteria is not a mapping")

// Recorder appends failed criteria to a newline-delimited JSON log. It is
// safe for concurrent use; each entry is written with a single append.
type Recorder struct {
	path string
	mu   sync.Mutex
}

// NewRecorder returns a recorder for path. The file is created on first write.
func NewRecorder(path string) *Recorder {
	if path == "" {
		path = DefaultPath
	}
	return &Recorder{path: path}
}

// Path returns the log location.
func (r *Recorder) Path() string {
	return r.path
}

// Record appends criteria as one JSON line. Identical criteria recorded
// twice produce two entries.
func (r *Recorder) Record(criteria models.SearchCriteria) error {
	if criteria == nil {
		slog.Error("formdata is not a mapping, not recording", slog.String("path", r.path))
		return ErrNotMapping
	}

	line, err := json.Marshal(criteria)
	if err != nil {
		return fmt.Errorf("encode criteria: %w", err)
	}
	line = append(line, '\n')

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ensureDir(r.path); err != nil {
		return err
	}
	f, err := os.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open fail log: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("append fail log: %w", err)
	}
	return f.Close()
}

// ReadAll returns every entry of the log at path in write order. A missing
// file yields no entries.
func ReadAll(path string) ([]models.SearchCriteria, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open fail log: %w", err)
	}
	defer f.Close()

	var entries []models.SearchCriteria
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}
		var entry models.SearchCriteria
		if err := json.Unmarshal(raw, &entry); err != nil {
			return entries, fmt.Errorf("fail log line %d: %w", line, err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return entries, fmt.Errorf("read fail log: %w", err)
	}
	return entries, nil
}

// Dedupe drops repeated entries, keeping the first occurrence.
func Dedupe(entries []models.SearchCriteria) []models.SearchCriteria {
	seen := make(map[string]struct{}, len(entries))
	out := make([]models.SearchCriteria, 0, len(entries))
	for _, entry := range entries {
		key := entry.String()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, entry)
	}
	return out
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
