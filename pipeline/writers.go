package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/aluiziolira/go-scrape-hotels/models"
)

// outputFile is the file shared by the concrete writers.
type outputFile struct {
	f  *os.File
	mu sync.Mutex
}

func createOutput(filename string) (*outputFile, error) {
	if dir := filepath.Dir(filename); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create output %q: %w", filename, err)
	}
	return &outputFile{f: f}, nil
}

func (o *outputFile) size() (int64, error) {
	info, err := os.Stat(o.f.Name())
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", o.f.Name(), err)
	}
	return info.Size(), nil
}

// CSVWriter writes one row per hotel in models.Columns order. Absent fields
// are written as empty cells.
type CSVWriter struct {
	*outputFile
	csv *csv.Writer
}

// NewCSVWriter creates filename, including missing parent directories, and
// writes the header row.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	out, err := createOutput(filename)
	if err != nil {
		return nil, err
	}

	cw := &CSVWriter{outputFile: out, csv: csv.NewWriter(out.f)}
	if err := cw.writeRows(models.Columns); err != nil {
		out.f.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	return cw, nil
}

func (cw *CSVWriter) writeRows(rows ...[]string) error {
	for _, row := range rows {
		if err := cw.csv.Write(row); err != nil {
			return err
		}
	}
	cw.csv.Flush()
	return cw.csv.Error()
}

// Write appends hotels to the CSV output.
func (cw *CSVWriter) Write(hotels []*models.Hotel) error {
	rows := make([][]string, 0, len(hotels))
	for _, hotel := range hotels {
		values := hotel.Values()
		row := make([]string, len(values))
		for i, v := range values {
			row[i] = models.Deref(v)
		}
		rows = append(rows, row)
	}

	cw.mu.Lock()
	defer cw.mu.Unlock()
	if err := cw.writeRows(rows...); err != nil {
		return fmt.Errorf("write csv records: %w", err)
	}
	return nil
}

// Close flushes and closes the file.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.csv.Flush()
	if err := cw.csv.Error(); err != nil {
		cw.f.Close()
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return cw.f.Close()
}

// Validate ensures the file holds at least the header.
func (cw *CSVWriter) Validate() error {
	size, err := cw.size()
	if err != nil {
		return err
	}
	if size == 0 {
		return fmt.Errorf("csv file %s is empty", cw.f.Name())
	}
	return nil
}

// ReadCSV reads a file produced by CSVWriter. Columns are matched by header
// name; empty cells become nil fields.
func ReadCSV(filename string) ([]*models.Hotel, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open csv file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	position := make(map[string]int, len(header))
	for i, name := range header {
		position[name] = i
	}
	order := make([]int, len(models.Columns))
	for i, column := range models.Columns {
		idx, ok := position[column]
		if !ok {
			return nil, fmt.Errorf("csv header missing column %q", column)
		}
		order[i] = idx
	}

	var hotels []*models.Hotel
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return hotels, nil
		}
		if err != nil {
			return hotels, fmt.Errorf("read csv record %d: %w", len(hotels)+1, err)
		}
		values := make([]*string, len(order))
		for i, idx := range order {
			values[i] = models.StringPtr(row[idx])
		}
		hotel := &models.Hotel{}
		hotel.SetValues(values)
		hotels = append(hotels, hotel)
	}
}

// JSONWriter writes newline-delimited JSON. Absent fields are null.
type JSONWriter struct {
	*outputFile
	buf *bufio.Writer
	enc *json.Encoder
}

// NewJSONWriter creates filename, including missing parent directories.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	out, err := createOutput(filename)
	if err != nil {
		return nil, err
	}

	buf := bufio.NewWriter(out.f)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	return &JSONWriter{outputFile: out, buf: buf, enc: enc}, nil
}

// Write appends one JSON object per hotel.
func (jw *JSONWriter) Write(hotels []*models.Hotel) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, hotel := range hotels {
		if err := jw.enc.Encode(hotel); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
	}
	if err := jw.buf.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return nil
}

// Close flushes buffers and closes the file.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.buf.Flush(); err != nil {
		jw.f.Close()
		return fmt.Errorf("flush json writer: %w", err)
	}
	return jw.f.Close()
}

// Validate ensures the file exists. An aborted crawl may leave it empty.
func (jw *JSONWriter) Validate() error {
	_, err := jw.size()
	return err
}
