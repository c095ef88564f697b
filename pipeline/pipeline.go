// Package pipeline validates, de-duplicates and writes extracted records.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aluiziolira/go-scrape-hotels/config"
	"github.com/aluiziolira/go-scrape-hotels/models"
	"github.com/aluiziolira/go-scrape-hotels/parser"
	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	// ErrPipelineClosed is returned when Process is called after shutdown.
	ErrPipelineClosed = errors.New("pipeline: closed")
	// ErrPipelineCloseTimeout is returned when workers fail to drain in time.
	ErrPipelineCloseTimeout = errors.New("pipeline: close timed out")
)

// drainTimeout bounds how long Close waits for queued records to be written.
var drainTimeout = 30 * time.Second

// Rejection reasons reported in Stats.
const (
	RejectInvalid   = "invalid_record"
	RejectDuplicate = "duplicate_url"
)

// OutputWriter defines the interface for data output.
type OutputWriter interface {
	Write(hotels []*models.Hotel) error
	Close() error
	Validate() error
}

// Stats is a snapshot of the pipeline counters.
type Stats struct {
	Processed int64
	// Rejected counts dropped records by reason.
	Rejected map[string]int
}

// Pipeline fans records out to batching workers that write them through an
// OutputWriter.
type Pipeline struct {
	ctx       context.Context
	writer    OutputWriter
	records   chan *models.Hotel
	batchSize int
	wg        sync.WaitGroup

	// seen is nil when de-duplication is disabled.
	seen *lru.Cache[string, struct{}]

	processed  atomic.Int64
	rejectMu   sync.Mutex
	rejections map[string]int

	// mu is held for reading while sending on records, so Close never
	// closes the channel under a sender.
	mu     sync.RWMutex
	closed bool
	done   chan struct{}

	failOnce sync.Once
	failed   chan struct{}
	err      error
}

// NewPipeline builds a pipeline sized from cfg. Cancelling ctx stops
// accepting new records; records already queued are still written.
func NewPipeline(ctx context.Context, writer OutputWriter, cfg *config.Config) *Pipeline {
	if ctx == nil {
		ctx = context.Background()
	}

	p := &Pipeline{
		ctx:        ctx,
		writer:     writer,
		records:    make(chan *models.Hotel, max(cfg.PipelineBufferSize, 1)),
		batchSize:  max(cfg.BatchSize, 1),
		rejections: make(map[string]int),
		done:       make(chan struct{}),
		failed:     make(chan struct{}),
	}
	if cfg.DedupeMaxSize > 0 {
		if seen, err := lru.New[string, struct{}](cfg.DedupeMaxSize); err == nil {
			p.seen = seen
		}
	}
	return p
}

// Start launches worker goroutines.
func (p *Pipeline) Start(workers int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}

	for range max(workers, 1) {
		p.wg.Add(1)
		go p.worker()
	}
}

// Process queues hotels for writing. Nil entries are skipped.
func (p *Pipeline) Process(hotels ...*models.Hotel) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPipelineClosed
	}

	for _, hotel := range hotels {
		if hotel == nil {
			continue
		}
		select {
		case p.records <- hotel:
		case <-p.failed:
			return p.err
		case <-p.ctx.Done():
			return ErrPipelineClosed
		}
	}
	return nil
}

// Close stops accepting records and waits, up to drainTimeout, for queued
// ones to be written. It returns the first write error, if any.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.records)
		close(p.done)
	}
	p.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(drained)
	}()

	timer := time.NewTimer(drainTimeout)
	defer timer.Stop()
	select {
	case <-drained:
		return p.Err()
	case <-timer.C:
		return ErrPipelineCloseTimeout
	}
}

// Err returns the first write error, or nil.
func (p *Pipeline) Err() error {
	select {
	case <-p.failed:
		return p.err
	default:
		return nil
	}
}

// Stats returns a snapshot of the counters.
func (p *Pipeline) Stats() Stats {
	p.rejectMu.Lock()
	defer p.rejectMu.Unlock()
	return Stats{
		Processed: p.processed.Load(),
		Rejected:  maps.Clone(p.rejections),
	}
}

// StartMetricsReporting logs progress every interval until Close.
func (p *Pipeline) StartMetricsReporting(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				stats := p.Stats()
				slog.Info("pipeline progress",
					slog.Int64("processed", stats.Processed),
					slog.Int("duplicates", stats.Rejected[RejectDuplicate]),
					slog.Int("invalid", stats.Rejected[RejectInvalid]),
				)
			case <-p.done:
				return
			case <-p.ctx.Done():
				return
			}
		}
	}()
}

func (p *Pipeline) worker() {
	defer p.wg.Done()

	batch := make([]*models.Hotel, 0, p.batchSize)
	flush := func() bool {
		if len(batch) == 0 {
			return true
		}
		if err := p.writer.Write(batch); err != nil {
			p.fail(fmt.Errorf("write batch: %w", err))
			return false
		}
		batch = batch[:0]
		return true
	}

	for hotel := range p.records {
		if hotel = p.admit(hotel); hotel == nil {
			continue
		}
		batch = append(batch, hotel)
		if len(batch) >= p.batchSize && !flush() {
			return
		}
	}
	flush()
}

// admit validates and de-duplicates hotel, returning the normalised record
// or nil when it is rejected.
func (p *Pipeline) admit(hotel *models.Hotel) *models.Hotel {
	if err := parser.ValidateHotel(hotel); err != nil {
		p.reject(RejectInvalid)
		return nil
	}
	if p.seen != nil {
		if dup, _ := p.seen.ContainsOrAdd(*hotel.URL, struct{}{}); dup {
			p.reject(RejectDuplicate)
			return nil
		}
	}
	p.processed.Add(1)
	return parser.NormalizeHotel(hotel)
}

func (p *Pipeline) reject(reason string) {
	p.rejectMu.Lock()
	p.rejections[reason]++
	p.rejectMu.Unlock()
}

func (p *Pipeline) fail(err error) {
	p.failOnce.Do(func() {
		p.err = err
		close(p.failed)
	})
}
