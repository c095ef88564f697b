package parser

import (
	"iter"
	"log/slog"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-scrape-hotels/config"
	"github.com/aluiziolira/go-scrape-hotels/document"
	"github.com/aluiziolira/go-scrape-hotels/models"
)

// Outcome classifies one results-list position.
type Outcome int

const (
	Miss Outcome = iota
	Hit
)

func (o Outcome) String() string {
	if o == Hit {
		return "hit"
	}
	return "miss"
}

// Position is the classification of one index of the results list.
type Position struct {
	Index   int
	Outcome Outcome
	// Handle is set only for hits.
	Handle *models.ResultHandle
	// LinkFound reports whether a link was located, even when the name was not.
	LinkFound bool
	// Err is the locator error that turned this position into a miss, if any.
	Err error
}

// Walker enumerates entries of a results page by position index.
type Walker struct {
	entry string
	name  string
	link  string
}

// NewWalker builds a walker from the result locators.
func NewWalker(loc config.Locators) *Walker {
	return &Walker{
		entry: loc.ResultEntry,
		name:  loc.ResultName,
		link:  loc.ResultLink,
	}
}

// EntryLocator returns the entry expression for position i.
func (w *Walker) EntryLocator(i int) string {
	return strings.ReplaceAll(w.entry, "{i}", strconv.Itoa(i))
}

// Walk lazily classifies every position in window. Iteration stops early
// when the consumer stops ranging.
func (w *Walker) Walk(doc *document.Document, window config.Window) iter.Seq[Position] {
	return func(yield func(Position) bool) {
		for i := window.Start; i <= window.End; i++ {
			if !yield(w.Classify(doc, i)) {
				return
			}
		}
	}
}

// Classify locates the (name, link) pair at position i. Locator errors are
// reported on the returned Position and never escape.
func (w *Walker) Classify(doc *document.Document, i int) Position {
	pos := Position{Index: i, Outcome: Miss}

	name, link, err := w.locate(doc, i)
	if err != nil {
		slog.Error("result position error", slog.Int("index", i), slog.Any("error", err))
		pos.Err = err
		return pos
	}
	pos.LinkFound = link != ""

	if name == "" || link == "" {
		slog.Info("hotel name or URL missing", slog.Int("index", i))
		return pos
	}

	abs, err := doc.Resolve(link)
	if err != nil {
		slog.Error("result position error", slog.Int("index", i), slog.Any("error", err))
		pos.Err = err
		pos.LinkFound = false
		return pos
	}

	pos.Outcome = Hit
	pos.Handle = &models.ResultHandle{Position: i, Name: name, Link: abs}
	return pos
}

func (w *Walker) locate(doc *document.Document, i int) (string, string, error) {
	entry, err := doc.Find(w.EntryLocator(i))
	if err != nil || entry == nil {
		return "", "", err
	}
	name, err := entry.Text(w.name)
	if err != nil {
		return "", "", err
	}
	link, err := entry.Text(w.link)
	if err != nil {
		return "", "", err
	}
	return strings.TrimSpace(name), strings.TrimSpace(link), nil
}
