// Package progress keeps the set of busy indicators currently shown for
// previews.
package progress

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/justinchuby/vscode-interactive-graphviz/internal/logger"
	"github.com/justinchuby/vscode-interactive-graphviz/internal/preview"
)

// Entry describes one open indicator.
type Entry struct {
	ID       string    `json:"id"`
	Preview  string    `json:"preview"`
	Title    string    `json:"title"`
	OpenedAt time.Time `json:"openedAt"`
}

// Tracker records indicators between Open and Close.
type Tracker struct {
	now func() time.Time

	mu      sync.Mutex
	entries map[string]Entry
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		now:     time.Now,
		entries: make(map[string]Entry),
	}
}

// Open shows an indicator for previewID until the handle is closed.
func (t *Tracker) Open(previewID, title string) *Handle {
	e := Entry{
		ID:       uuid.NewString(),
		Preview:  previewID,
		Title:    title,
		OpenedAt: t.now(),
	}

	t.mu.Lock()
	t.entries[e.ID] = e
	t.mu.Unlock()

	logger.Debugf("[progress] %s opened for preview %s: %s", e.ID, previewID, title)
	return &Handle{tracker: t, id: e.ID}
}

// Reporter binds the tracker to one preview.
func (t *Tracker) Reporter(previewID string) preview.ProgressReporter {
	return preview.ProgressReporterFunc(func(title string) preview.ProgressHandle {
		return t.Open(previewID, title)
	})
}

// Active returns the open indicators, oldest first.
func (t *Tracker) Active() []Entry {
	t.mu.Lock()
	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e)
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].OpenedAt.Before(out[j].OpenedAt)
	})
	return out
}

// Count returns how many indicators preview has open.
func (t *Tracker) Count(previewID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, e := range t.entries {
		if e.Preview == previewID {
			n++
		}
	}
	return n
}

func (t *Tracker) remove(id string) {
	t.mu.Lock()
	e, ok := t.entries[id]
	delete(t.entries, id)
	t.mu.Unlock()

	if ok {
		logger.Debugf("[progress] %s closed after %s", id, t.now().Sub(e.OpenedAt))
	}
}

// Handle closes one indicator. Close may be called any number of times.
type Handle struct {
	tracker *Tracker
	id      string
	once    sync.Once
}

// ID returns the indicator id.
func (h *Handle) ID() string { return h.id }

// Close implements preview.ProgressHandle.
func (h *Handle) Close() {
	h.once.Do(func() { h.tracker.remove(h.id) })
}
