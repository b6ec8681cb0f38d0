// Package session keeps the previews served by this process: one scheduler
// and one view slot per preview id.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/justinchuby/vscode-interactive-graphviz/internal/actor"
	"github.com/justinchuby/vscode-interactive-graphviz/internal/config"
	"github.com/justinchuby/vscode-interactive-graphviz/internal/logger"
	"github.com/justinchuby/vscode-interactive-graphviz/internal/panel"
	"github.com/justinchuby/vscode-interactive-graphviz/internal/preview"
	"github.com/justinchuby/vscode-interactive-graphviz/internal/progress"
)

var (
	// ErrNotFound is returned for unknown preview ids.
	ErrNotFound = errors.New("preview not found")
	// ErrExists is returned when opening an id that is already open.
	ErrExists = errors.New("preview already exists")
)

// Manager owns the open previews.
type Manager struct {
	hub      *panel.Hub
	progress *progress.Tracker
	clock    actor.Clock

	mu       sync.RWMutex
	settings config.Preview
	previews map[string]*Preview
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the clock handed to every scheduler.
func WithClock(c actor.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// NewManager creates a manager whose previews render through hub.
func NewManager(hub *panel.Hub, tracker *progress.Tracker, settings config.Preview, opts ...Option) *Manager {
	m := &Manager{
		hub:      hub,
		progress: tracker,
		clock:    actor.RealClock{},
		settings: settings,
		previews: make(map[string]*Preview),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open starts a preview. An empty id gets a fresh uuid. The current settings
// are snapshotted for the lifetime of the preview.
func (m *Manager) Open(id string) (*Preview, error) {
	if id == "" {
		id = uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.previews[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrExists, id)
	}

	p := m.hub.Panel(id)
	settings := preview.SettingsFrom(m.settings)
	sched := preview.New(settings, p,
		preview.WithID(id),
		preview.WithClock(m.clock),
		preview.WithProgress(m.progress.Reporter(id)),
		preview.WithNotifier(p),
	)
	pv := &Preview{
		ID:        id,
		CreatedAt: m.clock.Now(),
		Settings:  settings,
		sched:     sched,
		hub:       m.hub,
	}
	m.previews[id] = pv

	logger.Infof("[session] preview %s opened", id)
	return pv, nil
}

// Get returns the preview with the given id.
func (m *Manager) Get(id string) (*Preview, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pv, ok := m.previews[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return pv, nil
}

// List returns the status of every open preview, oldest first.
func (m *Manager) List() []Status {
	m.mu.RLock()
	previews := make([]*Preview, 0, len(m.previews))
	for _, pv := range m.previews {
		previews = append(previews, pv)
	}
	m.mu.RUnlock()

	sort.Slice(previews, func(i, j int) bool {
		if previews[i].CreatedAt.Equal(previews[j].CreatedAt) {
			return previews[i].ID < previews[j].ID
		}
		return previews[i].CreatedAt.Before(previews[j].CreatedAt)
	})
	out := make([]Status, 0, len(previews))
	for _, pv := range previews {
		out = append(out, pv.Status())
	}
	return out
}

// Close disposes the preview and detaches its view.
func (m *Manager) Close(ctx context.Context, id string) error {
	m.mu.Lock()
	pv, ok := m.previews[id]
	delete(m.previews, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return m.dispose(ctx, pv)
}

// CloseAll disposes every preview.
func (m *Manager) CloseAll(ctx context.Context) error {
	m.mu.Lock()
	previews := m.previews
	m.previews = make(map[string]*Preview)
	m.mu.Unlock()

	var errs []error
	for _, pv := range previews {
		if err := m.dispose(ctx, pv); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) dispose(ctx context.Context, pv *Preview) error {
	err := pv.sched.Dispose(ctx)
	m.hub.Detach(pv.ID)
	if err != nil {
		logger.Warnf("[session] preview %s: dispose: %v", pv.ID, err)
		return fmt.Errorf("dispose preview %s: %w", pv.ID, err)
	}
	logger.Infof("[session] preview %s closed", pv.ID)
	return nil
}

// Settings returns the settings new previews are opened with.
func (m *Manager) Settings() config.Preview {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings
}

// SetSettings replaces the settings for previews opened from now on.
// Running previews keep their snapshot.
func (m *Manager) SetSettings(p config.Preview) error {
	if err := p.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.settings = p
	m.mu.Unlock()
	return nil
}

// ServeView attaches the requesting websocket as the view of preview id and
// blocks until it goes away.
func (m *Manager) ServeView(w http.ResponseWriter, r *http.Request, id string) error {
	pv, err := m.Get(id)
	if err != nil {
		return err
	}
	return m.hub.Serve(w, r, id, pv.sched, panel.Hooks{
		OnAttach: func() { _ = pv.sched.SetNeedsRebuild(false) },
		OnDetach: func() { _ = pv.sched.SetNeedsRebuild(true) },
	})
}

// Preview is one open preview.
type Preview struct {
	ID        string
	CreatedAt time.Time
	Settings  preview.Settings

	sched *preview.Scheduler
	hub   *panel.Hub
}

// Status is the externally visible state of a preview.
type Status struct {
	ID            string        `json:"id"`
	CreatedAt     time.Time     `json:"createdAt"`
	Phase         preview.Phase `json:"phase"`
	Pending       bool          `json:"pending"`
	RenderLocked  bool          `json:"renderLocked"`
	ActiveRenders int           `json:"activeRenders"`
	NeedsRebuild  bool          `json:"needsRebuild"`
	ViewAttached  bool          `json:"viewAttached"`
}

// Scheduler returns the render scheduler of the preview.
func (p *Preview) Scheduler() *preview.Scheduler { return p.sched }

// Status snapshots the preview.
func (p *Preview) Status() Status {
	st := p.sched.State()
	return Status{
		ID:            p.ID,
		CreatedAt:     p.CreatedAt,
		Phase:         st.Phase(),
		Pending:       st.Pending != "",
		RenderLocked:  st.RenderLocked,
		ActiveRenders: st.ActiveRenders,
		NeedsRebuild:  st.NeedsRebuild,
		ViewAttached:  p.hub.Attached(p.ID),
	}
}
