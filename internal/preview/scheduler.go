// Package preview coordinates renders for one interactive diagram preview.
//
// A Scheduler receives source changes at whatever rate the editor produces
// them and decides when the hosted view actually re-renders. It combines a
// guard interval (delay only requests that follow a quiet period), a
// debounce, a minimum spacing between renders, a single-render lock and a
// lock timeout. All state lives on one actor loop; see Reduce.
package preview

import (
	"context"
	"errors"
	"sync"

	"github.com/justinchuby/vscode-interactive-graphviz/internal/actor"
	"github.com/justinchuby/vscode-interactive-graphviz/internal/logger"
	"github.com/justinchuby/vscode-interactive-graphviz/internal/wire"
)

var (
	// ErrDisposed is returned by entry points called after Dispose.
	ErrDisposed = errors.New("preview disposed")
	// ErrBusy is returned when the scheduler mailbox is full.
	ErrBusy = errors.New("preview scheduler busy")
)

// Scheduler is the render coordinator for one preview session.
type Scheduler struct {
	id    string
	clock actor.Clock
	actor *actor.Actor[State]

	disposeOnce sync.Once
	disposeErr  error
}

type options struct {
	id       string
	clock    actor.Clock
	progress ProgressReporter
	notifier Notifier
	mailbox  int
}

// Option configures a Scheduler.
type Option func(*options)

// WithID tags log lines with the preview id.
func WithID(id string) Option {
	return func(o *options) { o.id = id }
}

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c actor.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithProgress sets the busy indicator shown while renders are outstanding.
func WithProgress(p ProgressReporter) Option {
	return func(o *options) { o.progress = p }
}

// WithNotifier sets where advisories (lock timeout) are surfaced.
func WithNotifier(n Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithMailboxSize bounds the number of queued inputs.
func WithMailboxSize(n int) Option {
	return func(o *options) { o.mailbox = n }
}

// New creates and starts a scheduler rendering into panel, which must not be
// nil. settings is used as-is for the scheduler's lifetime.
func New(settings Settings, panel Panel, opts ...Option) *Scheduler {
	o := options{
		id:      "-",
		clock:   actor.RealClock{},
		mailbox: 1024,
	}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Scheduler{id: o.id, clock: o.clock}
	rt := NewRuntime(o.id, panel, o.progress, o.notifier, o.clock)
	s.actor = actor.New(State{Settings: settings}, Reduce, rt,
		actor.WithMailboxSize[State](o.mailbox),
		actor.WithHooks(s.hooks()),
	)
	s.actor.Start()
	return s
}

func (s *Scheduler) hooks() actor.Hooks[State] {
	return actor.Hooks[State]{
		OnInput: func(in actor.Input) {
			if logger.Enabled(logger.LevelTrace) {
				logger.Tracef("[preview %s] input %T", s.id, in)
			}
		},
		OnTransition: func(prev, next State, _ actor.Input) {
			if prev.Phase() != next.Phase() {
				logger.Debugf("[preview %s] %s -> %s", s.id, prev.Phase(), next.Phase())
			}
		},
		OnDrop: func(in actor.Input) {
			logger.Warnf("[preview %s] mailbox full; dropping %T", s.id, in)
		},
		OnPanic: func(r any) {
			logger.Errorf("[preview %s] scheduler loop panicked: %v", s.id, r)
		},
	}
}

// ID returns the preview id the scheduler was created with.
func (s *Scheduler) ID() string { return s.id }

// RequestRender records content as the newest source and renders it now or
// after the applicable delay. Content that is overwritten before it renders
// is dropped.
func (s *Scheduler) RequestRender(content string) error {
	return s.enqueue(cmdRequestRender{Content: content, NowMs: s.nowMs()})
}

// OnRenderFinished is the hosted view's completion callback. A non-nil err is
// logged; it does not stop later renders.
func (s *Scheduler) OnRenderFinished(err error) error {
	return s.enqueue(evRenderFinished{Err: err, NowMs: s.nowMs()})
}

// OnPageLoaded is called when the hosted view is ready. It pushes the view
// config and flushes content queued before the view existed.
func (s *Scheduler) OnPageLoaded() error {
	return s.enqueue(cmdPageLoaded{NowMs: s.nowMs()})
}

// Reveal asks the hosted view to come to the front.
func (s *Scheduler) Reveal(target string) error {
	return s.enqueue(cmdReveal{Target: target})
}

// SetNeedsRebuild marks whether the hosted view must be recreated.
func (s *Scheduler) SetNeedsRebuild(needsRebuild bool) error {
	return s.enqueue(cmdSetNeedsRebuild{NeedsRebuild: needsRebuild})
}

// Dispatch routes a message received from the hosted view.
func (s *Scheduler) Dispatch(msg wire.InboundMessage) error {
	switch msg.Command {
	case wire.CommandRenderFinished:
		return s.OnRenderFinished(msg.RenderErr())
	case wire.CommandPageLoaded:
		return s.OnPageLoaded()
	default:
		s.HandleMessage(msg)
		return nil
	}
}

// HandleMessage handles view messages that have no dedicated entry point.
// None are defined yet; they are logged and ignored.
func (s *Scheduler) HandleMessage(msg wire.InboundMessage) {
	logger.Warnf("[preview %s] unexpected command: %s", s.id, msg)
}

// State returns a snapshot of the session state.
func (s *Scheduler) State() State { return s.actor.State() }

// Phase returns the coarse scheduler state.
func (s *Scheduler) Phase() Phase { return s.actor.State().Phase() }

// Dispose closes the progress indicator, clears timers and stops the
// scheduler. It is idempotent; later calls return the first result.
func (s *Scheduler) Dispose(ctx context.Context) error {
	s.disposeOnce.Do(func() {
		reply := make(chan error, 1)
		if s.actor.Enqueue(cmdDispose{Reply: reply}) {
			select {
			case s.disposeErr = <-reply:
			case <-ctx.Done():
				s.disposeErr = ctx.Err()
			}
		}
		s.actor.Stop()
		select {
		case <-s.actor.Done():
		case <-ctx.Done():
			if s.disposeErr == nil {
				s.disposeErr = ctx.Err()
			}
		}
	})
	return s.disposeErr
}

// barrier waits until every input enqueued before it has been reduced and its
// effects handled.
func (s *Scheduler) barrier(ctx context.Context) error {
	reply := make(chan error, 1)
	if err := s.enqueue(cmdBarrier{Reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) enqueue(in actor.Input) error {
	if s.actor.Context().Err() != nil {
		return ErrDisposed
	}
	if !s.actor.Enqueue(in) {
		if s.actor.Context().Err() != nil {
			return ErrDisposed
		}
		return ErrBusy
	}
	return nil
}

func (s *Scheduler) nowMs() int64 {
	return s.clock.Now().UnixMilli()
}
