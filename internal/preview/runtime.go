package preview

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/justinchuby/vscode-interactive-graphviz/internal/actor"
	"github.com/justinchuby/vscode-interactive-graphviz/internal/logger"
)

// Runtime interprets scheduler effects.
//
// Runtime never mutates scheduler state; timer fires and dispatch failures
// come back through emit.
type Runtime struct {
	id       string
	panel    Panel
	progress ProgressReporter
	notifier Notifier
	clock    actor.Clock

	mu     sync.Mutex
	timers map[string]actor.Timer
	handle ProgressHandle
}

// NewRuntime returns a Runtime for one preview session. progress and
// notifier may be nil.
func NewRuntime(id string, panel Panel, progress ProgressReporter, notifier Notifier, clock actor.Clock) *Runtime {
	if clock == nil {
		clock = actor.RealClock{}
	}
	return &Runtime{
		id:       id,
		panel:    panel,
		progress: progress,
		notifier: notifier,
		clock:    clock,
		timers:   make(map[string]actor.Timer),
	}
}

// HandleEffects implements actor.Runtime.
func (r *Runtime) HandleEffects(ctx context.Context, effects []actor.Effect, emit func(actor.Input)) {
	for _, eff := range effects {
		select {
		case <-ctx.Done():
			return
		default:
		}

		switch e := eff.(type) {
		case effStartTimer:
			r.startTimer(ctx, e, emit)
		case effCancelTimer:
			r.cancelTimer(e.Name)
		case effSendRender:
			r.sendRender(ctx, e, emit)
		case effSendConfig:
			if err := r.panel.SendConfig(ctx, e.Config); err != nil {
				r.logf(logger.LevelWarn, "failed to send view config: %v", err)
			}
		case effReveal:
			if err := r.panel.Reveal(ctx, e.Target); err != nil {
				r.logf(logger.LevelWarn, "failed to reveal view: %v", err)
			}
		case effOpenProgress:
			r.openProgress(e.Title)
		case effCloseProgress:
			r.closeProgress()
		case effWarn:
			r.logf(logger.LevelWarn, "%s", e.Advisory.Message)
			if r.notifier != nil {
				r.notifier.Warn(ctx, e.Advisory)
			}
		case effRenderFinished:
			if e.Err != nil {
				r.logf(logger.LevelWarn, "rendering failed: %v", e.Err)
			}
			r.logf(logger.LevelDebug, "render duration: %dms, renders outstanding: %d", e.DurationMs, e.Active)
		case effLog:
			r.logf(e.Level, e.Format, e.Args...)
		case effCompleteReply:
			if e.Reply == nil {
				continue
			}
			select {
			case e.Reply <- e.Err:
			default:
			}
		default:
			r.logf(logger.LevelWarn, "unknown effect %T", eff)
		}
	}
}

// Stop implements actor.Runtime. It cancels timers and releases a progress
// indicator the reducer did not get to close.
func (r *Runtime) Stop() {
	r.mu.Lock()
	for name, t := range r.timers {
		t.Stop()
		delete(r.timers, name)
	}
	r.mu.Unlock()
	r.closeProgress()
}

func (r *Runtime) startTimer(ctx context.Context, eff effStartTimer, emit func(actor.Input)) {
	if eff.Name == "" || eff.AfterMs <= 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if prev := r.timers[eff.Name]; prev != nil {
		prev.Stop()
	}
	after := time.Duration(eff.AfterMs) * time.Millisecond
	r.timers[eff.Name] = r.clock.AfterFunc(after, func() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		emit(evTimerFired{Name: eff.Name, Gen: eff.Gen, NowMs: r.clock.Now().UnixMilli()})
	})
}

func (r *Runtime) cancelTimer(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t := r.timers[name]; t != nil {
		t.Stop()
	}
	delete(r.timers, name)
}

func (r *Runtime) sendRender(ctx context.Context, eff effSendRender, emit func(actor.Input)) {
	err := r.panel.SendRender(ctx, eff.Content)
	if err == nil {
		r.logf(logger.LevelDebug, "render %d dispatched (%d bytes)", eff.Gen, len(eff.Content))
		return
	}
	emit(evRenderDispatchFailed{
		Gen:     eff.Gen,
		Content: eff.Content,
		Err:     err,
		NowMs:   r.clock.Now().UnixMilli(),
	})
}

func (r *Runtime) openProgress(title string) {
	if r.progress == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handle != nil {
		return
	}
	r.handle = r.progress.Open(title)
}

func (r *Runtime) closeProgress() {
	r.mu.Lock()
	h := r.handle
	r.handle = nil
	r.mu.Unlock()
	if h != nil {
		h.Close()
	}
}

func (r *Runtime) logf(level logger.Level, format string, args ...any) {
	msg := fmt.Sprintf("[preview %s] %s", r.id, fmt.Sprintf(format, args...))
	switch level {
	case logger.LevelTrace:
		logger.Tracef("%s", msg)
	case logger.LevelDebug:
		logger.Debugf("%s", msg)
	case logger.LevelWarn:
		logger.Warnf("%s", msg)
	case logger.LevelError:
		logger.Errorf("%s", msg)
	default:
		logger.Infof("%s", msg)
	}
}
