package preview

import (
	"context"

	"github.com/justinchuby/vscode-interactive-graphviz/internal/actor"
	"github.com/justinchuby/vscode-interactive-graphviz/internal/config"
	"github.com/justinchuby/vscode-interactive-graphviz/internal/logger"
	"github.com/justinchuby/vscode-interactive-graphviz/internal/wire"
)

// Panel is the hosted view the scheduler renders into.
//
// Completion of a render is reported back asynchronously through
// Scheduler.OnRenderFinished, not through the return value of SendRender.
type Panel interface {
	SendRender(ctx context.Context, source string) error
	SendConfig(ctx context.Context, cfg wire.ViewConfig) error
	Reveal(ctx context.Context, target string) error
}

// Notifier surfaces user-facing advisories.
type Notifier interface {
	Warn(ctx context.Context, adv wire.Advisory)
}

// ProgressReporter shows a busy indicator until the returned handle is
// closed.
type ProgressReporter interface {
	Open(title string) ProgressHandle
}

// ProgressHandle closes a busy indicator.
type ProgressHandle interface {
	Close()
}

// ProgressReporterFunc adapts a function to ProgressReporter.
type ProgressReporterFunc func(title string) ProgressHandle

// Open implements ProgressReporter.
func (f ProgressReporterFunc) Open(title string) ProgressHandle { return f(title) }

// Settings is the tuning snapshot a scheduler works with. Values are in
// milliseconds; LockTimeoutMs == 0 disables the lock timeout.
type Settings struct {
	LockEnabled          bool  `json:"lockEnabled"`
	RenderIntervalMs     int64 `json:"renderIntervalMs"`
	DebounceMs           int64 `json:"debounceMs"`
	GuardIntervalMs      int64 `json:"guardIntervalMs"`
	LockTimeoutMs        int64 `json:"lockTimeoutMs"`
	TransitionDelayMs    int64 `json:"transitionDelayMs"`
	TransitionDurationMs int64 `json:"transitionDurationMs"`
}

// SettingsFrom snapshots the preview configuration.
func SettingsFrom(p config.Preview) Settings {
	return Settings{
		LockEnabled:          p.RenderLock,
		RenderIntervalMs:     p.RenderInterval,
		DebounceMs:           p.DebouncingInterval,
		GuardIntervalMs:      p.GuardInterval,
		LockTimeoutMs:        p.LockTimeout().Milliseconds(),
		TransitionDelayMs:    p.View.TransitionDelay,
		TransitionDurationMs: p.View.TransitionDuration,
	}
}

// Phase is the coarse scheduler state, derived from State.
type Phase string

const (
	// PhaseIdle means nothing is pending, scheduled or in flight.
	PhaseIdle Phase = "Idle"
	// PhaseScheduled means the delay timer is armed.
	PhaseScheduled Phase = "Scheduled"
	// PhaseRendering means a render is in flight.
	PhaseRendering Phase = "Rendering"
	// PhaseRenderingWithPending means newer content arrived during a render.
	PhaseRenderingWithPending Phase = "RenderingWithPending"
)

// State is the loop-owned session state of one preview.
type State struct {
	Settings Settings

	// Pending is the newest content not yet dispatched. Empty means none.
	Pending string

	RenderLocked bool

	// LastRenderAtMs and LastRequestAtMs are unix milliseconds; zero means
	// no render / request has happened yet.
	LastRenderAtMs  int64
	LastRequestAtMs int64

	// ActiveRenders counts render instructions sent but not acknowledged.
	ActiveRenders int

	// RenderGen increments with every dispatched render.
	RenderGen int64

	// Timer generations let the reducer drop fires that raced a cancel.
	WaitTimerArmed bool
	WaitTimerGen   int64
	LockTimerArmed bool
	LockTimerGen   int64

	ProgressOpen bool

	// NeedsRebuild is set while the hosted view is gone.
	NeedsRebuild bool

	Disposed bool
}

// Phase derives the coarse state.
func (s State) Phase() Phase {
	switch {
	case s.Disposed:
		return PhaseIdle
	case s.RenderLocked || s.ActiveRenders > 0:
		if s.Pending != "" {
			return PhaseRenderingWithPending
		}
		return PhaseRendering
	case s.WaitTimerArmed:
		return PhaseScheduled
	default:
		return PhaseIdle
	}
}

// Inputs

type cmdRequestRender struct {
	actor.InputBase
	Content string
	NowMs   int64
}

type cmdPageLoaded struct {
	actor.InputBase
	NowMs int64
}

type cmdReveal struct {
	actor.InputBase
	Target string
}

type cmdSetNeedsRebuild struct {
	actor.InputBase
	NeedsRebuild bool
}

type cmdDispose struct {
	actor.InputBase
	Reply chan error
}

// cmdBarrier completes Reply once every earlier input has been reduced and
// its effects handled.
type cmdBarrier struct {
	actor.InputBase
	Reply chan error
}

type evRenderFinished struct {
	actor.InputBase
	Err   error
	NowMs int64
}

// evRenderDispatchFailed reports that the panel never received a render
// instruction, so no completion will follow for it.
type evRenderDispatchFailed struct {
	actor.InputBase
	Gen     int64
	Content string
	Err     error
	NowMs   int64
}

type evTimerFired struct {
	actor.InputBase
	Name  string
	Gen   int64
	NowMs int64
}

// Effects

type effStartTimer struct {
	actor.EffectBase
	Name    string
	Gen     int64
	AfterMs int64
}

type effCancelTimer struct {
	actor.EffectBase
	Name string
}

type effSendRender struct {
	actor.EffectBase
	Gen     int64
	Content string
}

type effSendConfig struct {
	actor.EffectBase
	Config wire.ViewConfig
}

type effReveal struct {
	actor.EffectBase
	Target string
}

type effOpenProgress struct {
	actor.EffectBase
	Title string
}

type effCloseProgress struct {
	actor.EffectBase
}

type effWarn struct {
	actor.EffectBase
	Advisory wire.Advisory
}

type effRenderFinished struct {
	actor.EffectBase
	Err        error
	DurationMs int64
	Active     int
}

type effLog struct {
	actor.EffectBase
	Level  logger.Level
	Format string
	Args   []any
}

type effCompleteReply struct {
	actor.EffectBase
	Reply chan error
	Err   error
}
