package preview

import (
	"github.com/justinchuby/vscode-interactive-graphviz/internal/actor"
	"github.com/justinchuby/vscode-interactive-graphviz/internal/config"
	"github.com/justinchuby/vscode-interactive-graphviz/internal/logger"
	"github.com/justinchuby/vscode-interactive-graphviz/internal/wire"
)

const (
	waitTimerName = "wait"
	lockTimerName = "render-lock"

	progressTitle = "Rendering Graphviz View"

	lockTimeoutMessage = "Graphviz render lock timed out! Maybe change the settings."
	settingsAction     = "Settings"
)

// lockTimeoutSettingsKey is the setting the lock-timeout advisory links to.
var lockTimeoutSettingsKey = config.SettingsSection + ".renderLockAdditionalTimeout"

// Reduce is the render scheduler reducer.
//
// None of these transitions take locks: timers and completions interleave
// freely and the handlers are written to tolerate late or stale arrivals.
func Reduce(state State, input actor.Input) (State, []actor.Effect) {
	switch in := input.(type) {
	case cmdBarrier:
		return state, []actor.Effect{effCompleteReply{Reply: in.Reply}}
	case cmdDispose:
		return reduceDispose(state, in)
	}

	if state.Disposed {
		return state, nil
	}

	switch in := input.(type) {
	case cmdRequestRender:
		return reduceRequestRender(state, in)
	case evTimerFired:
		return reduceTimerFired(state, in)
	case evRenderFinished:
		return reduceRenderFinished(state, in)
	case evRenderDispatchFailed:
		return reduceRenderDispatchFailed(state, in)
	case cmdPageLoaded:
		return reducePageLoaded(state, in)
	case cmdReveal:
		return state, []actor.Effect{effReveal{Target: in.Target}}
	case cmdSetNeedsRebuild:
		state.NeedsRebuild = in.NeedsRebuild
		return state, nil
	default:
		return state, nil
	}
}

func reduceRequestRender(state State, cmd cmdRequestRender) (State, []actor.Effect) {
	s := state.Settings
	now := cmd.NowMs

	// Anti-debounce: a request after a long quiet period is likely a
	// duplicate save/change event and waits the full guard interval. Rapid
	// streams pass straight through.
	var guardDelay int64
	if state.LastRequestAtMs != 0 && now-state.LastRequestAtMs > s.GuardIntervalMs {
		guardDelay = s.GuardIntervalMs
	}
	debounceDelay := s.DebounceMs
	var intervalDelay int64
	if state.LastRenderAtMs != 0 {
		intervalDelay = s.RenderIntervalMs - (now - state.LastRenderAtMs)
	}

	state.LastRequestAtMs = max(state.LastRequestAtMs, now)
	state.Pending = cmd.Content

	delay := max(guardDelay, debounceDelay, intervalDelay)
	if delay <= 0 {
		return renderWaitingContent(state, now)
	}

	// One timer serves debouncing (pushed out on every request) and the
	// guard/interval wait (left alone once armed).
	if debounceDelay <= 0 && state.WaitTimerArmed {
		return state, []actor.Effect{
			effLog{Level: logger.LevelTrace, Format: "request coalesced into armed wait (delay %dms)", Args: []any{delay}},
		}
	}

	var effects []actor.Effect
	if state.WaitTimerArmed {
		effects = append(effects, effCancelTimer{Name: waitTimerName})
	}
	state.WaitTimerGen++
	state.WaitTimerArmed = true
	effects = append(effects,
		effStartTimer{Name: waitTimerName, Gen: state.WaitTimerGen, AfterMs: delay},
		effLog{Level: logger.LevelDebug, Format: "request scheduled, wait %dms", Args: []any{delay}},
	)
	return state, effects
}

// renderWaitingContent dispatches the pending content unless the lock holds
// it back; a locked render is retried from restartRender.
func renderWaitingContent(state State, nowMs int64) (State, []actor.Effect) {
	var effects []actor.Effect
	if state.WaitTimerArmed {
		state.WaitTimerArmed = false
		effects = append(effects, effCancelTimer{Name: waitTimerName})
	}

	if state.Pending == "" {
		return state, effects
	}
	if state.Settings.LockEnabled && state.RenderLocked {
		effects = append(effects, effLog{Level: logger.LevelDebug, Format: "render locked, content stays pending"})
		return state, effects
	}

	content := state.Pending
	state.Pending = ""
	state, more := renderNow(state, content, nowMs)
	return state, append(effects, more...)
}

func renderNow(state State, content string, nowMs int64) (State, []actor.Effect) {
	s := state.Settings
	var effects []actor.Effect

	state.RenderLocked = s.LockEnabled
	state.LastRenderAtMs = max(state.LastRenderAtMs, nowMs)
	state.RenderGen++

	if s.LockEnabled && s.LockTimeoutMs > 0 {
		if state.LockTimerArmed {
			effects = append(effects, effCancelTimer{Name: lockTimerName})
		}
		state.LockTimerGen++
		state.LockTimerArmed = true
		effects = append(effects, effStartTimer{Name: lockTimerName, Gen: state.LockTimerGen, AfterMs: s.LockTimeoutMs})
	}

	// One progress indicator covers every outstanding render.
	state.ActiveRenders++
	if !state.ProgressOpen {
		state.ProgressOpen = true
		effects = append(effects, effOpenProgress{Title: progressTitle})
	}

	effects = append(effects, effSendRender{Gen: state.RenderGen, Content: content})
	return state, effects
}

// restartRender releases the lock and drains whatever arrived meanwhile.
func restartRender(state State, nowMs int64) (State, []actor.Effect) {
	var effects []actor.Effect
	if state.LockTimerArmed {
		state.LockTimerArmed = false
		effects = append(effects, effCancelTimer{Name: lockTimerName})
	}
	state.RenderLocked = false
	state, more := renderWaitingContent(state, nowMs)
	return state, append(effects, more...)
}

func reduceRenderFinished(state State, ev evRenderFinished) (State, []actor.Effect) {
	// A completion that outlived a lock timeout may arrive with nothing
	// outstanding; the counter never goes negative.
	if state.ActiveRenders > 0 {
		state.ActiveRenders--
	}

	effects := []actor.Effect{effRenderFinished{
		Err:        ev.Err,
		DurationMs: ev.NowMs - state.LastRenderAtMs,
		Active:     state.ActiveRenders,
	}}
	if state.ActiveRenders == 0 && state.ProgressOpen {
		state.ProgressOpen = false
		effects = append(effects, effCloseProgress{})
	}

	state, more := restartRender(state, ev.NowMs)
	return state, append(effects, more...)
}

func reduceRenderDispatchFailed(state State, ev evRenderDispatchFailed) (State, []actor.Effect) {
	effects := []actor.Effect{
		effLog{Level: logger.LevelWarn, Format: "render dispatch failed: %v", Args: []any{ev.Err}},
	}

	if state.ActiveRenders > 0 {
		state.ActiveRenders--
	}
	if state.ActiveRenders == 0 && state.ProgressOpen {
		state.ProgressOpen = false
		effects = append(effects, effCloseProgress{})
	}

	// Newer content wins; otherwise keep the undelivered source for the next
	// page load.
	if state.Pending == "" {
		state.Pending = ev.Content
	}

	// Release the lock without draining: the panel just refused a render,
	// retrying now would only fail again.
	if ev.Gen == state.RenderGen {
		if state.LockTimerArmed {
			state.LockTimerArmed = false
			effects = append(effects, effCancelTimer{Name: lockTimerName})
		}
		state.RenderLocked = false
	}
	return state, effects
}

func reduceTimerFired(state State, ev evTimerFired) (State, []actor.Effect) {
	switch ev.Name {
	case waitTimerName:
		if !state.WaitTimerArmed || ev.Gen != state.WaitTimerGen {
			return state, nil
		}
		state.WaitTimerArmed = false
		return renderWaitingContent(state, ev.NowMs)

	case lockTimerName:
		if !state.LockTimerArmed || ev.Gen != state.LockTimerGen {
			return state, nil
		}
		state.LockTimerArmed = false
		effects := []actor.Effect{
			effLog{Level: logger.LevelWarn, Format: "unlocking rendering because of timeout"},
		}
		state, more := restartRender(state, ev.NowMs)
		effects = append(effects, more...)
		effects = append(effects, effWarn{Advisory: wire.Advisory{
			Message:     lockTimeoutMessage,
			Actions:     []string{settingsAction},
			SettingsKey: lockTimeoutSettingsKey,
		}})
		return state, effects

	default:
		return state, nil
	}
}

func reducePageLoaded(state State, cmd cmdPageLoaded) (State, []actor.Effect) {
	state.NeedsRebuild = false
	effects := []actor.Effect{effSendConfig{Config: wire.ViewConfig{
		TransitionDelay:    state.Settings.TransitionDelayMs,
		TransitionDuration: state.Settings.TransitionDurationMs,
	}}}
	state, more := renderWaitingContent(state, cmd.NowMs)
	return state, append(effects, more...)
}

func reduceDispose(state State, cmd cmdDispose) (State, []actor.Effect) {
	if state.Disposed {
		return state, []actor.Effect{effCompleteReply{Reply: cmd.Reply}}
	}

	var effects []actor.Effect
	state.Disposed = true
	if state.WaitTimerArmed {
		state.WaitTimerArmed = false
		effects = append(effects, effCancelTimer{Name: waitTimerName})
	}
	if state.LockTimerArmed {
		state.LockTimerArmed = false
		effects = append(effects, effCancelTimer{Name: lockTimerName})
	}
	// Closing here releases anyone waiting on the indicator even though
	// renders may still be outstanding.
	if state.ProgressOpen {
		state.ProgressOpen = false
		effects = append(effects, effCloseProgress{})
	}
	state.ActiveRenders = 0
	state.RenderLocked = false
	state.Pending = ""

	effects = append(effects, effCompleteReply{Reply: cmd.Reply})
	return state, effects
}
