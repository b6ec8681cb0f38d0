package preview

import (
	"errors"
	"math/rand"
	"sort"
	"testing"

	"github.com/justinchuby/vscode-interactive-graphviz/internal/actor"
	"github.com/justinchuby/vscode-interactive-graphviz/internal/wire"
	"github.com/stretchr/testify/require"
)

const t0 = int64(1_700_000_000_000)

func effectsOf[T actor.Effect](effects []actor.Effect) []T {
	var out []T
	for _, eff := range effects {
		if e, ok := eff.(T); ok {
			out = append(out, e)
		}
	}
	return out
}

// sim drives the reducer the way the runtime would: it keeps named timers
// (replacing on restart) and fires them as simulated time passes.
type sim struct {
	t       *testing.T
	state   State
	now     int64
	timers  map[string]simTimer
	sends   []simSend
	effects []actor.Effect
}

type simTimer struct {
	gen int64
	at  int64
}

type simSend struct {
	at      int64
	gen     int64
	content string
}

func newSim(t *testing.T, s Settings) *sim {
	return &sim{t: t, state: State{Settings: s}, now: t0, timers: map[string]simTimer{}}
}

func (m *sim) apply(in actor.Input) []actor.Effect {
	next, effects := Reduce(m.state, in)
	m.state = next
	for _, eff := range effects {
		switch e := eff.(type) {
		case effStartTimer:
			m.timers[e.Name] = simTimer{gen: e.Gen, at: m.now + e.AfterMs}
		case effCancelTimer:
			delete(m.timers, e.Name)
		case effSendRender:
			m.sends = append(m.sends, simSend{at: m.now, gen: e.Gen, content: e.Content})
		}
	}
	m.effects = append(m.effects, effects...)
	return effects
}

func (m *sim) advanceTo(at int64) {
	require.GreaterOrEqual(m.t, at, m.now, "time must not go backwards")
	for {
		name, due, ok := m.nextDue(at)
		if !ok {
			break
		}
		delete(m.timers, name)
		m.now = due.at
		m.apply(evTimerFired{Name: name, Gen: due.gen, NowMs: due.at})
	}
	m.now = at
}

func (m *sim) nextDue(limit int64) (string, simTimer, bool) {
	names := make([]string, 0, len(m.timers))
	for name := range m.timers {
		names = append(names, name)
	}
	sort.Strings(names)
	var (
		bestName string
		best     simTimer
		found    bool
	)
	for _, name := range names {
		tm := m.timers[name]
		if tm.at > limit {
			continue
		}
		if !found || tm.at < best.at {
			bestName, best, found = name, tm, true
		}
	}
	return bestName, best, found
}

func (m *sim) request(at int64, content string) []actor.Effect {
	m.advanceTo(at)
	return m.apply(cmdRequestRender{Content: content, NowMs: m.now})
}

func (m *sim) finish(at int64, err error) []actor.Effect {
	m.advanceTo(at)
	return m.apply(evRenderFinished{Err: err, NowMs: m.now})
}

// TestScenarioIntervalCoalescesIntermediateContent: request A at t=0 renders
// immediately, B at t=100 is held until t=500 and A's successor is B.
func TestScenarioIntervalCoalescesIntermediateContent(t *testing.T) {
	t.Parallel()

	m := newSim(t, Settings{RenderIntervalMs: 500, GuardIntervalMs: 1000})

	effects := m.request(t0, "A")
	require.Len(t, effectsOf[effSendRender](effects), 1)
	require.Len(t, effectsOf[effOpenProgress](effects), 1)

	effects = m.request(t0+100, "B")
	starts := effectsOf[effStartTimer](effects)
	require.Len(t, starts, 1)
	require.Equal(t, waitTimerName, starts[0].Name)
	require.Equal(t, int64(400), starts[0].AfterMs)
	require.Equal(t, "B", m.state.Pending)
	require.Equal(t, PhaseRenderingWithPending, m.state.Phase())

	m.advanceTo(t0 + 499)
	require.Len(t, m.sends, 1)

	m.advanceTo(t0 + 500)
	require.Equal(t, []simSend{
		{at: t0, gen: 1, content: "A"},
		{at: t0 + 500, gen: 2, content: "B"},
	}, m.sends)
	require.Empty(t, m.state.Pending)
}

func TestDebounceBurstRendersLastPayloadOnce(t *testing.T) {
	t.Parallel()

	m := newSim(t, Settings{DebounceMs: 100})
	for i, content := range []string{"a", "ab", "abc", "abcd", "abcde"} {
		effects := m.request(t0+int64(i*60), content)
		require.Len(t, effectsOf[effStartTimer](effects), 1, "every request re-arms")
	}
	require.Empty(t, m.sends)
	require.Equal(t, PhaseScheduled, m.state.Phase())

	m.advanceTo(t0 + 4*60 + 99)
	require.Empty(t, m.sends)
	m.advanceTo(t0 + 4*60 + 100)
	require.Equal(t, []simSend{{at: t0 + 340, gen: 1, content: "abcde"}}, m.sends)
}

func TestGuardDelaysRequestAfterQuietPeriod(t *testing.T) {
	t.Parallel()

	m := newSim(t, Settings{GuardIntervalMs: 250})

	// Nothing prior: renders at once.
	m.request(t0, "first")
	m.finish(t0+10, nil)
	require.Len(t, m.sends, 1)

	effects := m.request(t0+1000, "second")
	require.Empty(t, effectsOf[effSendRender](effects))
	starts := effectsOf[effStartTimer](effects)
	require.Len(t, starts, 1)
	require.Equal(t, int64(250), starts[0].AfterMs)

	// A quick follow-up has no delay of its own and renders at once,
	// cancelling the armed wait.
	effects = m.request(t0+1050, "third")
	require.Len(t, effectsOf[effCancelTimer](effects), 1)
	sends := effectsOf[effSendRender](effects)
	require.Len(t, sends, 1)
	require.Equal(t, "third", sends[0].Content)

	m.advanceTo(t0 + 2000)
	require.Len(t, m.sends, 2)
}

func TestArmedWaitIsNotPushedOutWithoutDebounce(t *testing.T) {
	t.Parallel()

	m := newSim(t, Settings{RenderIntervalMs: 500})
	m.request(t0, "A")

	effects := m.request(t0+100, "B")
	require.Len(t, effectsOf[effStartTimer](effects), 1)

	effects = m.request(t0+200, "C")
	require.Empty(t, effectsOf[effStartTimer](effects))
	require.Empty(t, effectsOf[effCancelTimer](effects))
	require.Equal(t, "C", m.state.Pending)

	m.advanceTo(t0 + 500)
	require.Len(t, m.sends, 2)
	require.Equal(t, simSend{at: t0 + 500, gen: 2, content: "C"}, m.sends[1])
}

func TestRapidRequestsBypassGuard(t *testing.T) {
	t.Parallel()

	m := newSim(t, Settings{GuardIntervalMs: 250})
	m.request(t0, "a")
	m.finish(t0+5, nil)
	effects := m.request(t0+100, "b")
	require.Len(t, effectsOf[effSendRender](effects), 1)
}

func TestRenderLockHoldsContentUntilFinished(t *testing.T) {
	t.Parallel()

	m := newSim(t, Settings{LockEnabled: true})
	m.request(t0, "A")
	require.True(t, m.state.RenderLocked)

	effects := m.request(t0+5, "B")
	require.Empty(t, effectsOf[effSendRender](effects))
	require.Equal(t, PhaseRenderingWithPending, m.state.Phase())

	effects = m.request(t0+6, "C")
	require.Empty(t, effectsOf[effSendRender](effects))

	// Completion drains without any new request.
	effects = m.finish(t0+50, nil)
	sends := effectsOf[effSendRender](effects)
	require.Len(t, sends, 1)
	require.Equal(t, "C", sends[0].Content)
	require.True(t, m.state.RenderLocked)
	require.Equal(t, 1, m.state.ActiveRenders)
	require.True(t, m.state.ProgressOpen)

	m.finish(t0+90, nil)
	require.False(t, m.state.RenderLocked)
	require.False(t, m.state.ProgressOpen)
	require.Equal(t, PhaseIdle, m.state.Phase())
}

func TestRenderFailureDoesNotBlockLaterRenders(t *testing.T) {
	t.Parallel()

	m := newSim(t, Settings{LockEnabled: true})
	m.request(t0, "A")
	effects := m.finish(t0+10, errors.New("syntax error"))
	finished := effectsOf[effRenderFinished](effects)
	require.Len(t, finished, 1)
	require.EqualError(t, finished[0].Err, "syntax error")
	require.Equal(t, int64(10), finished[0].DurationMs)

	effects = m.request(t0+20, "B")
	require.Len(t, effectsOf[effSendRender](effects), 1)
}

func TestLockTimeoutUnlocksAndDrainsOnce(t *testing.T) {
	t.Parallel()

	m := newSim(t, Settings{LockEnabled: true, LockTimeoutMs: 1000})
	m.request(t0, "A")
	require.Contains(t, m.timers, lockTimerName)

	m.request(t0+10, "B")
	require.Len(t, m.sends, 1)

	m.advanceTo(t0 + 1000)
	require.Len(t, m.sends, 2)
	require.Equal(t, "B", m.sends[1].content)
	require.Equal(t, 2, m.state.ActiveRenders)
	warns := effectsOf[effWarn](m.effects)
	require.Len(t, warns, 1)
	require.Equal(t, []string{settingsAction}, warns[0].Advisory.Actions)
	require.Equal(t, "graphviz-interactive-preview.renderLockAdditionalTimeout", warns[0].Advisory.SettingsKey)

	// Late completion of A: counter drops, progress stays open for B.
	m.finish(t0+1200, nil)
	require.Equal(t, 1, m.state.ActiveRenders)
	require.True(t, m.state.ProgressOpen)

	m.finish(t0+1300, nil)
	// A stray extra completion must not double close or go negative.
	m.finish(t0+1400, nil)
	require.Zero(t, m.state.ActiveRenders)
	require.Len(t, effectsOf[effOpenProgress](m.effects), 1)
	require.Len(t, effectsOf[effCloseProgress](m.effects), 1)
	require.Len(t, m.sends, 2)
}

func TestStaleTimerFiresAreIgnored(t *testing.T) {
	t.Parallel()

	state := State{Settings: Settings{DebounceMs: 100}}
	state, _ = Reduce(state, cmdRequestRender{Content: "a", NowMs: t0})
	state, _ = Reduce(state, cmdRequestRender{Content: "b", NowMs: t0 + 10})
	require.Equal(t, int64(2), state.WaitTimerGen)

	next, effects := Reduce(state, evTimerFired{Name: waitTimerName, Gen: 1, NowMs: t0 + 100})
	require.Empty(t, effects)
	require.Equal(t, state, next)

	next, effects = Reduce(state, evTimerFired{Name: lockTimerName, Gen: 1, NowMs: t0 + 100})
	require.Empty(t, effects)
	require.Equal(t, state, next)

	_, effects = Reduce(state, evTimerFired{Name: waitTimerName, Gen: 2, NowMs: t0 + 110})
	require.Len(t, effectsOf[effSendRender](effects), 1)
}

func TestEmptyContentNeverRenders(t *testing.T) {
	t.Parallel()

	next, effects := Reduce(State{}, cmdRequestRender{Content: "", NowMs: t0})
	require.Empty(t, effectsOf[effSendRender](effects))
	require.Equal(t, int64(t0), next.LastRequestAtMs)
	require.Equal(t, PhaseIdle, next.Phase())
}

func TestPageLoadedSendsConfigThenFlushes(t *testing.T) {
	t.Parallel()

	state := State{
		Settings:     Settings{TransitionDelayMs: 10, TransitionDurationMs: 500},
		Pending:      "digraph{}",
		NeedsRebuild: true,
	}
	next, effects := Reduce(state, cmdPageLoaded{NowMs: t0})
	require.False(t, next.NeedsRebuild)
	require.GreaterOrEqual(t, len(effects), 2)
	require.Equal(t, effSendConfig{Config: wire.ViewConfig{TransitionDelay: 10, TransitionDuration: 500}}, effects[0])
	require.Equal(t, "digraph{}", effectsOf[effSendRender](effects)[0].Content)
}

func TestDispatchFailureRestoresPending(t *testing.T) {
	t.Parallel()

	m := newSim(t, Settings{LockEnabled: true, LockTimeoutMs: 500})
	m.request(t0, "A")
	require.True(t, m.state.RenderLocked)

	effects := m.apply(evRenderDispatchFailed{Gen: 1, Content: "A", Err: errors.New("no view"), NowMs: t0})
	require.Len(t, effectsOf[effCloseProgress](effects), 1)
	require.False(t, m.state.RenderLocked)
	require.False(t, m.state.LockTimerArmed)
	require.NotContains(t, m.timers, lockTimerName)
	require.Equal(t, "A", m.state.Pending)
	require.Empty(t, effectsOf[effSendRender](effects), "no retry until the view loads")

	effects = m.apply(cmdPageLoaded{NowMs: t0 + 50})
	sends := effectsOf[effSendRender](effects)
	require.Len(t, sends, 1)
	require.Equal(t, "A", sends[0].Content)
}

func TestDispatchFailureKeepsNewerPending(t *testing.T) {
	t.Parallel()

	state := State{Settings: Settings{LockEnabled: true}, RenderLocked: true, RenderGen: 3, ActiveRenders: 1, ProgressOpen: true, Pending: "newer"}
	next, _ := Reduce(state, evRenderDispatchFailed{Gen: 3, Content: "older", Err: errors.New("x"), NowMs: t0})
	require.Equal(t, "newer", next.Pending)
	require.False(t, next.RenderLocked)
}

// TestDisposeClosesProgressOnce: dispose with two renders outstanding closes
// the indicator exactly once and ignores everything afterwards.
func TestDisposeClosesProgressOnce(t *testing.T) {
	t.Parallel()

	m := newSim(t, Settings{})
	m.request(t0, "A")
	m.request(t0+1, "B")
	require.Equal(t, 2, m.state.ActiveRenders)

	reply := make(chan error, 2)
	effects := m.apply(cmdDispose{Reply: reply})
	require.Len(t, effectsOf[effCloseProgress](effects), 1)
	require.True(t, m.state.Disposed)
	require.Equal(t, PhaseIdle, m.state.Phase())

	effects = m.apply(cmdDispose{Reply: reply})
	require.Empty(t, effectsOf[effCloseProgress](effects))
	require.Len(t, effectsOf[effCompleteReply](effects), 1)

	require.Empty(t, m.apply(evRenderFinished{NowMs: t0 + 5}))
	require.Empty(t, m.apply(cmdRequestRender{Content: "C", NowMs: t0 + 6}))
	require.Len(t, effectsOf[effCloseProgress](m.effects), 1)
}

func TestDisposeCancelsArmedTimers(t *testing.T) {
	t.Parallel()

	m := newSim(t, Settings{LockEnabled: true, LockTimeoutMs: 100, DebounceMs: 50})
	m.request(t0, "A")
	m.advanceTo(t0 + 50)
	m.request(t0+60, "B")
	require.Len(t, m.timers, 2)

	m.apply(cmdDispose{})
	require.Empty(t, m.timers)
}

// TestLockAllowsSingleRenderInFlight drives random request/finish sequences
// and checks that with the lock on at most one render is ever outstanding.
func TestLockAllowsSingleRenderInFlight(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 50; round++ {
		m := newSim(t, Settings{
			LockEnabled:      true,
			DebounceMs:       int64(rng.Intn(3)) * 20,
			RenderIntervalMs: int64(rng.Intn(3)) * 50,
			GuardIntervalMs:  int64(rng.Intn(3)) * 30,
		})
		now := t0
		finished := 0
		for step := 0; step < 200; step++ {
			now += int64(rng.Intn(40))
			if m.state.ActiveRenders > 0 && rng.Intn(3) == 0 {
				m.finish(now, nil)
				finished++
			} else {
				m.request(now, string(rune('a'+rng.Intn(26))))
			}
			require.LessOrEqual(t, m.state.ActiveRenders, 1)
			require.LessOrEqual(t, len(m.sends)-finished, 1)
			require.Equal(t, m.state.ActiveRenders > 0, m.state.ProgressOpen)
		}
	}
}

// TestRenderIntervalSpacing checks that with the lock off two dispatches are
// never closer than the render interval.
func TestRenderIntervalSpacing(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(11))
	for round := 0; round < 50; round++ {
		interval := int64(100 + rng.Intn(400))
		m := newSim(t, Settings{RenderIntervalMs: interval, GuardIntervalMs: int64(rng.Intn(200))})
		now := t0
		for step := 0; step < 100; step++ {
			now += int64(rng.Intn(int(interval)))
			m.request(now, "x")
		}
		m.advanceTo(now + 10*interval)
		require.NotEmpty(t, m.sends)
		for i := 1; i < len(m.sends); i++ {
			require.GreaterOrEqual(t, m.sends[i].at-m.sends[i-1].at, interval)
		}
		require.Empty(t, m.state.Pending, "last request is always rendered")
	}
}

func TestRevealAndNeedsRebuild(t *testing.T) {
	t.Parallel()

	state, effects := actor.Step(State{}, cmdReveal{Target: "beside"}, Reduce)
	require.Equal(t, []actor.Effect{effReveal{Target: "beside"}}, effects)

	state, effects = actor.Step(state, cmdSetNeedsRebuild{NeedsRebuild: true}, Reduce)
	require.Empty(t, effects)
	require.True(t, state.NeedsRebuild)
}
