package actor_test

import (
	"testing"
	"time"

	"github.com/justinchuby/vscode-interactive-graphviz/internal/actor"
	"github.com/justinchuby/vscode-interactive-graphviz/internal/actor/actortest"
	"github.com/stretchr/testify/require"
)

type testEvent struct {
	actor.InputBase
	n int
}

type testEffect struct {
	actor.EffectBase
	n int
}

func sumReducer(state int, input actor.Input) (int, []actor.Effect) {
	ev, ok := input.(testEvent)
	if !ok {
		return state, nil
	}
	return state + ev.n, []actor.Effect{testEffect{n: ev.n}}
}

func TestActorProcessesInputsSequentially(t *testing.T) {
	t.Parallel()

	rt := &actortest.FakeRuntime{}
	a := actor.New[int](0, sumReducer, rt)
	a.Start()
	defer a.Stop()

	for i := 1; i <= 5; i++ {
		require.True(t, a.Enqueue(testEvent{n: i}), "enqueue %d", i)
	}

	require.Eventually(t, func() bool { return a.State() == 15 }, 2*time.Second, 5*time.Millisecond)
	require.Len(t, rt.Effects(), 5)
}

// TestActorEnqueueAfterStop ensures stopped actors reject input and that Stop
// is safe on an actor that never started.
func TestActorEnqueueAfterStop(t *testing.T) {
	t.Parallel()

	rt := &actortest.FakeRuntime{}
	a := actor.New[int](0, sumReducer, rt)
	a.Stop()
	a.Stop()

	select {
	case <-a.Done():
	case <-time.After(time.Second):
		t.Fatal("done not closed for never-started actor")
	}
	require.False(t, a.Enqueue(testEvent{n: 1}))
	require.False(t, a.Enqueue(nil))
	require.Equal(t, 1, rt.Stopped())
}

func TestActorMailboxOverflowCallsOnDrop(t *testing.T) {
	t.Parallel()

	dropped := 0
	a := actor.New[int](0, sumReducer, nil,
		actor.WithMailboxSize[int](1),
		actor.WithHooks(actor.Hooks[int]{OnDrop: func(actor.Input) { dropped++ }}),
	)
	defer a.Stop()

	// Not started: the first input fills the mailbox, the second overflows.
	require.True(t, a.Enqueue(testEvent{n: 1}))
	require.False(t, a.Enqueue(testEvent{n: 2}))
	require.Equal(t, 1, dropped)
}

func TestActorOnPanicRecovers(t *testing.T) {
	t.Parallel()

	recovered := make(chan any, 1)
	boom := func(state int, input actor.Input) (int, []actor.Effect) {
		panic("boom")
	}
	a := actor.New[int](0, boom, nil, actor.WithHooks(actor.Hooks[int]{
		OnPanic: func(r any) { recovered <- r },
	}))
	a.Start()
	defer a.Stop()

	require.True(t, a.Enqueue(testEvent{n: 1}))
	select {
	case r := <-recovered:
		require.Equal(t, "boom", r)
	case <-time.After(2 * time.Second):
		t.Fatal("panic hook not called")
	}
	<-a.Done()
}

func TestReplayFoldsInputs(t *testing.T) {
	t.Parallel()

	state, effects := actor.Replay(0, sumReducer, testEvent{n: 2}, testEvent{n: 3})
	require.Equal(t, 5, state)
	require.Equal(t, []actor.Effect{testEffect{n: 2}, testEffect{n: 3}}, effects)
}
