// Package actor is a small event-loop scaffold for components that own
// timing-sensitive state.
//
// One goroutine (the loop) owns the state. Callers, timers and I/O callbacks
// never mutate it; they enqueue inputs. A pure reducer turns (state, input)
// into the next state plus a list of declarative effects, and a Runtime
// carries those effects out, feeding any follow-up observations back into the
// mailbox.
package actor

import (
	"context"
	"errors"
	"sync"
)

// Input is an item delivered to an actor mailbox: either a command from a
// caller or an event observed by the runtime.
type Input interface {
	isActorInput()
}

// Effect is a side effect requested by a reducer. Effects are data; the
// Runtime decides how to execute them.
type Effect interface {
	isActorEffect()
}

// ReducerFunc is a pure state transition function.
//
// Reducers must not perform I/O, start goroutines or read the clock. Time is
// injected through inputs.
type ReducerFunc[S any] func(state S, input Input) (next S, effects []Effect)

// Runtime interprets effects and emits follow-up inputs.
type Runtime interface {
	// HandleEffects executes effects in order. It runs on the actor loop, so
	// anything that blocks must be moved to a goroutine that later calls emit.
	HandleEffects(ctx context.Context, effects []Effect, emit func(Input))

	// Stop releases background resources (timers, handles). It may be called
	// more than once.
	Stop()
}

// Hooks provide optional observability into the loop.
type Hooks[S any] struct {
	// OnInput is called after an input is dequeued, before reducing.
	OnInput func(input Input)
	// OnTransition is called after the reducer ran and the state was stored.
	OnTransition func(prev S, next S, input Input)
	// OnEffects is called before effects are handed to the Runtime.
	OnEffects func(effects []Effect)
	// OnDrop is called when Enqueue rejects an input because the mailbox is
	// full.
	OnDrop func(input Input)
	// OnPanic is called when the loop panics. If nil, the panic propagates.
	OnPanic func(recovered any)
}

// Actor runs a single-threaded event loop that owns state of type S.
type Actor[S any] struct {
	reduce  ReducerFunc[S]
	runtime Runtime
	hooks   Hooks[S]

	mu     sync.Mutex
	state  S
	inbox  chan Input
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
}

// Option configures an Actor.
type Option[S any] func(*Actor[S])

// WithHooks attaches observability hooks.
func WithHooks[S any](hooks Hooks[S]) Option[S] {
	return func(a *Actor[S]) { a.hooks = hooks }
}

// WithMailboxSize sets the mailbox buffer size. Non-positive sizes are
// ignored.
func WithMailboxSize[S any](n int) Option[S] {
	return func(a *Actor[S]) {
		if n <= 0 {
			return
		}
		a.inbox = make(chan Input, n)
	}
}

// New creates an actor. The loop does not run until Start is called.
func New[S any](initial S, reducer ReducerFunc[S], runtime Runtime, opts ...Option[S]) *Actor[S] {
	ctx, cancel := context.WithCancel(context.Background())
	a := &Actor[S]{
		reduce:  reducer,
		runtime: runtime,
		state:   initial,
		inbox:   make(chan Input, 256),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Start launches the loop. Calling Start more than once has no effect.
func (a *Actor[S]) Start() {
	a.startOnce.Do(func() { go a.loop() })
}

// Stop cancels the loop and stops the runtime. Safe to call repeatedly.
//
// If the actor was never started, Done is closed immediately.
func (a *Actor[S]) Stop() {
	a.stopOnce.Do(func() {
		a.cancel()
		// A loop that never started cannot close done itself.
		a.startOnce.Do(func() { close(a.done) })
		if a.runtime != nil {
			a.runtime.Stop()
		}
	})
}

// Done returns a channel that is closed once the loop has exited.
func (a *Actor[S]) Done() <-chan struct{} { return a.done }

// Context returns the actor's lifetime context. It is canceled by Stop.
func (a *Actor[S]) Context() context.Context { return a.ctx }

// Enqueue delivers an input to the mailbox without blocking.
//
// It returns false if the input is nil, the actor is stopped, or the mailbox
// is full.
func (a *Actor[S]) Enqueue(input Input) bool {
	if input == nil {
		return false
	}
	select {
	case <-a.ctx.Done():
		return false
	default:
	}
	select {
	case a.inbox <- input:
		return true
	default:
		if a.hooks.OnDrop != nil {
			a.hooks.OnDrop(input)
		}
		return false
	}
}

// State returns a snapshot of the current state.
func (a *Actor[S]) State() S {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Actor[S]) loop() {
	defer close(a.done)
	defer func() {
		if r := recover(); r != nil {
			if a.hooks.OnPanic != nil {
				a.hooks.OnPanic(r)
				return
			}
			panic(r)
		}
	}()

	emit := func(in Input) {
		_ = a.Enqueue(in)
	}

	for {
		select {
		case <-a.ctx.Done():
			return
		case in := <-a.inbox:
			a.step(in, emit)
		}
	}
}

func (a *Actor[S]) step(in Input, emit func(Input)) {
	if in == nil {
		return
	}
	if a.hooks.OnInput != nil {
		a.hooks.OnInput(in)
	}

	a.mu.Lock()
	prev := a.state
	a.mu.Unlock()

	next, effects := a.reduce(prev, in)

	a.mu.Lock()
	a.state = next
	a.mu.Unlock()

	if a.hooks.OnTransition != nil {
		a.hooks.OnTransition(prev, next, in)
	}
	if len(effects) == 0 {
		return
	}
	if a.hooks.OnEffects != nil {
		a.hooks.OnEffects(effects)
	}
	if a.runtime != nil {
		a.runtime.HandleEffects(a.ctx, effects, emit)
	}
}

// ErrStopped is returned by helpers when the actor has been stopped.
var ErrStopped = errors.New("actor stopped")
