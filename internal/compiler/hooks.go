package compiler

import (
	"context"
	"sync"

	ferrors "git.home.luguber.info/inful/devbundle/internal/foundation/errors"
)

// SyncHook runs its taps in registration order on the caller's goroutine.
type SyncHook struct {
	mu   sync.RWMutex
	taps []namedTap[func()]
}

type namedTap[F any] struct {
	name string
	fn   F
}

// Tap registers fn under name.
func (h *SyncHook) Tap(name string, fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.taps = append(h.taps, namedTap[func()]{name: name, fn: fn})
}

// Call invokes every tap.
func (h *SyncHook) Call() {
	h.mu.RLock()
	taps := append([]namedTap[func()](nil), h.taps...)
	h.mu.RUnlock()
	for _, t := range taps {
		t.fn()
	}
}

// AsyncFunc is an async tap. It must call ack exactly once when finished;
// extra calls are ignored. ack may be called from any goroutine.
type AsyncFunc[T any] func(arg T, ack func())

// AsyncHook runs taps in series: a tap starts only after the previous one
// acknowledged. The compiler blocks in Call until every tap has acknowledged.
type AsyncHook[T any] struct {
	mu   sync.RWMutex
	taps []namedTap[AsyncFunc[T]]
}

// Tap registers fn under name.
func (h *AsyncHook[T]) Tap(name string, fn AsyncFunc[T]) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.taps = append(h.taps, namedTap[AsyncFunc[T]]{name: name, fn: fn})
}

// Len returns the number of registered taps.
func (h *AsyncHook[T]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.taps)
}

// Call runs the taps in series with arg. It returns a runtime error if ctx
// ends before a tap acknowledges.
func (h *AsyncHook[T]) Call(ctx context.Context, arg T) error {
	h.mu.RLock()
	taps := append([]namedTap[AsyncFunc[T]](nil), h.taps...)
	h.mu.RUnlock()

	for _, t := range taps {
		acked := make(chan struct{})
		var once sync.Once
		t.fn(arg, func() { once.Do(func() { close(acked) }) })

		select {
		case <-acked:
		case <-ctx.Done():
			return ferrors.WrapError(ctx.Err(), ferrors.CategoryRuntime, "hook canceled before acknowledgment").
				WithContext("tap", t.name).
				Build()
		}
	}
	return nil
}

// Hooks are the lifecycle signals a compiler exposes.
type Hooks struct {
	// Invalid fires when source changes are detected and a recompile is coming.
	Invalid *SyncHook
	// WatchRun fires when a rebuild pass begins; compilation waits for acks.
	WatchRun *AsyncHook[*Compilation]
	// Done fires after every pass, successful or not; the next watch cycle waits for acks.
	Done *AsyncHook[*Stats]
}

// NewHooks returns an empty hook set.
func NewHooks() *Hooks {
	return &Hooks{
		Invalid:  &SyncHook{},
		WatchRun: &AsyncHook[*Compilation]{},
		Done:     &AsyncHook[*Stats]{},
	}
}
