package orchestrator

import "sync"

// oneShot is resolved at most once; later resolutions are ignored.
type oneShot[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
}

func newOneShot[T any]() *oneShot[T] {
	return &oneShot[T]{done: make(chan struct{})}
}

// resolve stores v and releases waiters. It reports whether this call resolved.
func (o *oneShot[T]) resolve(v T) bool {
	resolved := false
	o.once.Do(func() {
		o.value = v
		close(o.done)
		resolved = true
	})
	return resolved
}

func (o *oneShot[T]) wait() <-chan struct{} { return o.done }

// get returns the value; it is only meaningful after wait is closed.
func (o *oneShot[T]) get() T { return o.value }
