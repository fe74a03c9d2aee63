package component

import (
	"context"
	"fmt"
	"sync"
)

// Lazy holds a value built on first use with double-checked locking.
// A failed build is retried on the next call; Reset discards a built value.
type Lazy[T any] struct {
	name  string
	mu    sync.RWMutex
	value T
	ready bool
	build func(ctx context.Context) (T, error)
	close func(T) error
}

// NewLazy creates a lazily built value.
func NewLazy[T any](name string, build func(context.Context) (T, error)) *Lazy[T] {
	return &Lazy[T]{name: name, build: build}
}

// WithCloser sets the function Reset uses to dispose of a built value.
func (l *Lazy[T]) WithCloser(fn func(T) error) *Lazy[T] {
	l.close = fn
	return l
}

// Name returns the lazy value's name.
func (l *Lazy[T]) Name() string { return l.name }

// Get returns the value, building it if needed.
func (l *Lazy[T]) Get(ctx context.Context) (T, error) {
	l.mu.RLock()
	if l.ready {
		v := l.value
		l.mu.RUnlock()
		return v, nil
	}
	l.mu.RUnlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ready {
		return l.value, nil
	}

	var zero T
	if l.build == nil {
		return zero, fmt.Errorf("no initializer for %s", l.name)
	}
	v, err := l.build(ctx)
	if err != nil {
		return zero, fmt.Errorf("failed to initialize %s: %w", l.name, err)
	}
	l.value, l.ready = v, true
	return v, nil
}

// IsInitialized reports whether the value has been built.
func (l *Lazy[T]) IsInitialized() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ready
}

// Reset disposes of the built value so the next Get builds a fresh one.
func (l *Lazy[T]) Reset() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.ready {
		return nil
	}
	v := l.value
	var zero T
	l.value, l.ready = zero, false
	if l.close != nil {
		return l.close(v)
	}
	return nil
}
