package stream

import (
	"context"
	stderrors "errors"
	"io"
	"iter"
	"sync"
	"sync/atomic"

	"github.com/kbukum/nitai/bridge"
	"github.com/kbukum/nitai/errors"
	"github.com/kbukum/nitai/logger"
	"github.com/kbukum/nitai/loop"
	"github.com/kbukum/nitai/observability"
)

const (
	stateOpen int32 = iota
	stateEnded
	stateFailed
	stateClosed
)

// Chunk is one delivery from a Reader. Done is set, with a zero Value, once
// the stream has ended.
type Chunk[T any] struct {
	Value T
	Done  bool
}

// Source yields the next item of a stream, or io.EOF at its end. It is never
// called concurrently with itself.
type Source[T any] interface {
	Next(ctx context.Context) (T, error)
	io.Closer
}

// Reader delivers items of a Source through the loop.
type Reader[T any] struct {
	loop   *loop.Loop
	source Source[T]

	busy    atomic.Bool
	state   atomic.Int32
	termErr error

	finishOnce sync.Once
	onFinish   func(via string)

	log *logger.Logger
}

// NewReader wraps source. onFinish, if non-nil, runs exactly once when the
// stream reaches a terminal state, with the release path that got it there.
func NewReader[T any](l *loop.Loop, source Source[T], onFinish func(via string)) *Reader[T] {
	return &Reader[T]{
		loop:     l,
		source:   source,
		onFinish: onFinish,
		log:      logger.Get("stream"),
	}
}

// Next pulls the next item.
func (r *Reader[T]) Next(ctx context.Context) *bridge.Task[Chunk[T]] {
	switch r.state.Load() {
	case stateEnded:
		return bridge.Resolved(r.loop, Chunk[T]{Done: true})
	case stateFailed:
		return bridge.Rejected[Chunk[T]](r.loop, r.termErr)
	case stateClosed:
		return bridge.Rejected[Chunk[T]](r.loop, errors.AlreadyClosed("stream"))
	}
	if !r.busy.CompareAndSwap(false, true) {
		return bridge.Rejected[Chunk[T]](r.loop, errors.ReadInProgress())
	}
	return bridge.Schedule(r.loop, ctx, r.pull, nil)
}

// Seq returns an iterator awaiting each item in turn. It must not be used
// on the loop goroutine.
func (r *Reader[T]) Seq(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for {
			chunk, err := r.Next(ctx).Await(ctx)
			if err != nil {
				var zero T
				yield(zero, err)
				return
			}
			if chunk.Done || !yield(chunk.Value, nil) {
				return
			}
		}
	}
}

// Close releases the source. An in-flight Next reports CANCELLED. Close
// after the stream has finished is a no-op.
func (r *Reader[T]) Close() error {
	if !r.state.CompareAndSwap(stateOpen, stateClosed) {
		return nil
	}
	r.finish(observability.ViaClose)
	return nil
}

// Finished reports whether the stream reached a terminal state.
func (r *Reader[T]) Finished() bool {
	return r.state.Load() != stateOpen
}

func (r *Reader[T]) pull(ctx context.Context) (Chunk[T], error) {
	defer r.busy.Store(false)

	stop := context.AfterFunc(ctx, func() {
		if r.state.CompareAndSwap(stateOpen, stateClosed) {
			r.finish(observability.ViaCancel)
		}
	})
	defer stop()

	v, err := r.source.Next(ctx)
	switch {
	case r.state.Load() == stateClosed:
		return Chunk[T]{}, errors.Cancelled().WithCause(err)
	case stderrors.Is(err, io.EOF):
		if r.state.CompareAndSwap(stateOpen, stateEnded) {
			r.finish(observability.ViaConsume)
		}
		return Chunk[T]{Done: true}, nil
	case err != nil:
		appErr := errors.Translate(err)
		r.termErr = appErr
		if r.state.CompareAndSwap(stateOpen, stateFailed) {
			r.finish(observability.ViaError)
		}
		return Chunk[T]{}, appErr
	}
	return Chunk[T]{Value: v}, nil
}

func (r *Reader[T]) finish(via string) {
	r.finishOnce.Do(func() {
		if err := r.source.Close(); err != nil {
			r.log.Debug("stream source close failed", logger.ErrorFields("close", err))
		}
		if r.onFinish != nil {
			r.onFinish(via)
		}
	})
}
