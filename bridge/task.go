package bridge

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/kbukum/nitai/errors"
	"github.com/kbukum/nitai/logger"
	"github.com/kbukum/nitai/loop"
	"github.com/kbukum/nitai/observability"
)

const (
	statePending int32 = iota
	stateCancelled
	stateSettled
)

// Task is one outstanding operation whose result is delivered on a loop.
type Task[T any] struct {
	id      string
	loop    *loop.Loop
	cancel  context.CancelFunc
	release func(T)
	state   atomic.Int32

	// Written once before done is closed, on the loop goroutine unless the
	// loop was closed first.
	value T
	err   error
	done  chan struct{}

	mu        sync.Mutex
	settled   bool
	callbacks []func()

	log *logger.Logger
}

// Schedule runs fn on a new goroutine and returns a Task settled on l.
// A nil l uses loop.Default. release, if non-nil, receives a value produced
// after the Task was cancelled.
func Schedule[T any](l *loop.Loop, ctx context.Context, fn func(context.Context) (T, error), release func(T)) *Task[T] {
	if l == nil {
		l = loop.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	t := &Task[T]{
		id:      uuid.NewString(),
		loop:    l,
		cancel:  cancel,
		release: release,
		done:    make(chan struct{}),
	}
	t.log = logger.Get("bridge").WithFields(logger.Fields(logger.FieldTaskID, t.id))
	observability.Default().TaskStarted(ctx)

	go func() {
		v, err := t.run(ctx, fn)
		t.complete(v, err)
	}()
	return t
}

// Resolved returns a Task that settles with v on the next loop turn.
func Resolved[T any](l *loop.Loop, v T) *Task[T] {
	return Schedule(l, context.Background(), func(context.Context) (T, error) { return v, nil }, nil)
}

// Rejected returns a Task that settles with err on the next loop turn.
func Rejected[T any](l *loop.Loop, err error) *Task[T] {
	return Schedule(l, context.Background(), func(context.Context) (T, error) {
		var zero T
		return zero, err
	}, nil)
}

// ID returns the Task's unique identifier.
func (t *Task[T]) ID() string { return t.id }

// Done is closed once the Task has settled.
func (t *Task[T]) Done() <-chan struct{} { return t.done }

// Cancel requests cancellation. It reports false, and does nothing, when the
// Task has already settled or was already cancelled.
func (t *Task[T]) Cancel() bool {
	if !t.state.CompareAndSwap(statePending, stateCancelled) {
		return false
	}
	t.cancel()
	t.log.Debug("task cancelled")
	return true
}

// Await blocks until the Task settles or ctx is done. The error, if any, is
// an *errors.AppError. Giving up on ctx does not cancel the Task.
//
// Await must not be called from a loop callback: the Task can only settle
// on that same goroutine.
func (t *Task[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-t.done:
		return t.value, t.err
	case <-ctx.Done():
		var zero T
		return zero, errors.Translate(ctx.Err())
	}
}

// Result returns the settled value without blocking. ok is false while the
// Task is pending.
func (t *Task[T]) Result() (value T, err error, ok bool) {
	select {
	case <-t.done:
		return t.value, t.err, true
	default:
		var zero T
		return zero, nil, false
	}
}

// Then registers callbacks run on the loop goroutine once the Task settles.
// Either may be nil. Callbacks registered after settlement run on the next
// loop turn. Once the loop is closed they run on whichever goroutine settles
// the Task, or on the caller when it already has. Then is safe to call from
// any goroutine.
func (t *Task[T]) Then(onResolve func(T), onReject func(error)) {
	cb := func() {
		if t.err != nil {
			if onReject != nil {
				onReject(t.err)
			}
			return
		}
		if onResolve != nil {
			onResolve(t.value)
		}
	}
	err := t.loop.Post(func() { t.enqueue(cb) })
	if err != nil {
		// No loop turn is coming: run cb here once the Task settles.
		t.enqueue(cb)
	}
}

// enqueue runs cb now if the Task has settled, or queues it for settle.
func (t *Task[T]) enqueue(cb func()) {
	t.mu.Lock()
	if !t.settled {
		t.callbacks = append(t.callbacks, cb)
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()
	cb()
}

func (t *Task[T]) run(ctx context.Context, fn func(context.Context) (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Error("task panicked", logger.Fields(
				logger.FieldError, fmt.Sprint(r),
				"stack", string(debug.Stack()),
			))
			var zero T
			v, err = zero, errors.Internal(fmt.Errorf("panic: %v", r)).WithDetail("panic", true)
		}
	}()
	return fn(ctx)
}

// complete hands the outcome of fn to the loop. A closed loop takes no more
// callbacks, so the Task settles in place.
func (t *Task[T]) complete(v T, err error) {
	if postErr := t.loop.Post(func() { t.settle(v, err) }); postErr != nil {
		t.log.Warn("loop closed before task settled", logger.ErrorFields("settle", postErr))
		t.settle(v, err)
	}
}

// settle runs on the loop goroutine, or on the completing goroutine once
// the loop is closed.
func (t *Task[T]) settle(v T, err error) {
	t.mu.Lock()
	if t.settled {
		t.mu.Unlock()
		return
	}
	defer t.cancel()

	outcome := observability.OutcomeResolved
	if t.state.CompareAndSwap(statePending, stateSettled) {
		if err != nil {
			appErr := errors.Translate(err)
			t.err = appErr
			outcome = observability.OutcomeRejected
			if appErr.Code == errors.ErrCodeInternal && appErr.Details["panic"] == true {
				outcome = observability.OutcomePanicked
			}
		} else {
			t.value = v
		}
	} else {
		if err == nil && t.release != nil {
			t.release(v)
		}
		t.err = errors.Cancelled().WithCause(err)
		outcome = observability.OutcomeCancelled
		t.state.Store(stateSettled)
	}

	t.settled = true
	callbacks := t.callbacks
	t.callbacks = nil
	t.mu.Unlock()

	close(t.done)
	observability.Default().TaskSettled(context.Background(), outcome)
	for _, cb := range callbacks {
		cb()
	}
}
