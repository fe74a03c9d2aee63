package loop

import (
	"context"
	stderrors "errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"

	"github.com/kbukum/nitai/component"
	"github.com/kbukum/nitai/logger"
)

var (
	// ErrClosed is returned by Post and Run once the loop has been closed.
	ErrClosed = stderrors.New("loop: closed")
	// ErrRunning is returned by Run and Drain while another goroutine runs the loop.
	ErrRunning = stderrors.New("loop: already running")
)

// Loop is a FIFO of callbacks executed by a single goroutine.
type Loop struct {
	mu      sync.Mutex
	pending *queue.Queue
	closed  bool

	wake    chan struct{}
	stopped chan struct{}
	running atomic.Bool
	ran     atomic.Uint64

	log *logger.Logger
}

var _ component.Component = (*Loop)(nil)

// New creates an idle loop. Nothing runs until Run, Drain or Start is called.
func New() *Loop {
	return &Loop{
		pending: queue.New(),
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
		log:     logger.Get("loop"),
	}
}

// Post enqueues fn to run on the loop goroutine. It is safe to call from
// any goroutine, including from inside a callback.
func (l *Loop) Post(fn func()) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.pending.Add(fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return nil
}

// Len returns the number of callbacks waiting to run.
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pending.Length()
}

// Executed returns the number of callbacks run so far.
func (l *Loop) Executed() uint64 {
	return l.ran.Load()
}

// Run executes callbacks on the calling goroutine until ctx is done or the
// loop is closed. After Close, callbacks already queued still run before
// Run returns nil.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer l.running.Store(false)

	for {
		for {
			fn, ok := l.next()
			if !ok {
				break
			}
			l.invoke(fn)
		}

		l.mu.Lock()
		closed := l.closed && l.pending.Length() == 0
		l.mu.Unlock()
		if closed {
			l.markStopped()
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// Drain runs every callback queued at the time of the call, plus any they
// post, on the calling goroutine and returns how many ran. It is meant for
// callers that pump the loop themselves.
func (l *Loop) Drain() (int, error) {
	if !l.running.CompareAndSwap(false, true) {
		return 0, ErrRunning
	}
	defer l.running.Store(false)

	n := 0
	for {
		fn, ok := l.next()
		if !ok {
			return n, nil
		}
		l.invoke(fn)
		n++
	}
}

// Close stops accepting callbacks. A running Run drains the queue and returns.
func (l *Loop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	if !l.running.Load() {
		l.markStopped()
	}
}

// Closed reports whether Close has been called.
func (l *Loop) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pending.Length() == 0 {
		return nil, false
	}
	return l.pending.Remove().(func()), true
}

func (l *Loop) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("loop callback panicked", logger.Fields(
				logger.FieldError, fmt.Sprint(r),
				"stack", string(debug.Stack()),
			))
		}
	}()
	l.ran.Add(1)
	fn()
}

func (l *Loop) markStopped() {
	l.mu.Lock()
	defer l.mu.Unlock()
	select {
	case <-l.stopped:
	default:
		close(l.stopped)
	}
}

// --- component.Component ---

// Name returns the component name.
func (l *Loop) Name() string { return "loop" }

// Start runs the loop on a new goroutine.
func (l *Loop) Start(_ context.Context) error {
	if l.Closed() {
		return ErrClosed
	}
	if l.running.Load() {
		return nil
	}
	go func() {
		if err := l.Run(context.Background()); err != nil && !stderrors.Is(err, ErrRunning) {
			l.log.Warn("loop exited", logger.ErrorFields("run", err))
		}
	}()
	return nil
}

// Stop closes the loop and waits for queued callbacks to finish.
func (l *Loop) Stop(ctx context.Context) error {
	l.Close()
	select {
	case <-l.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Health reports whether the loop is accepting callbacks.
func (l *Loop) Health(_ context.Context) component.Health {
	h := component.Health{Name: l.Name(), Status: component.StatusHealthy}
	switch {
	case l.Closed():
		h.Status = component.StatusUnhealthy
		h.Message = "closed"
	case !l.running.Load():
		h.Status = component.StatusDegraded
		h.Message = fmt.Sprintf("idle with %d queued", l.Len())
	}
	return h
}

var (
	defaultLoop *Loop
	defaultOnce sync.Once
)

// Default returns the process-wide loop, started on first use.
func Default() *Loop {
	defaultOnce.Do(func() {
		defaultLoop = New()
		_ = defaultLoop.Start(context.Background())
	})
	return defaultLoop
}
