package response

import (
	"context"
	"io"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/kbukum/nitai/logger"
	"github.com/kbukum/nitai/loop"
	"github.com/kbukum/nitai/observability"
	"github.com/kbukum/nitai/pool"
	"github.com/kbukum/nitai/transport"
)

const resourceKind = "response"

const (
	stateUnconsumed int32 = iota
	stateReading
	stateConsumed
)

// Response is a received HTTP response. Metadata is a snapshot taken when
// the headers arrived; the body is read at most once.
type Response struct {
	h *handle
}

// handle carries everything the finalizer needs. It must never point back
// at its Response.
type handle struct {
	id    string
	loop  *loop.Loop
	state *transport.State
	lease *pool.Lease

	consumed atomic.Int32
	released atomic.Bool

	mu     sync.Mutex
	stream io.Closer

	log *logger.Logger
}

// New wraps state and the pool lease it holds. Reads settle on l; a nil l
// uses loop.Default.
func New(l *loop.Loop, state *transport.State, lease *pool.Lease) *Response {
	if l == nil {
		l = loop.Default()
	}
	h := &handle{
		id:    uuid.NewString(),
		loop:  l,
		state: state,
		lease: lease,
	}
	h.log = logger.Get("response").WithFields(logger.Fields(
		logger.FieldResourceID, h.id,
		logger.FieldURL, state.URL,
	))

	r := &Response{h: h}
	runtime.AddCleanup(r, finalize, h)
	observability.Default().ResourceOpened(context.Background(), resourceKind)
	return r
}

func finalize(h *handle) {
	defer func() {
		if p := recover(); p != nil {
			h.log.Error("response finalizer panicked", logger.Fields(logger.FieldError, p))
		}
	}()
	if h.release(observability.ViaFinalizer) {
		h.log.Debug("unreachable response released")
	}
}

// ID identifies the response in logs.
func (r *Response) ID() string { return r.h.id }

// Status returns the status code.
func (r *Response) Status() int { return r.h.state.Status }

// StatusText returns the canonical reason phrase of the status code.
func (r *Response) StatusText() string { return http.StatusText(r.h.state.Status) }

// OK reports a 2xx status.
func (r *Response) OK() bool { return r.h.state.Status >= 200 && r.h.state.Status < 300 }

// URL returns the final URL, after redirects.
func (r *Response) URL() string { return r.h.state.URL }

// Method returns the request method.
func (r *Response) Method() string { return r.h.state.Method }

// Version returns HTTP/1.0, HTTP/1.1, HTTP/2 or HTTP/3.
func (r *Response) Version() string { return r.h.state.Version }

// Headers returns a copy of the response headers.
func (r *Response) Headers() http.Header { return r.h.state.Header.Clone() }

// Header returns the first value of the named header.
func (r *Response) Header(name string) string { return r.h.state.Header.Get(name) }

// Cookies parses the Set-Cookie headers.
func (r *Response) Cookies() []*http.Cookie {
	return (&http.Response{Header: r.h.state.Header}).Cookies()
}

// ContentLength returns the declared body length, or -1 when unknown.
func (r *Response) ContentLength() int64 { return r.h.state.ContentLength }

// LocalAddr returns the local address of the connection.
func (r *Response) LocalAddr() string { return r.h.state.LocalAddr }

// RemoteAddr returns the peer address of the connection.
func (r *Response) RemoteAddr() string { return r.h.state.RemoteAddr }

// History returns the redirects followed before this response.
func (r *Response) History() []transport.Redirect {
	return append([]transport.Redirect(nil), r.h.state.History...)
}

// Released reports whether the body has been released.
func (r *Response) Released() bool { return r.h.released.Load() }

// State returns "unconsumed", "reading", "consumed" or "released".
func (r *Response) State() string {
	if r.h.released.Load() && r.h.consumed.Load() != stateConsumed {
		return "released"
	}
	switch r.h.consumed.Load() {
	case stateReading:
		return "reading"
	case stateConsumed:
		return "consumed"
	}
	return "unconsumed"
}

// Close releases the body and its pool lease. It never fails and every call
// after the first is a no-op. A read in progress rejects with CANCELLED.
func (r *Response) Close() error {
	r.h.release(observability.ViaClose)
	return nil
}

// Discard is Close for use as a release function.
func (r *Response) Discard() {
	_ = r.Close()
}

// release runs the single release path. It reports whether this call won.
func (h *handle) release(via string) bool {
	if !h.released.CompareAndSwap(false, true) {
		return false
	}

	h.mu.Lock()
	s := h.stream
	h.mu.Unlock()
	if s != nil {
		_ = s.Close()
	}

	if err := h.state.CloseBody(); err != nil {
		h.log.Debug("body close failed", logger.ErrorFields("close_body", err))
	}
	if err := h.lease.Release(); err != nil {
		h.log.Warn("lease release failed", logger.ErrorFields("release_lease", err))
	}
	observability.Default().ResourceReleased(context.Background(), resourceKind, via)
	h.log.Debug("response released", logger.Fields(logger.FieldReleaseVia, via))
	return true
}

// attach registers the stream reading the body so release can end it.
func (h *handle) attach(s io.Closer) {
	h.mu.Lock()
	h.stream = s
	h.mu.Unlock()
	if h.released.Load() {
		_ = s.Close()
	}
}
