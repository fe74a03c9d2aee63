package ws

import (
	"context"
	stderrors "errors"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/kbukum/nitai/bridge"
	"github.com/kbukum/nitai/errors"
	"github.com/kbukum/nitai/logger"
	"github.com/kbukum/nitai/loop"
	"github.com/kbukum/nitai/observability"
	"github.com/kbukum/nitai/pool"
	"github.com/kbukum/nitai/transport"
)

const (
	resourceKind = "websocket"
	inboxSize    = 16
	closeGrace   = time.Second
)

// Session is an open WebSocket session.
type Session struct {
	s *session
}

// session is shared with the reader and writer goroutines. It must never
// point back at its Session.
type session struct {
	id    string
	loop  *loop.Loop
	conn  *websocket.Conn
	meta  *transport.WebSocketState
	lease *pool.Lease

	writes chan writeCmd
	inbox  chan Message
	done   chan struct{}
	closed atomic.Bool

	// Set by the reader before release.
	readErr     error
	remoteClose atomic.Pointer[Message]

	log *logger.Logger
}

type writeCmd struct {
	msg    Message
	result chan error
}

// New starts a Session over an established connection. Commands settle on
// l; a nil l uses loop.Default.
func New(l *loop.Loop, state *transport.WebSocketState, lease *pool.Lease) *Session {
	if l == nil {
		l = loop.Default()
	}
	s := &session{
		id:     uuid.NewString(),
		loop:   l,
		conn:   state.Conn,
		meta:   state,
		lease:  lease,
		writes: make(chan writeCmd),
		inbox:  make(chan Message, inboxSize),
		done:   make(chan struct{}),
	}
	s.log = logger.Get("ws").WithFields(logger.Fields(
		logger.FieldResourceID, s.id,
		logger.FieldURL, state.URL,
	))

	s.conn.SetPingHandler(func(data string) error {
		err := s.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(closeGrace))
		if err != nil && !stderrors.Is(err, websocket.ErrCloseSent) {
			return err
		}
		s.deliver(NewPing([]byte(data)))
		return nil
	})
	s.conn.SetPongHandler(func(data string) error {
		s.deliver(NewPong([]byte(data)))
		return nil
	})

	go s.readLoop()
	go s.writeLoop()

	w := &Session{s: s}
	runtime.AddCleanup(w, finalize, s)
	observability.Default().ResourceOpened(context.Background(), resourceKind)
	return w
}

// finalize must not block the cleanup goroutine on the close handshake.
func finalize(s *session) {
	go func() {
		defer func() {
			if p := recover(); p != nil {
				s.log.Error("session finalizer panicked", logger.Fields(logger.FieldError, p))
			}
		}()
		if s.release(observability.ViaFinalizer, websocket.CloseGoingAway, "") {
			s.log.Debug("unreachable session released")
		}
	}()
}

// ID identifies the session in logs.
func (w *Session) ID() string { return w.s.id }

// URL returns the URL the session was opened on.
func (w *Session) URL() string { return w.s.meta.URL }

// Status returns the handshake status code, normally 101.
func (w *Session) Status() int { return w.s.meta.Status }

// Version returns the protocol of the handshake response.
func (w *Session) Version() string { return w.s.meta.Version }

// Headers returns a copy of the handshake response headers.
func (w *Session) Headers() http.Header { return w.s.meta.Header.Clone() }

// Protocol returns the negotiated subprotocol, if any.
func (w *Session) Protocol() string { return w.s.meta.Protocol }

// LocalAddr returns the local address of the connection.
func (w *Session) LocalAddr() string { return w.s.meta.LocalAddr }

// RemoteAddr returns the peer address of the connection.
func (w *Session) RemoteAddr() string { return w.s.meta.RemoteAddr }

// Closed reports whether the session has been released.
func (w *Session) Closed() bool { return w.s.closed.Load() }

// Send queues msg. A close message closes the session with its code and
// reason.
func (w *Session) Send(ctx context.Context, msg Message) *bridge.Task[struct{}] {
	if msg.Type == TypeClose {
		return w.Close(ctx, msg.Code, msg.Reason)
	}
	return w.SendAll(ctx, []Message{msg})
}

// SendAll queues msgs in order. An empty list settles at once.
func (w *Session) SendAll(ctx context.Context, msgs []Message) *bridge.Task[struct{}] {
	s := w.s
	if s.closed.Load() {
		return bridge.Rejected[struct{}](s.loop, errors.AlreadyClosed("websocket"))
	}
	for _, m := range msgs {
		if m.Type == TypeClose {
			return bridge.Rejected[struct{}](s.loop, errors.InvalidArgument("messages", "close frames must be sent alone"))
		}
	}
	return bridge.Schedule(s.loop, ctx, func(ctx context.Context) (struct{}, error) {
		defer runtime.KeepAlive(w)
		for _, m := range msgs {
			if err := s.send(ctx, m); err != nil {
				return struct{}{}, err
			}
		}
		return struct{}{}, nil
	}, nil)
}

// Recv waits for the next inbound message. A positive timeout rejects with
// TIMEOUT_ERROR when nothing arrives in time; no message is lost. Messages
// that arrived before a close frame from the peer are still delivered, then
// the close frame once, after which Recv reports ALREADY_CLOSED.
func (w *Session) Recv(ctx context.Context, timeout time.Duration) *bridge.Task[Message] {
	s := w.s
	if s.closed.Load() && s.remoteClose.Load() == nil && len(s.inbox) == 0 {
		return bridge.Rejected[Message](s.loop, s.terminalErr())
	}
	return bridge.Schedule(s.loop, ctx, func(ctx context.Context) (Message, error) {
		defer runtime.KeepAlive(w)
		if s.closed.Load() {
			return s.afterClose()
		}

		var expired <-chan time.Time
		if timeout > 0 {
			timer := time.NewTimer(timeout)
			defer timer.Stop()
			expired = timer.C
		}
		select {
		case m, ok := <-s.inbox:
			if ok {
				return m, nil
			}
			return s.terminal()
		case <-s.done:
			return s.afterClose()
		case <-expired:
			return Message{}, errors.Timeout("websocket recv")
		case <-ctx.Done():
			return Message{}, errors.Translate(ctx.Err())
		}
	}, nil)
}

// Close sends a close frame with code and reason and releases the session.
// Code zero means 1000. Closing a closed session is a no-op.
func (w *Session) Close(ctx context.Context, code int, reason string) *bridge.Task[struct{}] {
	s := w.s
	if s.closed.Load() {
		return bridge.Resolved(s.loop, struct{}{})
	}
	if code == 0 {
		code = websocket.CloseNormalClosure
	}
	if err := validateClose(code, reason); err != nil {
		return bridge.Rejected[struct{}](s.loop, err)
	}
	return bridge.Schedule(s.loop, ctx, func(context.Context) (struct{}, error) {
		defer runtime.KeepAlive(w)
		s.release(observability.ViaClose, code, reason)
		return struct{}{}, nil
	}, nil)
}

// Discard releases the session without waiting, for use as a release function.
func (w *Session) Discard() {
	go w.s.release(observability.ViaClose, websocket.CloseNormalClosure, "")
}

// afterClose serves Recv once the session is released. Only a close from
// the peer leaves earlier messages deliverable.
func (s *session) afterClose() (Message, error) {
	if s.remoteClose.Load() != nil {
		select {
		case m, ok := <-s.inbox:
			if ok {
				return m, nil
			}
		default:
		}
	}
	return s.terminal()
}

// terminal hands out the peer's close frame once, then the terminal error.
func (s *session) terminal() (Message, error) {
	if m := s.remoteClose.Swap(nil); m != nil {
		return *m, nil
	}
	return Message{}, s.terminalErr()
}

func (s *session) terminalErr() error {
	if s.readErr != nil {
		return s.readErr
	}
	return errors.AlreadyClosed("websocket")
}

func (s *session) send(ctx context.Context, m Message) error {
	cmd := writeCmd{msg: m, result: make(chan error, 1)}
	select {
	case s.writes <- cmd:
	case <-s.done:
		return errors.AlreadyClosed("websocket")
	case <-ctx.Done():
		return errors.Translate(ctx.Err())
	}
	return <-cmd.result
}

func (s *session) writeLoop() {
	for {
		select {
		case cmd := <-s.writes:
			cmd.result <- s.write(cmd.msg)
		case <-s.done:
			return
		}
	}
}

func (s *session) write(m Message) error {
	var err error
	switch m.Type {
	case TypePing, TypePong:
		err = s.conn.WriteControl(int(m.Type), m.Data, time.Now().Add(closeGrace))
	case TypeText, TypeBinary:
		err = s.conn.WriteMessage(int(m.Type), m.Data)
	default:
		return errors.InvalidArgument("type", "unsupported message type "+m.Type.String())
	}
	if err == nil {
		return nil
	}
	if s.closed.Load() {
		return errors.Cancelled().WithCause(err)
	}
	return errors.Translate(err)
}

// deliver hands an inbound message to Recv, waiting while the inbox is full.
func (s *session) deliver(m Message) bool {
	select {
	case s.inbox <- m:
		return true
	case <-s.done:
		return false
	}
}

func (s *session) readLoop() {
	defer close(s.inbox)
	for {
		mt, data, err := s.conn.ReadMessage()
		if err == nil {
			if !s.deliver(Message{Type: MessageType(mt), Data: data}) {
				return
			}
			continue
		}

		var closeErr *websocket.CloseError
		switch {
		case s.closed.Load():
		case stderrors.As(err, &closeErr):
			s.remoteClose.Store(&Message{Type: TypeClose, Code: closeErr.Code, Reason: closeErr.Text})
			s.release(observability.ViaRemote, closeErr.Code, closeErr.Text)
		default:
			s.readErr = readError(err)
			s.release(observability.ViaError, websocket.CloseAbnormalClosure, "")
		}
		return
	}
}

func readError(err error) error {
	if stderrors.Is(err, websocket.ErrReadLimit) {
		return errors.Protocol(err).WithDetail("reason", "message too big")
	}
	return errors.Translate(err)
}

// release runs the single release path. It reports whether this call won.
func (s *session) release(via string, code int, reason string) bool {
	if !s.closed.CompareAndSwap(false, true) {
		return false
	}
	close(s.done)

	if via == observability.ViaClose || via == observability.ViaFinalizer {
		msg := websocket.FormatCloseMessage(code, reason)
		if err := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace)); err != nil {
			s.log.Debug("close frame not sent", logger.ErrorFields("write_close", err))
		}
	}
	if err := s.conn.Close(); err != nil {
		s.log.Debug("connection close failed", logger.ErrorFields("close", err))
	}
	if err := s.lease.Release(); err != nil {
		s.log.Warn("lease release failed", logger.ErrorFields("release_lease", err))
	}
	observability.Default().ResourceReleased(context.Background(), resourceKind, via)
	s.log.Debug("session released", logger.Fields(
		logger.FieldReleaseVia, via,
		"code", code,
	))
	return true
}
