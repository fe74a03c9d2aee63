package ws

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kbukum/nitai/errors"
	"github.com/kbukum/nitai/loop"
	"github.com/kbukum/nitai/pool"
	"github.com/kbukum/nitai/transport"
)

type fixture struct {
	loop   *loop.Loop
	pool   *pool.Pool
	tr     *transport.Transport
	url    string
	closes chan int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	closes := make(chan int, 8)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				var ce *websocket.CloseError
				if stderrors.As(err, &ce) {
					closes <- ce.Code
				}
				return
			}
			switch string(data) {
			case "close-me":
				msg := websocket.FormatCloseMessage(4000, "bye")
				_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
				continue
			case "ping-me":
				_ = conn.WriteControl(websocket.PingMessage, []byte("hi"), time.Now().Add(time.Second))
				continue
			}
			if err := conn.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))

	l := loop.New()
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = l.Run(ctx) }()

	tr, err := transport.New(transport.Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() {
		srv.CloseClientConnections()
		srv.Close()
		cancel()
		l.Close()
	})
	return &fixture{
		loop:   l,
		pool:   pool.New(pool.Config{Key: t.Name(), Size: 8}),
		tr:     tr,
		url:    "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		closes: closes,
	}
}

func (f *fixture) open(t *testing.T) *Session {
	t.Helper()
	state, err := f.tr.DialWebSocket(context.Background(), transport.WebSocketParams{URL: f.url})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lease, err := f.pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return New(f.loop, state, lease)
}

func awaitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func recv(t *testing.T, s *Session) Message {
	t.Helper()
	m, err := s.Recv(awaitCtx(t), 2*time.Second).Await(awaitCtx(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return m
}

func waitAvailable(t *testing.T, p *pool.Pool, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for p.Available() != want && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if p.Available() != want {
		t.Fatalf("expected %d available, got %d", want, p.Available())
	}
}

func TestSession_SendRecv(t *testing.T) {
	f := newFixture(t)
	s := f.open(t)
	defer s.Discard()

	if s.Status() != http.StatusSwitchingProtocols || s.ID() == "" || s.RemoteAddr() == "" {
		t.Errorf("unexpected handshake metadata status=%d", s.Status())
	}
	if s.Headers().Get("Upgrade") == "" || s.Version() != transport.HTTP11 || s.URL() != f.url {
		t.Errorf("unexpected handshake response %v", s.Headers())
	}

	if _, err := s.Send(awaitCtx(t), NewText("hello")).Await(awaitCtx(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m := recv(t, s); m.Type != TypeText || m.Text() != "hello" {
		t.Errorf("expected text echo, got %v %q", m.Type, m.Data)
	}

	msgs := []Message{NewBinary([]byte{1, 2}), NewText("two"), NewText("three")}
	if _, err := s.SendAll(awaitCtx(t), msgs).Await(awaitCtx(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range msgs {
		if m := recv(t, s); m.Type != want.Type || string(m.Data) != string(want.Data) {
			t.Errorf("expected %v %q, got %v %q", want.Type, want.Data, m.Type, m.Data)
		}
	}

	if _, err := s.SendAll(awaitCtx(t), nil).Await(awaitCtx(t)); err != nil {
		t.Errorf("expected empty SendAll to resolve, got %v", err)
	}
}

func TestSession_CloseTwice(t *testing.T) {
	f := newFixture(t)
	baseline := f.pool.Available()
	s := f.open(t)

	if _, err := s.Send(awaitCtx(t), NewText("one")).Await(awaitCtx(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := s.Close(awaitCtx(t), 0, "").Await(awaitCtx(t)); err != nil {
			t.Fatalf("close %d: unexpected error: %v", i, err)
		}
		if f.pool.Available() != baseline {
			t.Fatalf("close %d: expected pool restored once, got %d", i, f.pool.Available())
		}
	}
	if !s.Closed() {
		t.Error("expected closed session")
	}
	if _, err := s.Close(awaitCtx(t), 999, "").Await(awaitCtx(t)); err != nil {
		t.Errorf("expected close of a closed session to ignore its code, got %v", err)
	}

	select {
	case code := <-f.closes:
		if code != websocket.CloseNormalClosure {
			t.Errorf("expected close code 1000, got %d", code)
		}
	case <-time.After(2 * time.Second):
		t.Error("server never saw the close frame")
	}

	if _, err := s.Send(awaitCtx(t), NewText("late")).Await(awaitCtx(t)); !errors.IsAlreadyClosed(err) {
		t.Errorf("expected ALREADY_CLOSED on send, got %v", err)
	}
	if _, err := s.Recv(awaitCtx(t), 0).Await(awaitCtx(t)); !errors.IsAlreadyClosed(err) {
		t.Errorf("expected ALREADY_CLOSED on recv, got %v", err)
	}
}

func TestSession_CloseFrameViaSend(t *testing.T) {
	f := newFixture(t)
	s := f.open(t)

	if _, err := s.Send(awaitCtx(t), NewClose(4001, "done")).Await(awaitCtx(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	select {
	case code := <-f.closes:
		if code != 4001 {
			t.Errorf("expected close code 4001, got %d", code)
		}
	case <-time.After(2 * time.Second):
		t.Error("server never saw the close frame")
	}
}

func TestSession_CloseValidation(t *testing.T) {
	f := newFixture(t)
	s := f.open(t)
	defer s.Discard()

	tests := []struct {
		code   int
		reason string
	}{
		{999, ""},
		{1005, ""},
		{5000, ""},
		{1000, strings.Repeat("r", 124)},
	}
	for _, tt := range tests {
		_, err := s.Close(awaitCtx(t), tt.code, tt.reason).Await(awaitCtx(t))
		if errors.CodeOf(err) != errors.ErrCodeInvalidArgument {
			t.Errorf("close(%d): expected INVALID_ARGUMENT, got %v", tt.code, err)
		}
	}
	if s.Closed() {
		t.Error("expected invalid close to leave the session open")
	}
}

func TestSession_RecvTimeoutKeepsMessages(t *testing.T) {
	f := newFixture(t)
	s := f.open(t)
	defer s.Discard()

	_, err := s.Recv(awaitCtx(t), 20*time.Millisecond).Await(awaitCtx(t))
	if !errors.IsTimeout(err) {
		t.Fatalf("expected TIMEOUT_ERROR, got %v", err)
	}

	if _, err := s.Send(awaitCtx(t), NewText("after")).Await(awaitCtx(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m := recv(t, s); m.Text() != "after" {
		t.Errorf("expected message after timeout, got %q", m.Data)
	}
}

func TestSession_RemoteClose(t *testing.T) {
	f := newFixture(t)
	baseline := f.pool.Available()
	s := f.open(t)

	if _, err := s.SendAll(awaitCtx(t), []Message{NewText("before"), NewText("close-me")}).Await(awaitCtx(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m := recv(t, s); m.Text() != "before" {
		t.Errorf("expected earlier message first, got %v %q", m.Type, m.Data)
	}
	m := recv(t, s)
	if m.Type != TypeClose || m.Code != 4000 || m.Reason != "bye" {
		t.Fatalf("expected close frame 4000/bye, got %+v", m)
	}
	if _, err := s.Recv(awaitCtx(t), 0).Await(awaitCtx(t)); !errors.IsAlreadyClosed(err) {
		t.Errorf("expected ALREADY_CLOSED after remote close, got %v", err)
	}
	waitAvailable(t, f.pool, baseline)

	if _, err := s.Close(awaitCtx(t), 0, "").Await(awaitCtx(t)); err != nil {
		t.Errorf("expected close after remote close to be a no-op, got %v", err)
	}
}

func TestSession_PingPong(t *testing.T) {
	f := newFixture(t)
	s := f.open(t)
	defer s.Discard()

	if _, err := s.Send(awaitCtx(t), NewText("ping-me")).Await(awaitCtx(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m := recv(t, s); m.Type != TypePing || m.Text() != "hi" {
		t.Errorf("expected ping from server, got %v %q", m.Type, m.Data)
	}

	if _, err := s.Send(awaitCtx(t), NewPing([]byte("yo"))).Await(awaitCtx(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m := recv(t, s); m.Type != TypePong || m.Text() != "yo" {
		t.Errorf("expected pong reply, got %v %q", m.Type, m.Data)
	}
}

func TestSession_JSONMessages(t *testing.T) {
	f := newFixture(t)
	s := f.open(t)
	defer s.Discard()

	type payload struct {
		Op string `json:"op"`
	}
	text, err := NewJSON(payload{Op: "sub"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bin, err := NewJSONBinary(payload{Op: "bin"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.SendAll(awaitCtx(t), []Message{text, bin}).Await(awaitCtx(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, want := range []struct {
		typ MessageType
		op  string
	}{{TypeText, "sub"}, {TypeBinary, "bin"}} {
		m := recv(t, s)
		var p payload
		if err := m.JSON(&p); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if m.Type != want.typ || p.Op != want.op {
			t.Errorf("expected %v %s, got %v %s", want.typ, want.op, m.Type, p.Op)
		}
	}

	if err := NewText("{bad").JSON(&struct{}{}); errors.CodeOf(err) != errors.ErrCodeDecode {
		t.Errorf("expected DECODE_ERROR, got %v", err)
	}
	if _, err := NewJSON(func() {}); errors.CodeOf(err) != errors.ErrCodeInvalidArgument {
		t.Errorf("expected INVALID_ARGUMENT, got %v", err)
	}
}

func TestMessageType_String(t *testing.T) {
	tests := map[MessageType]string{
		TypeText:        "text",
		TypeBinary:      "binary",
		TypeClose:       "close",
		TypePing:        "ping",
		TypePong:        "pong",
		MessageType(42): "unknown",
	}
	for typ, want := range tests {
		if typ.String() != want {
			t.Errorf("expected %s, got %s", want, typ.String())
		}
	}
}

func openMany(t *testing.T, f *fixture, n int) []*Session {
	t.Helper()
	held := make([]*Session, 0, n)
	for range n {
		held = append(held, f.open(t))
	}
	return held
}

func TestSession_FinalizerReleasesUnreachable(t *testing.T) {
	f := newFixture(t)
	baseline := f.pool.Available()

	held := openMany(t, f, 4)
	if f.pool.Available() != baseline-4 {
		t.Fatalf("expected 4 leases held, got %d available", f.pool.Available())
	}
	runtime.KeepAlive(held)

	deadline := time.Now().Add(10 * time.Second)
	for f.pool.Available() != baseline && time.Now().Before(deadline) {
		runtime.GC()
		time.Sleep(10 * time.Millisecond)
	}
	if f.pool.Available() != baseline {
		t.Fatalf("expected pool back to %d after collection, got %d", baseline, f.pool.Available())
	}
}
