package transport

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kbukum/nitai/emulation"
	"github.com/kbukum/nitai/errors"
	"github.com/kbukum/nitai/observability"
)

// WebSocketParams describes a WebSocket handshake.
type WebSocketParams struct {
	URL            string
	Header         http.Header
	DefaultHeaders *bool
	Cookies        []*http.Cookie
	Emulation      *emulation.Profile
	Auth           *Auth
	Query          url.Values

	// Protocols are offered as subprotocols in preference order.
	Protocols       []string
	ReadBufferSize  int
	WriteBufferSize int
	// MaxMessageSize limits inbound messages. Zero means no limit.
	MaxMessageSize int64
	// Compression negotiates permessage-deflate.
	Compression bool

	HandshakeTimeout time.Duration
	Proxy            *Proxy
	LocalAddress     string
}

// WebSocketState is an established session and its handshake response.
type WebSocketState struct {
	Conn       *websocket.Conn
	URL        string
	Status     int
	Version    string
	Header     http.Header
	Protocol   string
	LocalAddr  string
	RemoteAddr string
}

// DialWebSocket performs the opening handshake.
func (t *Transport) DialWebSocket(ctx context.Context, p WebSocketParams) (*WebSocketState, error) {
	check := Params{Method: http.MethodGet, URL: p.URL, Header: p.Header}
	if err := t.validate(&check, "ws", "wss"); err != nil {
		return nil, err
	}
	target, err := url.Parse(p.URL)
	if err != nil {
		return nil, errors.InvalidArgument("url", err.Error())
	}
	if len(p.Query) > 0 {
		q := target.Query()
		for k, vs := range p.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		target.RawQuery = q.Encode()
	}

	header := make(http.Header)
	t.applyHeaders(header, p.Header, p.DefaultHeaders, p.Emulation)
	p.Auth.apply(header)
	for _, c := range p.Cookies {
		cookie := c.String()
		if prev := header.Get("Cookie"); prev != "" {
			cookie = prev + "; " + cookie
		}
		header.Set("Cookie", cookie)
	}
	stripHandshakeHeaders(header)

	ctx, err = withOverrides(ctx, p.Proxy, p.LocalAddress)
	if err != nil {
		return nil, err
	}
	timeout := firstPositive(p.HandshakeTimeout, t.config.Timeout, t.config.ConnectTimeout)

	dialer := &websocket.Dialer{
		NetDialContext:    t.dialContext,
		Proxy:             t.proxyFor,
		TLSClientConfig:   t.tls.Clone(),
		HandshakeTimeout:  timeout,
		ReadBufferSize:    p.ReadBufferSize,
		WriteBufferSize:   p.WriteBufferSize,
		Subprotocols:      p.Protocols,
		EnableCompression: p.Compression,
		Jar:               t.jar,
	}

	ctx, span := observability.StartSpan(ctx, observability.SpanWebSocketDial,
		attribute.String(observability.AttrURL, target.Redacted()))
	conn, resp, err := dialer.DialContext(ctx, target.String(), header)
	if err != nil {
		err = handshakeError(err, resp)
		observability.EndSpan(span, err)
		return nil, err
	}
	observability.EndSpan(span, nil)

	if p.MaxMessageSize > 0 {
		conn.SetReadLimit(p.MaxMessageSize)
	}
	return &WebSocketState{
		Conn:       conn,
		URL:        target.String(),
		Status:     resp.StatusCode,
		Version:    FormatVersion(resp.ProtoMajor, resp.ProtoMinor),
		Header:     resp.Header,
		Protocol:   conn.Subprotocol(),
		LocalAddr:  conn.LocalAddr().String(),
		RemoteAddr: conn.RemoteAddr().String(),
	}, nil
}

// stripHandshakeHeaders drops headers the dialer sets itself.
func stripHandshakeHeaders(h http.Header) {
	for _, k := range []string{"Upgrade", "Connection", "Sec-Websocket-Key", "Sec-Websocket-Version", "Sec-Websocket-Extensions"} {
		h.Del(k)
	}
}

func handshakeError(err error, resp *http.Response) error {
	if resp == nil || !stderrors.Is(err, websocket.ErrBadHandshake) {
		return errors.Translate(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	appErr := errors.Protocol(err).WithStatus(resp.StatusCode)
	if len(body) > 0 {
		appErr.WithDetail("body", string(body))
	}
	return appErr
}
