package client

import (
	"iter"
	"net/http"
	"net/url"
	"time"

	"github.com/kbukum/nitai/emulation"
	"github.com/kbukum/nitai/loop"
	"github.com/kbukum/nitai/pool"
	"github.com/kbukum/nitai/stream"
	"github.com/kbukum/nitai/transport"
)

// Option configures a Client at construction.
type Option func(*Client)

// WithLoop settles the Client's Tasks on l instead of loop.Default.
func WithLoop(l *loop.Loop) Option {
	return func(c *Client) { c.loop = l }
}

// WithRegistry takes pools from r instead of pool.Shared.
func WithRegistry(r *pool.Registry) Option {
	return func(c *Client) { c.registry = r }
}

// WithResolver resolves host names through r.
func WithResolver(r *transport.Resolver) Option {
	return func(c *Client) { c.resolver = r }
}

// RequestOption overrides the Client configuration for one call.
type RequestOption func(*request)

type request struct {
	header         http.Header
	defaultHeaders *bool
	cookies        []*http.Cookie
	emulation      *emulation.Profile
	auth           *transport.Auth
	query          url.Values
	proxy          *transport.Proxy
	localAddress   string
	timeout        time.Duration

	json           any
	form           url.Values
	body           any
	readTimeout    time.Duration
	version        string
	allowRedirects *bool
	maxRedirects   *int
	compression    *bool

	protocols       []string
	readBufferSize  int
	writeBufferSize int
	maxMessageSize  int64
	wsCompression   bool

	err error
}

func newRequest(opts []RequestOption) *request {
	r := &request{header: make(http.Header)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *request) params(method, rawURL string) transport.Params {
	return transport.Params{
		Method:         method,
		URL:            rawURL,
		Header:         r.header,
		DefaultHeaders: r.defaultHeaders,
		Cookies:        r.cookies,
		Emulation:      r.emulation,
		Auth:           r.auth,
		Query:          r.query,
		JSON:           r.json,
		Form:           r.form,
		Body:           r.body,
		Timeout:        r.timeout,
		ReadTimeout:    r.readTimeout,
		Version:        r.version,
		AllowRedirects: r.allowRedirects,
		MaxRedirects:   r.maxRedirects,
		Compression:    r.compression,
		Proxy:          r.proxy,
		LocalAddress:   r.localAddress,
	}
}

func (r *request) webSocketParams(rawURL string) transport.WebSocketParams {
	return transport.WebSocketParams{
		URL:              rawURL,
		Header:           r.header,
		DefaultHeaders:   r.defaultHeaders,
		Cookies:          r.cookies,
		Emulation:        r.emulation,
		Auth:             r.auth,
		Query:            r.query,
		Protocols:        r.protocols,
		ReadBufferSize:   r.readBufferSize,
		WriteBufferSize:  r.writeBufferSize,
		MaxMessageSize:   r.maxMessageSize,
		Compression:      r.wsCompression,
		HandshakeTimeout: r.timeout,
		Proxy:            r.proxy,
		LocalAddress:     r.localAddress,
	}
}

// WithHeader adds a header value.
func WithHeader(key, value string) RequestOption {
	return func(r *request) { r.header.Add(key, value) }
}

// WithHeaders adds every value of h.
func WithHeaders(h http.Header) RequestOption {
	return func(r *request) {
		for k, vs := range h {
			for _, v := range vs {
				r.header.Add(k, v)
			}
		}
	}
}

// WithoutDefaultHeaders skips the configured user agent, headers and
// emulation headers.
func WithoutDefaultHeaders() RequestOption {
	return func(r *request) {
		off := false
		r.defaultHeaders = &off
	}
}

// WithCookies sends cookies with the request.
func WithCookies(cookies ...*http.Cookie) RequestOption {
	return func(r *request) { r.cookies = append(r.cookies, cookies...) }
}

// WithEmulation applies a browser preset to this request only.
func WithEmulation(opts emulation.Options) RequestOption {
	return func(r *request) {
		p, err := emulation.Build(opts)
		if err != nil {
			r.err = err
			return
		}
		r.emulation = p
	}
}

// WithBearer sets a bearer token.
func WithBearer(token string) RequestOption {
	return func(r *request) { r.auth = &transport.Auth{Bearer: token} }
}

// WithBasicAuth sets Basic credentials.
func WithBasicAuth(username, password string) RequestOption {
	return func(r *request) {
		r.auth = &transport.Auth{Basic: &transport.BasicAuth{Username: username, Password: password}}
	}
}

// WithAuthorization sets the Authorization header verbatim.
func WithAuthorization(value string) RequestOption {
	return func(r *request) { r.auth = &transport.Auth{Raw: value} }
}

// WithQuery adds query parameters.
func WithQuery(q url.Values) RequestOption {
	return func(r *request) {
		if r.query == nil {
			r.query = make(url.Values)
		}
		for k, vs := range q {
			r.query[k] = append(r.query[k], vs...)
		}
	}
}

// WithJSON sends v encoded as JSON.
func WithJSON(v any) RequestOption {
	return func(r *request) { r.json = v }
}

// WithForm sends a URL-encoded form.
func WithForm(form url.Values) RequestOption {
	return func(r *request) { r.form = form }
}

// WithBody sends body, which may be an io.Reader, []byte or string. An
// io.Closer body is closed even when the request fails before sending.
func WithBody(body any) RequestOption {
	return func(r *request) { r.body = body }
}

// WithBodySeq streams the request body from seq, pulling each chunk only
// when the connection is ready for it.
func WithBodySeq(seq iter.Seq2[[]byte, error]) RequestOption {
	return func(r *request) { r.body = stream.Body(seq) }
}

// WithTimeout overrides the request timeout. For WebSockets it bounds the
// handshake.
func WithTimeout(d time.Duration) RequestOption {
	return func(r *request) { r.timeout = d }
}

// WithReadTimeout bounds each read of the response body.
func WithReadTimeout(d time.Duration) RequestOption {
	return func(r *request) { r.readTimeout = d }
}

// WithVersion forces transport.HTTP10, HTTP11 or HTTP2.
func WithVersion(v string) RequestOption {
	return func(r *request) { r.version = v }
}

// WithRedirects enables or disables following redirects.
func WithRedirects(allow bool) RequestOption {
	return func(r *request) { r.allowRedirects = &allow }
}

// WithMaxRedirects caps the redirects followed.
func WithMaxRedirects(n int) RequestOption {
	return func(r *request) { r.maxRedirects = &n }
}

// WithCompression asks for, or refuses, a compressed response.
func WithCompression(enabled bool) RequestOption {
	return func(r *request) { r.compression = &enabled }
}

// WithProxy routes the request through proxy.
func WithProxy(proxy transport.Proxy) RequestOption {
	return func(r *request) { r.proxy = &proxy }
}

// WithLocalAddress binds the connection to ip.
func WithLocalAddress(ip string) RequestOption {
	return func(r *request) { r.localAddress = ip }
}

// WithProtocols offers WebSocket subprotocols in preference order.
func WithProtocols(protocols ...string) RequestOption {
	return func(r *request) { r.protocols = protocols }
}

// WithBufferSizes sets the WebSocket read and write buffer sizes.
func WithBufferSizes(read, write int) RequestOption {
	return func(r *request) {
		r.readBufferSize = read
		r.writeBufferSize = write
	}
}

// WithMaxMessageSize limits inbound WebSocket messages.
func WithMaxMessageSize(n int64) RequestOption {
	return func(r *request) { r.maxMessageSize = n }
}

// WithMessageCompression negotiates permessage-deflate.
func WithMessageCompression() RequestOption {
	return func(r *request) { r.wsCompression = true }
}
