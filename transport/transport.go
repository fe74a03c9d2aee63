package transport

import (
	"context"
	"crypto/tls"
	stderrors "errors"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/netip"
	"net/url"
	"sync"

	"golang.org/x/net/http2"
	"golang.org/x/net/publicsuffix"

	"github.com/kbukum/nitai/errors"
	"github.com/kbukum/nitai/logger"
	"github.com/kbukum/nitai/resilience"
)

type ctxKey int

const (
	proxyKey ctxKey = iota
	localAddrKey
)

// Transport issues requests for one client.
type Transport struct {
	config Config
	tls    *tls.Config
	dialer *net.Dialer
	jar    http.CookieJar

	proxies []proxyRoute
	local   net.IP

	auto    http.RoundTripper
	h1Once  sync.Once
	h1      *http.Transport
	h2Once  sync.Once
	h2      *h2RoundTripper
	closers []func()
	mu      sync.Mutex

	cb *resilience.CircuitBreaker
	rl *resilience.RateLimiter

	log *logger.Logger
}

type proxyRoute struct {
	scheme string
	url    *url.URL
}

// New creates a Transport.
func New(cfg Config) (*Transport, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tlsCfg, err := cfg.TLS.Build()
	if err != nil {
		return nil, errors.InvalidArgument("tls", err.Error())
	}
	if tlsCfg == nil {
		tlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	t := &Transport{
		config: cfg,
		tls:    tlsCfg,
		dialer: &net.Dialer{Timeout: cfg.ConnectTimeout, KeepAlive: cfg.TCPKeepAlive},
		log:    logger.Get("transport"),
	}
	for i := range cfg.Proxies {
		u, _ := cfg.Proxies[i].parse()
		t.proxies = append(t.proxies, proxyRoute{scheme: cfg.Proxies[i].Scheme, url: u})
	}
	if cfg.LocalAddress != "" {
		t.local = net.ParseIP(cfg.LocalAddress)
	}
	if cfg.CookieStore {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, errors.Internal(err)
		}
		t.jar = jar
	}

	switch {
	case cfg.HTTP1Only:
		t.auto = t.http1()
	case cfg.HTTP2Only:
		t.auto = t.http2()
	default:
		tr := t.newHTTPTransport()
		if _, err := http2.ConfigureTransports(tr); err != nil {
			return nil, errors.Internal(err)
		}
		t.track(tr.CloseIdleConnections)
		t.auto = tr
	}

	if cfg.CircuitBreaker != nil {
		t.cb = resilience.NewCircuitBreaker(*cfg.CircuitBreaker)
	}
	if cfg.RateLimiter != nil {
		t.rl = resilience.NewRateLimiter(*cfg.RateLimiter)
	}
	return t, nil
}

// Config returns the effective configuration.
func (t *Transport) Config() Config { return t.config }

// Jar returns the cookie jar, or nil when the cookie store is off.
func (t *Transport) Jar() http.CookieJar { return t.jar }

// Resolver returns the resolver used by every dial.
func (t *Transport) Resolver() *Resolver { return t.config.Resolver }

// CloseIdleConnections closes idle connections of every protocol variant.
func (t *Transport) CloseIdleConnections() {
	t.mu.Lock()
	closers := append([]func(){}, t.closers...)
	t.mu.Unlock()
	for _, fn := range closers {
		fn()
	}
}

func (t *Transport) track(fn func()) {
	t.mu.Lock()
	t.closers = append(t.closers, fn)
	t.mu.Unlock()
}

func (t *Transport) newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy:                 t.proxyFor,
		DialContext:           t.dialContext,
		TLSClientConfig:       t.tls.Clone(),
		TLSHandshakeTimeout:   t.config.ConnectTimeout,
		IdleConnTimeout:       t.config.PoolIdleTimeout,
		MaxIdleConnsPerHost:   t.config.MaxIdlePerHost,
		MaxIdleConns:          t.config.MaxIdlePerHost * 8,
		DisableCompression:    t.config.DisableCompression,
		ExpectContinueTimeout: http.DefaultTransport.(*http.Transport).ExpectContinueTimeout,
	}
}

// http1 returns a transport that never negotiates HTTP/2.
func (t *Transport) http1() *http.Transport {
	t.h1Once.Do(func() {
		tr := t.newHTTPTransport()
		tr.TLSNextProto = map[string]func(string, *tls.Conn) http.RoundTripper{}
		tr.TLSClientConfig.NextProtos = []string{"http/1.1"}
		t.track(tr.CloseIdleConnections)
		t.h1 = tr
	})
	return t.h1
}

// http2 returns a transport speaking only HTTP/2: h2 over TLS, and
// prior-knowledge h2c for plain http URLs.
func (t *Transport) http2() *h2RoundTripper {
	t.h2Once.Do(func() {
		rt := &h2RoundTripper{
			tls: &http2.Transport{
				TLSClientConfig:    t.tls.Clone(),
				DisableCompression: t.config.DisableCompression,
				IdleConnTimeout:    t.config.PoolIdleTimeout,
				DialTLSContext: func(ctx context.Context, network, addr string, cfg *tls.Config) (net.Conn, error) {
					conn, err := t.dialContext(ctx, network, addr)
					if err != nil {
						return nil, err
					}
					tc := tls.Client(conn, cfg)
					if err := tc.HandshakeContext(ctx); err != nil {
						_ = conn.Close()
						return nil, err
					}
					return tc, nil
				},
			},
			cleartext: &http2.Transport{
				AllowHTTP:          true,
				DisableCompression: t.config.DisableCompression,
				IdleConnTimeout:    t.config.PoolIdleTimeout,
				DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
					return t.dialContext(ctx, network, addr)
				},
			},
		}
		t.track(rt.CloseIdleConnections)
		t.h2 = rt
	})
	return t.h2
}

type h2RoundTripper struct {
	tls       *http2.Transport
	cleartext *http2.Transport
}

func (rt *h2RoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme == "http" {
		return rt.cleartext.RoundTrip(req)
	}
	return rt.tls.RoundTrip(req)
}

func (rt *h2RoundTripper) CloseIdleConnections() {
	rt.tls.CloseIdleConnections()
	rt.cleartext.CloseIdleConnections()
}

// roundTripper picks the protocol variant for one request.
func (t *Transport) roundTripper(version string, profile preference) (http.RoundTripper, error) {
	switch version {
	case "":
		if profile == preferHTTP1 && !t.config.HTTP2Only {
			return t.http1(), nil
		}
		return t.auto, nil
	case HTTP10, HTTP11:
		if t.config.HTTP2Only {
			return nil, errors.InvalidArgument("version", version+" conflicts with http2_only")
		}
		return t.http1(), nil
	case HTTP2:
		if t.config.HTTP1Only {
			return nil, errors.InvalidArgument("version", version+" conflicts with http1_only")
		}
		return t.http2(), nil
	default:
		return nil, errors.InvalidArgument("version", "unsupported protocol version "+version)
	}
}

type preference int

const (
	preferAny preference = iota
	preferHTTP1
)

// dialContext resolves through the shared Resolver and tries each address
// in turn.
func (t *Transport) dialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := t.dialer
	if ip := t.localAddr(ctx); ip != nil {
		d := *t.dialer
		d.LocalAddr = &net.TCPAddr{IP: ip}
		dialer = &d
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	if _, err := netip.ParseAddr(host); err == nil {
		return dialer.DialContext(ctx, network, addr)
	}

	addrs, err := t.config.Resolver.Resolve(ctx, host)
	if err != nil {
		return nil, err
	}
	var errs []error
	for _, a := range addrs {
		conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(a.String(), port))
		if err == nil {
			return conn, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, errs[0]
}

func (t *Transport) localAddr(ctx context.Context) net.IP {
	if ip, ok := ctx.Value(localAddrKey).(net.IP); ok {
		return ip
	}
	return t.local
}

// proxyFor selects the proxy of one request.
func (t *Transport) proxyFor(req *http.Request) (*url.URL, error) {
	if u, ok := req.Context().Value(proxyKey).(*url.URL); ok {
		return u, nil
	}
	if t.config.NoProxy {
		return nil, nil
	}
	for _, p := range t.proxies {
		if p.scheme == "" || p.scheme == req.URL.Scheme || wsScheme(p.scheme, req.URL.Scheme) {
			return p.url, nil
		}
	}
	return http.ProxyFromEnvironment(req)
}

func wsScheme(proxyScheme, target string) bool {
	return (proxyScheme == "http" && target == "ws") || (proxyScheme == "https" && target == "wss")
}

// withOverrides stores per-request proxy and local address in ctx, where
// proxyFor and dialContext find them.
func withOverrides(ctx context.Context, proxy *Proxy, localAddress string) (context.Context, error) {
	if proxy != nil {
		u, err := proxy.parse()
		if err != nil {
			return nil, err
		}
		ctx = context.WithValue(ctx, proxyKey, u)
	}
	if localAddress != "" {
		ip := net.ParseIP(localAddress)
		if ip == nil {
			return nil, errors.InvalidArgument("local_address", localAddress+" is not an IP address")
		}
		ctx = context.WithValue(ctx, localAddrKey, ip)
	}
	return ctx, nil
}

// guard runs fn behind the rate limiter and circuit breaker.
func (t *Transport) guard(ctx context.Context, fn func() error) error {
	if t.rl != nil {
		if err := t.rl.Wait(ctx); err != nil {
			return errors.Translate(err)
		}
	}
	if t.cb == nil {
		return fn()
	}
	err := t.cb.Execute(fn)
	if stderrors.Is(err, resilience.ErrCircuitOpen) {
		return errors.Connection(err).WithDetail("circuit", t.cb.State().String())
	}
	return err
}
