package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"

	"github.com/kbukum/nitai/emulation"
	"github.com/kbukum/nitai/errors"
	"github.com/kbukum/nitai/logger"
	"github.com/kbukum/nitai/observability"
	"github.com/kbukum/nitai/resilience"
)

// Redirect is one hop followed before the final response.
type Redirect struct {
	Status   int
	URL      string
	Previous string
	Header   http.Header
}

// State is a response whose headers have arrived. Body stays open until
// CloseBody.
type State struct {
	Method        string
	URL           string
	Status        int
	Version       string
	Header        http.Header
	ContentLength int64
	LocalAddr     string
	RemoteAddr    string
	History       []Redirect
	Body          io.ReadCloser

	cancel    context.CancelFunc
	closeOnce sync.Once
	closeErr  error
}

// CloseBody closes the body and ends the request context. Only the first
// call has an effect.
func (s *State) CloseBody() error {
	s.closeOnce.Do(func() {
		if s.Body != nil {
			s.closeErr = s.Body.Close()
		}
		if s.cancel != nil {
			s.cancel()
		}
	})
	return s.closeErr
}

// FormatVersion renders the protocol of a response as HTTP/1.0, HTTP/1.1,
// HTTP/2 or HTTP/3.
func FormatVersion(major, minor int) string {
	switch {
	case major == 1 && minor == 0:
		return HTTP10
	case major == 1:
		return HTTP11
	case major == 2:
		return HTTP2
	case major == 3:
		return HTTP3
	}
	return fmt.Sprintf("HTTP/%d.%d", major, minor)
}

// Issue sends the request described by p and returns when headers arrive.
// ctx bounds only that wait; the body outlives it. A request body that is
// an io.Closer is closed when Issue fails.
func (t *Transport) Issue(ctx context.Context, p Params) (state *State, err error) {
	defer func() {
		if err != nil {
			CloseRequestBody(p.Body)
		}
	}()
	if err := t.validate(&p, "http", "https"); err != nil {
		return nil, err
	}
	rt, err := t.roundTripper(p.Version, t.preference(p.Emulation))
	if err != nil {
		return nil, err
	}
	req, err := t.buildRequest(&p)
	if err != nil {
		return nil, err
	}

	replayable := req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
	if t.config.Retry == nil || !replayable {
		return t.attempt(ctx, rt, req, &p, 1)
	}

	n := 0
	return resilience.Retry(ctx, *t.config.Retry, func() (*State, error) {
		n++
		r := req
		if n > 1 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, errors.Internal(err)
			}
			r = req.Clone(req.Context())
			r.Body = body
		}
		return t.attempt(ctx, rt, r, &p, n)
	})
}

// preference routes presets that do not negotiate HTTP/2 to HTTP/1.
func (t *Transport) preference(profile *emulation.Profile) preference {
	if profile == nil {
		profile = t.config.Emulation
	}
	if profile != nil && !profile.HTTP2 {
		return preferHTTP1
	}
	return preferAny
}

// attempt sends req once.
func (t *Transport) attempt(ctx context.Context, rt http.RoundTripper, req *http.Request, p *Params, n int) (*State, error) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, observability.SpanHTTPRequest,
		attribute.String(observability.AttrMethod, req.Method),
		attribute.String(observability.AttrURL, req.URL.Redacted()),
		attribute.Int(observability.AttrAttempt, n),
	)

	state, err := t.send(ctx, rt, req, p)
	status := 0
	if state != nil {
		status = state.Status
		span.SetAttributes(
			attribute.Int(observability.AttrStatus, status),
			attribute.String(observability.AttrProtocol, state.Version),
		)
	}
	observability.EndSpan(span, err)
	observability.Default().RequestDone(ctx, req.Method, status, time.Since(start))

	log := t.log.WithContext(ctx)
	if err != nil {
		log.Debug("request failed", logger.MergeWithError(logger.Fields(
			logger.FieldMethod, req.Method,
			logger.FieldURL, req.URL.Redacted(),
		), err))
		return nil, err
	}
	log.Debug("response headers received", logger.Fields(
		logger.FieldMethod, req.Method,
		logger.FieldURL, req.URL.Redacted(),
		logger.FieldStatus, status,
		logger.FieldDuration, time.Since(start).Milliseconds(),
	))
	return state, nil
}

func (t *Transport) send(ctx context.Context, rt http.RoundTripper, req *http.Request, p *Params) (*State, error) {
	reqCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if timeout := firstPositive(p.Timeout, t.config.Timeout); timeout > 0 {
		reqCtx, cancel = withTimeout(reqCtx, cancel, timeout)
	}
	reqCtx, err := withOverrides(reqCtx, p.Proxy, p.LocalAddress)
	if err != nil {
		cancel()
		return nil, err
	}

	var local, remote string
	reqCtx = httptrace.WithClientTrace(reqCtx, &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) {
			local = info.Conn.LocalAddr().String()
			remote = info.Conn.RemoteAddr().String()
		},
	})

	var history []Redirect
	client := &http.Client{
		Transport:     rt,
		Jar:           t.jar,
		CheckRedirect: t.redirectPolicy(p, &history),
	}

	req = req.WithContext(reqCtx)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	detach := context.AfterFunc(ctx, cancel)
	var resp *http.Response
	err = t.guard(ctx, func() error {
		var doErr error
		resp, doErr = client.Do(req)
		return doErr
	})
	if !detach() && ctx.Err() != nil {
		if resp != nil {
			_ = resp.Body.Close()
		}
		cancel()
		return nil, errors.Translate(ctx.Err())
	}
	if err != nil {
		cancel()
		return nil, errors.Translate(err)
	}

	body := resp.Body
	if rto := firstPositive(p.ReadTimeout, t.config.ReadTimeout); rto > 0 {
		body = &timeoutBody{rc: body, timeout: rto, cancel: cancel}
	}

	return &State{
		Method:        req.Method,
		URL:           resp.Request.URL.String(),
		Status:        resp.StatusCode,
		Version:       FormatVersion(resp.ProtoMajor, resp.ProtoMinor),
		Header:        resp.Header,
		ContentLength: resp.ContentLength,
		LocalAddr:     local,
		RemoteAddr:    remote,
		History:       history,
		Body:          body,
		cancel:        cancel,
	}, nil
}

// redirectPolicy follows redirects up to the effective limit and records
// each hop.
func (t *Transport) redirectPolicy(p *Params, history *[]Redirect) func(*http.Request, []*http.Request) error {
	allow := !t.config.DisableRedirects
	if p.AllowRedirects != nil {
		allow = *p.AllowRedirects
	}
	limit := t.config.MaxRedirects
	if p.MaxRedirects != nil {
		limit = *p.MaxRedirects
	}
	return func(req *http.Request, via []*http.Request) error {
		if !allow {
			return http.ErrUseLastResponse
		}
		if len(via) >= limit {
			return fmt.Errorf("stopped after %d redirects", limit)
		}
		hop := Redirect{URL: req.URL.String(), Previous: via[len(via)-1].URL.String()}
		if req.Response != nil {
			hop.Status = req.Response.StatusCode
			hop.Header = req.Response.Header
		}
		*history = append(*history, hop)
		return nil
	}
}

func withTimeout(ctx context.Context, parent context.CancelFunc, d time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, d)
	return ctx, func() {
		cancel()
		parent()
	}
}

func firstPositive(ds ...time.Duration) time.Duration {
	for _, d := range ds {
		if d > 0 {
			return d
		}
	}
	return 0
}

// timeoutBody ends the request when a single read takes longer than timeout.
type timeoutBody struct {
	rc      io.ReadCloser
	timeout time.Duration
	cancel  context.CancelFunc
	fired   atomic.Bool
}

func (b *timeoutBody) Read(p []byte) (int, error) {
	timer := time.AfterFunc(b.timeout, func() {
		b.fired.Store(true)
		b.cancel()
	})
	n, err := b.rc.Read(p)
	timer.Stop()
	if err != nil && err != io.EOF && b.fired.Load() {
		err = errors.Timeout("body read").WithCause(err)
	}
	return n, err
}

func (b *timeoutBody) Close() error { return b.rc.Close() }
