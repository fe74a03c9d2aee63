package transport

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kbukum/nitai/emulation"
	"github.com/kbukum/nitai/errors"
	"github.com/kbukum/nitai/validation"
)

// BasicAuth holds HTTP Basic credentials.
type BasicAuth struct {
	Username string
	Password string
}

// Auth selects the Authorization header of a request. Raw is sent as is;
// otherwise Bearer wins over Basic.
type Auth struct {
	Raw    string
	Bearer string
	Basic  *BasicAuth
}

func (a *Auth) apply(h http.Header) {
	if a == nil {
		return
	}
	switch {
	case a.Raw != "":
		h.Set("Authorization", a.Raw)
	case a.Bearer != "":
		h.Set("Authorization", "Bearer "+a.Bearer)
	case a.Basic != nil:
		creds := a.Basic.Username + ":" + a.Basic.Password
		h.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(creds)))
	}
}

// Params describes one request. Pointer fields left nil fall back to the
// Transport configuration.
type Params struct {
	Method string
	URL    string

	Header http.Header
	// DefaultHeaders set to false skips the configured user agent, default
	// headers and emulation headers.
	DefaultHeaders *bool
	Cookies        []*http.Cookie
	Emulation      *emulation.Profile
	Auth           *Auth
	Query          url.Values

	// At most one of JSON, Form and Body may be set. Body accepts
	// io.Reader, []byte or string.
	JSON any
	Form url.Values
	Body any

	Timeout     time.Duration
	ReadTimeout time.Duration
	// Version forces HTTP/1.0, HTTP/1.1 or HTTP/2.
	Version string

	AllowRedirects *bool
	MaxRedirects   *int
	Compression    *bool

	Proxy        *Proxy
	LocalAddress string
}

// validate checks method, URL and headers before anything is sent.
func (t *Transport) validate(p *Params, schemes ...string) error {
	v := validation.New().
		Method("method", p.Method).
		URL("url", p.URL, schemes...)
	for name, values := range p.Header {
		v.HeaderName("headers", name)
		for _, value := range values {
			v.HeaderValue("headers", name, value)
		}
	}
	if err := v.Validate(); err != nil {
		return err
	}
	if t.config.HTTPSOnly && !strings.HasPrefix(strings.ToLower(p.URL), "https://") && !strings.HasPrefix(strings.ToLower(p.URL), "wss://") {
		return errors.InvalidArgument("url", "only https URLs are allowed")
	}
	return nil
}

// buildRequest constructs the *http.Request for p.
func (t *Transport) buildRequest(p *Params) (*http.Request, error) {
	body, contentType, err := encodeBody(p)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(strings.ToUpper(p.Method), p.URL, body)
	if err != nil {
		return nil, errors.InvalidArgument("url", err.Error())
	}

	if len(p.Query) > 0 {
		q := req.URL.Query()
		for k, vs := range p.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		req.URL.RawQuery = q.Encode()
	}

	t.applyHeaders(req.Header, p.Header, p.DefaultHeaders, p.Emulation)
	if contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}
	p.Auth.apply(req.Header)
	for _, c := range p.Cookies {
		req.AddCookie(c)
	}
	if p.Compression != nil && !*p.Compression && req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "identity")
	}
	return req, nil
}

// applyHeaders layers request headers over configured defaults, then
// emulation headers where neither set a value.
func (t *Transport) applyHeaders(dst, explicit http.Header, defaults *bool, profile *emulation.Profile) {
	for k, vs := range explicit {
		dst[http.CanonicalHeaderKey(k)] = append([]string(nil), vs...)
	}
	if defaults != nil && !*defaults {
		return
	}
	for k, vs := range t.config.Headers {
		key := http.CanonicalHeaderKey(k)
		if _, ok := dst[key]; !ok {
			dst[key] = append([]string(nil), vs...)
		}
	}
	if t.config.UserAgent != "" && dst.Get("User-Agent") == "" {
		dst.Set("User-Agent", t.config.UserAgent)
	}
	if profile == nil {
		profile = t.config.Emulation
	}
	profile.Apply(dst)
}

// CloseRequestBody closes body when it is an io.Closer. Request bodies
// that never reach the wire are released this way.
func CloseRequestBody(body any) {
	if c, ok := body.(io.Closer); ok {
		_ = c.Close()
	}
}

// encodeBody converts the body fields of p into a reader and content type.
func encodeBody(p *Params) (io.Reader, string, error) {
	set := 0
	for _, present := range []bool{p.JSON != nil, p.Form != nil, p.Body != nil} {
		if present {
			set++
		}
	}
	if set > 1 {
		return nil, "", errors.InvalidArgument("body", "only one of json, form and body may be set")
	}

	switch {
	case p.JSON != nil:
		data, err := json.Marshal(p.JSON)
		if err != nil {
			return nil, "", errors.InvalidArgument("json", err.Error())
		}
		return bytes.NewReader(data), "application/json", nil
	case p.Form != nil:
		return strings.NewReader(p.Form.Encode()), "application/x-www-form-urlencoded", nil
	}

	switch v := p.Body.(type) {
	case nil:
		return nil, "", nil
	case []byte:
		return bytes.NewReader(v), "", nil
	case string:
		return strings.NewReader(v), "text/plain; charset=utf-8", nil
	case io.Reader:
		return v, "", nil
	default:
		return nil, "", errors.InvalidArgument("body", fmt.Sprintf("unsupported body type %T", p.Body))
	}
}
