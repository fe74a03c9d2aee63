package transport

import (
	"fmt"
	"net/netip"
	"net/url"
	"time"

	"github.com/kbukum/nitai/emulation"
	"github.com/kbukum/nitai/errors"
	"github.com/kbukum/nitai/resilience"
	"github.com/kbukum/nitai/security"
)

const (
	defaultConnectTimeout  = 10 * time.Second
	defaultKeepAlive       = 30 * time.Second
	defaultPoolIdleTimeout = 90 * time.Second
	defaultMaxIdlePerHost  = 16
	defaultMaxRedirects    = 10
)

// Protocol versions reported by State.Version and accepted by Params.Version.
const (
	HTTP10 = "HTTP/1.0"
	HTTP11 = "HTTP/1.1"
	HTTP2  = "HTTP/2"
	HTTP3  = "HTTP/3"
)

// Proxy routes requests through an HTTP, HTTPS or SOCKS5 proxy.
type Proxy struct {
	URL      string `yaml:"url" mapstructure:"url"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	// Scheme limits the proxy to "http" or "https" targets. Empty matches all.
	Scheme string `yaml:"scheme" mapstructure:"scheme"`
}

func (p *Proxy) parse() (*url.URL, error) {
	u, err := url.Parse(p.URL)
	if err != nil || u.Host == "" {
		return nil, errors.InvalidArgument("proxy.url", fmt.Sprintf("%q is not a valid proxy URL", p.URL))
	}
	switch u.Scheme {
	case "http", "https", "socks5", "socks5h":
	default:
		return nil, errors.InvalidArgument("proxy.url", fmt.Sprintf("unsupported proxy scheme %q", u.Scheme))
	}
	if p.Username != "" {
		u.User = url.UserPassword(p.Username, p.Password)
	}
	return u, nil
}

// Config configures a Transport.
type Config struct {
	// Timeout bounds a whole request, body included. Zero disables it.
	Timeout time.Duration
	// ConnectTimeout bounds TCP connection setup.
	ConnectTimeout time.Duration
	// ReadTimeout bounds each read of a response body.
	ReadTimeout time.Duration
	// TCPKeepAlive is the keep-alive period of new connections.
	TCPKeepAlive time.Duration

	// PoolIdleTimeout closes idle connections after this long.
	PoolIdleTimeout time.Duration
	// MaxIdlePerHost caps idle connections kept per host.
	MaxIdlePerHost int

	HTTP1Only bool
	HTTP2Only bool
	// HTTPSOnly rejects plain http URLs.
	HTTPSOnly bool

	TLS *security.TLSConfig

	// Proxies are tried in order; the first whose Scheme matches is used.
	// With none configured the environment proxy settings apply.
	Proxies []Proxy
	// NoProxy disables every proxy, including the environment ones.
	NoProxy bool
	// LocalAddress binds outgoing connections to this IP.
	LocalAddress string

	// DisableCompression stops the transport from requesting gzip.
	DisableCompression bool
	// DisableRedirects returns redirect responses as they are.
	DisableRedirects bool
	// MaxRedirects defaults to 10.
	MaxRedirects int
	// CookieStore keeps cookies between requests.
	CookieStore bool

	// UserAgent and Headers are sent with every request that does not set
	// them, unless the request opts out of default headers.
	UserAgent string
	Headers   map[string][]string
	Emulation *emulation.Profile

	Resolver *Resolver

	Retry          *resilience.RetryConfig
	CircuitBreaker *resilience.CircuitBreakerConfig
	RateLimiter    *resilience.RateLimiterConfig
}

// ApplyDefaults fills in zero-value fields.
func (c *Config) ApplyDefaults() {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.TCPKeepAlive <= 0 {
		c.TCPKeepAlive = defaultKeepAlive
	}
	if c.PoolIdleTimeout <= 0 {
		c.PoolIdleTimeout = defaultPoolIdleTimeout
	}
	if c.MaxIdlePerHost <= 0 {
		c.MaxIdlePerHost = defaultMaxIdlePerHost
	}
	if c.MaxRedirects <= 0 {
		c.MaxRedirects = defaultMaxRedirects
	}
	if c.Resolver == nil {
		c.Resolver = DefaultResolver()
	}
}

// Validate checks that the configuration is consistent.
func (c *Config) Validate() error {
	if c.HTTP1Only && c.HTTP2Only {
		return errors.InvalidArgument("http1_only", "cannot be combined with http2_only")
	}
	if err := c.TLS.Validate(); err != nil {
		return errors.InvalidArgument("tls", err.Error())
	}
	for i := range c.Proxies {
		if _, err := c.Proxies[i].parse(); err != nil {
			return err
		}
	}
	if c.LocalAddress != "" {
		if _, err := netip.ParseAddr(c.LocalAddress); err != nil {
			return errors.InvalidArgument("local_address", fmt.Sprintf("%q is not an IP address", c.LocalAddress))
		}
	}
	return nil
}
