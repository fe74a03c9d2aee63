package client

import (
	"time"

	"github.com/kbukum/nitai/config"
	"github.com/kbukum/nitai/emulation"
	"github.com/kbukum/nitai/errors"
	"github.com/kbukum/nitai/pool"
	"github.com/kbukum/nitai/resilience"
	"github.com/kbukum/nitai/security"
	"github.com/kbukum/nitai/transport"
	"github.com/kbukum/nitai/validation"
)

const (
	defaultTimeout        = 30 * time.Second
	defaultAcquireTimeout = 30 * time.Second
)

// Config configures a Client. It is fixed once the Client is built; request
// options override it per call without changing it.
type Config struct {
	// Emulation is a browser preset label such as "chrome_140". Empty sends
	// no emulation headers.
	Emulation   string `yaml:"emulation" mapstructure:"emulation"`
	EmulationOS string `yaml:"emulation_os" mapstructure:"emulation_os"`
	SkipHTTP2   bool   `yaml:"skip_http2" mapstructure:"skip_http2"`
	SkipHeaders bool   `yaml:"skip_headers" mapstructure:"skip_headers"`

	UserAgent string            `yaml:"user_agent" mapstructure:"user_agent"`
	Headers   map[string]string `yaml:"headers" mapstructure:"headers"`

	DisableRedirects bool `yaml:"disable_redirects" mapstructure:"disable_redirects"`
	MaxRedirects     int  `yaml:"max_redirects" mapstructure:"max_redirects" validate:"gte=0"`
	CookieStore      bool `yaml:"cookie_store" mapstructure:"cookie_store"`

	// Timeout bounds each request, body included. Defaults to 30s.
	Timeout         time.Duration `yaml:"timeout" mapstructure:"timeout" validate:"gte=0"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout" mapstructure:"connect_timeout" validate:"gte=0"`
	ReadTimeout     time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" validate:"gte=0"`
	TCPKeepAlive    time.Duration `yaml:"tcp_keepalive" mapstructure:"tcp_keepalive" validate:"gte=0"`
	PoolIdleTimeout time.Duration `yaml:"pool_idle_timeout" mapstructure:"pool_idle_timeout" validate:"gte=0"`
	MaxIdlePerHost  int           `yaml:"max_idle_per_host" mapstructure:"max_idle_per_host" validate:"gte=0"`

	// PoolKey names the connection pool. Clients with the same key share
	// one pool; the first to create it fixes its size.
	PoolKey string `yaml:"pool_key" mapstructure:"pool_key"`
	// PoolSize caps responses and sessions held open at once.
	PoolSize       int           `yaml:"pool_size" mapstructure:"pool_size" validate:"gte=0"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout" mapstructure:"acquire_timeout" validate:"gte=0"`

	HTTP1Only bool `yaml:"http1_only" mapstructure:"http1_only"`
	HTTP2Only bool `yaml:"http2_only" mapstructure:"http2_only"`
	HTTPSOnly bool `yaml:"https_only" mapstructure:"https_only"`

	TLS *security.TLSConfig `yaml:"tls" mapstructure:"tls"`

	Proxies      []transport.Proxy `yaml:"proxies" mapstructure:"proxies" validate:"dive"`
	NoProxy      bool              `yaml:"no_proxy" mapstructure:"no_proxy"`
	LocalAddress string            `yaml:"local_address" mapstructure:"local_address" validate:"omitempty,ip"`

	DisableCompression bool `yaml:"disable_compression" mapstructure:"disable_compression"`

	Retry          *resilience.RetryConfig          `yaml:"retry" mapstructure:"retry"`
	CircuitBreaker *resilience.CircuitBreakerConfig `yaml:"circuit_breaker" mapstructure:"circuit_breaker"`
	RateLimiter    *resilience.RateLimiterConfig    `yaml:"rate_limiter" mapstructure:"rate_limiter"`
}

// LoadConfig reads a Config from nitai.yml, .env and NITAI_* variables,
// then applies defaults and validates it.
func LoadConfig(opts ...config.LoaderOption) (Config, error) {
	var cfg Config
	if err := config.Load("nitai", &cfg, opts...); err != nil {
		return Config{}, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyDefaults fills in zero-value fields.
func (c *Config) ApplyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.PoolKey == "" {
		c.PoolKey = pool.DefaultKey
	}
	if c.PoolSize <= 0 {
		c.PoolSize = pool.DefaultSize
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = defaultAcquireTimeout
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if err := validation.Validate(c); err != nil {
		return err
	}
	if c.HTTP1Only && c.HTTP2Only {
		return errors.InvalidArgument("http1_only", "cannot be combined with http2_only")
	}
	if _, err := c.profile(); err != nil {
		return err
	}
	if err := c.TLS.Validate(); err != nil {
		return errors.InvalidArgument("tls", err.Error())
	}
	return nil
}

// profile builds the emulation profile, or nil when none is configured.
func (c *Config) profile() (*emulation.Profile, error) {
	if c.Emulation == "" {
		return nil, nil
	}
	return emulation.Build(emulation.Options{
		Preset:      c.Emulation,
		OS:          c.EmulationOS,
		SkipHTTP2:   c.SkipHTTP2,
		SkipHeaders: c.SkipHeaders,
	})
}

func (c *Config) transportConfig(profile *emulation.Profile, resolver *transport.Resolver) transport.Config {
	headers := make(map[string][]string, len(c.Headers))
	for k, v := range c.Headers {
		headers[k] = []string{v}
	}
	return transport.Config{
		Timeout:            c.Timeout,
		ConnectTimeout:     c.ConnectTimeout,
		ReadTimeout:        c.ReadTimeout,
		TCPKeepAlive:       c.TCPKeepAlive,
		PoolIdleTimeout:    c.PoolIdleTimeout,
		MaxIdlePerHost:     c.MaxIdlePerHost,
		HTTP1Only:          c.HTTP1Only,
		HTTP2Only:          c.HTTP2Only,
		HTTPSOnly:          c.HTTPSOnly,
		TLS:                c.TLS,
		Proxies:            c.Proxies,
		NoProxy:            c.NoProxy,
		LocalAddress:       c.LocalAddress,
		DisableCompression: c.DisableCompression,
		DisableRedirects:   c.DisableRedirects,
		MaxRedirects:       c.MaxRedirects,
		CookieStore:        c.CookieStore,
		UserAgent:          c.UserAgent,
		Headers:            headers,
		Emulation:          profile,
		Resolver:           resolver,
		Retry:              c.Retry,
		CircuitBreaker:     c.CircuitBreaker,
		RateLimiter:        c.RateLimiter,
	}
}
