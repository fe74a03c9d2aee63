package client

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/kbukum/nitai/bridge"
	"github.com/kbukum/nitai/component"
	"github.com/kbukum/nitai/errors"
	"github.com/kbukum/nitai/logger"
	"github.com/kbukum/nitai/loop"
	"github.com/kbukum/nitai/pool"
	"github.com/kbukum/nitai/response"
	"github.com/kbukum/nitai/transport"
	"github.com/kbukum/nitai/ws"
)

// Client issues HTTP requests and opens WebSocket sessions. Every open
// Response and Session holds a lease on the Client's pool until it is
// closed, fully read, or collected.
type Client struct {
	id       string
	config   Config
	loop     *loop.Loop
	registry *pool.Registry
	resolver *transport.Resolver
	tr       *transport.Transport
	pool     *pool.Pool
	closed   atomic.Bool
	log      *logger.Logger
}

var _ component.Component = (*Client)(nil)

// New creates a Client. Clients built with the same PoolKey share a pool.
func New(cfg Config, opts ...Option) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	profile, err := cfg.profile()
	if err != nil {
		return nil, err
	}

	c := &Client{id: uuid.NewString(), config: cfg}
	for _, opt := range opts {
		opt(c)
	}
	if c.loop == nil {
		c.loop = loop.Default()
	}
	if c.registry == nil {
		c.registry = pool.Shared()
	}
	if c.resolver == nil {
		c.resolver = transport.DefaultResolver()
	}

	c.tr, err = transport.New(cfg.transportConfig(profile, c.resolver))
	if err != nil {
		return nil, err
	}
	c.pool = c.registry.Retain(pool.Config{
		Key:            cfg.PoolKey,
		Size:           cfg.PoolSize,
		AcquireTimeout: cfg.AcquireTimeout,
	})
	c.pool.Attach(c.tr)
	c.log = logger.Get("client").WithFields(logger.Fields(
		"client_id", c.id, logger.FieldPoolKey, cfg.PoolKey,
	))
	c.log.Debug("client created")
	return c, nil
}

// Config returns the configuration the Client was built with.
func (c *Client) Config() Config { return c.config }

// Pool returns the pool the Client leases from.
func (c *Client) Pool() *pool.Pool { return c.pool }

// Transport returns the underlying transport.
func (c *Client) Transport() *transport.Transport { return c.tr }

// Loop returns the loop the Client's Tasks settle on.
func (c *Client) Loop() *loop.Loop { return c.loop }

// Closed reports whether Close has been called.
func (c *Client) Closed() bool { return c.closed.Load() }

// Request sends a request and resolves with the Response once headers
// arrive. If the Task is cancelled after that, the Response is discarded.
func (c *Client) Request(ctx context.Context, method, url string, opts ...RequestOption) *bridge.Task[*response.Response] {
	rc := newRequest(opts)
	if c.closed.Load() {
		transport.CloseRequestBody(rc.body)
		return bridge.Rejected[*response.Response](c.loop, errors.AlreadyClosed("client"))
	}
	if rc.err != nil {
		transport.CloseRequestBody(rc.body)
		return bridge.Rejected[*response.Response](c.loop, rc.err)
	}
	p := rc.params(method, url)

	return bridge.Schedule(c.loop, ctx, func(ctx context.Context) (*response.Response, error) {
		lease, err := c.pool.Acquire(ctx)
		if err != nil {
			transport.CloseRequestBody(p.Body)
			return nil, err
		}
		state, err := c.tr.Issue(ctx, p)
		if err != nil {
			if rerr := lease.Release(); rerr != nil {
				c.log.Warn("lease release failed", logger.ErrorFields("request", rerr))
			}
			return nil, err
		}
		return response.New(c.loop, state, lease), nil
	}, (*response.Response).Discard)
}

// Get sends a GET request.
func (c *Client) Get(ctx context.Context, url string, opts ...RequestOption) *bridge.Task[*response.Response] {
	return c.Request(ctx, http.MethodGet, url, opts...)
}

// Post sends a POST request.
func (c *Client) Post(ctx context.Context, url string, opts ...RequestOption) *bridge.Task[*response.Response] {
	return c.Request(ctx, http.MethodPost, url, opts...)
}

// Put sends a PUT request.
func (c *Client) Put(ctx context.Context, url string, opts ...RequestOption) *bridge.Task[*response.Response] {
	return c.Request(ctx, http.MethodPut, url, opts...)
}

// Patch sends a PATCH request.
func (c *Client) Patch(ctx context.Context, url string, opts ...RequestOption) *bridge.Task[*response.Response] {
	return c.Request(ctx, http.MethodPatch, url, opts...)
}

// Delete sends a DELETE request.
func (c *Client) Delete(ctx context.Context, url string, opts ...RequestOption) *bridge.Task[*response.Response] {
	return c.Request(ctx, http.MethodDelete, url, opts...)
}

// Head sends a HEAD request.
func (c *Client) Head(ctx context.Context, url string, opts ...RequestOption) *bridge.Task[*response.Response] {
	return c.Request(ctx, http.MethodHead, url, opts...)
}

// Options sends an OPTIONS request.
func (c *Client) Options(ctx context.Context, url string, opts ...RequestOption) *bridge.Task[*response.Response] {
	return c.Request(ctx, http.MethodOptions, url, opts...)
}

// Trace sends a TRACE request.
func (c *Client) Trace(ctx context.Context, url string, opts ...RequestOption) *bridge.Task[*response.Response] {
	return c.Request(ctx, http.MethodTrace, url, opts...)
}

// WebSocket performs the opening handshake and resolves with the Session.
func (c *Client) WebSocket(ctx context.Context, url string, opts ...RequestOption) *bridge.Task[*ws.Session] {
	if c.closed.Load() {
		return bridge.Rejected[*ws.Session](c.loop, errors.AlreadyClosed("client"))
	}
	rc := newRequest(opts)
	if rc.err != nil {
		return bridge.Rejected[*ws.Session](c.loop, rc.err)
	}
	p := rc.webSocketParams(url)

	return bridge.Schedule(c.loop, ctx, func(ctx context.Context) (*ws.Session, error) {
		lease, err := c.pool.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		state, err := c.tr.DialWebSocket(ctx, p)
		if err != nil {
			if rerr := lease.Release(); rerr != nil {
				c.log.Warn("lease release failed", logger.ErrorFields("websocket", rerr))
			}
			return nil, err
		}
		return ws.New(c.loop, state, lease), nil
	}, (*ws.Session).Discard)
}

// Close stops new requests, closes idle connections and drops the Client's
// reference to its pool. Responses and Sessions already open stay usable.
func (c *Client) Close(ctx context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.tr.CloseIdleConnections()
	c.pool.Detach(c.tr)
	err := c.registry.Drop(ctx, c.config.PoolKey)
	c.log.Debug("client closed")
	return err
}

// --- component.Component ---

// Name returns the component name.
func (c *Client) Name() string { return "client" }

// Start is a no-op; a Client is ready once built.
func (c *Client) Start(_ context.Context) error { return nil }

// Stop closes the Client.
func (c *Client) Stop(ctx context.Context) error { return c.Close(ctx) }

// Health combines the loop and pool reports; a closed Client is unhealthy.
func (c *Client) Health(ctx context.Context) component.Health {
	if c.closed.Load() {
		return component.Health{Name: c.Name(), Status: component.StatusUnhealthy, Message: "closed"}
	}
	return component.Combine(c.Name(), c.loop.Health(ctx), c.pool.Health(ctx))
}
