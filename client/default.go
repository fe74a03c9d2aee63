package client

import (
	"context"
	"net/http"

	"github.com/kbukum/nitai/bridge"
	"github.com/kbukum/nitai/component"
	"github.com/kbukum/nitai/response"
	"github.com/kbukum/nitai/ws"
)

var defaultClient = component.NewLazy("client:default", func(context.Context) (*Client, error) {
	return New(Config{})
}).WithCloser(func(c *Client) error {
	return c.Close(context.Background())
})

// Default returns the process-wide Client built from a zero Config.
func Default(ctx context.Context) (*Client, error) {
	return defaultClient.Get(ctx)
}

// ResetDefault closes the default Client; the next call builds a new one.
func ResetDefault() error {
	return defaultClient.Reset()
}

// Request sends a request with the default Client.
func Request(ctx context.Context, method, url string, opts ...RequestOption) *bridge.Task[*response.Response] {
	c, err := Default(ctx)
	if err != nil {
		return bridge.Rejected[*response.Response](nil, err)
	}
	return c.Request(ctx, method, url, opts...)
}

// Get sends a GET request with the default Client.
func Get(ctx context.Context, url string, opts ...RequestOption) *bridge.Task[*response.Response] {
	return Request(ctx, http.MethodGet, url, opts...)
}

// Post sends a POST request with the default Client.
func Post(ctx context.Context, url string, opts ...RequestOption) *bridge.Task[*response.Response] {
	return Request(ctx, http.MethodPost, url, opts...)
}

// Put sends a PUT request with the default Client.
func Put(ctx context.Context, url string, opts ...RequestOption) *bridge.Task[*response.Response] {
	return Request(ctx, http.MethodPut, url, opts...)
}

// Patch sends a PATCH request with the default Client.
func Patch(ctx context.Context, url string, opts ...RequestOption) *bridge.Task[*response.Response] {
	return Request(ctx, http.MethodPatch, url, opts...)
}

// Delete sends a DELETE request with the default Client.
func Delete(ctx context.Context, url string, opts ...RequestOption) *bridge.Task[*response.Response] {
	return Request(ctx, http.MethodDelete, url, opts...)
}

// Head sends a HEAD request with the default Client.
func Head(ctx context.Context, url string, opts ...RequestOption) *bridge.Task[*response.Response] {
	return Request(ctx, http.MethodHead, url, opts...)
}

// Options sends an OPTIONS request with the default Client.
func Options(ctx context.Context, url string, opts ...RequestOption) *bridge.Task[*response.Response] {
	return Request(ctx, http.MethodOptions, url, opts...)
}

// Trace sends a TRACE request with the default Client.
func Trace(ctx context.Context, url string, opts ...RequestOption) *bridge.Task[*response.Response] {
	return Request(ctx, http.MethodTrace, url, opts...)
}

// WebSocket opens a session with the default Client.
func WebSocket(ctx context.Context, url string, opts ...RequestOption) *bridge.Task[*ws.Session] {
	c, err := Default(ctx)
	if err != nil {
		return bridge.Rejected[*ws.Session](nil, err)
	}
	return c.WebSocket(ctx, url, opts...)
}
