package transport

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kbukum/nitai/errors"
	"github.com/kbukum/nitai/observability"
)

// Resolver looks up both IPv4 and IPv6 addresses of a host.
type Resolver struct {
	r *net.Resolver
}

// NewResolver wraps r. A nil r uses net.DefaultResolver.
func NewResolver(r *net.Resolver) *Resolver {
	if r == nil {
		r = net.DefaultResolver
	}
	return &Resolver{r: r}
}

var (
	defaultResolver     *Resolver
	defaultResolverOnce sync.Once
)

// DefaultResolver returns the resolver shared by transports that configure none.
func DefaultResolver() *Resolver {
	defaultResolverOnce.Do(func() { defaultResolver = NewResolver(nil) })
	return defaultResolver
}

// Resolve returns the addresses of host. IP literals are returned as is.
func (r *Resolver) Resolve(ctx context.Context, host string) ([]netip.Addr, error) {
	if ip, err := netip.ParseAddr(host); err == nil {
		return []netip.Addr{ip.Unmap()}, nil
	}

	ctx, span := observability.StartSpan(ctx, observability.SpanResolve,
		attribute.String(observability.AttrHost, host))
	addrs, err := r.r.LookupNetIP(ctx, "ip", host)
	if err == nil && len(addrs) == 0 {
		err = errors.Resolver(host, fmt.Errorf("no addresses for %s", host))
	}
	observability.EndSpan(span, err)
	if err != nil {
		return nil, errors.Translate(err)
	}

	for i := range addrs {
		addrs[i] = addrs[i].Unmap()
	}
	return addrs, nil
}
