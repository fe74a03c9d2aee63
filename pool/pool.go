package pool

import (
	"context"
	stderrors "errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kbukum/nitai/component"
	"github.com/kbukum/nitai/errors"
	"github.com/kbukum/nitai/logger"
	"github.com/kbukum/nitai/observability"
	"github.com/kbukum/nitai/resilience"
)

const (
	// DefaultKey is the pool key used when none is configured.
	DefaultKey = "default"
	// DefaultSize is the number of slots of a pool created without a size.
	DefaultSize = 128
)

// Config configures a Pool.
type Config struct {
	// Key identifies the pool. Clients with the same key share it.
	Key string `yaml:"key" mapstructure:"key"`
	// Size is the maximum number of leases held at once.
	Size int `yaml:"size" mapstructure:"size" validate:"gte=0"`
	// AcquireTimeout bounds how long Acquire waits for a free slot. 0 waits
	// until the context is done.
	AcquireTimeout time.Duration `yaml:"acquire_timeout" mapstructure:"acquire_timeout"`
}

// ApplyDefaults fills in zero-value fields.
func (c *Config) ApplyDefaults() {
	if c.Key == "" {
		c.Key = DefaultKey
	}
	if c.Size <= 0 {
		c.Size = DefaultSize
	}
}

// IdleCloser is implemented by transports whose idle connections belong to
// a pool.
type IdleCloser interface {
	CloseIdleConnections()
}

// Pool hands out connection slots.
type Pool struct {
	config Config
	slots  *resilience.Bulkhead

	mu       sync.Mutex
	idle     []IdleCloser
	shutdown atomic.Bool

	log *logger.Logger
}

var _ component.Component = (*Pool)(nil)

// New creates a standalone pool. Most callers want Registry.Retain.
func New(cfg Config) *Pool {
	cfg.ApplyDefaults()
	return &Pool{
		config: cfg,
		slots: resilience.NewBulkhead(resilience.BulkheadConfig{
			Name:          cfg.Key,
			MaxConcurrent: cfg.Size,
			MaxWait:       cfg.AcquireTimeout,
		}),
		log: logger.Get("pool").WithFields(logger.Fields(logger.FieldPoolKey, cfg.Key)),
	}
}

// Key returns the pool key.
func (p *Pool) Key() string { return p.config.Key }

// Size returns the total number of slots.
func (p *Pool) Size() int { return p.slots.MaxConcurrent() }

// Available returns the number of free slots.
func (p *Pool) Available() int { return p.slots.Available() }

// InUse returns the number of outstanding leases.
func (p *Pool) InUse() int { return p.slots.InUse() }

// IsShutdown reports whether Shutdown has run.
func (p *Pool) IsShutdown() bool { return p.shutdown.Load() }

// Attach registers a transport whose idle connections are closed on Shutdown.
func (p *Pool) Attach(c IdleCloser) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.idle = append(p.idle, c)
}

// Detach removes a transport registered with Attach. c must be comparable.
func (p *Pool) Detach(c IdleCloser) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.idle = slices.DeleteFunc(p.idle, func(x IdleCloser) bool { return x == c })
}

// Attached returns the number of transports registered with Attach.
func (p *Pool) Attached() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// Acquire waits for a free slot and returns a Lease on it.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	if p.shutdown.Load() {
		return nil, errors.AlreadyClosed("pool " + p.config.Key)
	}
	if err := p.slots.Acquire(ctx); err != nil {
		if stderrors.Is(err, resilience.ErrBulkheadTimeout) {
			return nil, errors.Timeout("pool acquire").WithDetail(logger.FieldPoolKey, p.config.Key)
		}
		return nil, errors.Translate(err)
	}
	observability.Default().LeaseChanged(ctx, p.config.Key, 1)
	return &Lease{pool: p, id: uuid.NewString()}, nil
}

// Shutdown marks the pool closed and closes idle connections of attached
// transports. Outstanding leases can still be released.
func (p *Pool) Shutdown(_ context.Context) error {
	if !p.shutdown.CompareAndSwap(false, true) {
		return nil
	}
	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	for _, c := range idle {
		c.CloseIdleConnections()
	}
	p.log.Debug("pool shut down", logger.Fields("in_use", p.InUse()))
	return nil
}

func (p *Pool) release(l *Lease) error {
	if err := p.slots.Release(); err != nil {
		return errors.Internal(err).WithDetail(logger.FieldPoolKey, p.config.Key)
	}
	observability.Default().LeaseChanged(context.Background(), p.config.Key, -1)
	if p.shutdown.Load() {
		p.log.Debug("lease returned after shutdown", logger.Fields(logger.FieldResourceID, l.id))
	}
	return nil
}

// --- component.Component ---

// Name returns the component name.
func (p *Pool) Name() string { return "pool:" + p.config.Key }

// Start is a no-op; pools are usable as soon as they are created.
func (p *Pool) Start(_ context.Context) error { return nil }

// Stop shuts the pool down.
func (p *Pool) Stop(ctx context.Context) error { return p.Shutdown(ctx) }

// Health reports unhealthy after shutdown and degraded when every slot is taken.
func (p *Pool) Health(_ context.Context) component.Health {
	h := component.Health{Name: p.Name(), Status: component.StatusHealthy}
	switch {
	case p.shutdown.Load():
		h.Status = component.StatusUnhealthy
		h.Message = "shut down"
	case p.Available() == 0:
		h.Status = component.StatusDegraded
		h.Message = fmt.Sprintf("all %d slots in use", p.Size())
	}
	return h
}

// Lease is one held slot. Release returns it exactly once.
type Lease struct {
	pool     *Pool
	id       string
	released atomic.Bool
}

// ID returns the lease identifier.
func (l *Lease) ID() string { return l.id }

// Pool returns the pool the lease came from.
func (l *Lease) Pool() *Pool { return l.pool }

// Released reports whether Release has run.
func (l *Lease) Released() bool { return l.released.Load() }

// Release returns the slot. Every call after the first reports
// ALREADY_CLOSED and leaves the pool untouched.
func (l *Lease) Release() error {
	if l == nil {
		return nil
	}
	if !l.released.CompareAndSwap(false, true) {
		return errors.AlreadyClosed("lease " + l.id)
	}
	return l.pool.release(l)
}
