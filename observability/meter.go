package observability

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kbukum/nitai/logger"
	"github.com/kbukum/nitai/version"
)

// InstrumentationName names the meter and tracer used by nitai.
const InstrumentationName = "github.com/kbukum/nitai"

// Release paths recorded on resources.released.
const (
	ViaClose     = "close"
	ViaConsume   = "consume"
	ViaFinalizer = "finalizer"
	ViaCancel    = "cancel"
	ViaRemote    = "remote"
	ViaError     = "error"
)

// Task outcomes recorded on tasks.settled.
const (
	OutcomeResolved  = "resolved"
	OutcomeRejected  = "rejected"
	OutcomeCancelled = "cancelled"
	OutcomePanicked  = "panicked"
)

// MeterConfig configures the meter provider built by InitMeter.
type MeterConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
}

// DefaultMeterConfig returns sensible defaults for development.
func DefaultMeterConfig(serviceName string) MeterConfig {
	return MeterConfig{
		ServiceName:    serviceName,
		ServiceVersion: version.String(),
		Environment:    "development",
	}
}

// InitMeter installs a global meter provider reading through reader and
// rebinds the default instruments to it.
func InitMeter(cfg MeterConfig, reader sdkmetric.Reader) *sdkmetric.MeterProvider {
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(newResource(cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)),
	)
	otel.SetMeterProvider(mp)

	if m, err := NewMetrics(mp.Meter(InstrumentationName)); err == nil {
		SetDefault(m)
	} else {
		logger.Warn("metrics unavailable", logger.ErrorFields("init_meter", err))
	}
	return mp
}

// Metrics holds the instruments recorded by the bridge, resources, pools and transport.
type Metrics struct {
	tasksActive       metric.Int64UpDownCounter
	tasksSettled      metric.Int64Counter
	resourcesOpen     metric.Int64UpDownCounter
	resourcesReleased metric.Int64Counter
	leasesInUse       metric.Int64UpDownCounter
	requestTotal      metric.Int64Counter
	requestDuration   metric.Float64Histogram
}

// NewMetrics creates metric instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	var m Metrics
	var err error

	if m.tasksActive, err = meter.Int64UpDownCounter("nitai.tasks.active",
		metric.WithDescription("Tasks scheduled and not yet settled")); err != nil {
		return nil, fmt.Errorf("creating nitai.tasks.active: %w", err)
	}
	if m.tasksSettled, err = meter.Int64Counter("nitai.tasks.settled",
		metric.WithDescription("Tasks settled on the loop, by outcome")); err != nil {
		return nil, fmt.Errorf("creating nitai.tasks.settled: %w", err)
	}
	if m.resourcesOpen, err = meter.Int64UpDownCounter("nitai.resources.open",
		metric.WithDescription("Response bodies and WebSocket sessions not yet released")); err != nil {
		return nil, fmt.Errorf("creating nitai.resources.open: %w", err)
	}
	if m.resourcesReleased, err = meter.Int64Counter("nitai.resources.released",
		metric.WithDescription("Resource releases, by kind and release path")); err != nil {
		return nil, fmt.Errorf("creating nitai.resources.released: %w", err)
	}
	if m.leasesInUse, err = meter.Int64UpDownCounter("nitai.pool.leases",
		metric.WithDescription("Pool slots currently leased, by pool key")); err != nil {
		return nil, fmt.Errorf("creating nitai.pool.leases: %w", err)
	}
	if m.requestTotal, err = meter.Int64Counter("nitai.requests",
		metric.WithDescription("Requests issued, by method and status")); err != nil {
		return nil, fmt.Errorf("creating nitai.requests: %w", err)
	}
	if m.requestDuration, err = meter.Float64Histogram("nitai.request.duration",
		metric.WithDescription("Time to response headers"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("creating nitai.request.duration: %w", err)
	}
	return &m, nil
}

// TaskStarted records a newly scheduled task.
func (m *Metrics) TaskStarted(ctx context.Context) {
	m.tasksActive.Add(ctx, 1)
}

// TaskSettled records a task reaching its final state.
func (m *Metrics) TaskSettled(ctx context.Context, outcome string) {
	m.tasksActive.Add(ctx, -1)
	m.tasksSettled.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// ResourceOpened records a new response or session handle.
func (m *Metrics) ResourceOpened(ctx context.Context, kind string) {
	m.resourcesOpen.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// ResourceReleased records the single release of a handle.
func (m *Metrics) ResourceReleased(ctx context.Context, kind, via string) {
	m.resourcesOpen.Add(ctx, -1, metric.WithAttributes(attribute.String("kind", kind)))
	m.resourcesReleased.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("via", via),
	))
}

// LeaseChanged adds delta to the leased slot count of a pool.
func (m *Metrics) LeaseChanged(ctx context.Context, poolKey string, delta int64) {
	m.leasesInUse.Add(ctx, delta, metric.WithAttributes(attribute.String("pool_key", poolKey)))
}

// RequestDone records a request that produced headers or failed.
func (m *Metrics) RequestDone(ctx context.Context, method string, status int, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.Int("status", status),
	)
	m.requestTotal.Add(ctx, 1, attrs)
	m.requestDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("method", method)))
}

var (
	defaultMetrics atomic.Pointer[Metrics]
	defaultOnce    sync.Once
)

// Default returns the process-wide instruments, created on the global
// meter provider the first time they are needed.
func Default() *Metrics {
	defaultOnce.Do(func() {
		if defaultMetrics.Load() != nil {
			return
		}
		m, err := NewMetrics(otel.Meter(InstrumentationName, metric.WithInstrumentationVersion(version.String())))
		if err != nil {
			logger.Warn("metrics unavailable", logger.ErrorFields("new_metrics", err))
			m, _ = NewMetrics(nopMeter())
		}
		defaultMetrics.CompareAndSwap(nil, m)
	})
	return defaultMetrics.Load()
}

// SetDefault replaces the process-wide instruments.
func SetDefault(m *Metrics) {
	defaultOnce.Do(func() {})
	defaultMetrics.Store(m)
}
