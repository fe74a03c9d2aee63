package component

import (
	"context"
	"strings"
)

// HealthStatus is ordered: healthy < degraded < unhealthy.
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusDegraded  HealthStatus = "degraded"
	StatusUnhealthy HealthStatus = "unhealthy"
)

func (s HealthStatus) rank() int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

// Health is a point-in-time report from one component.
type Health struct {
	Name    string       `json:"name"`
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
}

// Component is implemented by the loop, the pools and the client so an
// embedding application can drive them from its own lifecycle manager.
type Component interface {
	Name() string
	Start(ctx context.Context) error
	// Stop releases what the component holds. It is safe to call twice.
	Stop(ctx context.Context) error
	Health(ctx context.Context) Health
}

// Combine reports the worst status among parts under name. The message
// lists the parts that are not healthy.
func Combine(name string, parts ...Health) Health {
	h := Health{Name: name, Status: StatusHealthy}
	var msgs []string
	for _, p := range parts {
		if p.Status.rank() > h.Status.rank() {
			h.Status = p.Status
		}
		if p.Status != StatusHealthy {
			msg := p.Name + ": " + string(p.Status)
			if p.Message != "" {
				msg = p.Name + ": " + p.Message
			}
			msgs = append(msgs, msg)
		}
	}
	h.Message = strings.Join(msgs, "; ")
	return h
}
