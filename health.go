package xexchange

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// HealthState is the coarse health verdict for probes.
type HealthState string

const (
	Healthy   HealthState = "healthy"
	Degraded  HealthState = "degraded"
	Unhealthy HealthState = "unhealthy"
)

// degradedFailureRate is the share of failed publishes above which the exchange reports Degraded.
const degradedFailureRate = 0.05

// Pinger is implemented by transports that can check broker reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthStatus indicates exchange health for liveness/readiness probes.
type HealthStatus struct {
	State     HealthState
	Metrics   Metrics
	Timestamp time.Time
	Message   string
}

// HealthChecker provides health status for production monitoring.
type HealthChecker interface {
	Health(ctx context.Context) HealthStatus
}

var _ HealthChecker = (*Exchange)(nil)

// Health pings every transport that supports it, concurrently. A closed exchange or an
// unreachable broker is Unhealthy; a failure rate above 5% is Degraded.
func (e *Exchange) Health(ctx context.Context) HealthStatus {
	now := e.clock.Now()
	if e.closed.Load() {
		return HealthStatus{State: Unhealthy, Timestamp: now, Message: "exchange is closed"}
	}

	m := e.Metrics()
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range e.pingers {
		g.Go(func() error {
			if err := t.pinger.Ping(gctx); err != nil {
				return fmt.Errorf("connection %q: %w", t.name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return HealthStatus{State: Unhealthy, Metrics: m, Timestamp: now, Message: err.Error()}
	}

	state := Healthy
	if m.Published > 0 && float64(m.Failed)/float64(m.Published) > degradedFailureRate {
		state = Degraded
	}
	return HealthStatus{State: state, Metrics: m, Timestamp: now}
}
