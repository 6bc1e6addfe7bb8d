// Package breaker guards synchronous xexchange transports with a circuit
// breaker. While the circuit is open, publishes fail fast with
// gobreaker.ErrOpenState instead of waiting on an unreachable broker.
//
// Only transport errors count as failures. A publish that reached the broker
// but not exactly one subscriber is a success for the breaker.
//
//	ex, err := redispubsub.New(cfg, func(b *xexchange.ExchangeBuilder) {
//		b.WithTransportMiddleware(breaker.Middleware(breaker.Defaults()))
//	})
package breaker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/trickstertwo/xexchange"
)

// Config tunes the breaker.
type Config struct {
	// Name labels the breaker in logs.
	Name string
	// ConsecutiveFailures trips the circuit.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the circuit stays open before a probe is let through.
	OpenTimeout time.Duration
	// HalfOpenRequests is the number of probes allowed while half-open.
	HalfOpenRequests uint32
	Logger           zerolog.Logger
}

func Defaults() Config {
	return Config{
		Name:                "xexchange",
		ConsecutiveFailures: 5,
		OpenTimeout:         10 * time.Second,
		HalfOpenRequests:    1,
		Logger:              zerolog.Nop(),
	}
}

// Middleware wraps each transport in its own circuit breaker.
func Middleware(cfg Config) xexchange.TransportMiddleware {
	return func(next xexchange.Transport) xexchange.Transport {
		return Wrap(next, cfg)
	}
}

var _ xexchange.Transport = (*Transport)(nil)

// Transport is a Transport guarded by a circuit breaker.
type Transport struct {
	next xexchange.Transport
	cb   *gobreaker.CircuitBreaker
}

func Wrap(next xexchange.Transport, cfg Config) *Transport {
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = Defaults().ConsecutiveFailures
	}
	logger := cfg.Logger
	return &Transport{
		next: next,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        cfg.Name,
			MaxRequests: cfg.HalfOpenRequests,
			Timeout:     cfg.OpenTimeout,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= cfg.ConsecutiveFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn().
					Str("breaker", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("xexchange: circuit breaker state changed")
			},
		}),
	}
}

func (t *Transport) Publish(ctx context.Context, channel string, payload []byte) (bool, error) {
	res, err := t.cb.Execute(func() (interface{}, error) {
		return t.next.Publish(ctx, channel, payload)
	})
	if err != nil {
		return false, err
	}
	return res.(bool), nil
}

// State reports the breaker state.
func (t *Transport) State() gobreaker.State { return t.cb.State() }

func (t *Transport) Close(ctx context.Context) error { return t.next.Close(ctx) }
