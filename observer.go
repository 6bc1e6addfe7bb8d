package xexchange

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// EventType enumerates publish lifecycle events for the Observer pattern.
type EventType string

const (
	EventEncodeFailed  EventType = "encode_failed"
	EventPublishSent   EventType = "publish_sent"
	EventPublishDone   EventType = "publish_done"
	EventPublishFailed EventType = "publish_failed"
)

// Mode tells which publish path produced an event.
type Mode string

const (
	ModeSync  Mode = "sync"
	ModeAsync Mode = "async"
)

// Event carries telemetry for observers.
type Event struct {
	Type       EventType
	Mode       Mode
	SenderID   string
	Channel    string
	Origin     string
	RoutingKey string
	// Receivers is the broker's receiver count; only set on EventPublishDone.
	Receivers int64
	// Delivered is the sync verdict (exactly one receiver) or, for async, the acknowledgement.
	Delivered bool
	Duration  time.Duration
	Err       error
}

// Observer receives publish lifecycle events. Async events arrive on the
// transport's writer goroutine, so implementations must not block.
type Observer interface {
	OnEvent(e Event)
}

// ObserverFunc is an Adapter that lets a plain function satisfy Observer.
type ObserverFunc func(e Event)

func (f ObserverFunc) OnEvent(e Event) { f(e) }

// LoggingObserver emits every lifecycle event at debug level, failures at warn.
type LoggingObserver struct {
	Logger zerolog.Logger
}

func (o LoggingObserver) OnEvent(e Event) {
	var ev *zerolog.Event
	switch e.Type {
	case EventEncodeFailed, EventPublishFailed:
		ev = o.Logger.Warn().Err(e.Err)
	default:
		ev = o.Logger.Debug()
	}
	ev = ev.Str("type", string(e.Type)).
		Str("mode", string(e.Mode)).
		Str("channel", e.Channel).
		Str("sender_id", e.SenderID).
		Str("origin", e.Origin).
		Str("routing_key", e.RoutingKey)
	if e.Type == EventPublishDone {
		ev = ev.Int64("receivers", e.Receivers).Bool("delivered", e.Delivered)
	}
	if e.Duration > 0 {
		ev = ev.Dur("duration", e.Duration)
	}
	ev.Msg("xexchange event")
}

// Metrics is a snapshot of publish counters.
type Metrics struct {
	// Published counts payloads handed to a transport.
	Published uint64
	// Delivered counts sync publishes received by exactly one subscriber and acknowledged async publishes.
	Delivered uint64
	// Undelivered counts sync publishes with a receiver count other than one.
	Undelivered  uint64
	Failed       uint64
	EncodeErrors uint64
}

// Add returns the field-wise sum of m and o.
func (m Metrics) Add(o Metrics) Metrics {
	return Metrics{
		Published:    m.Published + o.Published,
		Delivered:    m.Delivered + o.Delivered,
		Undelivered:  m.Undelivered + o.Undelivered,
		Failed:       m.Failed + o.Failed,
		EncodeErrors: m.EncodeErrors + o.EncodeErrors,
	}
}

// publishMetrics uses lock-free atomics; continuations update it from writer goroutines.
type publishMetrics struct {
	published    atomic.Uint64
	delivered    atomic.Uint64
	undelivered  atomic.Uint64
	failed       atomic.Uint64
	encodeErrors atomic.Uint64
}

func (m *publishMetrics) snapshot() Metrics {
	return Metrics{
		Published:    m.published.Load(),
		Delivered:    m.delivered.Load(),
		Undelivered:  m.undelivered.Load(),
		Failed:       m.failed.Load(),
		EncodeErrors: m.encodeErrors.Load(),
	}
}
