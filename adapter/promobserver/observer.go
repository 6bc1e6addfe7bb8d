// Package promobserver exports xexchange publish outcomes as Prometheus metrics.
package promobserver

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/trickstertwo/xexchange"
)

var _ xexchange.Observer = (*Observer)(nil)

// Observer counts lifecycle events per mode, outcome, origin and routing key
// and records publish latency.
type Observer struct {
	events   *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewObserver registers the collectors on reg (prometheus.DefaultRegisterer when nil).
func NewObserver(reg prometheus.Registerer, namespace string) (*Observer, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	o := &Observer{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "xexchange",
			Name:      "publish_events_total",
			Help:      "Publish lifecycle events by mode, type, origin and routing key.",
		}, []string{"mode", "type", "origin", "routing_key"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "xexchange",
			Name:      "publish_duration_seconds",
			Help:      "Time from handing the payload to the transport until the broker answered.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"mode", "delivered"}),
	}
	if err := reg.Register(o.events); err != nil {
		return nil, err
	}
	if err := reg.Register(o.duration); err != nil {
		reg.Unregister(o.events)
		return nil, err
	}
	return o, nil
}

func (o *Observer) OnEvent(e xexchange.Event) {
	o.events.WithLabelValues(string(e.Mode), string(e.Type), e.Origin, e.RoutingKey).Inc()
	switch e.Type {
	case xexchange.EventPublishDone:
		o.duration.WithLabelValues(string(e.Mode), boolLabel(e.Delivered)).Observe(e.Duration.Seconds())
	case xexchange.EventPublishFailed:
		o.duration.WithLabelValues(string(e.Mode), "false").Observe(e.Duration.Seconds())
	}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
