// Package oteltrace records xexchange publishes as OpenTelemetry producer spans.
//
// Spans are created when the outcome is known, back-dated by the measured
// publish duration, so async publishes are traced without holding a span
// open across the writer queue.
package oteltrace

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/trickstertwo/xexchange"
)

const instrumentationName = "github.com/trickstertwo/xexchange/adapter/oteltrace"

var _ xexchange.Observer = (*Observer)(nil)

type Observer struct {
	tracer trace.Tracer
	system string
	now    func() time.Time
}

// NewObserver traces through tp, or the global provider when tp is nil.
// system is the messaging.system attribute, e.g. "redis".
func NewObserver(tp trace.TracerProvider, system string) *Observer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Observer{
		tracer: tp.Tracer(instrumentationName),
		system: system,
		now:    time.Now,
	}
}

func (o *Observer) OnEvent(e xexchange.Event) {
	switch e.Type {
	case xexchange.EventPublishDone, xexchange.EventPublishFailed, xexchange.EventEncodeFailed:
	default:
		return
	}

	end := o.now()
	_, span := o.tracer.Start(context.Background(), e.Channel+" publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithTimestamp(end.Add(-e.Duration)),
		trace.WithAttributes(
			attribute.String("messaging.system", o.system),
			attribute.String("messaging.operation.type", "publish"),
			attribute.String("messaging.destination.name", e.Channel),
			attribute.String("xexchange.mode", string(e.Mode)),
			attribute.String("xexchange.sender_id", e.SenderID),
			attribute.String("xexchange.origin", e.Origin),
			attribute.String("xexchange.routing_key", e.RoutingKey),
		),
	)
	switch e.Type {
	case xexchange.EventPublishDone:
		span.SetAttributes(
			attribute.Int64("xexchange.receivers", e.Receivers),
			attribute.Bool("xexchange.delivered", e.Delivered),
		)
		if e.Delivered {
			span.SetStatus(codes.Ok, "")
		}
	default:
		span.RecordError(e.Err)
		span.SetStatus(codes.Error, string(e.Type))
	}
	span.End(trace.WithTimestamp(end))
}
