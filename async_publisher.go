package xexchange

import (
	"context"
)

var _ Publisher = (*AsyncPublisher)(nil)

// AsyncPublisher publishes through a non-blocking AsyncTransport. The caller
// never waits; the outcome is logged from the transport's writer goroutine.
type AsyncPublisher struct {
	*publisherCore
	transport AsyncTransport
}

// NewAsyncPublisher binds transport to channel. Envelopes carry transport.Identifier() as sender id.
func NewAsyncPublisher(channel string, transport AsyncTransport, opts ...PublisherOption) *AsyncPublisher {
	return &AsyncPublisher{
		publisherCore: newPublisherCore(ModeAsync, channel, opts),
		transport:     transport,
	}
}

// Identifier returns the sender id used for loop-back filtering by consumers.
func (p *AsyncPublisher) Identifier() string { return p.transport.Identifier() }

// Publish queues the event and returns immediately.
func (p *AsyncPublisher) Publish(ctx context.Context, origin, routingKey string, data *Data) {
	_ = p.PublishFuture(ctx, origin, routingKey, data)
}

// PublishFuture is Publish returning the transport future, for callers that
// want to await settlement. Logging happens regardless of what the caller does.
//
// Per call: an encoding failure logs one error and returns a rejected future
// without touching the transport; otherwise exactly one of the success or
// failure continuations runs once the future settles.
func (p *AsyncPublisher) PublishFuture(ctx context.Context, origin, routingKey string, data *Data) *Future {
	senderID := p.transport.Identifier()
	env, payload, err := p.encode(senderID, origin, routingKey, data)
	if err != nil {
		p.logEncodeFailure(senderID, origin, routingKey, data, err)
		return Rejected(err)
	}

	p.metrics.published.Add(1)
	start := p.clock.Now()
	f := p.transport.Publish(ctx, p.channel, payload)
	p.notify(Event{Type: EventPublishSent, Mode: ModeAsync, SenderID: senderID, Channel: p.channel, Origin: origin, RoutingKey: routingKey})

	f.Then(func(receivers int64) {
		p.metrics.delivered.Add(1)
		p.logger.Info().
			Dict("event", messageDict(origin, routingKey, env.Data)).
			Int64("receivers", receivers).
			Msg("xexchange: message was pushed into data exchange")
		p.notify(Event{
			Type:       EventPublishDone,
			Mode:       ModeAsync,
			SenderID:   senderID,
			Channel:    p.channel,
			Origin:     origin,
			RoutingKey: routingKey,
			Receivers:  receivers,
			Delivered:  true,
			Duration:   p.clock.Now().Sub(start),
		})
	}).Otherwise(func(err error) {
		p.metrics.failed.Add(1)
		p.logger.Error().
			Dict("event", messageDict(origin, routingKey, env.Data)).
			Err(err).
			Msg("xexchange: message could not be pushed into data exchange")
		p.notify(Event{
			Type:       EventPublishFailed,
			Mode:       ModeAsync,
			SenderID:   senderID,
			Channel:    p.channel,
			Origin:     origin,
			RoutingKey: routingKey,
			Duration:   p.clock.Now().Sub(start),
			Err:        err,
		})
	})
	return f
}
