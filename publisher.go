package xexchange

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/trickstertwo/xclock"
)

// Publisher broadcasts one domain event to the exchange channel. Publish never
// panics or returns on bad data; outcomes are reported through logs and observers.
type Publisher interface {
	Publish(ctx context.Context, origin, routingKey string, data *Data)
}

// Clock supplies envelope timestamps. xclock.Clock satisfies it.
type Clock interface {
	Now() time.Time
}

// PublisherOption configures a SyncPublisher or AsyncPublisher.
type PublisherOption func(*publisherCore)

// WithLogger injects the logger; the default discards everything.
func WithLogger(l zerolog.Logger) PublisherOption {
	return func(c *publisherCore) { c.logger = l }
}

// WithClock injects the envelope clock (default xclock.Default()).
func WithClock(clk Clock) PublisherOption {
	return func(c *publisherCore) {
		if clk != nil {
			c.clock = clk
		}
	}
}

// WithCodec replaces the JSON envelope codec.
func WithCodec(cd Codec) PublisherOption {
	return func(c *publisherCore) {
		if cd != nil {
			c.codec = cd
		}
	}
}

// WithObserver attaches lifecycle observers.
func WithObserver(obs ...Observer) PublisherOption {
	return func(c *publisherCore) {
		for _, o := range obs {
			if o != nil {
				c.observers = append(c.observers, o)
			}
		}
	}
}

// publisherCore holds what both publish paths share: envelope building,
// logging context, observers and counters.
type publisherCore struct {
	mode    Mode
	channel string
	codec   Codec
	clock   Clock
	logger  zerolog.Logger

	observersMu sync.RWMutex
	observers   []Observer

	metrics publishMetrics
}

func newPublisherCore(mode Mode, channel string, opts []PublisherOption) *publisherCore {
	c := &publisherCore{
		mode:    mode,
		channel: channel,
		codec:   JSONCodec{},
		logger:  zerolog.Nop(),
	}
	for _, o := range opts {
		if o != nil {
			o(c)
		}
	}
	if c.clock == nil {
		c.clock = xclock.Default()
	}
	return c
}

// encode builds and serializes the envelope. Every failure is an *EncodingError.
func (c *publisherCore) encode(senderID, origin, routingKey string, data *Data) (Envelope, []byte, error) {
	env, err := BuildEnvelope(senderID, origin, routingKey, c.clock.Now(), data)
	if err != nil {
		return Envelope{}, nil, err
	}
	b, err := c.codec.Encode(env)
	if err != nil {
		if !errors.Is(err, ErrEncoding) {
			err = &EncodingError{Err: err}
		}
		return Envelope{}, nil, err
	}
	return env, b, nil
}

// messageDict is the "event" log context shared by every outcome of one publish call.
func messageDict(origin, routingKey string, data any) *zerolog.Event {
	return zerolog.Dict().
		Str("routing_key", routingKey).
		Str("origin", origin).
		Interface("data", data)
}

func (c *publisherCore) logEncodeFailure(senderID, origin, routingKey string, data *Data, err error) {
	c.metrics.encodeErrors.Add(1)
	c.logger.Error().
		Dict("event", messageDict(origin, routingKey, data)).
		Err(err).
		Msg("xexchange: data could not be converted to message")
	c.notify(Event{
		Type:       EventEncodeFailed,
		Mode:       c.mode,
		SenderID:   senderID,
		Channel:    c.channel,
		Origin:     origin,
		RoutingKey: routingKey,
		Err:        err,
	})
}

// AddObserver registers an observer after construction.
func (c *publisherCore) AddObserver(obs Observer) {
	if obs == nil {
		return
	}
	c.observersMu.Lock()
	c.observers = append(c.observers, obs)
	c.observersMu.Unlock()
}

func (c *publisherCore) notify(e Event) {
	c.observersMu.RLock()
	obs := c.observers
	c.observersMu.RUnlock()
	for _, o := range obs {
		o.OnEvent(e)
	}
}

// Metrics returns the publisher's counters.
func (c *publisherCore) Metrics() Metrics { return c.metrics.snapshot() }

// Channel is the broker channel this publisher writes to.
func (c *publisherCore) Channel() string { return c.channel }

var _ Publisher = (*SyncPublisher)(nil)

// SyncPublisher publishes through a blocking Transport bound to one Connection.
type SyncPublisher struct {
	*publisherCore
	conn      Connection
	transport Transport
}

// NewSyncPublisher binds transport to conn; envelopes carry conn.Identifier() as sender id.
func NewSyncPublisher(conn Connection, transport Transport, opts ...PublisherOption) *SyncPublisher {
	return &SyncPublisher{
		publisherCore: newPublisherCore(ModeSync, conn.Channel(), opts),
		conn:          conn,
		transport:     transport,
	}
}

// Connection returns the connection this publisher is bound to.
func (p *SyncPublisher) Connection() Connection { return p.conn }

// Send publishes one event and surfaces the transport verdict: true iff exactly
// one subscriber received it. Encoding failures return an *EncodingError
// without touching the transport; transport failures are returned untranslated.
func (p *SyncPublisher) Send(ctx context.Context, origin, routingKey string, data *Data) (bool, error) {
	senderID := p.conn.Identifier()
	_, payload, err := p.encode(senderID, origin, routingKey, data)
	if err != nil {
		p.metrics.encodeErrors.Add(1)
		p.notify(Event{Type: EventEncodeFailed, Mode: ModeSync, SenderID: senderID, Channel: p.channel, Origin: origin, RoutingKey: routingKey, Err: err})
		return false, err
	}

	p.metrics.published.Add(1)
	p.notify(Event{Type: EventPublishSent, Mode: ModeSync, SenderID: senderID, Channel: p.channel, Origin: origin, RoutingKey: routingKey})

	start := p.clock.Now()
	ok, err := p.transport.Publish(ctx, p.channel, payload)
	dur := p.clock.Now().Sub(start)
	if err != nil {
		p.metrics.failed.Add(1)
		p.notify(Event{Type: EventPublishFailed, Mode: ModeSync, SenderID: senderID, Channel: p.channel, Origin: origin, RoutingKey: routingKey, Duration: dur, Err: err})
		return false, err
	}

	if ok {
		p.metrics.delivered.Add(1)
	} else {
		p.metrics.undelivered.Add(1)
	}
	p.notify(Event{Type: EventPublishDone, Mode: ModeSync, SenderID: senderID, Channel: p.channel, Origin: origin, RoutingKey: routingKey, Delivered: ok, Duration: dur})
	return ok, nil
}

// Publish is the fire-and-forget form of Send: the outcome is logged, never returned.
func (p *SyncPublisher) Publish(ctx context.Context, origin, routingKey string, data *Data) {
	ok, err := p.Send(ctx, origin, routingKey, data)
	switch {
	case errors.Is(err, ErrEncoding):
		p.logger.Error().
			Dict("event", messageDict(origin, routingKey, data)).
			Err(err).
			Msg("xexchange: data could not be converted to message")
	case err != nil:
		p.logger.Error().
			Dict("event", messageDict(origin, routingKey, data)).
			Err(err).
			Msg("xexchange: message could not be pushed into data exchange")
	case !ok:
		p.logger.Warn().
			Dict("event", messageDict(origin, routingKey, data)).
			Msg("xexchange: message was not received by exactly one subscriber")
	default:
		p.logger.Debug().
			Dict("event", messageDict(origin, routingKey, data)).
			Msg("xexchange: message was pushed into data exchange")
	}
}
