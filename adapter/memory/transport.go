package memory

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/trickstertwo/xexchange"
)

const TransportName = "memory"

func init() {
	if err := xexchange.RegisterTransport(TransportName,
		func(conn xexchange.Connection) (xexchange.Transport, error) {
			return NewTransport(DefaultBroker()), nil
		},
		func(conn xexchange.Connection) (xexchange.AsyncTransport, error) {
			return NewAsyncTransport(DefaultBroker(), conn.Identifier(), 0), nil
		},
	); err != nil {
		panic(fmt.Errorf("xexchange/memory: failed to register transport: %w", err))
	}
}

var _ xexchange.Transport = (*Transport)(nil)

// Transport publishes synchronously into a Broker.
type Transport struct {
	broker *Broker
	closed atomic.Bool
}

func NewTransport(b *Broker) *Transport {
	return &Transport{broker: b}
}

// Publish reports true only when exactly one subscriber received the payload.
func (t *Transport) Publish(ctx context.Context, channel string, payload []byte) (bool, error) {
	if t.closed.Load() {
		return false, xexchange.ErrTransportClosed
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return t.broker.Publish(channel, payload) == 1, nil
}

// Ping fails once the transport is closed; the in-process broker is otherwise always reachable.
func (t *Transport) Ping(_ context.Context) error {
	if t.closed.Load() {
		return xexchange.ErrTransportClosed
	}
	return nil
}

func (t *Transport) Close(_ context.Context) error {
	t.closed.Store(true)
	return nil
}

// NewAsyncTransport serves b from a single writer goroutine. queueSize < 1 selects the default.
func NewAsyncTransport(b *Broker, identifier string, queueSize int) *xexchange.AsyncWriter {
	return xexchange.NewAsyncWriter(identifier, queueSize, func(ctx context.Context, channel string, payload []byte) (int64, error) {
		return b.Publish(channel, payload), nil
	}, nil)
}
