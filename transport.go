package xexchange

import (
	"context"
)

// Transport is the Strategy for the synchronous broker publish.
type Transport interface {
	// Publish sends payload to channel and blocks until the broker answers.
	// It reports true only when exactly one subscriber received the message.
	// Connection failures are returned as-is.
	Publish(ctx context.Context, channel string, payload []byte) (bool, error)
	// Close releases the connection.
	Close(ctx context.Context) error
}

// AsyncTransport is the Strategy for the non-blocking broker publish.
type AsyncTransport interface {
	// Publish queues payload for channel and returns immediately. The future
	// resolves with the receiver count once the broker acknowledges, or is
	// rejected with the transport error.
	Publish(ctx context.Context, channel string, payload []byte) *Future
	// Identifier is the sender id stamped on envelopes sent through this transport.
	Identifier() string
	// Close drains queued commands (bounded by ctx) and releases the connection.
	Close(ctx context.Context) error
}

// TransportFactory constructs a synchronous transport for a connection.
type TransportFactory func(conn Connection) (Transport, error)

// AsyncTransportFactory constructs an asynchronous transport for a connection.
type AsyncTransportFactory func(conn Connection) (AsyncTransport, error)
