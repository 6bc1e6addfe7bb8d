package xexchange

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// PublishFunc performs one broker publish and returns the receiver count.
type PublishFunc func(ctx context.Context, channel string, payload []byte) (int64, error)

var (
	_ AsyncTransport = (*AsyncWriter)(nil)
	_ Pinger         = (*AsyncWriter)(nil)
)

// AsyncWriterOption configures an AsyncWriter.
type AsyncWriterOption func(*AsyncWriter)

// WithPingFunc sets the broker check behind Ping.
func WithPingFunc(fn func(ctx context.Context) error) AsyncWriterOption {
	return func(w *AsyncWriter) { w.ping = fn }
}

// AsyncWriter turns a blocking PublishFunc into an AsyncTransport. Commands
// are queued and written by a single goroutine, so writes on the underlying
// connection never interleave and futures settle in submission order.
type AsyncWriter struct {
	id      string
	publish PublishFunc
	release func() error
	ping    func(ctx context.Context) error

	mu     sync.RWMutex
	closed bool
	queue  chan asyncCommand
	done   chan struct{}

	closeOnce sync.Once
	closeErr  error
	dropped   atomic.Uint64
}

type asyncCommand struct {
	ctx     context.Context
	channel string
	payload []byte
	future  *Future
}

// NewAsyncWriter starts the writer goroutine. release, if non-nil, runs once on Close
// after the queue drained.
func NewAsyncWriter(identifier string, queueSize int, publish PublishFunc, release func() error, opts ...AsyncWriterOption) *AsyncWriter {
	if queueSize < 1 {
		queueSize = 1024
	}
	w := &AsyncWriter{
		id:      identifier,
		publish: publish,
		release: release,
		queue:   make(chan asyncCommand, queueSize),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	go w.run()
	return w
}

func (w *AsyncWriter) run() {
	defer close(w.done)
	for cmd := range w.queue {
		n, err := w.publish(cmd.ctx, cmd.channel, cmd.payload)
		if err != nil {
			cmd.future.Reject(err)
			continue
		}
		cmd.future.Resolve(n)
	}
}

// Identifier returns the sender id of the connection this writer serves.
func (w *AsyncWriter) Identifier() string { return w.id }

// Publish queues the command without blocking. ctx values are kept but its
// cancellation is dropped: the caller does not wait for the outcome.
func (w *AsyncWriter) Publish(ctx context.Context, channel string, payload []byte) *Future {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return Rejected(ErrTransportClosed)
	}
	f := NewFuture()
	select {
	case w.queue <- asyncCommand{ctx: context.WithoutCancel(ctx), channel: channel, payload: payload, future: f}:
		return f
	default:
		w.dropped.Add(1)
		return Rejected(ErrQueueFull)
	}
}

// Ping fails with ErrTransportClosed after Close, otherwise it runs the
// configured ping func. Without one the writer is always reachable.
func (w *AsyncWriter) Ping(ctx context.Context) error {
	w.mu.RLock()
	closed := w.closed
	w.mu.RUnlock()
	if closed {
		return ErrTransportClosed
	}
	if w.ping == nil {
		return nil
	}
	return w.ping(ctx)
}

// Pending is the number of queued, unwritten commands.
func (w *AsyncWriter) Pending() int { return len(w.queue) }

// Dropped counts publishes rejected with ErrQueueFull.
func (w *AsyncWriter) Dropped() uint64 { return w.dropped.Load() }

// Close stops accepting commands, waits for the queue to drain (bounded by
// ctx) and releases the connection.
func (w *AsyncWriter) Close(ctx context.Context) error {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		w.closed = true
		close(w.queue)
		w.mu.Unlock()

		var errs []error
		select {
		case <-w.done:
		case <-ctx.Done():
			errs = append(errs, ctx.Err())
		}
		if w.release != nil {
			if err := w.release(); err != nil {
				errs = append(errs, err)
			}
		}
		w.closeErr = errors.Join(errs...)
	})
	return w.closeErr
}
