package xexchange

import (
	"context"
	"fmt"
	"time"
)

// TransportMiddleware decorates a synchronous Transport.
type TransportMiddleware func(next Transport) Transport

// TransportFunc adapts a publish function and an optional close function into a Transport.
type TransportFunc struct {
	PublishFunc func(ctx context.Context, channel string, payload []byte) (bool, error)
	CloseFunc   func(ctx context.Context) error
}

func (f TransportFunc) Publish(ctx context.Context, channel string, payload []byte) (bool, error) {
	return f.PublishFunc(ctx, channel, payload)
}

func (f TransportFunc) Close(ctx context.Context) error {
	if f.CloseFunc == nil {
		return nil
	}
	return f.CloseFunc(ctx)
}

// Chain composes middlewares around t in order: the first one is outermost.
func Chain(t Transport, mws ...TransportMiddleware) Transport {
	wrapped := t
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] == nil {
			continue
		}
		wrapped = mws[i](wrapped)
	}
	return wrapped
}

// TimeoutMiddleware bounds each publish. Calls whose ctx already carries an
// earlier deadline are left alone.
func TimeoutMiddleware(d time.Duration) TransportMiddleware {
	return func(next Transport) Transport {
		return TransportFunc{
			PublishFunc: func(ctx context.Context, channel string, payload []byte) (bool, error) {
				if dl, ok := ctx.Deadline(); ok && time.Until(dl) <= d {
					return next.Publish(ctx, channel, payload)
				}
				ctx, cancel := context.WithTimeout(ctx, d)
				defer cancel()
				return next.Publish(ctx, channel, payload)
			},
			CloseFunc: next.Close,
		}
	}
}

// RecoveryMiddleware turns a panicking transport into a publish error.
func RecoveryMiddleware() TransportMiddleware {
	return func(next Transport) Transport {
		return TransportFunc{
			PublishFunc: func(ctx context.Context, channel string, payload []byte) (ok bool, err error) {
				defer func() {
					if r := recover(); r != nil {
						ok, err = false, fmt.Errorf("xexchange: transport panic recovered: %v", r)
					}
				}()
				return next.Publish(ctx, channel, payload)
			},
			CloseFunc: next.Close,
		}
	}
}
