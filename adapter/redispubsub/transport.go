package redispubsub

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"github.com/trickstertwo/xexchange"
)

// TransportName is the registry name of this adapter.
const TransportName = "redis"

func init() {
	if err := xexchange.RegisterTransport(TransportName,
		func(conn xexchange.Connection) (xexchange.Transport, error) {
			tr, err := NewTransport(conn, Defaults())
			if err != nil {
				return nil, err
			}
			return tr, nil
		},
		func(conn xexchange.Connection) (xexchange.AsyncTransport, error) {
			tr, err := NewAsyncTransport(conn, Defaults())
			if err != nil {
				return nil, err
			}
			return tr, nil
		},
	); err != nil {
		panic(fmt.Errorf("xexchange: failed to register transport %q: %w", TransportName, err))
	}
}

var (
	_ xexchange.Transport = (*Transport)(nil)
	_ xexchange.Pinger    = (*Transport)(nil)
)

// Transport issues blocking PUBLISH commands.
type Transport struct {
	client    *redis.Client
	owned     bool
	closeOnce sync.Once
	closeErr  error
}

// NewTransport dials a dedicated client for conn.
func NewTransport(conn xexchange.Connection, cfg Config) (*Transport, error) {
	client := redis.NewClient(ClientOptions(conn, cfg))
	if cfg.PingOnStart {
		if err := ping(client, cfg.PingTimeout); err != nil {
			_ = client.Close()
			return nil, err
		}
	}
	return &Transport{client: client, owned: true}, nil
}

// NewTransportWithClient wraps an existing client. Close leaves the client open.
func NewTransportWithClient(client *redis.Client) *Transport {
	return &Transport{client: client}
}

// Publish reports true only when exactly one subscriber received the payload.
func (t *Transport) Publish(ctx context.Context, channel string, payload []byte) (bool, error) {
	n, err := t.client.Publish(ctx, channel, payload).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Ping checks that Redis answers on the transport's client.
func (t *Transport) Ping(ctx context.Context) error {
	return t.client.Ping(ctx).Err()
}

func (t *Transport) Close(_ context.Context) error {
	t.closeOnce.Do(func() {
		if t.owned {
			t.closeErr = t.client.Close()
		}
	})
	return t.closeErr
}

// NewAsyncTransport dials a dedicated client for conn and serves it from one
// writer goroutine. The transport identifier is conn.Identifier().
func NewAsyncTransport(conn xexchange.Connection, cfg Config) (*xexchange.AsyncWriter, error) {
	client := redis.NewClient(ClientOptions(conn, cfg))
	if cfg.PingOnStart {
		if err := ping(client, cfg.PingTimeout); err != nil {
			_ = client.Close()
			return nil, err
		}
	}
	return xexchange.NewAsyncWriter(conn.Identifier(), cfg.QueueSize, publishFunc(client), client.Close,
		xexchange.WithPingFunc(pingFunc(client))), nil
}

// NewAsyncTransportWithClient serves an existing client. Close leaves the client open.
func NewAsyncTransportWithClient(client *redis.Client, identifier string, queueSize int) *xexchange.AsyncWriter {
	return xexchange.NewAsyncWriter(identifier, queueSize, publishFunc(client), nil,
		xexchange.WithPingFunc(pingFunc(client)))
}

func publishFunc(client *redis.Client) xexchange.PublishFunc {
	return func(ctx context.Context, channel string, payload []byte) (int64, error) {
		return client.Publish(ctx, channel, payload).Result()
	}
}

func pingFunc(client *redis.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}

// ping retries with exponential backoff until Redis answers or timeout elapses.
func ping(c *redis.Client, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxElapsedTime = timeout

	return backoff.Retry(func() error {
		res, err := c.Ping(ctx).Result()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return fmt.Errorf("redis ping timeout: %w", err)
			}
			return err
		}
		if strings.ToUpper(res) != "PONG" {
			return backoff.Permanent(fmt.Errorf("unexpected redis ping result: %s", res))
		}
		return nil
	}, backoff.WithContext(b, ctx))
}
