package redispubsub

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trickstertwo/xexchange"
)

// testConnection points a connection at a fresh in-process Redis.
func testConnection(t *testing.T, opts ...xexchange.ConnectionOption) (*miniredis.Miniredis, xexchange.Connection) {
	t.Helper()
	s := miniredis.RunT(t)
	conn, err := xexchange.NewConnection(s.Host(), port(t, s), opts...)
	require.NoError(t, err)
	return s, conn
}

func port(t *testing.T, s *miniredis.Miniredis) int {
	t.Helper()
	p, err := strconv.Atoi(s.Port())
	require.NoError(t, err)
	return p
}

// subscribe attaches n confirmed subscribers to channel.
func subscribe(t *testing.T, addr, channel string, n int) []*redis.PubSub {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var subs []*redis.PubSub
	for i := 0; i < n; i++ {
		client := redis.NewClient(&redis.Options{Addr: addr})
		t.Cleanup(func() { _ = client.Close() })
		ps := client.Subscribe(ctx, channel)
		t.Cleanup(func() { _ = ps.Close() })
		_, err := ps.Receive(ctx)
		require.NoError(t, err)
		subs = append(subs, ps)
	}
	return subs
}

func TestPublish_ReceiverBoundary(t *testing.T) {
	cases := []struct {
		receivers int
		want      bool
	}{
		{0, false},
		{1, true},
		{2, false},
	}
	for _, tc := range cases {
		s, conn := testConnection(t)
		subscribe(t, s.Addr(), conn.Channel(), tc.receivers)

		tr, err := NewTransport(conn, Defaults())
		require.NoError(t, err)

		ok, err := tr.Publish(context.Background(), conn.Channel(), []byte(`{"x":1}`))
		require.NoError(t, err)
		assert.Equal(t, tc.want, ok, "receivers=%d", tc.receivers)
		require.NoError(t, tr.Close(context.Background()))
	}
}

func TestPublish_PayloadReachesSubscriber(t *testing.T) {
	s, conn := testConnection(t, xexchange.WithChannel("events"))
	subs := subscribe(t, s.Addr(), "events", 1)

	tr, err := NewTransport(conn, Defaults())
	require.NoError(t, err)
	defer tr.Close(context.Background())

	ok, err := tr.Publish(context.Background(), "events", []byte("payload"))
	require.NoError(t, err)
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msg, err := subs[0].ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "events", msg.Channel)
	assert.Equal(t, "payload", msg.Payload)
}

func TestPublish_ConnectionErrorIsReturned(t *testing.T) {
	s, conn := testConnection(t)
	cfg := Defaults()
	cfg.DialTimeout = 200 * time.Millisecond
	tr, err := NewTransport(conn, cfg)
	require.NoError(t, err)
	defer tr.Close(context.Background())

	s.Close()
	ok, err := tr.Publish(context.Background(), conn.Channel(), []byte("x"))
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestNewTransport_PingOnStart(t *testing.T) {
	s, conn := testConnection(t)
	cfg := Defaults()
	cfg.PingOnStart = true

	tr, err := NewTransport(conn, cfg)
	require.NoError(t, err)
	require.NoError(t, tr.Close(context.Background()))

	s.Close()
	cfg.DialTimeout = 100 * time.Millisecond
	cfg.PingTimeout = 300 * time.Millisecond
	start := time.Now()
	_, err = NewTransport(conn, cfg)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestAsyncTransport_ResolvesAndRejects(t *testing.T) {
	s, conn := testConnection(t, xexchange.WithIdentifier("async-id"))
	subscribe(t, s.Addr(), conn.Channel(), 2)

	cfg := Defaults()
	cfg.DialTimeout = 200 * time.Millisecond
	tr, err := NewAsyncTransport(conn, cfg)
	require.NoError(t, err)
	defer tr.Close(context.Background())
	assert.Equal(t, "async-id", tr.Identifier())

	ctx := context.Background()
	n, err := tr.Publish(ctx, conn.Channel(), []byte("x")).Wait(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	s.Close()
	_, err = tr.Publish(ctx, conn.Channel(), []byte("y")).Wait(ctx)
	assert.Error(t, err)
}

func TestAsyncTransportWithClient_LeavesClientOpen(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	tr := NewAsyncTransportWithClient(client, "shared", 0)
	_, err := tr.Publish(context.Background(), "events", []byte("x")).Wait(context.Background())
	require.NoError(t, err)
	require.NoError(t, tr.Close(context.Background()))

	assert.NoError(t, client.Ping(context.Background()).Err())
}

func TestClientOptions(t *testing.T) {
	conn, err := xexchange.NewConnection("redis.internal", 6380,
		xexchange.WithCredentials("svc", "secret"), xexchange.WithDatabase(4))
	require.NoError(t, err)

	cfg := Defaults()
	cfg.TLS = true
	cfg.TLSServerName = "redis.internal"
	opts := ClientOptions(conn, cfg)

	assert.Equal(t, "redis.internal:6380", opts.Addr)
	assert.Equal(t, "svc", opts.Username)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 4, opts.DB)
	require.NotNil(t, opts.TLSConfig)
	assert.Equal(t, "redis.internal", opts.TLSConfig.ServerName)
}

func TestUse_PublishesThroughDefaultExchange(t *testing.T) {
	s := miniredis.RunT(t)
	subs := subscribe(t, s.Addr(), "fb_exchange", 1)

	ex := Use(xexchange.Config{
		EnableAsync: true,
		Connections: map[string]xexchange.ConnectionSettings{
			"default": {Host: s.Host(), Port: port(t, s)},
		},
	})
	defer ex.Close(context.Background())

	require.NoError(t, xexchange.Publish(context.Background(), "device", "state.changed", xexchange.NewData().Set("id", 1)))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msg, err := subs[0].ReceiveMessage(ctx)
	require.NoError(t, err)

	env, err := xexchange.JSONCodec{}.Decode([]byte(msg.Payload))
	require.NoError(t, err)
	assert.Equal(t, ex.AsyncIdentifier(), env.SenderID)
	assert.Equal(t, "device", env.Origin)
}

func TestUse_PanicsOnConfigurationError(t *testing.T) {
	assert.Panics(t, func() {
		Use(xexchange.Config{EnableAsync: true})
	})
}

func TestExchangeHealth_FollowsRedis(t *testing.T) {
	s := miniredis.RunT(t)
	ex, err := New(xexchange.Config{
		Connections: map[string]xexchange.ConnectionSettings{
			"default": {Host: s.Host(), Port: port(t, s)},
		},
	})
	require.NoError(t, err)
	defer ex.Close(context.Background())

	assert.Equal(t, xexchange.Healthy, ex.Health(context.Background()).State)

	s.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	h := ex.Health(ctx)
	assert.Equal(t, xexchange.Unhealthy, h.State)
	assert.Contains(t, h.Message, `connection "default"`)
}

func TestExchangeHealth_AsyncOnlyFollowsRedis(t *testing.T) {
	s := miniredis.RunT(t)
	classic := false
	ex, err := New(xexchange.Config{
		EnableClassic: &classic,
		EnableAsync:   true,
		Connections: map[string]xexchange.ConnectionSettings{
			"default": {Host: s.Host(), Port: port(t, s)},
		},
	})
	require.NoError(t, err)
	defer ex.Close(context.Background())

	assert.Equal(t, xexchange.Healthy, ex.Health(context.Background()).State)

	s.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	h := ex.Health(ctx)
	assert.Equal(t, xexchange.Unhealthy, h.State)
	assert.Contains(t, h.Message, `connection "default/async"`)
}
