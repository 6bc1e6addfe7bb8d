package xexchange

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var scenarioTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

// logSink captures zerolog output as decoded JSON lines.
type logSink struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *logSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *logSink) logger() zerolog.Logger { return zerolog.New(s) }

func (s *logSink) entries(t *testing.T) []map[string]any {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(s.buf.Bytes()))
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m), "log line: %s", sc.Text())
		out = append(out, m)
	}
	return out
}

func (s *logSink) levels(t *testing.T) []string {
	t.Helper()
	var out []string
	for _, e := range s.entries(t) {
		out = append(out, e["level"].(string))
	}
	return out
}

type publishCall struct {
	channel string
	payload []byte
}

// fakeTransport records publishes and answers with a fixed verdict.
type fakeTransport struct {
	mu     sync.Mutex
	calls  []publishCall
	ok     bool
	err    error
	closed bool
}

func (f *fakeTransport) Publish(_ context.Context, channel string, payload []byte) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, publishCall{channel: channel, payload: payload})
	return f.ok, f.err
}

func (f *fakeTransport) Close(context.Context) error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) published() []publishCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]publishCall(nil), f.calls...)
}

// fakeAsyncTransport hands out pending futures the test settles by hand.
type fakeAsyncTransport struct {
	id      string
	mu      sync.Mutex
	calls   []publishCall
	futures []*Future
}

func (f *fakeAsyncTransport) Publish(_ context.Context, channel string, payload []byte) *Future {
	f.mu.Lock()
	defer f.mu.Unlock()
	fut := NewFuture()
	f.calls = append(f.calls, publishCall{channel: channel, payload: payload})
	f.futures = append(f.futures, fut)
	return fut
}

func (f *fakeAsyncTransport) Identifier() string { return f.id }

func (f *fakeAsyncTransport) Close(context.Context) error { return nil }

func (f *fakeAsyncTransport) published() []publishCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]publishCall(nil), f.calls...)
}

func mustConnection(t *testing.T, opts ...ConnectionOption) Connection {
	t.Helper()
	c, err := NewConnection(DefaultHost, DefaultPort, opts...)
	require.NoError(t, err)
	return c
}
