package xexchange

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/trickstertwo/xclock"
)

var _ Publisher = (*Exchange)(nil)

// Exchange is the registry of named publishers built from one Config.
type Exchange struct {
	classic map[string]*SyncPublisher
	names   []string
	async   *AsyncPublisher
	logger  zerolog.Logger
	clock   Clock
	pingers []namedPinger

	closers   []func(context.Context) error
	closeOnce sync.Once
	closeErr  error
	closed    atomic.Bool
}

type namedPinger struct {
	name   string
	pinger Pinger
}

// Publisher returns the synchronous publisher registered under name.
func (e *Exchange) Publisher(name string) (Publisher, bool) {
	p, ok := e.classic[name]
	if !ok {
		return nil, false
	}
	return p, true
}

// Classic returns the concrete synchronous publisher for name, exposing Send.
func (e *Exchange) Classic(name string) (*SyncPublisher, bool) {
	p, ok := e.classic[name]
	return p, ok
}

// Names lists the synchronous publishers in lexical order.
func (e *Exchange) Names() []string {
	out := make([]string, len(e.names))
	copy(out, e.names)
	return out
}

// Async returns the asynchronous publisher when async mode is enabled.
func (e *Exchange) Async() (*AsyncPublisher, bool) {
	return e.async, e.async != nil
}

// AsyncIdentifier is the sender id of the default async connection, empty when
// async mode is off. Consumers compare it with sender_id to skip their own events.
func (e *Exchange) AsyncIdentifier() string {
	if e.async == nil {
		return ""
	}
	return e.async.Identifier()
}

// Default prefers the async publisher and falls back to the classic "default" one.
func (e *Exchange) Default() (Publisher, bool) {
	if e.async != nil {
		return e.async, true
	}
	return e.Publisher(DefaultConnectionName)
}

// Publish sends through Default.
func (e *Exchange) Publish(ctx context.Context, origin, routingKey string, data *Data) {
	p, ok := e.Default()
	if !ok {
		e.logger.Error().
			Dict("event", messageDict(origin, routingKey, data)).
			Msg("xexchange: no default publisher configured")
		return
	}
	p.Publish(ctx, origin, routingKey, data)
}

// Metrics sums the counters of every publisher.
func (e *Exchange) Metrics() Metrics {
	var m Metrics
	for _, p := range e.classic {
		m = m.Add(p.Metrics())
	}
	if e.async != nil {
		m = m.Add(e.async.Metrics())
	}
	return m
}

// Close releases every transport. It is safe to call more than once.
func (e *Exchange) Close(ctx context.Context) error {
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		var errs []error
		for i := len(e.closers) - 1; i >= 0; i-- {
			if err := e.closers[i](ctx); err != nil {
				errs = append(errs, err)
			}
		}
		e.closeErr = errors.Join(errs...)
		if e.closeErr != nil {
			e.logger.Error().Err(e.closeErr).Msg("xexchange: transport close failed")
		}
	})
	return e.closeErr
}

// ExchangeBuilder constructs Exchange instances (Builder pattern).
type ExchangeBuilder struct {
	cfg Config

	transportName    string
	transportFactory TransportFactory
	asyncFactory     AsyncTransportFactory

	codecName string
	codecInst Codec

	logger    zerolog.Logger
	clock     Clock
	observers []Observer

	poolWorkers int
	poolBuffer  int

	middlewares []TransportMiddleware
}

// NewExchangeBuilder returns a builder with the JSON codec and a silent logger.
func NewExchangeBuilder() *ExchangeBuilder {
	return &ExchangeBuilder{
		codecName: "json",
		logger:    zerolog.Nop(),
	}
}

func (bb *ExchangeBuilder) WithConfig(cfg Config) *ExchangeBuilder {
	bb.cfg = cfg
	return bb
}

// WithTransport overrides the adapter named in the config.
func (bb *ExchangeBuilder) WithTransport(name string) *ExchangeBuilder {
	bb.transportName = name
	return bb
}

// WithTransportFactories bypasses the adapter registry.
func (bb *ExchangeBuilder) WithTransportFactories(syncFactory TransportFactory, asyncFactory AsyncTransportFactory) *ExchangeBuilder {
	bb.transportFactory = syncFactory
	bb.asyncFactory = asyncFactory
	return bb
}

func (bb *ExchangeBuilder) WithCodec(name string) *ExchangeBuilder {
	bb.codecName = name
	return bb
}

// WithCodecInstance accepts a ready Codec instance.
func (bb *ExchangeBuilder) WithCodecInstance(c Codec) *ExchangeBuilder {
	bb.codecInst = c
	return bb
}

func (bb *ExchangeBuilder) WithLogger(l zerolog.Logger) *ExchangeBuilder {
	bb.logger = l
	return bb
}

func (bb *ExchangeBuilder) WithClock(c Clock) *ExchangeBuilder {
	bb.clock = c
	return bb
}

func (bb *ExchangeBuilder) WithObserver(obs ...Observer) *ExchangeBuilder {
	for _, o := range obs {
		if o != nil {
			bb.observers = append(bb.observers, o)
		}
	}
	return bb
}

// WithTransportMiddleware decorates every synchronous transport, first middleware outermost.
func (bb *ExchangeBuilder) WithTransportMiddleware(mws ...TransportMiddleware) *ExchangeBuilder {
	bb.middlewares = append(bb.middlewares, mws...)
	return bb
}

// WithObserverPool dispatches observer events from worker goroutines instead
// of the publishing one. The pool is drained when the Exchange closes.
func (bb *ExchangeBuilder) WithObserverPool(workers, bufferSize int) *ExchangeBuilder {
	if workers < 1 {
		workers = 1
	}
	bb.poolWorkers = workers
	bb.poolBuffer = bufferSize
	return bb
}

// Build validates the config before constructing anything, then builds one
// Connection per record, a SyncPublisher per connection when classic mode is
// on, and the AsyncPublisher from "default" when async mode is on. On any
// error the transports built so far are closed.
func (bb *ExchangeBuilder) Build() (*Exchange, error) {
	cfg := bb.cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cd := bb.codecInst
	if cd == nil {
		var err error
		if cd, err = NewCodec(bb.codecName); err != nil {
			return nil, err
		}
	}

	name := bb.transportName
	if name == "" {
		name = cfg.Transport
	}
	newSync := bb.transportFactory
	if newSync == nil {
		newSync = func(conn Connection) (Transport, error) { return NewTransport(name, conn) }
	}
	newAsync := bb.asyncFactory
	if newAsync == nil {
		newAsync = func(conn Connection) (AsyncTransport, error) { return NewAsyncTransport(name, conn) }
	}

	ex := &Exchange{
		classic: make(map[string]*SyncPublisher, len(cfg.Connections)),
		logger:  bb.logger,
		clock:   bb.clock,
	}
	if ex.clock == nil {
		ex.clock = xclock.Default()
	}

	observers := bb.observers
	if bb.poolWorkers > 0 && len(observers) > 0 {
		pool := NewObserverPool(bb.poolWorkers, bb.poolBuffer, observers...)
		observers = []Observer{pool}
		// first in, closed last: transports drain into the pool before it stops
		ex.closers = append(ex.closers, func(ctx context.Context) error {
			return pool.Close(poolDrainTimeout(ctx))
		})
	}

	opts := []PublisherOption{
		WithLogger(bb.logger),
		WithClock(bb.clock),
		WithCodec(cd),
		WithObserver(observers...),
	}
	fail := func(err error) (*Exchange, error) {
		_ = ex.Close(context.Background())
		return nil, err
	}

	for _, connName := range cfg.ConnectionNames() {
		s := cfg.Connections[connName]
		conn, err := NewConnection(s.Host, s.Port,
			WithCredentials(s.Username, s.Password),
			WithChannel(s.Channel),
			WithDatabase(s.Database),
		)
		if err != nil {
			return fail(fmt.Errorf("connection %q: %w", connName, err))
		}

		if cfg.ClassicEnabled() {
			tr, err := newSync(conn)
			if err != nil {
				return fail(fmt.Errorf("connection %q: %w", connName, err))
			}
			if p, ok := tr.(Pinger); ok {
				ex.pingers = append(ex.pingers, namedPinger{name: connName, pinger: p})
			}
			tr = Chain(tr, bb.middlewares...)
			ex.closers = append(ex.closers, tr.Close)
			ex.classic[connName] = NewSyncPublisher(conn, tr, opts...)
			ex.names = append(ex.names, connName)
		}

		if cfg.EnableAsync && connName == DefaultConnectionName {
			tr, err := newAsync(conn)
			if err != nil {
				return fail(fmt.Errorf("connection %q: async: %w", connName, err))
			}
			if p, ok := tr.(Pinger); ok {
				ex.pingers = append(ex.pingers, namedPinger{name: connName + "/async", pinger: p})
			}
			ex.closers = append(ex.closers, tr.Close)
			ex.async = NewAsyncPublisher(conn.Channel(), tr, opts...)
		}
	}

	bb.logger.Debug().
		Strs("publishers", ex.names).
		Bool("async", ex.async != nil).
		Str("transport", name).
		Msg("xexchange: exchange built")
	return ex, nil
}

const (
	defaultPoolDrain = 5 * time.Second
	minPoolDrain     = 250 * time.Millisecond
)

// poolDrainTimeout is what is left of ctx's deadline, never below minPoolDrain:
// earlier closers may have spent the whole budget.
func poolDrainTimeout(ctx context.Context) time.Duration {
	dl, ok := ctx.Deadline()
	if !ok {
		return defaultPoolDrain
	}
	return max(time.Until(dl), minPoolDrain)
}

// Option configures the builder used by NewExchange.
type Option func(*ExchangeBuilder)

// NewExchange builds an Exchange from cfg.
func NewExchange(cfg Config, opts ...Option) (*Exchange, error) {
	bb := NewExchangeBuilder().WithConfig(cfg)
	for _, o := range opts {
		if o != nil {
			o(bb)
		}
	}
	return bb.Build()
}
