package xexchange

import (
	"errors"
	"fmt"
	"sync"
)

// CodecFactory constructs codecs via Factory pattern.
type CodecFactory func() Codec

var (
	transportRegistryMu sync.RWMutex
	transportRegistry   = map[string]TransportFactory{}
	asyncRegistry       = map[string]AsyncTransportFactory{}

	codecRegistryMu sync.RWMutex
	codecRegistry   = map[string]CodecFactory{
		"json":     func() Codec { return JSONCodec{} },
		"jsoniter": func() Codec { return JSONIterCodec{} },
	}
)

// RegisterTransport registers a broker adapter's factories under name.
// Adapters call it from init; asyncFactory may be nil for sync-only brokers.
func RegisterTransport(name string, factory TransportFactory, asyncFactory AsyncTransportFactory) error {
	if name == "" {
		return errors.New("transport name must not be empty")
	}
	if factory == nil {
		return errors.New("transport factory must not be nil")
	}
	transportRegistryMu.Lock()
	transportRegistry[name] = factory
	if asyncFactory != nil {
		asyncRegistry[name] = asyncFactory
	} else {
		delete(asyncRegistry, name)
	}
	transportRegistryMu.Unlock()
	return nil
}

// NewTransport constructs a synchronous transport by adapter name.
func NewTransport(name string, conn Connection) (Transport, error) {
	transportRegistryMu.RLock()
	f, ok := transportRegistry[name]
	transportRegistryMu.RUnlock()
	if !ok {
		return nil, ErrUnknownTransport{name: name}
	}
	return f(conn)
}

// NewAsyncTransport constructs an asynchronous transport by adapter name.
func NewAsyncTransport(name string, conn Connection) (AsyncTransport, error) {
	transportRegistryMu.RLock()
	f, ok := asyncRegistry[name]
	transportRegistryMu.RUnlock()
	if !ok {
		return nil, ErrUnknownTransport{name: name}
	}
	return f(conn)
}

// RegisterCodec registers a codec factory by name.
func RegisterCodec(name string, factory CodecFactory) error {
	if name == "" {
		return errors.New("codec name must not be empty")
	}
	if factory == nil {
		return errors.New("codec factory must not be nil")
	}
	codecRegistryMu.Lock()
	codecRegistry[name] = factory
	codecRegistryMu.Unlock()
	return nil
}

// NewCodec constructs a codec by name or returns an error.
func NewCodec(name string) (Codec, error) {
	codecRegistryMu.RLock()
	f, ok := codecRegistry[name]
	codecRegistryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("codec %q not registered", name)
	}
	return f(), nil
}
