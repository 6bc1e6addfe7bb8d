package xexchange

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConnection reports a connection record that cannot be used (bad host, port or channel).
	ErrInvalidConnection = errors.New("xexchange: invalid connection")
	// ErrConfiguration is matched by every *ConfigurationError.
	ErrConfiguration = errors.New("xexchange: configuration error")
	// ErrEncoding is matched by every *EncodingError.
	ErrEncoding = errors.New("xexchange: encoding error")
	// ErrTransportClosed is returned (or used to reject futures) after a transport was closed.
	ErrTransportClosed = errors.New("xexchange: transport closed")
	// ErrQueueFull rejects an async publish when the transport's write queue is saturated.
	ErrQueueFull = errors.New("xexchange: async publish queue full")

	ErrDefaultExchangeNotInitialized = errors.New("xexchange: default exchange not initialized")
)

// ErrUnknownTransport is returned when no factory is registered under the requested name.
type ErrUnknownTransport struct{ name string }

func (e ErrUnknownTransport) Error() string { return fmt.Sprintf("xexchange: unknown transport: %s", e.name) }

// ConfigurationError is a fatal startup error. Startup must abort when it is returned.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string { return "xexchange: configuration error: " + e.Reason }

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// EncodingError reports payload data that cannot be represented on the wire:
// non-finite numbers, unsupported kinds, non-string map keys or cycles.
type EncodingError struct {
	// Path locates the offending value inside the envelope, e.g. "data.items[2].value".
	Path string
	Err  error
}

func (e *EncodingError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("xexchange: encode envelope: %v", e.Err)
	}
	return fmt.Sprintf("xexchange: encode envelope: %s: %v", e.Path, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

func (e *EncodingError) Is(target error) bool { return target == ErrEncoding }
