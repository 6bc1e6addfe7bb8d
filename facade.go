package xexchange

import (
	"context"
	"sync"
)

var (
	defaultExchange   *Exchange
	defaultExchangeMu sync.RWMutex
)

// SetDefault installs the process-wide Exchange used by the package-level Publish.
func SetDefault(ex *Exchange) {
	if ex == nil {
		panic("xexchange: SetDefault called with nil Exchange")
	}
	defaultExchangeMu.Lock()
	defaultExchange = ex
	defaultExchangeMu.Unlock()
}

// Default returns the process-wide Exchange.
func Default() (*Exchange, error) {
	defaultExchangeMu.RLock()
	defer defaultExchangeMu.RUnlock()
	if defaultExchange == nil {
		return nil, ErrDefaultExchangeNotInitialized
	}
	return defaultExchange, nil
}

// Publish is the Facade that uses the default exchange.
func Publish(ctx context.Context, origin, routingKey string, data *Data) error {
	ex, err := Default()
	if err != nil {
		return err
	}
	ex.Publish(ctx, origin, routingKey, data)
	return nil
}
