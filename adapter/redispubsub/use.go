package redispubsub

import (
	"fmt"

	"github.com/trickstertwo/xexchange"
)

// New builds an Exchange on Redis pub/sub regardless of the transport named in cfg.
func New(cfg xexchange.Config, opts ...xexchange.Option) (*xexchange.Exchange, error) {
	all := make([]xexchange.Option, 0, len(opts)+1)
	all = append(all, func(b *xexchange.ExchangeBuilder) { b.WithTransport(TransportName) })
	all = append(all, opts...)
	return xexchange.NewExchange(cfg, all...)
}

// Use builds the Exchange, installs it as the process-wide default and returns it.
//
// It panics if construction fails: a *xexchange.ConfigurationError must abort startup.
func Use(cfg xexchange.Config, opts ...xexchange.Option) *xexchange.Exchange {
	ex, err := New(cfg, opts...)
	if err != nil {
		panic(fmt.Errorf("redispubsub.Use: %w", err))
	}
	xexchange.SetDefault(ex)
	return ex
}
