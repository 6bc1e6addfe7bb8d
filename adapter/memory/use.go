package memory

import (
	"fmt"

	"github.com/trickstertwo/xexchange"
)

// Use builds an Exchange on the default in-process broker and installs it as
// the process-wide default. Mirrors redispubsub.Use.
func Use(cfg xexchange.Config, opts ...xexchange.Option) *xexchange.Exchange {
	all := make([]xexchange.Option, 0, len(opts)+1)
	all = append(all, func(b *xexchange.ExchangeBuilder) { b.WithTransport(TransportName) })
	all = append(all, opts...)

	ex, err := xexchange.NewExchange(cfg, all...)
	if err != nil {
		panic(fmt.Errorf("memory.Use: %w", err))
	}
	xexchange.SetDefault(ex)
	return ex
}
