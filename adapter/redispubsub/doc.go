// Package redispubsub provides the Redis pub/sub transports for xexchange.
//
// Transport name: "redis"
//
// Each connection record maps onto one go-redis client:
// - host/port: dial address (default 127.0.0.1:6379)
// - username/password: ACL credentials (optional)
// - database: logical DB index (default 0)
// - channel: PUBLISH channel (default "fb_exchange")
//
// The synchronous transport reports success only when PUBLISH returns a
// receiver count of exactly one. The asynchronous transport queues commands
// for a single writer goroutine and settles a future per command.
//
// Example:
//
//	cfg, _ := xexchange.LoadConfig("exchange.yaml")
//	ex := redispubsub.Use(cfg, func(b *xexchange.ExchangeBuilder) { b.WithLogger(logger) })
//	defer ex.Close(context.Background())
//	ex.Publish(ctx, "device", "state.changed", xexchange.NewData().Set("id", 1))
package redispubsub
