package redispubsub

import (
	"crypto/tls"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/trickstertwo/xexchange"
)

// Config holds client tuning that the exchange config file does not carry.
type Config struct {
	DialTimeout   time.Duration
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	PoolSize      int
	TLS           bool
	TLSServerName string

	// QueueSize bounds the async writer queue.
	QueueSize int
	// PingOnStart makes construction fail when Redis does not answer within PingTimeout.
	PingOnStart bool
	PingTimeout time.Duration
}

// Defaults returns the settings used by the registered factories.
func Defaults() Config {
	return Config{
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		QueueSize:    1024,
		PingTimeout:  2 * time.Second,
	}
}

// ClientOptions maps a connection onto go-redis options.
func ClientOptions(conn xexchange.Connection, cfg Config) *redis.Options {
	opts := &redis.Options{
		Addr:         conn.Addr(),
		Username:     conn.Username(),
		Password:     conn.Password(),
		DB:           conn.Database(),
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
	}
	if cfg.TLS {
		opts.TLSConfig = &tls.Config{
			MinVersion:    tls.VersionTLS12,
			ServerName:    cfg.TLSServerName,
			Renegotiation: tls.RenegotiateNever,
		}
	}
	return opts
}
