package xexchange

import (
	"fmt"
	"net"
	"strconv"

	"github.com/google/uuid"
)

const (
	DefaultHost    = "127.0.0.1"
	DefaultPort    = 6379
	DefaultChannel = "fb_exchange"
)

// Connection is the immutable configuration of one named broker connection.
// It is shared read-only by the transport and publisher built from it.
type Connection struct {
	host       string
	port       int
	username   string
	password   string
	channel    string
	database   int
	identifier string
}

// ConnectionOption customizes a Connection at construction time.
type ConnectionOption func(*Connection)

// WithCredentials sets the ACL username and password. Empty values mean "not set".
func WithCredentials(username, password string) ConnectionOption {
	return func(c *Connection) {
		c.username = username
		c.password = password
	}
}

// WithChannel sets the broker channel events are published to.
func WithChannel(channel string) ConnectionOption {
	return func(c *Connection) { c.channel = channel }
}

// WithDatabase selects the logical Redis database.
func WithDatabase(db int) ConnectionOption {
	return func(c *Connection) { c.database = db }
}

// WithIdentifier pins the connection identifier instead of generating one.
func WithIdentifier(id string) ConnectionOption {
	return func(c *Connection) { c.identifier = id }
}

// NewConnection validates the address and generates a process-unique identifier.
func NewConnection(host string, port int, opts ...ConnectionOption) (Connection, error) {
	c := Connection{
		host:    host,
		port:    port,
		channel: DefaultChannel,
	}
	for _, o := range opts {
		if o != nil {
			o(&c)
		}
	}

	if c.host == "" {
		return Connection{}, fmt.Errorf("%w: empty host", ErrInvalidConnection)
	}
	if c.port < 1 || c.port > 65535 {
		return Connection{}, fmt.Errorf("%w: port %d out of range", ErrInvalidConnection, c.port)
	}
	if c.channel == "" {
		return Connection{}, fmt.Errorf("%w: empty channel", ErrInvalidConnection)
	}
	if c.database < 0 {
		return Connection{}, fmt.Errorf("%w: negative database %d", ErrInvalidConnection, c.database)
	}
	if c.identifier == "" {
		c.identifier = uuid.NewString()
	}
	return c, nil
}

// Host is the broker host name or address.
func (c Connection) Host() string { return c.host }

// Port is the broker TCP port.
func (c Connection) Port() int { return c.port }

// Username is the ACL user; empty means none.
func (c Connection) Username() string { return c.username }

// Password is the ACL password; empty means none.
func (c Connection) Password() string { return c.password }

// Channel is the broker channel every publish targets.
func (c Connection) Channel() string { return c.channel }

// Database is the Redis logical DB index.
func (c Connection) Database() int { return c.database }

// Identifier is embedded as sender_id in every envelope so consumers can drop their own messages.
func (c Connection) Identifier() string { return c.identifier }

// Addr returns host:port suitable for dialing.
func (c Connection) Addr() string {
	return net.JoinHostPort(c.host, strconv.Itoa(c.port))
}
