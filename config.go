package xexchange

import (
	"fmt"
	"os"
	"sort"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// DefaultConnectionName is the connection the async publisher is built from.
const DefaultConnectionName = "default"

// DefaultTransport is the adapter used when the config names none.
const DefaultTransport = "redis"

// ConnectionSettings is one named connection record as it appears in the config file.
type ConnectionSettings struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Channel  string `yaml:"channel"`
	Database int    `yaml:"database"`
}

// Config is the exchange configuration:
//
//	transport: redis
//	enableClassic: true
//	enableAsync: true
//	connection:
//	  default:
//	    host: 127.0.0.1
//	    port: 6379
//	    channel: fb_exchange
type Config struct {
	Connections map[string]ConnectionSettings `yaml:"connection"`
	// EnableClassic builds a synchronous publisher per connection. Nil means true.
	EnableClassic *bool `yaml:"enableClassic"`
	// EnableAsync builds the asynchronous publisher from the "default" connection.
	EnableAsync bool   `yaml:"enableAsync"`
	Transport   string `yaml:"transport"`
}

// ClassicEnabled reports the effective enableClassic flag.
func (c Config) ClassicEnabled() bool {
	return c.EnableClassic == nil || *c.EnableClassic
}

// WithDefaults fills unset connection fields and the transport name.
func (c Config) WithDefaults() Config {
	out := c
	if out.Transport == "" {
		out.Transport = DefaultTransport
	}
	out.Connections = make(map[string]ConnectionSettings, len(c.Connections))
	for name, s := range c.Connections {
		if s.Host == "" {
			s.Host = DefaultHost
		}
		if s.Port == 0 {
			s.Port = DefaultPort
		}
		if s.Channel == "" {
			s.Channel = DefaultChannel
		}
		out.Connections[name] = s
	}
	return out
}

// Validate checks startup preconditions. Async mode without a "default"
// connection is a *ConfigurationError.
func (c Config) Validate() error {
	if c.EnableAsync {
		if _, ok := c.Connections[DefaultConnectionName]; !ok {
			return &ConfigurationError{Reason: fmt.Sprintf("asynchronous publisher requires a %q connection", DefaultConnectionName)}
		}
	}
	for _, name := range c.ConnectionNames() {
		if name == "" {
			return &ConfigurationError{Reason: "connection name must not be empty"}
		}
	}
	return nil
}

// ConnectionNames returns the configured connection names in lexical order.
func (c Config) ConnectionNames() []string {
	names := make([]string, 0, len(c.Connections))
	for name := range c.Connections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseConfig decodes YAML and applies defaults.
func ParseConfig(b []byte) (Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return Config{}, &ConfigurationError{Reason: fmt.Sprintf("parse: %v", err)}
	}
	return c.WithDefaults(), nil
}

// ConfigFromMap decodes an already-parsed config tree, as handed over by a
// host application's own config loader. Keys follow the YAML names; scalar
// values are converted weakly, so port "6379" is accepted.
func ConfigFromMap(m map[string]any) (Config, error) {
	var c Config
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "yaml",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &c,
	})
	if err != nil {
		return Config{}, err
	}
	if err := dec.Decode(m); err != nil {
		return Config{}, &ConfigurationError{Reason: fmt.Sprintf("decode: %v", err)}
	}
	return c.WithDefaults(), nil
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("xexchange: read config %s: %w", path, err)
	}
	return ParseConfig(b)
}
