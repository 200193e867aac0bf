package redis

import (
	"net/url"
	"time"

	sserr "github.com/StricklySoft/stricklysoft-runtime/pkg/errors"
)

// maxStatementTruncateLen bounds the db.statement span attribute.
const maxStatementTruncateLen = 100

// Default configuration values.
const (
	DefaultAddr          = "localhost:6379"
	DefaultPoolSize      = 10
	DefaultDialTimeout   = 5 * time.Second
	DefaultReadTimeout   = 3 * time.Second
	DefaultWriteTimeout  = 3 * time.Second
	DefaultHealthTimeout = 5 * time.Second
	DefaultKeyPrefix     = "runtime:props:"
)

// Secret is a string that is redacted when formatted or serialized.
type Secret string

const redacted = "[REDACTED]"

// String returns a redacted placeholder.
func (s Secret) String() string { return redacted }

// GoString returns a redacted placeholder for %#v.
func (s Secret) GoString() string { return redacted }

// Value returns the actual secret.
func (s Secret) Value() string { return string(s) }

// MarshalText keeps the secret out of JSON and YAML output.
func (s Secret) MarshalText() ([]byte, error) { return []byte(redacted), nil }

// Config holds the settings of a Redis-backed property store. It loads
// with the config package:
//
//	cfg := config.MustLoad[redis.Config](config.New().WithEnvPrefix("RUNTIME"))
type Config struct {
	// URI is a redis:// or rediss:// URL. When set it takes precedence
	// over Addr, Password and DB.
	URI string `env:"REDIS_URI" yaml:"uri" json:"uri,omitempty"`

	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379" yaml:"addr" json:"addr,omitempty"`
	Password Secret `env:"REDIS_PASSWORD" yaml:"password" json:"-"`
	DB       int    `env:"REDIS_DB" yaml:"db" json:"db"`

	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10" yaml:"pool_size" json:"pool_size,omitempty"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s" yaml:"dial_timeout" json:"dial_timeout,omitempty"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s" yaml:"read_timeout" json:"read_timeout,omitempty"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s" yaml:"write_timeout" json:"write_timeout,omitempty"`
	TLSEnabled   bool          `env:"REDIS_TLS_ENABLED" yaml:"tls_enabled" json:"tls_enabled,omitempty"`

	// KeyPrefix is prepended to the component name to form the hash key.
	KeyPrefix string `env:"REDIS_KEY_PREFIX" envDefault:"runtime:props:" yaml:"key_prefix" json:"key_prefix,omitempty"`
}

// DefaultConfig returns a configuration with the documented defaults.
func DefaultConfig() *Config {
	return &Config{
		Addr:         DefaultAddr,
		PoolSize:     DefaultPoolSize,
		DialTimeout:  DefaultDialTimeout,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
		KeyPrefix:    DefaultKeyPrefix,
	}
}

// Validate fills zero values with defaults and checks the rest.
func (c *Config) Validate() error {
	c.applyDefaults()

	if c.URI != "" {
		u, err := url.Parse(c.URI)
		if err != nil {
			return sserr.Wrap(err, sserr.CodeValidationFormat, "redis: config URI is invalid")
		}
		if u.Scheme != "redis" && u.Scheme != "rediss" {
			return sserr.Newf(sserr.CodeValidationFormat,
				"redis: config URI scheme must be redis:// or rediss://, got %q", u.Scheme)
		}
	}
	if c.DB < 0 {
		return sserr.Newf(sserr.CodeValidationRange, "redis: config db must be >= 0, got %d", c.DB)
	}
	if c.PoolSize < 1 {
		return sserr.Newf(sserr.CodeValidationRange, "redis: config pool_size must be >= 1, got %d", c.PoolSize)
	}
	if c.DialTimeout < 0 || c.ReadTimeout < 0 || c.WriteTimeout < 0 {
		return sserr.New(sserr.CodeValidationRange, "redis: config timeouts must not be negative")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.URI == "" && c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.PoolSize == 0 {
		c.PoolSize = DefaultPoolSize
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = DefaultKeyPrefix
	}
}

// truncateStatement shortens s to at most maxStatementTruncateLen runes.
func truncateStatement(s string) string {
	runes := []rune(s)
	if len(runes) <= maxStatementTruncateLen {
		return s
	}
	return string(runes[:maxStatementTruncateLen]) + "..."
}
