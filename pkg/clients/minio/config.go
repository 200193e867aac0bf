package minio

import (
	"strings"
	"time"

	sserr "github.com/StricklySoft/stricklysoft-runtime/pkg/errors"
)

// maxStatementTruncateLen bounds the db.statement span attribute.
const maxStatementTruncateLen = 100

// Default configuration values.
const (
	DefaultEndpoint      = "localhost:9000"
	DefaultRegion        = "us-east-1"
	DefaultBucket        = "runtime-properties"
	DefaultPrefix        = "components/"
	DefaultHealthTimeout = 5 * time.Second
)

// Secret is a string that is redacted when formatted or serialized.
type Secret string

const redacted = "[REDACTED]"

func (s Secret) String() string   { return redacted }
func (s Secret) GoString() string { return redacted }

// Value returns the actual secret.
func (s Secret) Value() string { return string(s) }

// MarshalText keeps the secret out of JSON and YAML output.
func (s Secret) MarshalText() ([]byte, error) { return []byte(redacted), nil }

// Config holds the settings of an object-storage property store.
type Config struct {
	Endpoint  string `env:"MINIO_ENDPOINT" envDefault:"localhost:9000" yaml:"endpoint" json:"endpoint,omitempty"`
	AccessKey string `env:"MINIO_ACCESS_KEY" yaml:"access_key" json:"access_key,omitempty"`
	SecretKey Secret `env:"MINIO_SECRET_KEY" yaml:"secret_key" json:"-"`
	Region    string `env:"MINIO_REGION" envDefault:"us-east-1" yaml:"region" json:"region,omitempty"`
	UseSSL    bool   `env:"MINIO_USE_SSL" yaml:"use_ssl" json:"use_ssl,omitempty"`

	// Bucket holds one YAML object per component.
	Bucket string `env:"MINIO_BUCKET" envDefault:"runtime-properties" yaml:"bucket" json:"bucket"`

	// Prefix is prepended to object keys. It ends with "/" when set.
	Prefix string `env:"MINIO_PREFIX" envDefault:"components/" yaml:"prefix" json:"prefix,omitempty"`

	// CreateBucket makes Bucket on connect when it does not exist.
	CreateBucket bool `env:"MINIO_CREATE_BUCKET" yaml:"create_bucket" json:"create_bucket,omitempty"`
}

// DefaultConfig returns a configuration with the documented defaults.
func DefaultConfig() *Config {
	return &Config{
		Endpoint: DefaultEndpoint,
		Region:   DefaultRegion,
		Bucket:   DefaultBucket,
		Prefix:   DefaultPrefix,
	}
}

// Validate fills zero values with defaults and checks the rest.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return sserr.New(sserr.CodeValidationRequired, "minio: config endpoint must not be empty")
	}
	if strings.Contains(c.Endpoint, "://") {
		return sserr.Newf(sserr.CodeValidationFormat,
			"minio: config endpoint must be host:port without a scheme, got %q", c.Endpoint)
	}
	if c.AccessKey == "" {
		return sserr.New(sserr.CodeValidationRequired, "minio: config access_key must not be empty")
	}
	if c.Region == "" {
		c.Region = DefaultRegion
	}
	if c.Bucket == "" {
		c.Bucket = DefaultBucket
	}
	if n := len(c.Bucket); n < 3 || n > 63 || strings.ToLower(c.Bucket) != c.Bucket {
		return sserr.Newf(sserr.CodeValidationFormat,
			"minio: config bucket %q must be 3-63 lowercase characters", c.Bucket)
	}
	if c.Prefix != "" && !strings.HasSuffix(c.Prefix, "/") {
		c.Prefix += "/"
	}
	return nil
}

// truncateStatement shortens s to at most maxStatementTruncateLen runes.
func truncateStatement(s string) string {
	runes := []rune(s)
	if len(runes) <= maxStatementTruncateLen {
		return s
	}
	return string(runes[:maxStatementTruncateLen]) + "..."
}
