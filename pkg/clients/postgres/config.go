package postgres

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	sserr "github.com/StricklySoft/stricklysoft-runtime/pkg/errors"
)

// maxSQLTruncateLen bounds the db.statement span attribute.
const maxSQLTruncateLen = 100

// Default configuration values.
const (
	DefaultHost                    = "localhost"
	DefaultPort                    = 5432
	DefaultDatabase                = "runtime"
	DefaultUser                    = "runtime"
	DefaultMaxConns          int32 = 10
	DefaultMinConns          int32 = 1
	DefaultMaxConnLifetime         = time.Hour
	DefaultMaxConnIdleTime         = 30 * time.Minute
	DefaultHealthCheckPeriod       = time.Minute
	DefaultConnectTimeout          = 10 * time.Second
	DefaultHealthTimeout           = 5 * time.Second

	// DefaultTable holds one row per component property.
	DefaultTable = "component_properties"
)

// SSLMode is a libpq sslmode value.
type SSLMode string

const (
	SSLModeDisable    SSLMode = "disable"
	SSLModeAllow      SSLMode = "allow"
	SSLModePrefer     SSLMode = "prefer"
	SSLModeRequire    SSLMode = "require"
	SSLModeVerifyCA   SSLMode = "verify-ca"
	SSLModeVerifyFull SSLMode = "verify-full"
)

func (m SSLMode) String() string { return string(m) }

// Valid reports whether m is a recognized mode.
func (m SSLMode) Valid() bool {
	switch m {
	case SSLModeDisable, SSLModeAllow, SSLModePrefer,
		SSLModeRequire, SSLModeVerifyCA, SSLModeVerifyFull:
		return true
	}
	return false
}

// Secret is a string that is redacted when formatted or serialized.
type Secret string

const redacted = "[REDACTED]"

func (s Secret) String() string               { return redacted }
func (s Secret) GoString() string             { return redacted }
func (s Secret) Value() string                { return string(s) }
func (s Secret) MarshalText() ([]byte, error) { return []byte(redacted), nil }

// Config holds the settings of a PostgreSQL-backed property store.
//
// URI takes precedence over the structured connection fields. Pool and
// timeout settings apply in both cases.
type Config struct {
	URI         string  `env:"POSTGRES_URI" yaml:"uri" json:"uri,omitempty"`
	Host        string  `env:"POSTGRES_HOST" envDefault:"localhost" yaml:"host" json:"host,omitempty"`
	Port        int     `env:"POSTGRES_PORT" envDefault:"5432" yaml:"port" json:"port,omitempty"`
	Database    string  `env:"POSTGRES_DATABASE" envDefault:"runtime" yaml:"database" json:"database"`
	User        string  `env:"POSTGRES_USER" envDefault:"runtime" yaml:"user" json:"user"`
	Password    Secret  `env:"POSTGRES_PASSWORD" yaml:"password" json:"-"`
	SSLMode     SSLMode `env:"POSTGRES_SSLMODE" envDefault:"prefer" yaml:"ssl_mode" json:"ssl_mode,omitempty"`
	SSLRootCert string  `env:"POSTGRES_SSL_ROOT_CERT" yaml:"ssl_root_cert" json:"ssl_root_cert,omitempty"`

	MaxConns          int32         `env:"POSTGRES_MAX_CONNS" envDefault:"10" yaml:"max_conns" json:"max_conns,omitempty"`
	MinConns          int32         `env:"POSTGRES_MIN_CONNS" envDefault:"1" yaml:"min_conns" json:"min_conns,omitempty"`
	MaxConnLifetime   time.Duration `env:"POSTGRES_MAX_CONN_LIFETIME" envDefault:"1h" yaml:"max_conn_lifetime" json:"max_conn_lifetime,omitempty"`
	MaxConnIdleTime   time.Duration `env:"POSTGRES_MAX_CONN_IDLE_TIME" envDefault:"30m" yaml:"max_conn_idle_time" json:"max_conn_idle_time,omitempty"`
	HealthCheckPeriod time.Duration `env:"POSTGRES_HEALTH_CHECK_PERIOD" envDefault:"1m" yaml:"health_check_period" json:"health_check_period,omitempty"`
	ConnectTimeout    time.Duration `env:"POSTGRES_CONNECT_TIMEOUT" envDefault:"10s" yaml:"connect_timeout" json:"connect_timeout,omitempty"`

	// Table is the property table, optionally schema-qualified.
	Table string `env:"POSTGRES_TABLE" envDefault:"component_properties" yaml:"table" json:"table,omitempty"`

	// Migrate creates the property table on connect when it is missing.
	Migrate bool `env:"POSTGRES_MIGRATE" envDefault:"true" yaml:"migrate" json:"migrate"`
}

// DefaultConfig returns a configuration with the documented defaults.
func DefaultConfig() *Config {
	return &Config{
		Host:              DefaultHost,
		Port:              DefaultPort,
		Database:          DefaultDatabase,
		User:              DefaultUser,
		SSLMode:           SSLModePrefer,
		MaxConns:          DefaultMaxConns,
		MinConns:          DefaultMinConns,
		MaxConnLifetime:   DefaultMaxConnLifetime,
		MaxConnIdleTime:   DefaultMaxConnIdleTime,
		HealthCheckPeriod: DefaultHealthCheckPeriod,
		ConnectTimeout:    DefaultConnectTimeout,
		Table:             DefaultTable,
		Migrate:           true,
	}
}

// Validate fills zero values with defaults and checks the rest.
func (c *Config) Validate() error {
	c.applyDefaults()

	if err := validateTable(c.Table); err != nil {
		return err
	}
	if c.MaxConns < c.MinConns {
		return sserr.Newf(sserr.CodeValidationRange,
			"postgres: config max_conns (%d) must be >= min_conns (%d)", c.MaxConns, c.MinConns)
	}

	if c.URI != "" {
		u, err := url.Parse(c.URI)
		if err != nil {
			return sserr.Wrap(err, sserr.CodeValidationFormat, "postgres: config URI is invalid")
		}
		if u.Scheme != "postgres" && u.Scheme != "postgresql" {
			return sserr.Newf(sserr.CodeValidationFormat,
				"postgres: config URI scheme must be postgres://, got %q", u.Scheme)
		}
		return nil
	}

	if c.Port < 1 || c.Port > 65535 {
		return sserr.Newf(sserr.CodeValidationRange,
			"postgres: config port must be between 1 and 65535, got %d", c.Port)
	}
	if c.Database == "" {
		return sserr.New(sserr.CodeValidationRequired, "postgres: config database must not be empty")
	}
	if c.User == "" {
		return sserr.New(sserr.CodeValidationRequired, "postgres: config user must not be empty")
	}
	if !c.SSLMode.Valid() {
		return sserr.Newf(sserr.CodeValidationFormat, "postgres: config ssl_mode %q is not valid", c.SSLMode)
	}
	if c.SSLRootCert != "" {
		if _, err := os.Stat(c.SSLRootCert); err != nil {
			return sserr.Wrapf(err, sserr.CodeValidationFormat,
				"postgres: config ssl_root_cert %q is not accessible", c.SSLRootCert)
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.URI == "" {
		if c.Host == "" {
			c.Host = DefaultHost
		}
		if c.Port == 0 {
			c.Port = DefaultPort
		}
		if c.SSLMode == "" {
			c.SSLMode = SSLModePrefer
		}
	}
	if c.MaxConns == 0 {
		c.MaxConns = DefaultMaxConns
	}
	if c.MinConns == 0 {
		c.MinConns = DefaultMinConns
	}
	if c.MaxConnLifetime == 0 {
		c.MaxConnLifetime = DefaultMaxConnLifetime
	}
	if c.MaxConnIdleTime == 0 {
		c.MaxConnIdleTime = DefaultMaxConnIdleTime
	}
	if c.HealthCheckPeriod == 0 {
		c.HealthCheckPeriod = DefaultHealthCheckPeriod
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Table == "" {
		c.Table = DefaultTable
	}
}

// validateTable accepts "table" or "schema.table" made of identifier
// characters.
func validateTable(table string) error {
	parts := strings.Split(table, ".")
	if len(parts) > 2 {
		return sserr.Newf(sserr.CodeValidationFormat, "postgres: config table %q has too many parts", table)
	}
	for _, p := range parts {
		if p == "" {
			return sserr.Newf(sserr.CodeValidationFormat, "postgres: config table %q is malformed", table)
		}
		for i, r := range p {
			letter := r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
			if !letter && (i == 0 || r < '0' || r > '9') {
				return sserr.Newf(sserr.CodeValidationFormat,
					"postgres: config table %q contains invalid character %q", table, r)
			}
		}
	}
	return nil
}

// ConnectionString returns URI, or a postgres:// URL built from the
// structured fields. It contains the password in clear text.
func (c *Config) ConnectionString() string {
	if c.URI != "" {
		return c.URI
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password.Value()),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   c.Database,
	}
	q := u.Query()
	if c.SSLMode != "" {
		q.Set("sslmode", string(c.SSLMode))
	}
	if c.ConnectTimeout > 0 {
		q.Set("connect_timeout", fmt.Sprintf("%d", int(c.ConnectTimeout.Seconds())))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// tlsConfig returns a TLS configuration trusting SSLRootCert, or nil when
// no custom CA is configured.
func (c *Config) tlsConfig() (*tls.Config, error) {
	if c.SSLRootCert == "" || c.SSLMode == SSLModeDisable {
		return nil, nil
	}
	pem, err := os.ReadFile(c.SSLRootCert)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to read CA certificate %q: %w", c.SSLRootCert, err)
	}
	roots := x509.NewCertPool()
	if !roots.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("postgres: failed to parse CA certificate from %q", c.SSLRootCert)
	}

	cfg := &tls.Config{RootCAs: roots, MinVersion: tls.VersionTLS12}
	switch c.SSLMode {
	case SSLModeVerifyFull:
		cfg.ServerName = c.Host
	case SSLModeVerifyCA:
		// Chain only; the hostname is not checked.
		cfg.InsecureSkipVerify = true
		cfg.VerifyConnection = func(cs tls.ConnectionState) error {
			if len(cs.PeerCertificates) == 0 {
				return errors.New("postgres: server did not present a certificate")
			}
			opts := x509.VerifyOptions{Roots: roots, Intermediates: x509.NewCertPool()}
			for _, cert := range cs.PeerCertificates[1:] {
				opts.Intermediates.AddCert(cert)
			}
			_, err := cs.PeerCertificates[0].Verify(opts)
			return err
		}
	default:
		cfg.InsecureSkipVerify = true
	}
	return cfg, nil
}

// truncateSQL shortens sql to at most maxSQLTruncateLen bytes.
func truncateSQL(sql string) string {
	if len(sql) <= maxSQLTruncateLen {
		return sql
	}
	return sql[:maxSQLTruncateLen] + "..."
}
