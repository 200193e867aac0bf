package minio

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/stricklysoft-runtime/internal/testutil"
	"github.com/StricklySoft/stricklysoft-runtime/pkg/config"
	sserr "github.com/StricklySoft/stricklysoft-runtime/pkg/errors"
)

// ===========================================================================
// Secret Tests
// ===========================================================================

func TestSecret_Redacted(t *testing.T) {
	t.Parallel()
	s := Secret("super-secret-key")
	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", s.GoString())
	assert.Equal(t, "super-secret-key", s.Value())

	text, err := s.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "[REDACTED]", string(text))
}

// ===========================================================================
// Config Tests
// ===========================================================================

func TestConfig_LoadFromEnvironment(t *testing.T) {
	t.Parallel()
	env := map[string]string{
		"RUNTIME_MINIO_ACCESS_KEY":    "runtime",
		"RUNTIME_MINIO_SECRET_KEY":    "minio123",
		"RUNTIME_MINIO_PREFIX":        "edge",
		"RUNTIME_MINIO_CREATE_BUCKET": "true",
	}
	var cfg Config
	err := config.New().
		WithEnvPrefix("RUNTIME").
		WithLookup(testutil.MapLookup(env)).
		Load(&cfg)

	require.NoError(t, err)
	assert.Equal(t, DefaultEndpoint, cfg.Endpoint)
	assert.Equal(t, "minio123", cfg.SecretKey.Value())
	assert.Equal(t, DefaultBucket, cfg.Bucket)
	assert.Equal(t, "edge/", cfg.Prefix, "Validate appends the separator")
	assert.True(t, cfg.CreateBucket)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		cfg  Config
		code sserr.Code
	}{
		{name: "no endpoint", cfg: Config{AccessKey: "k"}, code: sserr.CodeValidationRequired},
		{name: "endpoint with scheme", cfg: Config{Endpoint: "http://minio:9000", AccessKey: "k"}, code: sserr.CodeValidationFormat},
		{name: "no access key", cfg: Config{Endpoint: "minio:9000"}, code: sserr.CodeValidationRequired},
		{name: "short bucket", cfg: Config{Endpoint: "minio:9000", AccessKey: "k", Bucket: "ab"}, code: sserr.CodeValidationFormat},
		{name: "uppercase bucket", cfg: Config{Endpoint: "minio:9000", AccessKey: "k", Bucket: "Props"}, code: sserr.CodeValidationFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			require.Error(t, err)
			assert.True(t, sserr.HasCode(err, tt.code), "got %v", err)
		})
	}
}

func TestConfig_ValidateAppliesDefaults(t *testing.T) {
	t.Parallel()
	cfg := Config{Endpoint: "minio:9000", AccessKey: "k"}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultRegion, cfg.Region)
	assert.Equal(t, DefaultBucket, cfg.Bucket)
	assert.Empty(t, cfg.Prefix, "an empty prefix stays empty")
}

// ===========================================================================
// Statement Truncation Tests
// ===========================================================================

func TestTruncateStatement(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "GET k", truncateStatement("GET k"))

	exact := strings.Repeat("a", maxStatementTruncateLen)
	assert.Equal(t, exact, truncateStatement(exact))

	multi := strings.Repeat("é", maxStatementTruncateLen+5)
	got := truncateStatement(multi)
	assert.Equal(t, maxStatementTruncateLen+3, len([]rune(got)))
	assert.True(t, strings.HasSuffix(got, "..."))
}
