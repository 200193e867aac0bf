package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/stricklysoft-runtime/internal/testutil"
	"github.com/StricklySoft/stricklysoft-runtime/pkg/config"
	sserr "github.com/StricklySoft/stricklysoft-runtime/pkg/errors"
)

func defaultConfig(t *testing.T) Config {
	t.Helper()
	var cfg Config
	require.NoError(t, config.New().WithLookup(testutil.MapLookup(nil)).Load(&cfg))
	return cfg
}

// ===========================================================================
// Config Tests
// ===========================================================================

func TestConfig_Defaults(t *testing.T) {
	t.Parallel()
	cfg := defaultConfig(t)
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, FormatJSON, cfg.Format)
	assert.Equal(t, 100, cfg.MaxSizeMB)
	assert.Empty(t, cfg.File)
}

func TestConfig_FromEnvironment(t *testing.T) {
	t.Parallel()
	env := map[string]string{
		"RUNTIME_LOG_LEVEL":  "debug",
		"RUNTIME_LOG_FORMAT": "text",
	}
	var cfg Config
	err := config.New().
		WithEnvPrefix("RUNTIME_LOG").
		WithLookup(testutil.MapLookup(env)).
		Load(&cfg)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Level)
	assert.Equal(t, FormatText, cfg.Format)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*Config)
		code   sserr.Code
	}{
		{name: "level", mutate: func(c *Config) { c.Level = "loud" }, code: sserr.CodeValidationFormat},
		{name: "format", mutate: func(c *Config) { c.Format = "xml" }, code: sserr.CodeValidationFormat},
		{name: "rotation", mutate: func(c *Config) { c.MaxBackups = -1 }, code: sserr.CodeValidationRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{Level: "info", Format: FormatJSON}
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, sserr.HasCode(err, tt.code))

			_, err = New(cfg)
			assert.True(t, sserr.HasCode(err, tt.code))
		})
	}
}

// ===========================================================================
// Level Tests
// ===========================================================================

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want slog.Level
		ok   bool
	}{
		{"debug", slog.LevelDebug, true},
		{"INFO", slog.LevelInfo, true},
		{"", slog.LevelInfo, true},
		{"warning", slog.LevelWarn, true},
		{" error ", slog.LevelError, true},
		{"trace", DefaultLevel, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseLevel(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
	assert.Equal(t, DefaultLevel, ParseLevelOrDefault("verbose"))
}

// ===========================================================================
// Output Tests
// ===========================================================================

func TestNew_ConsoleFormats(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	l, err := NewWithWriter(Config{Level: "info", Format: FormatJSON}, &buf)
	require.NoError(t, err)

	l.Logger().Info("lifecycle: transition completed", "component", "root.db")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "lifecycle: transition completed", record["msg"])
	assert.Equal(t, "root.db", record["component"])

	buf.Reset()
	l, err = NewWithWriter(Config{Level: "info", Format: FormatText}, &buf)
	require.NoError(t, err)
	l.Logger().Info("hello", "k", "v")
	assert.Contains(t, buf.String(), "msg=hello k=v")
	assert.NoError(t, l.Close())
	assert.NoError(t, l.Rotate())
}

func TestLogger_SetLevel(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	l, err := NewWithWriter(Config{Level: "warn", Format: FormatText}, &buf)
	require.NoError(t, err)

	l.Logger().Info("hidden")
	assert.Empty(t, buf.String())

	l.SetLevel(slog.LevelDebug)
	assert.Equal(t, slog.LevelDebug, l.Level())
	l.Logger().Debug("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestNew_FileOutput(t *testing.T) {
	t.Parallel()
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "nested", "runtime.log")
	l, err := NewWithWriter(Config{Level: "info", Format: FormatText, File: path, MaxSizeMB: 1}, &console)
	require.NoError(t, err)

	l.Logger().Error("lifecycle: transition stuck", "fault_code", "STUCK_001")
	require.NoError(t, l.Close())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	require.Len(t, lines, 1)
	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &record))
	assert.Equal(t, "STUCK_001", record["fault_code"])
	assert.Contains(t, console.String(), "fault_code=STUCK_001")
}

func TestLogger_RotateFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	l, err := NewWithWriter(Config{Level: "info", Format: FormatJSON, File: filepath.Join(dir, "runtime.log")}, &bytes.Buffer{})
	require.NoError(t, err)
	defer l.Close()

	l.Logger().Info("before")
	require.NoError(t, l.Rotate())
	l.Logger().Info("after")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "the rotated backup and the live file")
}
