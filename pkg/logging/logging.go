// Package logging builds the process logger.
//
// Console output goes to stderr in the configured format. When a file is
// configured, records are also written as JSON to that file, which is
// rotated by size:
//
//	cfg := config.MustLoad[logging.Config](config.New().WithEnvPrefix("RUNTIME_LOG"))
//	logs, err := logging.New(cfg)
//	if err != nil {
//	    return err
//	}
//	defer logs.Close()
//	slog.SetDefault(logs.Logger())
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	slogmulti "github.com/samber/slog-multi"
	"gopkg.in/natefinch/lumberjack.v2"

	sserr "github.com/StricklySoft/stricklysoft-runtime/pkg/errors"
)

// Output formats.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// Config holds logger settings.
type Config struct {
	// Level is one of debug, info, warn or error.
	Level string `env:"LEVEL" envDefault:"info" yaml:"level" json:"level"`

	// Format of the console output: json or text.
	Format string `env:"FORMAT" envDefault:"json" yaml:"format" json:"format"`

	// File, when set, receives a JSON copy of every record.
	File string `env:"FILE" yaml:"file" json:"file"`

	// MaxSizeMB is the size at which the file is rotated.
	MaxSizeMB int `env:"MAX_SIZE_MB" envDefault:"100" yaml:"max_size_mb" json:"max_size_mb"`

	// MaxBackups is the number of rotated files kept.
	MaxBackups int `env:"MAX_BACKUPS" envDefault:"5" yaml:"max_backups" json:"max_backups"`

	// MaxAgeDays is the age after which rotated files are removed.
	MaxAgeDays int `env:"MAX_AGE_DAYS" envDefault:"28" yaml:"max_age_days" json:"max_age_days"`

	// Compress gzips rotated files.
	Compress bool `env:"COMPRESS" yaml:"compress" json:"compress"`
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if _, ok := ParseLevel(c.Level); !ok {
		return sserr.Newf(sserr.CodeValidationFormat,
			"logging: unknown level %q", c.Level)
	}
	switch strings.ToLower(c.Format) {
	case FormatJSON, FormatText:
	default:
		return sserr.Newf(sserr.CodeValidationFormat,
			"logging: unknown format %q", c.Format)
	}
	if c.MaxSizeMB < 0 || c.MaxBackups < 0 || c.MaxAgeDays < 0 {
		return sserr.New(sserr.CodeValidationRange,
			"logging: rotation limits must not be negative")
	}
	return nil
}

// Logger owns the process logger and its file output.
type Logger struct {
	logger *slog.Logger
	level  *slog.LevelVar
	file   *lumberjack.Logger
}

// New builds a logger writing to stderr.
func New(cfg Config) (*Logger, error) {
	return NewWithWriter(cfg, os.Stderr)
}

// NewWithWriter builds a logger whose console output goes to w.
func NewWithWriter(cfg Config, w io.Writer) (*Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level := new(slog.LevelVar)
	level.Set(ParseLevelOrDefault(cfg.Level))
	opts := &slog.HandlerOptions{Level: level}

	var console slog.Handler
	if strings.ToLower(cfg.Format) == FormatText {
		console = slog.NewTextHandler(w, opts)
	} else {
		console = slog.NewJSONHandler(w, opts)
	}

	l := &Logger{level: level}
	if cfg.File == "" {
		l.logger = slog.New(console)
		return l, nil
	}

	dir := filepath.Dir(cfg.File)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, sserr.Wrapf(err, sserr.CodeInternalConfiguration,
			"logging: failed to create log directory %q", dir)
	}
	l.file = &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	l.logger = slog.New(slogmulti.Fanout(
		console,
		slog.NewJSONHandler(l.file, opts),
	))
	return l, nil
}

// Logger returns the configured logger.
func (l *Logger) Logger() *slog.Logger { return l.logger }

// SetLevel changes the level of every output at runtime.
func (l *Logger) SetLevel(level slog.Level) { l.level.Set(level) }

// Level returns the current level.
func (l *Logger) Level() slog.Level { return l.level.Level() }

// Rotate closes the current log file and starts a new one. It is a no-op
// without file output.
func (l *Logger) Rotate() error {
	if l.file == nil {
		return nil
	}
	return l.file.Rotate()
}

// Close closes the log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
