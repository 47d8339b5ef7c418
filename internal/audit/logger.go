package audit

import (
	"context"
	"fmt"
	"time"
)

// Logger records decision and mutation events. All logging is best-effort:
// a failure to record never blocks or alters an authorization decision.
type Logger interface {
	// LogDecision records an authorization decision
	LogDecision(ctx context.Context, event *DecisionEvent)

	// LogAclChange records an ACL mutation batch
	LogAclChange(ctx context.Context, event *AclChangeEvent)

	// Flush flushes pending events
	Flush() error

	// Close closes the logger, flushing remaining events
	Close() error
}

// Config for the audit logger
type Config struct {
	// Enabled enables audit logging
	Enabled bool `yaml:"enabled"`

	// Output type: stdout or file
	Type string `yaml:"type"`

	// For file output
	FilePath       string `yaml:"filePath"`
	FileMaxSize    int    `yaml:"fileMaxSizeMB"`
	FileMaxAge     int    `yaml:"fileMaxAgeDays"`
	FileMaxBackups int    `yaml:"fileMaxBackups"`

	// Performance tuning
	BufferSize    int           `yaml:"bufferSize"`
	FlushInterval time.Duration `yaml:"flushInterval"`
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		Enabled:        true,
		Type:           "stdout",
		BufferSize:     1000,
		FlushInterval:  100 * time.Millisecond,
		FileMaxSize:    100,
		FileMaxAge:     30,
		FileMaxBackups: 10,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.Type != "stdout" && c.Type != "file" {
		return fmt.Errorf("invalid audit type: %s (must be stdout or file)", c.Type)
	}
	if c.Type == "file" && c.FilePath == "" {
		return fmt.Errorf("file path is required for file output")
	}

	if c.BufferSize <= 0 {
		c.BufferSize = 1000
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 100 * time.Millisecond
	}
	return nil
}

// NewLogger creates a new audit logger from configuration
func NewLogger(cfg *Config) (Logger, error) {
	if cfg == nil {
		c := DefaultConfig()
		cfg = &c
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		return NopLogger(), nil
	}

	var writer Writer
	var err error
	switch cfg.Type {
	case "file":
		writer, err = NewFileWriter(cfg.FilePath, cfg.FileMaxSize, cfg.FileMaxAge, cfg.FileMaxBackups)
		if err != nil {
			return nil, fmt.Errorf("create file writer: %w", err)
		}
	default:
		writer = NewStdoutWriter()
	}

	return newAsyncLogger(writer, *cfg), nil
}

// nopLogger discards all events
type nopLogger struct{}

// NopLogger returns a logger that discards everything
func NopLogger() Logger { return nopLogger{} }

func (nopLogger) LogDecision(context.Context, *DecisionEvent)   {}
func (nopLogger) LogAclChange(context.Context, *AclChangeEvent) {}
func (nopLogger) Flush() error                                  { return nil }
func (nopLogger) Close() error                                  { return nil }
