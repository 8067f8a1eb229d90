// Package log configures the zerolog loggers shared by the minian packages.
package log

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config captures options for configuring the package logger.
type Config struct {
	Level   string    // optional log level ("debug", "info", etc.)
	Output  io.Writer // optional writer (defaults to os.Stderr)
	Service string    // optional service name attached to every log entry
}

var (
	mu          sync.RWMutex
	configured  bool
	base        zerolog.Logger
	defaultOnce sync.Once
	formatOnce  sync.Once
)

// Configure replaces the base logger. Loggers derived earlier keep their old
// configuration.
func Configure(cfg Config) {
	l := newLogger(cfg)
	mu.Lock()
	base = l
	configured = true
	mu.Unlock()
}

func newLogger(cfg Config) zerolog.Logger {
	level := zerolog.WarnLevel
	if cfg.Level != "" {
		if parsed, err := zerolog.ParseLevel(cfg.Level); err == nil {
			level = parsed
		}
	} else if env := os.Getenv("LOG_LEVEL"); env != "" {
		if parsed, err := zerolog.ParseLevel(env); err == nil {
			level = parsed
		}
	}
	formatOnce.Do(func() {
		zerolog.TimeFieldFormat = time.RFC3339
	})

	writer := cfg.Output
	if writer == nil {
		writer = os.Stderr
	}

	service := cfg.Service
	if service == "" {
		service = "minian"
	}

	return zerolog.New(writer).Level(level).With().
		Timestamp().
		Str("service", service).
		Logger()
}

// logger returns the base logger, installing the default one on first use
// unless Configure ran before.
func logger() zerolog.Logger {
	defaultOnce.Do(func() {
		mu.Lock()
		defer mu.Unlock()
		if !configured {
			base = newLogger(Config{})
			configured = true
		}
	})
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// Base returns the configured base logger instance.
func Base() zerolog.Logger {
	return logger()
}

// WithComponent returns a child logger annotated with the given component name.
func WithComponent(component string) zerolog.Logger {
	return logger().With().Str("component", component).Logger()
}
