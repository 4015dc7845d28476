// Package logging holds the process logger used by the trajstore packages.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	mu     sync.RWMutex
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
)

// Config holds logger configuration.
type Config struct {
	Level  string // debug, info, warn or error; anything else means info
	Format string // "json" or "text"
	Output io.Writer
}

// Init replaces the process logger. It may be called again, for instance by
// tests that capture output.
func Init(cfg Config) *slog.Logger {
	w := cfg.Output
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}

	var h slog.Handler
	if cfg.Format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}

	mu.Lock()
	defer mu.Unlock()
	logger = slog.New(h)
	return logger
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Get returns the process logger.
func Get() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// WithComponent returns a logger tagged with a component name.
func WithComponent(name string) *slog.Logger {
	return Get().With("component", name)
}

// WithTable returns a logger tagged with a table name.
func WithTable(table string) *slog.Logger {
	return Get().With("table", table)
}

// WithDataset returns a logger tagged with a dataset id.
func WithDataset(id string) *slog.Logger {
	return Get().With("dataset", id)
}
