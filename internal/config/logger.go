package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// NewLogger creates a structured logger that writes JSON to a log file and,
// in debug mode, to stderr as well.
func NewLogger(cfg *Config, name string) (*slog.Logger, error) {
	if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	logPath := cfg.LogDir + "/" + name + ".log"
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", logPath, err)
	}

	level := slog.LevelInfo
	var out io.Writer = file
	if cfg.Debug {
		level = slog.LevelDebug
		out = io.MultiWriter(file, os.Stderr)
	}

	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	return slog.New(handler), nil
}
