package telemetry

import (
	"fmt"
	"io"
	"log/slog"
)

// SetupLogger installs the default slog logger. level is one of debug, info, warn, error.
func SetupLogger(w io.Writer, level string, json bool) error {
	var lvl slog.Level
	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return fmt.Errorf("log level: %w", err)
		}
	}

	opts := &slog.HandlerOptions{Level: lvl}

	var h slog.Handler = slog.NewTextHandler(w, opts)
	if json {
		h = slog.NewJSONHandler(w, opts)
	}

	slog.SetDefault(slog.New(h))
	return nil
}
