package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"ragpipe/config"
	"ragpipe/internal/domain"
)

// New builds the process logger. Diagnostics go to w (stderr in the CLI) so
// they never mix with command output on stdout.
func New(cfg config.LoggingConfig, w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: level}
	switch cfg.Format {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, &domain.ConfigurationError{
			Field:  "logging.format",
			Reason: fmt.Sprintf("unknown format %q", cfg.Format),
		}
	}
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, &domain.ConfigurationError{
			Field:  "logging.level",
			Reason: fmt.Sprintf("unknown level %q", s),
		}
	}
}
