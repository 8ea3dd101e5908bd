package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"imgdiff/internal/config"
)

// New returns a slog.Logger with the provided level string (info, debug, warn, error).
// format may be "json" or "text".
func New(level string, format string) *slog.Logger {
	return newLogger(os.Stdout, level, format)
}

// Setup configures global logging. When cfg.Logging.File is set, output goes
// to stdout and a size-rotated file.
func Setup(cfg *config.Config) (*slog.Logger, error) {
	var out io.Writer = os.Stdout

	if cfg.Logging.File != "" {
		path, err := config.ExpandUser(cfg.Logging.File)
		if err != nil {
			return nil, err
		}
		rotated := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    cfg.Logging.MaxSize,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAge:     cfg.Logging.MaxAge,
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, rotated)
	}

	logger := newLogger(out, cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	logger.Debug("imgdiff logging initialized",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
		"file", cfg.Logging.File,
	)
	return logger, nil
}

func newLogger(out io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// LogCompareStart logs the beginning of a comparison job.
func LogCompareStart(logger *slog.Logger, jobID, left, right, mode string) {
	logger.Info("comparison started",
		"id", jobID,
		"left", left,
		"right", right,
		"mode", mode,
	)
}

// LogCompareComplete logs successful completion of a comparison job.
func LogCompareComplete(logger *slog.Logger, jobID string, duration time.Duration, badness int64) {
	logger.Info("comparison completed",
		"id", jobID,
		"duration_ms", duration.Milliseconds(),
		"badness", badness,
	)
}

// LogCompareError logs comparison failures.
func LogCompareError(logger *slog.Logger, jobID string, duration time.Duration, err error) {
	logger.Error("comparison failed",
		"id", jobID,
		"duration_ms", duration.Milliseconds(),
		"error", err.Error(),
	)
}
