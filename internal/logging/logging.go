package logging

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/1broseidon/iccsync/internal/config"
)

var logFile *lumberjack.Logger

// Setup installs the default slog logger. Records go to stderr, plus a
// rotating file when cfg.File is set. debug forces the debug level.
func Setup(cfg config.LoggingConfig, debug bool) (*slog.Logger, error) {
	return setup(cfg, debug, os.Stderr)
}

func setup(cfg config.LoggingConfig, debug bool, console io.Writer) (*slog.Logger, error) {
	writers := []io.Writer{console}

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		Close()
		logFile = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxFiles,
			MaxAge:     cfg.MaxAgeDays,
		}
		writers = append(writers, logFile)
	}

	level := ParseLevel(cfg.Level)
	if debug {
		level = slog.LevelDebug
	}

	out := io.MultiWriter(writers...)
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	// xgbutil and other libraries write through the standard logger.
	log.SetOutput(out)
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	logger.Debug("logging initialized", "file", cfg.File, "level", level.String())
	return logger, nil
}

// ParseLevel maps a config level name to a slog level. Unknown names
// yield info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warning", "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Close closes the log file, if any.
func Close() {
	if logFile == nil {
		return
	}
	if err := logFile.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to close log file: %v\n", err)
	}
	logFile = nil
}
