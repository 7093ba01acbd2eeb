package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config describes how the application logger should behave.
type Config struct {
	Level       string
	Format      string
	OutputPaths []string
	File        FileConfig
	Audit       AuditConfig
}

// FileConfig controls the rotated log file kept next to the console output.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// AuditConfig controls audit log output behaviour.
type AuditConfig struct {
	Enabled    bool
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

var (
	defaultLogger *slog.Logger
	auditLogger   *slog.Logger
	level         = new(slog.LevelVar)
	once          sync.Once
	mu            sync.Mutex
	closers       []io.Closer
	initErr       error
)

// Init configures the global logger instances. Only the first call has an effect.
func Init(cfg Config) error {
	once.Do(func() {
		level.Set(parseLevel(cfg.Level))
		handlerOpts := &slog.HandlerOptions{Level: level}

		handler, err := buildHandler(cfg, handlerOpts)
		if err != nil {
			initErr = err
			return
		}
		defaultLogger = slog.New(handler)

		auditLogger = defaultLogger
		if cfg.Audit.Enabled {
			audit, err := buildAuditLogger(cfg.Audit)
			if err != nil {
				initErr = err
				return
			}
			auditLogger = audit
		}
	})
	if initErr != nil {
		return initErr
	}
	if defaultLogger == nil {
		return errors.New("logger already initialised")
	}
	return nil
}

func buildHandler(cfg Config, opts *slog.HandlerOptions) (slog.Handler, error) {
	writers := make([]io.Writer, 0, len(cfg.OutputPaths)+1)
	if len(cfg.OutputPaths) == 0 {
		writers = append(writers, os.Stdout)
	} else {
		for _, out := range cfg.OutputPaths {
			writer, err := openWriter(out)
			if err != nil {
				return nil, err
			}
			writers = append(writers, writer)
		}
	}
	if cfg.File.Path != "" {
		writers = append(writers, rotating(cfg.File.Path, cfg.File.MaxSizeMB, cfg.File.MaxBackups, cfg.File.MaxAgeDays))
	}

	var writer io.Writer
	if len(writers) == 1 {
		writer = writers[0]
	} else {
		writer = io.MultiWriter(writers...)
	}

	if strings.EqualFold(cfg.Format, "json") {
		return slog.NewJSONHandler(writer, opts), nil
	}
	return slog.NewTextHandler(writer, opts), nil
}

func buildAuditLogger(cfg AuditConfig) (*slog.Logger, error) {
	if cfg.Path == "" {
		return nil, errors.New("audit log path cannot be empty when enabled")
	}
	writer := rotating(cfg.Path, cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays)
	handler := slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: slog.LevelInfo})
	return slog.New(handler), nil
}

// rotating returns a lumberjack writer. The file and its directory are created
// lazily on the first write.
func rotating(path string, maxSizeMB, maxBackups, maxAgeDays int) io.Writer {
	if maxSizeMB <= 0 {
		maxSizeMB = 100
	}
	if maxBackups <= 0 {
		maxBackups = 7
	}
	if maxAgeDays <= 0 {
		maxAgeDays = 30
	}
	writer := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   true,
	}
	mu.Lock()
	closers = append(closers, writer)
	mu.Unlock()
	return writer
}

func openWriter(path string) (io.Writer, error) {
	switch strings.ToLower(path) {
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	default:
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", path, err)
		}
		mu.Lock()
		closers = append(closers, file)
		mu.Unlock()
		return file, nil
	}
}

func parseLevel(value string) slog.Level {
	switch strings.ToLower(value) {
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

// SetLevel changes the minimum level of the default logger at runtime.
func SetLevel(value string) {
	level.Set(parseLevel(value))
}

// L returns the structured logger instance.
func L() *slog.Logger {
	if defaultLogger == nil {
		_ = Init(Config{})
	}
	return defaultLogger
}

// Audit returns the audit logger.
func Audit() *slog.Logger {
	if auditLogger == nil {
		return L()
	}
	return auditLogger
}

// Sync flushes buffered log entries to their outputs and closes log files.
// Rotated files are reopened on the next write, so logging after Sync is safe.
func Sync() error {
	mu.Lock()
	defer mu.Unlock()
	var err error
	for _, closer := range closers {
		err = errors.Join(err, closer.Close())
	}
	return err
}

// Named returns a child logger with the provided component name.
func Named(name string) *slog.Logger {
	return L().With(slog.String("component", name))
}
