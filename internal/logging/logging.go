package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config controls where the JSON log stream goes and how it rotates.
type Config struct {
	// Level is the minimum level recorded (debug, info, warn, error).
	Level string
	// FilePath is the log file. Its parent directory is created on demand.
	FilePath string
	// MaxSizeMB caps the file size before rotation.
	MaxSizeMB int
	// MaxFiles caps how many rotated files are kept.
	MaxFiles int
	// WriteToStderr mirrors every record to stderr. CLI commands leave
	// this off so structured records never mix with console output.
	WriteToStderr bool
}

// DefaultConfig logs at info level to ~/.kbresolve/logs/kbresolve.log.
func DefaultConfig() Config {
	return Config{
		Level:         "info",
		FilePath:      DefaultLogPath(),
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: true,
	}
}

// DebugConfig is DefaultConfig at debug level.
func DebugConfig() Config {
	cfg := DefaultConfig()
	cfg.Level = "debug"
	return cfg
}

// Setup opens the rotating log file and builds a JSON slog logger over it.
// The returned cleanup flushes and closes the file; callers defer it for
// the life of the command.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	writer, err := NewRotatingWriter(cfg.FilePath, cfg.MaxSizeMB, cfg.MaxFiles)
	if err != nil {
		return nil, nil, err
	}

	var sink io.Writer = writer
	if cfg.WriteToStderr {
		sink = io.MultiWriter(writer, os.Stderr)
	}

	logger := slog.New(slog.NewJSONHandler(sink, &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}))

	cleanup := func() {
		_ = writer.Sync()
		_ = writer.Close()
	}
	return logger, cleanup, nil
}

// parseLevel maps a config level string to slog. Unknown strings fall back
// to info rather than erroring; a typo in a config file should not take
// logging down with it.
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
