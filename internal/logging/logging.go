package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvDebug enables debug logging when set to "1".
const EnvDebug = "MELTY_DEBUG"

// Options selects where and whether to log.
type Options struct {
	Debug bool
	// Dir holds the log file; usually <root>/.melty/logs.
	Dir string
}

// LogFile returns the log file path inside dir.
func LogFile(dir string) string {
	return filepath.Join(dir, "melty.log")
}

// Enabled reports whether logging is on for opts.
func Enabled(opts Options) bool {
	return opts.Debug || os.Getenv(EnvDebug) == "1"
}

// New builds the process logger. Logging goes to a JSON file so it never
// interleaves with the terminal UI; without debug it is a no-op logger.
func New(opts Options) (*zap.Logger, error) {
	if !Enabled(opts) {
		return zap.NewNop(), nil
	}
	if opts.Dir == "" {
		return nil, fmt.Errorf("no log directory configured")
	}
	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	config.OutputPaths = []string{LogFile(opts.Dir)}
	config.ErrorOutputPaths = []string{LogFile(opts.Dir)}
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}
