// Package logging wires up the daemon's structured logger: JSON output to a
// rotating file plus a human console sink, matching the zap/lumberjack
// pairing used across the rest of this toolkit.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Options controls where and how logs are written.
type Options struct {
	// FilePath is the rotating log file destination. Empty disables file logging.
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Level      zapcore.Level
}

// DefaultOptions returns sane defaults for a daemon running out of the
// working directory.
func DefaultOptions() Options {
	return Options{
		FilePath:   "discoverd.log",
		MaxSizeMB:  10,
		MaxBackups: 3,
		MaxAgeDays: 7,
		Level:      zapcore.InfoLevel,
	}
}

// New builds a *zap.Logger writing to stderr and, when FilePath is set, to a
// lumberjack-rotated file.
func New(opts Options) *zap.Logger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	consoleEncoder := zapcore.NewConsoleEncoder(encoderCfg)
	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.AddSync(os.Stderr), opts.Level),
	}

	if opts.FilePath != "" {
		fileEncoder := zapcore.NewJSONEncoder(encoderCfg)
		rotator := &lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
		}
		cores = append(cores, zapcore.NewCore(fileEncoder, zapcore.AddSync(rotator), opts.Level))
	}

	return zap.New(zapcore.NewTee(cores...))
}
