// ABOUTME: Zap logger construction for the cookmode CLI
// ABOUTME: Console and optional file output at a configurable level
package logging

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures the logger
type Options struct {
	Level string
	// File, when set, receives JSON logs in addition to the console
	File string
	// Quiet drops console output, for when a TUI owns the terminal
	Quiet bool
}

// New builds a sugared logger and returns a sync func to flush it on exit
func New(opts Options) (*zap.SugaredLogger, func(), error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}

	var cores []zapcore.Core
	if !opts.Quiet {
		enc := zap.NewDevelopmentEncoderConfig()
		enc.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(enc),
			zapcore.Lock(os.Stderr),
			level,
		))
	}

	var file *os.File
	if opts.File != "" {
		file, err = os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(file),
			level,
		))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	sync := func() {
		_ = logger.Sync()
		if file != nil {
			_ = file.Close()
		}
	}
	return logger.Sugar(), sync, nil
}

// ParseLevel maps a level name to a zap level. Empty means info.
func ParseLevel(name string) (zapcore.Level, error) {
	if name == "" {
		return zapcore.InfoLevel, nil
	}
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(name))); err != nil {
		return level, fmt.Errorf("unknown log level %q", name)
	}
	return level, nil
}
