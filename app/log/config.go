// Copyright © 2024-2026 Threshnet Inc. Licensed under the terms of a Business Source License 1.1

package log

import (
	"sync"
	"testing"

	zaplogfmt "github.com/jsternberg/zap-logfmt"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/threshnet/attestor/app/errors"
	"github.com/threshnet/attestor/app/z"
)

// zapLogger abstracts a zap logger.
type zapLogger interface {
	Debug(string, ...zap.Field)
	Info(string, ...zap.Field)
	Warn(string, ...zap.Field)
	Error(string, ...zap.Field)
}

var (
	initMu sync.RWMutex
	// logger is the global logger.
	logger zapLogger = newDefaultLogger()
)

// Config defines the logging configuration.
type Config struct {
	Level  string // debug, info, warn or error
	Format string // console, logfmt or json
}

// ZapLevel returns the zapcore level.
func (c Config) ZapLevel() (zapcore.Level, error) {
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return 0, errors.Wrap(err, "parse level")
	}

	return level, nil
}

// DefaultConfig returns the default logging config.
func DefaultConfig() Config {
	return Config{
		Level:  zapcore.DebugLevel.String(),
		Format: "console",
	}
}

// InitLogger initialises the global logger based on the provided config.
func InitLogger(config Config) error {
	initMu.Lock()
	defer initMu.Unlock()

	level, err := config.ZapLevel()
	if err != nil {
		return err
	}

	writer, _, err := zap.Open("stderr")
	if err != nil {
		return errors.Wrap(err, "open writer")
	}

	if config.Format == "console" {
		logger = newConsoleLogger(level, writer)
		return nil
	}

	logger, err = newStructuredLogger(config.Format, level, writer)

	return err
}

// InitConsoleForT initialises a console logger for testing purposes.
func InitConsoleForT(_ *testing.T, ws zapcore.WriteSyncer) {
	initMu.Lock()
	defer initMu.Unlock()
	logger = newConsoleLogger(zapcore.DebugLevel, ws)
}

// InitLogfmtForT initialises a logfmt logger for testing purposes.
func InitLogfmtForT(t *testing.T, ws zapcore.WriteSyncer) {
	t.Helper()
	initMu.Lock()
	defer initMu.Unlock()

	var err error
	logger, err = newStructuredLogger("logfmt", zapcore.DebugLevel, ws)
	require.NoError(t, err)
}

// newStructuredLogger returns an opinionated logfmt or json logger.
func newStructuredLogger(format string, level zapcore.Level, ws zapcore.WriteSyncer) (*zap.Logger, error) {
	encConfig := zap.NewProductionEncoderConfig()
	encConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder

	var encoder zapcore.Encoder
	switch format {
	case "logfmt":
		encoder = zaplogfmt.NewEncoder(encConfig)
	case "json":
		encoder = zapcore.NewJSONEncoder(encConfig)
	default:
		return nil, errors.New("invalid logger format; not console, logfmt or json", z.Str("format", format))
	}

	return zap.New(
		zapcore.NewCore(encoder, ws, zap.NewAtomicLevelAt(level)),
		zap.WithCaller(true),
	), nil
}

// newDefaultLogger returns an opinionated console logger writing to stderr.
func newDefaultLogger() *zap.Logger {
	writer, _, _ := zap.Open("stderr")
	return newConsoleLogger(zapcore.DebugLevel, writer)
}

// newConsoleLogger returns an opinionated console logger.
func newConsoleLogger(level zapcore.Level, ws zapcore.WriteSyncer) *zap.Logger {
	encConfig := zap.NewDevelopmentEncoderConfig()
	encConfig.ConsoleSeparator = " "
	encConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")

	return zap.New(
		zapcore.NewCore(
			zapcore.NewConsoleEncoder(encConfig),
			ws,
			zap.NewAtomicLevelAt(level),
		),
	)
}
