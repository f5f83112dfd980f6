package mission

import (
	"fmt"

	"github.com/westphae/gorocket/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLoggerConfig is a console config without stack traces. Debug mode logs
// everything and adds callers.
func NewLoggerConfig(cfg *config.Config) (zap.Config, error) {
	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	if cfg.LogLevel != "" {
		var err error
		if level, err = zap.ParseAtomicLevel(cfg.LogLevel); err != nil {
			return zap.Config{}, fmt.Errorf("logLevel: %w", err)
		}
	}
	if cfg.Debug {
		level.SetLevel(zap.DebugLevel)
	}
	return zap.Config{
		Level:    level,
		Encoding: "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		DisableCaller:     !cfg.Debug,
		DisableStacktrace: true,
		OutputPaths:       []string{"stderr"},
		ErrorOutputPaths:  []string{"stderr"},
	}, nil
}

// NewLogger builds the logger described by cfg.
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	zc, err := NewLoggerConfig(cfg)
	if err != nil {
		return nil, err
	}
	return zc.Build()
}
