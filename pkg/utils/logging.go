package utils

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggerConfig configures the process logger.
type LoggerConfig struct {
	Level       string   `yaml:"level" split_words:"true"`
	Format      string   `yaml:"format" split_words:"true"` // "json" or "console"
	OutputPaths []string `yaml:"output_paths" split_words:"true"`
}

// ParseLogLevel parses a string log level, case-insensitively.
func ParseLogLevel(level string) (zapcore.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return zapcore.DebugLevel, nil
	case "INFO", "":
		return zapcore.InfoLevel, nil
	case "WARN", "WARNING":
		return zapcore.WarnLevel, nil
	case "ERROR":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("invalid log level: %s", level)
	}
}

// NewLogger builds a zap logger from cfg.
func NewLogger(cfg LoggerConfig) (*zap.Logger, error) {
	level, err := ParseLogLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	encoding := "json"
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if strings.EqualFold(cfg.Format, "console") || strings.EqualFold(cfg.Format, "text") {
		encoding = "console"
		encoderCfg = zap.NewDevelopmentEncoderConfig()
		encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}

	zapCfg := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Encoding:          encoding,
		EncoderConfig:     encoderCfg,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: level > zapcore.DebugLevel,
	}
	return zapCfg.Build()
}

// OrNop returns logger, or a no-op logger when it is nil.
func OrNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
