package utils

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected zapcore.Level
		wantErr  bool
	}{
		{name: "debug level", input: "DEBUG", expected: zapcore.DebugLevel},
		{name: "info level", input: "INFO", expected: zapcore.InfoLevel},
		{name: "empty defaults to info", input: "", expected: zapcore.InfoLevel},
		{name: "warning alias", input: "WARNING", expected: zapcore.WarnLevel},
		{name: "case insensitive", input: "error", expected: zapcore.ErrorLevel},
		{name: "invalid level", input: "LOUD", expected: zapcore.InfoLevel, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseLogLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseLogLevel() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if result != tt.expected {
				t.Errorf("ParseLogLevel() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(LoggerConfig{Level: "debug", Format: "console"})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	if !logger.Core().Enabled(zapcore.DebugLevel) {
		t.Error("debug level should be enabled")
	}

	if _, err := NewLogger(LoggerConfig{Level: "nope"}); err == nil {
		t.Error("expected error for invalid level")
	}

	if OrNop(nil) == nil {
		t.Error("OrNop(nil) returned nil")
	}
}

func TestParseBytes(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{"1024", 1024, false},
		{"1KB", 1024, false},
		{"10MB", 10 << 20, false},
		{"1.5K", 1536, false},
		{"2 GB", 2 << 30, false},
		{"512b", 512, false},
		{"", 0, true},
		{"lots", 0, true},
		{"-1MB", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseBytes(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseBytes(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseBytes(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatBytes(t *testing.T) {
	if got := FormatBytes(512); got != "512 B" {
		t.Errorf("FormatBytes(512) = %q", got)
	}
	if got := FormatBytes(10 << 20); got != "10.0 MB" {
		t.Errorf("FormatBytes(10MB) = %q", got)
	}
}
