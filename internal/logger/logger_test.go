package logger

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func capture(t *testing.T, fn func()) string {
	origOut := os.Stdout
	defer func() { os.Stdout = origOut }()

	rOut, wOut, err := os.Pipe()
	require.NoError(t, err, "failed to create stdout pipe")

	os.Stdout = wOut

	fn()

	err = wOut.Close()
	require.NoError(t, err, "failed to close stdout pipe")

	outBytes, err := io.ReadAll(rOut)
	require.NoError(t, err, "failed to read stdout pipe")

	return string(outBytes)
}

func TestLogger_parseLevelString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected slog.Level
	}{
		{"Debug level", "DEBUG", slog.LevelDebug},
		{"Debug level lowercase", "debug", slog.LevelDebug},
		{"Info level", "INFO", slog.LevelInfo},
		{"Warn level", "warn", slog.LevelWarn},
		{"Error level", "error", slog.LevelError},
		{"Empty defaults to info", "", slog.LevelInfo},
		{"Unknown defaults to info", "loud", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseLevelString(tt.input)

			require.Equal(t, tt.expected, got, "parseLevelString(%q) should return %v", tt.input, tt.expected)
		})
	}
}

func TestLogger_New(t *testing.T) {
	t.Run("dev environment", func(t *testing.T) {
		out := capture(t, func() {
			l, err := New(EnvDevelopment, LevelInfo)
			require.NoError(t, err)

			l.Info("test message", "key", "value")
		})

		require.Contains(t, out, "test message")
		require.Contains(t, out, "key=value", "dev logger should write text format")
	})

	t.Run("prod environment", func(t *testing.T) {
		out := capture(t, func() {
			l, err := New(EnvProduction, LevelInfo)
			require.NoError(t, err)

			l.Info("test message", "key", "value")
		})

		var entry map[string]any
		err := json.Unmarshal([]byte(out), &entry)
		require.NoError(t, err, "prod logger should write valid JSON")
		require.Equal(t, "test message", entry["msg"])
		require.Equal(t, "INFO", entry["level"])
		require.Equal(t, "value", entry["key"])
	})

	t.Run("unknown environment", func(t *testing.T) {
		_, err := New("staging", LevelInfo)

		require.Error(t, err)
	})
}

func TestLogger_NewNoOpLogger(t *testing.T) {
	out := capture(t, func() {
		l := NewNoOpLogger()
		l.Debug("debug message")
		l.Info("info message")
		l.Warn("warn message")
		l.Error("error message")
	})

	require.Empty(t, out, "NoOp logger should not write anything")
}

func TestLogger_Levels(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		logFn    func(Logger)
		isLogged bool
	}{
		{"Debug logger logs debug", LevelDebug, func(l Logger) { l.Debug("test") }, true},
		{"Debug logger logs error", LevelDebug, func(l Logger) { l.Error("test") }, true},

		{"Info logger skips debug", LevelInfo, func(l Logger) { l.Debug("test") }, false},
		{"Info logger logs info", LevelInfo, func(l Logger) { l.Info("test") }, true},

		{"Warn logger skips info", LevelWarn, func(l Logger) { l.Info("test") }, false},
		{"Warn logger logs warn", LevelWarn, func(l Logger) { l.Warn("test") }, true},

		{"Error logger skips warn", LevelError, func(l Logger) { l.Warn("test") }, false},
		{"Error logger logs error", LevelError, func(l Logger) { l.Error("test") }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := capture(t, func() {
				tt.logFn(NewLogger(tt.level))
			})

			require.Equal(t, tt.isLogged, len(out) > 0, "level %s: expected isLogged=%v", tt.level, tt.isLogged)
		})
	}
}

func TestLogger_With(t *testing.T) {
	out := capture(t, func() {
		l := NewLogger(LevelInfo).With("component", "escrow", "version", "1.0")

		l.Info("test message")
	})

	require.Contains(t, out, "component=escrow")
	require.Contains(t, out, "version=1.0")
	require.Contains(t, out, "test message")
}

func TestLogger_Source(t *testing.T) {
	out := capture(t, func() {
		NewLogger(LevelInfo).Info("test message")
	})

	require.Contains(t, out, "logger_test.go", "source should point at the caller, not the wrapper")
	require.NotContains(t, out, "slog.go", "wrapper frames should be skipped")
}
