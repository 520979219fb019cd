package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewZapLogger(t *testing.T) {
	t.Run("creates with default config", func(t *testing.T) {
		l, err := NewZapLogger(nil)
		require.NoError(t, err)
		assert.NotNil(t, l)
	})

	t.Run("json format", func(t *testing.T) {
		buf := &bytes.Buffer{}
		l, err := NewZapLogger(&Config{Level: "info", Format: "json", Output: buf})
		require.NoError(t, err)

		l.Info("quota reserved", zap.String("user_id", "u1"), zap.Int("remaining", 4))
		require.NoError(t, l.Sync())

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "quota reserved", entry["msg"])
		assert.Equal(t, "info", entry["level"])
		assert.Equal(t, "u1", entry["user_id"])
		assert.Equal(t, float64(4), entry["remaining"])
		assert.Contains(t, entry, "time")
	})

	t.Run("console format", func(t *testing.T) {
		buf := &bytes.Buffer{}
		l, err := NewZapLogger(&Config{Format: "console", Output: buf})
		require.NoError(t, err)

		l.Warn("breaker open")
		output := buf.String()
		assert.Contains(t, output, "breaker open")
		assert.Contains(t, output, "WARN")
		// Console format should not be JSON
		assert.False(t, strings.HasPrefix(output, "{"))
	})

	t.Run("invalid level", func(t *testing.T) {
		_, err := NewZapLogger(&Config{Level: "loud"})
		assert.Error(t, err)
	})
}

func TestNewZapLogger_Levels(t *testing.T) {
	tests := []struct {
		level    string
		debugOut bool
		infoOut  bool
		warnOut  bool
		errorOut bool
	}{
		{"debug", true, true, true, true},
		{"info", false, true, true, true},
		{"", false, true, true, true},
		{"warn", false, false, true, true},
		{"warning", false, false, true, true},
		{"error", false, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			buf := &bytes.Buffer{}
			l, err := NewZapLogger(&Config{Level: tt.level, Output: buf})
			require.NoError(t, err)

			check := func(log func(string, ...zap.Field), msg string, want bool) {
				buf.Reset()
				log(msg)
				assert.Equal(t, want, strings.Contains(buf.String(), msg), msg)
			}
			check(l.Debug, "debug-msg", tt.debugOut)
			check(l.Info, "info-msg", tt.infoOut)
			check(l.Warn, "warn-msg", tt.warnOut)
			check(l.Error, "error-msg", tt.errorOut)
		})
	}
}
