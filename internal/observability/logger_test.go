// internal/observability/logger_test.go
package observability

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/naytrik/naytrik/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

// syncBuffer adapts zaptest's in-memory syncer as a console writer so tests
// never touch the real stdout.
func newTestWriter() *zaptest.Buffer {
	return &zaptest.Buffer{}
}

func TestInitialize(t *testing.T) {
	t.Run("console format colorizes levels", func(t *testing.T) {
		ResetForTest()
		buf := newTestWriter()

		cfg := config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "testsvc",
			Colors:      config.ColorConfig{Info: "green"},
		}
		Initialize(cfg, zapcore.Lock(buf))
		GetLogger().Info("console message")

		output := buf.String()
		assert.Contains(t, output, "INFO")
		assert.Contains(t, output, "console message")
		assert.Contains(t, output, colorGreen)
		assert.Contains(t, output, colorReset)
		assert.Contains(t, output, "testsvc.")
	})

	t.Run("json format produces structured entries", func(t *testing.T) {
		ResetForTest()
		buf := newTestWriter()

		cfg := config.LoggerConfig{
			Level:       "info",
			Format:      "json",
			ServiceName: "jsonsvc",
		}
		Initialize(cfg, zapcore.Lock(buf))
		GetLogger().Warn("json message", zap.String("key", "value"))

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(buf.Lines()[0]), &entry))
		assert.Equal(t, "warn", entry["level"])
		assert.Equal(t, "jsonsvc", entry["logger"])
		assert.Equal(t, "json message", entry["msg"])
		assert.Equal(t, "value", entry["key"])
	})

	t.Run("writes to the configured log file", func(t *testing.T) {
		ResetForTest()
		logFile := filepath.Join(t.TempDir(), "naytrik.log")

		cfg := config.LoggerConfig{
			Level:   "debug",
			Format:  "json",
			LogFile: logFile,
			MaxSize: 1,
		}
		Initialize(cfg, zapcore.Lock(newTestWriter()))
		GetLogger().Error("file message")
		Sync()

		content, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(content), "file message")
	})

	t.Run("initializes only once", func(t *testing.T) {
		ResetForTest()
		buf := newTestWriter()

		Initialize(config.LoggerConfig{Level: "info", ServiceName: "first"}, zapcore.Lock(buf))
		first := GetLogger()

		Initialize(config.LoggerConfig{Level: "debug", ServiceName: "second"}, zapcore.Lock(buf))
		second := GetLogger()

		assert.Same(t, first, second)
	})
}

func TestGetLogger(t *testing.T) {
	t.Run("returns a fallback before initialization", func(t *testing.T) {
		ResetForTest()
		logger := GetLogger()
		require.NotNil(t, logger)
	})

	t.Run("returns the global logger after initialization", func(t *testing.T) {
		ResetForTest()
		Initialize(config.LoggerConfig{Level: "info", ServiceName: "global"}, zapcore.Lock(newTestWriter()))
		assert.Equal(t, globalLogger.Load(), GetLogger())
	})
}
