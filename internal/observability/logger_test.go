// internal/observability/logger_test.go
package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/revet-dev/revet/internal/config"
)

// bufferSyncer adapts a bytes.Buffer into a zapcore.WriteSyncer so console
// output can be captured without touching process-level file descriptors.
type bufferSyncer struct{ bytes.Buffer }

func (b *bufferSyncer) Sync() error { return nil }

func TestInitialize(t *testing.T) {
	t.Run("console format includes level and message", func(t *testing.T) {
		ResetForTest()
		var buf bufferSyncer

		Initialize(config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "TestService",
		}, &buf)

		GetLogger().Info("This is a test message.")

		output := buf.String()
		assert.Contains(t, output, "INFO", "Output should contain the log level")
		assert.Contains(t, output, "This is a test message.")
		assert.Contains(t, output, "TestService")
	})

	t.Run("json format emits valid JSON with fields", func(t *testing.T) {
		ResetForTest()
		var buf bufferSyncer

		Initialize(config.LoggerConfig{
			Level:       "info",
			Format:      "json",
			ServiceName: "JSONTest",
		}, &buf)

		GetLogger().Warn("This is a JSON message.", zap.String("key", "value"))

		var logEntry map[string]interface{}
		err := json.Unmarshal(buf.Bytes(), &logEntry)
		require.NoError(t, err, "Log output should be valid JSON")

		assert.Equal(t, "WARN", logEntry["level"])
		assert.Equal(t, "JSONTest", logEntry["logger"])
		assert.Equal(t, "This is a JSON message.", logEntry["msg"])
		assert.Equal(t, "value", logEntry["key"])
	})

	t.Run("writes to a log file when configured", func(t *testing.T) {
		ResetForTest()
		logFile := filepath.Join(t.TempDir(), "revet-test.log")

		Initialize(config.LoggerConfig{
			Level:   "debug",
			Format:  "json",
			LogFile: logFile,
			MaxSize: 1,
		}, zapcore.AddSync(&bufferSyncer{}))

		GetLogger().Info("file sink entry")
		Sync()

		data, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(data), "file sink entry")
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		ResetForTest()
		var buf bufferSyncer

		Initialize(config.LoggerConfig{
			Level:  "not-a-level",
			Format: "json",
		}, &buf)

		GetLogger().Debug("should be suppressed")
		GetLogger().Info("should appear")

		assert.NotContains(t, buf.String(), "should be suppressed")
		assert.Contains(t, buf.String(), "should appear")
	})
}

func TestGetLoggerBeforeInitialize(t *testing.T) {
	ResetForTest()
	assert.NotNil(t, GetLogger(), "fallback logger must never be nil")
}
