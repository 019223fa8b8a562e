package logger

import (
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMultiLogger_WritesCategoryFiles(t *testing.T) {
	dir := t.TempDir()
	ml, err := NewMultiLogger(MultiLoggerConfig{Level: "info", LogsDir: dir})
	require.NoError(t, err)

	ml.LogCrawlEvent("page_fetched", zap.Int("page", 1))
	ml.LogTransferEvent("transfer_completed", zap.String("path", "/tmp/ex5.cbz"))
	ml.LogAppError("boom", zap.String("id", "t-1"))
	require.NoError(t, ml.Close())

	crawl, err := os.ReadFile(ml.CategoryLogPath(CategoryCrawl, time.Now()))
	require.NoError(t, err)
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(crawl))), &entry))
	assert.Equal(t, "page_fetched", entry["msg"])
	assert.Equal(t, float64(1), entry["page"])

	transfer, err := os.ReadFile(ml.CategoryLogPath(CategoryTransfer, time.Now()))
	require.NoError(t, err)
	assert.Contains(t, string(transfer), "transfer_completed")

	errs, err := os.ReadFile(ml.CategoryLogPath(CategoryError, time.Now()))
	require.NoError(t, err)
	assert.Contains(t, string(errs), "boom")
}

func TestMultiLogger_ErrorFileSkipsInfo(t *testing.T) {
	dir := t.TempDir()
	ml, err := NewMultiLogger(MultiLoggerConfig{Level: "debug", LogsDir: dir})
	require.NoError(t, err)

	ml.Error().Info("not an error")
	require.NoError(t, ml.Close())

	errs, err := os.ReadFile(ml.CategoryLogPath(CategoryError, time.Now()))
	require.NoError(t, err)
	assert.Empty(t, errs)
}

func TestMultiLogger_RequiresDir(t *testing.T) {
	_, err := NewMultiLogger(MultiLoggerConfig{})
	assert.Error(t, err)
}

func TestMultiLogger_NilSafe(t *testing.T) {
	var ml *MultiLogger
	assert.NotPanics(t, func() {
		ml.LogCrawlEvent("x")
		ml.LogTransferEvent("x")
		ml.LogAppError("x")
		ml.Sync()
		ml.Close()
	})
	assert.Equal(t, "", ml.GetLogsDir())
}

func TestNew_FileOutput(t *testing.T) {
	path := t.TempDir() + "/app.log"
	l, err := New(Config{Level: "debug", Format: "json", OutputPath: path})
	require.NoError(t, err)

	l.Debug("hello", zap.String("k", "v"))
	require.NoError(t, l.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
	assert.Contains(t, string(data), `"k":"v"`)
}
