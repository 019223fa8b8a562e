package domain

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.NotNil(t, config)
	assert.Equal(t, "https://getcomics.info", config.Site.BaseURL)
	assert.Equal(t, DefaultUserAgent, config.Site.UserAgent)
	assert.Len(t, config.Site.DirectPrefixes, 3)
	assert.Equal(t, 15, config.Discovery.DefaultQuota)
	assert.Equal(t, 1, config.Download.MaxRetries)
	assert.Equal(t, 5*time.Second, config.Download.RetryDelay)
	assert.Equal(t, 2, config.Download.ConcurrentLimit)
	assert.Equal(t, 32*1024, config.Transfer.ChunkSize)
	assert.False(t, config.Transfer.Accelerated)
	assert.Equal(t, "aria2c", config.Transfer.Aria2Binary)
	assert.True(t, config.History.Enabled)
	assert.Equal(t, "info", config.Logging.Level)
}

func TestTransferConfig_ScratchDir(t *testing.T) {
	assert.Equal(t, filepath.Join("/data", ".incoming"), TransferConfig{}.ScratchDir("/data"))
	assert.Equal(t, filepath.Join("/data", "tmp"), TransferConfig{IncomingDir: "tmp"}.ScratchDir("/data"))
}
