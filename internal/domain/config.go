package domain

import (
	"path/filepath"
	"time"
)

// Config represents the application configuration
type Config struct {
	Site         SiteConfig         `mapstructure:"site"`
	Discovery    DiscoveryConfig    `mapstructure:"discovery"`
	Download     DownloadConfig     `mapstructure:"download"`
	Transfer     TransferConfig     `mapstructure:"transfer"`
	History      HistoryConfig      `mapstructure:"history"`
	Server       ServerConfig       `mapstructure:"server"`
	Notification NotificationConfig `mapstructure:"notification"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// SiteConfig describes the origin site and how to talk to it
type SiteConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	UserAgent      string        `mapstructure:"user_agent"`
	DirectPrefixes []string      `mapstructure:"direct_prefixes"` // host+path prefixes of direct downloads
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RateLimit      float64       `mapstructure:"rate_limit"` // requests per second
	RateBurst      int           `mapstructure:"rate_burst"`
}

// DiscoveryConfig contains crawl-related configuration
type DiscoveryConfig struct {
	DefaultQuota        int `mapstructure:"default_quota"`
	ClassifyConcurrency int `mapstructure:"classify_concurrency"`
}

// DownloadConfig contains download-related configuration
type DownloadConfig struct {
	BaseDir         string        `mapstructure:"base_dir"`
	LogsDir         string        `mapstructure:"logs_dir"`
	MaxRetries      int           `mapstructure:"max_retries"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
	ConcurrentLimit int           `mapstructure:"concurrent_limit"`
}

// TransferConfig contains transfer engine configuration
type TransferConfig struct {
	ChunkSize     int           `mapstructure:"chunk_size"`
	HeaderTimeout time.Duration `mapstructure:"header_timeout"`
	Accelerated   bool          `mapstructure:"accelerated"`
	Aria2Binary   string        `mapstructure:"aria2_binary"`
	Aria2Quiet    bool          `mapstructure:"aria2_quiet"`
	IncomingDir   string        `mapstructure:"incoming_dir"` // scratch dir name inside the destination
}

// HistoryConfig contains transfer history store configuration
type HistoryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	DatabasePath string `mapstructure:"database_path"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// NotificationConfig contains notification-related configuration
type NotificationConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Method  string `mapstructure:"method"` // osascript, notify-send
}

// LoggingConfig contains logging-related configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, or file path
}

// DefaultUserAgent is sent with every request; the origin rejects default client signatures
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			BaseURL:   "https://getcomics.info",
			UserAgent: DefaultUserAgent,
			DirectPrefixes: []string{
				"getcomics.info/download",
				"getcomics.org/download",
				"getcomics.org/dlds/",
			},
			RequestTimeout: 30 * time.Second,
			RateLimit:      2,
			RateBurst:      1,
		},
		Discovery: DiscoveryConfig{
			DefaultQuota:        15,
			ClassifyConcurrency: 4,
		},
		Download: DownloadConfig{
			BaseDir:         "./Downloaded Comics",
			LogsDir:         "$HOME/.getcomics/logs",
			MaxRetries:      1,
			RetryDelay:      5 * time.Second,
			ConcurrentLimit: 2,
		},
		Transfer: TransferConfig{
			ChunkSize:     32 * 1024,
			HeaderTimeout: 60 * time.Second,
			Accelerated:   false,
			Aria2Binary:   "aria2c",
			Aria2Quiet:    true,
			IncomingDir:   ".incoming",
		},
		History: HistoryConfig{
			Enabled:      true,
			DatabasePath: "$HOME/.getcomics/history.db",
		},
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
		},
		Notification: NotificationConfig{
			Enabled: false,
			Method:  "notify-send",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			OutputPath: "stderr",
		},
	}
}

// ScratchDir returns the temp directory for transfers into dir
func (c TransferConfig) ScratchDir(dir string) string {
	name := c.IncomingDir
	if name == "" {
		name = ".incoming"
	}
	return filepath.Join(dir, name)
}
