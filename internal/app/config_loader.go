package app

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/yourusername/getcomics-go/internal/domain"
)

// LoadConfig loads configuration from file and environment
func LoadConfig(configPath string) (*domain.Config, error) {
	config := domain.DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.getcomics")
		v.AddConfigPath("/etc/getcomics")
	}

	// Registering every key lets AutomaticEnv override values absent from the file
	for key, value := range configValues(config) {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix("GETCOMICS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config = expandPaths(config)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// configValues flattens config into viper keys
func configValues(c *domain.Config) map[string]interface{} {
	return map[string]interface{}{
		"site.base_url":                  c.Site.BaseURL,
		"site.user_agent":                c.Site.UserAgent,
		"site.direct_prefixes":           c.Site.DirectPrefixes,
		"site.request_timeout":           c.Site.RequestTimeout.String(),
		"site.rate_limit":                c.Site.RateLimit,
		"site.rate_burst":                c.Site.RateBurst,
		"discovery.default_quota":        c.Discovery.DefaultQuota,
		"discovery.classify_concurrency": c.Discovery.ClassifyConcurrency,
		"download.base_dir":              c.Download.BaseDir,
		"download.logs_dir":              c.Download.LogsDir,
		"download.max_retries":           c.Download.MaxRetries,
		"download.retry_delay":           c.Download.RetryDelay.String(),
		"download.concurrent_limit":      c.Download.ConcurrentLimit,
		"transfer.chunk_size":            c.Transfer.ChunkSize,
		"transfer.header_timeout":        c.Transfer.HeaderTimeout.String(),
		"transfer.accelerated":           c.Transfer.Accelerated,
		"transfer.aria2_binary":          c.Transfer.Aria2Binary,
		"transfer.aria2_quiet":           c.Transfer.Aria2Quiet,
		"transfer.incoming_dir":          c.Transfer.IncomingDir,
		"history.enabled":                c.History.Enabled,
		"history.database_path":          c.History.DatabasePath,
		"server.host":                    c.Server.Host,
		"server.port":                    c.Server.Port,
		"notification.enabled":           c.Notification.Enabled,
		"notification.method":            c.Notification.Method,
		"logging.level":                  c.Logging.Level,
		"logging.format":                 c.Logging.Format,
		"logging.output_path":            c.Logging.OutputPath,
	}
}

// expandPaths expands environment variables in path configurations
func expandPaths(config *domain.Config) *domain.Config {
	config.Download.BaseDir = expandPath(config.Download.BaseDir)
	config.Download.LogsDir = expandPath(config.Download.LogsDir)
	config.History.DatabasePath = expandPath(config.History.DatabasePath)

	if config.Logging.OutputPath != "stdout" && config.Logging.OutputPath != "stderr" {
		config.Logging.OutputPath = expandPath(config.Logging.OutputPath)
	}

	return config
}

// expandPath expands environment variables and ~ in paths
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}

	if strings.Contains(path, "$HOME") {
		if home, err := os.UserHomeDir(); err == nil {
			path = strings.ReplaceAll(path, "$HOME", home)
		}
	}

	return os.ExpandEnv(path)
}

// validateConfig validates the configuration
func validateConfig(config *domain.Config) error {
	if config.Site.BaseURL == "" {
		return fmt.Errorf("site base url not configured")
	}
	if u, err := url.Parse(config.Site.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid site base url: %s", config.Site.BaseURL)
	}
	config.Site.BaseURL = strings.TrimRight(config.Site.BaseURL, "/")

	if len(config.Site.DirectPrefixes) == 0 {
		return fmt.Errorf("no direct download prefixes configured")
	}

	if config.Site.RateLimit <= 0 {
		return fmt.Errorf("rate limit must be positive")
	}

	if config.Discovery.ClassifyConcurrency < 1 {
		return fmt.Errorf("classify concurrency must be at least 1")
	}

	if config.Discovery.DefaultQuota < 0 {
		return fmt.Errorf("default quota cannot be negative")
	}

	if config.Download.BaseDir == "" {
		return fmt.Errorf("download base directory not configured")
	}

	if config.Download.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}

	if config.Download.ConcurrentLimit < 1 {
		return fmt.Errorf("concurrent limit must be at least 1")
	}

	if config.Transfer.ChunkSize < 1 {
		return fmt.Errorf("chunk size must be at least 1")
	}

	if config.History.Enabled && config.History.DatabasePath == "" {
		return fmt.Errorf("history database path not configured")
	}

	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}

	return nil
}

// SaveConfig saves configuration to file
func SaveConfig(config *domain.Config, path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	for key, value := range configValues(config) {
		v.Set(key, value)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
