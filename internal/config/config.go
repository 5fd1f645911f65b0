package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/apexmedia/cdn-sync-agent/internal/notify"
)

type Config struct {
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Engine   EngineConfig   `mapstructure:"engine"`
	CDN      CDNConfig      `mapstructure:"cdn"`
	Server   ServerConfig   `mapstructure:"server"`
	Notify   notify.Config  `mapstructure:"notify"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type UpstreamConfig struct {
	BaseURL          string `mapstructure:"base_url"`
	AccessKey        string `mapstructure:"access_key"`
	TimeoutSec       int    `mapstructure:"timeout_sec"`
	RatePerSecond    int    `mapstructure:"rate_per_second"`
	CompressMinBytes int    `mapstructure:"compress_min_bytes"`
}

type EngineConfig struct {
	Workers        int `mapstructure:"workers"`
	PostTimeoutSec int `mapstructure:"post_timeout_sec"`
	RetryDelayMS   int `mapstructure:"retry_delay_ms"`
}

type CDNConfig struct {
	StorageURL     string `mapstructure:"storage_url"`
	VideoURL       string `mapstructure:"video_url"`
	LibraryID      string `mapstructure:"library_id"`
	AccessKey      string `mapstructure:"access_key"`
	MetadataTTLSec int    `mapstructure:"metadata_ttl_sec"`
}

type ServerConfig struct {
	Port      string `mapstructure:"port"`
	AuthToken string `mapstructure:"auth_token"`
	WSEnabled bool   `mapstructure:"ws_enabled"`
}

type LoggingConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Directory string `mapstructure:"directory"`
	Level     string `mapstructure:"level"`
}

func (c *UpstreamConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

func (c *EngineConfig) PostTimeout() time.Duration {
	return time.Duration(c.PostTimeoutSec) * time.Second
}

func (c *EngineConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMS) * time.Millisecond
}

func (c *CDNConfig) MetadataTTL() time.Duration {
	return time.Duration(c.MetadataTTLSec) * time.Second
}

func Load(configPath string) (*Config, error) {
	// Optional .env for local development; missing file is fine.
	_ = godotenv.Load()

	v := viper.New()

	// Set defaults
	v.SetDefault("upstream.base_url", "https://ops.apexmedia.io")
	v.SetDefault("upstream.timeout_sec", 30)
	v.SetDefault("upstream.rate_per_second", 5)
	v.SetDefault("upstream.compress_min_bytes", 4096)
	v.SetDefault("engine.workers", 4)
	v.SetDefault("engine.post_timeout_sec", 30)
	v.SetDefault("engine.retry_delay_ms", 500)
	v.SetDefault("cdn.storage_url", "https://storage.bunnycdn.com/apexmedia")
	v.SetDefault("cdn.video_url", "https://video.bunnycdn.com")
	v.SetDefault("cdn.metadata_ttl_sec", 300)
	v.SetDefault("server.port", "8085")
	v.SetDefault("server.ws_enabled", true)
	v.SetDefault("notify.server", "https://ntfy.sh")
	v.SetDefault("notify.priority", "default")
	v.SetDefault("notify.tags", "satellite")
	v.SetDefault("notify.failure_threshold", 3)
	v.SetDefault("logging.enabled", true)
	v.SetDefault("logging.directory", "logs")
	v.SetDefault("logging.level", "info")

	// Environment variable support
	v.SetEnvPrefix("CDNSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Explicitly bind nested keys to env vars
	_ = v.BindEnv("upstream.access_key", "CDNSYNC_ACCESS_KEY")
	_ = v.BindEnv("cdn.access_key", "CDNSYNC_CDN_ACCESS_KEY")
	_ = v.BindEnv("notify.token", "CDNSYNC_NTFY_TOKEN")

	// Load config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("default")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// The CDN APIs share the upstream credential unless overridden.
	if cfg.CDN.AccessKey == "" {
		cfg.CDN.AccessKey = cfg.Upstream.AccessKey
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Upstream.AccessKey == "" {
		return fmt.Errorf("upstream access key is required (set CDNSYNC_ACCESS_KEY env var)")
	}
	if c.Engine.Workers < 1 {
		return fmt.Errorf("engine.workers must be >= 1")
	}
	if c.Upstream.RatePerSecond < 1 {
		return fmt.Errorf("upstream.rate_per_second must be >= 1")
	}
	if err := c.Notify.Validate(); err != nil {
		return err
	}
	return nil
}
