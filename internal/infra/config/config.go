package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/datallboy/gosplice/internal/domain"
)

type Config struct {
	TmpDir  string               `mapstructure:"tmp_dir" yaml:"tmp_dir"`
	FFmpeg  FFmpegConfig         `mapstructure:"ffmpeg" yaml:"ffmpeg"`
	Fetch   FetchConfig          `mapstructure:"fetch" yaml:"fetch"`
	Cleanup domain.CleanupPolicy `mapstructure:"cleanup" yaml:"cleanup"`
	Pool    PoolConfig           `mapstructure:"pool" yaml:"pool"`
	Log     LogConfig            `mapstructure:"log" yaml:"log"`
	Store   StoreConfig          `mapstructure:"store" yaml:"store"`

	Port string `mapstructure:"port" yaml:"port"`
}

type FFmpegConfig struct {
	Path          string        `mapstructure:"path" yaml:"path"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
	DefaultFormat string        `mapstructure:"default_format" yaml:"default_format"`
}

type FetchConfig struct {
	MaxPending int           `mapstructure:"max_pending" yaml:"max_pending"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	UserAgent  string        `mapstructure:"user_agent" yaml:"user_agent"`
}

type PoolConfig struct {
	Concurrency int  `mapstructure:"concurrency" yaml:"concurrency"`
	FailFast    bool `mapstructure:"fail_fast" yaml:"fail_fast"`
}

type LogConfig struct {
	Path          string `mapstructure:"path" yaml:"path"`
	Level         string `mapstructure:"level" yaml:"level"`
	IncludeStdout bool   `mapstructure:"include_stdout" yaml:"include_stdout"`
	MaxSizeMB     int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups    int    `mapstructure:"max_backups" yaml:"max_backups"`
}

type StoreConfig struct {
	SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
}

// Load reads path (default config.yaml) if it exists. A missing file is not an
// error: defaults, .env and GOSPLICE_* variables still apply.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if path == "" {
		path = "config.yaml"
	}

	// .env is optional
	_ = godotenv.Load()

	v := viper.New()

	// Set Defaults
	v.SetDefault("port", "8080")
	v.SetDefault("tmp_dir", "tmp")
	v.SetDefault("ffmpeg.path", "")
	v.SetDefault("ffmpeg.timeout", "0s")
	v.SetDefault("ffmpeg.default_format", "mp4")
	v.SetDefault("fetch.max_pending", 8)
	v.SetDefault("fetch.timeout", "0s")
	v.SetDefault("fetch.user_agent", "gosplice/1.0")
	v.SetDefault("cleanup.on_success", false)
	v.SetDefault("cleanup.on_error", false)
	v.SetDefault("cleanup.always", false)
	v.SetDefault("pool.concurrency", 5)
	v.SetDefault("pool.fail_fast", false)
	v.SetDefault("log.path", "gosplice.log")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.include_stdout", true)
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("store.sqlite_path", "data/gosplice.db")

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	} else if explicit {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	// Support Environment Variables
	v.SetEnvPrefix("GOSPLICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Pool.Concurrency < 1 {
		return &domain.ConfigurationError{
			Field: "pool.concurrency",
			Err:   fmt.Errorf("must be at least 1, got %d", c.Pool.Concurrency),
		}
	}

	if c.Fetch.MaxPending < 0 {
		return &domain.ConfigurationError{Field: "fetch.max_pending", Err: errors.New("must not be negative")}
	}

	if c.FFmpeg.Timeout < 0 {
		return &domain.ConfigurationError{Field: "ffmpeg.timeout", Err: errors.New("must not be negative")}
	}

	if c.TmpDir == "" {
		c.TmpDir = "tmp"
	}

	if c.FFmpeg.DefaultFormat == "" {
		c.FFmpeg.DefaultFormat = "mp4"
	}

	return nil
}
