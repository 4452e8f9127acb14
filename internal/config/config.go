// Package config loads epubslice settings from defaults, an optional YAML
// file and EPUBSLICE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds epubslice configuration.
type Config struct {
	Images   ImagesCfg `mapstructure:"images" yaml:"images"`
	Fetch    FetchCfg  `mapstructure:"fetch" yaml:"fetch"`
	Output   OutputCfg `mapstructure:"output" yaml:"output"`
	LogLevel string    `mapstructure:"log_level" yaml:"log_level"` // debug, info, warn, error
}

// ImagesCfg controls image localization.
type ImagesCfg struct {
	Disable     bool   `mapstructure:"disable" yaml:"disable"`
	Concurrency int    `mapstructure:"concurrency" yaml:"concurrency"` // Max fetches in flight per chapter
	Prefix      string `mapstructure:"prefix" yaml:"prefix"`           // Prepended to stored file names in rewritten references
}

// FetchCfg configures the HTTP fetcher.
type FetchCfg struct {
	Attempts  uint          `mapstructure:"attempts" yaml:"attempts"`
	Delay     time.Duration `mapstructure:"delay" yaml:"delay"`
	MaxDelay  time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"` // Per request
	UserAgent string        `mapstructure:"user_agent" yaml:"user_agent"`
}

// OutputCfg says where extracted chapters go.
type OutputCfg struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
	// TempDir is the parent of the per-run image directory (default: system temp).
	TempDir string `mapstructure:"temp_dir" yaml:"temp_dir"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Images: ImagesCfg{
			Concurrency: 4,
			Prefix:      "images/",
		},
		Fetch: FetchCfg{
			Attempts:  3,
			Delay:     500 * time.Millisecond,
			MaxDelay:  10 * time.Second,
			Timeout:   30 * time.Second,
			UserAgent: "epubslice",
		},
		Output: OutputCfg{
			Dir: "out",
		},
		LogLevel: "info",
	}
}

// Load reads configuration. An explicit cfgFile must exist; otherwise
// config.yaml is looked up in the working directory and ~/.epubslice and
// may be absent.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	d := DefaultConfig()
	v.SetDefault("images.disable", d.Images.Disable)
	v.SetDefault("images.concurrency", d.Images.Concurrency)
	v.SetDefault("images.prefix", d.Images.Prefix)
	v.SetDefault("fetch.attempts", d.Fetch.Attempts)
	v.SetDefault("fetch.delay", d.Fetch.Delay)
	v.SetDefault("fetch.max_delay", d.Fetch.MaxDelay)
	v.SetDefault("fetch.timeout", d.Fetch.Timeout)
	v.SetDefault("fetch.user_agent", d.Fetch.UserAgent)
	v.SetDefault("output.dir", d.Output.Dir)
	v.SetDefault("output.temp_dir", d.Output.TempDir)
	v.SetDefault("log_level", d.LogLevel)

	// EPUBSLICE_IMAGES_CONCURRENCY overrides images.concurrency.
	v.SetEnvPrefix("EPUBSLICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.epubslice")
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Images.Concurrency < 1 {
		return fmt.Errorf("images.concurrency must be positive, got %d", c.Images.Concurrency)
	}
	if c.Fetch.Attempts < 1 {
		return fmt.Errorf("fetch.attempts must be positive, got %d", c.Fetch.Attempts)
	}
	if c.Fetch.Delay < 0 || c.Fetch.MaxDelay < 0 || c.Fetch.Timeout < 0 {
		return errors.New("fetch durations must not be negative")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	return lvl, nil
}

// WriteDefault writes the default configuration to the specified path.
func WriteDefault(path string) error {
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# epubslice configuration
# Every key can be overridden from the environment, e.g. EPUBSLICE_IMAGES_CONCURRENCY=8

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}
