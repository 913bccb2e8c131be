// Package config loads bot configuration from INI or any viper-supported
// format, with environment overrides and safe fallbacks: an invalid or
// missing value never fails hard, it falls back to the default.
package config

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/ini.v1"
)

// ProviderConfig stores provider-specific configuration as key-value pairs.
type ProviderConfig map[string]interface{}

// Config wraps viper and provides typed accessors.
type Config struct {
	v         *viper.Viper
	providers map[string]ProviderConfig
}

// Load reads a config file and prepares defaults. INI files additionally
// support [providers.<name>] sections.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("GROOVEBOT")
	v.AutomaticEnv()

	setDefaults(v)

	c := &Config{
		v:         v,
		providers: make(map[string]ProviderConfig),
	}

	if strings.EqualFold(filepath.Ext(path), ".ini") {
		cfg, err := loadINI(v, path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		loadProviderSections(cfg, c)
		return c, nil
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return c, nil
}

// Defaults returns a Config backed only by default values, for callers
// that run without a config file.
func Defaults() *Config {
	v := viper.New()
	v.SetEnvPrefix("GROOVEBOT")
	v.AutomaticEnv()
	setDefaults(v)
	return &Config{v: v, providers: make(map[string]ProviderConfig)}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("QueueLengthThreshold", 5)
	v.SetDefault("MaxSongDurationSeconds", 600)
	v.SetDefault("Database", "queues.db")
	v.SetDefault("DBMaxOpenConns", 1)
	v.SetDefault("DBMaxIdleConns", 1)
	v.SetDefault("DBConnMaxLifetimeSec", 3600)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFormat", "text")
	v.SetDefault("LogFile", "")
	v.SetDefault("LogSource", false)
	v.SetDefault("GormLogLevel", "warn")
	v.SetDefault("WorkerPoolSize", 4)
	v.SetDefault("RateLimitPerSecond", 0.0)
	v.SetDefault("RateLimitBurst", 3)
}

// GetString returns a string value.
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt returns an int value.
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetFloat64 returns a float64 value.
func (c *Config) GetFloat64(key string) float64 {
	return c.v.GetFloat64(key)
}

// GetBool returns a bool value.
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// PositiveInt returns the configured value when it parses as a positive
// integer, otherwise the fallback. Limits like the queue-length
// threshold and the song duration cap come through here so a bad config
// degrades instead of breaking admission.
func (c *Config) PositiveInt(key string, fallback int) int {
	if value := c.v.GetInt(key); value > 0 {
		return value
	}
	return fallback
}

// ProviderNames returns the configured provider section names.
func (c *Config) ProviderNames() []string {
	if len(c.providers) == 0 {
		return nil
	}
	names := make([]string, 0, len(c.providers))
	for name := range c.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetProviderConfig retrieves a provider section by name.
func (c *Config) GetProviderConfig(name string) (ProviderConfig, bool) {
	cfg, ok := c.providers[name]
	return cfg, ok
}

// ProviderEnabled reports whether a provider section enables the
// provider. Sections without an "enabled" key default to enabled.
func (c *Config) ProviderEnabled(name string) bool {
	cfg, ok := c.providers[name]
	if !ok {
		return true
	}
	val, ok := cfg["enabled"]
	if !ok {
		return true
	}
	switch v := val.(type) {
	case bool:
		return v
	case string:
		return !strings.EqualFold(v, "false") && v != "0"
	default:
		return true
	}
}

func loadINI(v *viper.Viper, path string) (*ini.File, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, err
	}

	for _, key := range cfg.Section("").Keys() {
		v.Set(key.Name(), key.Value())
	}
	return cfg, nil
}

func loadProviderSections(cfg *ini.File, c *Config) {
	const providerPrefix = "providers."

	for _, section := range cfg.Sections() {
		name := section.Name()
		if !strings.HasPrefix(name, providerPrefix) {
			continue
		}

		providerName := strings.TrimPrefix(name, providerPrefix)
		providerCfg := make(ProviderConfig)
		for _, key := range section.Keys() {
			providerCfg[key.Name()] = key.Value()
		}
		c.providers[providerName] = providerCfg
	}
}
