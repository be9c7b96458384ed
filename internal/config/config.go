// Package config loads taskboard settings from defaults, an optional config
// file, TASKBOARD_* environment variables and command line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "TASKBOARD"

// Config is the full service configuration.
type Config struct {
	Addr   string       `mapstructure:"addr"`
	Store  StoreConfig  `mapstructure:"store"`
	Log    LogConfig    `mapstructure:"log"`
	Labels LabelsConfig `mapstructure:"labels"`
	Lock   LockConfig   `mapstructure:"lock"`
	Redis  RedisConfig  `mapstructure:"redis"`
	CORS   CORSConfig   `mapstructure:"cors"`
	Server ServerConfig `mapstructure:"server"`
}

// StoreConfig selects the entity store.
type StoreConfig struct {
	Driver string `mapstructure:"driver"` // sqlite, json or memory
	Path   string `mapstructure:"path"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // text or json
}

// LabelsConfig controls label uniqueness.
type LabelsConfig struct {
	Scope string `mapstructure:"scope"` // global or board
}

// LockConfig selects how board writes are serialized.
type LockConfig struct {
	Driver string        `mapstructure:"driver"` // local, redis or none
	TTL    time.Duration `mapstructure:"ttl"`
}

// RedisConfig is used when Lock.Driver is redis.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CORSConfig lists the origins allowed to call the API from a browser.
type CORSConfig struct {
	Origins []string `mapstructure:"origins"`
}

// ServerConfig holds HTTP server timeouts.
type ServerConfig struct {
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

var defaults = map[string]any{
	"addr":                    ":5000",
	"store.driver":            "sqlite",
	"store.path":              "taskboard.db",
	"log.level":               "info",
	"log.format":              "text",
	"labels.scope":            "global",
	"lock.driver":             "local",
	"lock.ttl":                8 * time.Second,
	"redis.addr":              "127.0.0.1:6379",
	"redis.password":          "",
	"redis.db":                0,
	"cors.origins":            []string{"*"},
	"server.read_timeout":     15 * time.Second,
	"server.write_timeout":    15 * time.Second,
	"server.shutdown_timeout": 10 * time.Second,
}

// New returns a viper instance with defaults, config file discovery and
// environment binding set up. TASKBOARD_CONFIG names an explicit config file.
func New() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if configFile := os.Getenv(EnvPrefix + "_CONFIG"); configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("taskboard")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.taskboard")
		v.AddConfigPath("/etc/taskboard")
	}

	// store.path -> TASKBOARD_STORE_PATH
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads the config file, if any, and decodes v into a validated Config.
// A missing file is only an error when it was named explicitly.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// normalize lowercases the enumerated settings so consumers can compare
// them directly.
func (c *Config) normalize() {
	for _, p := range []*string{
		&c.Store.Driver, &c.Log.Level, &c.Log.Format, &c.Labels.Scope, &c.Lock.Driver,
	} {
		*p = strings.ToLower(strings.TrimSpace(*p))
	}
}

// Validate checks the enumerated settings. Values are matched exactly; Load
// normalizes them first.
func (c *Config) Validate() error {
	checks := []struct {
		key, value string
		allowed    []string
	}{
		{"store.driver", c.Store.Driver, []string{"sqlite", "json", "memory"}},
		{"log.level", c.Log.Level, []string{"debug", "info", "warn", "error"}},
		{"log.format", c.Log.Format, []string{"text", "json"}},
		{"labels.scope", c.Labels.Scope, []string{"global", "board"}},
		{"lock.driver", c.Lock.Driver, []string{"local", "redis", "none"}},
	}
	for _, check := range checks {
		if !contains(check.allowed, check.value) {
			return fmt.Errorf("invalid %s %q: must be one of %s",
				check.key, check.value, strings.Join(check.allowed, ", "))
		}
	}

	if c.Store.Driver != "memory" && c.Store.Path == "" {
		return fmt.Errorf("store.path is required for the %s driver", c.Store.Driver)
	}
	if c.Lock.Driver == "redis" && c.Redis.Addr == "" {
		return errors.New("redis.addr is required when lock.driver is redis")
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
