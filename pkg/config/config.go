package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	xdgAppName = "taskcal"
	configFile = "config.json"
	envPrefix  = "TASKCAL"
)

type Config struct {
	// CalendarID is the calendar events are written to.
	CalendarID   string `mapstructure:"calendar_id"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	// CallbackPort is the local port of the OAuth redirect listener.
	CallbackPort int    `mapstructure:"callback_port"`
	DBPath       string `mapstructure:"db_path"`
	Workers      int    `mapstructure:"workers"`
	QueueSize    int    `mapstructure:"queue_size"`

	// Dir holds config.json, credentials.json and, by default, the database.
	Dir string `mapstructure:"-"`
}

// GetConfigDir returns ~/.config/taskcal, or $TASKCAL_CONFIG_DIR when set.
func GetConfigDir() (string, error) {
	if dir := os.Getenv(envPrefix + "_CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	xdgHome, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(xdgHome, ".config", xdgAppName), nil
}

func GetConfigPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFile), nil
}

func setDefaults(v *viper.Viper, dir string) {
	v.SetDefault("calendar_id", "primary")
	v.SetDefault("client_id", "")
	v.SetDefault("client_secret", "")
	v.SetDefault("callback_port", 3333)
	v.SetDefault("db_path", filepath.Join(dir, "taskcal.db"))
	v.SetDefault("workers", 4)
	v.SetDefault("queue_size", 64)
}

// Load reads an optional .env from the working directory, then config.json,
// then TASKCAL_* environment overrides.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	dir, err := GetConfigDir()
	if err != nil {
		return nil, err
	}
	return LoadFrom(dir)
}

// LoadFrom reads config.json in dir. A missing file yields the defaults.
func LoadFrom(dir string) (*Config, error) {
	v := viper.New()
	setDefaults(v, dir)
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	path := filepath.Join(dir, configFile)
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to decode config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Dir = dir
	if cfg.CalendarID == "" {
		cfg.CalendarID = "primary"
	}
	if cfg.Workers < 1 {
		return nil, fmt.Errorf("invalid config: workers must be at least 1, got %d", cfg.Workers)
	}
	if cfg.QueueSize < 1 {
		return nil, fmt.Errorf("invalid config: queue_size must be at least 1, got %d", cfg.QueueSize)
	}
	return &cfg, nil
}

// Set updates one key in config.json in dir, creating the file if needed.
func Set(dir, key string, value any) error {
	if !knownKey(key) {
		return fmt.Errorf("unknown config key %q", key)
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	path := filepath.Join(dir, configFile)
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to decode config: %w", err)
		}
	}
	v.Set(key, value)
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return os.Chmod(path, 0600)
}

func knownKey(key string) bool {
	switch key {
	case "calendar_id", "client_id", "client_secret", "callback_port", "db_path", "workers", "queue_size":
		return true
	}
	return false
}
