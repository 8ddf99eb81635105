package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the base name for configuration files (without extension).
	ConfigFileName = "qto"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "QTO"
)

// Loader handles loading configuration from various sources.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	// Use the global viper instance so cobra flag bindings work
	return &Loader{v: viper.GetViper()}
}

// Load loads configuration from files, environment variables, and defaults,
// then validates it.
func (l *Loader) Load() (*Config, error) {
	l.v.SetConfigName(ConfigFileName)
	l.v.SetConfigType("yaml")

	l.addConfigPaths()
	l.setupEnvironmentVariables()
	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		// Missing config file is fine; defaults and env vars still apply
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &config, nil
}

// LoadWithFile loads configuration from a specific file path.
func (l *Loader) LoadWithFile(configFile string) (*Config, error) {
	if configFile == "" {
		return l.Load()
	}
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configFile)
	}

	l.v.SetConfigFile(configFile)
	l.setupEnvironmentVariables()
	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	var config Config
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &config, nil
}

// addConfigPaths registers the config file search locations.
func (l *Loader) addConfigPaths() {
	l.v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		l.v.AddConfigPath(filepath.Join(home, ".config", "qto"))
		l.v.AddConfigPath(home)
	}
	l.v.AddConfigPath("/etc/qto")
}

// setupEnvironmentVariables enables QTO_* environment overrides, with dots
// replaced by underscores (e.g. QTO_PIPELINE_MAX_UPLOAD_MB).
func (l *Loader) setupEnvironmentVariables() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()
}

// setDefaults registers default values for all settings.
func (l *Loader) setDefaults() {
	l.v.SetDefault("log_level", "info")
	l.v.SetDefault("verbose", false)

	l.v.SetDefault("pipeline.max_upload_mb", 20)
	l.v.SetDefault("pipeline.max_pages_per_chunk", 8)
	l.v.SetDefault("pipeline.max_chunk_mb", 8)
	l.v.SetDefault("pipeline.timeout_sec", 300)
	l.v.SetDefault("pipeline.max_in_flight_chunks", 4)
	l.v.SetDefault("pipeline.preparse_min_quality", 0.3)

	l.v.SetDefault("recognition.endpoint", "")
	l.v.SetDefault("recognition.api_key", "")
	l.v.SetDefault("recognition.timeout_sec", 60)
	l.v.SetDefault("recognition.stub", false)

	l.v.SetDefault("mapping.model", "gemini-1.5-flash")
	l.v.SetDefault("mapping.api_key", "")
	l.v.SetDefault("mapping.timeout_sec", 90)
	l.v.SetDefault("mapping.stub", false)

	l.v.SetDefault("server.host", "localhost")
	l.v.SetDefault("server.port", 8080)
	l.v.SetDefault("server.cors_origin", "*")
	l.v.SetDefault("server.shutdown_timeout", 10)
	l.v.SetDefault("server.rate_limit_per_minute", 0)
	l.v.SetDefault("server.daily_upload_mb", 0)
}
