// Package config provides configuration management for the profile manager server.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration values for the server.
type Config struct {
	// Server configuration
	Port string `yaml:"port"`
	Env  string `yaml:"env"`

	// Database configuration
	DatabaseURL string `yaml:"database_url"`

	// CORS configuration
	CORSOrigin string `yaml:"cors_origin"`

	// Logging
	LogLevel string `yaml:"log_level"`

	// Archive working directories live under WorkDir/SDProfileManager.
	WorkDir string `yaml:"work_dir"`

	// Plugin catalog root. Empty selects the Stream Deck plugin directory
	// of the current user.
	PluginRoot string `yaml:"plugin_root"`

	// Workspace configuration
	HistoryDepth      int  `yaml:"history_depth"`
	MaxPages          int  `yaml:"max_pages"`
	LockSourceProfile bool `yaml:"lock_source_profile"`

	// Resolved image path cache capacity
	ImageCacheSize int `yaml:"image_cache_size"`

	// Stale working directory sweep. An empty schedule disables it.
	JanitorSchedule string        `yaml:"janitor_schedule"`
	JanitorMaxAge   time.Duration `yaml:"janitor_max_age"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() *Config {
	return &Config{
		Port:              "4100",
		Env:               "development",
		DatabaseURL:       "file:./sdprofilemanager.db",
		CORSOrigin:        "http://localhost:3000",
		LogLevel:          "info",
		WorkDir:           os.TempDir(),
		PluginRoot:        "",
		HistoryDepth:      80,
		MaxPages:          10,
		LockSourceProfile: true,
		ImageCacheSize:    4096,
		JanitorSchedule:   "@every 1h",
		JanitorMaxAge:     24 * time.Hour,
	}
}

// Load loads configuration from environment variables with sensible defaults.
func Load() *Config {
	cfg := Defaults()
	cfg.applyEnv()
	return cfg
}

// LoadFile reads a YAML configuration file over the defaults and then
// applies environment overrides.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	// Server
	c.Port = getEnv("PORT", c.Port)
	c.Env = getEnv("ENV", c.Env)

	// Database
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)

	// CORS
	c.CORSOrigin = getEnv("CORS_ORIGIN", c.CORSOrigin)

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.WorkDir = getEnv("WORK_DIR", c.WorkDir)
	c.PluginRoot = getEnv("PLUGIN_ROOT", c.PluginRoot)

	// Workspace
	c.HistoryDepth = getEnvInt("HISTORY_DEPTH", c.HistoryDepth)
	c.MaxPages = getEnvInt("MAX_PAGES", c.MaxPages)
	c.LockSourceProfile = getEnvBool("LOCK_SOURCE_PROFILE", c.LockSourceProfile)

	c.ImageCacheSize = getEnvInt("IMAGE_CACHE_SIZE", c.ImageCacheSize)

	// Janitor
	c.JanitorSchedule = getEnv("JANITOR_SCHEDULE", c.JanitorSchedule)
	c.JanitorMaxAge = getEnvDuration("JANITOR_MAX_AGE", c.JanitorMaxAge)
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt returns the integer value of an environment variable or a default value.
func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvBool returns the boolean value of an environment variable or a default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvDuration returns the duration value of an environment variable or a default value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
