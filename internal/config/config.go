package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server  ServerConfig
	Logging LoggingConfig
	Engine  EngineConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port            string
	Environment     string
	ShutdownTimeout time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string // json or console
}

// EngineConfig holds form-engine limits applied at the service boundary
type EngineConfig struct {
	MaxFieldsPerProtocol int
	MaxRepeatCount       int
}

// Load reads configuration from environment variables and config files
func Load() (*Config, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// Read from environment variables
	v.AutomaticEnv()

	// Bind specific environment variables
	bindEnvVars(v)

	// Unmarshal into config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.shutdowntimeout", 30*time.Second)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Engine defaults
	v.SetDefault("engine.maxfieldsperprotocol", 500)
	v.SetDefault("engine.maxrepeatcount", 100)
}

// bindEnvVars binds environment variables to config keys
func bindEnvVars(v *viper.Viper) {
	// Server
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.environment", "ENV", "ENVIRONMENT")

	// Logging
	v.BindEnv("logging.level", "LOG_LEVEL")
	v.BindEnv("logging.format", "LOG_FORMAT")

	// Engine
	v.BindEnv("engine.maxfieldsperprotocol", "ENGINE_MAX_FIELDS_PER_PROTOCOL")
	v.BindEnv("engine.maxrepeatcount", "ENGINE_MAX_REPEAT_COUNT")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}

	if c.Engine.MaxFieldsPerProtocol < 1 {
		return fmt.Errorf("engine.maxfieldsperprotocol must be positive")
	}

	if c.Engine.MaxRepeatCount < 1 {
		return fmt.Errorf("engine.maxrepeatcount must be positive")
	}

	return nil
}
