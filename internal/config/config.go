// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration values loaded from file or environment variables.
// It is read-only after startup and injected explicitly into each component.
type Config struct {
	Port       string `mapstructure:"PORT"`
	Env        string `mapstructure:"APP_ENV"`
	DBHost     string `mapstructure:"DB_HOST"`
	DBPort     string `mapstructure:"DB_PORT"`
	DBUser     string `mapstructure:"DB_USER"`
	DBPassword string `mapstructure:"DB_PASSWORD"`
	DBName     string `mapstructure:"DB_NAME"`
	DBSSLMode  string `mapstructure:"DB_SSLMODE"`
	DBSchema   string `mapstructure:"DB_SCHEMA"`
	RedisURL   string `mapstructure:"REDIS_URL"`

	// Collaborator service base URLs. The metadata service answers graph
	// node lookups, the data-ops service hosts the copy pipeline trigger.
	MetadataServiceURL string `mapstructure:"METADATA_SERVICE_URL"`
	DataOpsServiceURL  string `mapstructure:"DATA_OPS_SERVICE_URL"`
	AuthServiceURL     string `mapstructure:"AUTH_SERVICE_URL"`
	EmailServiceURL    string `mapstructure:"EMAIL_SERVICE_URL"`

	SupportEmail       string `mapstructure:"SUPPORT_EMAIL"`
	UpstreamTimeoutSec int    `mapstructure:"UPSTREAM_TIMEOUT_SECONDS"`
	AllowedOrigins     string `mapstructure:"ALLOWED_ORIGINS"`
}

// UpstreamTimeout is the bound applied to every outbound collaborator call.
func (c *Config) UpstreamTimeout() time.Duration {
	return time.Duration(c.UpstreamTimeoutSec) * time.Second
}

// LoadConfig loads application configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// Initial read to get APP_ENV if set in base config
	// We intentionally ignore this error as the config file may not exist yet
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" && env != "" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
	}

	// Set default values for development
	viper.SetDefault("PORT", "8000")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "user")
	viper.SetDefault("DB_PASSWORD", "password")
	viper.SetDefault("DB_NAME", "approval")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("DB_SCHEMA", "approval")
	viper.SetDefault("REDIS_URL", "localhost:6379")
	viper.SetDefault("METADATA_SERVICE_URL", "http://localhost:5062")
	viper.SetDefault("DATA_OPS_SERVICE_URL", "http://localhost:5063")
	viper.SetDefault("AUTH_SERVICE_URL", "http://localhost:5061")
	viper.SetDefault("EMAIL_SERVICE_URL", "http://localhost:5065")
	viper.SetDefault("SUPPORT_EMAIL", "support@example.org")
	viper.SetDefault("UPSTREAM_TIMEOUT_SECONDS", 15)
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000")

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.DBSchema == "" {
		return errors.New("DB_SCHEMA is required")
	}
	for name, value := range map[string]string{
		"METADATA_SERVICE_URL": c.MetadataServiceURL,
		"DATA_OPS_SERVICE_URL": c.DataOpsServiceURL,
		"AUTH_SERVICE_URL":     c.AuthServiceURL,
		"EMAIL_SERVICE_URL":    c.EmailServiceURL,
	} {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
		if !strings.HasPrefix(value, "http://") && !strings.HasPrefix(value, "https://") {
			return fmt.Errorf("%s must be an http(s) URL", name)
		}
	}
	if c.UpstreamTimeoutSec <= 0 {
		return errors.New("UPSTREAM_TIMEOUT_SECONDS must be positive")
	}

	isProduction := c.Env == "production" || c.Env == "prod"

	// Strict checks for production
	if isProduction {
		if c.DBPassword == "password" || c.DBPassword == "" {
			return errors.New("a strong DB_PASSWORD is required in production")
		}
		if c.DBSSLMode == "disable" || c.DBSSLMode == "" {
			log.Println("WARNING: DB_SSLMODE is 'disable' in production. It is highly recommended to use SSL for database connections.")
		}
		if c.AllowedOrigins == "*" {
			log.Println("WARNING: ALLOWED_ORIGINS is set to '*' in production. This is insecure.")
		}
	}

	return nil
}
