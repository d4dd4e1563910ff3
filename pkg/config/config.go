package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variable.
type Config struct {
	// Backend endpoints
	HTTPEndpoint string `mapstructure:"HTTP_ENDPOINT" validate:"required,url"`
	RPGAddress   string `mapstructure:"RPG_ADDRESS" validate:"required"`

	// API credentials
	APIKey    string `mapstructure:"API_KEY" validate:"required"`
	APISecret string `mapstructure:"API_SECRET" validate:"required"`

	// Local store
	DBPath        string `mapstructure:"DB_PATH" validate:"required"`
	EncryptionKey string `mapstructure:"SYNC_SECRET" validate:"required,len=64"`

	// Transport tuning
	HTTPWorkerCount      int `mapstructure:"HTTP_WORKER_COUNT" validate:"min=1"`
	HTTPTimeoutSeconds   int `mapstructure:"HTTP_TIMEOUT_SECONDS" validate:"min=1"`
	SweepIntervalSeconds int `mapstructure:"SWEEP_INTERVAL_SECONDS" validate:"min=1"`
	EventBufferSize      int `mapstructure:"EVENT_BUFFER_SIZE" validate:"min=1"`

	// Diagnostics endpoint
	DiagAddress string `mapstructure:"DIAG_ADDRESS"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// 1. Set Defaults
	v.SetDefault("HTTP_ENDPOINT", "https://api.example.net/rpc")
	v.SetDefault("RPG_ADDRESS", "rpg.example.net:9900")
	v.SetDefault("API_KEY", "")
	v.SetDefault("API_SECRET", "")
	v.SetDefault("DB_PATH", "socialsync.db")
	v.SetDefault("SYNC_SECRET", "1234567890123456789012345678901212345678901234567890123456789012")
	v.SetDefault("HTTP_WORKER_COUNT", 3)
	v.SetDefault("HTTP_TIMEOUT_SECONDS", 30)
	v.SetDefault("SWEEP_INTERVAL_SECONDS", 5)
	v.SetDefault("EVENT_BUFFER_SIZE", 100)
	v.SetDefault("DIAG_ADDRESS", "127.0.0.1:8866")

	// 2. Read app.yaml if exists
	v.AddConfigPath(path)
	v.SetConfigName("app")
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	// 3. Read .env if exists (overriding app.yaml)
	v.SetConfigName(".env")
	v.SetConfigType("env")
	if err := v.MergeInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	// 4. Allow Viper to read Environment Variables (highest priority)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := validator.New().Struct(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}
