/**
 * @description
 * This package handles the configuration management for the service. It uses
 * the Viper library to read configuration from environment variables,
 * providing a centralized and straightforward way to manage application
 * settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"errors"
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the ledger service. These
// values are loaded from environment variables.
type Config struct {
	ServerPort         string `mapstructure:"SERVER_PORT"`
	MetricsAddr        string `mapstructure:"METRICS_ADDR"`
	DatabaseURL        string `mapstructure:"DATABASE_URL"`
	RabbitMQURL        string `mapstructure:"RABBITMQ_URL"`
	TokenSigningSecret string `mapstructure:"TOKEN_SIGNING_SECRET"`
	TokenTTLMinutes    int    `mapstructure:"TOKEN_TTL_MINUTES"`
	BcryptCost         int    `mapstructure:"BCRYPT_COST"`
}

// LoadConfig reads configuration from environment variables from the given
// path. It uses Viper to automatically bind environment variables to the
// Config struct.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("METRICS_ADDR", "")
	viper.SetDefault("TOKEN_TTL_MINUTES", 45)
	viper.SetDefault("BCRYPT_COST", 0)

	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("METRICS_ADDR")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("TOKEN_SIGNING_SECRET")
	_ = viper.BindEnv("TOKEN_TTL_MINUTES")
	_ = viper.BindEnv("BCRYPT_COST")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	if err = viper.Unmarshal(&config); err != nil {
		return
	}

	// A platform-provided PORT (e.g. Railway/Render) takes precedence.
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}

	config.TokenSigningSecret = strings.TrimSpace(config.TokenSigningSecret)
	if config.TokenSigningSecret == "" {
		return config, errors.New("TOKEN_SIGNING_SECRET must be set")
	}

	if config.TokenTTLMinutes <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive token ttl configured; using default\" ttl_minutes=%d", config.TokenTTLMinutes)
		config.TokenTTLMinutes = 45
	}

	return
}
