/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the transfer-status-service.
// These values are loaded from environment variables. Only SERVER_PORT is
// required in practice: the service runs fully in-memory when DATABASE_URL,
// RABBITMQ_URL, and REDIS_URL are absent.
type Config struct {
	ServerPort               string `mapstructure:"SERVER_PORT"`
	DatabaseURL              string `mapstructure:"DATABASE_URL"`
	RabbitMQURL              string `mapstructure:"RABBITMQ_URL"`
	TransferEventExchange    string `mapstructure:"TRANSFER_EVENT_EXCHANGE"`
	TransferEventQueue       string `mapstructure:"TRANSFER_EVENT_QUEUE"`
	ChangeFeedRoutingKey     string `mapstructure:"CHANGE_FEED_ROUTING_KEY"`
	RedisURL                 string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix     string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	SubmitRateLimitPerMinute int    `mapstructure:"SUBMIT_RATE_LIMIT_PER_MINUTE"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("TRANSFER_EVENT_EXCHANGE", "transfa.events")
	viper.SetDefault("TRANSFER_EVENT_QUEUE", "transfer_status_service.transfer_updates")
	viper.SetDefault("CHANGE_FEED_ROUTING_KEY", "transfer.derived.updated")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "transfa:rate_limit")
	viper.SetDefault("SUBMIT_RATE_LIMIT_PER_MINUTE", 0)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("TRANSFER_EVENT_EXCHANGE")
	_ = viper.BindEnv("TRANSFER_EVENT_QUEUE")
	_ = viper.BindEnv("CHANGE_FEED_ROUTING_KEY")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("SUBMIT_RATE_LIMIT_PER_MINUTE")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
		err = nil
	}

	// Unmarshal the configuration into the Config struct.
	if err = viper.Unmarshal(&config); err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.DatabaseURL = strings.TrimSpace(config.DatabaseURL)
	config.RabbitMQURL = strings.TrimSpace(config.RabbitMQURL)
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "transfa:rate_limit"
	}

	if config.SubmitRateLimitPerMinute < 0 {
		log.Printf("level=warn component=config msg=\"negative submit rate limit configured; disabling\" limit=%d", config.SubmitRateLimitPerMinute)
		config.SubmitRateLimitPerMinute = 0
	}

	return
}
