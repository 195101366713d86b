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
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the agent service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort           string `mapstructure:"SERVER_PORT"`
	Environment          string `mapstructure:"ENVIRONMENT"`
	DatabaseURL          string `mapstructure:"DATABASE_URL"`
	RedisURL             string `mapstructure:"REDIS_URL"`
	RabbitMQURL          string `mapstructure:"RABBITMQ_URL"`
	BillingServiceURL    string `mapstructure:"BILLING_SERVICE_URL"`
	BillingServiceAPIKey string `mapstructure:"BILLING_SERVICE_API_KEY"`
	StripeAPIBaseURL     string `mapstructure:"STRIPE_API_BASE_URL"`
	StripeSecretKey      string `mapstructure:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret  string `mapstructure:"STRIPE_WEBHOOK_SECRET"`
	ClerkJWKSURL         string `mapstructure:"CLERK_JWKS_URL"`
	EncryptionKey        string `mapstructure:"ENCRYPTION_KEY"`
	CORSAllowedOrigins   string `mapstructure:"CORS_ALLOWED_ORIGINS"`
	RateLimitRequests    int    `mapstructure:"RATE_LIMIT_REQUESTS"`
	RateLimitWindowMin   int    `mapstructure:"RATE_LIMIT_WINDOW_MINUTES"`
}

// IsTest reports whether the service runs in a test environment, where
// billing calls are skipped.
func (c Config) IsTest() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "test")
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS on commas. An empty value means
// the router falls back to its permissive wildcard defaults.
func (c Config) AllowedOrigins() []string {
	raw := strings.TrimSpace(c.CORSAllowedOrigins)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			origins = append(origins, p)
		}
	}
	return origins
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
	viper.SetDefault("ENVIRONMENT", "development")
	viper.SetDefault("STRIPE_API_BASE_URL", "https://api.stripe.com")
	viper.SetDefault("RATE_LIMIT_REQUESTS", 100)
	viper.SetDefault("RATE_LIMIT_WINDOW_MINUTES", 15)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("ENVIRONMENT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("BILLING_SERVICE_URL")
	_ = viper.BindEnv("BILLING_SERVICE_API_KEY")
	_ = viper.BindEnv("STRIPE_API_BASE_URL")
	_ = viper.BindEnv("STRIPE_SECRET_KEY")
	_ = viper.BindEnv("STRIPE_WEBHOOK_SECRET")
	_ = viper.BindEnv("CLERK_JWKS_URL")
	_ = viper.BindEnv("ENCRYPTION_KEY")
	_ = viper.BindEnv("CORS_ALLOWED_ORIGINS")
	_ = viper.BindEnv("RATE_LIMIT_REQUESTS")
	_ = viper.BindEnv("RATE_LIMIT_WINDOW_MINUTES")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	// Hosting platforms commonly inject PORT instead of SERVER_PORT.
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.EncryptionKey = strings.TrimSpace(config.EncryptionKey)

	if config.RateLimitRequests < 0 {
		log.Printf("level=warn component=config msg=\"negative rate limit configured; coercing to zero\" requests=%d", config.RateLimitRequests)
		config.RateLimitRequests = 0
	}

	return config, config.validate()
}

// validate checks the settings the service cannot run without.
func (c Config) validate() error {
	var missing []string
	if strings.TrimSpace(c.DatabaseURL) == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.EncryptionKey == "" {
		missing = append(missing, "ENCRYPTION_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}
