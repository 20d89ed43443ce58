/**
 * @description
 * This package handles configuration management for the KeepSafe API. It uses
 * the Viper library to read configuration from environment variables (and an
 * optional .env file), providing a centralized way to manage settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */
package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort       string `mapstructure:"SERVER_PORT"`
	DatabaseURL      string `mapstructure:"DATABASE_URL"`
	SessionJWTSecret string `mapstructure:"SESSION_JWT_SECRET"`
	AppBaseURL       string `mapstructure:"APP_BASE_URL"`

	// Billing provider
	StripeSecretKey string `mapstructure:"STRIPE_SECRET_KEY"`
	DefaultPlanName string `mapstructure:"DEFAULT_PLAN_NAME"`

	// Mail transport for email forwarding
	WebhookSigningSecret   string `mapstructure:"WEBHOOK_SIGNING_SECRET"`
	EmailRetentionDays     int    `mapstructure:"EMAIL_RETENTION_DAYS"`
	EmailRetentionSchedule string `mapstructure:"EMAIL_RETENTION_SCHEDULE"`

	EmailDomain  string `mapstructure:"EMAIL_DOMAIN"`
	EmailFrom    string `mapstructure:"EMAIL_FROM"`
	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     string `mapstructure:"SMTP_PORT"`
	SMTPUser     string `mapstructure:"SMTP_USER"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`

	// Event bus and rate limiting; both optional
	RabbitMQURL                  string `mapstructure:"RABBITMQ_URL"`
	EventExchange                string `mapstructure:"EVENT_EXCHANGE"`
	RedisURL                     string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix         string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	CheckoutRateLimitPerMinute   int    `mapstructure:"CHECKOUT_RATE_LIMIT_PER_MINUTE"`
	ForwardingRateLimitPerMinute int    `mapstructure:"FORWARDING_RATE_LIMIT_PER_MINUTE"`
}

// LoadConfig reads configuration from environment variables from the given
// path. It uses Viper to bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("APP_BASE_URL", "http://localhost:3000")
	viper.SetDefault("DEFAULT_PLAN_NAME", "Pro")
	viper.SetDefault("EMAIL_DOMAIN", "mail.keepsafe.app")
	viper.SetDefault("SMTP_PORT", "2525")
	viper.SetDefault("EMAIL_RETENTION_DAYS", 0)
	viper.SetDefault("EMAIL_RETENTION_SCHEDULE", "0 3 * * *")
	viper.SetDefault("EVENT_EXCHANGE", "keepsafe.events")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "keepsafe:rate_limit")
	viper.SetDefault("CHECKOUT_RATE_LIMIT_PER_MINUTE", 10)
	viper.SetDefault("FORWARDING_RATE_LIMIT_PER_MINUTE", 30)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("SESSION_JWT_SECRET")
	_ = viper.BindEnv("APP_BASE_URL")
	_ = viper.BindEnv("STRIPE_SECRET_KEY")
	_ = viper.BindEnv("DEFAULT_PLAN_NAME")
	_ = viper.BindEnv("WEBHOOK_SIGNING_SECRET")
	_ = viper.BindEnv("EMAIL_RETENTION_DAYS")
	_ = viper.BindEnv("EMAIL_RETENTION_SCHEDULE")
	_ = viper.BindEnv("EMAIL_DOMAIN")
	_ = viper.BindEnv("EMAIL_FROM")
	_ = viper.BindEnv("SMTP_HOST")
	_ = viper.BindEnv("SMTP_PORT")
	_ = viper.BindEnv("SMTP_USER")
	_ = viper.BindEnv("SMTP_PASSWORD")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("EVENT_EXCHANGE")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("CHECKOUT_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("FORWARDING_RATE_LIMIT_PER_MINUTE")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
		err = nil
	}

	if err = viper.Unmarshal(&config); err != nil {
		return
	}

	config.RedisURL = strings.TrimSpace(config.RedisURL)
	if config.EmailFrom == "" {
		config.EmailFrom = "KeepSafe <no-reply@" + config.EmailDomain + ">"
	}
	if config.CheckoutRateLimitPerMinute < 0 {
		config.CheckoutRateLimitPerMinute = 0
	}
	if config.ForwardingRateLimitPerMinute < 0 {
		config.ForwardingRateLimitPerMinute = 0
	}
	return
}
