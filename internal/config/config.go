package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/BatmanBruc/hub-sales-bot/types"
)

// Config holds application configuration
type Config struct {
	TelegramBotToken    string `env:"TELEGRAM_BOT_TOKEN" validate:"required"`
	TelegramBotUsername string `env:"TELEGRAM_BOT_USERNAME"`
	ClubChannelID       int64  `env:"CLUB_CHANNEL_ID"`
	AdminUserIDs        []int64

	DatabaseURL    string `env:"DATABASE_URL" validate:"required_without_all=PostgresHost UseMemoryStore"`
	PostgresHost   string `env:"POSTGRES_HOST"`
	UseMemoryStore bool   `env:"USE_MEMORY_STORE"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" validate:"gte=0"`
	RedisPrefix   string `env:"REDIS_PREFIX"`

	StripeSecretKey         string `env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret     string `env:"STRIPE_WEBHOOK_SECRET"`
	StripePremiumPriceID    string `env:"STRIPE_PREMIUM_PRICE_ID"`
	StripeTestDrivePriceID  string `env:"STRIPE_TEST_DRIVE_PRICE_ID"`
	PremiumPromoCode        string `env:"PREMIUM_PROMO_CODE"`
	TestDrivePromoCode      string `env:"TEST_DRIVE_PROMO_CODE"`
	StripeStaticPremiumLink string `env:"STRIPE_STATIC_PREMIUM_LINK" validate:"omitempty,url"`
	StripeStaticTrialLink   string `env:"STRIPE_STATIC_TEST_DRIVE_LINK" validate:"omitempty,url"`
	UseStaticStripeLinks    bool   `env:"USE_STATIC_STRIPE_LINKS"`

	AWSRegion          string `env:"AWS_REGION"`
	BedrockModelID     string `env:"BEDROCK_MODEL_ID"`
	BedrockAltModelIDs []string
	GeminiAPIKey       string        `env:"GEMINI_API_KEY"`
	GeminiModelID      string        `env:"GEMINI_MODEL_ID"`
	LLMCallTimeout     time.Duration `env:"LLM_CALL_TIMEOUT" validate:"gt=0"`

	AMQPURL                string `env:"AMQP_URL"`
	BroadcastRatePerSecond int    `env:"BROADCAST_RATE_PER_SECOND" validate:"gte=1,lte=30"`

	HTTPAddr        string        `env:"HTTP_ADDR" validate:"required"`
	PublicBaseURL   string        `env:"PUBLIC_BASE_URL" validate:"omitempty,url"`
	GracePeriodDays int           `env:"GRACE_PERIOD_DAYS" validate:"gte=0"`
	SweepInterval   time.Duration `env:"SWEEP_INTERVAL" validate:"gt=0"`
	AccessLinkTTL   time.Duration `env:"ACCESS_LINK_TTL" validate:"gt=0"`
	LogLevel        string        `env:"LOG_LEVEL" validate:"oneof=debug info warn error"`
}

// Load reads configuration from the environment with defaults.
func Load() *Config {
	return &Config{
		TelegramBotToken:    getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramBotUsername: strings.TrimPrefix(getEnv("TELEGRAM_BOT_USERNAME", ""), "@"),
		ClubChannelID:       getEnvAsInt64("CLUB_CHANNEL_ID", 0),
		AdminUserIDs:        getEnvAsInt64List("ADMIN_USER_IDS"),

		DatabaseURL:    getEnv("DATABASE_URL", ""),
		PostgresHost:   getEnv("POSTGRES_HOST", ""),
		UseMemoryStore: getEnvAsBool("USE_MEMORY_STORE", false),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),
		RedisPrefix:   getEnv("REDIS_PREFIX", "hub"),

		StripeSecretKey:         getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret:     getEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripePremiumPriceID:    getEnv("STRIPE_PREMIUM_PRICE_ID", ""),
		StripeTestDrivePriceID:  getEnv("STRIPE_TEST_DRIVE_PRICE_ID", ""),
		PremiumPromoCode:        getEnv("PREMIUM_PROMO_CODE", ""),
		TestDrivePromoCode:      getEnv("TEST_DRIVE_PROMO_CODE", ""),
		StripeStaticPremiumLink: getEnv("STRIPE_STATIC_PREMIUM_LINK", ""),
		StripeStaticTrialLink:   getEnv("STRIPE_STATIC_TEST_DRIVE_LINK", ""),
		UseStaticStripeLinks:    getEnvAsBool("USE_STATIC_STRIPE_LINKS", false),

		AWSRegion:          getEnv("AWS_REGION", "us-east-1"),
		BedrockModelID:     getEnv("BEDROCK_MODEL_ID", ""),
		BedrockAltModelIDs: getEnvAsList("BEDROCK_ALT_MODEL_IDS"),
		GeminiAPIKey:       getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:      getEnv("GEMINI_MODEL_ID", ""),
		LLMCallTimeout:     getEnvAsDuration("LLM_CALL_TIMEOUT", 30*time.Second),

		AMQPURL:                getEnv("AMQP_URL", ""),
		BroadcastRatePerSecond: getEnvAsInt("BROADCAST_RATE_PER_SECOND", 25),

		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		PublicBaseURL:   strings.TrimRight(getEnv("PUBLIC_BASE_URL", ""), "/"),
		GracePeriodDays: getEnvAsInt("GRACE_PERIOD_DAYS", 3),
		SweepInterval:   getEnvAsDuration("SWEEP_INTERVAL", time.Hour),
		AccessLinkTTL:   getEnvAsDuration("ACCESS_LINK_TTL", 24*time.Hour),
		LogLevel:        strings.ToLower(getEnv("LOG_LEVEL", "info")),
	}
}

var validate = validator.New()

// Validate checks the settings every command needs. A missing required
// value is reported as *types.ConfigMissingError naming the variable.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config: %w", err)
	}
	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		key := envKey(fe.StructField())
		if strings.HasPrefix(fe.Tag(), "required") {
			return types.MissingConfig(key)
		}
		problems = append(problems, fmt.Sprintf("%s: failed %q", key, fe.Tag()))
	}
	return fmt.Errorf("config: invalid settings: %s", strings.Join(problems, "; "))
}

func envKey(field string) string {
	f, ok := reflect.TypeOf(Config{}).FieldByName(field)
	if !ok {
		return field
	}
	if key := f.Tag.Get("env"); key != "" {
		return key
	}
	return field
}

func (c *Config) GracePeriod() time.Duration {
	return time.Duration(c.GracePeriodDays) * 24 * time.Hour
}

func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.AdminUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func (c *Config) PriceIDs() map[string]string {
	return map[string]string{
		types.PlanPremiumHub: c.StripePremiumPriceID,
		types.PlanTestDrive:  c.StripeTestDrivePriceID,
	}
}

func (c *Config) PromoCodes() map[string]string {
	return map[string]string{
		types.PlanPremiumHub: c.PremiumPromoCode,
		types.PlanTestDrive:  c.TestDrivePromoCode,
	}
}

func (c *Config) StaticLinks() map[string]string {
	return map[string]string{
		types.PlanPremiumHub: c.StripeStaticPremiumLink,
		types.PlanTestDrive:  c.StripeStaticTrialLink,
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value, err := strconv.ParseInt(getEnv(key, ""), 10, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnvAsInt64List skips entries that are not integers.
func getEnvAsInt64List(key string) []int64 {
	var out []int64
	for _, part := range getEnvAsList(key) {
		if id, err := strconv.ParseInt(part, 10, 64); err == nil {
			out = append(out, id)
		}
	}
	return out
}
