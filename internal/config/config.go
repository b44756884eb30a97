package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/sagewood/backend-retreats/internal/pricing"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	JWTSecret          string
	CORSAllowedOrigins []string

	Currency        string
	SellerCountry   string
	VATRateBps      map[string]int
	StripeSecretKey     string
	StripeWebhookSecret string
	StripeBaseURL       string
	CheckoutSuccessURL  string
	CheckoutCancelURL   string

	AccessTokenTTL    time.Duration
	IdempotencyTTL    time.Duration
	WaitlistNotifyTTL time.Duration
	CheckoutTTL       time.Duration

	EmailFrom string
	SMTPAddr  string

	AdminEmail    string
	AdminPassword string

	RateLimitGlobal      string
	RateLimitPromoBurst  int
	RateLimitPromoWindow time.Duration
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	vatTable, err := parseVATTable(k.String("VAT_RATE_TABLE"))
	if err != nil {
		return nil, fmt.Errorf("parse VAT_RATE_TABLE: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		JWTSecret:          k.String("JWT_SECRET"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		Currency:            valueOrDefault(k.String("CURRENCY"), "EUR"),
		SellerCountry:       strings.ToUpper(valueOrDefault(k.String("SELLER_COUNTRY"), "DE")),
		VATRateBps:          vatTable,
		StripeSecretKey:     k.String("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: k.String("STRIPE_WEBHOOK_SECRET"),
		StripeBaseURL:       valueOrDefault(k.String("STRIPE_BASE_URL"), "https://api.stripe.com"),
		CheckoutSuccessURL:  k.String("CHECKOUT_SUCCESS_URL"),
		CheckoutCancelURL:   k.String("CHECKOUT_CANCEL_URL"),

		AccessTokenTTL:    parseDuration(k.String("ACCESS_TOKEN_TTL"), "1h"),
		IdempotencyTTL:    parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		WaitlistNotifyTTL: parseDuration(k.String("WAITLIST_NOTIFY_TTL"), "48h"),
		CheckoutTTL:       parseDuration(k.String("CHECKOUT_TTL"), "30m"),

		EmailFrom: valueOrDefault(k.String("EMAIL_FROM"), "bookings@sagewood.example"),
		SMTPAddr:  k.String("SMTP_ADDR"),

		AdminEmail:    k.String("ADMIN_EMAIL"),
		AdminPassword: k.String("ADMIN_PASSWORD"),

		RateLimitGlobal:      valueOrDefault(k.String("RATE_LIMIT_GLOBAL"), "120-M"),
		RateLimitPromoBurst:  parseInt(k.String("RATE_LIMIT_PROMO_BURST"), 10),
		RateLimitPromoWindow: parseDuration(k.String("RATE_LIMIT_PROMO_WINDOW"), "1m"),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	return cfg, nil
}

// VATConfig builds the pricing tax configuration from the loaded settings.
// When no VAT_RATE_TABLE override is present the built-in EU table is used.
func (c *Config) VATConfig() pricing.VATConfig {
	table := c.VATRateBps
	if len(table) == 0 {
		table = pricing.DefaultEURates()
	}
	return pricing.VATConfig{
		HomeCountry: c.SellerCountry,
		RateBps:     table,
	}
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// parseVATTable parses "DE:1900,FR:2000" into a country to basis-points map.
func parseVATTable(value string) (map[string]int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	table := make(map[string]int)
	for _, pair := range strings.Split(value, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		country, rate, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("malformed entry %q", pair)
		}
		bps, err := strconv.Atoi(strings.TrimSpace(rate))
		if err != nil || bps < 0 {
			return nil, fmt.Errorf("invalid rate in entry %q", pair)
		}
		table[strings.ToUpper(strings.TrimSpace(country))] = bps
	}
	return table, nil
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

// MustLoad behaves like Load but panics on error. Useful for command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
