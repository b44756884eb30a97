package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sagewood/backend-retreats/internal/config"
)

func baseEnv() map[string]string {
	return map[string]string{
		"DATABASE_URL": "postgres://localhost:5432/retreats",
		"REDIS_URL":    "redis://localhost:6379/0",
		"JWT_SECRET":   "test-secret",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.LoadForTests(baseEnv())
	require.NoError(t, err)

	require.Equal(t, "development", cfg.AppEnv)
	require.Equal(t, ":8080", cfg.HTTPAddr())
	require.Equal(t, "EUR", cfg.Currency)
	require.Equal(t, "DE", cfg.SellerCountry)
	require.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	require.Equal(t, 48*time.Hour, cfg.WaitlistNotifyTTL)
	require.Equal(t, "120-M", cfg.RateLimitGlobal)
}

func TestLoadRequiresCoreSettings(t *testing.T) {
	env := baseEnv()
	env["DATABASE_URL"] = ""
	_, err := config.LoadForTests(env)
	require.Error(t, err)

	env = baseEnv()
	env["JWT_SECRET"] = ""
	_, err = config.LoadForTests(env)
	require.Error(t, err)
}

func TestVATTableOverride(t *testing.T) {
	env := baseEnv()
	env["SELLER_COUNTRY"] = "fr"
	env["VAT_RATE_TABLE"] = "de:1900, FR:2000,AT:2000"

	cfg, err := config.LoadForTests(env)
	require.NoError(t, err)
	require.Equal(t, "FR", cfg.SellerCountry)
	require.Equal(t, map[string]int{"DE": 1900, "FR": 2000, "AT": 2000}, cfg.VATRateBps)

	vat := cfg.VATConfig()
	require.Equal(t, "FR", vat.HomeCountry)
	require.Equal(t, 1900, vat.RateBps["DE"])
}

func TestVATTableMalformed(t *testing.T) {
	env := baseEnv()
	env["VAT_RATE_TABLE"] = "DE=1900"
	_, err := config.LoadForTests(env)
	require.Error(t, err)
}

func TestVATConfigFallsBackToBuiltinTable(t *testing.T) {
	cfg, err := config.LoadForTests(baseEnv())
	require.NoError(t, err)

	vat := cfg.VATConfig()
	require.Equal(t, 1900, vat.RateBps["DE"])
	require.Equal(t, 2000, vat.RateBps["FR"])
}
