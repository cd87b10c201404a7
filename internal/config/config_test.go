package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "usd", cfg.Stripe.Currency)
	assert.Equal(t, int64(50), cfg.Stripe.MinimumChargeCents)
	assert.Equal(t, int64(15), cfg.Stripe.BufferPercent)
	assert.Equal(t, "NELA", cfg.Notify.Brand)
	assert.Equal(t, 8, cfg.Notify.ETAMinutes)
	assert.Equal(t, "America/Los_Angeles", cfg.Notify.TimeZone)
	assert.Equal(t, 5*time.Second, cfg.Stream.Block)
	assert.Equal(t, time.Minute, cfg.Stream.ClaimIdle)
	assert.Equal(t, 100, cfg.Outbox.BatchSize)
	assert.Equal(t, 5*time.Minute, cfg.Timeout.Search)
}

func TestLoad_ReadsBareAndPrefixedNames(t *testing.T) {
	t.Setenv("TWILIO_AUTH_TOKEN", "secret")
	t.Setenv("RIDE_NOTIFY_NOTIFY_BRAND", "Acme")
	t.Setenv("SERVER_ALLOWED_ORIGINS", "https://a.example.com,https://b.example.com")
	t.Setenv("TIMEOUT_SEARCH", "90s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.Twilio.AuthToken)
	assert.Equal(t, "Acme", cfg.Notify.Brand)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 90*time.Second, cfg.Timeout.Search)
}

func TestLoad_RejectsBadValues(t *testing.T) {
	t.Run("negative buffer", func(t *testing.T) {
		t.Setenv("STRIPE_AUTH_BUFFER_PERCENT", "-5")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("zero search timeout", func(t *testing.T) {
		t.Setenv("TIMEOUT_SEARCH", "0s")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("unknown time zone", func(t *testing.T) {
		t.Setenv("NOTIFY_TIME_ZONE", "Mars/Olympus_Mons")
		_, err := Load()
		assert.Error(t, err)
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "rides", SSLMode: "disable"}

	assert.Equal(t, "host=db port=5432 user=u password=p dbname=rides sslmode=disable", c.DSN())
}
