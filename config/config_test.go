package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("AUTH_JWT_SECRET", "test-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "marketplace-events", cfg.Kafka.TopicEvents)
	assert.Equal(t, 10*time.Minute, cfg.Business.PaymentTimeout)
	assert.Equal(t, 2*time.Hour, cfg.Business.PesapalTimeout)
	assert.Equal(t, int64(10), cfg.Business.CommissionPercent)
	assert.NotEmpty(t, cfg.Server.InstanceID)
	assert.False(t, cfg.Mpesa.Enabled())
	assert.False(t, cfg.Pesapal.Enabled())
}

func TestLoadCustomValues(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("AUTH_JWT_SECRET", "test-secret")
	t.Setenv("PORT", "9000")
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("PAYMENT_TIMEOUT", "90s")
	t.Setenv("MPESA_CONSUMER_KEY", "key")
	t.Setenv("MPESA_CONSUMER_SECRET", "secret")
	t.Setenv("MPESA_PASSKEY", "pass")
	t.Setenv("INSTANCE_ID", "node-1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 90*time.Second, cfg.Business.PaymentTimeout)
	assert.Equal(t, "node-1", cfg.Server.InstanceID)
	assert.True(t, cfg.Mpesa.Enabled())
}

func TestLoadRequiresSecret(t *testing.T) {
	for _, env := range []string{"development", "production"} {
		t.Run(env, func(t *testing.T) {
			t.Setenv("CONFIG_PATH", "")
			t.Setenv("ENV", env)
			t.Setenv("AUTH_JWT_SECRET", "")

			_, err := Load()
			assert.ErrorContains(t, err, "AUTH_JWT_SECRET")
		})
	}
}

func TestLoadRejectsCommissionOutOfRange(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("AUTH_JWT_SECRET", "test-secret")
	t.Setenv("COMMISSION_PERCENT", "150")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte("server:\n  port: \"7000\"\nbusiness:\n  min_withdrawal: 250\n")
	require.NoError(t, os.WriteFile(path, body, 0o600))

	t.Setenv("CONFIG_PATH", path)
	t.Setenv("AUTH_JWT_SECRET", "test-secret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "7000", cfg.Server.Port)
	assert.Equal(t, int64(250), cfg.Business.MinWithdrawal)
}
