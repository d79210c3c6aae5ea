package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "secret")

	cfg, err := Load("does-not-exist.env")
	require.NoError(t, err)

	assert.Equal(t, int64(300), cfg.Fee.ServiceFeeBps)
	assert.Equal(t, "ZAR", cfg.KYC.BaseCurrency)
	assert.Equal(t, int64(500000), cfg.KYC.BronzeLimit)
	assert.Equal(t, 15*time.Second, cfg.PaymentProviders.HTTPTimeout)
	assert.Equal(t, "memory", cfg.EventBus.Driver)
	assert.Equal(t, []string{"localhost:9092"}, cfg.EventBus.KafkaBrokers)
	assert.Equal(t, "remittance", cfg.EventBus.GroupID)
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env.unit")
	require.NoError(t, os.WriteFile(envFile, []byte("FEE_SERVICE_FEE_BPS=250\nAUTH_JWT_SECRET=x\n"), 0o600))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		_ = os.Chdir(wd)
		_ = os.Unsetenv("FEE_SERVICE_FEE_BPS")
		_ = os.Unsetenv("AUTH_JWT_SECRET")
	})

	cfg, err := Load(".env.unit")
	require.NoError(t, err)
	assert.Equal(t, int64(250), cfg.Fee.ServiceFeeBps)
}

func TestLoad_MissingSecret(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "")
	_ = os.Unsetenv("AUTH_JWT_SECRET")

	_, err := Load("does-not-exist.env")
	assert.Error(t, err)
}

func TestMaskValue(t *testing.T) {
	assert.Equal(t, "****", maskValue("short"))
	assert.Equal(t, "sk****cdef", maskValue("sk_test_abcdef"))
}
