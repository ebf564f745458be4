package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPayoutConfigHolderReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "payout.yaml")
	content := []byte(`payout:
  default_min_payout_cents: 10000
  tax_reporting_threshold_cents: 75000
  fees:
    bank_wire: 3000
    check: 150
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	holder, err := NewPayoutConfigHolder(Config{PayoutConfigPath: path}, zap.NewNop())
	require.NoError(t, err)

	cfg := holder.Get()
	assert.Equal(t, int64(10000), cfg.DefaultMinPayoutCents)
	assert.Equal(t, int64(75000), cfg.TaxReportingThresholdCents)
	assert.Equal(t, int64(3000), cfg.FeeFor("bank_wire"))
	assert.Equal(t, int64(150), cfg.FeeFor("CHECK"))
	assert.Equal(t, int64(0), cfg.FeeFor("paypal"))
}

func TestPayoutConfigHolderRejectsNegativeFee(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "payout.yaml")
	require.NoError(t, os.WriteFile(path, []byte("payout:\n  fees:\n    bank_wire: -1\n"), 0o600))

	_, err := NewPayoutConfigHolder(Config{PayoutConfigPath: path}, zap.NewNop())
	require.Error(t, err)
}

func TestDefaultPayoutConfig(t *testing.T) {
	cfg := NewStaticPayoutConfigHolder(DefaultPayoutConfig()).Get()
	assert.Equal(t, int64(5000), cfg.DefaultMinPayoutCents)
	assert.Equal(t, int64(2500), cfg.FeeFor("bank_wire"))
	assert.Equal(t, int64(0), cfg.FeeFor("stripe_connect"))
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,")
	t.Setenv("PAYOUT_RAIL_TIMEOUT", "3s")
	t.Setenv("AUTO_MIGRATE", "yes")

	cfg := Load()
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "3s", cfg.PayoutRailTimeout.String())
	assert.True(t, cfg.AutoMigrate)
}
