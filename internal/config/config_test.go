package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	cfg.Ledger.Receiver = "0xB1B1B1B1B1B1B1B1B1B1B1B1B1B1B1B1B1B1B1B1"
	return cfg
}

func TestDefaultsValidateWithCredentials(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "bogus"
	cfg.LogLevel = "loud"
	cfg.Wallet.PrivateKey = ""
	cfg.Ledger.Receiver = ""
	cfg.Ledger.MinRatingAmount = "not-a-number"
	cfg.Ledger.PriceNumerator = 11
	cfg.Ledger.PriceDenominator = 10

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{
		"unknown mode",
		"unknown log_level",
		"wallet:",
		"receiver must not be empty",
		"min_rating_amount",
		"price_numerator must not exceed",
	} {
		assert.Contains(t, msg, want)
	}
}

func TestValidateSkipsDisabledBackends(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.Enabled = false
	cfg.Postgres.Host = ""
	cfg.Redis.Enabled = false
	cfg.Redis.Addr = ""
	cfg.S3.Enabled = false
	cfg.S3.Bucket = ""
	assert.NoError(t, cfg.Validate())

	cfg.Redis.Enabled = true
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis: addr")
}

func TestMinStake(t *testing.T) {
	cfg := LedgerConfig{MinRatingAmount: "2500"}
	require.NotNil(t, cfg.MinStake())
	assert.Equal(t, int64(2500), cfg.MinStake().Int64())

	empty := LedgerConfig{}
	assert.Nil(t, empty.MinStake())
	bad := LedgerConfig{MinRatingAmount: "abc"}
	assert.Nil(t, bad.MinStake())
}

func TestLoadAppliesFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := strings.Join([]string{
		`mode = "server"`,
		``,
		`[ledger]`,
		`receiver = "0xB1B1B1B1B1B1B1B1B1B1B1B1B1B1B1B1B1B1B1B1"`,
		`min_rating_amount = "5000"`,
		``,
		`[aggregator]`,
		`refresh_interval = "30s"`,
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	t.Setenv("PULSE_MODE", "full")
	t.Setenv("PULSE_SERVER_PORT", "9100")
	t.Setenv("PULSE_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(path)
	require.NoError(t, err)

	// Env wins over file, file wins over defaults.
	assert.Equal(t, "full", cfg.Mode)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "5000", cfg.Ledger.MinRatingAmount)
	assert.Equal(t, 30*time.Second, cfg.Aggregator.RefreshInterval.Duration)
	// Untouched defaults survive the merge.
	assert.Equal(t, int64(7), cfg.Ledger.PriceNumerator)
	assert.True(t, cfg.Postgres.RunMigrations)
}

func TestRedactedConfigMasksSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.Password = "hunter2"
	cfg.Redis.Password = "hunter2"
	cfg.S3.SecretKey = "hunter2"
	cfg.Server.AdminAPIKey = "hunter2"
	cfg.Notify.TelegramToken = "hunter2"

	red := RedactedConfig(&cfg)
	assert.Equal(t, "***", red.Wallet.PrivateKey)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Redis.Password)
	assert.Equal(t, "***", red.S3.SecretKey)
	assert.Equal(t, "***", red.Server.AdminAPIKey)
	assert.Equal(t, "***", red.Notify.TelegramToken)

	// The original is untouched.
	assert.Equal(t, "hunter2", cfg.Postgres.Password)
}
