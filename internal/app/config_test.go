package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/ledgersim/internal/bank"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "development", cfg.AppEnv)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, 5*time.Minute, cfg.SnapshotTTL)
	require.Equal(t, int64(500), cfg.ArchiveMaxSteps)
	require.Equal(t, bank.DefaultParams(), cfg.Params)
	require.Equal(t, bank.DefaultCentralParams(), cfg.CentralParams)
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigReadsBankParameters(t *testing.T) {
	t.Setenv("BANK_WRITE_OFF_LIMIT", "3")
	t.Setenv("CB_RESERVE_PCT", "20")
	t.Setenv("CB_LENDER_OF_LAST_RESORT", "true")
	t.Setenv("RUN_ID", "stress")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, 3, cfg.WriteOffLimit)
	require.Equal(t, 20.0, cfg.ReservePct)
	require.True(t, cfg.LenderOfLastResort)

	simCfg := cfg.SimConfig()
	require.Equal(t, 3, simCfg.Bank.WriteOffLimit)
	require.Equal(t, 20.0, simCfg.Central.ReservePct)
	require.Equal(t, "stress", cfg.RunID)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"write-off limit":  {"BANK_WRITE_OFF_LIMIT": "0"},
		"reserve pct":      {"CB_RESERVE_PCT": "0"},
		"bad hash":         {"ADMIN_TOKEN_HASH": "plain"},
		"production token": {"APP_ENV": "production"},
		"archive steps":    {"ARCHIVE_MAX_STEPS": "0"},
		"steps per tick":   {"STEPS_PER_TICK": "-1"},
		"malformed number": {"CB_BASE_RATE": "three"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			require.Error(t, err)
		})
	}
}

func TestValidateAcceptsBcryptHash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)

	t.Setenv("APP_ENV", "production")
	t.Setenv("ADMIN_TOKEN_HASH", string(hash))
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.True(t, cfg.IsProduction())
}
