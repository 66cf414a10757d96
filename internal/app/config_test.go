package app

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, 30*time.Second, cfg.BalanceCacheTTL)
	require.True(t, cfg.CashLimit().Equal(decimal.NewFromInt(1000)))
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigRejectsBadCashLimit(t *testing.T) {
	t.Setenv("CASH_ENTRY_LIMIT", "a lot")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestCashLimitOverride(t *testing.T) {
	t.Setenv("CASH_ENTRY_LIMIT", "2500.50")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.True(t, cfg.CashLimit().Equal(decimal.RequireFromString("2500.50")))
}
