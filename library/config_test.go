package library

import (
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, BackendSQLite, cfg.Backend)
	assert.Equal(t, "library.db", cfg.DBPath)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, DefaultPolicy(), cfg.Policy)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("LIBRARY_BACKEND", "memory")
	t.Setenv("LIBRARY_LOAN_DAYS", "21")
	t.Setenv("LIBRARY_FINE_RATE", "2")
	t.Setenv("LIBRARY_FINE_CAP", "40")
	t.Setenv("LIBRARY_CURRENCY", "USD")
	t.Setenv("LIBRARY_LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, BackendMemory, cfg.Backend)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, FinePolicy{LoanDays: 21, Rate: 2, Cap: 40, Currency: "USD"}, cfg.Policy)
}

func TestLoadConfigRejectsInvalidPolicy(t *testing.T) {
	for _, days := range []string{"0", "36501", "3000000"} {
		t.Run(days, func(t *testing.T) {
			t.Setenv("LIBRARY_LOAN_DAYS", days)

			_, err := LoadConfig()
			assert.ErrorIs(t, err, ErrInvalidArgument)
		})
	}
}

func TestFinePolicyFine(t *testing.T) {
	uncapped := FinePolicy{LoanDays: 14, Rate: 5}
	capped := FinePolicy{LoanDays: 14, Rate: 5, Cap: 12}

	assert.Equal(t, int64(0), uncapped.Fine(-3))
	assert.Equal(t, int64(0), uncapped.Fine(0))
	assert.Equal(t, int64(25), uncapped.Fine(5))
	assert.Equal(t, int64(500), uncapped.Fine(100))
	assert.Equal(t, int64(10), capped.Fine(2))
	assert.Equal(t, int64(12), capped.Fine(3))

	huge := FinePolicy{LoanDays: 14, Rate: math.MaxInt64 / 2}
	assert.Equal(t, int64(math.MaxInt64), huge.Fine(3))
	assert.Equal(t, int64(100), FinePolicy{LoanDays: 14, Rate: math.MaxInt64, Cap: 100}.Fine(2))
	assert.Equal(t, int64(0), FinePolicy{LoanDays: 14}.Fine(10))
}

func TestDaysBetween(t *testing.T) {
	due, err := ParseDate("2024-01-10")
	require.NoError(t, err)

	late, err := ParseDate("2024-03-01")
	require.NoError(t, err)
	assert.Equal(t, 51, daysBetween(due, late))
	assert.Equal(t, -1, daysBetween(due, due.AddDate(0, 0, -1)))
	assert.Equal(t, 0, daysBetween(due, due.Add(23*time.Hour)))

	// further apart than a time.Duration can hold
	old, err := ParseDate("1648-01-01")
	require.NoError(t, err)
	now, err := ParseDate("2024-01-01")
	require.NoError(t, err)
	assert.Equal(t, 137331, daysBetween(old, now))
	assert.Equal(t, -137331, daysBetween(now, old))
}
