package library

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/caarlos0/env/v11"
)

// Storage backends understood by NewLibraryManager.
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Config controls where the library state lives and the circulation policy.
type Config struct {
	Backend  string     `env:"LIBRARY_BACKEND"   envDefault:"sqlite"`
	DBPath   string     `env:"LIBRARY_DB_PATH"   envDefault:"library.db"`
	LogLevel slog.Level `env:"LIBRARY_LOG_LEVEL" envDefault:"info"`
	Policy   FinePolicy
}

// FinePolicy is the loan period and the linear overdue fine.
// A zero Cap means fines are not capped.
type FinePolicy struct {
	LoanDays int    `env:"LIBRARY_LOAN_DAYS" envDefault:"14"`
	Rate     int64  `env:"LIBRARY_FINE_RATE" envDefault:"5"`
	Cap      int64  `env:"LIBRARY_FINE_CAP"  envDefault:"0"`
	Currency string `env:"LIBRARY_CURRENCY"  envDefault:"INR"`
}

// MaxLoanDays bounds a loan period so due dates stay four-digit years.
const MaxLoanDays = 36500

// DefaultPolicy is 14 day loans at 5 units per overdue day, uncapped.
func DefaultPolicy() FinePolicy {
	return FinePolicy{LoanDays: 14, Rate: 5, Currency: "INR"}
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the ledger cannot run with.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("%w: empty database path", ErrInvalidArgument)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidArgument, c.Backend)
	}
	return c.Policy.Validate()
}

// Validate checks the policy values are usable.
func (p FinePolicy) Validate() error {
	if p.LoanDays < 1 || p.LoanDays > MaxLoanDays {
		return fmt.Errorf("%w: loan period must be between 1 and %d days, got %d", ErrInvalidArgument, MaxLoanDays, p.LoanDays)
	}
	if p.Rate < 0 || p.Cap < 0 {
		return fmt.Errorf("%w: fine rate and cap must not be negative", ErrInvalidArgument)
	}
	return nil
}

// Fine is the amount owed for a loan returned daysOverdue days late.
// The product saturates at math.MaxInt64 instead of wrapping.
func (p FinePolicy) Fine(daysOverdue int) int64 {
	if daysOverdue <= 0 || p.Rate <= 0 {
		return 0
	}
	fine := int64(math.MaxInt64)
	if int64(daysOverdue) <= math.MaxInt64/p.Rate {
		fine = int64(daysOverdue) * p.Rate
	}
	if p.Cap > 0 && fine > p.Cap {
		return p.Cap
	}
	return fine
}
