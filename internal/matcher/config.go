package matcher

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Config controls candidate selection and scoring.
type Config struct {
	// DateWindowDays bounds how far apart a bank and book transaction may be
	// dated and still be considered candidates for each other.
	DateWindowDays int `json:"date_window_days"`

	// FuzzyMode allows candidates whose amounts differ by up to
	// AmountTolerance. When false only exact amounts pair up.
	FuzzyMode bool `json:"fuzzy_mode"`

	// AmountTolerance is the maximum absolute amount difference accepted in
	// fuzzy mode. Ignored when FuzzyMode is false.
	AmountTolerance decimal.Decimal `json:"amount_tolerance"`

	// Scoring weights. They sum to 100 so a perfect pair scores a full
	// confidence of 100.
	AmountPoints      int `json:"amount_points"`
	DatePoints        int `json:"date_points"`
	DescriptionPoints int `json:"description_points"`
}

// DefaultConfig returns exact-amount matching with a three day date window.
func DefaultConfig() *Config {
	return &Config{
		DateWindowDays:    3,
		FuzzyMode:         false,
		AmountTolerance:   decimal.Zero,
		AmountPoints:      40,
		DatePoints:        30,
		DescriptionPoints: 30,
	}
}

// StrictConfig requires same-day, exact-amount pairs.
func StrictConfig() *Config {
	config := DefaultConfig()
	config.DateWindowDays = 0
	return config
}

// RelaxedConfig widens the window and tolerates small amount differences.
func RelaxedConfig() *Config {
	config := DefaultConfig()
	config.DateWindowDays = 7
	config.FuzzyMode = true
	config.AmountTolerance = decimal.NewFromInt(100)
	return config
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.DateWindowDays < 0 {
		return errors.New("date window days cannot be negative")
	}
	if c.AmountTolerance.IsNegative() {
		return errors.New("amount tolerance cannot be negative")
	}
	if c.AmountPoints < 0 || c.DatePoints < 0 || c.DescriptionPoints < 0 {
		return errors.New("scoring weights cannot be negative")
	}
	if c.AmountPoints+c.DatePoints+c.DescriptionPoints != 100 {
		return errors.New("scoring weights must sum to 100")
	}
	return nil
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}
