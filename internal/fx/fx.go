// Package fx converts amounts between currencies for cross-currency
// reconciliation summaries. Rates are date-stamped because a statement is
// reconciled against the rate of its period, not today's.
package fx

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/codestam/reconengine/pkg/recerrors"
)

// RateProvider returns the rate multiplying an amount in from-currency into
// to-currency, as of the given date.
type RateProvider interface {
	Rate(from, to string, asOf time.Time) (decimal.Decimal, error)
}

// StaticRates holds a fixed rate table keyed by currency pair. The inverse
// of a known pair is derived automatically.
type StaticRates struct {
	rates map[string]decimal.Decimal
}

// NewStaticRates builds a table from pair keys like "EUR/USD".
func NewStaticRates(rates map[string]decimal.Decimal) (*StaticRates, error) {
	table := make(map[string]decimal.Decimal, len(rates))
	for pair, rate := range rates {
		parts := strings.Split(pair, "/")
		if len(parts) != 2 || len(parts[0]) != 3 || len(parts[1]) != 3 {
			return nil, recerrors.New(recerrors.CategoryInternal, recerrors.CodeUnexpected,
				"rate pair must look like EUR/USD, got "+pair)
		}
		if !rate.IsPositive() {
			return nil, recerrors.New(recerrors.CategoryInternal, recerrors.CodeUnexpected,
				"rate for "+pair+" must be positive")
		}
		table[strings.ToUpper(pair)] = rate
	}
	return &StaticRates{rates: table}, nil
}

// Rate implements RateProvider. Same-currency pairs rate at 1.
func (s *StaticRates) Rate(from, to string, asOf time.Time) (decimal.Decimal, error) {
	from = strings.ToUpper(from)
	to = strings.ToUpper(to)
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	if rate, ok := s.rates[from+"/"+to]; ok {
		return rate, nil
	}
	if inverse, ok := s.rates[to+"/"+from]; ok {
		return decimal.NewFromInt(1).Div(inverse), nil
	}
	return decimal.Zero, recerrors.Wrap(
		errors.Errorf("no rate for %s/%s", from, to),
		recerrors.CategoryInternal, recerrors.CodeUnexpected, "unknown currency pair")
}

// Convert applies the provider's rate to an amount.
func Convert(provider RateProvider, amount decimal.Decimal, from, to string, asOf time.Time) (decimal.Decimal, error) {
	rate, err := provider.Rate(from, to, asOf)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(rate), nil
}
