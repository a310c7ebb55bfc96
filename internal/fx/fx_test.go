package fx

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticRates(t *testing.T) {
	rates, err := NewStaticRates(map[string]decimal.Decimal{
		"EUR/USD": decimal.RequireFromString("1.25"),
	})
	require.NoError(t, err)
	asOf := time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)

	same, err := rates.Rate("USD", "usd", asOf)
	require.NoError(t, err)
	assert.True(t, same.Equal(decimal.NewFromInt(1)))

	direct, err := rates.Rate("EUR", "USD", asOf)
	require.NoError(t, err)
	assert.True(t, direct.Equal(decimal.RequireFromString("1.25")))

	inverse, err := rates.Rate("USD", "EUR", asOf)
	require.NoError(t, err)
	assert.True(t, inverse.Equal(decimal.RequireFromString("0.8")))

	_, err = rates.Rate("USD", "JPY", asOf)
	assert.Error(t, err)
}

func TestNewStaticRatesRejectsBadInput(t *testing.T) {
	_, err := NewStaticRates(map[string]decimal.Decimal{"EURUSD": decimal.NewFromInt(1)})
	assert.Error(t, err)

	_, err = NewStaticRates(map[string]decimal.Decimal{"EUR/USD": decimal.Zero})
	assert.Error(t, err)
}

func TestConvert(t *testing.T) {
	rates, err := NewStaticRates(map[string]decimal.Decimal{
		"GBP/USD": decimal.RequireFromString("1.30"),
	})
	require.NoError(t, err)

	got, err := Convert(rates, decimal.NewFromInt(200), "GBP", "USD", time.Now())
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(260)))
}
