package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateResolution(t *testing.T) {
	rates := Rates{
		Matrix: map[string]map[string]decimal.Decimal{
			"EUR": {"USD": decimal.RequireFromString("1.25")},
		},
	}

	t.Run("identity", func(t *testing.T) {
		rate, ok := rates.Rate("eur", "EUR")
		require.True(t, ok)
		assert.True(t, rate.Equal(decimal.New(1, 0)))
	})

	t.Run("direct", func(t *testing.T) {
		rate, ok := rates.Rate("EUR", "USD")
		require.True(t, ok)
		assert.True(t, rate.Equal(decimal.RequireFromString("1.25")))
	})

	t.Run("derived inverse", func(t *testing.T) {
		rate, ok := rates.Rate("USD", "EUR")
		require.True(t, ok)
		assert.True(t, rate.Equal(decimal.RequireFromString("0.8")))
	})

	t.Run("no path", func(t *testing.T) {
		_, ok := rates.Rate("EUR", "JPY")
		assert.False(t, ok)
	})

	t.Run("zero rate unusable", func(t *testing.T) {
		zeroed := Rates{Matrix: map[string]map[string]decimal.Decimal{
			"EUR": {"USD": decimal.Decimal{}},
		}}
		_, ok := zeroed.Rate("USD", "EUR")
		assert.False(t, ok)
	})
}

func TestConvertWeight(t *testing.T) {
	t.Run("gram to troy ounce", func(t *testing.T) {
		got, err := ConvertWeight(decimal.RequireFromString("31.1034768"), WeightGram, WeightTroyOunce)
		require.NoError(t, err)
		assert.True(t, got.Equal(decimal.New(1, 0)), got.String())
	})

	t.Run("kilogram to gram", func(t *testing.T) {
		got, err := ConvertWeight(decimal.RequireFromString("1.5"), WeightKilogram, WeightGram)
		require.NoError(t, err)
		assert.True(t, got.Equal(decimal.RequireFromString("1500")), got.String())
	})

	t.Run("unknown unit", func(t *testing.T) {
		_, err := ConvertWeight(decimal.New(1, 0), WeightUnit("stone"), WeightGram)
		assert.ErrorIs(t, err, ErrUnknownWeightUnit)
	})
}
