package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Rates is the currency conversion matrix: base -> quote -> rate. Symmetry is
// not assumed; inversions are derived on read.
type Rates struct {
	Matrix    map[string]map[string]decimal.Decimal `json:"matrix"`
	UpdatedAt time.Time                             `json:"updated_at"`
}

// Rate resolves base->quote, falling back to the inverse quote->base. The
// second return reports whether a conversion path exists.
func (r Rates) Rate(base, quote string) (decimal.Decimal, bool) {
	base = strings.ToUpper(base)
	quote = strings.ToUpper(quote)
	if base == quote {
		return decimal.New(1, 0), true
	}
	if quotes, ok := r.Matrix[base]; ok {
		if rate, ok := quotes[quote]; ok && !rate.IsZero() {
			return rate, true
		}
	}
	if quotes, ok := r.Matrix[quote]; ok {
		if inverse, ok := quotes[base]; ok && !inverse.IsZero() {
			return decimal.New(1, 0).DivRound(inverse, 12), true
		}
	}
	return decimal.Decimal{}, false
}

type CommodityKind string

const (
	CommodityGold      CommodityKind = "gold"
	CommoditySilver    CommodityKind = "silver"
	CommodityPlatinum  CommodityKind = "platinum"
	CommodityPalladium CommodityKind = "palladium"
)

type WeightUnit string

const (
	WeightGram      WeightUnit = "gram"
	WeightTroyOunce WeightUnit = "troy_ounce"
	WeightKilogram  WeightUnit = "kilogram"
)

// gramsPerUnit converts declared weights to grams before repricing against
// the quoted unit. 1 ozt = 31.1034768 g.
var gramsPerUnit = map[WeightUnit]decimal.Decimal{
	WeightGram:      decimal.New(1, 0),
	WeightTroyOunce: decimal.RequireFromString("31.1034768"),
	WeightKilogram:  decimal.New(1000, 0),
}

var ErrUnknownWeightUnit = errors.New("unknown_weight_unit")

// ConvertWeight normalizes a weight between units.
func ConvertWeight(amount decimal.Decimal, from, to WeightUnit) (decimal.Decimal, error) {
	fromGrams, ok := gramsPerUnit[from]
	if !ok {
		return decimal.Decimal{}, ErrUnknownWeightUnit
	}
	toGrams, ok := gramsPerUnit[to]
	if !ok {
		return decimal.Decimal{}, ErrUnknownWeightUnit
	}
	return amount.Mul(fromGrams).DivRound(toGrams, 12), nil
}

// CommodityRate is a spot price per declared weight unit.
type CommodityRate struct {
	Kind      CommodityKind   `json:"kind"`
	Price     decimal.Decimal `json:"price"`
	Currency  string          `json:"currency"`
	Unit      WeightUnit      `json:"unit"`
	UpdatedAt time.Time       `json:"updated_at"`
}

var (
	ErrRatesUnavailable     = errors.New("rates_unavailable")
	ErrUnknownCommodity     = errors.New("unknown_commodity")
	ErrCommodityUnavailable = errors.New("commodity_price_unavailable")
)

// Provider supplies the rate matrix and commodity spot prices.
type Provider interface {
	AvailableCurrencies(ctx context.Context) (map[string]string, error)

	// Matrix returns the cached matrix unless allowCached is false, which
	// forces a refresh.
	Matrix(ctx context.Context, allowCached bool) (Rates, error)

	CommodityPrice(ctx context.Context, kind CommodityKind) (*CommodityRate, error)
}
