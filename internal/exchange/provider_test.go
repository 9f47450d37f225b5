package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/finanze/finanze/internal/clock"
	"github.com/finanze/finanze/internal/config"
	"github.com/finanze/finanze/internal/exchange/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestProvider(t *testing.T, handler http.Handler) (*HTTPProvider, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	provider := New(Params{
		Config: config.Config{
			ExchangeBaseURL:     srv.URL,
			CommodityBaseURL:    srv.URL,
			ExchangeCacheTTLSec: 7200,
		},
		Log:   zaptest.NewLogger(t),
		Clock: clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
	}).(*HTTPProvider)
	return provider, srv
}

func TestMatrixLoadsAndCaches(t *testing.T) {
	var requests int64
	mux := http.NewServeMux()
	mux.HandleFunc("/currencies/eur.min.json", func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt64(&requests, 1)
		_, _ = w.Write([]byte(`{"date":"2026-02-28","eur":{"usd":1.1,"gbp":0.85}}`))
	})
	mux.HandleFunc("/currencies/usd.min.json", func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt64(&requests, 1)
		_, _ = w.Write([]byte(`{"date":"2026-02-28","usd":{"eur":0.909,"jpy":150.2}}`))
	})
	provider, _ := newTestProvider(t, mux)

	rates, err := provider.Matrix(context.Background(), true)
	require.NoError(t, err)

	rate, ok := rates.Rate("EUR", "USD")
	require.True(t, ok)
	assert.True(t, rate.Equal(decimal.RequireFromString("1.1")))
	assert.Equal(t, time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC), rates.UpdatedAt)
	assert.Equal(t, int64(2), atomic.LoadInt64(&requests))

	// Second cached read hits no network.
	_, err = provider.Matrix(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), atomic.LoadInt64(&requests))

	// A forced refresh does.
	_, err = provider.Matrix(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, int64(4), atomic.LoadInt64(&requests))
}

func TestMatrixUpstreamFailure(t *testing.T) {
	provider, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := provider.Matrix(context.Background(), true)
	assert.ErrorIs(t, err, domain.ErrRatesUnavailable)
}

func TestCommodityPrice(t *testing.T) {
	var requests int64
	mux := http.NewServeMux()
	mux.HandleFunc("/price/XAU", func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt64(&requests, 1)
		_, _ = w.Write([]byte(`{"price":2034.5,"updatedAt":"2026-03-01T09:30:00Z"}`))
	})
	provider, _ := newTestProvider(t, mux)

	rate, err := provider.CommodityPrice(context.Background(), domain.CommodityGold)
	require.NoError(t, err)
	assert.Equal(t, domain.CommodityGold, rate.Kind)
	assert.True(t, rate.Price.Equal(decimal.RequireFromString("2034.5")))
	assert.Equal(t, "USD", rate.Currency)
	assert.Equal(t, domain.WeightTroyOunce, rate.Unit)

	// Cached for subsequent reads.
	_, err = provider.CommodityPrice(context.Background(), domain.CommodityGold)
	require.NoError(t, err)
	assert.Equal(t, int64(1), atomic.LoadInt64(&requests))

	_, err = provider.CommodityPrice(context.Background(), domain.CommodityKind("tin"))
	assert.ErrorIs(t, err, domain.ErrUnknownCommodity)
}

func TestAvailableCurrencies(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/currencies.min.json", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"eur":"Euro","usd":"US Dollar"}`))
	})
	provider, _ := newTestProvider(t, mux)

	currencies, err := provider.AvailableCurrencies(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Euro", currencies["EUR"])
	assert.Equal(t, "US Dollar", currencies["USD"])
}
