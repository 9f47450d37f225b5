package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/finanze/finanze/internal/cache"
	"github.com/finanze/finanze/internal/clock"
	"github.com/finanze/finanze/internal/config"
	"github.com/finanze/finanze/internal/exchange/domain"
	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	matrixCacheKey     = "exchange_rate_matrix"
	currenciesCacheKey = "available_currencies"
	redisMatrixKey     = "finanze:exchange:matrix"

	currenciesCacheTTL = 24 * time.Hour
	commodityCacheTTL  = time.Hour
	requestTimeout     = 10 * time.Second

	dateFormat = "2006-01-02"
)

// Matrix bases fetched from the rate source. Quotes cover every currency the
// source publishes.
var baseCurrencies = []string{"EUR", "USD"}

var commoditySymbols = map[domain.CommodityKind]string{
	domain.CommodityGold:      "XAU",
	domain.CommoditySilver:    "XAG",
	domain.CommodityPlatinum:  "XPT",
	domain.CommodityPalladium: "XPD",
}

type Params struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
	Clock  clock.Clock
	Redis  *redis.Client `optional:"true"`
}

// HTTPProvider serves the fiat rate matrix and commodity spot prices from
// public rate APIs, caching in memory with an optional redis second level.
type HTTPProvider struct {
	baseURL      string
	commodityURL string
	ttl          time.Duration
	http         *http.Client
	clock        clock.Clock
	log          *zap.Logger
	redis        *redis.Client

	matrix      cache.Cache[string, domain.Rates]
	currencies  cache.Cache[string, map[string]string]
	commodities cache.Cache[domain.CommodityKind, *domain.CommodityRate]
}

func New(p Params) domain.Provider {
	return &HTTPProvider{
		baseURL:      strings.TrimRight(p.Config.ExchangeBaseURL, "/"),
		commodityURL: strings.TrimRight(p.Config.CommodityBaseURL, "/"),
		ttl:          time.Duration(p.Config.ExchangeCacheTTLSec) * time.Second,
		http:         &http.Client{Timeout: requestTimeout},
		clock:        p.Clock,
		log:          p.Log.Named("exchange.provider"),
		redis:        p.Redis,
		matrix:       cache.NewTTLCache[string, domain.Rates](),
		currencies:   cache.NewTTLCache[string, map[string]string](),
		commodities:  cache.NewTTLCache[domain.CommodityKind, *domain.CommodityRate](),
	}
}

func (p *HTTPProvider) AvailableCurrencies(ctx context.Context) (map[string]string, error) {
	if cached, ok := p.currencies.Get(currenciesCacheKey); ok {
		return cached, nil
	}

	var raw map[string]string
	if err := p.fetchJSON(ctx, p.baseURL+"/currencies.min.json", &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRatesUnavailable, err)
	}

	out := make(map[string]string, len(raw))
	for code, name := range raw {
		out[strings.ToUpper(code)] = name
	}
	p.currencies.Set(currenciesCacheKey, out, currenciesCacheTTL)
	return out, nil
}

func (p *HTTPProvider) Matrix(ctx context.Context, allowCached bool) (domain.Rates, error) {
	if allowCached {
		if cached, ok := p.matrix.Get(matrixCacheKey); ok {
			return cached, nil
		}
		if cached, ok := p.matrixFromRedis(ctx); ok {
			p.matrix.Set(matrixCacheKey, cached, p.ttl)
			return cached, nil
		}
	}

	rates, err := p.loadMatrix(ctx)
	if err != nil {
		return domain.Rates{}, err
	}

	p.matrix.Set(matrixCacheKey, rates, p.ttl)
	p.matrixToRedis(ctx, rates)
	return rates, nil
}

func (p *HTTPProvider) CommodityPrice(ctx context.Context, kind domain.CommodityKind) (*domain.CommodityRate, error) {
	symbol, ok := commoditySymbols[kind]
	if !ok {
		return nil, domain.ErrUnknownCommodity
	}

	if cached, ok := p.commodities.Get(kind); ok {
		return cached, nil
	}

	var body struct {
		Price     decimal.Decimal `json:"price"`
		UpdatedAt time.Time       `json:"updatedAt"`
	}
	if err := p.fetchJSON(ctx, p.commodityURL+"/price/"+symbol, &body); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCommodityUnavailable, err)
	}

	updatedAt := body.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = p.clock.Now()
	}
	rate := &domain.CommodityRate{
		Kind:      kind,
		Price:     body.Price,
		Currency:  "USD",
		Unit:      domain.WeightTroyOunce,
		UpdatedAt: updatedAt,
	}
	p.commodities.Set(kind, rate, commodityCacheTTL)
	return rate, nil
}

func (p *HTTPProvider) loadMatrix(ctx context.Context) (domain.Rates, error) {
	matrix := make(map[string]map[string]decimal.Decimal, len(baseCurrencies))
	updatedAt := p.clock.Now()

	for _, base := range baseCurrencies {
		var body map[string]json.RawMessage
		url := fmt.Sprintf("%s/currencies/%s.min.json", p.baseURL, strings.ToLower(base))
		if err := p.fetchJSON(ctx, url, &body); err != nil {
			return domain.Rates{}, fmt.Errorf("%w: %v", domain.ErrRatesUnavailable, err)
		}

		if rawDate, ok := body["date"]; ok {
			var dateStr string
			if json.Unmarshal(rawDate, &dateStr) == nil {
				if parsed, err := time.Parse(dateFormat, dateStr); err == nil {
					updatedAt = parsed
				}
			}
		}

		rawRates, ok := body[strings.ToLower(base)]
		if !ok {
			return domain.Rates{}, fmt.Errorf("%w: missing %s rates", domain.ErrRatesUnavailable, base)
		}
		var rates map[string]decimal.Decimal
		if err := json.Unmarshal(rawRates, &rates); err != nil {
			return domain.Rates{}, fmt.Errorf("%w: %v", domain.ErrRatesUnavailable, err)
		}

		quotes := make(map[string]decimal.Decimal, len(rates))
		for code, rate := range rates {
			quotes[strings.ToUpper(code)] = rate
		}
		matrix[base] = quotes
	}

	return domain.Rates{Matrix: matrix, UpdatedAt: updatedAt}, nil
}

func (p *HTTPProvider) matrixFromRedis(ctx context.Context) (domain.Rates, bool) {
	if p.redis == nil {
		return domain.Rates{}, false
	}
	raw, err := p.redis.Get(ctx, redisMatrixKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			p.log.Warn("redis matrix read failed", zap.Error(err))
		}
		return domain.Rates{}, false
	}
	var rates domain.Rates
	if err := json.Unmarshal(raw, &rates); err != nil {
		return domain.Rates{}, false
	}
	return rates, true
}

func (p *HTTPProvider) matrixToRedis(ctx context.Context, rates domain.Rates) {
	if p.redis == nil {
		return
	}
	raw, err := json.Marshal(rates)
	if err != nil {
		return
	}
	if err := p.redis.Set(ctx, redisMatrixKey, raw, p.ttl).Err(); err != nil {
		p.log.Warn("redis matrix write failed", zap.Error(err))
	}
}

func (p *HTTPProvider) fetchJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
