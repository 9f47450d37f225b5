package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	assemblydomain "github.com/finanze/finanze/internal/assembly/domain"
	"github.com/finanze/finanze/internal/clock"
	"github.com/finanze/finanze/internal/entity"
	entitydomain "github.com/finanze/finanze/internal/entity/domain"
	exchangedomain "github.com/finanze/finanze/internal/exchange/domain"
	positiondomain "github.com/finanze/finanze/internal/position/domain"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Positions positiondomain.Repository
	Rates     exchangedomain.Provider
	Registry  *entity.Registry
	Clock     clock.Clock
	Log       *zap.Logger
}

type service struct {
	db        *gorm.DB
	positions positiondomain.Repository
	rates     exchangedomain.Provider
	registry  *entity.Registry
	clk       clock.Clock
	log       *zap.Logger
}

func New(p Params) assemblydomain.Service {
	return &service{
		db:        p.DB,
		positions: p.Positions,
		rates:     p.Rates,
		registry:  p.Registry,
		clk:       p.Clock,
		log:       p.Log.Named("assembly.service"),
	}
}

func (s *service) Assemble(ctx context.Context, currency string) (assemblydomain.GlobalPosition, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))

	snapshots, err := s.positions.List(ctx, s.db, nil)
	if err != nil {
		return assemblydomain.GlobalPosition{}, err
	}

	rates, err := s.rates.Matrix(ctx, true)
	if err != nil {
		return assemblydomain.GlobalPosition{}, fmt.Errorf("%w: %v", exchangedomain.ErrRatesUnavailable, err)
	}

	global := assemblydomain.GlobalPosition{
		Currency:       currency,
		Entities:       []assemblydomain.EntityPosition{},
		RatesUpdatedAt: rates.UpdatedAt,
		GeneratedAt:    s.clk.Now(),
	}
	unconverted := map[string]struct{}{}

	var current *assemblydomain.EntityPosition
	flush := func() {
		if current == nil {
			return
		}
		current.Total = current.Total.RoundBank(2)
		global.Total = global.Total.Add(current.Total)
		global.Entities = append(global.Entities, *current)
		current = nil
	}

	// Snapshots arrive ordered by (entity_id, feature), so one linear pass
	// groups them per entity.
	for _, snapshot := range snapshots {
		if current == nil || current.EntityID != snapshot.EntityID {
			flush()
			current = &assemblydomain.EntityPosition{
				EntityID: snapshot.EntityID,
				Name:     s.entityName(snapshot.EntityID),
			}
		}
		if snapshot.Date.After(current.LastUpdated) {
			current.LastUpdated = snapshot.Date
		}

		payload, err := positiondomain.ParsePayload(json.RawMessage(snapshot.Payload))
		if err != nil {
			s.log.Warn("undecodable snapshot skipped",
				zap.String("entity_id", snapshot.EntityID.String()),
				zap.String("feature", string(snapshot.Feature)),
				zap.Error(err),
			)
			continue
		}

		for _, holding := range payload.Holdings {
			item := s.valueHolding(holding, snapshot.Feature, currency, rates, unconverted)
			current.Items = append(current.Items, item)
			if item.Converted != nil && snapshot.Feature == entitydomain.FeaturePositions {
				current.Total = current.Total.Add(*item.Converted)
			}
		}
		for _, commodity := range payload.Commodities {
			item := s.valueCommodity(ctx, commodity, snapshot.Feature, currency, rates, unconverted)
			current.Items = append(current.Items, item)
			if item.Converted != nil && snapshot.Feature == entitydomain.FeaturePositions {
				current.Total = current.Total.Add(*item.Converted)
			}
		}
		current.Transactions = append(current.Transactions, payload.Transactions...)
		current.Contributions = append(current.Contributions, payload.Contributions...)
	}
	flush()

	global.Total = global.Total.RoundBank(2)
	for code := range unconverted {
		global.Unconverted = append(global.Unconverted, code)
	}
	sort.Strings(global.Unconverted)
	return global, nil
}

func (s *service) valueHolding(holding positiondomain.Holding, source entitydomain.Feature, currency string, rates exchangedomain.Rates, unconverted map[string]struct{}) assemblydomain.Item {
	item := assemblydomain.Item{
		Name:             holding.Name,
		Source:           source,
		OriginalAmount:   holding.Amount,
		OriginalCurrency: strings.ToUpper(holding.Currency),
	}
	rate, ok := rates.Rate(item.OriginalCurrency, currency)
	if !ok {
		unconverted[item.OriginalCurrency] = struct{}{}
		return item
	}
	converted := holding.Amount.Mul(rate).RoundBank(2)
	item.Converted = &converted
	return item
}

// valueCommodity prices a physical holding at the provider's spot quote, then
// converts the quote currency to the reporting one.
func (s *service) valueCommodity(ctx context.Context, commodity positiondomain.CommodityHolding, source entitydomain.Feature, currency string, rates exchangedomain.Rates, unconverted map[string]struct{}) assemblydomain.Item {
	item := assemblydomain.Item{
		Name:           string(commodity.Kind),
		Source:         source,
		OriginalAmount: commodity.Weight,
	}

	quote, err := s.rates.CommodityPrice(ctx, commodity.Kind)
	if err != nil {
		s.log.Warn("commodity price unavailable", zap.String("kind", string(commodity.Kind)), zap.Error(err))
		unconverted[string(commodity.Kind)] = struct{}{}
		return item
	}

	weight, err := exchangedomain.ConvertWeight(commodity.Weight, commodity.Unit, quote.Unit)
	if err != nil {
		unconverted[string(commodity.Kind)] = struct{}{}
		return item
	}

	value := weight.Mul(quote.Price)
	item.OriginalAmount = value
	item.OriginalCurrency = strings.ToUpper(quote.Currency)

	rate, ok := rates.Rate(item.OriginalCurrency, currency)
	if !ok {
		unconverted[item.OriginalCurrency] = struct{}{}
		return item
	}
	converted := value.Mul(rate).RoundBank(2)
	item.Converted = &converted
	return item
}

func (s *service) entityName(id uuid.UUID) string {
	if conn, ok := s.registry.Lookup(id); ok {
		return conn.Entity().Name
	}
	return ""
}
