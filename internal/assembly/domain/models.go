package domain

import (
	"context"
	"time"

	entitydomain "github.com/finanze/finanze/internal/entity/domain"
	positiondomain "github.com/finanze/finanze/internal/position/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Item is one valued position line. Converted is nil when no conversion path
// to the reporting currency exists.
type Item struct {
	Name             string               `json:"name"`
	Source           entitydomain.Feature `json:"source"`
	OriginalAmount   decimal.Decimal      `json:"original_amount"`
	OriginalCurrency string               `json:"original_currency"`
	Converted        *decimal.Decimal     `json:"converted,omitempty"`
}

// EntityPosition is the assembled view of one entity. Only items sourced from
// the positions feature count toward the totals; historic items are listed but
// never summed.
type EntityPosition struct {
	EntityID      uuid.UUID                      `json:"entity_id"`
	Name          string                         `json:"name,omitempty"`
	Total         decimal.Decimal                `json:"total"`
	Items         []Item                         `json:"items,omitempty"`
	Transactions  []positiondomain.Transaction   `json:"transactions,omitempty"`
	Contributions []positiondomain.Contribution  `json:"contributions,omitempty"`
	LastUpdated   time.Time                      `json:"last_updated"`
}

// GlobalPosition is the consolidated portfolio in one reporting currency.
// RatesUpdatedAt is the timestamp of the rate matrix the conversions used,
// not the assembly time.
type GlobalPosition struct {
	Currency       string           `json:"currency"`
	Total          decimal.Decimal  `json:"total"`
	Unconverted    []string         `json:"unconverted,omitempty"`
	Entities       []EntityPosition `json:"entities"`
	RatesUpdatedAt time.Time        `json:"rates_updated_at"`
	GeneratedAt    time.Time        `json:"generated_at"`
}

// Service consolidates stored position snapshots into a global position.
type Service interface {
	// Assemble is read-only and deterministic for a fixed store, rate matrix
	// and clock. Entities are ordered by id, items by snapshot feature.
	Assemble(ctx context.Context, currency string) (GlobalPosition, error)
}
