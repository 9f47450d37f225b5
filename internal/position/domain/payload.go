package domain

import (
	"encoding/json"
	"time"

	exchangedomain "github.com/finanze/finanze/internal/exchange/domain"
	"github.com/shopspring/decimal"
)

// Payload is the schema connectors emit per feature. Monetary amounts are
// decimal strings; unknown fields are preserved in the stored JSON but ignored
// here.
type Payload struct {
	Holdings      []Holding          `json:"holdings,omitempty"`
	Commodities   []CommodityHolding `json:"commodities,omitempty"`
	Transactions  []Transaction      `json:"transactions,omitempty"`
	Contributions []Contribution     `json:"contributions,omitempty"`
}

// Holding is a single monetary position (account balance, stock value, loan).
type Holding struct {
	Name     string          `json:"name"`
	Symbol   string          `json:"symbol,omitempty"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// CommodityHolding is a physical commodity position priced at assembly time.
type CommodityHolding struct {
	Kind   exchangedomain.CommodityKind `json:"kind"`
	Weight decimal.Decimal              `json:"weight"`
	Unit   exchangedomain.WeightUnit    `json:"unit"`
}

type Transaction struct {
	Reference string          `json:"reference"`
	Name      string          `json:"name"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Date      time.Time       `json:"date"`
}

// Contribution is a recurring automatic investment plan.
type Contribution struct {
	Name      string          `json:"name"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Periodic  string          `json:"periodicity"`
	NextDate  *time.Time      `json:"next_date,omitempty"`
	Active    bool            `json:"active"`
}

func ParsePayload(raw json.RawMessage) (Payload, error) {
	var p Payload
	if len(raw) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, err
	}
	return p, nil
}
