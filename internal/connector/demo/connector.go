package demo

import (
	"context"
	"encoding/json"
	"time"

	entitydomain "github.com/finanze/finanze/internal/entity/domain"
	positiondomain "github.com/finanze/finanze/internal/position/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// EntityID is the stable id of the built-in virtual entity.
var EntityID = uuid.MustParse("7f8de1a4-3c55-4e4b-9a1f-5a4f2f3d1c02")

const sessionTTL = 30 * time.Minute

// Connector is the virtual data source: a deterministic in-process bank used
// when scrape.virtual is enabled. It needs no network and always returns the
// same book of positions, which makes it the reference fixture for the fetch
// pipeline.
type Connector struct {
	log *zap.Logger
}

func New(log *zap.Logger) *Connector {
	return &Connector{log: log.Named("connector.demo")}
}

func (c *Connector) Entity() entitydomain.Entity {
	return entitydomain.Entity{
		ID:   EntityID,
		Name: "Demo Bank",
		Type: entitydomain.EntityTypeBank,
		Features: []entitydomain.Feature{
			entitydomain.FeaturePositions,
			entitydomain.FeatureTransactions,
			entitydomain.FeatureAutoContributions,
			entitydomain.FeatureHistoric,
		},
	}
}

func (c *Connector) CredentialFields() []string {
	return []string{"user", "password"}
}

func (c *Connector) Login(ctx context.Context, credentials entitydomain.Credentials, params entitydomain.LoginParams) (entitydomain.LoginResult, error) {
	_ = ctx

	if credentials["user"] == "" || credentials["password"] == "" {
		return entitydomain.LoginResult{Code: entitydomain.LoginInvalidCredentials}, nil
	}

	payload, _ := json.Marshal(map[string]string{
		"token": uuid.NewString(),
		"user":  credentials["user"],
	})
	return entitydomain.LoginResult{
		Code: entitydomain.LoginOK,
		Session: &entitydomain.SessionData{
			Expiration: time.Now().UTC().Add(sessionTTL),
			Payload:    payload,
		},
	}, nil
}

func (c *Connector) Fetch(ctx context.Context, session json.RawMessage, feature entitydomain.Feature, opts entitydomain.FetchOptions) (json.RawMessage, error) {
	_ = ctx
	_ = session

	var payload positiondomain.Payload
	switch feature {
	case entitydomain.FeaturePositions:
		payload.Holdings = []positiondomain.Holding{
			{Name: "Checking Account", Amount: decimal.RequireFromString("1250.40"), Currency: "EUR"},
			{Name: "Savings Account", Amount: decimal.RequireFromString("8000.00"), Currency: "EUR"},
		}
		payload.Commodities = []positiondomain.CommodityHolding{
			{Kind: "gold", Weight: decimal.RequireFromString("10"), Unit: "gram"},
		}
	case entitydomain.FeatureTransactions:
		payload.Transactions = demoTransactions(opts.Deep)
	case entitydomain.FeatureAutoContributions:
		payload.Contributions = []positiondomain.Contribution{
			{
				Name:     "World Index Fund",
				Amount:   decimal.RequireFromString("200.00"),
				Currency: "EUR",
				Periodic: "monthly",
				Active:   true,
			},
		}
	case entitydomain.FeatureHistoric:
		payload.Holdings = []positiondomain.Holding{
			{Name: "Closed Deposit 2023", Amount: decimal.RequireFromString("5000.00"), Currency: "EUR"},
		}
	default:
		return nil, entitydomain.NewFetchError(entitydomain.FailUnsupported, nil)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, entitydomain.NewFetchError(entitydomain.FailUpstream, err)
	}
	return raw, nil
}

func (c *Connector) Disconnect(ctx context.Context) {
	_ = ctx
	c.log.Debug("demo connector disconnected")
}

func demoTransactions(deep bool) []positiondomain.Transaction {
	base := time.Date(2026, time.January, 15, 10, 0, 0, 0, time.UTC)
	txs := []positiondomain.Transaction{
		{
			Reference: "demo-tx-001",
			Name:      "Grocery Store",
			Amount:    decimal.RequireFromString("-54.30"),
			Currency:  "EUR",
			Date:      base,
		},
		{
			Reference: "demo-tx-002",
			Name:      "Salary",
			Amount:    decimal.RequireFromString("2300.00"),
			Currency:  "EUR",
			Date:      base.AddDate(0, 0, 10),
		},
	}
	if deep {
		txs = append(txs, positiondomain.Transaction{
			Reference: "demo-tx-000",
			Name:      "Opening Balance",
			Amount:    decimal.RequireFromString("1000.00"),
			Currency:  "EUR",
			Date:      base.AddDate(-1, 0, 0),
		})
	}
	return txs
}
