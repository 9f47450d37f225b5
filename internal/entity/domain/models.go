package domain

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

// Feature is a category of data a connector may expose for an entity.
type Feature string

const (
	FeaturePositions         Feature = "positions"
	FeatureTransactions      Feature = "transactions"
	FeatureAutoContributions Feature = "auto_contributions"
	FeatureHistoric          Feature = "historic"
)

var ErrUnknownFeature = errors.New("unknown_feature")

func ParseFeature(raw string) (Feature, error) {
	switch Feature(strings.ToLower(strings.TrimSpace(raw))) {
	case FeaturePositions:
		return FeaturePositions, nil
	case FeatureTransactions:
		return FeatureTransactions, nil
	case FeatureAutoContributions:
		return FeatureAutoContributions, nil
	case FeatureHistoric:
		return FeatureHistoric, nil
	default:
		return "", ErrUnknownFeature
	}
}

type EntityType string

const (
	EntityTypeBank                EntityType = "bank"
	EntityTypeBroker              EntityType = "broker"
	EntityTypeCryptoWallet        EntityType = "crypto_wallet"
	EntityTypeExternalIntegration EntityType = "external_integration"
)

// Entity is a financial source the user holds credentials for.
type Entity struct {
	ID       uuid.UUID  `json:"id"`
	Name     string     `json:"name"`
	Type     EntityType `json:"type"`
	Features []Feature  `json:"features"`
}

func (e Entity) Supports(f Feature) bool {
	for _, supported := range e.Features {
		if supported == f {
			return true
		}
	}
	return false
}

// SupportedSubset intersects the requested features with the entity's own.
// Order follows the request.
func (e Entity) SupportedSubset(requested []Feature) []Feature {
	out := make([]Feature, 0, len(requested))
	for _, f := range requested {
		if e.Supports(f) {
			out = append(out, f)
		}
	}
	return out
}
