package domain

import (
	"errors"
	"time"

	entitydomain "github.com/finanze/finanze/internal/entity/domain"
	"github.com/google/uuid"
)

var (
	ErrUnknownEntity  = errors.New("unknown_entity")
	ErrMissingFields  = errors.New("missing_credential_fields")
	ErrUnknownFeature = entitydomain.ErrUnknownFeature
)

// Request is one fetch run. Empty EntityIDs means every entity with stored
// credentials; empty Features means every feature the entity supports.
type Request struct {
	EntityIDs     []uuid.UUID            `json:"entity_ids"`
	Features      []entitydomain.Feature `json:"features"`
	Deep          bool                   `json:"deep"`
	Force         bool                   `json:"force"`
	TwoFactorCode string                 `json:"two_factor_code"`
	DeviceID      string                 `json:"device_id"`
}

type PairStatus string

const (
	PairDone     PairStatus = "DONE"
	PairCooldown PairStatus = "SKIPPED_COOLDOWN"
	PairFailed   PairStatus = "FAILED"
)

// PairOutcome reports one (entity, feature) pair of a run. Wait and LastUpdate
// are set for cooldown skips only; FailureKind for failures only.
type PairOutcome struct {
	Status      PairStatus               `json:"status"`
	FailureKind entitydomain.FailureKind `json:"failure_kind,omitempty"`
	Wait        int64                    `json:"wait,omitempty"`
	LastUpdate  *time.Time               `json:"last_update,omitempty"`
}

// EntityCode is the per-entity summary of a run.
type EntityCode string

const (
	EntityCompleted          EntityCode = "COMPLETED"
	EntityPartial            EntityCode = "PARTIAL"
	EntityCooldown           EntityCode = "COOLDOWN"
	EntityFailed             EntityCode = "FAILED"
	EntityNotConnected       EntityCode = "NOT_CONNECTED"
	EntityMissingFields      EntityCode = "MISSING_FIELDS"
	EntityInvalidCredentials EntityCode = "INVALID_CREDENTIALS"
	EntityTwoFactorRequired  EntityCode = "TWO_FACTOR_REQUIRED"
	EntityLocked             EntityCode = "LOCKED"
	EntityUnavailable        EntityCode = "UNAVAILABLE"
)

// AuthRequired reports whether the code means the user must act on
// credentials before the entity can be fetched again.
func (c EntityCode) AuthRequired() bool {
	switch c {
	case EntityNotConnected, EntityMissingFields, EntityInvalidCredentials,
		EntityTwoFactorRequired, EntityLocked:
		return true
	}
	return false
}

type EntityResult struct {
	EntityID uuid.UUID                            `json:"entity_id"`
	Name     string                               `json:"name"`
	Code     EntityCode                           `json:"code"`
	Message  string                               `json:"message,omitempty"`
	Pairs    map[entitydomain.Feature]PairOutcome `json:"pairs"`
}

// ResultCode aggregates a whole run.
type ResultCode string

const (
	ResultCompleted    ResultCode = "COMPLETED"
	ResultPartial      ResultCode = "PARTIAL"
	ResultNoOp         ResultCode = "NO_OP"
	ResultAuthRequired ResultCode = "AUTH_REQUIRED"
)

type Result struct {
	Code     ResultCode     `json:"code"`
	Entities []EntityResult `json:"entities"`
}

// ConnectResult reports a credential validation attempt.
type ConnectResult struct {
	Code    entitydomain.LoginCode `json:"code"`
	Message string                 `json:"message,omitempty"`
}

// LoginOptions are the recognized second-factor knobs of a connect call.
type LoginOptions struct {
	TwoFactorCode string `json:"two_factor_code"`
	DeviceID      string `json:"device_id"`
}
