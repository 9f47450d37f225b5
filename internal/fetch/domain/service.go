package domain

import (
	"context"

	entitydomain "github.com/finanze/finanze/internal/entity/domain"
	"github.com/google/uuid"
)

// Service orchestrates fetch runs across entities.
type Service interface {
	// Run executes one fetch run and reports per-pair outcomes. It returns an
	// error only for invalid requests or cancellation; upstream failures are
	// reported inside the Result.
	Run(ctx context.Context, req Request) (Result, error)

	// Connect validates credentials against the connector and stores them
	// (plus the resulting session) when the login succeeds.
	Connect(ctx context.Context, entityID uuid.UUID, credentials entitydomain.Credentials, opts LoginOptions) (ConnectResult, error)

	// Disconnect tears down the connector, then removes the entity's session,
	// credentials and position snapshots.
	Disconnect(ctx context.Context, entityID uuid.UUID) error
}
