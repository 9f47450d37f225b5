package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Credentials is the decoded credential blob: named secret attributes owned by
// the connector. The persistence layer never inspects it.
type Credentials map[string]string

type LoginCode string

const (
	LoginOK                 LoginCode = "OK"
	LoginLocked             LoginCode = "LOCKED"
	LoginInvalidCredentials LoginCode = "INVALID_CREDENTIALS"
	LoginTwoFactorRequired  LoginCode = "TWO_FACTOR_REQUIRED"
	LoginUnavailable        LoginCode = "CONNECTOR_UNAVAILABLE"
)

// LoginParams carries the recognized second-factor options plus the stored
// session payload, if any, so the connector can try to resume it.
type LoginParams struct {
	TwoFactorCode string
	DeviceID      string
	Resume        json.RawMessage
}

// SessionData is what a successful login hands back for persistence. The
// payload schema belongs to the connector.
type SessionData struct {
	Expiration time.Time
	Payload    json.RawMessage
}

type LoginResult struct {
	Code    LoginCode
	Message string
	Session *SessionData
}

type FetchOptions struct {
	Deep bool
}

// FailureKind classifies a fetch failure for retry and reporting decisions.
type FailureKind string

const (
	FailSessionExpired FailureKind = "SESSION_EXPIRED"
	FailRateLimited    FailureKind = "RATE_LIMITED"
	FailUpstream       FailureKind = "UPSTREAM_ERROR"
	FailUnsupported    FailureKind = "UNSUPPORTED"

	// FailInternal marks a storage-layer failure on our side; never retried.
	FailInternal FailureKind = "INTERNAL"
)

// FetchError tags an underlying connector error with its failure kind.
type FetchError struct {
	Kind FailureKind
	Err  error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func NewFetchError(kind FailureKind, err error) *FetchError {
	return &FetchError{Kind: kind, Err: err}
}

// FailureKindOf extracts the failure kind from an error, defaulting to
// UPSTREAM_ERROR for untagged errors.
func FailureKindOf(err error) FailureKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return FailUpstream
}

// Connector speaks to one entity on the user's behalf.
type Connector interface {
	Entity() Entity

	// CredentialFields lists the attribute names a credential blob must carry.
	CredentialFields() []string

	Login(ctx context.Context, credentials Credentials, params LoginParams) (LoginResult, error)

	// Fetch returns the feature payload. The session payload comes from the
	// session table; connectors hold no state between calls. Failures are
	// reported as *FetchError.
	Fetch(ctx context.Context, session json.RawMessage, feature Feature, opts FetchOptions) (json.RawMessage, error)

	// Disconnect tears down connector-side state. Idempotent.
	Disconnect(ctx context.Context)
}
