// Package payment abstracts the external payment gateway behind a small
// interface so the settlement engine can be exercised without network
// calls.
package payment

import (
	"context"
	"errors"
)

// ErrGatewayUnavailable wraps transport or provider failures. Settlement
// treats it as transient and retries on the next pass.
var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

// Metadata identifies the goal a payment session or refund belongs to.
// It travels to the gateway and back so confirmation can verify that a
// session was created for the goal being confirmed.
type Metadata struct {
	UserID     string
	CategoryID string
	GoalID     string
}

// Session is the gateway-side view of a checkout session.
type Session struct {
	ID        string
	URL       string
	Paid      bool
	ChargeRef string
	Metadata  Metadata
}

// Gateway is the payment provider surface the settlement engine needs.
type Gateway interface {
	// CreateSession opens a checkout session for amount in the configured
	// currency and returns it with the redirect URL populated.
	CreateSession(ctx context.Context, amount int64, meta Metadata) (*Session, error)
	// GetSession fetches the session so the caller can inspect payment
	// status, charge reference and metadata.
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	// RefundPartial refunds amount against the charge and returns the
	// provider's refund id.
	RefundPartial(ctx context.Context, chargeRef string, amount int64, milestone int, meta Metadata) (string, error)
}
