package settlement

import "errors"

var (
	// ErrInvalidAmount rejects a commitment with a non-positive stake.
	ErrInvalidAmount = errors.New("stake amount must be positive")
	// ErrAlreadyLocked rejects committing or clearing a goal whose payment
	// has already been confirmed.
	ErrAlreadyLocked = errors.New("goal is already locked")
	// ErrNoPendingSession rejects confirmation when the goal holds no
	// checkout session to verify.
	ErrNoPendingSession = errors.New("no pending payment session")
	// ErrSessionMismatch rejects confirmation when the session's metadata
	// does not identify the goal being confirmed.
	ErrSessionMismatch = errors.New("payment session does not belong to this goal")
	// ErrPaymentIncomplete rejects confirmation of an unpaid session.
	ErrPaymentIncomplete = errors.New("payment has not completed")
	// ErrNotSettleable rejects settlement of a goal without a confirmed
	// stake.
	ErrNotSettleable = errors.New("goal has no confirmed stake to settle")
)
