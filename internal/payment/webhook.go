package payment

import (
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
)

// WebhookEvent is a verified gateway event reduced to what the settlement
// flow consumes: completed checkout sessions.
type WebhookEvent struct {
	Type      string
	SessionID string
	Metadata  Metadata
}

// ParseWebhook verifies the signature on a raw webhook payload and decodes
// checkout.session.completed events. Other event types come back with only
// Type populated so callers can acknowledge and ignore them.
func ParseWebhook(payload []byte, signature, secret string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEvent(payload, signature, secret)
	if err != nil {
		return nil, fmt.Errorf("verify webhook signature: %w", err)
	}

	out := &WebhookEvent{Type: string(event.Type)}
	if event.Type != "checkout.session.completed" {
		return out, nil
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, fmt.Errorf("decode checkout session event: %w", err)
	}
	out.SessionID = sess.ID
	out.Metadata = Metadata{
		UserID:     sess.Metadata[metaUserID],
		CategoryID: sess.Metadata[metaCategoryID],
		GoalID:     sess.Metadata[metaGoalID],
	}
	return out, nil
}
