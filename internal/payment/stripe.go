package payment

import (
	"context"
	"fmt"
	"strconv"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
)

const (
	metaUserID     = "userId"
	metaCategoryID = "categoryId"
	metaGoalID     = "goalId"
	metaMilestone  = "milestone"
)

// StripeGateway implements Gateway against the Stripe API.
type StripeGateway struct {
	api          *client.API
	currency     string
	returnOrigin string
}

var _ Gateway = (*StripeGateway)(nil)

// NewStripeGateway creates a gateway using the given secret key. currency
// is a lowercase ISO code; returnOrigin is the frontend origin the checkout
// flow redirects back to.
func NewStripeGateway(secretKey, currency, returnOrigin string) *StripeGateway {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeGateway{api: api, currency: currency, returnOrigin: returnOrigin}
}

// CreateSession opens a one-item checkout session holding the stake.
func (g *StripeGateway) CreateSession(ctx context.Context, amount int64, meta Metadata) (*Session, error) {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(g.currency),
				UnitAmount: stripe.Int64(amount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String("Goal commitment stake"),
				},
			},
			Quantity: stripe.Int64(1),
		}},
		SuccessURL: stripe.String(fmt.Sprintf("%s/payment/success?session_id={CHECKOUT_SESSION_ID}", g.returnOrigin)),
		CancelURL:  stripe.String(fmt.Sprintf("%s/payment/cancel", g.returnOrigin)),
	}
	params.Context = ctx
	params.AddMetadata(metaUserID, meta.UserID)
	params.AddMetadata(metaCategoryID, meta.CategoryID)
	params.AddMetadata(metaGoalID, meta.GoalID)

	sess, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("%w: create session: %v", ErrGatewayUnavailable, err)
	}
	return fromStripeSession(sess), nil
}

// GetSession fetches the session with its payment intent expanded so the
// charge reference is available after payment.
func (g *StripeGateway) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("payment_intent")

	sess, err := g.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return nil, fmt.Errorf("%w: get session %s: %v", ErrGatewayUnavailable, sessionID, err)
	}
	return fromStripeSession(sess), nil
}

// RefundPartial issues a partial refund against the payment intent.
func (g *StripeGateway) RefundPartial(ctx context.Context, chargeRef string, amount int64, milestone int, meta Metadata) (string, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(chargeRef),
		Amount:        stripe.Int64(amount),
	}
	params.Context = ctx
	params.AddMetadata(metaUserID, meta.UserID)
	params.AddMetadata(metaCategoryID, meta.CategoryID)
	params.AddMetadata(metaGoalID, meta.GoalID)
	params.AddMetadata(metaMilestone, strconv.Itoa(milestone))

	ref, err := g.api.Refunds.New(params)
	if err != nil {
		return "", fmt.Errorf("%w: refund %s milestone %d: %v", ErrGatewayUnavailable, chargeRef, milestone, err)
	}
	return ref.ID, nil
}

func fromStripeSession(sess *stripe.CheckoutSession) *Session {
	out := &Session{
		ID:   sess.ID,
		URL:  sess.URL,
		Paid: sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		Metadata: Metadata{
			UserID:     sess.Metadata[metaUserID],
			CategoryID: sess.Metadata[metaCategoryID],
			GoalID:     sess.Metadata[metaGoalID],
		},
	}
	if sess.PaymentIntent != nil {
		out.ChargeRef = sess.PaymentIntent.ID
	}
	return out
}
