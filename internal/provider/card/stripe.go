package card

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

const StripeName = "stripe"

// StripeAdapter charges cards through Stripe payment intents. A fresh API
// client is built per call because credentials are tenant-scoped; the
// package-level stripe key cannot be shared across tenants.
type StripeAdapter struct {
	timeout time.Duration
}

func NewStripeAdapter(timeout time.Duration) *StripeAdapter {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &StripeAdapter{timeout: timeout}
}

func (a *StripeAdapter) Name() string { return StripeName }

func (a *StripeAdapter) Charge(ctx context.Context, credentials map[string]string, req ChargeRequest) (ChargeResult, error) {
	apiKey := credentials["api_key"]
	if apiKey == "" {
		return ChargeResult{}, errors.New("stripe: credentials missing api_key")
	}

	sc := a.newClient(apiKey)

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.Amount),
		Currency:      stripe.String(req.Currency),
		PaymentMethod: stripe.String(req.Token),
		Confirm:       stripe.Bool(true),
		OffSession:    stripe.Bool(true),
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	params.IdempotencyKey = stripe.String(req.IdempotencyKey)
	params.Context = ctx

	intent, err := sc.PaymentIntents.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) {
			return ChargeResult{
				Success:        false,
				FailureCode:    declineCode(stripeErr),
				FailureMessage: stripeErr.Msg,
			}, nil
		}
		// Transport/timeout errors bubble up; the caller owns the
		// processing_error mapping.
		return ChargeResult{}, err
	}

	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded, stripe.PaymentIntentStatusProcessing:
		return ChargeResult{Success: true, TransactionID: intent.ID}, nil
	default:
		return ChargeResult{
			Success:        false,
			TransactionID:  intent.ID,
			FailureCode:    "payment_incomplete",
			FailureMessage: "payment intent did not reach a chargeable state",
		}, nil
	}
}

func (a *StripeAdapter) newClient(apiKey string) *client.API {
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		HTTPClient: &http.Client{Timeout: a.timeout},
	})
	sc := &client.API{}
	sc.Init(apiKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend})
	return sc
}

func declineCode(err *stripe.Error) string {
	if err.DeclineCode != "" {
		return string(err.DeclineCode)
	}
	if err.Code != "" {
		return string(err.Code)
	}
	return "card_declined"
}
