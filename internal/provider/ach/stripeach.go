package ach

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

const StripeACHName = "stripe_ach"

// StripeACHAdapter settles transfers over Stripe's us_bank_account rail.
// Debits run as confirmed payment intents, credits as payouts.
type StripeACHAdapter struct {
	sc *client.API
}

func NewStripeACHAdapter(apiKey string, timeout time.Duration) *StripeACHAdapter {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		HTTPClient: &http.Client{Timeout: timeout},
	})
	sc := &client.API{}
	sc.Init(apiKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend})
	return &StripeACHAdapter{sc: sc}
}

func (a *StripeACHAdapter) Name() string { return StripeACHName }

func (a *StripeACHAdapter) Execute(ctx context.Context, req SettlementRequest) (SettlementResponse, error) {
	if req.Direction == Credit {
		return a.executeCredit(ctx, req)
	}
	return a.executeDebit(ctx, req)
}

func (a *StripeACHAdapter) executeDebit(ctx context.Context, req SettlementRequest) (SettlementResponse, error) {
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(req.Amount),
		Currency:           stripe.String(req.Currency),
		PaymentMethod:      stripe.String(req.AccountToken),
		PaymentMethodTypes: stripe.StringSlice([]string{"us_bank_account"}),
		Confirm:            stripe.Bool(true),
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	if req.Mandate != nil {
		params.MandateData = &stripe.PaymentIntentMandateDataParams{
			CustomerAcceptance: &stripe.PaymentIntentMandateDataCustomerAcceptanceParams{
				AcceptedAt: stripe.Int64(req.Mandate.AcceptedAt.Unix()),
				Type:       stripe.String("online"),
				Online: &stripe.PaymentIntentMandateDataCustomerAcceptanceOnlineParams{
					IPAddress: stripe.String(req.Mandate.IPAddress),
					UserAgent: stripe.String("payeez-settlement"),
				},
			},
		}
	}
	params.IdempotencyKey = stripe.String(req.IdempotencyKey)
	params.Context = ctx

	intent, err := a.sc.PaymentIntents.New(params)
	if err != nil {
		return a.mapError(err)
	}

	resp := SettlementResponse{
		ProviderID:  intent.ID,
		RawResponse: string(intent.LastResponse.RawJSON),
	}
	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		resp.Success = true
		resp.Status = "settled"
	case stripe.PaymentIntentStatusProcessing:
		resp.Success = true
		resp.Status = "processing"
		eta := achBusinessDays(time.Now(), 2)
		resp.EstimatedSettlementAt = &eta
	default:
		resp.Status = "failed"
		resp.FailureCode = "debit_not_confirmed"
		resp.FailureMessage = "payment intent did not confirm"
		resp.FailureCategory = FailurePermanent
	}
	return resp, nil
}

func (a *StripeACHAdapter) executeCredit(ctx context.Context, req SettlementRequest) (SettlementResponse, error) {
	params := &stripe.PayoutParams{
		Amount:      stripe.Int64(req.Amount),
		Currency:    stripe.String(req.Currency),
		Destination: stripe.String(req.AccountToken),
		Method:      stripe.String("standard"),
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	params.IdempotencyKey = stripe.String(req.IdempotencyKey)
	params.Context = ctx

	payout, err := a.sc.Payouts.New(params)
	if err != nil {
		return a.mapError(err)
	}

	resp := SettlementResponse{
		Success:     true,
		ProviderID:  payout.ID,
		Status:      "processing",
		RawResponse: string(payout.LastResponse.RawJSON),
	}
	if payout.ArrivalDate > 0 {
		eta := time.Unix(payout.ArrivalDate, 0)
		resp.EstimatedSettlementAt = &eta
	}
	if payout.Status == stripe.PayoutStatusPaid {
		resp.Status = "settled"
	}
	return resp, nil
}

func (a *StripeACHAdapter) mapError(err error) (SettlementResponse, error) {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		// Transport failure; outcome unknown, let the executor decide.
		return SettlementResponse{}, err
	}

	category := FailurePermanent
	if stripeErr.HTTPStatusCode >= 500 || stripeErr.Code == stripe.ErrorCodeLockTimeout {
		category = FailureTransient
	}
	return SettlementResponse{
		Success:         false,
		Status:          "failed",
		FailureCode:     string(stripeErr.Code),
		FailureMessage:  stripeErr.Msg,
		FailureCategory: category,
	}, nil
}

// achBusinessDays skips weekends when projecting a settlement date.
func achBusinessDays(from time.Time, days int) time.Time {
	t := from
	for days > 0 {
		t = t.AddDate(0, 0, 1)
		if wd := t.Weekday(); wd != time.Saturday && wd != time.Sunday {
			days--
		}
	}
	return t
}
