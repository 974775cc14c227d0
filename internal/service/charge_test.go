package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mgthompo1/payeez-sub001/internal/models"
	"github.com/mgthompo1/payeez-sub001/internal/provider/card"
)

type fakeRouter struct {
	psp string
	err error
}

func (f *fakeRouter) Route(ctx context.Context, tenantID string, amount int64, currency, environment string) (*models.RouteDecision, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.RouteDecision{
		PSP:         f.psp,
		Reason:      "first available psp",
		Credentials: map[string]string{"api_key": "sk_test"},
	}, nil
}

type fakeCardAdapter struct {
	name   string
	calls  int
	result card.ChargeResult
	err    error
}

func (f *fakeCardAdapter) Name() string { return f.name }

func (f *fakeCardAdapter) Charge(ctx context.Context, credentials map[string]string, req card.ChargeRequest) (card.ChargeResult, error) {
	f.calls++
	return f.result, f.err
}

type fakeAttemptRecorder struct {
	attempts []*models.PaymentAttempt
}

func (f *fakeAttemptRecorder) CreateAttempt(ctx context.Context, a *models.PaymentAttempt) error {
	f.attempts = append(f.attempts, a)
	return nil
}

type memoryCache struct {
	data map[string]string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: make(map[string]string)}
}

func (c *memoryCache) Get(ctx context.Context, key string) (string, error) {
	return c.data[key], nil
}

func (c *memoryCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	c.data[key] = value.(string)
	return nil
}

func newChargeFixture(adapter *fakeCardAdapter) (*ChargeService, *fakeAttemptRecorder, *memoryCache) {
	registry := card.NewRegistry()
	registry.Register(adapter)
	recorder := &fakeAttemptRecorder{}
	cache := newMemoryCache()
	svc := NewChargeService(&fakeRouter{psp: adapter.name}, registry, recorder, cache, zap.NewNop())
	return svc, recorder, cache
}

func TestChargeSuccess(t *testing.T) {
	adapter := &fakeCardAdapter{
		name:   "stripe",
		result: card.ChargeResult{Success: true, TransactionID: "pi_1"},
	}
	svc, recorder, _ := newChargeFixture(adapter)

	outcome, err := svc.Charge(context.Background(), ChargeRequest{
		TenantID:       "t1",
		Token:          "tok_1",
		Amount:         2500,
		Currency:       "USD",
		IdempotencyKey: "sess-1_try1",
		SessionID:      "sess-1",
	})
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, "stripe", outcome.PSP)
	assert.Equal(t, "pi_1", outcome.TransactionID)

	require.Len(t, recorder.attempts, 1)
	assert.Equal(t, models.AttemptStatusSucceeded, recorder.attempts[0].Status)
	assert.Equal(t, "pi_1", recorder.attempts[0].TransactionID)
}

func TestChargeDeclineRecordsFailedAttempt(t *testing.T) {
	adapter := &fakeCardAdapter{
		name: "stripe",
		result: card.ChargeResult{
			Success:        false,
			FailureCode:    "card_declined",
			FailureMessage: "Your card was declined.",
		},
	}
	svc, recorder, _ := newChargeFixture(adapter)

	outcome, err := svc.Charge(context.Background(), ChargeRequest{
		TenantID:       "t1",
		Token:          "tok_1",
		Amount:         2500,
		Currency:       "USD",
		IdempotencyKey: "sess-1_try1",
		SessionID:      "sess-1",
	})
	require.NoError(t, err)
	assert.False(t, outcome.Success)
	assert.Equal(t, "card_declined", outcome.FailureCode)

	require.Len(t, recorder.attempts, 1)
	assert.Equal(t, models.AttemptStatusFailed, recorder.attempts[0].Status)
	assert.Equal(t, "card_declined", recorder.attempts[0].FailureCode)
}

func TestChargeTransportErrorIsProcessingError(t *testing.T) {
	adapter := &fakeCardAdapter{name: "stripe", err: errors.New("dial tcp: i/o timeout")}
	svc, _, _ := newChargeFixture(adapter)

	outcome, err := svc.Charge(context.Background(), ChargeRequest{
		TenantID:       "t1",
		Token:          "tok_1",
		Amount:         2500,
		Currency:       "USD",
		IdempotencyKey: "sess-1_try1",
	})
	require.NoError(t, err)
	assert.False(t, outcome.Success)
	assert.Equal(t, "processing_error", outcome.FailureCode)
}

func TestChargeReplaysCachedOutcome(t *testing.T) {
	adapter := &fakeCardAdapter{
		name:   "stripe",
		result: card.ChargeResult{Success: true, TransactionID: "pi_1"},
	}
	svc, _, _ := newChargeFixture(adapter)

	req := ChargeRequest{
		TenantID:       "t1",
		Token:          "tok_1",
		Amount:         2500,
		Currency:       "USD",
		IdempotencyKey: "sess-1_try1",
	}

	first, err := svc.Charge(context.Background(), req)
	require.NoError(t, err)

	second, err := svc.Charge(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, adapter.calls)
	assert.Equal(t, first.TransactionID, second.TransactionID)
}

func TestChargeValidation(t *testing.T) {
	svc, _, _ := newChargeFixture(&fakeCardAdapter{name: "stripe"})

	_, err := svc.Charge(context.Background(), ChargeRequest{Amount: 0, IdempotencyKey: "k"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Charge(context.Background(), ChargeRequest{Amount: 100})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestChargeRouterFailurePropagates(t *testing.T) {
	registry := card.NewRegistry()
	registry.Register(&fakeCardAdapter{name: "stripe"})
	svc := NewChargeService(&fakeRouter{err: ErrNoRoute}, registry, &fakeAttemptRecorder{}, nil, zap.NewNop())

	_, err := svc.Charge(context.Background(), ChargeRequest{Amount: 100, IdempotencyKey: "k"})
	assert.ErrorIs(t, err, ErrNoRoute)
}
