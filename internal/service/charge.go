package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mgthompo1/payeez-sub001/internal/metrics"
	"github.com/mgthompo1/payeez-sub001/internal/models"
	"github.com/mgthompo1/payeez-sub001/internal/provider/card"
)

// ChargeRequest describes one card charge against a vaulted token.
type ChargeRequest struct {
	TenantID       string
	Token          string
	Amount         int64
	Currency       string
	Environment    string
	IdempotencyKey string
	SessionID      string
	InvoiceID      string
	SubscriptionID string
	Description    string
}

// ChargeOutcome is what the charge processor reports back. Callers own all
// invoice/session state transitions.
type ChargeOutcome struct {
	Success        bool   `json:"success"`
	PSP            string `json:"psp"`
	TransactionID  string `json:"transaction_id,omitempty"`
	Attempts       int    `json:"attempts"`
	FailureCode    string `json:"failure_code,omitempty"`
	FailureMessage string `json:"failure_message,omitempty"`
}

// AttemptRecorder appends the audit attempt rows for charges tied to a
// payment session.
type AttemptRecorder interface {
	CreateAttempt(ctx context.Context, a *models.PaymentAttempt) error
}

// ResultCache remembers charge outcomes by idempotency key so a replay
// after a crash returns the recorded outcome without a second PSP call.
type ResultCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

// Router abstracts PSP selection for the charge processor.
type Router interface {
	Route(ctx context.Context, tenantID string, amount int64, currency, environment string) (*models.RouteDecision, error)
}

type ChargeService struct {
	router   Router
	registry *card.Registry
	attempts AttemptRecorder
	cache    ResultCache
	logger   *zap.Logger
}

func NewChargeService(router Router, registry *card.Registry, attempts AttemptRecorder, cache ResultCache, logger *zap.Logger) *ChargeService {
	return &ChargeService{
		router:   router,
		registry: registry,
		attempts: attempts,
		cache:    cache,
		logger:   logger,
	}
}

// Charge routes the transaction to a PSP and executes it with the given
// idempotency key. Transport errors surface as failure code
// "processing_error", never as implicit success.
func (s *ChargeService) Charge(ctx context.Context, req ChargeRequest) (*ChargeOutcome, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if req.IdempotencyKey == "" {
		return nil, fmt.Errorf("%w: idempotency key required", ErrValidation)
	}

	if cached := s.cachedOutcome(ctx, req.IdempotencyKey); cached != nil {
		return cached, nil
	}

	route, err := s.router.Route(ctx, req.TenantID, req.Amount, req.Currency, req.Environment)
	if err != nil {
		return nil, err
	}

	adapter, err := s.registry.Get(route.PSP)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoRoute, err)
	}

	result, err := adapter.Charge(ctx, route.Credentials, card.ChargeRequest{
		Amount:         req.Amount,
		Currency:       req.Currency,
		Token:          req.Token,
		IdempotencyKey: req.IdempotencyKey,
		Description:    req.Description,
	})

	outcome := &ChargeOutcome{PSP: route.PSP, Attempts: 1}
	if err != nil {
		// Outcome of a transport failure is unknown to us, but the PSP
		// idempotency key guarantees a retry has at most one effect.
		outcome.FailureCode = "processing_error"
		outcome.FailureMessage = "payment processor unreachable"
		s.logger.Error("psp call failed",
			zap.String("psp", route.PSP),
			zap.String("tenant_id", req.TenantID),
			zap.Error(err))
	} else {
		outcome.Success = result.Success
		outcome.TransactionID = result.TransactionID
		outcome.FailureCode = result.FailureCode
		outcome.FailureMessage = result.FailureMessage
	}

	s.recordAttempt(ctx, req, outcome)
	s.cacheOutcome(ctx, req.IdempotencyKey, outcome)

	label := "failed"
	if outcome.Success {
		label = "succeeded"
	}
	metrics.ChargesTotal.WithLabelValues(route.PSP, label).Inc()

	return outcome, nil
}

func (s *ChargeService) recordAttempt(ctx context.Context, req ChargeRequest, outcome *ChargeOutcome) {
	if req.SessionID == "" {
		return
	}

	status := models.AttemptStatusFailed
	if outcome.Success {
		status = models.AttemptStatusSucceeded
	}
	attempt := &models.PaymentAttempt{
		ID:            uuid.New().String(),
		SessionID:     req.SessionID,
		PSP:           outcome.PSP,
		Status:        status,
		TransactionID: outcome.TransactionID,
		FailureCode:   outcome.FailureCode,
		CreatedAt:     time.Now(),
	}
	if err := s.attempts.CreateAttempt(ctx, attempt); err != nil {
		s.logger.Error("failed to record payment attempt", zap.Error(err))
	}
}

func (s *ChargeService) cachedOutcome(ctx context.Context, key string) *ChargeOutcome {
	if s.cache == nil {
		return nil
	}
	data, err := s.cache.Get(ctx, "charge:"+key)
	if err != nil || data == "" {
		return nil
	}
	var outcome ChargeOutcome
	if err := json.Unmarshal([]byte(data), &outcome); err != nil {
		return nil
	}
	return &outcome
}

func (s *ChargeService) cacheOutcome(ctx context.Context, key string, outcome *ChargeOutcome) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(outcome)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, "charge:"+key, string(data), 24*time.Hour); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("failed to cache charge outcome", zap.Error(err))
	}
}
