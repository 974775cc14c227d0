package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mgthompo1/payeez-sub001/internal/metrics"
	"github.com/mgthompo1/payeez-sub001/internal/models"
)

// RiskThresholds are the tenant limits a transfer is scored against.
type RiskThresholds struct {
	MaxDailyTransfers int
	MaxDailyAmount    int64
	MaxSingleTransfer int64
	MinSingleTransfer int64
	BlockThreshold    int
}

func DefaultRiskThresholds() RiskThresholds {
	return RiskThresholds{
		MaxDailyTransfers: 10,
		MaxDailyAmount:    2_500_000,
		MaxSingleTransfer: 1_000_000,
		MinSingleTransfer: 100,
		BlockThreshold:    80,
	}
}

type RiskRequest struct {
	TenantID      string
	BankAccountID string
	Amount        int64
	Direction     models.TransferDirection
}

type RiskResult struct {
	Approved bool
	Score    int
	Flags    []string
}

// RiskStore is the account/history slice the assessor reads, plus the audit
// event sink.
type RiskStore interface {
	GetAccount(ctx context.Context, id string) (*models.BankAccount, error)
	CountTransfersSince(ctx context.Context, bankAccountID string, since time.Time) (int, error)
	SumTransfersSince(ctx context.Context, bankAccountID string, direction models.TransferDirection, since time.Time) (int64, error)
	CountSettled(ctx context.Context, bankAccountID string) (int, error)
	CountReturned(ctx context.Context, bankAccountID string) (int, error)
	CreateRiskEvent(ctx context.Context, e *models.RiskEvent) error
}

// RiskService scores bank transfers before they may settle. Scoring is
// additive; the transfer is approved iff the clamped score stays under the
// block threshold.
type RiskService struct {
	store      RiskStore
	thresholds RiskThresholds
	logger     *zap.Logger
}

func NewRiskService(store RiskStore, thresholds RiskThresholds, logger *zap.Logger) *RiskService {
	if thresholds.BlockThreshold <= 0 {
		thresholds.BlockThreshold = 80
	}
	return &RiskService{
		store:      store,
		thresholds: thresholds,
		logger:     logger,
	}
}

// Assess runs the hard rejects, then the scoring rules, persists the audit
// event, and returns the decision.
func (s *RiskService) Assess(ctx context.Context, req RiskRequest) (*RiskResult, error) {
	account, err := s.store.GetAccount(ctx, req.BankAccountID)
	if err != nil {
		return nil, fmt.Errorf("load bank account: %w", err)
	}
	if account == nil {
		return nil, fmt.Errorf("%w: bank account %s", ErrNotFound, req.BankAccountID)
	}

	// Hard rejects bypass scoring entirely.
	if !account.IsActive {
		return s.finish(ctx, req, &RiskResult{Score: 100, Flags: []string{"account_inactive"}})
	}
	if req.Amount < s.thresholds.MinSingleTransfer {
		return s.finish(ctx, req, &RiskResult{Score: 100, Flags: []string{"below_minimum"}})
	}

	result := &RiskResult{Flags: []string{}}

	rules := []func(context.Context, *models.BankAccount, RiskRequest, *RiskResult) error{
		s.checkVerification,
		s.checkSingleLimit,
		s.checkDailyCount,
		s.checkDailyAmount,
		s.checkHistory,
	}

	for _, rule := range rules {
		if err := rule(ctx, account, req, result); err != nil {
			return nil, err
		}
	}

	if result.Score > 100 {
		result.Score = 100
	}
	result.Approved = result.Score < s.thresholds.BlockThreshold

	return s.finish(ctx, req, result)
}

func (s *RiskService) checkVerification(_ context.Context, account *models.BankAccount, _ RiskRequest, result *RiskResult) error {
	if account.VerificationStatus != models.VerificationVerified {
		result.Score += 50
		result.Flags = append(result.Flags, "account_unverified")
	}
	return nil
}

// checkSingleLimit is a soft signal: exceeding the single-transfer cap
// raises the score but never rejects on its own.
func (s *RiskService) checkSingleLimit(_ context.Context, _ *models.BankAccount, req RiskRequest, result *RiskResult) error {
	if s.thresholds.MaxSingleTransfer > 0 && req.Amount > s.thresholds.MaxSingleTransfer {
		result.Score += 40
		result.Flags = append(result.Flags, "exceeds_single_limit")
	}
	return nil
}

func (s *RiskService) checkDailyCount(ctx context.Context, _ *models.BankAccount, req RiskRequest, result *RiskResult) error {
	count, err := s.store.CountTransfersSince(ctx, req.BankAccountID, startOfDay(time.Now()))
	if err != nil {
		return fmt.Errorf("count daily transfers: %w", err)
	}
	if s.thresholds.MaxDailyTransfers > 0 && count >= s.thresholds.MaxDailyTransfers {
		result.Score += 30
		result.Flags = append(result.Flags, "daily_count_limit")
	}
	return nil
}

func (s *RiskService) checkDailyAmount(ctx context.Context, _ *models.BankAccount, req RiskRequest, result *RiskResult) error {
	sum, err := s.store.SumTransfersSince(ctx, req.BankAccountID, req.Direction, startOfDay(time.Now()))
	if err != nil {
		return fmt.Errorf("sum daily transfers: %w", err)
	}
	if s.thresholds.MaxDailyAmount > 0 && sum+req.Amount > s.thresholds.MaxDailyAmount {
		result.Score += 40
		result.Flags = append(result.Flags, "daily_amount_limit")
	}
	return nil
}

func (s *RiskService) checkHistory(ctx context.Context, _ *models.BankAccount, req RiskRequest, result *RiskResult) error {
	settled, err := s.store.CountSettled(ctx, req.BankAccountID)
	if err != nil {
		return fmt.Errorf("count settled transfers: %w", err)
	}
	if settled == 0 {
		result.Score += 10
		result.Flags = append(result.Flags, "first_transfer")
	}

	returned, err := s.store.CountReturned(ctx, req.BankAccountID)
	if err != nil {
		return fmt.Errorf("count returned transfers: %w", err)
	}
	if returned > 0 {
		result.Score += 15 * returned
		result.Flags = append(result.Flags, "prior_returns")
	}
	return nil
}

// finish persists the audit event and logs rejections with score and flags.
func (s *RiskService) finish(ctx context.Context, req RiskRequest, result *RiskResult) (*RiskResult, error) {
	event := &models.RiskEvent{
		ID:            uuid.New().String(),
		TenantID:      req.TenantID,
		BankAccountID: req.BankAccountID,
		Amount:        req.Amount,
		Score:         result.Score,
		Approved:      result.Approved,
		Flags:         result.Flags,
		CreatedAt:     time.Now(),
	}
	if err := s.store.CreateRiskEvent(ctx, event); err != nil {
		s.logger.Error("failed to persist risk event", zap.Error(err))
	}

	decision := "approved"
	if !result.Approved {
		decision = "blocked"
		s.logger.Warn("transfer blocked by risk assessment",
			zap.String("bank_account_id", req.BankAccountID),
			zap.Int("score", result.Score),
			zap.Strings("flags", result.Flags))
	}
	metrics.RiskDecisionsTotal.WithLabelValues(decision).Inc()

	return result, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
