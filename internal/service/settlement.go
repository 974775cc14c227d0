package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mgthompo1/payeez-sub001/internal/metrics"
	"github.com/mgthompo1/payeez-sub001/internal/models"
	"github.com/mgthompo1/payeez-sub001/internal/provider/ach"
)

// TransferStore is the persistence slice the executor drives.
type TransferStore interface {
	Create(ctx context.Context, t *models.BankTransfer) (bool, *models.BankTransfer, error)
	GetByID(ctx context.Context, id string) (*models.BankTransfer, error)
	ListPending(ctx context.Context, limit int) ([]*models.BankTransfer, error)
	MarkProcessing(ctx context.Context, id, provider string) (bool, error)
	UpdateOutcome(ctx context.Context, id string, status models.TransferStatus, providerRef, failureCode, failureMessage, returnCode string, settledAt *time.Time) error
	Cancel(ctx context.Context, tenantID, id string) (bool, error)
	InsertAttempt(ctx context.Context, a *models.BankTransferAttempt) error
	UpdateAttemptOutcome(ctx context.Context, a *models.BankTransferAttempt) error
	ListAttempts(ctx context.Context, transferID string) ([]*models.BankTransferAttempt, error)
	CreateRoutingEvent(ctx context.Context, e *models.RoutingEvent) error
}

// MandateStore resolves accounts and mandates for request assembly.
type MandateStore interface {
	GetAccount(ctx context.Context, id string) (*models.BankAccount, error)
	GetActiveMandate(ctx context.Context, bankAccountID string) (*models.BankMandate, error)
}

// RailStrategy selects a settlement rail for a tenant. Preferences come
// from tenant configuration; the registry's first rail is the default.
type RailStrategy struct {
	registry    *ach.Registry
	preferences map[string][]string
}

func NewRailStrategy(registry *ach.Registry, preferences map[string][]string) *RailStrategy {
	return &RailStrategy{registry: registry, preferences: preferences}
}

// Select returns the chosen rail, the reason, and the alternatives that
// were considered.
func (s *RailStrategy) Select(tenantID string) (name, reason string, alternatives []string) {
	available := s.registry.Names()

	for _, preferred := range s.preferences[tenantID] {
		for _, got := range available {
			if got == preferred {
				return preferred, "tenant preference", available
			}
		}
	}

	if len(available) == 0 {
		return "", "no rails configured", nil
	}
	return available[0], "default rail", available
}

// SettlementService executes multi-rail ACH transfers with an immutable
// attempt audit trail.
type SettlementService struct {
	transfers TransferStore
	bank      MandateStore
	registry  *ach.Registry
	strategy  *RailStrategy
	timeout   time.Duration
	logger    *zap.Logger

	// Guards against concurrent attempts for the same transfer within
	// this process; the processing-status transition guards across
	// processes.
	inflight sync.Map
}

func NewSettlementService(transfers TransferStore, bank MandateStore, registry *ach.Registry, strategy *RailStrategy, timeout time.Duration, logger *zap.Logger) *SettlementService {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SettlementService{
		transfers: transfers,
		bank:      bank,
		registry:  registry,
		strategy:  strategy,
		timeout:   timeout,
		logger:    logger,
	}
}

// CreateTransfer persists a new transfer, collapsing replays of the same
// tenant idempotency key onto the original row.
func (s *SettlementService) CreateTransfer(ctx context.Context, req *models.TransferCreateRequest, tenantID string) (*models.BankTransfer, bool, error) {
	account, err := s.bank.GetAccount(ctx, req.BankAccountID)
	if err != nil {
		return nil, false, err
	}
	if account == nil || account.TenantID != tenantID {
		return nil, false, fmt.Errorf("%w: bank account %s", ErrNotFound, req.BankAccountID)
	}

	now := time.Now()
	transfer := &models.BankTransfer{
		ID:             uuid.New().String(),
		TenantID:       tenantID,
		BankAccountID:  req.BankAccountID,
		Amount:         req.Amount,
		Currency:       strings.ToUpper(req.Currency),
		Direction:      models.TransferDirection(req.Direction),
		Status:         models.TransferPending,
		Recurring:      req.Recurring,
		IdempotencyKey: req.IdempotencyKey,
		Description:    req.Description,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	created, existing, err := s.transfers.Create(ctx, transfer)
	if err != nil {
		return nil, false, err
	}
	return existing, created, nil
}

// Execute runs one settlement attempt for the transfer. The attempt row is
// written and the transfer marked processing before the provider is called,
// so a crash mid-call leaves an "attempted, outcome unknown" trace.
func (s *SettlementService) Execute(ctx context.Context, transferID string) error {
	if _, loaded := s.inflight.LoadOrStore(transferID, struct{}{}); loaded {
		return fmt.Errorf("transfer %s: attempt already in flight", transferID)
	}
	defer s.inflight.Delete(transferID)

	transfer, err := s.transfers.GetByID(ctx, transferID)
	if err != nil {
		return err
	}
	if transfer == nil {
		return fmt.Errorf("%w: transfer %s", ErrNotFound, transferID)
	}
	if transfer.Status == models.TransferUnknown {
		return ErrTransferUnreconciled
	}
	if transfer.Status.IsTerminal() && transfer.Status != models.TransferFailed {
		return fmt.Errorf("%w: transfer %s is %s", ErrTerminalState, transferID, transfer.Status)
	}

	req, err := s.buildRequest(ctx, transfer)
	if err != nil {
		return err
	}

	providerName, reason, alternatives := s.strategy.Select(transfer.TenantID)
	if providerName == "" {
		return fmt.Errorf("%w: no settlement rail configured", ErrNoRoute)
	}
	adapter, err := s.registry.Get(providerName)
	if err != nil {
		return err
	}

	won, err := s.transfers.MarkProcessing(ctx, transfer.ID, providerName)
	if err != nil {
		return err
	}
	if !won {
		return fmt.Errorf("transfer %s: not in an executable status", transfer.ID)
	}

	attempt := &models.BankTransferAttempt{
		ID:         uuid.New().String(),
		TransferID: transfer.ID,
		Provider:   providerName,
		CreatedAt:  time.Now(),
	}
	if err := s.transfers.InsertAttempt(ctx, attempt); err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	req.IdempotencyKey = attempt.IdempotencyKey

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	resp, callErr := adapter.Execute(callCtx, req)
	cancel()

	s.recordRoutingEvent(ctx, transfer.ID, providerName, reason, alternatives)

	if callErr != nil {
		return s.handleCallError(ctx, transfer, attempt, providerName, callErr)
	}
	return s.applyOutcome(ctx, transfer, attempt, providerName, resp)
}

func (s *SettlementService) buildRequest(ctx context.Context, transfer *models.BankTransfer) (ach.SettlementRequest, error) {
	account, err := s.bank.GetAccount(ctx, transfer.BankAccountID)
	if err != nil {
		return ach.SettlementRequest{}, err
	}
	if account == nil {
		return ach.SettlementRequest{}, fmt.Errorf("%w: bank account %s", ErrNotFound, transfer.BankAccountID)
	}

	req := ach.SettlementRequest{
		TransferID:    transfer.ID,
		Amount:        transfer.Amount,
		Currency:      transfer.Currency,
		Direction:     ach.Direction(transfer.Direction),
		HolderName:    account.HolderName,
		RoutingNumber: account.RoutingNumber,
		AccountToken:  account.AccountToken,
		AccountType:   account.AccountType,
		Description:   transfer.Description,
		Metadata: map[string]string{
			"tenant_id":   transfer.TenantID,
			"transfer_id": transfer.ID,
		},
	}

	// A recurring debit must carry an active mandate.
	if transfer.Direction == models.DirectionDebit {
		mandate, err := s.bank.GetActiveMandate(ctx, transfer.BankAccountID)
		if err != nil {
			return ach.SettlementRequest{}, err
		}
		if transfer.Recurring && mandate == nil {
			return ach.SettlementRequest{}, fmt.Errorf("%w: recurring debit requires an active mandate", ErrValidation)
		}
		if mandate != nil {
			req.Mandate = &ach.Mandate{
				ID:                mandate.ID,
				AuthorizationText: mandate.AuthorizationText,
				AcceptedAt:        mandate.AcceptedAt,
				IPAddress:         mandate.IPAddress,
			}
		}
	}

	return req, nil
}

// handleCallError deals with transport-level failures where the provider
// outcome is unresolved. The transfer parks in `unknown` and must be
// reconciled with the provider before another attempt is allowed.
func (s *SettlementService) handleCallError(ctx context.Context, transfer *models.BankTransfer, attempt *models.BankTransferAttempt, providerName string, callErr error) error {
	now := time.Now()
	attempt.FailureCode = "provider_unreachable"
	attempt.FailureMessage = callErr.Error()
	attempt.CompletedAt = &now

	var netErr net.Error
	timedOut := errors.Is(callErr, context.DeadlineExceeded) ||
		(errors.As(callErr, &netErr) && netErr.Timeout())
	if timedOut {
		attempt.FailureCode = "provider_timeout"
	}

	if err := s.transfers.UpdateAttemptOutcome(ctx, attempt); err != nil {
		s.logger.Error("failed to record attempt outcome", zap.Error(err))
	}
	if err := s.transfers.UpdateOutcome(ctx, transfer.ID, models.TransferUnknown,
		"", attempt.FailureCode, attempt.FailureMessage, "", nil); err != nil {
		s.logger.Error("failed to park transfer in unknown", zap.Error(err))
	}

	metrics.TransfersTotal.WithLabelValues(providerName, "unknown").Inc()
	s.logger.Error("settlement call failed with unresolved outcome",
		zap.String("transfer_id", transfer.ID),
		zap.String("provider", providerName),
		zap.Error(callErr))

	return fmt.Errorf("settlement via %s: %w", providerName, callErr)
}

func (s *SettlementService) applyOutcome(ctx context.Context, transfer *models.BankTransfer, attempt *models.BankTransferAttempt, providerName string, resp ach.SettlementResponse) error {
	now := time.Now()
	success := resp.Success
	attempt.Success = &success
	attempt.ProviderID = resp.ProviderID
	attempt.FailureCode = resp.FailureCode
	attempt.FailureMessage = resp.FailureMessage
	attempt.FailureCategory = string(resp.FailureCategory)
	attempt.ReturnCode = resp.ReturnCode
	attempt.ReturnReason = resp.ReturnReason
	attempt.EstimatedSettlementAt = resp.EstimatedSettlementAt
	attempt.RawResponse = resp.RawResponse
	attempt.CompletedAt = &now

	if err := s.transfers.UpdateAttemptOutcome(ctx, attempt); err != nil {
		s.logger.Error("failed to record attempt outcome", zap.Error(err))
	}

	if !resp.Success {
		metrics.TransfersTotal.WithLabelValues(providerName, "failed").Inc()
		return s.transfers.UpdateOutcome(ctx, transfer.ID, models.TransferFailed,
			resp.ProviderID, resp.FailureCode, resp.FailureMessage, resp.ReturnCode, nil)
	}

	status := models.TransferProcessing
	var settledAt *time.Time
	if resp.Status == "settled" {
		status = models.TransferSettled
		settledAt = &now
	}

	metrics.TransfersTotal.WithLabelValues(providerName, string(status)).Inc()
	s.logger.Info("settlement executed",
		zap.String("transfer_id", transfer.ID),
		zap.String("provider", providerName),
		zap.Int("attempt", attempt.AttemptNumber),
		zap.String("status", string(status)))

	return s.transfers.UpdateOutcome(ctx, transfer.ID, status,
		resp.ProviderID, "", "", "", settledAt)
}

func (s *SettlementService) recordRoutingEvent(ctx context.Context, transferID, provider, reason string, alternatives []string) {
	event := &models.RoutingEvent{
		ID:           uuid.New().String(),
		TransferID:   transferID,
		Provider:     provider,
		Reason:       reason,
		Alternatives: alternatives,
		CreatedAt:    time.Now(),
	}
	if err := s.transfers.CreateRoutingEvent(ctx, event); err != nil {
		s.logger.Error("failed to record routing decision", zap.Error(err))
	}
}

// GetTransfer returns a tenant's transfer with its attempt history.
func (s *SettlementService) GetTransfer(ctx context.Context, tenantID, transferID string) (*models.BankTransfer, []*models.BankTransferAttempt, error) {
	transfer, err := s.transfers.GetByID(ctx, transferID)
	if err != nil {
		return nil, nil, err
	}
	if transfer == nil || transfer.TenantID != tenantID {
		return nil, nil, fmt.Errorf("%w: transfer %s", ErrNotFound, transferID)
	}
	attempts, err := s.transfers.ListAttempts(ctx, transferID)
	if err != nil {
		return nil, nil, err
	}
	return transfer, attempts, nil
}

// CancelTransfer blocks new attempts for a pending transfer. It never
// interrupts an in-flight provider call.
func (s *SettlementService) CancelTransfer(ctx context.Context, tenantID, transferID string) error {
	ok, err := s.transfers.Cancel(ctx, tenantID, transferID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: transfer %s cannot be cancelled", ErrTerminalState, transferID)
	}
	return nil
}

// ProcessPendingBatch pushes pending transfers through execution, oldest
// first, isolating per-item failures.
func (s *SettlementService) ProcessPendingBatch(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 50
	}
	pending, err := s.transfers.ListPending(ctx, limit)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, transfer := range pending {
		if err := s.Execute(ctx, transfer.ID); err != nil {
			s.logger.Error("batch settlement item failed",
				zap.String("transfer_id", transfer.ID),
				zap.Error(err))
			continue
		}
		processed++
	}
	return processed, nil
}
