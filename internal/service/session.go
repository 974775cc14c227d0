package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mgthompo1/payeez-sub001/internal/models"
)

// SessionStore is the session persistence slice.
type SessionStore interface {
	Create(ctx context.Context, s *models.PaymentSession) error
	GetByID(ctx context.Context, tenantID, id string) (*models.PaymentSession, error)
	GetByExternalID(ctx context.Context, tenantID, externalID string) (*models.PaymentSession, error)
	UpdateStatus(ctx context.Context, id string, status models.SessionStatus, failureCode, failureMessage string) error
	ListAttempts(ctx context.Context, sessionID string) ([]*models.PaymentAttempt, error)
}

// SessionService owns the payment session lifecycle: creation, the
// confirm-with-token charge path, and cancellation.
type SessionService struct {
	store       SessionStore
	charger     Charger
	environment string
	logger      *zap.Logger
}

func NewSessionService(store SessionStore, charger Charger, environment string, logger *zap.Logger) *SessionService {
	return &SessionService{
		store:       store,
		charger:     charger,
		environment: environment,
		logger:      logger,
	}
}

// Create opens a new session. An external id already seen for the tenant
// returns the original session instead of a duplicate.
func (s *SessionService) Create(ctx context.Context, tenantID string, req *models.SessionCreateRequest) (*models.PaymentSession, error) {
	if req.ExternalID != "" {
		existing, err := s.store.GetByExternalID(ctx, tenantID, req.ExternalID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	now := time.Now()
	session := &models.PaymentSession{
		ID:           uuid.New().String(),
		TenantID:     tenantID,
		CustomerID:   req.CustomerID,
		Amount:       req.Amount,
		Currency:     strings.ToUpper(req.Currency),
		Status:       models.SessionStatusRequiresPaymentMethod,
		ClientSecret: "cs_" + strings.ReplaceAll(uuid.New().String(), "-", ""),
		ExternalID:   req.ExternalID,
		Description:  req.Description,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.store.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

func (s *SessionService) Get(ctx context.Context, tenantID, id string) (*models.PaymentSession, error) {
	session, err := s.store.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("%w: session %s", ErrNotFound, id)
	}
	return session, nil
}

// Confirm charges the session with a vaulted token and applies the result
// to session state.
func (s *SessionService) Confirm(ctx context.Context, tenantID, id, token string) (*models.PaymentSession, error) {
	session, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if session.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: session %s is %s", ErrTerminalState, id, session.Status)
	}

	attempts, err := s.store.ListAttempts(ctx, session.ID)
	if err != nil {
		return nil, err
	}

	outcome, err := s.charger.Charge(ctx, ChargeRequest{
		TenantID:       tenantID,
		Token:          token,
		Amount:         session.Amount,
		Currency:       session.Currency,
		Environment:    s.environment,
		IdempotencyKey: fmt.Sprintf("%s_try%d", session.ID, len(attempts)+1),
		SessionID:      session.ID,
		Description:    session.Description,
	})
	if err != nil {
		return nil, err
	}

	status := models.SessionStatusFailed
	if outcome.Success {
		status = models.SessionStatusSucceeded
	}
	if err := s.store.UpdateStatus(ctx, session.ID, status, outcome.FailureCode, outcome.FailureMessage); err != nil {
		return nil, err
	}

	return s.Get(ctx, tenantID, id)
}

// Cancel is only legal in non-terminal statuses.
func (s *SessionService) Cancel(ctx context.Context, tenantID, id string) error {
	session, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if session.Status.IsTerminal() || session.Status == models.SessionStatusProcessing {
		return fmt.Errorf("%w: session %s is %s", ErrTerminalState, id, session.Status)
	}
	return s.store.UpdateStatus(ctx, id, models.SessionStatusCanceled, "", "")
}
