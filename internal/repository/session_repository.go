package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/mgthompo1/payeez-sub001/internal/models"
)

type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, s *models.PaymentSession) error {
	query := `
		INSERT INTO payment_sessions (
			id, tenant_id, customer_id, amount, currency, status,
			client_secret, external_id, description, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.ExecContext(ctx, query,
		s.ID,
		s.TenantID,
		nullString(s.CustomerID),
		s.Amount,
		s.Currency,
		s.Status,
		s.ClientSecret,
		nullString(s.ExternalID),
		s.Description,
		s.CreatedAt,
		s.UpdatedAt,
	)

	return err
}

func (r *SessionRepository) GetByID(ctx context.Context, tenantID, id string) (*models.PaymentSession, error) {
	query := `
		SELECT id, tenant_id, coalesce(customer_id, ''), amount, currency, status,
			   client_secret, coalesce(external_id, ''), coalesce(description, ''),
			   coalesce(failure_code, ''), coalesce(failure_message, ''),
			   created_at, updated_at
		FROM payment_sessions WHERE tenant_id = $1 AND id = $2
	`

	s := &models.PaymentSession{}
	err := r.db.QueryRowContext(ctx, query, tenantID, id).Scan(
		&s.ID, &s.TenantID, &s.CustomerID, &s.Amount, &s.Currency, &s.Status,
		&s.ClientSecret, &s.ExternalID, &s.Description,
		&s.FailureCode, &s.FailureMessage,
		&s.CreatedAt, &s.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	return s, err
}

// GetByExternalID supports external-id idempotency on session creation.
func (r *SessionRepository) GetByExternalID(ctx context.Context, tenantID, externalID string) (*models.PaymentSession, error) {
	query := `
		SELECT id, tenant_id, coalesce(customer_id, ''), amount, currency, status,
			   client_secret, coalesce(external_id, ''), coalesce(description, ''),
			   coalesce(failure_code, ''), coalesce(failure_message, ''),
			   created_at, updated_at
		FROM payment_sessions WHERE tenant_id = $1 AND external_id = $2
	`

	s := &models.PaymentSession{}
	err := r.db.QueryRowContext(ctx, query, tenantID, externalID).Scan(
		&s.ID, &s.TenantID, &s.CustomerID, &s.Amount, &s.Currency, &s.Status,
		&s.ClientSecret, &s.ExternalID, &s.Description,
		&s.FailureCode, &s.FailureMessage,
		&s.CreatedAt, &s.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	return s, err
}

func (r *SessionRepository) UpdateStatus(ctx context.Context, id string, status models.SessionStatus, failureCode, failureMessage string) error {
	query := `
		UPDATE payment_sessions
		SET status = $1, failure_code = nullif($2, ''), failure_message = nullif($3, ''), updated_at = $4
		WHERE id = $5
	`

	_, err := r.db.ExecContext(ctx, query, status, failureCode, failureMessage, time.Now(), id)
	return err
}

func (r *SessionRepository) CreateAttempt(ctx context.Context, a *models.PaymentAttempt) error {
	query := `
		INSERT INTO payment_attempts (id, session_id, psp, status, transaction_id, failure_code, created_at)
		VALUES ($1, $2, $3, $4, nullif($5, ''), nullif($6, ''), $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		a.ID, a.SessionID, a.PSP, a.Status, a.TransactionID, a.FailureCode, a.CreatedAt,
	)
	return err
}

// GetAttemptByTransactionID resolves webhook transaction ids back to the
// session they belong to.
func (r *SessionRepository) GetAttemptByTransactionID(ctx context.Context, transactionID string) (*models.PaymentAttempt, error) {
	query := `
		SELECT id, session_id, psp, status, coalesce(transaction_id, ''), coalesce(failure_code, ''), created_at
		FROM payment_attempts WHERE transaction_id = $1
		ORDER BY created_at DESC LIMIT 1
	`

	a := &models.PaymentAttempt{}
	err := r.db.QueryRowContext(ctx, query, transactionID).Scan(
		&a.ID, &a.SessionID, &a.PSP, &a.Status, &a.TransactionID, &a.FailureCode, &a.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	return a, err
}

// TenantOf resolves a session's tenant for webhook fan-out.
func (r *SessionRepository) TenantOf(ctx context.Context, sessionID string) (string, error) {
	var tenantID string
	err := r.db.QueryRowContext(ctx,
		`SELECT tenant_id FROM payment_sessions WHERE id = $1`, sessionID).Scan(&tenantID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return tenantID, err
}

func (r *SessionRepository) ListAttempts(ctx context.Context, sessionID string) ([]*models.PaymentAttempt, error) {
	query := `
		SELECT id, session_id, psp, status, coalesce(transaction_id, ''), coalesce(failure_code, ''), created_at
		FROM payment_attempts WHERE session_id = $1 ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []*models.PaymentAttempt
	for rows.Next() {
		a := &models.PaymentAttempt{}
		if err := rows.Scan(&a.ID, &a.SessionID, &a.PSP, &a.Status, &a.TransactionID, &a.FailureCode, &a.CreatedAt); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}

	return attempts, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
