package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/mgthompo1/payeez-sub001/internal/models"
)

type TransferRepository struct {
	db *sql.DB
}

func NewTransferRepository(db *sql.DB) *TransferRepository {
	return &TransferRepository{db: db}
}

// Create inserts the transfer. When the (tenant_id, idempotency_key) pair
// already exists, the original transfer is returned with created=false and
// no new row is written.
func (r *TransferRepository) Create(ctx context.Context, t *models.BankTransfer) (created bool, existing *models.BankTransfer, err error) {
	query := `
		INSERT INTO bank_transfers (
			id, tenant_id, bank_account_id, amount, currency, direction,
			status, recurring, idempotency_key, description, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (tenant_id, idempotency_key) DO NOTHING
	`

	res, err := r.db.ExecContext(ctx, query,
		t.ID, t.TenantID, t.BankAccountID, t.Amount, t.Currency, t.Direction,
		t.Status, t.Recurring, t.IdempotencyKey, t.Description, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return false, nil, err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, nil, err
	}
	if rows == 1 {
		return true, t, nil
	}

	existing, err = r.GetByIdempotencyKey(ctx, t.TenantID, t.IdempotencyKey)
	return false, existing, err
}

const transferColumns = `
	id, tenant_id, bank_account_id, amount, currency, direction, status,
	recurring, idempotency_key, coalesce(description, ''), coalesce(provider, ''),
	coalesce(provider_ref, ''), coalesce(failure_code, ''),
	coalesce(failure_message, ''), coalesce(return_code, ''), settled_at,
	created_at, updated_at
`

func (r *TransferRepository) scan(row interface{ Scan(...interface{}) error }) (*models.BankTransfer, error) {
	t := &models.BankTransfer{}
	err := row.Scan(
		&t.ID, &t.TenantID, &t.BankAccountID, &t.Amount, &t.Currency, &t.Direction,
		&t.Status, &t.Recurring, &t.IdempotencyKey, &t.Description, &t.Provider,
		&t.ProviderRef, &t.FailureCode, &t.FailureMessage, &t.ReturnCode,
		&t.SettledAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

func (r *TransferRepository) GetByID(ctx context.Context, id string) (*models.BankTransfer, error) {
	return r.scan(r.db.QueryRowContext(ctx,
		`SELECT `+transferColumns+` FROM bank_transfers WHERE id = $1`, id))
}

func (r *TransferRepository) GetByIdempotencyKey(ctx context.Context, tenantID, key string) (*models.BankTransfer, error) {
	return r.scan(r.db.QueryRowContext(ctx,
		`SELECT `+transferColumns+` FROM bank_transfers WHERE tenant_id = $1 AND idempotency_key = $2`,
		tenantID, key))
}

// ListPending returns pending transfers oldest-created-first, capped.
func (r *TransferRepository) ListPending(ctx context.Context, limit int) ([]*models.BankTransfer, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transferColumns+` FROM bank_transfers WHERE status = 'pending' ORDER BY created_at ASC LIMIT $1`,
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transfers []*models.BankTransfer
	for rows.Next() {
		t, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, t)
	}

	return transfers, rows.Err()
}

// MarkProcessing flips a transfer to processing only from a retryable
// status; the row count tells the caller whether it won the transition.
func (r *TransferRepository) MarkProcessing(ctx context.Context, id, provider string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE bank_transfers SET status = 'processing', provider = $1, updated_at = $2
		WHERE id = $3 AND status IN ('pending', 'failed')
	`, provider, time.Now(), id)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	return rows == 1, err
}

func (r *TransferRepository) UpdateOutcome(ctx context.Context, id string, status models.TransferStatus, providerRef, failureCode, failureMessage, returnCode string, settledAt *time.Time) error {
	query := `
		UPDATE bank_transfers
		SET status = $1, provider_ref = nullif($2, ''), failure_code = nullif($3, ''),
		    failure_message = nullif($4, ''), return_code = nullif($5, ''),
		    settled_at = $6, updated_at = $7
		WHERE id = $8
	`
	_, err := r.db.ExecContext(ctx, query, status, providerRef, failureCode, failureMessage, returnCode, settledAt, time.Now(), id)
	return err
}

// Cancel succeeds only while the transfer has not begun settling.
func (r *TransferRepository) Cancel(ctx context.Context, tenantID, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE bank_transfers SET status = 'cancelled', updated_at = $1
		WHERE tenant_id = $2 AND id = $3 AND status = 'pending'
	`, time.Now(), tenantID, id)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	return rows == 1, err
}

// InsertAttempt assigns the attempt number atomically inside the insert so
// concurrent executors can never allocate the same number. The unique
// (transfer_id, attempt_number) index backs the statement.
func (r *TransferRepository) InsertAttempt(ctx context.Context, a *models.BankTransferAttempt) error {
	query := `
		INSERT INTO bank_transfer_attempts (id, transfer_id, attempt_number, provider, idempotency_key, created_at)
		SELECT $1, $2, n.next, $3, $2 || '_' || n.next, $4
		FROM (
			SELECT coalesce(MAX(attempt_number), 0) + 1 AS next
			FROM bank_transfer_attempts WHERE transfer_id = $2
		) n
		RETURNING attempt_number, idempotency_key
	`

	return r.db.QueryRowContext(ctx, query, a.ID, a.TransferID, a.Provider, a.CreatedAt).
		Scan(&a.AttemptNumber, &a.IdempotencyKey)
}

func (r *TransferRepository) UpdateAttemptOutcome(ctx context.Context, a *models.BankTransferAttempt) error {
	query := `
		UPDATE bank_transfer_attempts
		SET success = $1, provider_id = nullif($2, ''), failure_code = nullif($3, ''),
		    failure_message = nullif($4, ''), failure_category = nullif($5, ''),
		    return_code = nullif($6, ''), return_reason = nullif($7, ''),
		    estimated_settlement_at = $8, raw_response = nullif($9, ''), completed_at = $10
		WHERE id = $11
	`

	_, err := r.db.ExecContext(ctx, query,
		a.Success, a.ProviderID, a.FailureCode, a.FailureMessage, a.FailureCategory,
		a.ReturnCode, a.ReturnReason, a.EstimatedSettlementAt, a.RawResponse,
		a.CompletedAt, a.ID,
	)
	return err
}

func (r *TransferRepository) ListAttempts(ctx context.Context, transferID string) ([]*models.BankTransferAttempt, error) {
	query := `
		SELECT id, transfer_id, attempt_number, provider, idempotency_key, success,
			   coalesce(provider_id, ''), coalesce(failure_code, ''),
			   coalesce(failure_message, ''), coalesce(failure_category, ''),
			   coalesce(return_code, ''), coalesce(return_reason, ''),
			   estimated_settlement_at, created_at, completed_at
		FROM bank_transfer_attempts WHERE transfer_id = $1 ORDER BY attempt_number ASC
	`

	rows, err := r.db.QueryContext(ctx, query, transferID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []*models.BankTransferAttempt
	for rows.Next() {
		a := &models.BankTransferAttempt{}
		if err := rows.Scan(
			&a.ID, &a.TransferID, &a.AttemptNumber, &a.Provider, &a.IdempotencyKey,
			&a.Success, &a.ProviderID, &a.FailureCode, &a.FailureMessage,
			&a.FailureCategory, &a.ReturnCode, &a.ReturnReason,
			&a.EstimatedSettlementAt, &a.CreatedAt, &a.CompletedAt,
		); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}

	return attempts, rows.Err()
}

func (r *TransferRepository) CreateRoutingEvent(ctx context.Context, e *models.RoutingEvent) error {
	query := `
		INSERT INTO routing_events (id, transfer_id, provider, reason, alternatives, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.TransferID, e.Provider, e.Reason, pq.Array(e.Alternatives), e.CreatedAt,
	)
	return err
}
