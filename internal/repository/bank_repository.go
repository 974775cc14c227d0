package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/mgthompo1/payeez-sub001/internal/models"
)

type BankRepository struct {
	db *sql.DB
}

func NewBankRepository(db *sql.DB) *BankRepository {
	return &BankRepository{db: db}
}

func (r *BankRepository) GetAccount(ctx context.Context, id string) (*models.BankAccount, error) {
	query := `
		SELECT id, tenant_id, coalesce(customer_id, ''), holder_name, routing_number,
			   account_number_last4, account_token, account_type,
			   verification_status, is_active, created_at
		FROM bank_accounts WHERE id = $1
	`

	a := &models.BankAccount{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&a.ID, &a.TenantID, &a.CustomerID, &a.HolderName, &a.RoutingNumber,
		&a.AccountNumberLast4, &a.AccountToken, &a.AccountType,
		&a.VerificationStatus, &a.IsActive, &a.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	return a, err
}

// GetActiveMandate returns the newest active mandate for the account.
func (r *BankRepository) GetActiveMandate(ctx context.Context, bankAccountID string) (*models.BankMandate, error) {
	query := `
		SELECT id, tenant_id, bank_account_id, authorization_text, accepted_at, ip_address, status, created_at
		FROM bank_mandates
		WHERE bank_account_id = $1 AND status = 'active'
		ORDER BY accepted_at DESC
		LIMIT 1
	`

	m := &models.BankMandate{}
	err := r.db.QueryRowContext(ctx, query, bankAccountID).Scan(
		&m.ID, &m.TenantID, &m.BankAccountID, &m.AuthorizationText,
		&m.AcceptedAt, &m.IPAddress, &m.Status, &m.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	return m, err
}

// CountTransfersSince counts transfers created for the account since the
// cutoff, any direction, any status.
func (r *BankRepository) CountTransfersSince(ctx context.Context, bankAccountID string, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM bank_transfers WHERE bank_account_id = $1 AND created_at >= $2
	`, bankAccountID, since).Scan(&count)
	return count, err
}

// SumTransfersSince sums same-direction transfer amounts since the cutoff,
// excluding terminally failed ones.
func (r *BankRepository) SumTransfersSince(ctx context.Context, bankAccountID string, direction models.TransferDirection, since time.Time) (int64, error) {
	var sum int64
	err := r.db.QueryRowContext(ctx, `
		SELECT coalesce(SUM(amount), 0) FROM bank_transfers
		WHERE bank_account_id = $1 AND direction = $2 AND created_at >= $3
		  AND status NOT IN ('failed', 'cancelled')
	`, bankAccountID, direction, since).Scan(&sum)
	return sum, err
}

func (r *BankRepository) CountSettled(ctx context.Context, bankAccountID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM bank_transfers WHERE bank_account_id = $1 AND status = 'settled'
	`, bankAccountID).Scan(&count)
	return count, err
}

func (r *BankRepository) CountReturned(ctx context.Context, bankAccountID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM bank_transfers WHERE bank_account_id = $1 AND status = 'returned'
	`, bankAccountID).Scan(&count)
	return count, err
}

func (r *BankRepository) CreateRiskEvent(ctx context.Context, e *models.RiskEvent) error {
	query := `
		INSERT INTO risk_events (id, tenant_id, bank_account_id, amount, score, approved, flags, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.TenantID, e.BankAccountID, e.Amount, e.Score, e.Approved,
		pq.Array(e.Flags), e.CreatedAt,
	)
	return err
}
