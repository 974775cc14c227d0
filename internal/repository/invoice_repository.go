package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mgthompo1/payeez-sub001/internal/models"
)

type InvoiceRepository struct {
	db *sql.DB
}

func NewInvoiceRepository(db *sql.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

// CreateWithLines inserts the invoice and its line items in one
// transaction. The unique (subscription_id, period_start) index makes
// concurrent generation scans collapse to a single invoice.
func (r *InvoiceRepository) CreateWithLines(ctx context.Context, inv *models.Invoice) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO invoices (
			id, tenant_id, customer_id, subscription_id, status, collection_method,
			currency, subtotal, tax, total, amount_paid, amount_remaining,
			auto_advance, period_start, period_end, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	_, err = tx.ExecContext(ctx, query,
		inv.ID, inv.TenantID, inv.CustomerID, nullString(inv.SubscriptionID),
		inv.Status, inv.CollectionMethod, inv.Currency,
		inv.Subtotal, inv.Tax, inv.Total, inv.AmountPaid, inv.AmountRemaining,
		inv.AutoAdvance, inv.PeriodStart, inv.PeriodEnd, inv.CreatedAt, inv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert invoice: %w", err)
	}

	lineQuery := `
		INSERT INTO invoice_line_items (id, invoice_id, description, unit_amount, quantity, amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for _, line := range inv.Lines {
		if _, err := tx.ExecContext(ctx, lineQuery,
			line.ID, line.InvoiceID, line.Description, line.UnitAmount, line.Quantity, line.Amount, line.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert line item: %w", err)
		}
	}

	return tx.Commit()
}

func (r *InvoiceRepository) GetByID(ctx context.Context, id string) (*models.Invoice, error) {
	query := `
		SELECT id, tenant_id, customer_id, coalesce(subscription_id, ''), status,
			   collection_method, currency, subtotal, tax, total, amount_paid,
			   amount_remaining, auto_advance, period_start, period_end,
			   finalized_at, paid_at, coalesce(failure_code, ''),
			   coalesce(failure_message, ''), created_at, updated_at
		FROM invoices WHERE id = $1
	`

	inv := &models.Invoice{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&inv.ID, &inv.TenantID, &inv.CustomerID, &inv.SubscriptionID, &inv.Status,
		&inv.CollectionMethod, &inv.Currency, &inv.Subtotal, &inv.Tax, &inv.Total,
		&inv.AmountPaid, &inv.AmountRemaining, &inv.AutoAdvance,
		&inv.PeriodStart, &inv.PeriodEnd, &inv.FinalizedAt, &inv.PaidAt,
		&inv.FailureCode, &inv.FailureMessage, &inv.CreatedAt, &inv.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	return inv, err
}

// ExistsForPeriod guards period-based invoice creation.
func (r *InvoiceRepository) ExistsForPeriod(ctx context.Context, subscriptionID string, periodStart time.Time) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM invoices WHERE subscription_id = $1 AND period_start = $2`,
		subscriptionID, periodStart,
	).Scan(&count)
	return count > 0, err
}

func (r *InvoiceRepository) ListDraftAutoAdvance(ctx context.Context, limit int) ([]*models.Invoice, error) {
	return r.listByStatus(ctx, `status = 'draft' AND auto_advance = TRUE`, limit)
}

func (r *InvoiceRepository) ListOpenAutoCharge(ctx context.Context, limit int) ([]*models.Invoice, error) {
	return r.listByStatus(ctx, `status = 'open' AND collection_method = 'charge_automatically'`, limit)
}

func (r *InvoiceRepository) listByStatus(ctx context.Context, where string, limit int) ([]*models.Invoice, error) {
	query := fmt.Sprintf(`
		SELECT id, tenant_id, customer_id, coalesce(subscription_id, ''), status,
			   collection_method, currency, subtotal, tax, total, amount_paid,
			   amount_remaining, auto_advance, period_start, period_end,
			   finalized_at, paid_at, coalesce(failure_code, ''),
			   coalesce(failure_message, ''), created_at, updated_at
		FROM invoices WHERE %s
		ORDER BY created_at ASC
		LIMIT $1
	`, where)

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []*models.Invoice
	for rows.Next() {
		inv := &models.Invoice{}
		if err := rows.Scan(
			&inv.ID, &inv.TenantID, &inv.CustomerID, &inv.SubscriptionID, &inv.Status,
			&inv.CollectionMethod, &inv.Currency, &inv.Subtotal, &inv.Tax, &inv.Total,
			&inv.AmountPaid, &inv.AmountRemaining, &inv.AutoAdvance,
			&inv.PeriodStart, &inv.PeriodEnd, &inv.FinalizedAt, &inv.PaidAt,
			&inv.FailureCode, &inv.FailureMessage, &inv.CreatedAt, &inv.UpdatedAt,
		); err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}

	return invoices, rows.Err()
}

func (r *InvoiceRepository) MarkOpen(ctx context.Context, id string, finalizedAt time.Time) error {
	query := `
		UPDATE invoices SET status = 'open', finalized_at = $1, updated_at = $2
		WHERE id = $3 AND status = 'draft'
	`
	_, err := r.db.ExecContext(ctx, query, finalizedAt, time.Now(), id)
	return err
}

func (r *InvoiceRepository) MarkPaid(ctx context.Context, id string, paidAt time.Time, amountPaid int64) error {
	query := `
		UPDATE invoices
		SET status = 'paid', paid_at = $1, amount_paid = $2,
		    amount_remaining = total - $2, failure_code = NULL,
		    failure_message = NULL, updated_at = $3
		WHERE id = $4
	`
	_, err := r.db.ExecContext(ctx, query, paidAt, amountPaid, time.Now(), id)
	return err
}

func (r *InvoiceRepository) MarkPastDue(ctx context.Context, id, failureCode, failureMessage string) error {
	query := `
		UPDATE invoices
		SET status = 'past_due', failure_code = nullif($1, ''),
		    failure_message = nullif($2, ''), updated_at = $3
		WHERE id = $4
	`
	_, err := r.db.ExecContext(ctx, query, failureCode, failureMessage, time.Now(), id)
	return err
}

func (r *InvoiceRepository) MarkUncollectible(ctx context.Context, id string) error {
	query := `UPDATE invoices SET status = 'uncollectible', updated_at = $1 WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, time.Now(), id)
	return err
}

func (r *InvoiceRepository) ListLines(ctx context.Context, invoiceID string) ([]*models.InvoiceLineItem, error) {
	query := `
		SELECT id, invoice_id, coalesce(description, ''), unit_amount, quantity, amount, created_at
		FROM invoice_line_items WHERE invoice_id = $1 ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []*models.InvoiceLineItem
	for rows.Next() {
		line := &models.InvoiceLineItem{}
		if err := rows.Scan(&line.ID, &line.InvoiceID, &line.Description, &line.UnitAmount, &line.Quantity, &line.Amount, &line.CreatedAt); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}

	return lines, rows.Err()
}
