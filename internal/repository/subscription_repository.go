package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/mgthompo1/payeez-sub001/internal/models"
)

type SubscriptionRepository struct {
	db *sql.DB
}

func NewSubscriptionRepository(db *sql.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

const subscriptionColumns = `
	id, tenant_id, customer_id, status, currency, recurring_interval,
	interval_count, current_period_start, current_period_end, trial_end,
	trial_reminder_sent, cancel_at_period_end, canceled_at, ended_at,
	coalesce(default_token, ''), created_at, updated_at
`

func (r *SubscriptionRepository) scan(row interface{ Scan(...interface{}) error }) (*models.Subscription, error) {
	s := &models.Subscription{}
	err := row.Scan(
		&s.ID, &s.TenantID, &s.CustomerID, &s.Status, &s.Currency, &s.Interval,
		&s.IntervalCount, &s.CurrentPeriodStart, &s.CurrentPeriodEnd, &s.TrialEnd,
		&s.TrialReminderSent, &s.CancelAtPeriodEnd, &s.CanceledAt, &s.EndedAt,
		&s.DefaultToken, &s.CreatedAt, &s.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return s, err
}

func (r *SubscriptionRepository) GetByID(ctx context.Context, id string) (*models.Subscription, error) {
	return r.scan(r.db.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`, id))
}

func (r *SubscriptionRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.Subscription, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*models.Subscription
	for rows.Next() {
		s, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}

	return subs, rows.Err()
}

// ListRenewalCandidates returns billable subscriptions whose current period
// ends within the window.
func (r *SubscriptionRepository) ListRenewalCandidates(ctx context.Context, until time.Time, limit int) ([]*models.Subscription, error) {
	return r.list(ctx, `
		SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE status IN ('active', 'past_due')
		  AND cancel_at_period_end = FALSE
		  AND current_period_end <= $1
		ORDER BY current_period_end ASC
		LIMIT $2
	`, until, limit)
}

// ListTrialReminderDue returns trialing subscriptions whose trial ends
// within the window and that have not been reminded yet.
func (r *SubscriptionRepository) ListTrialReminderDue(ctx context.Context, until time.Time, limit int) ([]*models.Subscription, error) {
	return r.list(ctx, `
		SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE status = 'trialing'
		  AND trial_reminder_sent = FALSE
		  AND trial_end IS NOT NULL AND trial_end <= $1
		ORDER BY trial_end ASC
		LIMIT $2
	`, until, limit)
}

// ListTrialEnded returns trialing subscriptions whose trial has passed.
func (r *SubscriptionRepository) ListTrialEnded(ctx context.Context, now time.Time, limit int) ([]*models.Subscription, error) {
	return r.list(ctx, `
		SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE status = 'trialing'
		  AND trial_end IS NOT NULL AND trial_end <= $1
		ORDER BY trial_end ASC
		LIMIT $2
	`, now, limit)
}

// ListCancellationDue returns subscriptions flagged to cancel whose period
// has actually ended.
func (r *SubscriptionRepository) ListCancellationDue(ctx context.Context, now time.Time, limit int) ([]*models.Subscription, error) {
	return r.list(ctx, `
		SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE cancel_at_period_end = TRUE
		  AND status IN ('trialing', 'active', 'past_due', 'paused')
		  AND current_period_end <= $1
		ORDER BY current_period_end ASC
		LIMIT $2
	`, now, limit)
}

func (r *SubscriptionRepository) UpdateStatus(ctx context.Context, id string, status models.SubscriptionStatus) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE subscriptions SET status = $1, updated_at = $2 WHERE id = $3`,
		status, time.Now(), id)
	return err
}

// AdvancePeriod moves the subscription to its next billing period and
// forces the status back to active.
func (r *SubscriptionRepository) AdvancePeriod(ctx context.Context, id string, start, end time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE subscriptions
		SET current_period_start = $1, current_period_end = $2,
		    status = 'active', updated_at = $3
		WHERE id = $4
	`, start, end, time.Now(), id)
	return err
}

func (r *SubscriptionRepository) MarkTrialReminderSent(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE subscriptions SET trial_reminder_sent = TRUE, updated_at = $1 WHERE id = $2 AND trial_reminder_sent = FALSE`,
		time.Now(), id)
	return err
}

// MarkUnpaid ends the subscription after dunning exhaustion.
func (r *SubscriptionRepository) MarkUnpaid(ctx context.Context, id string, canceledAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE subscriptions SET status = 'unpaid', canceled_at = $1, updated_at = $2 WHERE id = $3
	`, canceledAt, time.Now(), id)
	return err
}

// MarkCanceled finalizes a cancel_at_period_end subscription.
func (r *SubscriptionRepository) MarkCanceled(ctx context.Context, id string, endedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE subscriptions
		SET status = 'canceled', canceled_at = $1, ended_at = $1, updated_at = $2
		WHERE id = $3 AND ended_at IS NULL
	`, endedAt, time.Now(), id)
	return err
}

func (r *SubscriptionRepository) ListItems(ctx context.Context, subscriptionID string) ([]*models.SubscriptionItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, subscription_id, coalesce(description, ''), unit_amount, quantity
		FROM subscription_items WHERE subscription_id = $1 ORDER BY id
	`, subscriptionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*models.SubscriptionItem
	for rows.Next() {
		item := &models.SubscriptionItem{}
		if err := rows.Scan(&item.ID, &item.SubscriptionID, &item.Description, &item.UnitAmount, &item.Quantity); err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

func (r *SubscriptionRepository) GetCustomer(ctx context.Context, id string) (*models.Customer, error) {
	c := &models.Customer{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, email, coalesce(default_token, '') FROM customers WHERE id = $1
	`, id).Scan(&c.ID, &c.TenantID, &c.Email, &c.DefaultToken)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	return c, err
}
