package models

import "time"

type SubscriptionStatus string

const (
	SubStatusTrialing SubscriptionStatus = "trialing"
	SubStatusActive   SubscriptionStatus = "active"
	SubStatusPastDue  SubscriptionStatus = "past_due"
	SubStatusPaused   SubscriptionStatus = "paused"
	SubStatusCanceled SubscriptionStatus = "canceled"
	SubStatusUnpaid   SubscriptionStatus = "unpaid"
)

type RecurringInterval string

const (
	IntervalDay   RecurringInterval = "day"
	IntervalWeek  RecurringInterval = "week"
	IntervalMonth RecurringInterval = "month"
	IntervalYear  RecurringInterval = "year"
)

type Subscription struct {
	ID                 string              `json:"id" db:"id"`
	TenantID           string              `json:"tenant_id" db:"tenant_id"`
	CustomerID         string              `json:"customer_id" db:"customer_id"`
	Status             SubscriptionStatus  `json:"status" db:"status"`
	Currency           string              `json:"currency" db:"currency"`
	Interval           RecurringInterval   `json:"interval" db:"recurring_interval"`
	IntervalCount      int                 `json:"interval_count" db:"interval_count"`
	CurrentPeriodStart time.Time           `json:"current_period_start" db:"current_period_start"`
	CurrentPeriodEnd   time.Time           `json:"current_period_end" db:"current_period_end"`
	TrialEnd           *time.Time          `json:"trial_end,omitempty" db:"trial_end"`
	TrialReminderSent  bool                `json:"trial_reminder_sent" db:"trial_reminder_sent"`
	CancelAtPeriodEnd  bool                `json:"cancel_at_period_end" db:"cancel_at_period_end"`
	CanceledAt         *time.Time          `json:"canceled_at,omitempty" db:"canceled_at"`
	EndedAt            *time.Time          `json:"ended_at,omitempty" db:"ended_at"`
	DefaultToken       string              `json:"default_token,omitempty" db:"default_token"`
	CreatedAt          time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at" db:"updated_at"`
	Items              []*SubscriptionItem `json:"items,omitempty" db:"-"`
}

// AdvancePeriod returns the next billing period boundaries.
func (s *Subscription) AdvancePeriod() (start, end time.Time) {
	start = s.CurrentPeriodEnd
	n := s.IntervalCount
	if n <= 0 {
		n = 1
	}
	switch s.Interval {
	case IntervalDay:
		end = start.AddDate(0, 0, n)
	case IntervalWeek:
		end = start.AddDate(0, 0, 7*n)
	case IntervalYear:
		end = start.AddDate(n, 0, 0)
	default:
		end = start.AddDate(0, n, 0)
	}
	return start, end
}

type SubscriptionItem struct {
	ID             string `json:"id" db:"id"`
	SubscriptionID string `json:"subscription_id" db:"subscription_id"`
	Description    string `json:"description" db:"description"`
	UnitAmount     int64  `json:"unit_amount" db:"unit_amount"`
	Quantity       int64  `json:"quantity" db:"quantity"`
}

// Customer holds only the fields billing needs; full customer CRUD is an
// external collaborator.
type Customer struct {
	ID           string `json:"id" db:"id"`
	TenantID     string `json:"tenant_id" db:"tenant_id"`
	Email        string `json:"email" db:"email"`
	DefaultToken string `json:"default_token,omitempty" db:"default_token"`
}

const SubscriptionSchema = `
CREATE TABLE IF NOT EXISTS subscriptions (
    id VARCHAR(36) PRIMARY KEY,
    tenant_id VARCHAR(36) NOT NULL,
    customer_id VARCHAR(36) NOT NULL,
    status VARCHAR(20) NOT NULL,
    currency VARCHAR(3) NOT NULL,
    recurring_interval VARCHAR(10) NOT NULL DEFAULT 'month',
    interval_count INT NOT NULL DEFAULT 1,
    current_period_start TIMESTAMP NOT NULL,
    current_period_end TIMESTAMP NOT NULL,
    trial_end TIMESTAMP,
    trial_reminder_sent BOOLEAN NOT NULL DEFAULT FALSE,
    cancel_at_period_end BOOLEAN NOT NULL DEFAULT FALSE,
    canceled_at TIMESTAMP,
    ended_at TIMESTAMP,
    default_token VARCHAR(255),
    created_at TIMESTAMP NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
    CHECK (current_period_start < current_period_end)
);

CREATE TABLE IF NOT EXISTS subscription_items (
    id VARCHAR(36) PRIMARY KEY,
    subscription_id VARCHAR(36) NOT NULL REFERENCES subscriptions(id),
    description TEXT,
    unit_amount BIGINT NOT NULL,
    quantity BIGINT NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS customers (
    id VARCHAR(36) PRIMARY KEY,
    tenant_id VARCHAR(36) NOT NULL,
    email VARCHAR(255) NOT NULL,
    default_token VARCHAR(255)
);
`
