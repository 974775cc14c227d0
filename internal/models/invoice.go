package models

import "time"

type InvoiceStatus string

const (
	InvoiceStatusDraft         InvoiceStatus = "draft"
	InvoiceStatusOpen          InvoiceStatus = "open"
	InvoiceStatusPaid          InvoiceStatus = "paid"
	InvoiceStatusPastDue       InvoiceStatus = "past_due"
	InvoiceStatusUncollectible InvoiceStatus = "uncollectible"
	InvoiceStatusVoid          InvoiceStatus = "void"
)

type CollectionMethod string

const (
	CollectChargeAutomatically CollectionMethod = "charge_automatically"
	CollectSendInvoice         CollectionMethod = "send_invoice"
)

// Invoice. Total = Subtotal + Tax and AmountRemaining = Total - AmountPaid
// hold in every non-void status. Line items are immutable once the invoice
// is finalized.
type Invoice struct {
	ID               string             `json:"id" db:"id"`
	TenantID         string             `json:"tenant_id" db:"tenant_id"`
	CustomerID       string             `json:"customer_id" db:"customer_id"`
	SubscriptionID   string             `json:"subscription_id,omitempty" db:"subscription_id"`
	Status           InvoiceStatus      `json:"status" db:"status"`
	CollectionMethod CollectionMethod   `json:"collection_method" db:"collection_method"`
	Currency         string             `json:"currency" db:"currency"`
	Subtotal         int64              `json:"subtotal" db:"subtotal"`
	Tax              int64              `json:"tax" db:"tax"`
	Total            int64              `json:"total" db:"total"`
	AmountPaid       int64              `json:"amount_paid" db:"amount_paid"`
	AmountRemaining  int64              `json:"amount_remaining" db:"amount_remaining"`
	AutoAdvance      bool               `json:"auto_advance" db:"auto_advance"`
	PeriodStart      time.Time          `json:"period_start" db:"period_start"`
	PeriodEnd        time.Time          `json:"period_end" db:"period_end"`
	FinalizedAt      *time.Time         `json:"finalized_at,omitempty" db:"finalized_at"`
	PaidAt           *time.Time         `json:"paid_at,omitempty" db:"paid_at"`
	FailureCode      string             `json:"failure_code,omitempty" db:"failure_code"`
	FailureMessage   string             `json:"failure_message,omitempty" db:"failure_message"`
	CreatedAt        time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at" db:"updated_at"`
	Lines            []*InvoiceLineItem `json:"lines,omitempty" db:"-"`
}

// InvoiceLineItem is immutable once created. Amount = UnitAmount * Quantity.
type InvoiceLineItem struct {
	ID          string    `json:"id" db:"id"`
	InvoiceID   string    `json:"invoice_id" db:"invoice_id"`
	Description string    `json:"description" db:"description"`
	UnitAmount  int64     `json:"unit_amount" db:"unit_amount"`
	Quantity    int64     `json:"quantity" db:"quantity"`
	Amount      int64     `json:"amount" db:"amount"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

const InvoiceSchema = `
CREATE TABLE IF NOT EXISTS invoices (
    id VARCHAR(36) PRIMARY KEY,
    tenant_id VARCHAR(36) NOT NULL,
    customer_id VARCHAR(36) NOT NULL,
    subscription_id VARCHAR(36),
    status VARCHAR(20) NOT NULL,
    collection_method VARCHAR(32) NOT NULL DEFAULT 'charge_automatically',
    currency VARCHAR(3) NOT NULL,
    subtotal BIGINT NOT NULL DEFAULT 0,
    tax BIGINT NOT NULL DEFAULT 0,
    total BIGINT NOT NULL DEFAULT 0,
    amount_paid BIGINT NOT NULL DEFAULT 0,
    amount_remaining BIGINT NOT NULL DEFAULT 0,
    auto_advance BOOLEAN NOT NULL DEFAULT TRUE,
    period_start TIMESTAMP NOT NULL,
    period_end TIMESTAMP NOT NULL,
    finalized_at TIMESTAMP,
    paid_at TIMESTAMP,
    failure_code VARCHAR(64),
    failure_message TEXT,
    created_at TIMESTAMP NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_invoices_sub_period
    ON invoices (subscription_id, period_start) WHERE subscription_id IS NOT NULL;

CREATE TABLE IF NOT EXISTS invoice_line_items (
    id VARCHAR(36) PRIMARY KEY,
    invoice_id VARCHAR(36) NOT NULL REFERENCES invoices(id),
    description TEXT,
    unit_amount BIGINT NOT NULL,
    quantity BIGINT NOT NULL,
    amount BIGINT NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT NOW()
);
`
