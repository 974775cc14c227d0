package models

import "time"

type SessionStatus string

const (
	SessionStatusRequiresPaymentMethod SessionStatus = "requires_payment_method"
	SessionStatusRequiresAction        SessionStatus = "requires_action"
	SessionStatusProcessing            SessionStatus = "processing"
	SessionStatusSucceeded             SessionStatus = "succeeded"
	SessionStatusFailed                SessionStatus = "failed"
	SessionStatusCanceled              SessionStatus = "canceled"
)

// IsTerminal reports whether a session can no longer change state.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusSucceeded || s == SessionStatusFailed || s == SessionStatusCanceled
}

// PaymentSession is the merchant-facing payment object. Amounts are integer
// minor units in a single currency.
type PaymentSession struct {
	ID             string        `json:"id" db:"id"`
	TenantID       string        `json:"tenant_id" db:"tenant_id"`
	CustomerID     string        `json:"customer_id,omitempty" db:"customer_id"`
	Amount         int64         `json:"amount" db:"amount"`
	Currency       string        `json:"currency" db:"currency"`
	Status         SessionStatus `json:"status" db:"status"`
	ClientSecret   string        `json:"client_secret,omitempty" db:"client_secret"`
	ExternalID     string        `json:"external_id,omitempty" db:"external_id"`
	Description    string        `json:"description,omitempty" db:"description"`
	FailureCode    string        `json:"failure_code,omitempty" db:"failure_code"`
	FailureMessage string        `json:"failure_message,omitempty" db:"failure_message"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at" db:"updated_at"`
}

type AttemptStatus string

const (
	AttemptStatusPending   AttemptStatus = "pending"
	AttemptStatusSucceeded AttemptStatus = "succeeded"
	AttemptStatusFailed    AttemptStatus = "failed"
)

// PaymentAttempt is append-only; one row per charge try against a session.
type PaymentAttempt struct {
	ID            string        `json:"id" db:"id"`
	SessionID     string        `json:"session_id" db:"session_id"`
	PSP           string        `json:"psp" db:"psp"`
	Status        AttemptStatus `json:"status" db:"status"`
	TransactionID string        `json:"transaction_id,omitempty" db:"transaction_id"`
	FailureCode   string        `json:"failure_code,omitempty" db:"failure_code"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
}

type SessionCreateRequest struct {
	Amount      int64  `json:"amount" binding:"required,gt=0"`
	Currency    string `json:"currency" binding:"required,len=3"`
	CustomerID  string `json:"customer_id"`
	ExternalID  string `json:"external_id"`
	Description string `json:"description"`
}

// Database schema
const SessionSchema = `
CREATE TABLE IF NOT EXISTS payment_sessions (
    id VARCHAR(36) PRIMARY KEY,
    tenant_id VARCHAR(36) NOT NULL,
    customer_id VARCHAR(36),
    amount BIGINT NOT NULL CHECK (amount > 0),
    currency VARCHAR(3) NOT NULL,
    status VARCHAR(32) NOT NULL,
    client_secret VARCHAR(80) UNIQUE NOT NULL,
    external_id VARCHAR(255),
    description TEXT,
    failure_code VARCHAR(64),
    failure_message TEXT,
    created_at TIMESTAMP NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_tenant_external
    ON payment_sessions (tenant_id, external_id) WHERE external_id IS NOT NULL;

CREATE TABLE IF NOT EXISTS payment_attempts (
    id VARCHAR(36) PRIMARY KEY,
    session_id VARCHAR(36) NOT NULL REFERENCES payment_sessions(id),
    psp VARCHAR(32) NOT NULL,
    status VARCHAR(20) NOT NULL,
    transaction_id VARCHAR(255),
    failure_code VARCHAR(64),
    created_at TIMESTAMP NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_attempts_transaction ON payment_attempts (transaction_id);
`
