package models

import "time"

type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
	VerificationFailed   VerificationStatus = "failed"
)

type BankAccount struct {
	ID                 string             `json:"id" db:"id"`
	TenantID           string             `json:"tenant_id" db:"tenant_id"`
	CustomerID         string             `json:"customer_id,omitempty" db:"customer_id"`
	HolderName         string             `json:"holder_name" db:"holder_name"`
	RoutingNumber      string             `json:"routing_number" db:"routing_number"`
	AccountNumberLast4 string             `json:"account_number_last4" db:"account_number_last4"`
	AccountToken       string             `json:"-" db:"account_token"`
	AccountType        string             `json:"account_type" db:"account_type"`
	VerificationStatus VerificationStatus `json:"verification_status" db:"verification_status"`
	IsActive           bool               `json:"is_active" db:"is_active"`
	CreatedAt          time.Time          `json:"created_at" db:"created_at"`
}

type MandateStatus string

const (
	MandateActive  MandateStatus = "active"
	MandateRevoked MandateStatus = "revoked"
)

// BankMandate is the signed authorization required before any recurring
// ACH debit.
type BankMandate struct {
	ID                string        `json:"id" db:"id"`
	TenantID          string        `json:"tenant_id" db:"tenant_id"`
	BankAccountID     string        `json:"bank_account_id" db:"bank_account_id"`
	AuthorizationText string        `json:"authorization_text" db:"authorization_text"`
	AcceptedAt        time.Time     `json:"accepted_at" db:"accepted_at"`
	IPAddress         string        `json:"ip_address" db:"ip_address"`
	Status            MandateStatus `json:"status" db:"status"`
	CreatedAt         time.Time     `json:"created_at" db:"created_at"`
}

type TransferDirection string

const (
	DirectionDebit  TransferDirection = "debit"
	DirectionCredit TransferDirection = "credit"
)

type TransferStatus string

const (
	TransferPending    TransferStatus = "pending"
	TransferProcessing TransferStatus = "processing"
	TransferSettled    TransferStatus = "settled"
	TransferFailed     TransferStatus = "failed"
	TransferReturned   TransferStatus = "returned"
	TransferCancelled  TransferStatus = "cancelled"
	// TransferUnknown marks a transfer whose provider call timed out with
	// the outcome unresolved. It must be reconciled with the provider
	// before any new attempt is allowed.
	TransferUnknown TransferStatus = "unknown"
)

// IsTerminal reports whether the transfer can accept new attempts.
func (s TransferStatus) IsTerminal() bool {
	switch s {
	case TransferSettled, TransferFailed, TransferReturned, TransferCancelled, TransferUnknown:
		return true
	}
	return false
}

type BankTransfer struct {
	ID             string            `json:"id" db:"id"`
	TenantID       string            `json:"tenant_id" db:"tenant_id"`
	BankAccountID  string            `json:"bank_account_id" db:"bank_account_id"`
	Amount         int64             `json:"amount" db:"amount"`
	Currency       string            `json:"currency" db:"currency"`
	Direction      TransferDirection `json:"direction" db:"direction"`
	Status         TransferStatus    `json:"status" db:"status"`
	Recurring      bool              `json:"recurring" db:"recurring"`
	IdempotencyKey string            `json:"idempotency_key" db:"idempotency_key"`
	Description    string            `json:"description,omitempty" db:"description"`
	Provider       string            `json:"provider,omitempty" db:"provider"`
	ProviderRef    string            `json:"provider_ref,omitempty" db:"provider_ref"`
	FailureCode    string            `json:"failure_code,omitempty" db:"failure_code"`
	FailureMessage string            `json:"failure_message,omitempty" db:"failure_message"`
	ReturnCode     string            `json:"return_code,omitempty" db:"return_code"`
	SettledAt      *time.Time        `json:"settled_at,omitempty" db:"settled_at"`
	CreatedAt      time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at" db:"updated_at"`
}

// BankTransferAttempt is append-only: one row per execution try. The row is
// inserted before the provider call and only its outcome fields are filled
// in afterwards.
type BankTransferAttempt struct {
	ID                    string     `json:"id" db:"id"`
	TransferID            string     `json:"transfer_id" db:"transfer_id"`
	AttemptNumber         int        `json:"attempt_number" db:"attempt_number"`
	Provider              string     `json:"provider" db:"provider"`
	IdempotencyKey        string     `json:"idempotency_key" db:"idempotency_key"`
	Success               *bool      `json:"success,omitempty" db:"success"`
	ProviderID            string     `json:"provider_id,omitempty" db:"provider_id"`
	FailureCode           string     `json:"failure_code,omitempty" db:"failure_code"`
	FailureMessage        string     `json:"failure_message,omitempty" db:"failure_message"`
	FailureCategory       string     `json:"failure_category,omitempty" db:"failure_category"`
	ReturnCode            string     `json:"return_code,omitempty" db:"return_code"`
	ReturnReason          string     `json:"return_reason,omitempty" db:"return_reason"`
	EstimatedSettlementAt *time.Time `json:"estimated_settlement_at,omitempty" db:"estimated_settlement_at"`
	RawResponse           string     `json:"-" db:"raw_response"`
	CreatedAt             time.Time  `json:"created_at" db:"created_at"`
	CompletedAt           *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// RiskEvent is the audit record emitted by every risk assessment.
type RiskEvent struct {
	ID            string    `json:"id" db:"id"`
	TenantID      string    `json:"tenant_id" db:"tenant_id"`
	BankAccountID string    `json:"bank_account_id" db:"bank_account_id"`
	Amount        int64     `json:"amount" db:"amount"`
	Score         int       `json:"score" db:"score"`
	Approved      bool      `json:"approved" db:"approved"`
	Flags         []string  `json:"flags" db:"flags"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// RoutingEvent records a settlement routing decision: which rail was
// chosen, why, and what else was considered.
type RoutingEvent struct {
	ID           string    `json:"id" db:"id"`
	TransferID   string    `json:"transfer_id" db:"transfer_id"`
	Provider     string    `json:"provider" db:"provider"`
	Reason       string    `json:"reason" db:"reason"`
	Alternatives []string  `json:"alternatives" db:"alternatives"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

type TransferCreateRequest struct {
	BankAccountID  string `json:"bank_account_id" binding:"required"`
	Amount         int64  `json:"amount" binding:"required,gt=0"`
	Currency       string `json:"currency" binding:"required,len=3"`
	Direction      string `json:"direction" binding:"required,oneof=debit credit"`
	Recurring      bool   `json:"recurring"`
	IdempotencyKey string `json:"idempotency_key" binding:"required"`
	Description    string `json:"description"`
}

const BankSchema = `
CREATE TABLE IF NOT EXISTS bank_accounts (
    id VARCHAR(36) PRIMARY KEY,
    tenant_id VARCHAR(36) NOT NULL,
    customer_id VARCHAR(36),
    holder_name VARCHAR(255) NOT NULL,
    routing_number VARCHAR(9) NOT NULL,
    account_number_last4 VARCHAR(4) NOT NULL,
    account_token VARCHAR(255) NOT NULL,
    account_type VARCHAR(16) NOT NULL DEFAULT 'checking',
    verification_status VARCHAR(20) NOT NULL DEFAULT 'pending',
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMP NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS bank_mandates (
    id VARCHAR(36) PRIMARY KEY,
    tenant_id VARCHAR(36) NOT NULL,
    bank_account_id VARCHAR(36) NOT NULL REFERENCES bank_accounts(id),
    authorization_text TEXT NOT NULL,
    accepted_at TIMESTAMP NOT NULL,
    ip_address VARCHAR(45) NOT NULL,
    status VARCHAR(20) NOT NULL DEFAULT 'active',
    created_at TIMESTAMP NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS bank_transfers (
    id VARCHAR(36) PRIMARY KEY,
    tenant_id VARCHAR(36) NOT NULL,
    bank_account_id VARCHAR(36) NOT NULL REFERENCES bank_accounts(id),
    amount BIGINT NOT NULL CHECK (amount > 0),
    currency VARCHAR(3) NOT NULL,
    direction VARCHAR(10) NOT NULL,
    status VARCHAR(20) NOT NULL DEFAULT 'pending',
    recurring BOOLEAN NOT NULL DEFAULT FALSE,
    idempotency_key VARCHAR(255) NOT NULL,
    description TEXT,
    provider VARCHAR(32),
    provider_ref VARCHAR(255),
    failure_code VARCHAR(64),
    failure_message TEXT,
    return_code VARCHAR(16),
    settled_at TIMESTAMP,
    created_at TIMESTAMP NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
    UNIQUE (tenant_id, idempotency_key)
);
CREATE INDEX IF NOT EXISTS idx_transfers_pending ON bank_transfers (status, created_at);

CREATE TABLE IF NOT EXISTS bank_transfer_attempts (
    id VARCHAR(36) PRIMARY KEY,
    transfer_id VARCHAR(36) NOT NULL REFERENCES bank_transfers(id),
    attempt_number INT NOT NULL,
    provider VARCHAR(32) NOT NULL,
    idempotency_key VARCHAR(255) NOT NULL,
    success BOOLEAN,
    provider_id VARCHAR(255),
    failure_code VARCHAR(64),
    failure_message TEXT,
    failure_category VARCHAR(32),
    return_code VARCHAR(16),
    return_reason TEXT,
    estimated_settlement_at TIMESTAMP,
    raw_response TEXT,
    created_at TIMESTAMP NOT NULL DEFAULT NOW(),
    completed_at TIMESTAMP,
    UNIQUE (transfer_id, attempt_number)
);

CREATE TABLE IF NOT EXISTS risk_events (
    id VARCHAR(36) PRIMARY KEY,
    tenant_id VARCHAR(36) NOT NULL,
    bank_account_id VARCHAR(36) NOT NULL,
    amount BIGINT NOT NULL,
    score INT NOT NULL,
    approved BOOLEAN NOT NULL,
    flags TEXT[] NOT NULL DEFAULT '{}',
    created_at TIMESTAMP NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS routing_events (
    id VARCHAR(36) PRIMARY KEY,
    transfer_id VARCHAR(36) NOT NULL,
    provider VARCHAR(32) NOT NULL,
    reason TEXT NOT NULL,
    alternatives TEXT[] NOT NULL DEFAULT '{}',
    created_at TIMESTAMP NOT NULL DEFAULT NOW()
);
`
