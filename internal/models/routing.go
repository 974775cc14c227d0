package models

import "time"

// RuleConditions is the closed predicate set a routing rule may carry.
// A nil field means the predicate is absent; a rule with no predicates
// matches every transaction.
type RuleConditions struct {
	Currency  *string `json:"currency,omitempty"`
	AmountGTE *int64  `json:"amount_gte,omitempty"`
	AmountLTE *int64  `json:"amount_lte,omitempty"`
}

// Matches evaluates the rule predicates against a transaction.
func (c RuleConditions) Matches(amount int64, currency string) bool {
	if c.Currency != nil && *c.Currency != currency {
		return false
	}
	if c.AmountGTE != nil && amount < *c.AmountGTE {
		return false
	}
	if c.AmountLTE != nil && amount > *c.AmountLTE {
		return false
	}
	return true
}

type RoutingRule struct {
	ID         string         `json:"id" db:"id"`
	TenantID   string         `json:"tenant_id" db:"tenant_id"`
	PSP        string         `json:"psp" db:"psp"`
	Priority   int            `json:"priority" db:"priority"`
	Conditions RuleConditions `json:"conditions" db:"conditions"`
	Active     bool           `json:"active" db:"active"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
}

// PSPCredential is an encrypted processor credential blob for one
// tenant + environment.
type PSPCredential struct {
	ID            string    `json:"id" db:"id"`
	TenantID      string    `json:"tenant_id" db:"tenant_id"`
	PSP           string    `json:"psp" db:"psp"`
	Environment   string    `json:"environment" db:"environment"`
	EncryptedBlob string    `json:"-" db:"encrypted_blob"`
	Active        bool      `json:"active" db:"active"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// RouteDecision is the router's answer: which PSP to use and why.
type RouteDecision struct {
	PSP         string            `json:"psp"`
	Reason      string            `json:"reason"`
	RuleID      string            `json:"rule_id,omitempty"`
	Credentials map[string]string `json:"-"`
}

const RoutingSchema = `
CREATE TABLE IF NOT EXISTS routing_rules (
    id VARCHAR(36) PRIMARY KEY,
    tenant_id VARCHAR(36) NOT NULL,
    psp VARCHAR(32) NOT NULL,
    priority INT NOT NULL DEFAULT 0,
    conditions JSONB NOT NULL DEFAULT '{}',
    active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMP NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_rules_tenant ON routing_rules (tenant_id, priority DESC);

CREATE TABLE IF NOT EXISTS psp_credentials (
    id VARCHAR(36) PRIMARY KEY,
    tenant_id VARCHAR(36) NOT NULL,
    psp VARCHAR(32) NOT NULL,
    environment VARCHAR(16) NOT NULL,
    encrypted_blob TEXT NOT NULL,
    active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMP NOT NULL DEFAULT NOW(),
    UNIQUE (tenant_id, psp, environment)
);
`
