// Package ach defines the uniform adapter contract for ACH settlement
// rails. The rail set is closed: stripe_ach, moov, paypal_ach and nacha,
// each registered once in the Registry.
package ach

import (
	"context"
	"time"
)

type Direction string

const (
	Debit  Direction = "debit"
	Credit Direction = "credit"
)

// Mandate carries the authorization evidence a recurring debit must attach.
type Mandate struct {
	ID                string
	AuthorizationText string
	AcceptedAt        time.Time
	IPAddress         string
}

// SettlementRequest is the canonical request every rail adapter receives.
type SettlementRequest struct {
	TransferID     string
	IdempotencyKey string
	Amount         int64
	Currency       string
	Direction      Direction
	HolderName     string
	RoutingNumber  string
	AccountToken   string
	AccountType    string
	Description    string
	Mandate        *Mandate
	Metadata       map[string]string
}

type FailureCategory string

const (
	FailureTransient FailureCategory = "transient"
	FailurePermanent FailureCategory = "permanent"
)

// SettlementResponse is the normalized outcome of one provider execution.
type SettlementResponse struct {
	Success               bool
	Status                string
	ProviderID            string
	EstimatedSettlementAt *time.Time
	FailureCode           string
	FailureMessage        string
	FailureCategory       FailureCategory
	ReturnCode            string
	ReturnReason          string
	RawResponse           string
}

// Adapter executes a settlement against one rail. Implementations must
// honor ctx deadlines; a deadline expiry is reported as an error, never as
// a synthesized success or failure response.
type Adapter interface {
	Name() string
	Execute(ctx context.Context, req SettlementRequest) (SettlementResponse, error)
}
