// Package card defines the uniform adapter contract for card payment
// service processors. One Adapter exists per PSP; callers select one
// through the Registry rather than switching on processor names.
package card

import "context"

type ChargeRequest struct {
	Amount         int64
	Currency       string
	Token          string
	IdempotencyKey string
	Description    string
}

type ChargeResult struct {
	Success        bool
	TransactionID  string
	FailureCode    string
	FailureMessage string
}

// Adapter executes charges against one processor. Credentials come from the
// vault per call; adapters must not hold tenant state.
type Adapter interface {
	Name() string
	Charge(ctx context.Context, credentials map[string]string, req ChargeRequest) (ChargeResult, error)
}
