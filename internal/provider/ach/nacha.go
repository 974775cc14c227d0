package ach

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const NachaName = "nacha"

// NachaAdapter queues entries for direct NACHA file origination through the
// sponsor bank. Entries are accepted immediately and settle on the ACH
// window, so Execute always reports a deferred ("processing") outcome; the
// final settled/returned state arrives later via the bank's return feed.
type NachaAdapter struct {
	companyID string

	mu      sync.Mutex
	pending []NachaEntry
}

// NachaEntry is one batch entry awaiting file generation.
type NachaEntry struct {
	TraceNumber   string
	TransferID    string
	Amount        int64
	Direction     Direction
	RoutingNumber string
	AccountToken  string
	HolderName    string
	CreatedAt     time.Time
}

func NewNachaAdapter(companyID string) *NachaAdapter {
	return &NachaAdapter{companyID: companyID}
}

func (a *NachaAdapter) Name() string { return NachaName }

func (a *NachaAdapter) Execute(ctx context.Context, req SettlementRequest) (SettlementResponse, error) {
	if err := ctx.Err(); err != nil {
		return SettlementResponse{}, err
	}
	if req.Currency != "USD" {
		return SettlementResponse{
			Success:         false,
			Status:          "failed",
			FailureCode:     "unsupported_currency",
			FailureMessage:  "nacha origination is USD only",
			FailureCategory: FailurePermanent,
		}, nil
	}

	entry := NachaEntry{
		TraceNumber:   fmt.Sprintf("%s-%s", a.companyID, req.IdempotencyKey),
		TransferID:    req.TransferID,
		Amount:        req.Amount,
		Direction:     req.Direction,
		RoutingNumber: req.RoutingNumber,
		AccountToken:  req.AccountToken,
		HolderName:    req.HolderName,
		CreatedAt:     time.Now(),
	}

	a.mu.Lock()
	// The idempotency key doubles as the trace number, so a replayed
	// request must not enqueue a second entry.
	for _, existing := range a.pending {
		if existing.TraceNumber == entry.TraceNumber {
			a.mu.Unlock()
			return a.accepted(entry), nil
		}
	}
	a.pending = append(a.pending, entry)
	a.mu.Unlock()

	return a.accepted(entry), nil
}

func (a *NachaAdapter) accepted(entry NachaEntry) SettlementResponse {
	eta := achBusinessDays(entry.CreatedAt, 2)
	return SettlementResponse{
		Success:               true,
		Status:                "processing",
		ProviderID:            entry.TraceNumber,
		EstimatedSettlementAt: &eta,
	}
}

// DrainBatch returns the entries queued since the last cut and clears the
// queue. The scheduler calls it once per scan when cutting a batch.
func (a *NachaAdapter) DrainBatch() []NachaEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	batch := a.pending
	a.pending = nil
	return batch
}
