package ach

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nachaRequest(transferID, idemKey string) SettlementRequest {
	return SettlementRequest{
		TransferID:     transferID,
		IdempotencyKey: idemKey,
		Amount:         10_000,
		Currency:       "USD",
		Direction:      Debit,
		HolderName:     "Ada Lovelace",
		RoutingNumber:  "021000021",
		AccountToken:   "tok_acct_1",
	}
}

func TestNachaExecuteQueuesEntry(t *testing.T) {
	adapter := NewNachaAdapter("PAYEEZ")

	resp, err := adapter.Execute(context.Background(), nachaRequest("tr-1", "tr-1_1"))
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Equal(t, "processing", resp.Status)
	assert.Equal(t, "PAYEEZ-tr-1_1", resp.ProviderID)
	require.NotNil(t, resp.EstimatedSettlementAt)

	batch := adapter.DrainBatch()
	require.Len(t, batch, 1)
	assert.Equal(t, "tr-1", batch[0].TransferID)
	assert.Equal(t, "PAYEEZ-tr-1_1", batch[0].TraceNumber)
}

func TestNachaExecuteReplayDoesNotDuplicateEntry(t *testing.T) {
	adapter := NewNachaAdapter("PAYEEZ")
	req := nachaRequest("tr-1", "tr-1_1")

	first, err := adapter.Execute(context.Background(), req)
	require.NoError(t, err)
	replay, err := adapter.Execute(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.ProviderID, replay.ProviderID)
	assert.Len(t, adapter.DrainBatch(), 1)

	// A new attempt with a fresh key queues a second entry.
	_, err = adapter.Execute(context.Background(), nachaRequest("tr-1", "tr-1_2"))
	require.NoError(t, err)
	assert.Len(t, adapter.DrainBatch(), 1)
}

func TestNachaExecuteRejectsNonUSD(t *testing.T) {
	adapter := NewNachaAdapter("PAYEEZ")
	req := nachaRequest("tr-1", "tr-1_1")
	req.Currency = "EUR"

	resp, err := adapter.Execute(context.Background(), req)
	require.NoError(t, err)

	assert.False(t, resp.Success)
	assert.Equal(t, "unsupported_currency", resp.FailureCode)
	assert.Equal(t, FailurePermanent, resp.FailureCategory)
	assert.Empty(t, adapter.DrainBatch())
}

func TestNachaDrainBatchClearsQueue(t *testing.T) {
	adapter := NewNachaAdapter("PAYEEZ")

	for _, id := range []string{"tr-1", "tr-2", "tr-3"} {
		_, err := adapter.Execute(context.Background(), nachaRequest(id, id+"_1"))
		require.NoError(t, err)
	}

	assert.Len(t, adapter.DrainBatch(), 3)
	assert.Empty(t, adapter.DrainBatch())
}
