package notify

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPoolRunsSubmittedTasks(t *testing.T) {
	pool := NewPool(2, 8, zap.NewNop())

	var mu sync.Mutex
	ran := 0
	for i := 0; i < 8; i++ {
		err := pool.Submit(func(ctx context.Context) {
			mu.Lock()
			ran++
			mu.Unlock()
		})
		require.NoError(t, err)
	}

	pool.Close()
	assert.Equal(t, 8, ran)
	assert.Equal(t, int64(0), pool.Rejected())
}

func TestPoolRejectsWhenSaturated(t *testing.T) {
	pool := NewPool(1, 1, zap.NewNop())
	defer pool.Close()

	block := make(chan struct{})
	started := make(chan struct{})

	// Occupy the single worker.
	require.NoError(t, pool.Submit(func(ctx context.Context) {
		close(started)
		<-block
	}))
	<-started

	// Fill the queue.
	require.NoError(t, pool.Submit(func(ctx context.Context) {}))

	// Queue is full: Submit fails fast instead of blocking.
	err := pool.Submit(func(ctx context.Context) {})
	assert.ErrorIs(t, err, ErrPoolSaturated)
	assert.Equal(t, int64(1), pool.Rejected())

	close(block)
}

func TestPoolRejectsAfterClose(t *testing.T) {
	pool := NewPool(1, 4, zap.NewNop())
	pool.Close()

	err := pool.Submit(func(ctx context.Context) {})
	assert.ErrorIs(t, err, ErrPoolSaturated)
}
