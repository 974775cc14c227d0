package notify

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// Pool is a bounded worker pool for outbound side effects (emails, merchant
// webhook deliveries). Submit never blocks the request path: when the queue
// is full the task is rejected and the rejection is counted and logged.
type Pool struct {
	tasks  chan func(context.Context)
	logger *zap.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc

	mu       sync.Mutex
	rejected int64
	closed   bool
}

var ErrPoolSaturated = errors.New("notify: worker pool saturated")

func NewPool(workers, queueSize int, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 256
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		tasks:  make(chan func(context.Context), queueSize),
		logger: logger,
		cancel: cancel,
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for task := range p.tasks {
				task(ctx)
			}
		}()
	}

	return p
}

// Submit enqueues a task, failing fast under back-pressure.
func (p *Pool) Submit(task func(context.Context)) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolSaturated
	}
	p.mu.Unlock()

	select {
	case p.tasks <- task:
		return nil
	default:
		p.mu.Lock()
		p.rejected++
		rejected := p.rejected
		p.mu.Unlock()
		p.logger.Warn("notification pool saturated, task dropped", zap.Int64("rejected_total", rejected))
		return ErrPoolSaturated
	}
}

// Rejected returns how many tasks were dropped under back-pressure.
func (p *Pool) Rejected() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rejected
}

// Close stops accepting work, lets queued tasks finish, then cancels the
// worker context.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	close(p.tasks)
	p.wg.Wait()
	p.cancel()
}
