package audit

import (
	"context"
	"log/slog"
	"sync"

	"github.com/opennotes-ai/opennotes-server/pkg/logger"
)

// DefaultPoolWorkers mirrors the fire-and-forget audit executor's fixed worker count.
const DefaultPoolWorkers = 2

// DefaultQueueSize bounds how many pending audit tasks can queue before Submit starts
// rejecting new work rather than blocking the request that produced it.
const DefaultQueueSize = 256

// Pool is a bounded goroutine pool for fire-and-forget work, generalizing the
// stopCh/WaitGroup graceful-shutdown idiom internal/jobs.Worker uses for its poll loop
// to a fixed set of workers draining a buffered task channel instead. Submit never
// blocks the caller: a full queue rejects the task immediately (reject-newest) rather
// than applying backpressure to the HTTP request that triggered it.
type Pool struct {
	tasks   chan func(context.Context)
	workers int
	stopCh  chan struct{}
	wg      sync.WaitGroup
	log     *slog.Logger
	started bool
	mu      sync.Mutex
}

// NewPool builds a Pool with the given worker count and queue capacity.
func NewPool(workers, queueSize int, log *slog.Logger) *Pool {
	if workers <= 0 {
		workers = DefaultPoolWorkers
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Pool{
		tasks:   make(chan func(context.Context), queueSize),
		workers: workers,
		stopCh:  make(chan struct{}),
		log:     log.With(logger.Scope("audit.pool")),
	}
}

// Start launches the worker goroutines. Safe to call once.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run()
	}
}

func (p *Pool) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			task(context.Background())
		}
	}
}

// Submit enqueues task for background execution, returning false if the queue is full.
// The rejected task is the caller's responsibility to account for (e.g. a metric).
func (p *Pool) Submit(task func(context.Context)) bool {
	select {
	case p.tasks <- task:
		return true
	default:
		return false
	}
}

// Stop signals workers to exit and waits for in-flight tasks to finish, up to ctx's
// deadline.
func (p *Pool) Stop(ctx context.Context) error {
	close(p.stopCh)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		p.log.Warn("audit pool stop timed out, workers may still be running")
		return ctx.Err()
	}
}
