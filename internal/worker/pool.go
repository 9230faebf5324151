package worker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Priya8975/userdb-provisioner/internal/domain"
)

// Pool runs a fixed number of goroutines that hand outcome records to the
// Recorder, off the request path.
type Pool struct {
	numWorkers int
	jobs       chan domain.ProvisionRecord
	recorder   *Recorder
	logger     *slog.Logger
	wg         sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewPool creates a worker pool with the given number of workers.
func NewPool(numWorkers int, recorder *Recorder, logger *slog.Logger) *Pool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &Pool{
		numWorkers: numWorkers,
		jobs:       make(chan domain.ProvisionRecord, numWorkers*64),
		recorder:   recorder,
		logger:     logger,
	}
}

// Start launches all worker goroutines. They read from the jobs channel
// until it is closed or the context is cancelled.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	p.logger.Info("recorder pool started", "num_workers", p.numWorkers)
}

// Submit queues a record without blocking. It reports false when the
// record was dropped because the buffer is full or the pool is stopped.
func (p *Pool) Submit(rec domain.ProvisionRecord) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return false
	}

	select {
	case p.jobs <- rec:
		return true
	default:
		p.logger.Warn("recorder queue full, dropping outcome record",
			"id", rec.ID,
			"identity", rec.Identity,
			"outcome", rec.Outcome,
		)
		return false
	}
}

// Stop closes the jobs channel and waits for queued records to be written.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("recorder pool stopped")
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()

	for rec := range p.jobs {
		select {
		case <-ctx.Done():
			return
		default:
			p.recorder.Record(ctx, rec)
		}
	}
}
