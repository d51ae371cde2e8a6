package core

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// WorkerPool runs a fixed number of dispatch workers against the shared
// attempt queue. Workers sleep for the poll interval when the queue is
// drained and back off briefly after errors so a broken dependency does not
// turn into a hot loop. A single reclaim loop returns expired leases.
type WorkerPool struct {
	dispatcher   *DeliveryDispatcher
	logger       Logger
	size         int
	pollInterval time.Duration
	errorBackoff time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

func NewWorkerPool(config Config, dispatcher *DeliveryDispatcher, logger Logger) (*WorkerPool, error) {
	if dispatcher == nil {
		return nil, fmt.Errorf("core: delivery dispatcher is required")
	}
	size := config.WorkerPoolSize
	if size < 1 {
		size = DefaultConfig().WorkerPoolSize
	}
	pollInterval := config.PollInterval()
	if pollInterval <= 0 {
		pollInterval = DefaultConfig().PollInterval()
	}
	return &WorkerPool{
		dispatcher:   dispatcher,
		logger:       logger,
		size:         size,
		pollInterval: pollInterval,
		errorBackoff: pollInterval * 2,
	}, nil
}

// Start launches the workers and the reclaim loop. It returns immediately;
// the pool runs until Stop is called or ctx is cancelled.
func (p *WorkerPool) Start(ctx context.Context) error {
	if p == nil || p.dispatcher == nil {
		return fmt.Errorf("core: worker pool is not configured")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return fmt.Errorf("core: worker pool is already running")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true

	var wg sync.WaitGroup
	for i := 0; i < p.size; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			p.runWorker(runCtx, worker)
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.runReclaimer(runCtx)
	}()

	done := p.done
	go func() {
		wg.Wait()
		close(done)
	}()

	logDispatcher(p.logger, false, "worker pool started", map[string]any{
		"workers":       p.size,
		"poll_interval": p.pollInterval.String(),
	})
	return nil
}

// Stop cancels the workers and blocks until they exit.
func (p *WorkerPool) Stop(ctx context.Context) error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	cancel := p.cancel
	done := p.done
	p.running = false
	p.cancel = nil
	p.mu.Unlock()

	cancel()
	if ctx == nil {
		<-done
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("core: worker pool shutdown: %w", ctx.Err())
	}
}

func (p *WorkerPool) runWorker(ctx context.Context, worker int) {
	for {
		if ctx.Err() != nil {
			return
		}
		dispatched, err := p.dispatcher.DispatchNext(ctx)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return
			}
			logDispatcher(p.logger, true, "dispatch cycle failed", map[string]any{
				"worker": worker,
				"error":  err.Error(),
			})
			if waitWithContext(ctx, p.errorBackoff) != nil {
				return
			}
		case dispatched:
			// Queue still has work; claim again without sleeping.
		default:
			if waitWithContext(ctx, p.pollInterval) != nil {
				return
			}
		}
	}
}

func (p *WorkerPool) runReclaimer(ctx context.Context) {
	interval := p.dispatcher.config.LeaseTimeout() / 2
	if interval <= 0 {
		interval = DefaultConfig().LeaseTimeout() / 2
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.dispatcher.Reclaim(ctx); err != nil && ctx.Err() == nil {
				logDispatcher(p.logger, true, "lease reclaim failed", map[string]any{
					"error": err.Error(),
				})
			}
		}
	}
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
