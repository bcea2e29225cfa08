package runner

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/quartzbi/beacon/config"
	"github.com/quartzbi/beacon/errors"
	"github.com/quartzbi/beacon/logger"
	"github.com/quartzbi/beacon/report"
	"github.com/quartzbi/beacon/trigger"
)

// queueDepth bounds the firing backlog. A full queue drops the firing with
// a warning; the WORKING lease keeps a later tick safe to run.
const queueDepth = 1024

// Pool fans due firings out across workers. Each worker runs one schedule
// per firing to completion; failures are routed to the execution log by
// the machine and never stop sibling tasks.
type Pool struct {
	machine *Machine
	workers int
	queue   chan trigger.Firing
	limiter *rate.Limiter

	parentCtx context.Context
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	mu            sync.Mutex
	activeWorkers int
	processed     int
	startTime     time.Time

	log *zap.SugaredLogger
}

func NewPool(ctx context.Context, machine *Machine, cfg config.SchedulerConfig, log *zap.SugaredLogger) *Pool {
	poolCtx, cancel := context.WithCancel(ctx)

	// Rate-limit data plane submissions; zero config disables the limit.
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.DataPlaneRequestsPerMin > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.DataPlaneRequestsPerMin)/60.0), cfg.DataPlaneRequestsPerMin)
	}

	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}

	return &Pool{
		machine:   machine,
		workers:   workers,
		queue:     make(chan trigger.Firing, queueDepth),
		limiter:   limiter,
		parentCtx: ctx,
		ctx:       poolCtx,
		cancel:    cancel,
		log:       log.Named("pool"),
	}
}

// Start spawns the workers. Safe to call again after Stop.
func (p *Pool) Start() {
	p.mu.Lock()
	select {
	case <-p.ctx.Done():
		p.ctx, p.cancel = context.WithCancel(p.parentCtx)
	default:
	}
	p.startTime = time.Now()
	p.mu.Unlock()

	if warning := checkMemoryPressure(p.workers); warning != "" {
		p.log.Warnw("Memory pressure warning", "warning", warning, "workers", p.workers)
	}

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.log.Infow("Dispatch pool started", "workers", p.workers)
}

// Stop cancels the workers and waits for in-flight executions. WORKING
// leases of interrupted executions are left in place; the next process
// start recovers them through the stall path.
func (p *Pool) Stop() {
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.log.Infow("Dispatch pool stopped")
	case <-time.After(30 * time.Second):
		p.log.Warnw("Dispatch pool stop timed out, executions still draining")
	}
}

// Submit enqueues a due firing. It never blocks the trigger scan; when the
// backlog is full the firing is dropped with a warning.
func (p *Pool) Submit(firing trigger.Firing) {
	select {
	case p.queue <- firing:
	default:
		p.log.Warnw("Firing backlog full, dropping firing",
			logger.FieldScheduleID, firing.ScheduleID,
			logger.FieldExecutionID, firing.ExecutionID,
		)
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case firing := <-p.queue:
			if err := p.limiter.Wait(p.ctx); err != nil {
				return
			}
			p.runOne(id, firing)
		}
	}
}

// runOne executes a single firing, isolating its outcome.
func (p *Pool) runOne(workerID int, firing trigger.Firing) {
	p.mu.Lock()
	p.activeWorkers++
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.activeWorkers--
		p.processed++
		p.mu.Unlock()
	}()

	log := logger.ForExecution(p.log, firing.ScheduleID, firing.ExecutionID).With("worker_id", workerID)

	err := p.machine.Run(p.ctx, firing)
	switch {
	case err == nil:
		log.Debugw("Execution finished")
	case errors.Is(err, report.ErrPreviousWorking):
		// A live lease is a skip, not a failure
		log.Infow("Skipping firing, previous execution still working")
	default:
		log.Errorw("Execution ended in error", "error", err)
	}
}

// Stats reports pool and system usage for operator inspection.
type PoolStats struct {
	WorkersActive int     `json:"workers_active"`
	WorkersTotal  int     `json:"workers_total"`
	QueueDepth    int     `json:"queue_depth"`
	Processed     int     `json:"processed"`
	MemoryUsedGB  float64 `json:"memory_used_gb"`
	MemoryTotalGB float64 `json:"memory_total_gb"`
	MemoryPercent float64 `json:"memory_percent"`
}

func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	active := p.activeWorkers
	processed := p.processed
	p.mu.Unlock()

	stats := PoolStats{
		WorkersActive: active,
		WorkersTotal:  p.workers,
		QueueDepth:    len(p.queue),
		Processed:     processed,
	}

	total, available, err := memoryStats()
	if err == nil && total > 0 {
		stats.MemoryTotalGB = float64(total) / 1024 / 1024 / 1024
		stats.MemoryUsedGB = float64(total-available) / 1024 / 1024 / 1024
		stats.MemoryPercent = stats.MemoryUsedGB / stats.MemoryTotalGB * 100
	}
	return stats
}
