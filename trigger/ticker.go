package trigger

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Dispatcher receives due firings from the ticker. The dispatch loop
// implements this; it must not block the scan for longer than a tick.
type Dispatcher interface {
	Submit(f Firing)
}

// Ticker periodically scans for due schedules and hands them to the
// dispatcher. The scan interval must stay under a minute so no boundary
// is skipped.
type Ticker struct {
	trigger    *Trigger
	dispatcher Dispatcher
	interval   time.Duration
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	logger     *zap.SugaredLogger

	mu              sync.Mutex
	lastTickAt      time.Time
	ticksSinceStart int64
}

// TickerConfig contains configuration for the scan loop
type TickerConfig struct {
	Interval time.Duration // How often to scan for due schedules
}

// DefaultTickerConfig returns sensible defaults
func DefaultTickerConfig() TickerConfig {
	return TickerConfig{
		Interval: 20 * time.Second,
	}
}

// NewTicker creates a ticker with a parent context
func NewTicker(ctx context.Context, trigger *Trigger, dispatcher Dispatcher, cfg TickerConfig, log *zap.SugaredLogger) *Ticker {
	tickerCtx, cancel := context.WithCancel(ctx)
	return &Ticker{
		trigger:    trigger,
		dispatcher: dispatcher,
		interval:   cfg.Interval,
		ctx:        tickerCtx,
		cancel:     cancel,
		logger:     log,
	}
}

// Start begins the scan loop
func (t *Ticker) Start() {
	t.wg.Add(1)
	go t.run()
	t.logger.Infow("Schedule ticker started", "interval", t.interval)
}

// Stop gracefully stops the scan loop
func (t *Ticker) Stop() {
	t.cancel()
	t.wg.Wait()
	t.logger.Infow("Schedule ticker stopped")
}

func (t *Ticker) run() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case tickTime := <-ticker.C:
			t.mu.Lock()
			t.lastTickAt = tickTime
			t.ticksSinceStart++
			t.mu.Unlock()

			if err := t.scan(tickTime); err != nil {
				t.logger.Warnw("Schedule scan error", "error", err)
			}
		}
	}
}

func (t *Ticker) scan(now time.Time) error {
	firings, err := t.trigger.Due(t.ctx, now)
	if err != nil {
		return err
	}
	if len(firings) == 0 {
		return nil
	}

	t.logger.Infow("Schedules due", "count", len(firings))
	for _, firing := range firings {
		select {
		case <-t.ctx.Done():
			return t.ctx.Err()
		default:
		}
		t.dispatcher.Submit(firing)
	}
	return nil
}

// Stats returns ticker statistics
func (t *Ticker) Stats() (lastTickAt time.Time, ticks int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastTickAt, t.ticksSinceStart
}
