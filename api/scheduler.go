/*
scheduler.go - In-process settlement trigger

PURPOSE:
  Periodically fires the settlement engine for each kind, taking the role
  of the external cron that triggered settlements in earlier deployments.

DESIGN:
  - Runs a background goroutine with a configurable check interval
  - Engine runs are idempotent, so firing repeatedly inside a period is
    harmless: the run resolves the same period and reports AlreadySettled
  - Disabled by default; production deployments that keep an external cron
    simply never start it

USAGE:
  scheduler := NewSettlementScheduler(engine)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: The HTTP trigger endpoints (same engine entry point)
*/
package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fleetpay/settlement-engine/metrics"
	"github.com/fleetpay/settlement-engine/settlement"
)

// SettlementScheduler fires settlement runs on a fixed interval.
type SettlementScheduler struct {
	Engine        *settlement.Engine
	CheckInterval time.Duration
	Kinds         []settlement.Kind

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewSettlementScheduler creates a scheduler covering both kinds.
func NewSettlementScheduler(engine *settlement.Engine) *SettlementScheduler {
	return &SettlementScheduler{
		Engine:        engine,
		CheckInterval: 1 * time.Hour,
		Kinds:         settlement.Kinds(),
		stop:          make(chan struct{}),
	}
}

// Start begins the scheduler.
func (ss *SettlementScheduler) Start() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.ticker != nil {
		return
	}

	ss.ticker = time.NewTicker(ss.CheckInterval)
	ss.wg.Add(1)
	go ss.run()

	slog.Info("settlement scheduler started", "interval", ss.CheckInterval)
}

// Stop stops the scheduler and waits for an in-flight check to finish.
func (ss *SettlementScheduler) Stop() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.ticker != nil {
		ss.ticker.Stop()
		close(ss.stop)
		ss.wg.Wait()
		slog.Info("settlement scheduler stopped")
	}
}

func (ss *SettlementScheduler) run() {
	defer ss.wg.Done()

	// Run immediately on start
	ss.checkAndProcess()

	for {
		select {
		case <-ss.ticker.C:
			ss.checkAndProcess()
		case <-ss.stop:
			return
		}
	}
}

func (ss *SettlementScheduler) checkAndProcess() {
	ctx := context.Background()

	for _, kind := range ss.Kinds {
		started := time.Now()
		res, err := ss.Engine.Run(ctx, kind, time.Now())
		if err != nil {
			metrics.ObserveRun(string(kind), "failed", 0, time.Since(started))
			slog.Error("scheduled settlement run failed", "kind", string(kind), "error", err)
			continue
		}

		metrics.ObserveRun(string(kind), string(res.Outcome), res.DriversSettled, time.Since(started))
		if res.Outcome == settlement.OutcomeCommitted {
			slog.Info("scheduled settlement committed",
				"kind", string(kind),
				"drivers", res.DriversSettled,
				"total", res.TotalAmount.String())
		}
	}
}

// RunNow triggers an immediate check (for testing/admin).
func (ss *SettlementScheduler) RunNow() {
	ss.checkAndProcess()
}
