/*
scheduler.go - Automated totals sweep scheduler

PURPOSE:
  Periodically runs a repair sweep over every driver so that cached totals
  drifting from the delivery history (missed events, crashes mid-update,
  manual edits) converge without operator action.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Each pass is a full fix sweep: validate every driver, repair drift
  - Records sweep runs for audit and UI display
  - A failed pass is recorded and retried on the next tick

CONFIGURATION:
  - CheckInterval: How often to sweep (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewSweepScheduler(handler.Engine, store)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: FixAll endpoint (manual sweep)
  - earnings/reconciler.go: sweep implementation
*/
package api

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/warp/earnings-engine/earnings"
)

// SweepScheduler drives periodic full fix sweeps.
type SweepScheduler struct {
	Engine        *earnings.Reconciler
	Runs          earnings.SweepRunStore
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewSweepScheduler creates a new scheduler.
func NewSweepScheduler(engine *earnings.Reconciler, runs earnings.SweepRunStore) *SweepScheduler {
	return &SweepScheduler{
		Engine:        engine,
		Runs:          runs,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (ss *SweepScheduler) Start() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if !ss.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}

	ss.ticker = time.NewTicker(ss.CheckInterval)
	ss.wg.Add(1)

	go ss.run()

	log.Printf("[Scheduler] Started with check interval: %v", ss.CheckInterval)
}

// Stop stops the scheduler.
func (ss *SweepScheduler) Stop() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.ticker != nil {
		ss.ticker.Stop()
		close(ss.stop)
		ss.wg.Wait()
		log.Println("[Scheduler] Stopped")
	}
}

func (ss *SweepScheduler) run() {
	defer ss.wg.Done()

	// Run immediately on start
	ss.runSweep()

	for {
		select {
		case <-ss.ticker.C:
			ss.runSweep()
		case <-ss.stop:
			return
		}
	}
}

func (ss *SweepScheduler) runSweep() {
	ctx := context.Background()
	runID := fmt.Sprintf("run-%d", time.Now().UnixNano())
	startTime := time.Now()

	log.Printf("[Scheduler] Starting totals sweep at %v", startTime)

	// Create run record (running)
	run := earnings.SweepRun{
		ID:        runID,
		Mode:      earnings.SweepFix,
		Status:    earnings.SweepRunning,
		StartedAt: startTime,
	}
	if err := ss.Runs.SaveSweepRun(ctx, run); err != nil {
		log.Printf("[Scheduler] Error saving run record: %v", err)
		return
	}

	report, err := ss.Engine.FixAll(ctx)
	if err != nil {
		finished := time.Now()
		run.Status = earnings.SweepFailed
		run.FinishedAt = &finished
		run.Error = err.Error()
		if saveErr := ss.Runs.SaveSweepRun(ctx, run); saveErr != nil {
			log.Printf("[Scheduler] Error updating run record: %v", saveErr)
		}
		log.Printf("[Scheduler] Sweep failed: %v", err)
		return
	}

	// Update run record (completed)
	if err := ss.Runs.SaveSweepRun(ctx, report.AsRun(runID)); err != nil {
		log.Printf("[Scheduler] Error updating run record: %v", err)
	}

	log.Printf("[Scheduler] Sweep completed: %d checked, %d valid, %d fixed, %d failed",
		report.DriversChecked, report.DriversValid, report.DriversFixed, len(report.Failures))
}

// RunNow triggers an immediate sweep (for testing/admin).
func (ss *SweepScheduler) RunNow() {
	ss.runSweep()
}

// GetNextRunTime returns when the next scheduled sweep will occur.
func (ss *SweepScheduler) GetNextRunTime() time.Time {
	return time.Now().Add(ss.CheckInterval)
}
