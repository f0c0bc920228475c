package store

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Retention prunes old request records on a cron schedule.
type Retention struct {
	store    *Store
	schedule string
	window   time.Duration
	logger   *log.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewRetention creates a retention job deleting records older than
// days, fired per the standard 5-field cron schedule. days <= 0
// disables pruning entirely.
func NewRetention(s *Store, schedule string, days int, logger *log.Logger) *Retention {
	return &Retention{
		store:    s,
		schedule: schedule,
		window:   time.Duration(days) * 24 * time.Hour,
		logger:   logger,
		cron:     cron.New(),
	}
}

// Start schedules the pruning job. A zero retention window is a no-op.
func (r *Retention) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.window <= 0 {
		r.logger.Println("request record retention disabled")
		return nil
	}
	if r.running {
		return fmt.Errorf("retention already running")
	}

	if _, err := cron.ParseStandard(r.schedule); err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", r.schedule, err)
	}
	if _, err := r.cron.AddFunc(r.schedule, r.runPrune); err != nil {
		return fmt.Errorf("failed to schedule retention: %w", err)
	}

	r.cron.Start()
	r.running = true
	r.logger.Printf("retention scheduled (%s, keep %s)", r.schedule, r.window)
	return nil
}

func (r *Retention) runPrune() {
	deleted, err := r.store.Prune(time.Now().Add(-r.window))
	if err != nil {
		r.logger.Printf("scheduled prune failed: %v", err)
		return
	}
	if deleted > 0 {
		r.logger.Printf("pruned %d request records", deleted)
	}
}

// Stop halts the schedule and waits for a running prune to finish.
func (r *Retention) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}
	<-r.cron.Stop().Done()
	r.running = false
	r.logger.Println("retention stopped")
}
