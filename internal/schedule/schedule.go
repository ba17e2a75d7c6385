// Package schedule layers recurring submissions on top of the executor's
// Submit contract. It owns no queue or store state of its own: each tick
// is just a call to executor.Executor.Submit, so a scheduled flow run is
// indistinguishable from one submitted directly.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// Scheduler recurringly submits flow runs on a cron schedule. It has no
// dependency on the executor package's types: callers pass a closure that
// captures their own *executor.Executor and flow name/input, so Add's
// signature stays agnostic of run-id types.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

// Config configures a Scheduler.
type Config struct {
	Logger *slog.Logger
}

// New creates a Scheduler. Call Start to begin firing entries.
func New(cfg Config) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:    cron.New(cron.WithParser(cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor))),
		logger:  logger,
		entries: make(map[string]cron.EntryID),
	}
}

// Add registers a recurring submission: every time cronExpr fires, submit
// is called with a background context and any error it returns is logged.
// Re-adding an existing name replaces its entry.
func (s *Scheduler) Add(name, cronExpr string, submit func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.entries[name]; ok {
		s.cron.Remove(id)
		delete(s.entries, name)
	}

	id, err := s.cron.AddFunc(cronExpr, func() {
		if err := submit(context.Background()); err != nil {
			s.logger.Error("scheduled submission failed", "schedule_name", name, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %q: invalid cron expression %q: %w", name, cronExpr, err)
	}

	s.entries[name] = id
	s.logger.Info("registered schedule", "schedule_name", name, "cron_expr", cronExpr)
	return nil
}

// Remove unregisters name, if present.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.entries[name]
	if !ok {
		return
	}
	s.cron.Remove(id)
	delete(s.entries, name)
}

// Start begins firing registered entries in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for any in-flight entry to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
