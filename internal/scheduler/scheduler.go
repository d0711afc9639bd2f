// Package scheduler runs stored workflows on cron schedules.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/loomworks/loom/internal/loom"
	"github.com/loomworks/loom/internal/repository"
	"github.com/loomworks/loom/internal/services"
)

// scheduleTimeout bounds one scheduled run independently of the
// engine's own run deadline.
const scheduleTimeout = 30 * time.Minute

// Service wraps robfig/cron around the execution service. Each enabled
// schedule becomes one cron entry; entries map back to schedule ids so
// removal works.
type Service struct {
	cron      *cron.Cron
	schedules repository.ScheduleRepository
	exec      *services.ExecutionService

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

func New(schedules repository.ScheduleRepository, exec *services.ExecutionService) *Service {
	return &Service{
		cron:      cron.New(),
		schedules: schedules,
		exec:      exec,
		entries:   make(map[string]cron.EntryID),
	}
}

// Start registers all stored enabled schedules and starts the cron
// loop.
func (s *Service) Start(ctx context.Context) error {
	stored, err := s.schedules.List(ctx)
	if err != nil {
		slog.Warn("scheduler: load schedules failed", "err", err)
	} else {
		for _, rec := range stored {
			if !rec.Enabled {
				continue
			}
			if err := s.register(rec); err != nil {
				slog.Warn("scheduler: register schedule failed", "schedule_id", rec.ID, "err", err)
			}
		}
		slog.Info("scheduler: loaded schedules", "count", len(stored))
	}

	s.cron.Start()
	return nil
}

// Stop halts the cron loop and waits for in-flight jobs.
func (s *Service) Stop() {
	<-s.cron.Stop().Done()
	slog.Info("scheduler: stopped")
}

// Add validates the cron expression, stores the schedule, and registers
// it when enabled.
func (s *Service) Add(ctx context.Context, workflowID, cronExpr string, input map[string]any, enabled bool) (*loom.ScheduleRecord, error) {
	if _, err := ParseCronExpr(cronExpr, ""); err != nil {
		return nil, err
	}

	rec := &loom.ScheduleRecord{
		ID:         uuid.NewString(),
		WorkflowID: workflowID,
		CronExpr:   cronExpr,
		Input:      input,
		Enabled:    enabled,
		CreatedAt:  time.Now(),
	}
	if err := s.schedules.Create(ctx, rec); err != nil {
		return nil, err
	}
	if rec.Enabled {
		if err := s.register(rec); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// List returns all stored schedules.
func (s *Service) List(ctx context.Context) ([]*loom.ScheduleRecord, error) {
	return s.schedules.List(ctx)
}

// Remove deletes a schedule and unregisters its cron entry.
func (s *Service) Remove(ctx context.Context, id string) error {
	if err := s.schedules.Delete(ctx, id); err != nil {
		return err
	}
	s.mu.Lock()
	if entryID, ok := s.entries[id]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, id)
	}
	s.mu.Unlock()
	return nil
}

func (s *Service) register(rec *loom.ScheduleRecord) error {
	sched, err := ParseCronExpr(rec.CronExpr, "")
	if err != nil {
		return err
	}

	entryID := s.cron.Schedule(sched, cron.FuncJob(func() {
		s.runScheduled(rec)
	}))

	s.mu.Lock()
	s.entries[rec.ID] = entryID
	s.mu.Unlock()

	slog.Info("scheduler: registered", "schedule_id", rec.ID, "workflow_id", rec.WorkflowID, "cron", rec.CronExpr)
	return nil
}

func (s *Service) runScheduled(rec *loom.ScheduleRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), scheduleTimeout)
	defer cancel()

	slog.Info("scheduler: run", "schedule_id", rec.ID, "workflow_id", rec.WorkflowID)
	result, err := s.exec.Execute(ctx, rec.WorkflowID, "scheduler", rec.Input)
	if err != nil {
		slog.Error("scheduler: run failed", "schedule_id", rec.ID, "err", err)
		return
	}
	slog.Info("scheduler: run finished", "schedule_id", rec.ID, "status", result.Status)
}

// ParseCronExpr tries 6-field (with seconds) then standard 5-field
// parsing. A non-UTC timezone is applied via the CRON_TZ= prefix.
func ParseCronExpr(expr, timezone string) (cron.Schedule, error) {
	if timezone != "" && timezone != "UTC" {
		expr = "CRON_TZ=" + timezone + " " + expr
	}
	parser6 := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if sched, err := parser6.Parse(expr); err == nil {
		return sched, nil
	}
	parser5 := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return parser5.Parse(expr)
}
