package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/loomworks/loom/internal/engine"
	"github.com/loomworks/loom/internal/loom"
	"github.com/loomworks/loom/internal/repository"
)

// ExecutionService runs stored workflows and records every attempt in
// the history log, whatever the outcome.
type ExecutionService struct {
	workflows *WorkflowService
	runner    *engine.Runner
	history   repository.HistoryRepository
}

func NewExecutionService(workflows *WorkflowService, runner *engine.Runner, history repository.HistoryRepository) *ExecutionService {
	return &ExecutionService{workflows: workflows, runner: runner, history: history}
}

// Execute loads a workflow, runs it, and appends an execution record.
// The run result is returned even when the run failed; the returned
// error covers lookup and compilation problems only.
func (s *ExecutionService) Execute(ctx context.Context, workflowID, userID string, input map[string]any) (*engine.RunResult, error) {
	rec, compiled, err := s.workflows.Compiled(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	// Run reports failures inside the result; the error return mirrors
	// it and is not propagated past the history write.
	result, _ := s.runner.Run(ctx, compiled, rec.Definition.WorkflowName, input)
	// The history write must survive a run that consumed the deadline.
	s.record(context.WithoutCancel(ctx), rec, userID, input, result)
	return result, nil
}

const streamBuffer = 64

// ExecuteStream is Execute with live progress: it returns a channel of
// the run's engine events (closed when the run finishes) and a buffered
// channel carrying the final RunResult. Events the consumer is too slow
// to take are dropped, not queued. Cancelling ctx cancels the run; the
// history write still happens.
func (s *ExecutionService) ExecuteStream(ctx context.Context, workflowID, userID string, input map[string]any) (<-chan engine.Event, <-chan *engine.RunResult, error) {
	rec, compiled, err := s.workflows.Compiled(ctx, workflowID)
	if err != nil {
		return nil, nil, err
	}

	runID := loom.GenerateID("run")
	subCtx, unsubscribe := context.WithCancel(context.WithoutCancel(ctx))
	raw := s.runner.Bus().Channel(subCtx, streamBuffer)

	events := make(chan engine.Event, streamBuffer)
	resultCh := make(chan *engine.RunResult, 1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		result, _ := s.runner.RunWithID(ctx, compiled, rec.Definition.WorkflowName, runID, input)
		s.record(context.WithoutCancel(ctx), rec, userID, input, result)
		resultCh <- result
	}()

	go func() {
		defer close(events)
		defer unsubscribe()
		for {
			select {
			case ev, ok := <-raw:
				if !ok {
					return
				}
				if ev.RunID != runID {
					continue
				}
				select {
				case events <- ev:
				default:
				}
			case <-done:
				// Events are published inline before Run returns, so
				// everything for this run is already buffered: drain
				// and stop.
				for {
					select {
					case ev, ok := <-raw:
						if !ok {
							return
						}
						if ev.RunID != runID {
							continue
						}
						select {
						case events <- ev:
						default:
						}
					default:
						return
					}
				}
			}
		}
	}()

	return events, resultCh, nil
}

// History returns the execution log for a workflow, newest first. The
// workflow must exist.
func (s *ExecutionService) History(ctx context.Context, workflowID string) ([]*loom.ExecutionRecord, error) {
	if _, err := s.workflows.Get(ctx, workflowID); err != nil {
		return nil, err
	}
	return s.history.ListByWorkflow(ctx, workflowID)
}

func (s *ExecutionService) record(ctx context.Context, rec *loom.WorkflowRecord, userID string, input map[string]any, result *engine.RunResult) {
	entry := &loom.ExecutionRecord{
		ID:         uuid.NewString(),
		WorkflowID: rec.ID,
		UserID:     userID,
		Input:      input,
		Output:     result.FinalOutput,
		Status:     result.Status,
		Error:      result.Error,
		ExecutedAt: time.Now(),
	}
	if err := s.history.Append(ctx, entry); err != nil {
		slog.Warn("append execution history failed", "workflow_id", rec.ID, "err", err)
	}
}
