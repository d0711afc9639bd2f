// Package engine drives one run of a compiled workflow graph to
// completion: it dispatches ready nodes (concurrently when independent),
// resolves node inputs, evaluates conditional branches, and aggregates
// the terminal result under a global deadline.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/loomworks/loom/internal/graph"
	"github.com/loomworks/loom/internal/loom"
	"github.com/loomworks/loom/internal/resolve"
)

// DefaultRunTimeout bounds a whole run's wall-clock time.
const DefaultRunTimeout = 10 * time.Minute

type Runner struct {
	executor Executor
	bus      *EventBus
	timeout  time.Duration
}

// NewRunner creates a Runner that executes nodes with executor and
// publishes progress on bus. A non-positive timeout falls back to
// DefaultRunTimeout.
func NewRunner(executor Executor, bus *EventBus, timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = DefaultRunTimeout
	}
	if bus == nil {
		bus = NewEventBus()
	}
	return &Runner{executor: executor, bus: bus, timeout: timeout}
}

// Bus returns the event bus this runner publishes on.
func (r *Runner) Bus() *EventBus { return r.bus }

// Run executes one run of g against inputs. The returned RunResult is
// non-nil even on failure and carries the outputs accumulated so far for
// diagnostics.
func (r *Runner) Run(ctx context.Context, g *graph.Compiled, workflowName string, inputs map[string]any) (*RunResult, error) {
	return r.RunWithID(ctx, g, workflowName, loom.GenerateID("run"), inputs)
}

// RunWithID is Run with a caller-chosen run id, so event consumers that
// subscribe before the run starts can match its events.
func (r *Runner) RunWithID(ctx context.Context, g *graph.Compiled, workflowName, runID string, inputs map[string]any) (*RunResult, error) {
	res := &RunResult{
		RunID:       runID,
		Status:      loom.RunPending,
		NodeOutputs: map[string]map[string]any{},
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	st := newRunState(inputs)
	r.publish(res.RunID, workflowName, "", EventRunStarted, map[string]any{"inputs": inputs})

	scheduled := map[string]bool{g.Entry(): true}
	ready := []string{g.Entry()}

	for len(ready) > 0 {
		res.Status = loom.RunRunning

		if ctx.Err() != nil {
			return r.finish(res, st, g, workflowName, ctx.Err())
		}

		// Every node in the ready set is independent of the others by
		// construction, so the whole round can run in parallel.
		round := ready
		ready = nil
		eg, egCtx := errgroup.WithContext(ctx)
		for _, id := range round {
			eg.Go(func() error {
				return r.runNode(egCtx, g, st, res.RunID, workflowName, id)
			})
		}
		if err := eg.Wait(); err != nil {
			// A node failure that races the global deadline is reported
			// as the timeout, not the induced cancellation error.
			if ctx.Err() != nil {
				err = fmt.Errorf("%v: %w", err, ctx.Err())
			}
			return r.finish(res, st, g, workflowName, err)
		}

		// Branch decisions happen after the round so every condition sees
		// its source node's recorded output.
		for _, id := range round {
			for _, rule := range g.Rules(id) {
				value, err := evaluateCondition(rule.Condition, st)
				if err != nil {
					return r.finish(res, st, g, workflowName, fmt.Errorf("conditional edge %q: %w", rule.ID, err))
				}
				to, err := matchBranch(rule, value)
				if err != nil {
					return r.finish(res, st, g, workflowName, err)
				}
				st.markSelected(to)
			}
		}

		for _, id := range g.NodeIDs() {
			if scheduled[id] || st.completed(id) {
				continue
			}
			if r.isReady(g, st, id) {
				scheduled[id] = true
				ready = append(ready, id)
			}
		}
	}

	return r.finish(res, st, g, workflowName, nil)
}

// isReady applies the readiness policy: all unconditional predecessors
// completed, and conditional branch targets additionally selected by a
// completed predecessor's branch decision. A node with no unconditional
// predecessors is only reachable through a branch decision.
func (r *Runner) isReady(g *graph.Compiled, st *runState, id string) bool {
	selected := st.isSelected(id)
	if g.IsConditionalTarget(id) && !selected {
		return false
	}
	preds := g.Predecessors(id)
	if len(preds) == 0 {
		return selected
	}
	for _, p := range preds {
		if !st.completed(p) {
			return false
		}
	}
	return true
}

func (r *Runner) runNode(ctx context.Context, g *graph.Compiled, st *runState, runID, workflowName, id string) error {
	node := g.Node(id)

	in, err := resolve.Inputs(node.Inputs, st.inputs, st.snapshot())
	if err != nil {
		err = fmt.Errorf("resolve inputs for node %q: %w", id, err)
		r.publish(runID, workflowName, id, EventNodeError, map[string]any{"error": err.Error()})
		return err
	}

	r.publish(runID, workflowName, id, EventNodeStarted, map[string]any{"inputs": in})

	out, err := r.executor.Execute(ctx, node, in)
	if err != nil {
		r.publish(runID, workflowName, id, EventNodeError, map[string]any{"error": err.Error()})
		return &NodeError{NodeID: id, Err: err}
	}

	st.complete(id, out)
	r.publish(runID, workflowName, id, EventNodeCompleted, map[string]any{"outputs": out})
	return nil
}

// finish resolves the run's terminal status, copies the accumulated
// outputs into the result, and publishes run.completed.
func (r *Runner) finish(res *RunResult, st *runState, g *graph.Compiled, workflowName string, err error) (*RunResult, error) {
	res.NodeOutputs = st.snapshot()
	res.Order = st.completionOrder()

	switch {
	case err == nil:
		if terminal, ok := reachedTerminal(g, st); ok {
			res.Status = loom.RunCompleted
			res.FinalOutput = finalOutput(st, terminal)
		} else {
			err = fmt.Errorf("%w: completed %d of %d nodes", ErrGraphStalled, len(res.Order), len(g.NodeIDs()))
			res.Status = loom.RunFailed
			res.Error = err.Error()
		}
	case errors.Is(err, context.DeadlineExceeded):
		res.Status = loom.RunTimedOut
		res.Error = err.Error()
	default:
		res.Status = loom.RunFailed
		res.Error = err.Error()
	}

	r.publish(res.RunID, workflowName, "", EventRunCompleted, map[string]any{"status": res.Status})
	return res, err
}

// reachedTerminal returns the terminal node that supplies the final
// result: the exit point if it completed, else the last-completed
// terminal on the actually-taken path.
func reachedTerminal(g *graph.Compiled, st *runState) (string, bool) {
	if exit := g.ExitPoint(); exit != "" && st.completed(exit) && g.IsTerminal(exit) {
		return exit, true
	}
	order := st.completionOrder()
	for i := len(order) - 1; i >= 0; i-- {
		if g.IsTerminal(order[i]) {
			return order[i], true
		}
	}
	return "", false
}

// finalOutput unwraps a single-entry terminal output map to its value.
func finalOutput(st *runState, terminal string) any {
	out, _ := st.output(terminal)
	if len(out) == 1 {
		for _, v := range out {
			return v
		}
	}
	return out
}

func (r *Runner) publish(runID, workflow, nodeID string, typ EventType, payload any) {
	r.bus.Publish(Event{
		ID:        loom.GenerateID("ev"),
		RunID:     runID,
		Workflow:  workflow,
		NodeID:    nodeID,
		Type:      typ,
		Payload:   payload,
		Timestamp: time.Now(),
	})
}
