package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/loomworks/loom/internal/loom"
)

// Executor performs a node's actual work. The engine treats it as a
// black box: given the node definition and its resolved inputs, it
// returns an output mapping or fails with an opaque error. Retry policy,
// if any, lives behind this boundary.
type Executor interface {
	Execute(ctx context.Context, node *loom.NodeDefinition, inputs map[string]any) (map[string]any, error)
}

// ErrBranchResolution is returned when no declared case matches an
// evaluated condition value.
var ErrBranchResolution = errors.New("no branch case matches condition value")

// ErrGraphStalled is returned when no ready node remains but no terminal
// node has completed. It indicates branch-dependent unreachability that
// compilation cannot see.
var ErrGraphStalled = errors.New("graph stalled before reaching a terminal node")

// NodeError wraps an executor failure with the failing node's id.
type NodeError struct {
	NodeID string
	Err    error
}

func (e *NodeError) Error() string { return fmt.Sprintf("node %q: %v", e.NodeID, e.Err) }
func (e *NodeError) Unwrap() error { return e.Err }

// RunResult is the outcome of one run. NodeOutputs holds an entry for
// every node that completed (and only those), in completion order per
// Order; on failure or timeout it carries whatever completed before the
// run ended.
type RunResult struct {
	RunID       string                    `json:"run_id"`
	Status      loom.RunStatus            `json:"status"`
	NodeOutputs map[string]map[string]any `json:"node_outputs"`
	Order       []string                  `json:"order"`
	FinalOutput any                       `json:"final_output,omitempty"`
	Error       string                    `json:"error,omitempty"`
}

type EventType string

const (
	EventRunStarted    EventType = "run.started"
	EventRunCompleted  EventType = "run.completed"
	EventNodeStarted   EventType = "node.started"
	EventNodeCompleted EventType = "node.completed"
	EventNodeError     EventType = "node.error"
	EventModelRequest  EventType = "model.request"
	EventModelResponse EventType = "model.response"
	EventToolCall      EventType = "tool.call"
	EventToolResult    EventType = "tool.result"
)

type Event struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	Workflow  string    `json:"workflow"`
	NodeID    string    `json:"node_id,omitempty"`
	Type      EventType `json:"type"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
