package engine

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/loomworks/loom/internal/graph"
	"github.com/loomworks/loom/internal/loom"
)

// stubExecutor returns canned outputs per node id, with optional per-node
// latency and failures.
type stubExecutor struct {
	mu      sync.Mutex
	outputs map[string]map[string]any
	fail    map[string]error
	delay   time.Duration
	calls   []string
}

func (s *stubExecutor) Execute(ctx context.Context, node *loom.NodeDefinition, inputs map[string]any) (map[string]any, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mu.Lock()
	s.calls = append(s.calls, node.NodeID)
	s.mu.Unlock()
	if err := s.fail[node.NodeID]; err != nil {
		return nil, err
	}
	out, ok := s.outputs[node.NodeID]
	if !ok {
		return map[string]any{"result": "ok"}, nil
	}
	return out, nil
}

func (s *stubExecutor) called(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.calls {
		if c == id {
			return true
		}
	}
	return false
}

func compile(t *testing.T, wf *loom.WorkflowDefinition) *graph.Compiled {
	t.Helper()
	g, err := graph.Compile(wf, nil)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return g
}

func threeNodeDoc() *loom.WorkflowDefinition {
	return &loom.WorkflowDefinition{
		WorkflowName: "shout",
		GraphType:    loom.GraphSequential,
		Nodes: []loom.NodeDefinition{
			{NodeID: "A", Inputs: map[string]any{"text": "{{workflow.inputs.q}}"}},
			{NodeID: "B", Inputs: map[string]any{"text": "{{nodes.A.outputs.out}}"}},
			{NodeID: "C", Inputs: map[string]any{"text": "{{nodes.B.outputs.out}}"}},
		},
		Edges: []loom.EdgeDefinition{
			{ID: "e1", From: "A", To: "B"},
			{ID: "e2", From: "B", To: "C"},
		},
		EntryPoint: "A",
		ExitPoint:  "C",
	}
}

func TestRunner_LinearPipeline(t *testing.T) {
	exec := &stubExecutor{outputs: map[string]map[string]any{
		"A": {"out": "HELLO"},
		"B": {"out": "HELLO!"},
		"C": {"out": "HELLO!!"},
	}}
	r := NewRunner(exec, NewEventBus(), time.Minute)

	res, err := r.Run(context.Background(), compile(t, threeNodeDoc()), "shout",
		map[string]any{"q": "hello"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != loom.RunCompleted {
		t.Errorf("status: got %s", res.Status)
	}
	if res.FinalOutput != "HELLO!!" {
		t.Errorf("final output: got %v", res.FinalOutput)
	}
	if !reflect.DeepEqual(res.Order, []string{"A", "B", "C"}) {
		t.Errorf("completion order: got %v", res.Order)
	}
	if len(res.NodeOutputs) != 3 {
		t.Errorf("node outputs: got %v", res.NodeOutputs)
	}
}

func TestRunner_ThreadsResolvedInputs(t *testing.T) {
	var got sync.Map
	exec := &recordingExecutor{record: &got}
	r := NewRunner(exec, NewEventBus(), time.Minute)

	_, err := r.Run(context.Background(), compile(t, threeNodeDoc()), "shout",
		map[string]any{"q": "hello"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if v, _ := got.Load("A"); !reflect.DeepEqual(v, map[string]any{"text": "hello"}) {
		t.Errorf("A inputs: got %v", v)
	}
	if v, _ := got.Load("B"); !reflect.DeepEqual(v, map[string]any{"text": "out of A"}) {
		t.Errorf("B inputs: got %v", v)
	}
}

type recordingExecutor struct{ record *sync.Map }

func (r *recordingExecutor) Execute(_ context.Context, node *loom.NodeDefinition, inputs map[string]any) (map[string]any, error) {
	r.record.Store(node.NodeID, inputs)
	return map[string]any{"out": "out of " + node.NodeID}, nil
}

func branchDoc(condition string) *loom.WorkflowDefinition {
	return &loom.WorkflowDefinition{
		WorkflowName: "route",
		GraphType:    loom.GraphConditional,
		Nodes: []loom.NodeDefinition{
			{NodeID: "classify"},
			{NodeID: "B"},
			{NodeID: "C"},
		},
		ConditionalEdges: []loom.ConditionalEdge{
			{
				ID:        "route",
				From:      "classify",
				Condition: condition,
				Branches: []loom.Branch{
					{Case: true, To: "B"},
					{Case: false, To: "C"},
				},
			},
		},
		EntryPoint: "classify",
	}
}

func TestRunner_ConditionalBranch_TrueTakesB(t *testing.T) {
	exec := &stubExecutor{outputs: map[string]map[string]any{
		"classify": {"ok": true},
		"B":        {"result": "took B"},
	}}
	r := NewRunner(exec, NewEventBus(), time.Minute)

	res, err := r.Run(context.Background(),
		compile(t, branchDoc("{{nodes.classify.outputs.ok}}")), "route", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != loom.RunCompleted {
		t.Fatalf("status: got %s (%s)", res.Status, res.Error)
	}
	if !exec.called("B") || exec.called("C") {
		t.Errorf("expected only B invoked; calls=%v", exec.calls)
	}
	if _, ok := res.NodeOutputs["C"]; ok {
		t.Error("untaken branch must not appear in node outputs")
	}
	if res.FinalOutput != "took B" {
		t.Errorf("final output: got %v", res.FinalOutput)
	}
}

func TestRunner_ConditionalBranch_FalseTakesC(t *testing.T) {
	exec := &stubExecutor{outputs: map[string]map[string]any{
		"classify": {"ok": false},
		"C":        {"result": "took C"},
	}}
	r := NewRunner(exec, NewEventBus(), time.Minute)

	res, err := r.Run(context.Background(),
		compile(t, branchDoc("{{nodes.classify.outputs.ok}}")), "route", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !exec.called("C") || exec.called("B") {
		t.Errorf("expected only C invoked; calls=%v", exec.calls)
	}
	if res.FinalOutput != "took C" {
		t.Errorf("final output: got %v", res.FinalOutput)
	}
}

func TestRunner_ConditionExpression(t *testing.T) {
	// Conditions may combine references with expr operators.
	exec := &stubExecutor{outputs: map[string]map[string]any{
		"classify": {"score": 0.9},
		"B":        {"result": "high"},
	}}
	r := NewRunner(exec, NewEventBus(), time.Minute)

	res, err := r.Run(context.Background(),
		compile(t, branchDoc("{{nodes.classify.outputs.score}} > 0.5")), "route", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.FinalOutput != "high" {
		t.Errorf("final output: got %v", res.FinalOutput)
	}
}

func TestRunner_BranchResolutionError(t *testing.T) {
	exec := &stubExecutor{outputs: map[string]map[string]any{
		"classify": {"ok": "maybe"},
	}}
	r := NewRunner(exec, NewEventBus(), time.Minute)

	res, err := r.Run(context.Background(),
		compile(t, branchDoc("{{nodes.classify.outputs.ok}}")), "route", nil)
	if !errors.Is(err, ErrBranchResolution) {
		t.Fatalf("got %v, want ErrBranchResolution", err)
	}
	if res.Status != loom.RunFailed {
		t.Errorf("status: got %s", res.Status)
	}
	// The classify output is retained for diagnostics.
	if _, ok := res.NodeOutputs["classify"]; !ok {
		t.Error("expected classify output in failed result")
	}
}

func TestRunner_NodeFailureFailsRun(t *testing.T) {
	boom := fmt.Errorf("boom")
	exec := &stubExecutor{
		outputs: map[string]map[string]any{"A": {"out": "HELLO"}},
		fail:    map[string]error{"B": boom},
	}
	r := NewRunner(exec, NewEventBus(), time.Minute)

	res, err := r.Run(context.Background(), compile(t, threeNodeDoc()), "shout",
		map[string]any{"q": "hello"})
	var nodeErr *NodeError
	if !errors.As(err, &nodeErr) || nodeErr.NodeID != "B" {
		t.Fatalf("got %v, want NodeError for B", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("cause not preserved: %v", err)
	}
	if res.Status != loom.RunFailed {
		t.Errorf("status: got %s", res.Status)
	}
	if exec.called("C") {
		t.Error("C must not run after B failed")
	}
	if _, ok := res.NodeOutputs["A"]; !ok {
		t.Error("A's output should be retained for diagnostics")
	}
}

func TestRunner_Timeout(t *testing.T) {
	exec := &stubExecutor{
		delay:   50 * time.Millisecond,
		outputs: map[string]map[string]any{"A": {"out": "HELLO"}},
	}
	r := NewRunner(exec, NewEventBus(), 75*time.Millisecond)

	res, err := r.Run(context.Background(), compile(t, threeNodeDoc()), "shout",
		map[string]any{"q": "hello"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want deadline exceeded", err)
	}
	if res.Status != loom.RunTimedOut {
		t.Errorf("status: got %s", res.Status)
	}
	if _, ok := res.NodeOutputs["A"]; !ok {
		t.Error("completed outputs should survive a timeout")
	}
}

func TestRunner_GraphStalled(t *testing.T) {
	// D's only unconditional predecessor sits on the untaken branch, so
	// after classify->B the graph has no ready node and no terminal.
	wf := &loom.WorkflowDefinition{
		WorkflowName: "stall",
		Nodes: []loom.NodeDefinition{
			{NodeID: "classify"}, {NodeID: "B"}, {NodeID: "C"}, {NodeID: "D"},
		},
		Edges: []loom.EdgeDefinition{
			{ID: "e1", From: "C", To: "D"},
			{ID: "e2", From: "B", To: "D"},
		},
		ConditionalEdges: []loom.ConditionalEdge{
			{
				ID:        "route",
				From:      "classify",
				Condition: "{{nodes.classify.outputs.ok}}",
				Branches: []loom.Branch{
					{Case: true, To: "B"},
					{Case: false, To: "C"},
				},
			},
		},
		EntryPoint: "classify",
	}
	exec := &stubExecutor{outputs: map[string]map[string]any{
		"classify": {"ok": true},
	}}
	r := NewRunner(exec, NewEventBus(), time.Minute)

	res, err := r.Run(context.Background(), compile(t, wf), "stall", nil)
	if !errors.Is(err, ErrGraphStalled) {
		t.Fatalf("got %v, want ErrGraphStalled", err)
	}
	if res.Status != loom.RunFailed {
		t.Errorf("status: got %s", res.Status)
	}
}

func TestRunner_FanOutRunsIndependentNodes(t *testing.T) {
	wf := &loom.WorkflowDefinition{
		WorkflowName: "fan",
		Nodes: []loom.NodeDefinition{
			{NodeID: "a"}, {NodeID: "b"}, {NodeID: "c"}, {NodeID: "d"},
		},
		Edges: []loom.EdgeDefinition{
			{From: "a", To: "b"}, {From: "a", To: "c"},
			{From: "b", To: "d"}, {From: "c", To: "d"},
		},
		EntryPoint: "a",
		ExitPoint:  "d",
	}
	exec := &stubExecutor{outputs: map[string]map[string]any{
		"d": {"result": "joined"},
	}}
	r := NewRunner(exec, NewEventBus(), time.Minute)

	res, err := r.Run(context.Background(), compile(t, wf), "fan", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.FinalOutput != "joined" {
		t.Errorf("final output: got %v", res.FinalOutput)
	}
	if len(res.Order) != 4 || res.Order[0] != "a" || res.Order[3] != "d" {
		t.Errorf("order: got %v", res.Order)
	}
}

func TestRunner_PublishesLifecycleEvents(t *testing.T) {
	bus := NewEventBus()
	var mu sync.Mutex
	var types []EventType
	bus.Subscribe(func(e Event) {
		mu.Lock()
		types = append(types, e.Type)
		mu.Unlock()
	})

	exec := &stubExecutor{outputs: map[string]map[string]any{
		"A": {"out": "1"}, "B": {"out": "2"}, "C": {"out": "3"},
	}}
	r := NewRunner(exec, bus, time.Minute)
	if _, err := r.Run(context.Background(), compile(t, threeNodeDoc()), "shout",
		map[string]any{"q": "x"}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if types[0] != EventRunStarted || types[len(types)-1] != EventRunCompleted {
		t.Errorf("event envelope: got %v", types)
	}
	var started, completed int
	for _, tt := range types {
		switch tt {
		case EventNodeStarted:
			started++
		case EventNodeCompleted:
			completed++
		}
	}
	if started != 3 || completed != 3 {
		t.Errorf("node events: started=%d completed=%d", started, completed)
	}
}
