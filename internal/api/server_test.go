package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/loomworks/loom/internal/engine"
	"github.com/loomworks/loom/internal/generate"
	"github.com/loomworks/loom/internal/graph"
	"github.com/loomworks/loom/internal/loom"
	"github.com/loomworks/loom/internal/provider"
	"github.com/loomworks/loom/internal/repository"
	"github.com/loomworks/loom/internal/scheduler"
	"github.com/loomworks/loom/internal/services"
	"github.com/loomworks/loom/internal/tools"
)

// staticExecutor returns fixed outputs per node id.
type staticExecutor struct {
	outputs map[string]map[string]any
	fail    map[string]bool
}

func (e *staticExecutor) Execute(_ context.Context, node *loom.NodeDefinition, _ map[string]any) (map[string]any, error) {
	if e.fail[node.NodeID] {
		return nil, errors.New("executor failure")
	}
	if out, ok := e.outputs[node.NodeID]; ok {
		return out, nil
	}
	return map[string]any{"result": "ok"}, nil
}

type testEnv struct {
	handler http.Handler
	exec    *staticExecutor
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	toolReg := tools.NewRegistry()
	toolReg.Register(tools.NewHTTPRequestTool())

	exec := &staticExecutor{
		outputs: map[string]map[string]any{},
		fail:    map[string]bool{},
	}
	workflows := services.NewWorkflowService(repository.NewMemoryWorkflows(), graph.NewCache(8), toolReg)
	runner := engine.NewRunner(exec, engine.NewEventBus(), 0)
	executions := services.NewExecutionService(workflows, runner, repository.NewMemoryHistory())
	sched := scheduler.New(repository.NewMemorySchedules(), executions)

	srv := NewServer(workflows, executions, sched, nil, toolReg)
	return &testEnv{handler: srv.Handler(), exec: exec}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func sampleDefinition() map[string]any {
	return map[string]any{
		"workflow_name": "greeting",
		"graph_type":    "sequential",
		"nodes": []map[string]any{
			{
				"node_id":    "greet",
				"agent_name": "Greeter",
				"inputs":     map[string]any{"name": "{{workflow.inputs.name}}"},
				"outputs":    map[string]any{"message": "the greeting"},
			},
		},
		"entry_point":     "greet",
		"workflow_inputs": map[string]any{"name": "who to greet"},
	}
}

func (e *testEnv) createWorkflow(t *testing.T) string {
	t.Helper()
	rr := e.do(t, "POST", "/api/workflows", map[string]any{
		"description": "greets people",
		"definition":  sampleDefinition(),
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rr.Code, rr.Body)
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.ID == "" {
		t.Fatal("no id in create response")
	}
	return resp.ID
}

func TestWorkflowLifecycle(t *testing.T) {
	env := newTestEnv(t)
	id := env.createWorkflow(t)

	rr := env.do(t, "GET", "/api/workflows/"+id, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get status = %d", rr.Code)
	}
	var rec loom.WorkflowRecord
	json.Unmarshal(rr.Body.Bytes(), &rec)
	if rec.Definition.WorkflowName != "greeting" {
		t.Errorf("record = %+v", rec)
	}

	rr = env.do(t, "GET", "/api/workflows", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list status = %d", rr.Code)
	}
	var list []loom.WorkflowRecord
	json.Unmarshal(rr.Body.Bytes(), &list)
	if len(list) != 1 {
		t.Fatalf("list len = %d", len(list))
	}

	rr = env.do(t, "DELETE", "/api/workflows/"+id, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rr.Code)
	}
	rr = env.do(t, "GET", "/api/workflows/"+id, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("get after delete = %d", rr.Code)
	}
}

func TestCreateWorkflowCompileError(t *testing.T) {
	env := newTestEnv(t)

	def := sampleDefinition()
	def["entry_point"] = "ghost"
	rr := env.do(t, "POST", "/api/workflows", map[string]any{"definition": def})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body)
	}
	var resp map[string]string
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp["error"] == "" {
		t.Error("error body missing")
	}
}

func TestExecuteWorkflow(t *testing.T) {
	env := newTestEnv(t)
	env.exec.outputs["greet"] = map[string]any{"message": "hello Ada"}
	id := env.createWorkflow(t)

	rr := env.do(t, "POST", "/api/workflows/"+id+"/execute", map[string]any{
		"input": map[string]any{"name": "Ada"},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("execute status = %d, body = %s", rr.Code, rr.Body)
	}
	var result engine.RunResult
	json.Unmarshal(rr.Body.Bytes(), &result)
	if result.Status != loom.RunCompleted || result.FinalOutput != "hello Ada" {
		t.Fatalf("result = %+v", result)
	}

	// The run shows up in the history.
	rr = env.do(t, "GET", "/api/workflows/"+id+"/history", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("history status = %d", rr.Code)
	}
	var entries []loom.ExecutionRecord
	json.Unmarshal(rr.Body.Bytes(), &entries)
	if len(entries) != 1 || entries[0].Status != loom.RunCompleted {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestExecuteFailureAnswers422(t *testing.T) {
	env := newTestEnv(t)
	env.exec.fail["greet"] = true
	id := env.createWorkflow(t)

	rr := env.do(t, "POST", "/api/workflows/"+id+"/execute", map[string]any{
		"input": map[string]any{"name": "Ada"},
	})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body)
	}
	var result engine.RunResult
	json.Unmarshal(rr.Body.Bytes(), &result)
	if result.Status != loom.RunFailed || result.Error == "" {
		t.Fatalf("result = %+v", result)
	}
}

func TestExecuteWorkflowStream(t *testing.T) {
	env := newTestEnv(t)
	env.exec.outputs["greet"] = map[string]any{"message": "hello Ada"}
	id := env.createWorkflow(t)

	rr := env.do(t, "POST", "/api/workflows/"+id+"/execute/stream", map[string]any{
		"input": map[string]any{"name": "Ada"},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	body := rr.Body.String()
	for _, frame := range []string{"event: run.started", "event: node.completed", "event: run.completed", "event: done"} {
		if !strings.Contains(body, frame) {
			t.Errorf("body missing %q:\n%s", frame, body)
		}
	}
	if !strings.Contains(body, "hello Ada") {
		t.Errorf("done frame should carry the final output:\n%s", body)
	}
}

func TestExecuteStreamUnknownWorkflow(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, "POST", "/api/workflows/missing/execute/stream", map[string]any{})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestExecuteUnknownWorkflow(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, "POST", "/api/workflows/missing/execute", map[string]any{})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestListTools(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, "GET", "/api/tools", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var list []map[string]any
	json.Unmarshal(rr.Body.Bytes(), &list)
	if len(list) != 1 || list[0]["name"] != "http_request" {
		t.Fatalf("tools = %+v", list)
	}
}

func TestScheduleLifecycle(t *testing.T) {
	env := newTestEnv(t)
	id := env.createWorkflow(t)

	rr := env.do(t, "POST", "/api/schedules", map[string]any{
		"workflow_id": id,
		"cron_expr":   "*/10 * * * *",
		"input":       map[string]any{"name": "cron"},
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create schedule status = %d, body = %s", rr.Code, rr.Body)
	}
	var rec loom.ScheduleRecord
	json.Unmarshal(rr.Body.Bytes(), &rec)
	if rec.ID == "" || !rec.Enabled {
		t.Fatalf("rec = %+v", rec)
	}

	rr = env.do(t, "GET", "/api/schedules", nil)
	var list []loom.ScheduleRecord
	json.Unmarshal(rr.Body.Bytes(), &list)
	if len(list) != 1 {
		t.Fatalf("list = %+v", list)
	}

	rr = env.do(t, "DELETE", "/api/schedules/"+rec.ID, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rr.Code)
	}
}

func TestScheduleRequiresExistingWorkflow(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, "POST", "/api/schedules", map[string]any{
		"workflow_id": "missing",
		"cron_expr":   "* * * * *",
	})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestScheduleRejectsBadCron(t *testing.T) {
	env := newTestEnv(t)
	id := env.createWorkflow(t)

	rr := env.do(t, "POST", "/api/schedules", map[string]any{
		"workflow_id": id,
		"cron_expr":   "whenever",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestGenerateEndpoint(t *testing.T) {
	doc := `{
		"workflow_name": "gen",
		"nodes": [{"node_id": "only", "agent_name": "A", "outputs": {"out": "o"}}],
		"entry_point": "only"
	}`
	providers := provider.NewRegistry()
	providers.Register(&scriptedGenProvider{responses: []string{"a plan", doc}})
	toolReg := tools.NewRegistry()
	gen := generate.New(providers, "test/model", toolReg)

	workflows := services.NewWorkflowService(repository.NewMemoryWorkflows(), graph.NewCache(8), toolReg)
	srv := NewServer(workflows, nil, nil, gen, toolReg)
	env := &testEnv{handler: srv.Handler()}

	rr := env.do(t, "POST", "/api/workflows/generate", map[string]any{
		"description": "do something",
		"save":        true,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body)
	}
	var resp loom.WorkflowRecord
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp.ID == "" || resp.Definition.WorkflowName != "gen" {
		t.Fatalf("resp = %+v", resp)
	}
}

type scriptedGenProvider struct{ responses []string }

func (s *scriptedGenProvider) Name() string { return "test" }

func (s *scriptedGenProvider) ChatCompletion(context.Context, *provider.ChatRequest) (*provider.ChatResponse, error) {
	if len(s.responses) == 0 {
		return nil, errors.New("no scripted response")
	}
	content := s.responses[0]
	s.responses = s.responses[1:]
	return &provider.ChatResponse{Content: content, FinishReason: "stop"}, nil
}
