package loom

// GraphType hints at the overall shape of a workflow. It is advisory:
// the engine walks declared edges uniformly regardless of the value.
type GraphType string

const (
	GraphSequential  GraphType = "sequential"
	GraphConditional GraphType = "conditional"
)

// WorkflowDefinition is the declarative, persisted description of a
// workflow: a directed graph of agent nodes with unconditional dependency
// edges and run-time conditional branches. It is the wire and storage
// format and round-trips exactly through JSON.
type WorkflowDefinition struct {
	WorkflowName     string            `json:"workflow_name"`
	Description      string            `json:"description,omitempty"`
	GraphType        GraphType         `json:"graph_type,omitempty"`
	Nodes            []NodeDefinition  `json:"nodes"`
	Edges            []EdgeDefinition  `json:"edges"`
	ConditionalEdges []ConditionalEdge `json:"conditional_edges,omitempty"`
	EntryPoint       string            `json:"entry_point"`
	ExitPoint        string            `json:"exit_point,omitempty"`
	WorkflowInputs   map[string]string `json:"workflow_inputs,omitempty"`
	WorkflowOutputs  map[string]string `json:"workflow_outputs,omitempty"`
}

// NodeDefinition is one unit of work. Inputs values are either literals
// or reference expressions ({{workflow.inputs.x}} / {{nodes.a.outputs.y}});
// Outputs documents the shape the executor is expected to return and is
// not enforced by the engine.
type NodeDefinition struct {
	NodeID       string            `json:"node_id"`
	AgentName    string            `json:"agent_name,omitempty"`
	SystemPrompt string            `json:"agent_system_prompt,omitempty"`
	Model        string            `json:"model,omitempty"`
	Tools        []string          `json:"tools,omitempty"`
	Inputs       map[string]any    `json:"inputs,omitempty"`
	Outputs      map[string]string `json:"outputs,omitempty"`
}

// EdgeDefinition is an unconditional dependency edge: To runs only after
// From has completed.
type EdgeDefinition struct {
	ID   string `json:"id,omitempty"`
	From string `json:"from"`
	To   string `json:"to"`
}

// ConditionalEdge selects one successor of From at run time. Condition is
// evaluated after From completes and compared against each branch's Case;
// the first declared match is taken.
type ConditionalEdge struct {
	ID        string   `json:"id,omitempty"`
	From      string   `json:"from"`
	Condition string   `json:"condition"`
	Branches  []Branch `json:"branches"`
}

// Branch is one arm of a conditional edge. Case is a tagged value
// (bool, number, or string as declared in JSON) and matching is
// type-strict.
type Branch struct {
	Case        any    `json:"case"`
	To          string `json:"to"`
	Description string `json:"description,omitempty"`
}

// Node returns the node with the given id, or nil.
func (w *WorkflowDefinition) Node(id string) *NodeDefinition {
	for i := range w.Nodes {
		if w.Nodes[i].NodeID == id {
			return &w.Nodes[i]
		}
	}
	return nil
}
