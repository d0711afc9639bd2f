// Package nodes implements node executors. An agent node wraps one LLM
// conversation: system prompt, resolved inputs as the user message, and
// an optional tool-calling loop.
package nodes

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/loomworks/loom/internal/engine"
	"github.com/loomworks/loom/internal/loom"
	"github.com/loomworks/loom/internal/provider"
	"github.com/loomworks/loom/internal/tools"
)

// maxToolTurns bounds the model/tool round trips for one node.
const maxToolTurns = 10

type AgentExecutor struct {
	providers    *provider.Registry
	tools        *tools.Registry
	bus          *engine.EventBus
	defaultModel string
}

func NewAgentExecutor(providers *provider.Registry, registry *tools.Registry, bus *engine.EventBus, defaultModel string) *AgentExecutor {
	return &AgentExecutor{providers: providers, tools: registry, bus: bus, defaultModel: defaultModel}
}

func (a *AgentExecutor) Execute(ctx context.Context, node *loom.NodeDefinition, inputs map[string]any) (map[string]any, error) {
	modelID := node.Model
	if modelID == "" {
		modelID = a.defaultModel
	}
	if modelID == "" {
		return nil, fmt.Errorf("no model configured for node %q", node.NodeID)
	}
	prov, modelName, err := a.providers.Resolve(modelID)
	if err != nil {
		return nil, err
	}

	messages, err := a.buildMessages(node, inputs)
	if err != nil {
		return nil, err
	}
	toolDefs := a.tools.Definitions(node.Tools)

	maxTurns := 1
	if len(toolDefs) > 0 {
		maxTurns = maxToolTurns
	}

	for turn := 0; turn < maxTurns; turn++ {
		a.publish(node.NodeID, engine.EventModelRequest, map[string]any{"turn": turn, "model": modelID})

		resp, err := prov.ChatCompletion(ctx, &provider.ChatRequest{
			Model:    modelName,
			Messages: messages,
			Tools:    toolDefs,
		})
		if err != nil {
			return nil, fmt.Errorf("model call (turn %d): %w", turn, err)
		}

		a.publish(node.NodeID, engine.EventModelResponse, map[string]any{
			"content":    resp.Content,
			"tool_calls": len(resp.ToolCalls),
		})

		if len(resp.ToolCalls) == 0 {
			return parseOutputs(resp.Content, node.Outputs), nil
		}

		messages = append(messages, provider.Message{
			Role:      provider.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, tc := range resp.ToolCalls {
			messages = append(messages, a.runToolCall(ctx, node.NodeID, tc))
		}
	}

	return nil, fmt.Errorf("tool loop exceeded %d turns", maxTurns)
}

func (a *AgentExecutor) buildMessages(node *loom.NodeDefinition, inputs map[string]any) ([]provider.Message, error) {
	var messages []provider.Message
	if node.SystemPrompt != "" {
		messages = append(messages, provider.Message{Role: provider.RoleSystem, Content: node.SystemPrompt})
	}

	userContent, err := json.MarshalIndent(inputs, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode node inputs: %w", err)
	}
	messages = append(messages, provider.Message{Role: provider.RoleUser, Content: string(userContent)})
	return messages, nil
}

// runToolCall executes one requested tool and returns the tool message
// to feed back to the model. Tool failures become error text rather than
// aborting the node; the model decides how to proceed.
func (a *AgentExecutor) runToolCall(ctx context.Context, nodeID string, tc provider.ToolCall) provider.Message {
	a.publish(nodeID, engine.EventToolCall, map[string]any{"tool": tc.Name, "arguments": tc.Arguments})

	var content string
	args := map[string]any{}
	if tc.Arguments != "" {
		if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
			content = fmt.Sprintf("Error: invalid tool arguments: %v", err)
		}
	}
	if content == "" {
		result, err := a.tools.Execute(ctx, tc.Name, args)
		if err != nil {
			content = fmt.Sprintf("Error: %v", err)
		} else if raw, err := json.Marshal(result); err == nil {
			content = string(raw)
		} else {
			content = fmt.Sprintf("%v", result)
		}
	}

	a.publish(nodeID, engine.EventToolResult, map[string]any{"tool": tc.Name, "result": content})
	return provider.Message{
		Role:       provider.RoleTool,
		Content:    content,
		ToolCallID: tc.ID,
		ToolName:   tc.Name,
	}
}

func (a *AgentExecutor) publish(nodeID string, typ engine.EventType, payload any) {
	if a.bus == nil {
		return
	}
	a.bus.Publish(engine.Event{
		ID:        uuid.NewString(),
		NodeID:    nodeID,
		Type:      typ,
		Payload:   payload,
		Timestamp: time.Now(),
	})
}

// parseOutputs maps the model's final text onto the node's declared
// output keys. A JSON object response is used directly; otherwise the
// raw text fills the single declared output, or "result" when the node
// declares none or several.
func parseOutputs(content string, declared map[string]string) map[string]any {
	if stripped, err := StripFencedJSON(content); err == nil {
		var obj map[string]any
		if json.Unmarshal([]byte(stripped), &obj) == nil {
			return obj
		}
	}
	if len(declared) == 1 {
		for key := range declared {
			return map[string]any{key: content}
		}
	}
	return map[string]any{"result": content}
}
