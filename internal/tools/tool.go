// Package tools implements the built-in tool catalog available to agent
// nodes. Tools are executed locally by the engine when the model requests
// them during a node run.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

type Tool interface {
	Name() string
	Description() string
	InputSchema() map[string]any
	Execute(ctx context.Context, input map[string]any) (any, error)
}

// decodeArgs maps a raw argument object onto a typed struct through a
// JSON round trip. Tool argument objects come straight from the model,
// so unknown keys are ignored rather than rejected.
func decodeArgs(input map[string]any, out any) error {
	raw, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("encode arguments: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}
	return nil
}
