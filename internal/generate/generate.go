// Package generate turns natural language descriptions into workflow
// documents through a two-stage model pipeline: a planner drafts the
// steps, an architect emits the graph JSON.
package generate

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/loomworks/loom/internal/graph"
	"github.com/loomworks/loom/internal/loom"
	"github.com/loomworks/loom/internal/nodes"
	"github.com/loomworks/loom/internal/provider"
)

//go:embed prompts/planner.md
var plannerPrompt string

//go:embed prompts/architect.md
var architectPrompt string

// ToolCatalog is the view of the tool registry the generator needs:
// names for prompt injection plus membership checks for validation.
type ToolCatalog interface {
	graph.ToolChecker
	Names() []string
}

type Generator struct {
	providers *provider.Registry
	model     string
	catalog   ToolCatalog
}

func New(providers *provider.Registry, model string, catalog ToolCatalog) *Generator {
	return &Generator{providers: providers, model: model, catalog: catalog}
}

// Generate produces a compiled-valid workflow document for description.
// The returned document has passed graph compilation; hallucinated tool
// names are stripped before validation rather than rejected.
func (g *Generator) Generate(ctx context.Context, description string) (*loom.WorkflowDefinition, error) {
	prov, modelName, err := g.providers.Resolve(g.model)
	if err != nil {
		return nil, fmt.Errorf("resolve generator model: %w", err)
	}

	plan, err := g.plan(ctx, prov, modelName, description)
	if err != nil {
		return nil, err
	}
	return g.architect(ctx, prov, modelName, description, plan)
}

func (g *Generator) plan(ctx context.Context, prov provider.Provider, modelName, description string) (string, error) {
	sys := plannerPrompt
	if names := g.toolNames(); len(names) > 0 {
		sys += "\n\nAvailable tools:\n"
		for _, name := range names {
			sys += "- " + name + "\n"
		}
		sys += "Only reference tools from this list. Never invent tool names."
	}

	resp, err := prov.ChatCompletion(ctx, &provider.ChatRequest{
		Model: modelName,
		Messages: []provider.Message{
			{Role: provider.RoleSystem, Content: sys},
			{Role: provider.RoleUser, Content: description},
		},
	})
	if err != nil {
		return "", fmt.Errorf("plan workflow: %w", err)
	}
	if strings.TrimSpace(resp.Content) == "" {
		return "", fmt.Errorf("planner returned empty response")
	}
	return resp.Content, nil
}

func (g *Generator) architect(ctx context.Context, prov provider.Provider, modelName, description, plan string) (*loom.WorkflowDefinition, error) {
	user := fmt.Sprintf("User request:\n%s\n\nWorkflow plan:\n%s", description, plan)
	resp, err := prov.ChatCompletion(ctx, &provider.ChatRequest{
		Model: modelName,
		Messages: []provider.Message{
			{Role: provider.RoleSystem, Content: architectPrompt},
			{Role: provider.RoleUser, Content: user},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("architect workflow: %w", err)
	}

	content, err := nodes.StripFencedJSON(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("parse generated workflow: %w\nraw output: %s", err, resp.Content)
	}

	// Decode only the first JSON value; trailing prose is ignored.
	var wf loom.WorkflowDefinition
	if err := json.NewDecoder(strings.NewReader(content)).Decode(&wf); err != nil {
		return nil, fmt.Errorf("parse generated workflow: %w\nraw output: %s", err, content)
	}

	if wf.WorkflowName == "" {
		wf.WorkflowName = "generated-workflow"
	}
	g.stripUnknownTools(&wf)

	if _, err := graph.Compile(&wf, g.catalog); err != nil {
		return nil, fmt.Errorf("generated workflow is invalid: %w", err)
	}
	return &wf, nil
}

// stripUnknownTools drops hallucinated tool names so they never reach
// execution.
func (g *Generator) stripUnknownTools(wf *loom.WorkflowDefinition) {
	if g.catalog == nil {
		return
	}
	for i, n := range wf.Nodes {
		if len(n.Tools) == 0 {
			continue
		}
		kept := n.Tools[:0]
		for _, name := range n.Tools {
			if g.catalog.Has(name) {
				kept = append(kept, name)
			}
		}
		wf.Nodes[i].Tools = kept
	}
}

func (g *Generator) toolNames() []string {
	if g.catalog == nil {
		return nil
	}
	return g.catalog.Names()
}
