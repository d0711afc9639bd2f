// Package graph validates workflow documents and compiles them into the
// executable form consumed by the engine.
package graph

import (
	"fmt"

	"github.com/loomworks/loom/internal/loom"
)

// ToolChecker reports whether a named capability exists in the catalog.
// Unknown tool references are a warning, not a compile failure: the
// catalog evolves independently of stored documents.
type ToolChecker interface {
	Has(name string) bool
}

// Compiled is the validated, executable representation of a workflow
// document. It is read-only after Compile and safe to share across runs.
type Compiled struct {
	nodes       map[string]*loom.NodeDefinition
	ids         []string
	preds       map[string][]string
	children    map[string][]string
	rules       map[string][]loom.ConditionalEdge
	condTargets map[string]bool
	entry       string
	exit        string
	terminals   []string
	warnings    []string
}

func (c *Compiled) Entry() string                          { return c.entry }
func (c *Compiled) ExitPoint() string                      { return c.exit }
func (c *Compiled) Terminals() []string                    { return c.terminals }
func (c *Compiled) Node(id string) *loom.NodeDefinition    { return c.nodes[id] }
func (c *Compiled) Predecessors(id string) []string        { return c.preds[id] }
func (c *Compiled) Children(id string) []string            { return c.children[id] }
func (c *Compiled) Rules(id string) []loom.ConditionalEdge { return c.rules[id] }
func (c *Compiled) IsConditionalTarget(id string) bool     { return c.condTargets[id] }
func (c *Compiled) Warnings() []string                     { return c.warnings }

// NodeIDs returns all node ids in declaration order.
func (c *Compiled) NodeIDs() []string { return c.ids }

// IsTerminal reports whether id has no outgoing edges of either kind.
func (c *Compiled) IsTerminal(id string) bool {
	return len(c.children[id]) == 0 && len(c.rules[id]) == 0
}

// Compile validates wf and builds its executable graph. Validation fails
// fast on the first violated invariant; no executor is instantiated or
// invoked. catalog may be nil to skip tool reference checking.
func Compile(wf *loom.WorkflowDefinition, catalog ToolChecker) (*Compiled, error) {
	c := &Compiled{
		nodes:       make(map[string]*loom.NodeDefinition, len(wf.Nodes)),
		preds:       make(map[string][]string),
		children:    make(map[string][]string),
		rules:       make(map[string][]loom.ConditionalEdge),
		condTargets: make(map[string]bool),
	}

	// Invariant 1: node ids unique.
	for i := range wf.Nodes {
		n := &wf.Nodes[i]
		if _, exists := c.nodes[n.NodeID]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateNodeID, n.NodeID)
		}
		c.nodes[n.NodeID] = n
		c.ids = append(c.ids, n.NodeID)
	}

	// Invariant 2: every edge endpoint names an existing node.
	for _, e := range wf.Edges {
		if _, ok := c.nodes[e.From]; !ok {
			return nil, fmt.Errorf("%w: edge %q from %q", ErrDanglingEdge, e.ID, e.From)
		}
		if _, ok := c.nodes[e.To]; !ok {
			return nil, fmt.Errorf("%w: edge %q to %q", ErrDanglingEdge, e.ID, e.To)
		}
		c.children[e.From] = append(c.children[e.From], e.To)
		c.preds[e.To] = append(c.preds[e.To], e.From)
	}
	for _, ce := range wf.ConditionalEdges {
		if _, ok := c.nodes[ce.From]; !ok {
			return nil, fmt.Errorf("%w: conditional edge %q from %q", ErrDanglingEdge, ce.ID, ce.From)
		}
		for _, b := range ce.Branches {
			if _, ok := c.nodes[b.To]; !ok {
				return nil, fmt.Errorf("%w: conditional edge %q branch to %q", ErrDanglingEdge, ce.ID, b.To)
			}
			c.condTargets[b.To] = true
		}
		c.rules[ce.From] = append(c.rules[ce.From], ce)
	}

	// The entry point must exist before cycle detection can start there.
	if _, ok := c.nodes[wf.EntryPoint]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoEntryPoint, wf.EntryPoint)
	}
	c.entry = wf.EntryPoint
	// exit_point is a logical name: it only matters at run time if it
	// names an actual node that completed.
	c.exit = wf.ExitPoint

	// Invariant 3: the unconditional edge set reachable from the entry
	// point is acyclic. Conditional edges are data-dependent at run time
	// and excluded here; the engine guards termination for them.
	if err := c.detectCycle(); err != nil {
		return nil, err
	}

	// Invariant 4: the entry point has no unconditional predecessors.
	if len(c.preds[c.entry]) > 0 {
		return nil, fmt.Errorf("%w: %q has unconditional predecessors", ErrNoEntryPoint, c.entry)
	}

	// Invariant 5: some terminal node is reachable from the entry point,
	// counting both unconditional edges and declared branch targets.
	for _, id := range c.reachable() {
		if c.IsTerminal(id) {
			c.terminals = append(c.terminals, id)
		}
	}
	if len(c.terminals) == 0 {
		return nil, fmt.Errorf("%w: from entry %q", ErrNoTerminalReachable, c.entry)
	}

	if catalog != nil {
		for i := range wf.Nodes {
			for _, name := range wf.Nodes[i].Tools {
				if !catalog.Has(name) {
					c.warnings = append(c.warnings,
						fmt.Sprintf("node %q references unknown tool %q", wf.Nodes[i].NodeID, name))
				}
			}
		}
	}

	return c, nil
}

// detectCycle runs a depth-first traversal over unconditional edges from
// the entry point; an edge back to a node on the current path is a cycle.
func (c *Compiled) detectCycle() error {
	const (
		white = 0 // unvisited
		grey  = 1 // on the current path
		black = 2 // finished
	)
	color := make(map[string]int, len(c.nodes))

	var visit func(id string) error
	visit = func(id string) error {
		color[id] = grey
		for _, child := range c.children[id] {
			switch color[child] {
			case grey:
				return fmt.Errorf("%w: %q -> %q", ErrCycleDetected, id, child)
			case white:
				if err := visit(child); err != nil {
					return err
				}
			}
		}
		color[id] = black
		return nil
	}
	return visit(c.entry)
}

// reachable returns every node reachable from the entry point following
// unconditional edges and all declared conditional branches, in BFS order.
func (c *Compiled) reachable() []string {
	seen := map[string]bool{c.entry: true}
	queue := []string{c.entry}
	var order []string
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		next := append([]string{}, c.children[id]...)
		for _, ce := range c.rules[id] {
			for _, b := range ce.Branches {
				next = append(next, b.To)
			}
		}
		for _, n := range next {
			if !seen[n] {
				seen[n] = true
				queue = append(queue, n)
			}
		}
	}
	return order
}
