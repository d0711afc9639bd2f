package engine

import "sync"

// runState is the per-run record of completed node outputs. It is owned
// by exactly one run and discarded when the run ends. Output entries are
// written exactly once; a completed node's entry is never overwritten,
// which also guarantees termination when a conditional branch points
// back at an already-completed node.
type runState struct {
	mu       sync.Mutex
	inputs   map[string]any
	outputs  map[string]map[string]any
	order    []string
	selected map[string]bool
}

func newRunState(inputs map[string]any) *runState {
	if inputs == nil {
		inputs = map[string]any{}
	}
	return &runState{
		inputs:   inputs,
		outputs:  make(map[string]map[string]any),
		selected: make(map[string]bool),
	}
}

// complete records a node's output. The first write wins.
func (s *runState) complete(nodeID string, output map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, done := s.outputs[nodeID]; done {
		return
	}
	s.outputs[nodeID] = output
	s.order = append(s.order, nodeID)
}

func (s *runState) completed(nodeID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.outputs[nodeID]
	return ok
}

func (s *runState) output(nodeID string) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out, ok := s.outputs[nodeID]
	return out, ok
}

// snapshot returns a copy of the outputs map safe for concurrent readers.
// The inner maps are owned by their completed nodes and never mutated
// after completion.
func (s *runState) snapshot() map[string]map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make(map[string]map[string]any, len(s.outputs))
	for k, v := range s.outputs {
		cp[k] = v
	}
	return cp
}

func (s *runState) completionOrder() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.order...)
}

// markSelected records that a branch decision chose nodeID.
func (s *runState) markSelected(nodeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected[nodeID] = true
}

func (s *runState) isSelected(nodeID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected[nodeID]
}
