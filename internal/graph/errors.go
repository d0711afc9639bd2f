package graph

import "errors"

// Compile-time document errors. Each invariant violation maps to exactly
// one of these; Compile fails fast on the first violation and wraps the
// sentinel with the offending node or edge id.
var (
	ErrDuplicateNodeID     = errors.New("duplicate node id")
	ErrDanglingEdge        = errors.New("edge references unknown node")
	ErrCycleDetected       = errors.New("cycle detected")
	ErrNoEntryPoint        = errors.New("no valid entry point")
	ErrNoTerminalReachable = errors.New("no terminal node reachable")
)
