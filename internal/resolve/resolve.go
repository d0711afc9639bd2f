// Package resolve implements the reference expression language used in
// workflow documents: {{workflow.inputs.<name>}} and
// {{nodes.<node_id>.outputs.<key>}}. Resolution is a pure function over
// the run's inputs and the outputs produced so far.
package resolve

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrUnresolvedReference is returned when a node reference names an
// unknown node, a node that has not produced output, or an unknown
// output key.
var ErrUnresolvedReference = errors.New("unresolved reference")

// ErrMissingWorkflowInput is returned when a workflow input reference has
// no corresponding supplied value.
var ErrMissingWorkflowInput = errors.New("missing workflow input")

var refPattern = regexp.MustCompile(`\{\{\s*(?:workflow\.inputs\.([A-Za-z0-9_-]+)|nodes\.([A-Za-z0-9_-]+)\.outputs\.([A-Za-z0-9_-]+))\s*\}\}`)

var exactRefPattern = regexp.MustCompile(`^\{\{\s*(?:workflow\.inputs\.([A-Za-z0-9_-]+)|nodes\.([A-Za-z0-9_-]+)\.outputs\.([A-Za-z0-9_-]+))\s*\}\}$`)

// Reference is a parsed reference expression. Exactly one of Input or
// NodeID is set.
type Reference struct {
	Raw       string
	Input     string
	NodeID    string
	OutputKey string
}

// ParseReference reports whether s is a reference expression. Only a
// string whose entire content matches the reference syntax is a
// reference; strings that merely contain braces are literals.
func ParseReference(s string) (Reference, bool) {
	m := exactRefPattern.FindStringSubmatch(s)
	if m == nil {
		return Reference{}, false
	}
	return Reference{Raw: s, Input: m[1], NodeID: m[2], OutputKey: m[3]}, true
}

// Lookup resolves a parsed reference against the run's workflow inputs
// and the outputs of completed nodes.
func Lookup(ref Reference, wfInputs map[string]any, outputs map[string]map[string]any) (any, error) {
	if ref.Input != "" {
		v, ok := wfInputs[ref.Input]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrMissingWorkflowInput, ref.Input)
		}
		return v, nil
	}
	nodeOut, ok := outputs[ref.NodeID]
	if !ok {
		return nil, fmt.Errorf("%w: node %q has not produced output", ErrUnresolvedReference, ref.NodeID)
	}
	v, ok := nodeOut[ref.OutputKey]
	if !ok {
		return nil, fmt.Errorf("%w: node %q has no output %q", ErrUnresolvedReference, ref.NodeID, ref.OutputKey)
	}
	return v, nil
}

// Inputs resolves a node's declared inputs mapping. String values that
// are reference expressions are replaced by the looked-up value; every
// other value passes through unchanged.
func Inputs(decl map[string]any, wfInputs map[string]any, outputs map[string]map[string]any) (map[string]any, error) {
	resolved := make(map[string]any, len(decl))
	for name, raw := range decl {
		s, isString := raw.(string)
		if !isString {
			resolved[name] = raw
			continue
		}
		ref, ok := ParseReference(s)
		if !ok {
			resolved[name] = s
			continue
		}
		v, err := Lookup(ref, wfInputs, outputs)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", name, err)
		}
		resolved[name] = v
	}
	return resolved, nil
}

// Expression rewrites every reference embedded in a condition expression
// to a synthetic identifier and binds the looked-up value in the returned
// environment, so the condition can be evaluated over typed values rather
// than spliced strings. Non-reference text is left untouched.
func Expression(cond string, wfInputs map[string]any, outputs map[string]map[string]any) (string, map[string]any, error) {
	env := make(map[string]any)
	var lookupErr error
	i := 0
	rewritten := refPattern.ReplaceAllStringFunc(cond, func(match string) string {
		ref, ok := ParseReference(match)
		if !ok {
			return match
		}
		v, err := Lookup(ref, wfInputs, outputs)
		if err != nil && lookupErr == nil {
			lookupErr = err
		}
		name := fmt.Sprintf("ref%d", i)
		i++
		env[name] = v
		return name
	})
	if lookupErr != nil {
		return "", nil, lookupErr
	}
	return strings.TrimSpace(rewritten), env, nil
}
