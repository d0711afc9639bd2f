package engine

import (
	"fmt"
	"log/slog"

	"github.com/expr-lang/expr"
	"github.com/loomworks/loom/internal/loom"
	"github.com/loomworks/loom/internal/resolve"
)

// evaluateCondition resolves the reference expressions embedded in a
// conditional edge's condition, then evaluates the rewritten expression
// over the typed values. A condition that is exactly one bare reference
// returns the referenced value unchanged.
func evaluateCondition(cond string, st *runState) (any, error) {
	rewritten, env, err := resolve.Expression(cond, st.inputs, st.snapshot())
	if err != nil {
		return nil, err
	}
	if v, ok := env[rewritten]; ok && len(env) == 1 {
		return normalize(v), nil
	}

	program, err := expr.Compile(rewritten, expr.Env(env))
	if err != nil {
		return nil, fmt.Errorf("compile condition %q: %w", cond, err)
	}
	result, err := expr.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("evaluate condition %q: %w", cond, err)
	}
	return normalize(result), nil
}

// normalize maps an evaluated value onto the tagged value domain used
// for branch matching: bool, float64, or string.
func normalize(v any) any {
	switch val := v.(type) {
	case bool, string, float64:
		return val
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case float32:
		return float64(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// matchBranch returns the target selected by value. Matching is
// type-strict and the first declared match wins; overlapping cases are a
// document defect and logged.
func matchBranch(rule loom.ConditionalEdge, value any) (string, error) {
	var matches []loom.Branch
	for _, b := range rule.Branches {
		if normalize(b.Case) == value {
			matches = append(matches, b)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: edge %q, value %v (%T)", ErrBranchResolution, rule.ID, value, value)
	case 1:
	default:
		slog.Warn("ambiguous conditional branches, taking first declared match",
			"edge", rule.ID, "value", value, "matches", len(matches))
	}
	return matches[0].To, nil
}
