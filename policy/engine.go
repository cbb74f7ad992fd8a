package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// Engine gates tool dispatch through an OPA policy.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine compiles the policy content into a prepared query.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.tool_policy.decision"),
		rego.Module("tool_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Evaluate checks a tool invocation against the policy. Input carries
// tool_name plus the invocation args. Returns the decision string
// (allow or block).
func (e *Engine) Evaluate(ctx context.Context, input interface{}) (string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return "allow", nil
	}

	if s, ok := results[0].Expressions[0].Value.(string); ok {
		return s, nil
	}
	return "allow", nil
}

// Allow is a convenience wrapper returning whether the invocation may run.
func (e *Engine) Allow(ctx context.Context, toolName string, args map[string]interface{}) bool {
	decision, err := e.Evaluate(ctx, map[string]interface{}{
		"tool_name": toolName,
		"args":      args,
	})
	if err != nil {
		return false
	}
	return decision == "allow"
}

// DefaultPolicy is the built-in tool-dispatch policy. Charting is allowed
// for known chart kinds; anything else is blocked.
const DefaultPolicy = `
package tool_policy

default decision = "block"

decision = "allow" {
	input.tool_name == "render_pie_chart"
}
`
