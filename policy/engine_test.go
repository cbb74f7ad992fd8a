package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicyAllowsPieChart(t *testing.T) {
	e, err := NewEngine(context.Background(), DefaultPolicy)
	require.NoError(t, err)

	assert.True(t, e.Allow(context.Background(), "render_pie_chart", map[string]interface{}{
		"title": "Grade Distribution",
	}))
}

func TestDefaultPolicyBlocksUnknownTool(t *testing.T) {
	e, err := NewEngine(context.Background(), DefaultPolicy)
	require.NoError(t, err)

	assert.False(t, e.Allow(context.Background(), "shell.exec", nil))
}

func TestCustomPolicy(t *testing.T) {
	custom := `
package tool_policy

default decision = "allow"

decision = "block" {
	input.args.points > 50
}
`
	e, err := NewEngine(context.Background(), custom)
	require.NoError(t, err)

	assert.True(t, e.Allow(context.Background(), "render_pie_chart", map[string]interface{}{"points": 10}))
	assert.False(t, e.Allow(context.Background(), "render_pie_chart", map[string]interface{}{"points": 100}))
}

func TestNewEngineRejectsBadPolicy(t *testing.T) {
	_, err := NewEngine(context.Background(), "not rego at all {{{")
	assert.Error(t, err)
}
