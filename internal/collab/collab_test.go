package collab

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pnguyenfetchai/study-assistant/internal/llm"
)

func scripted(response string, err error) *llm.MockClient {
	m := llm.NewMockClient()
	m.CompleteFunc = func(ctx context.Context, system, user string) (string, error) {
		return response, err
	}
	return m
}

func TestClassifyQuery(t *testing.T) {
	ctx := context.Background()

	assert.Equal(t, QueryProblem, New(scripted("problem", nil)).ClassifyQuery(ctx, "Solve for x"))
	assert.Equal(t, QueryGeneral, New(scripted("general", nil)).ClassifyQuery(ctx, "What is a syllabus?"))
	// unexpected labels and failures both fall back to general
	assert.Equal(t, QueryGeneral, New(scripted("banana", nil)).ClassifyQuery(ctx, "anything"))
	assert.Equal(t, QueryGeneral, New(scripted("", errors.New("down"))).ClassifyQuery(ctx, "anything"))
}

func TestClassifyQueryDeterministic(t *testing.T) {
	c := New(llm.NewMockClient())
	ctx := context.Background()
	first := c.ClassifyQuery(ctx, "What is polymorphism?")
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, c.ClassifyQuery(ctx, "What is polymorphism?"))
	}
}

func TestExtractCredentials(t *testing.T) {
	ctx := context.Background()

	token, domain, ok := New(scripted("tok123,school.edu", nil)).ExtractCredentials(ctx, "creds inside")
	require.True(t, ok)
	assert.Equal(t, "tok123", token)
	assert.Equal(t, "school.edu", domain)

	_, _, ok = New(scripted("NONE", nil)).ExtractCredentials(ctx, "no creds")
	assert.False(t, ok)

	_, _, ok = New(scripted("just-a-token", nil)).ExtractCredentials(ctx, "half creds")
	assert.False(t, ok)

	_, _, ok = New(scripted("", errors.New("down"))).ExtractCredentials(ctx, "anything")
	assert.False(t, ok)
}

func TestVerifyAnswer(t *testing.T) {
	ctx := context.Background()

	assert.True(t, New(scripted("yes", nil)).VerifyAnswer(ctx, "q", "a"))
	assert.True(t, New(scripted("Yes, it is correct.", nil)).VerifyAnswer(ctx, "q", "a"))
	assert.False(t, New(scripted("no", nil)).VerifyAnswer(ctx, "q", "a"))
	assert.False(t, New(scripted("", errors.New("down"))).VerifyAnswer(ctx, "q", "a"))
}

func TestVerifyPromptCarriesVisualizationException(t *testing.T) {
	mock := llm.NewMockClient()
	c := New(mock)
	c.VerifyAnswer(context.Background(), "Draw me a chart", "anything")

	calls := mock.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].System, "Visualization Exception")
	assert.Contains(t, calls[0].System, "ALWAYS correct")
}

func TestNeedsVisualization(t *testing.T) {
	ctx := context.Background()

	assert.True(t, New(scripted("TOOL , tools is visualization", nil)).NeedsVisualization(ctx, "q", "a"))
	assert.True(t, New(scripted(`"TOOL , tools is visualization"`, nil)).NeedsVisualization(ctx, "q", "a"))
	assert.False(t, New(scripted("NO TOOL", nil)).NeedsVisualization(ctx, "q", "a"))
	assert.False(t, New(scripted("", errors.New("down"))).NeedsVisualization(ctx, "q", "a"))
}

func TestExtractSeries(t *testing.T) {
	ctx := context.Background()

	labels, values := New(scripted(`{"labels": ["a", "b"], "values": [1, 2]}`, nil)).ExtractSeries(ctx, "text")
	assert.Equal(t, []string{"a", "b"}, labels)
	assert.Equal(t, []float64{1, 2}, values)

	// mismatched lengths truncate
	labels, values = New(scripted(`{"labels": ["a", "b", "c"], "values": [1]}`, nil)).ExtractSeries(ctx, "text")
	assert.Equal(t, []string{"a"}, labels)
	assert.Equal(t, []float64{1}, values)

	labels, values = New(scripted("not json", nil)).ExtractSeries(ctx, "text")
	assert.Empty(t, labels)
	assert.Empty(t, values)
}

func TestSolveAndAnswerPropagateErrors(t *testing.T) {
	ctx := context.Background()

	_, err := New(scripted("", errors.New("down"))).Solve(ctx, "p", "c")
	require.Error(t, err)

	_, err = New(scripted("", errors.New("down"))).Answer(ctx, "q", "c")
	require.Error(t, err)

	out, err := New(scripted("Based on the course content, yes.", nil)).Answer(ctx, "q", "c")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Based on the course content"))
}
