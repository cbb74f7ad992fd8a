package llm

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
)

// MockClient is a scripted implementation of Client for testing. Tests set
// CompleteFunc to drive agent decisions; unscripted calls fall back to
// conservative defaults so the pipeline keeps moving.
type MockClient struct {
	// CompleteFunc, when set, handles every Complete call.
	CompleteFunc func(ctx context.Context, system, user string) (string, error)

	// EmbedDims is the embedding dimensionality (default 8).
	EmbedDims int

	mu    sync.Mutex
	calls []MockCall
}

// MockCall records one Complete invocation.
type MockCall struct {
	System string
	User   string
}

// NewMockClient creates a mock with default behavior.
func NewMockClient() *MockClient {
	return &MockClient{EmbedDims: 8}
}

// Complete returns the scripted response, or a safe default inferred from
// the system prompt.
func (m *MockClient) Complete(ctx context.Context, system, user string) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{System: system, User: user})
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, system, user)
	}

	lower := strings.ToLower(system)
	switch {
	case strings.Contains(lower, "classify this query"):
		return "general", nil
	case strings.Contains(lower, "verifies whether an answer"):
		return "yes", nil
	case strings.Contains(lower, "visualization is needed") || strings.Contains(lower, "need visualization"):
		return "NO TOOL", nil
	case strings.Contains(lower, "credential"):
		return "NONE", nil
	case strings.Contains(lower, "pie chart"):
		return `{"labels": [], "values": []}`, nil
	default:
		return "mock answer: " + user, nil
	}
}

// Calls returns a copy of the recorded calls.
func (m *MockClient) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// Embed returns deterministic pseudo-embeddings so vector search behaves
// stably in tests: identical texts embed identically.
func (m *MockClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	dims := m.Dimensions()
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, dims)
		for j, word := range strings.Fields(strings.ToLower(text)) {
			h := fnv.New32a()
			h.Write([]byte(word))
			vec[(int(h.Sum32())+j)%dims] += 1
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions returns the embedding dimensionality.
func (m *MockClient) Dimensions() int {
	if m.EmbedDims > 0 {
		return m.EmbedDims
	}
	return 8
}
