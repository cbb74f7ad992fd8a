// Package llm provides the client for the LLM collaborator: chat
// completions for classification, verification and solving, and embeddings
// for the knowledge index.
package llm

import "context"

// Client defines the collaborator operations the agents consume.
type Client interface {
	// Complete sends a system+user prompt pair and returns the assistant text.
	Complete(ctx context.Context, system, user string) (string, error)

	// Embed generates embeddings for a batch of texts.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimensionality.
	Dimensions() int
}

// Ensure implementations satisfy the interface.
var (
	_ Client = (*HTTPClient)(nil)
	_ Client = (*MockClient)(nil)
)
