package actor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pnguyenfetchai/study-assistant/internal/bus"
	"github.com/pnguyenfetchai/study-assistant/internal/canvas"
	"github.com/pnguyenfetchai/study-assistant/internal/collab"
	"github.com/pnguyenfetchai/study-assistant/internal/domain"
	"github.com/pnguyenfetchai/study-assistant/internal/llm"
	"github.com/pnguyenfetchai/study-assistant/internal/rag"
)

func newKnowledgeRig(t *testing.T, mock *llm.MockClient) (*bus.MemoryBus, *Knowledge, *rag.Index, *frameProbe, *frameProbe) {
	t.Helper()
	b := bus.NewMemoryBus()
	t.Cleanup(func() { b.Close() })

	idx, err := rag.NewIndex(":memory:", mock)
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	k := NewKnowledge(b, collab.New(mock), idx, KnowledgeConfig{
		FilesDir: t.TempDir(), ChunkSize: 500, ChunkOverlap: 50, TopK: 4,
	})
	k.sourceFor = func(token, domainName string) CourseSource { return fakeSource{} }

	verifier := &frameProbe{addr: AddrVerifier, frames: make(chan domain.Frame, 1)}
	gateway := &frameProbe{addr: AddrGateway, frames: make(chan domain.Frame, 1)}
	for _, h := range []bus.Handler{k, verifier, gateway} {
		require.NoError(t, b.Register(h))
	}
	return b, k, idx, verifier, gateway
}

// Answers to gateway-originated general queries go to the verifier, not
// back to the gateway.
func TestKnowledgeAnswerRoutesToVerifier(t *testing.T) {
	mock := llm.NewMockClient()
	b, _, idx, verifier, _ := newKnowledgeRig(t, mock)

	ctx := context.Background()
	require.NoError(t, idx.Add(ctx, []rag.Chunk{
		{Content: "Course: CS 201, File: oop.md, Content: Polymorphism lets one interface serve many types.", Source: "oop.md"},
	}))

	require.NoError(t, bus.SendMessage(ctx, b, AddrGateway, AddrKnowledge, domain.RequestResponse{
		Request: "What is polymorphism?",
	}))

	frame := verifier.wait(t)
	msg, err := frame.Decode()
	require.NoError(t, err)
	rr := msg.(domain.RequestResponse)
	require.Equal(t, "What is polymorphism?", rr.Request)
	require.Contains(t, rr.Response, "Context:")
	require.True(t, rr.IsAnswer())
}

// Context-only queries reply to whoever asked.
func TestKnowledgeContextRepliesToSender(t *testing.T) {
	mock := llm.NewMockClient()
	b, _, idx, _, _ := newKnowledgeRig(t, mock)

	ctx := context.Background()
	require.NoError(t, idx.Add(ctx, []rag.Chunk{
		{Content: "Course: Algebra, File: linear.md, Content: Isolate x by subtracting then dividing.", Source: "linear.md"},
	}))

	problem := &frameProbe{addr: AddrProblem, frames: make(chan domain.Frame, 1)}
	require.NoError(t, b.Register(problem))

	require.NoError(t, bus.SendMessage(ctx, b, AddrProblem, AddrKnowledge, domain.QueryRequest{
		Query:    "Provide relevant materials for solving: 2x+3=7. Do not solve; only supply context.",
		Attempts: 1,
	}))

	frame := problem.wait(t)
	msg, err := frame.Decode()
	require.NoError(t, err)
	rr := msg.(domain.RequestResponse)
	require.True(t, rr.IsAnswer())
	require.Equal(t, 1, rr.Attempts)
}

func TestKnowledgeUninitializedReportsToSender(t *testing.T) {
	mock := llm.NewMockClient()
	b, _, _, _, gateway := newKnowledgeRig(t, mock)

	require.NoError(t, bus.SendMessage(context.Background(), b, AddrGateway, AddrKnowledge, domain.RequestResponse{
		Request: "What is polymorphism?",
	}))

	frame := gateway.wait(t)
	msg, err := frame.Decode()
	require.NoError(t, err)
	require.Contains(t, msg.(domain.RequestResponse).Response, "Canvas token")
}

func TestKnowledgeInitializeBuildsIndex(t *testing.T) {
	mock := llm.NewMockClient()
	_, k, idx, _, _ := newKnowledgeRig(t, mock)

	ctx := context.Background()
	summary, err := k.Initialize(ctx, "tok123", "school.edu")
	require.NoError(t, err)
	require.Contains(t, summary, "course materials are ready")

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	require.Greater(t, n, 0)
}

// fileSource downloads one markdown file per course.
type fileSource struct{ fakeSource }

func (fileSource) Files(ctx context.Context, courseID int64) []canvas.File {
	return []canvas.File{{ID: 7, DisplayName: "energy.md", ContentType: "text/markdown"}}
}

func (fileSource) DownloadFile(ctx context.Context, f canvas.File, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, f.DisplayName)
	return path, os.WriteFile(path, []byte("Kinetic energy is half the mass times velocity squared."), 0o644)
}

func TestKnowledgeInitializeIngestsDownloadedFiles(t *testing.T) {
	mock := llm.NewMockClient()
	_, k, idx, _, _ := newKnowledgeRig(t, mock)
	k.sourceFor = func(token, domainName string) CourseSource { return fileSource{} }

	ctx := context.Background()
	summary, err := k.Initialize(ctx, "tok123", "school.edu")
	require.NoError(t, err)
	require.Contains(t, summary, "course materials are ready")

	chunks, err := idx.Search(ctx, "kinetic energy velocity", 4)
	require.NoError(t, err)
	found := false
	for _, c := range chunks {
		if strings.Contains(c.Content, "Kinetic energy") {
			found = true
		}
	}
	require.True(t, found, "downloaded file content was not indexed")
}

// Only gateway-originated general queries route to the verifier; anyone
// else asking gets the answer back directly.
func TestKnowledgeAnswersNonGatewaySenderDirectly(t *testing.T) {
	mock := llm.NewMockClient()
	b, _, idx, verifier, _ := newKnowledgeRig(t, mock)

	ctx := context.Background()
	require.NoError(t, idx.Add(ctx, []rag.Chunk{
		{Content: "Course: CS 201, File: oop.md, Content: Polymorphism lets one interface serve many types.", Source: "oop.md"},
	}))

	asker := &frameProbe{addr: "user://direct", frames: make(chan domain.Frame, 1)}
	require.NoError(t, b.Register(asker))

	require.NoError(t, bus.SendMessage(ctx, b, asker.addr, AddrKnowledge, domain.RequestResponse{
		Request: "What is polymorphism?",
	}))

	frame := asker.wait(t)
	msg, err := frame.Decode()
	require.NoError(t, err)
	require.True(t, msg.(domain.RequestResponse).IsAnswer())

	select {
	case f := <-verifier.frames:
		t.Fatalf("unexpected frame to verifier: %s", f.Kind)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestCanvasBaseURLPrefersCredentialDomain(t *testing.T) {
	configured := "https://canvas.instructure.com/api/v1"
	require.Equal(t, "https://school.edu/api/v1", canvasBaseURL(configured, "school.edu"))
	require.Equal(t, configured, canvasBaseURL(configured, ""))
}

func TestKnowledgeInitBadSentinelReportsError(t *testing.T) {
	mock := llm.NewMockClient()
	b, _, _, _, gateway := newKnowledgeRig(t, mock)

	require.NoError(t, bus.SendMessage(context.Background(), b, AddrGateway, AddrKnowledge, domain.RequestResponse{
		Request: domain.InitRAGPrefix + "only-a-token",
	}))

	frame := gateway.wait(t)
	msg, err := frame.Decode()
	require.NoError(t, err)
	require.Contains(t, msg.(domain.RequestResponse).Response, "could not read your Canvas credentials")
}
