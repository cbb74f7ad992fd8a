package actor

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/pnguyenfetchai/study-assistant/internal/bus"
	"github.com/pnguyenfetchai/study-assistant/internal/canvas"
	"github.com/pnguyenfetchai/study-assistant/internal/collab"
	"github.com/pnguyenfetchai/study-assistant/internal/domain"
	"github.com/pnguyenfetchai/study-assistant/internal/extract"
	"github.com/pnguyenfetchai/study-assistant/internal/rag"
)

const notInitializedReply = "Please provide your Canvas token first so I can index your course materials."

// CourseSource is the external corpus the knowledge agent ingests from.
type CourseSource interface {
	ActiveCourses(ctx context.Context) []canvas.Course
	Assignments(ctx context.Context, courseID int64) []canvas.Assignment
	Files(ctx context.Context, courseID int64) []canvas.File
	DownloadFile(ctx context.Context, f canvas.File, dir string) (string, error)
}

// KnowledgeConfig carries the ingestion tunables.
type KnowledgeConfig struct {
	CanvasBaseURL string
	FilesDir      string
	ChunkSize     int
	ChunkOverlap  int
	TopK          int
}

// Knowledge owns the retrieval index. It answers general queries with
// grounded text, supplies context to the problem agent, and rebuilds the
// index when an init sentinel arrives with a credential pair.
type Knowledge struct {
	bus    bus.Bus
	collab *collab.Collaborators
	index  *rag.Index
	cfg    KnowledgeConfig

	// sourceFor builds a course source for a credential pair; replaced in
	// tests with a fake.
	sourceFor func(token, domainName string) CourseSource
}

// NewKnowledge wires the knowledge agent.
func NewKnowledge(b bus.Bus, c *collab.Collaborators, index *rag.Index, cfg KnowledgeConfig) *Knowledge {
	return &Knowledge{
		bus:    b,
		collab: c,
		index:  index,
		cfg:    cfg,
		sourceFor: func(token, domainName string) CourseSource {
			return canvas.NewClient(canvasBaseURL(cfg.CanvasBaseURL, domainName), token)
		},
	}
}

// canvasBaseURL resolves the API root: the school domain from the
// credential pair wins over the configured default.
func canvasBaseURL(configured, domainName string) string {
	if domainName == "" {
		return configured
	}
	return "https://" + domainName + "/api/v1"
}

// Address implements bus.Handler.
func (k *Knowledge) Address() string { return AddrKnowledge }

// HandleFrame implements bus.Handler.
func (k *Knowledge) HandleFrame(ctx context.Context, frame domain.Frame) {
	msg, ok := decode(frame)
	if !ok {
		return
	}

	switch m := msg.(type) {
	case domain.RequestResponse:
		if strings.HasPrefix(m.Request, domain.InitRAGPrefix) {
			k.handleInit(ctx, frame.From, m)
			return
		}
		if m.IsAnswer() {
			log.Printf("WARN: knowledge received answer-phase traffic from %s, ignoring", frame.From)
			return
		}
		k.handleGeneralQuery(ctx, frame.From, m)
	case domain.QueryRequest:
		k.handleContextQuery(ctx, frame.From, m)
	default:
		log.Printf("WARN: knowledge ignoring %s frame from %s", frame.Kind, frame.From)
	}
}

// handleInit parses the "init_rag,<token>,<domain>" sentinel and rebuilds
// the index, reporting the outcome back to whoever dispatched it.
func (k *Knowledge) handleInit(ctx context.Context, from string, m domain.RequestResponse) {
	parts := strings.SplitN(strings.TrimPrefix(m.Request, domain.InitRAGPrefix), ",", 2)
	reply := func(text string) {
		bus.MustSend(ctx, k.bus, AddrKnowledge, from, domain.RequestResponse{
			Request:  m.Request,
			Response: text,
		})
	}

	if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" || strings.TrimSpace(parts[1]) == "" {
		reply("I could not read your Canvas credentials. Please send them as token,domain.")
		return
	}

	summary, err := k.Initialize(ctx, strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]))
	if err != nil {
		log.Printf("ERROR: knowledge initialization failed: %v", err)
		reply("I could not index your course materials: " + err.Error())
		return
	}
	reply(summary)
}

// Initialize fetches the external corpus, extracts text, chunks, embeds and
// inserts into the index. Re-initialization appends.
func (k *Knowledge) Initialize(ctx context.Context, token, domainName string) (string, error) {
	src := k.sourceFor(token, domainName)

	courses := src.ActiveCourses(ctx)
	if len(courses) == 0 {
		return "", fmt.Errorf("no active courses found for the given credentials")
	}
	if err := os.MkdirAll(k.cfg.FilesDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create files dir: %w", err)
	}

	var docs []extract.Document
	for _, course := range courses {
		for _, a := range src.Assignments(ctx, course.ID) {
			text := strings.TrimSpace(a.Name + "\n" + a.Description)
			if a.DueAt != "" {
				text += "\nDue: " + a.DueAt
			}
			docs = append(docs, extract.Document{Course: course.Name, File: "assignment: " + a.Name, Text: text})
		}
		dir := filepath.Join(k.cfg.FilesDir, course.Name)
		for _, f := range src.Files(ctx, course.ID) {
			if _, err := src.DownloadFile(ctx, f, dir); err != nil {
				log.Printf("WARN: skipping file %s: %v", f.DisplayName, err)
			}
		}
	}
	// Downloaded files land under <files dir>/<course name>/ and are read
	// back in one directory walk.
	docs = append(docs, extract.FromDir(k.cfg.FilesDir)...)

	var chunks []rag.Chunk
	for _, doc := range docs {
		for _, piece := range rag.SplitText(doc.Labeled(), k.cfg.ChunkSize, k.cfg.ChunkOverlap) {
			chunks = append(chunks, rag.Chunk{Content: piece, Source: doc.File})
		}
	}
	if err := k.index.Add(ctx, chunks); err != nil {
		return "", fmt.Errorf("failed to index course materials: %w", err)
	}

	return fmt.Sprintf("Your course materials are ready: indexed %d chunks from %d courses. Ask me anything.",
		len(chunks), len(courses)), nil
}

func (k *Knowledge) initialized(ctx context.Context) bool {
	n, err := k.index.Count(ctx)
	if err != nil {
		log.Printf("ERROR: failed to check index state: %v", err)
		return false
	}
	return n > 0
}

// handleGeneralQuery answers a general query. Gateway-originated answers
// are forwarded to the verifier; any other sender gets the answer back
// directly. The raw retrieved context rides along in the response text so
// downstream agents need no second retrieval.
func (k *Knowledge) handleGeneralQuery(ctx context.Context, from string, m domain.RequestResponse) {
	if !k.initialized(ctx) {
		bus.MustSend(ctx, k.bus, AddrKnowledge, from, domain.RequestResponse{
			Request:  m.Request,
			Response: notInitializedReply,
			Attempts: m.Attempts,
		})
		return
	}

	contextText := k.retrieve(ctx, m.Request)
	answer, err := k.collab.Answer(ctx, m.Request, contextText)
	if err != nil {
		log.Printf("ERROR: failed to compose answer: %v", err)
		answer = "I could not compose an answer from your course materials right now."
	}

	dest := AddrVerifier
	if from != AddrGateway {
		dest = from
	}
	bus.MustSend(ctx, k.bus, AddrKnowledge, dest, domain.RequestResponse{
		Request:  m.Request,
		Response: answer + "\n\nContext: " + contextText,
		Attempts: m.Attempts,
	})
}

// handleContextQuery serves the problem agent's context-only request; the
// reply goes back to the sender, not to the verifier.
func (k *Knowledge) handleContextQuery(ctx context.Context, from string, m domain.QueryRequest) {
	if !k.initialized(ctx) {
		bus.MustSend(ctx, k.bus, AddrKnowledge, from, domain.RequestResponse{
			Request:  m.Query,
			Response: notInitializedReply,
			Attempts: m.Attempts,
		})
		return
	}

	contextText := k.retrieve(ctx, m.Query)
	if contextText == "" {
		// an empty response would read as forward-phase traffic
		contextText = "No relevant course materials found."
	}
	bus.MustSend(ctx, k.bus, AddrKnowledge, from, domain.RequestResponse{
		Request:  m.Query,
		Response: contextText,
		Attempts: m.Attempts,
	})
}

func (k *Knowledge) retrieve(ctx context.Context, query string) string {
	chunks, err := k.index.Search(ctx, query, k.cfg.TopK)
	if err != nil {
		log.Printf("ERROR: retrieval failed for query: %v", err)
		return ""
	}
	return rag.ContextText(chunks)
}
