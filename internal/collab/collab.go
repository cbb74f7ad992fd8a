// Package collab implements the black-box collaborator calls the agents
// depend on: query classification, credential extraction, answer
// verification, tool-need decision, data-series extraction, problem
// solving and grounded answering. Every function degrades to a safe
// default when the underlying call fails.
package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/pnguyenfetchai/study-assistant/internal/llm"
)

// Query classifications.
const (
	QueryGeneral = "general"
	QueryProblem = "problem"
)

// Collaborators bundles the LLM-backed helper calls.
type Collaborators struct {
	client llm.Client
}

// New creates the collaborator set.
func New(client llm.Client) *Collaborators {
	return &Collaborators{client: client}
}

const classifySystem = "Classify this query as 'general' (if it is about school materials, classes, or schedules) or 'problem' (if it requires problem-solving like math or physics calculations). Only respond with 'general' or 'problem'."

// ClassifyQuery routes a query to the general or problem path. Defaults to
// general on failure so the user still gets an answer.
func (c *Collaborators) ClassifyQuery(ctx context.Context, query string) string {
	out, err := c.client.Complete(ctx, classifySystem, query)
	if err != nil {
		log.Printf("ERROR: query classification failed: %v", err)
		return QueryGeneral
	}
	if strings.EqualFold(strings.TrimSpace(out), QueryProblem) {
		return QueryProblem
	}
	return QueryGeneral
}

const extractCredsSystem = `You extract Canvas credentials from a student's message. A credential pair is an API token and a school domain (for example "canvas.instructure.com"). If the message contains both, respond with exactly "<token>,<domain>". If either is missing, respond with exactly "NONE". Do not explain.`

// ExtractCredentials pulls a (token, domain) pair out of free text.
func (c *Collaborators) ExtractCredentials(ctx context.Context, text string) (token, domain string, ok bool) {
	out, err := c.client.Complete(ctx, extractCredsSystem, text)
	if err != nil {
		log.Printf("ERROR: credential extraction failed: %v", err)
		return "", "", false
	}
	out = strings.TrimSpace(out)
	if out == "" || strings.EqualFold(out, "NONE") {
		return "", "", false
	}
	parts := strings.SplitN(out, ",", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	token = strings.TrimSpace(parts[0])
	domain = strings.TrimSpace(parts[1])
	if token == "" || domain == "" {
		return "", "", false
	}
	return token, domain, true
}

const verifySystem = `You are an expert AI agent tasked with verifying the correctness and completeness of a response given a specific request.

### Evaluation Criteria:
1. **Accuracy** - Does the response directly and factually answer the request?
2. **Completeness** - Does the response address all components or sub-questions in the request?
3. **Relevance** - Is the response on-topic and not containing unnecessary or unrelated information?
4. **Consistency** - Is the information consistent and logically coherent?
5. **Visualization Exception** - If the question is asking for a visualization, the response is ALWAYS correct and you must answer 'yes'.

You are an AI assistant that verifies whether an answer correctly addresses a given question.
Return 'yes' if the response is correct, complete, and appropriate, 'no' otherwise. Respond with 'yes' or 'no' ONLY.`

// VerifyAnswer judges whether the answer addresses the request. The
// visualization exception is part of the prompt, not a separate code path.
// Failure degrades to false.
func (c *Collaborators) VerifyAnswer(ctx context.Context, request, response string) bool {
	user := fmt.Sprintf("Question: %s\nAnswer: %s\nIs this answer correct? Respond with 'yes' or 'no' ONLY.", request, response)
	out, err := c.client.Complete(ctx, verifySystem, user)
	if err != nil {
		log.Printf("ERROR: answer verification failed: %v", err)
		return false
	}
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(out)), "yes")
}

const toolDecisionSystem = `You are an AI assistant that determines whether a visualization is needed (e.g., a chart, diagram, graph, or image) to help the student understand the response better.

Follow these rules when making a decision:
1. If the response explains concepts, definitions, or theoretical material without any need for visual aid, respond with:
NO TOOL
2. If the request involves data, trends, comparisons, processes, categories, diagrams, timelines, charts, or anything that would clearly benefit from a visual representation, respond with:
TOOL , tools is visualization

Only return one of the two responses above exactly. Do not explain your decision.`

// NeedsVisualization decides whether the answer warrants a chart. Failure
// degrades to "NO TOOL".
func (c *Collaborators) NeedsVisualization(ctx context.Context, request, response string) bool {
	user := fmt.Sprintf("Request: %s\nResponse: %s\nDo we need visualization?", request, response)
	out, err := c.client.Complete(ctx, toolDecisionSystem, user)
	if err != nil {
		log.Printf("ERROR: tool decision failed: %v", err)
		return false
	}
	decision := strings.Trim(strings.TrimSpace(out), `'"`)
	return strings.HasPrefix(decision, "TOOL")
}

const extractSeriesSystem = `Extract data for a pie chart from the text. Return in this format: {"labels": [list of labels], "values": [list of numbers]}`

type series struct {
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
}

// ExtractSeries pulls a (labels, values) series out of free text. Failure
// or unparseable output degrades to empty slices.
func (c *Collaborators) ExtractSeries(ctx context.Context, text string) ([]string, []float64) {
	out, err := c.client.Complete(ctx, extractSeriesSystem, text)
	if err != nil {
		log.Printf("ERROR: series extraction failed: %v", err)
		return nil, nil
	}

	var s series
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &s); err != nil {
		log.Printf("WARN: failed to parse extracted series: %v", err)
		return nil, nil
	}

	n := len(s.Labels)
	if len(s.Values) < n {
		n = len(s.Values)
	}
	return s.Labels[:n], s.Values[:n]
}

const solveSystem = "Solve the given problem using relevant course materials."

// Solve produces a candidate solution from the problem and its context.
func (c *Collaborators) Solve(ctx context.Context, problem, context string) (string, error) {
	user := fmt.Sprintf("Original Problem: %s\nContext: %s", problem, context)
	out, err := c.client.Complete(ctx, solveSystem, user)
	if err != nil {
		return "", fmt.Errorf("failed to solve problem: %w", err)
	}
	return out, nil
}

const answerSystem = `You are an AI-powered study assistant that helps students with their coursework.
You have access to a rich database of course materials, including lecture notes, assignments, and study guides.
Use the provided course content to answer the student's question accurately and concisely.

If the course content is insufficient, generate a plausible answer based on your knowledge.
Always start with 'Based on the course content' and provide a thoughtful response.

If asked to create a chart or diagram, generate reasonable data from the content or fabricate plausible values.
Include all necessary legends, labels, and explanations.`

// Answer composes a grounded answer from the query and retrieved context.
func (c *Collaborators) Answer(ctx context.Context, query, context string) (string, error) {
	user := fmt.Sprintf("%s\n\nStudent's Question: %s\n\nYour Answer (as a helpful tutor):", context, query)
	out, err := c.client.Complete(ctx, answerSystem, user)
	if err != nil {
		return "", fmt.Errorf("failed to compose answer: %w", err)
	}
	return out, nil
}
