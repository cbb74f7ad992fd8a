package actor

import (
	"context"
	"log"
	"time"

	"github.com/pnguyenfetchai/study-assistant/internal/bus"
	"github.com/pnguyenfetchai/study-assistant/internal/collab"
	"github.com/pnguyenfetchai/study-assistant/internal/domain"
	"github.com/pnguyenfetchai/study-assistant/internal/store"
	"github.com/pnguyenfetchai/study-assistant/policy"
)

const vizFailureNote = "\n\n(We were unable to generate a visualization for this response.)"

// ToolName for the chart renderer, checked against the dispatch policy.
const ToolName = "render_pie_chart"

// ToolDispatch decides whether a verified answer needs a visual artifact.
// If so it delegates to the visualization agent, gated by the tool policy;
// otherwise the answer goes straight back to the gateway.
type ToolDispatch struct {
	bus    bus.Bus
	store  store.Store
	collab *collab.Collaborators
	policy *policy.Engine
}

// NewToolDispatch wires the tool-dispatch agent.
func NewToolDispatch(b bus.Bus, s store.Store, c *collab.Collaborators, p *policy.Engine) *ToolDispatch {
	return &ToolDispatch{bus: b, store: s, collab: c, policy: p}
}

// Address implements bus.Handler.
func (t *ToolDispatch) Address() string { return AddrToolDispatch }

// HandleFrame implements bus.Handler.
func (t *ToolDispatch) HandleFrame(ctx context.Context, frame domain.Frame) {
	msg, ok := decode(frame)
	if !ok {
		return
	}

	switch m := msg.(type) {
	case domain.RequestResponse:
		if !m.IsAnswer() {
			log.Printf("WARN: tool dispatch received forward-phase request from %s, ignoring", frame.From)
			return
		}
		t.handleAnswer(ctx, m)
	case domain.ToolResponse:
		t.handleToolResponse(ctx, m)
	default:
		log.Printf("WARN: tool dispatch ignoring %s frame from %s", frame.Kind, frame.From)
	}
}

func (t *ToolDispatch) handleAnswer(ctx context.Context, m domain.RequestResponse) {
	// Remember the exchange so the eventual tool reply can be correlated.
	if err := t.store.PutSlot(ctx, &domain.SessionSlot{
		Agent:        AddrToolDispatch,
		Key:          domain.SlotCurrent,
		LastRequest:  m.Request,
		LastResponse: m.Response,
		UpdatedAt:    time.Now(),
	}); err != nil {
		log.Printf("ERROR: failed to store last exchange: %v", err)
	}

	params := map[string]interface{}{
		"data":  m.Response,
		"title": "Generated Visualization",
	}

	if t.collab.NeedsVisualization(ctx, m.Request, m.Response) && m.Response != "" {
		if t.policy != nil && !t.policy.Allow(ctx, ToolName, params) {
			log.Printf("WARN: policy blocked %s, returning text answer", ToolName)
			bus.MustSend(ctx, t.bus, AddrToolDispatch, AddrGateway, m)
			return
		}
		bus.MustSend(ctx, t.bus, AddrToolDispatch, AddrVisualization, domain.ToolRequest{Params: params})
		return
	}

	bus.MustSend(ctx, t.bus, AddrToolDispatch, AddrGateway, m)
}

func (t *ToolDispatch) handleToolResponse(ctx context.Context, m domain.ToolResponse) {
	slot, err := t.store.GetSlot(ctx, AddrToolDispatch, domain.SlotCurrent)
	if err != nil || slot == nil {
		log.Printf("WARN: tool response with no stored exchange, dropping")
		return
	}
	defer func() {
		if err := t.store.ClearSlot(ctx, AddrToolDispatch, domain.SlotCurrent); err != nil {
			log.Printf("ERROR: failed to clear last exchange: %v", err)
		}
	}()

	if m.Result == "" {
		bus.MustSend(ctx, t.bus, AddrToolDispatch, AddrGateway, domain.RequestResponse{
			Request:  slot.LastRequest,
			Response: slot.LastResponse + vizFailureNote,
		})
		return
	}

	bus.MustSend(ctx, t.bus, AddrToolDispatch, AddrGateway, domain.ImageResponse{
		Request:     slot.LastRequest,
		ImageData:   m.Result,
		ImageType:   "png",
		ContentType: "image/png",
	})
}
