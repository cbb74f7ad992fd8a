package actor

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/pnguyenfetchai/study-assistant/internal/bus"
	"github.com/pnguyenfetchai/study-assistant/internal/collab"
	"github.com/pnguyenfetchai/study-assistant/internal/domain"
	"github.com/pnguyenfetchai/study-assistant/internal/store"
)

// Problem orchestrates a two-hop solve: it asks the knowledge agent for
// supporting context, then synthesizes a solution from (problem, context)
// and forwards it to the verifier. Pending problems live in a single slot
// per requesting peer; a second problem from the same peer before the
// first resolves overwrites it.
type Problem struct {
	bus    bus.Bus
	store  store.Store
	collab *collab.Collaborators
}

// NewProblem wires the problem agent.
func NewProblem(b bus.Bus, s store.Store, c *collab.Collaborators) *Problem {
	return &Problem{bus: b, store: s, collab: c}
}

// Address implements bus.Handler.
func (p *Problem) Address() string { return AddrProblem }

// HandleFrame implements bus.Handler.
func (p *Problem) HandleFrame(ctx context.Context, frame domain.Frame) {
	msg, ok := decode(frame)
	if !ok {
		return
	}

	switch m := msg.(type) {
	case domain.QueryRequest:
		p.handleProblem(ctx, frame.From, m)
	case domain.RequestResponse:
		if !m.IsAnswer() {
			log.Printf("WARN: problem agent received forward-phase request from %s, ignoring", frame.From)
			return
		}
		p.handleContextReply(ctx, m)
	default:
		log.Printf("WARN: problem agent ignoring %s frame from %s", frame.Kind, frame.From)
	}
}

func (p *Problem) handleProblem(ctx context.Context, from string, m domain.QueryRequest) {
	now := time.Now()
	if err := p.store.PutSlot(ctx, &domain.SessionSlot{
		Agent:       AddrProblem,
		Key:         from,
		Sender:      from,
		LastRequest: m.Query,
		UpdatedAt:   now,
	}); err != nil {
		log.Printf("ERROR: failed to store pending problem: %v", err)
		return
	}
	// Pointer to the peer whose context reply is awaited next.
	if err := p.store.PutSlot(ctx, &domain.SessionSlot{
		Agent:     AddrProblem,
		Key:       domain.SlotCurrent,
		Sender:    from,
		UpdatedAt: now,
	}); err != nil {
		log.Printf("ERROR: failed to store current problem peer: %v", err)
		return
	}

	contextRequest := fmt.Sprintf("Provide relevant materials for solving: %s. Do not solve; only supply context.", m.Query)
	bus.MustSend(ctx, p.bus, AddrProblem, AddrKnowledge, domain.QueryRequest{
		Query:    contextRequest,
		Attempts: m.Attempts,
	})
}

func (p *Problem) handleContextReply(ctx context.Context, m domain.RequestResponse) {
	current, err := p.store.GetSlot(ctx, AddrProblem, domain.SlotCurrent)
	if err != nil || current == nil {
		log.Printf("WARN: context reply with no pending problem, dropping")
		return
	}
	pending, err := p.store.GetSlot(ctx, AddrProblem, current.Sender)
	if err != nil || pending == nil {
		log.Printf("WARN: context reply for unknown peer %s, dropping", current.Sender)
		return
	}

	solution, err := p.collab.Solve(ctx, pending.LastRequest, m.Response)
	if err != nil {
		log.Printf("ERROR: solve failed: %v", err)
		solution = "I could not work out a solution for this problem right now."
	}

	bus.MustSend(ctx, p.bus, AddrProblem, AddrVerifier, domain.RequestResponse{
		Request:  pending.LastRequest,
		Response: solution,
		Attempts: m.Attempts,
	})

	if err := p.store.ClearSlot(ctx, AddrProblem, current.Sender); err != nil {
		log.Printf("ERROR: failed to clear pending problem: %v", err)
	}
	if err := p.store.ClearSlot(ctx, AddrProblem, domain.SlotCurrent); err != nil {
		log.Printf("ERROR: failed to clear current problem peer: %v", err)
	}
}
