// Package actor implements the six agents of the query-answering mesh:
// gateway, knowledge, problem, verifier, tool dispatch and visualization.
// Each agent owns a stable bus address and a sequential handler loop; all
// coordination happens through typed messages and per-agent session slots.
package actor

import (
	"context"
	"fmt"
	"log"

	"github.com/pnguyenfetchai/study-assistant/internal/domain"
	"github.com/pnguyenfetchai/study-assistant/internal/store"
)

// Well-known agent addresses. Stable for the lifetime of a deployment;
// end-user addresses are minted fresh per conversation by the ingress.
const (
	AddrGateway       = "agent://gateway"
	AddrKnowledge     = "agent://knowledge"
	AddrProblem       = "agent://problem"
	AddrVerifier      = "agent://verifier"
	AddrToolDispatch  = "agent://tooldispatch"
	AddrVisualization = "agent://visualization"
)

// ResetSessions clears every agent's session slots. Runs at process start:
// slots describe in-flight exchanges and credential caches from a previous
// run, and a new process owes them nothing.
func ResetSessions(ctx context.Context, s store.Store) error {
	for _, addr := range []string{
		AddrGateway, AddrKnowledge, AddrProblem,
		AddrVerifier, AddrToolDispatch, AddrVisualization,
	} {
		if err := s.ClearAgent(ctx, addr); err != nil {
			return fmt.Errorf("failed to reset sessions for %s: %w", addr, err)
		}
	}
	return nil
}

// decode unwraps a frame payload, logging instead of failing: a malformed
// frame is dropped, never crashes the handler loop.
func decode(frame domain.Frame) (interface{}, bool) {
	msg, err := frame.Decode()
	if err != nil {
		log.Printf("ERROR: dropping malformed %s frame from %s: %v", frame.Kind, frame.From, err)
		return nil, false
	}
	return msg, true
}
