package actor

import (
	"context"
	"log"

	"github.com/pnguyenfetchai/study-assistant/internal/bus"
	"github.com/pnguyenfetchai/study-assistant/internal/collab"
	"github.com/pnguyenfetchai/study-assistant/internal/domain"
)

const improveSuffix = "\n\nPlease improve this response."

// Verifier judges candidate answers. Correct answers flow unchanged to
// tool dispatch; incorrect ones are re-submitted to the problem agent with
// an improvement instruction until the attempt cap is reached, after which
// the best-effort answer is forwarded anyway.
type Verifier struct {
	bus         bus.Bus
	collab      *collab.Collaborators
	maxAttempts int
}

// NewVerifier wires the verifier agent. maxAttempts bounds the total
// number of solution generations for one request.
func NewVerifier(b bus.Bus, c *collab.Collaborators, maxAttempts int) *Verifier {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Verifier{bus: b, collab: c, maxAttempts: maxAttempts}
}

// Address implements bus.Handler.
func (v *Verifier) Address() string { return AddrVerifier }

// HandleFrame implements bus.Handler.
func (v *Verifier) HandleFrame(ctx context.Context, frame domain.Frame) {
	msg, ok := decode(frame)
	if !ok {
		return
	}

	m, ok2 := msg.(domain.RequestResponse)
	if !ok2 || !m.IsAnswer() {
		log.Printf("WARN: verifier ignoring %s frame from %s", frame.Kind, frame.From)
		return
	}

	if v.collab.VerifyAnswer(ctx, m.Request, m.Response) {
		bus.MustSend(ctx, v.bus, AddrVerifier, AddrToolDispatch, m)
		return
	}

	if m.Attempts >= v.maxAttempts-1 {
		log.Printf("WARN: answer still judged incorrect after %d attempts, forwarding best effort", m.Attempts+1)
		bus.MustSend(ctx, v.bus, AddrVerifier, AddrToolDispatch, m)
		return
	}

	bus.MustSend(ctx, v.bus, AddrVerifier, AddrProblem, domain.QueryRequest{
		Query:    m.Request + improveSuffix,
		Attempts: m.Attempts + 1,
	})
}
