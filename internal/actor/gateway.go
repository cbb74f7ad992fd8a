package actor

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/pnguyenfetchai/study-assistant/internal/bus"
	"github.com/pnguyenfetchai/study-assistant/internal/collab"
	"github.com/pnguyenfetchai/study-assistant/internal/domain"
	"github.com/pnguyenfetchai/study-assistant/internal/store"
)

const credentialPrompt = "Please provide your Canvas API token and school domain (for example: 1234~abcd,canvas.instructure.com) so I can access your course materials."

// GlobalCredKey is the slot key for deployment-wide credentials set through
// the credential API rather than extracted from a chat message.
const GlobalCredKey = "cred:global"

// Gateway is the entry agent. It acknowledges inbound chat, caches
// credentials per sender, classifies queries onto the general or problem
// path and delivers final answers back to whoever is waiting.
type Gateway struct {
	bus    bus.Bus
	store  store.Store
	collab *collab.Collaborators
}

// NewGateway wires the gateway agent.
func NewGateway(b bus.Bus, s store.Store, c *collab.Collaborators) *Gateway {
	return &Gateway{bus: b, store: s, collab: c}
}

// Address implements bus.Handler.
func (g *Gateway) Address() string { return AddrGateway }

// HandleFrame implements bus.Handler.
func (g *Gateway) HandleFrame(ctx context.Context, frame domain.Frame) {
	msg, ok := decode(frame)
	if !ok {
		return
	}

	switch m := msg.(type) {
	case domain.ChatMessage:
		g.handleChat(ctx, frame.From, m)
	case domain.RequestResponse:
		g.handleRequestResponse(ctx, frame.From, m)
	case domain.ImageResponse:
		g.handleImage(ctx, m)
	case domain.ChatAcknowledgement:
		// delivery confirmations need no action
	default:
		log.Printf("WARN: gateway ignoring %s frame from %s", frame.Kind, frame.From)
	}
}

func (g *Gateway) handleChat(ctx context.Context, sender string, m domain.ChatMessage) {
	// Ack before any processing so the sender gets a delivery confirmation
	// regardless of downstream latency or failure.
	bus.MustSend(ctx, g.bus, AddrGateway, sender, domain.ChatAcknowledgement{
		Timestamp:         time.Now(),
		AcknowledgedMsgID: m.MsgID,
	})

	for _, part := range m.Content {
		if part.Type == domain.ContentTypeText && strings.TrimSpace(part.Text) != "" {
			g.handleUserText(ctx, sender, m.MsgID, part.Text)
		}
	}
}

func (g *Gateway) handleUserText(ctx context.Context, sender, msgID, text string) {
	slot := &domain.SessionSlot{
		Agent:       AddrGateway,
		Key:         domain.SlotCurrent,
		Sender:      sender,
		MessageID:   msgID,
		LastRequest: text,
		UpdatedAt:   time.Now(),
	}

	cred, err := g.store.GetSlot(ctx, AddrGateway, credKey(sender))
	if err != nil {
		log.Printf("ERROR: failed to load credential cache for %s: %v", sender, err)
	}
	if cred == nil {
		if cred, err = g.store.GetSlot(ctx, AddrGateway, GlobalCredKey); err != nil {
			log.Printf("ERROR: failed to load global credentials: %v", err)
		}
	}

	if cred == nil {
		token, domainName, found := g.collab.ExtractCredentials(ctx, text)
		if !found {
			g.deliverText(ctx, sender, credentialPrompt)
			return
		}
		if err := g.store.PutSlot(ctx, &domain.SessionSlot{
			Agent:      AddrGateway,
			Key:        credKey(sender),
			Sender:     sender,
			CredToken:  token,
			CredDomain: domainName,
			UpdatedAt:  time.Now(),
		}); err != nil {
			log.Printf("ERROR: failed to cache credentials for %s: %v", sender, err)
		}

		slot.WaitingForInit = true
		if err := g.store.PutSlot(ctx, slot); err != nil {
			log.Printf("ERROR: failed to store pending session: %v", err)
		}
		bus.MustSend(ctx, g.bus, AddrGateway, AddrKnowledge, domain.RequestResponse{
			Request: domain.InitRAGPrefix + token + "," + domainName,
		})
		return
	}

	if err := g.store.PutSlot(ctx, slot); err != nil {
		log.Printf("ERROR: failed to store pending session: %v", err)
	}

	switch g.collab.ClassifyQuery(ctx, text) {
	case collab.QueryProblem:
		bus.MustSend(ctx, g.bus, AddrGateway, AddrProblem, domain.QueryRequest{Query: text})
	default:
		bus.MustSend(ctx, g.bus, AddrGateway, AddrKnowledge, domain.RequestResponse{Request: text})
	}
}

func (g *Gateway) handleRequestResponse(ctx context.Context, from string, m domain.RequestResponse) {
	if !m.IsAnswer() {
		log.Printf("WARN: gateway received forward-phase request from %s, ignoring", from)
		return
	}

	slot, err := g.store.GetSlot(ctx, AddrGateway, domain.SlotCurrent)
	if err != nil {
		log.Printf("ERROR: failed to load pending session: %v", err)
		return
	}

	// Init acknowledgment from the knowledge agent.
	if strings.HasPrefix(m.Request, domain.InitRAGPrefix) {
		if slot == nil || !slot.WaitingForInit {
			log.Printf("WARN: init acknowledgment with no session waiting for it")
			return
		}
		g.deliverText(ctx, slot.Sender, m.Response)
		g.clearPending(ctx)
		return
	}

	// The verifier hands back answers it could not place for reclassification.
	if from == AddrVerifier {
		switch g.collab.ClassifyQuery(ctx, m.Request) {
		case collab.QueryProblem:
			bus.MustSend(ctx, g.bus, AddrGateway, AddrProblem, domain.QueryRequest{Query: m.Request, Attempts: m.Attempts})
		default:
			bus.MustSend(ctx, g.bus, AddrGateway, AddrKnowledge, domain.RequestResponse{Request: m.Request, Attempts: m.Attempts})
		}
		return
	}

	if slot == nil {
		log.Printf("WARN: final answer from %s has no pending session, dropping", from)
		return
	}
	g.deliverText(ctx, slot.Sender, m.Response)
	g.clearPending(ctx)
}

func (g *Gateway) handleImage(ctx context.Context, m domain.ImageResponse) {
	slot, err := g.store.GetSlot(ctx, AddrGateway, domain.SlotCurrent)
	if err != nil {
		log.Printf("ERROR: failed to load pending session: %v", err)
		return
	}
	if slot == nil {
		log.Printf("WARN: image response has no pending session, dropping")
		return
	}

	if err := g.store.PutResult(ctx, &domain.Result{
		UserAddr:    slot.Sender,
		Kind:        domain.ResultKindImage,
		Data:        m.ImageData,
		ContentType: m.ContentType,
		CreatedAt:   time.Now(),
	}); err != nil {
		log.Printf("ERROR: failed to persist image result for %s: %v", slot.Sender, err)
	}

	text := fmt.Sprintf("Here is your visualization for: %s", m.Request)
	bus.MustSend(ctx, g.bus, AddrGateway, slot.Sender, domain.NewTextChat(text, true))
	g.clearPending(ctx)
}

// deliverText sends a closing chat message to the user and persists the
// text artifact for the ingress to poll. A failed send is logged only;
// there is no retry of the final delivery.
func (g *Gateway) deliverText(ctx context.Context, sender, text string) {
	if err := g.store.PutResult(ctx, &domain.Result{
		UserAddr:  sender,
		Kind:      domain.ResultKindText,
		Data:      text,
		CreatedAt: time.Now(),
	}); err != nil {
		log.Printf("ERROR: failed to persist result for %s: %v", sender, err)
	}
	bus.MustSend(ctx, g.bus, AddrGateway, sender, domain.NewTextChat(text, true))
}

func (g *Gateway) clearPending(ctx context.Context) {
	if err := g.store.ClearSlot(ctx, AddrGateway, domain.SlotCurrent); err != nil {
		log.Printf("ERROR: failed to clear pending session: %v", err)
	}
}

func credKey(sender string) string { return "cred:" + sender }
