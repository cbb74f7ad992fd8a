package ingress

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/pnguyenfetchai/study-assistant/internal/actor"
	"github.com/pnguyenfetchai/study-assistant/internal/bus"
	"github.com/pnguyenfetchai/study-assistant/internal/domain"
	"github.com/pnguyenfetchai/study-assistant/internal/store"
)

const pollInterval = 100 * time.Millisecond

// API exposes the HTTP boundary of the mesh.
type API struct {
	bus     bus.Bus
	store   store.Store
	hub     *Hub
	timeout time.Duration
}

// NewAPI wires the HTTP handlers.
func NewAPI(b bus.Bus, st store.Store, hub *Hub, timeout time.Duration) *API {
	return &API{bus: b, store: st, hub: hub, timeout: timeout}
}

// RegisterRoutes mounts the API on an echo instance.
func (a *API) RegisterRoutes(e *echo.Echo, ws *WSServer) {
	e.GET("/health", a.handleHealth)
	e.POST("/submit", a.handleSubmit)
	e.POST("/api/canvas-token", a.handleCanvasToken)
	if ws != nil {
		e.GET("/ws", ws.HandleWebSocket)
	}
}

// userRelay is the per-conversation bus endpoint that represents the end
// user: it receives the gateway's acks and final chat, pushes results to
// WebSocket subscribers and hands replies to the waiting HTTP handler.
type userRelay struct {
	addr    string
	hub     *Hub
	replies chan domain.RequestResponse
}

func newUserRelay(addr string, hub *Hub) *userRelay {
	return &userRelay{addr: addr, hub: hub, replies: make(chan domain.RequestResponse, 4)}
}

func (u *userRelay) Address() string { return u.addr }

func (u *userRelay) HandleFrame(ctx context.Context, frame domain.Frame) {
	msg, err := frame.Decode()
	if err != nil {
		log.Printf("ERROR: relay %s dropping malformed %s frame: %v", u.addr, frame.Kind, err)
		return
	}
	switch m := msg.(type) {
	case domain.ChatMessage:
		if u.hub != nil {
			u.hub.BroadcastJSON(u.addr, map[string]interface{}{
				"type": "result",
				"user": u.addr,
				"text": m.Text(),
			})
		}
	case domain.RequestResponse:
		if m.IsAnswer() {
			select {
			case u.replies <- m:
			default:
			}
		}
	case domain.ChatAcknowledgement:
		// ignored; the HTTP caller is already waiting on the result store
	}
}

// SubmitRequest is the body of POST /submit. User is optional; when set,
// WebSocket clients subscribed to that address also get the result pushed.
type SubmitRequest struct {
	Request string `json:"request"`
	User    string `json:"user,omitempty"`
}

func (a *API) handleSubmit(c echo.Context) error {
	var req SubmitRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if strings.TrimSpace(req.Request) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "request is required"})
	}

	userAddr := req.User
	if userAddr == "" {
		userAddr = "user://" + uuid.New().String()[:8]
	}

	relay := newUserRelay(userAddr, a.hub)
	if err := a.bus.Register(relay); err != nil {
		return c.JSON(http.StatusConflict, map[string]string{"error": "a request is already in flight for this user"})
	}
	defer func() {
		if err := a.bus.Unregister(userAddr); err != nil {
			log.Printf("WARN: failed to unregister %s: %v", userAddr, err)
		}
	}()

	start := time.Now()
	// detached from the HTTP request: abandoning the poll does not cancel
	// the in-flight chain
	ctx := context.Background()
	if err := bus.SendMessage(ctx, a.bus, userAddr, actor.AddrGateway, domain.NewTextChat(req.Request, false)); err != nil {
		log.Printf("ERROR: failed to submit request for %s: %v", userAddr, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to dispatch request"})
	}

	result := a.pollResult(ctx, userAddr, start)
	if result == nil {
		return c.JSON(http.StatusGatewayTimeout, map[string]string{"error": "timed out waiting for an answer"})
	}

	if result.Kind == domain.ResultKindImage {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"user":         userAddr,
			"image_data":   result.Data,
			"content_type": result.ContentType,
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"user":     userAddr,
		"response": result.Data,
	})
}

func (a *API) pollResult(ctx context.Context, userAddr string, after time.Time) *domain.Result {
	deadline := time.After(a.timeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r, err := a.store.LatestResult(ctx, userAddr, after)
			if err != nil {
				log.Printf("ERROR: failed to poll result for %s: %v", userAddr, err)
				continue
			}
			if r != nil {
				return r
			}
		case <-deadline:
			return nil
		}
	}
}

// CanvasTokenRequest is the body of POST /api/canvas-token.
type CanvasTokenRequest struct {
	Token  string `json:"token"`
	School string `json:"school"`
}

func (a *API) handleCanvasToken(c echo.Context) error {
	var req CanvasTokenRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	req.Token = strings.TrimSpace(req.Token)
	req.School = strings.TrimSpace(req.School)
	if req.Token == "" || req.School == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "token and school are required"})
	}

	ctx := context.Background()
	if err := a.store.PutSlot(ctx, &domain.SessionSlot{
		Agent:      actor.AddrGateway,
		Key:        actor.GlobalCredKey,
		CredToken:  req.Token,
		CredDomain: req.School,
		UpdatedAt:  time.Now(),
	}); err != nil {
		log.Printf("ERROR: failed to persist credentials: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to persist credentials"})
	}

	relay := newUserRelay("api://"+uuid.New().String()[:8], a.hub)
	if err := a.bus.Register(relay); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to register for the init reply"})
	}
	defer func() {
		if err := a.bus.Unregister(relay.addr); err != nil {
			log.Printf("WARN: failed to unregister %s: %v", relay.addr, err)
		}
	}()

	if err := bus.SendMessage(ctx, a.bus, relay.addr, actor.AddrKnowledge, domain.RequestResponse{
		Request: domain.InitRAGPrefix + req.Token + "," + req.School,
	}); err != nil {
		log.Printf("ERROR: failed to dispatch index initialization: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to start indexing"})
	}

	select {
	case reply := <-relay.replies:
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "message": reply.Response})
	case <-time.After(a.timeout):
		return c.JSON(http.StatusGatewayTimeout, map[string]string{"error": "timed out waiting for indexing to finish"})
	}
}

func (a *API) handleHealth(c echo.Context) error {
	resp := map[string]interface{}{"status": "healthy"}
	if a.hub != nil {
		resp["connections"] = a.hub.ConnectionCount()
	}
	return c.JSON(http.StatusOK, resp)
}
