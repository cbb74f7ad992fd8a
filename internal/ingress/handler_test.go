package ingress

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pnguyenfetchai/study-assistant/internal/actor"
	"github.com/pnguyenfetchai/study-assistant/internal/bus"
	"github.com/pnguyenfetchai/study-assistant/internal/domain"
	"github.com/pnguyenfetchai/study-assistant/internal/store"
)

// stubAgent answers any chat with a fixed text result, standing in for the
// whole mesh behind the gateway address.
type stubAgent struct {
	addr  string
	bus   bus.Bus
	store store.Store
	text  string
}

func (s *stubAgent) Address() string { return s.addr }

func (s *stubAgent) HandleFrame(ctx context.Context, frame domain.Frame) {
	msg, err := frame.Decode()
	if err != nil {
		return
	}
	switch m := msg.(type) {
	case domain.ChatMessage:
		if s.text == "" {
			return
		}
		s.store.PutResult(ctx, &domain.Result{
			UserAddr:  frame.From,
			Kind:      domain.ResultKindText,
			Data:      s.text,
			CreatedAt: time.Now(),
		})
		bus.MustSend(ctx, s.bus, s.addr, frame.From, domain.NewTextChat(s.text, true))
	case domain.RequestResponse:
		if strings.HasPrefix(m.Request, domain.InitRAGPrefix) {
			bus.MustSend(ctx, s.bus, s.addr, frame.From, domain.RequestResponse{
				Request:  m.Request,
				Response: "indexed 3 chunks",
			})
		}
	}
}

func newAPIRig(t *testing.T, answer string, timeout time.Duration) (*echo.Echo, *bus.MemoryBus, store.Store) {
	t.Helper()
	b := bus.NewMemoryBus()
	t.Cleanup(func() { b.Close() })
	st, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	require.NoError(t, b.Register(&stubAgent{addr: actor.AddrGateway, bus: b, store: st, text: answer}))
	require.NoError(t, b.Register(&stubAgent{addr: actor.AddrKnowledge, bus: b, store: st}))

	e := echo.New()
	NewAPI(b, st, nil, timeout).RegisterRoutes(e, nil)
	return e, b, st
}

func TestSubmitReturnsAnswer(t *testing.T) {
	e, _, _ := newAPIRig(t, "Based on the course content, polymorphism is dispatch by type.", 5*time.Second)

	req := httptest.NewRequest(http.MethodPost, "/submit", strings.NewReader(`{"request": "What is polymorphism?"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "polymorphism is dispatch by type")
	assert.Contains(t, rec.Body.String(), `"user"`)
}

func TestSubmitTimesOut(t *testing.T) {
	e, _, _ := newAPIRig(t, "", 300*time.Millisecond)

	req := httptest.NewRequest(http.MethodPost, "/submit", strings.NewReader(`{"request": "anyone home?"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestSubmitRejectsEmptyRequest(t *testing.T) {
	e, _, _ := newAPIRig(t, "answer", time.Second)

	req := httptest.NewRequest(http.MethodPost, "/submit", strings.NewReader(`{"request": "  "}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCanvasTokenInitializesIndex(t *testing.T) {
	e, _, st := newAPIRig(t, "answer", 5*time.Second)

	req := httptest.NewRequest(http.MethodPost, "/api/canvas-token", strings.NewReader(`{"token": "tok123", "school": "school.edu"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "indexed 3 chunks")

	cred, err := st.GetSlot(context.Background(), actor.AddrGateway, actor.GlobalCredKey)
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, "tok123", cred.CredToken)
	assert.Equal(t, "school.edu", cred.CredDomain)
}

func TestCanvasTokenRejectsMissingFields(t *testing.T) {
	e, _, _ := newAPIRig(t, "answer", time.Second)

	req := httptest.NewRequest(http.MethodPost, "/api/canvas-token", strings.NewReader(`{"token": "tok123"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	e, _, _ := newAPIRig(t, "answer", time.Second)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}
