package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/macrofleet/fieldops/internal/engine"
	"github.com/macrofleet/fieldops/internal/models"
	"github.com/macrofleet/fieldops/internal/session"
	"github.com/macrofleet/fieldops/internal/storage"
	"github.com/macrofleet/fieldops/internal/transport"
)

type discardSender struct{}

func (discardSender) Send(context.Context, transport.Message) error { return nil }

func newTestHandler(t *testing.T) (http.Handler, *storage.BadgerStore) {
	t.Helper()
	st, err := storage.NewBadgerStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	sessions := session.NewManager(30 * time.Minute)
	metrics := engine.NewMetrics(prometheus.NewRegistry(), sessions)
	eng := engine.New(st, sessions, discardSender{}, zap.NewNop(), metrics)
	return NewHTTPHandler(eng, st, 24*time.Hour, zap.NewNop()), st
}

func TestHealthz(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestWebhookAcceptsEvent(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"chat_id":"chat-1","text":"hello"}`)
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook", body))

	assert.Equal(t, http.StatusAccepted, rec.Code)
}

type recordingSender struct {
	mu   sync.Mutex
	msgs []transport.Message
}

func (s *recordingSender) Send(_ context.Context, m transport.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, m)
	return nil
}

func (s *recordingSender) texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.msgs))
	for i, m := range s.msgs {
		out[i] = m.Text
	}
	return out
}

// Webhook calls are processed before the handler returns, so consecutive
// events from one chat land in the session in arrival order.
func TestWebhookAppliesEventsInArrivalOrder(t *testing.T) {
	st, err := storage.NewBadgerStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.SaveActor(context.Background(), &models.Actor{
		ID:             "TEC-1",
		Kind:           models.ActorTechnician,
		Name:           "Tania",
		Document:       "90817245",
		LinkCode:       "12345678",
		LinkCodeExpiry: time.Now().UTC().Add(time.Hour),
	}))

	sessions := session.NewManager(30 * time.Minute)
	sender := &recordingSender{}
	eng := engine.New(st, sessions, sender, zap.NewNop(), nil)
	h := NewHTTPHandler(eng, st, 24*time.Hour, zap.NewNop())

	post := func(body string) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body)))
		require.Equal(t, http.StatusAccepted, rec.Code)
	}

	post(`{"chat_id":"chat-1","text":"hello"}`)
	post(`{"chat_id":"chat-1","text":"12345678"}`)
	post(`{"chat_id":"chat-1","text":"45"}`)

	texts := sender.texts()
	require.Len(t, texts, 3)
	assert.Contains(t, texts[0], "8-digit linking code")
	assert.Contains(t, texts[1], "last two digits")
	assert.Contains(t, texts[2], "linked")

	a, err := st.GetActor(context.Background(), "TEC-1")
	require.NoError(t, err)
	assert.Equal(t, "chat-1", a.ChatID)
}

func TestWebhookValidation(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhook", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("{not json")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{"text":"no chat"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLinkCodeEndpoint(t *testing.T) {
	h, st := newTestHandler(t)
	require.NoError(t, st.SaveActor(context.Background(), &models.Actor{
		ID:       "OP-7",
		Kind:     models.ActorOperator,
		Name:     "Marta",
		Document: "44556688",
	}))

	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"actor_id":"OP-7"}`)
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/link-code", body))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		ActorID   string    `json:"actor_id"`
		Code      string    `json:"code"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "OP-7", resp.ActorID)
	assert.Regexp(t, regexp.MustCompile(`^\d{8}$`), resp.Code)
	assert.True(t, resp.ExpiresAt.After(time.Now()))

	a, err := st.GetActor(context.Background(), "OP-7")
	require.NoError(t, err)
	assert.Equal(t, resp.Code, a.LinkCode)
}

func TestLinkCodeUnknownActor(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/link-code", strings.NewReader(`{"actor_id":"ghost"}`)))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
