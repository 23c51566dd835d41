package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/macrofleet/fieldops/internal/engine"
	"github.com/macrofleet/fieldops/internal/storage"
	"github.com/macrofleet/fieldops/internal/transport"
)

// Handler exposes the push-mode webhook and the small ops surface.
type Handler struct {
	eng         *engine.Engine
	directory   storage.ActorDirectory
	linkCodeTTL time.Duration
	log         *zap.Logger
}

func NewHTTPHandler(eng *engine.Engine, directory storage.ActorDirectory, linkCodeTTL time.Duration, log *zap.Logger) http.Handler {
	h := &Handler{
		eng:         eng,
		directory:   directory,
		linkCodeTTL: linkCodeTTL,
		log:         log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/webhook", h.handleWebhook)
	mux.HandleFunc("/admin/link-code", h.handleLinkCode)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleWebhook receives one chat event per call. The chat network gets a
// fast 2xx no matter what; processing failures are logged, never surfaced
// as transport errors. The 2xx is flushed before processing, but the event
// itself is handled on this goroutine: handing it off to a fresh goroutine
// would let two quick messages from the same chat race to the session lock
// and be applied out of arrival order.
func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(h.log, w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	var ev transport.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(h.log, w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if ev.ChatID == "" {
		writeError(h.log, w, http.StatusBadRequest, "chat_id required")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	h.eng.HandleEvent(context.Background(), ev)
}

// handleLinkCode issues a fresh linking code for an actor (admin action:
// codes are generated on demand and handed to the field worker out of band).
func (h *Handler) handleLinkCode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(h.log, w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	var req struct {
		ActorID string `json:"actor_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(h.log, w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if req.ActorID == "" {
		writeError(h.log, w, http.StatusBadRequest, "actor_id required")
		return
	}

	code, expiry, err := h.directory.GenerateLinkCode(r.Context(), req.ActorID, h.linkCodeTTL)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(h.log, w, http.StatusNotFound, "actor not found")
		return
	}
	if err != nil {
		h.log.Error("link code generation failed", zap.String("actor", req.ActorID), zap.Error(err))
		writeError(h.log, w, http.StatusInternalServerError, "failed to generate link code")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"actor_id":   req.ActorID,
		"code":       code,
		"expires_at": expiry,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(log *zap.Logger, w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
	log.Debug("http error", zap.Int("status", status), zap.String("msg", msg))
}
