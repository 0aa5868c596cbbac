// Package transport exposes the conversational core over HTTP: the chat
// platform's webhook relay posts one inbound update and receives the
// replies to render.
package transport

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/avolkov/eventbot/internal/bot"
	"github.com/avolkov/eventbot/internal/model"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Handler holds the webhook endpoints.
type Handler struct {
	router *bot.Router
}

// NewHandler constructs a Handler.
func NewHandler(router *bot.Router) *Handler {
	return &Handler{router: router}
}

// Routes builds the chi router for the webhook surface.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)

	r.Get("/health", HealthCheck)
	r.Post("/updates", h.HandleUpdate)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// updateResponse is the webhook reply envelope.
type updateResponse struct {
	Replies []bot.Reply `json:"replies"`
}

// HandleUpdate handles POST /updates.
// The body carries one inbound update; the response carries the replies.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var upd bot.Update
	if err := decodeJSON(r, &upd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if upd.Sender == 0 {
		writeError(w, http.StatusBadRequest, "sender is required")
		return
	}

	replies, err := h.router.Handle(r.Context(), upd)
	if err != nil {
		// Store failures abort this request only; the process keeps serving.
		log.Printf("handle update from %d: %v", upd.Sender, err)
		writeError(w, http.StatusInternalServerError, "temporarily unavailable, try again")
		return
	}
	writeJSON(w, http.StatusOK, updateResponse{Replies: replies})
}

// HealthCheck handles GET /health.
func HealthCheck(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
