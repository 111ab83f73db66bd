package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/RichardoC/deeptok/internal/conversation"
	"github.com/RichardoC/deeptok/internal/identity"
	"github.com/RichardoC/deeptok/internal/render"
)

// Chat is the part of the conversation service the HTTP surface needs.
type Chat interface {
	Submit(ctx context.Context, who, input string) (conversation.Turn, error)
	History(ctx context.Context, who string) (render.View, error)
	Clear(ctx context.Context)
	Login(ctx context.Context, name string) (string, error)
	Identity(ctx context.Context) (string, bool, error)
	ChangeName(ctx context.Context) error
}

type Handler struct {
	chat   Chat
	logger *zap.Logger
}

func NewHandler(chat Chat, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{chat: chat, logger: logger}
}

type MessageRequest struct {
	Text string `json:"text"`
}

type LoginRequest struct {
	Name string `json:"name"`
}

type SessionResponse struct {
	Username string `json:"username"`
	LoggedIn bool   `json:"loggedIn"`
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/session", h.GetSession)
	r.Post("/login", h.Login)
	r.Post("/logout", h.Logout)
	r.Get("/messages", h.GetMessages)
	r.Post("/messages", h.HandleMessage)
	r.Delete("/messages", h.ClearMessages)
}

// who resolves the name user messages are labelled with for this request.
func (h *Handler) who(ctx context.Context) (string, bool) {
	name, ok, err := h.chat.Identity(ctx)
	if err != nil {
		h.logger.Warn("Failed to read identity", zap.Error(err))
		return identity.DefaultName, false
	}
	return identity.DisplayName(name, ok), ok
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	name, ok := h.who(r.Context())
	respondJSON(w, http.StatusOK, SessionResponse{Username: name, LoggedIn: ok})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	name, err := h.chat.Login(r.Context(), req.Name)
	if errors.Is(err, conversation.ErrEmptyName) {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("Failed to save identity", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondJSON(w, http.StatusOK, SessionResponse{Username: name, LoggedIn: true})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.chat.ChangeName(r.Context()); err != nil {
		h.logger.Error("Failed to clear identity", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	who, _ := h.who(r.Context())
	view, err := h.chat.History(r.Context(), who)
	if errors.Is(err, conversation.ErrUnavailable) {
		respondError(w, http.StatusServiceUnavailable, conversation.ErrUnavailable.Error())
		return
	}
	if err != nil {
		h.logger.Error("Failed to get messages", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.logger.Debug("Retrieved messages",
		zap.Int("count", len(view.Items)),
		zap.String("path", r.URL.Path))
	respondJSON(w, http.StatusOK, view)
}

func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	who, _ := h.who(r.Context())
	turn, err := h.chat.Submit(r.Context(), who, req.Text)
	switch {
	case errors.Is(err, conversation.ErrEmptyInput):
		w.WriteHeader(http.StatusNoContent)
		return
	case errors.Is(err, conversation.ErrUnavailable):
		respondError(w, http.StatusServiceUnavailable, conversation.ErrUnavailable.Error())
		return
	case err != nil:
		h.logger.Error("Failed to save user message", zap.Error(err))
		respondError(w, http.StatusInternalServerError, conversation.NoticeWriteFailed)
		return
	}

	respondJSON(w, http.StatusAccepted, turn)
}

// ClearMessages wipes history and identity. The browser asks for
// confirmation first and passes confirm=true.
func (h *Handler) ClearMessages(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("confirm") != "true" {
		respondError(w, http.StatusBadRequest, "confirmation required")
		return
	}
	h.chat.Clear(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
