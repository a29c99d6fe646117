package http

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"dealdesk/domain"
	"dealdesk/repository"
	"dealdesk/service"
)

type ChatHandler struct {
	chat   *service.ChatService
	logger *zap.Logger
}

func NewChatHandler(chat *service.ChatService, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{chat: chat, logger: logger}
}

type sessionResponse struct {
	SessionID string `json:"sessionId"`
}

func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req domain.ChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	reply, err := h.chat.ProcessMessage(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, reply)
}

func (h *ChatHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sess, err := h.chat.CreateSession(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, h.logger, http.StatusCreated, sessionResponse{SessionID: sess.ID.String()})
}

// ResetSession clears a conversation. The session id is kept.
func (h *ChatHandler) ResetSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req sessionResponse
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	id, err := uuid.Parse(req.SessionID)
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}

	sess, err := h.chat.ResetSession(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, sessionResponse{SessionID: sess.ID.String()})
}

func (h *ChatHandler) writeError(w http.ResponseWriter, err error) {
	switch {
	case eris.Is(err, service.ErrEmptyMessage):
		http.Error(w, "message is required", http.StatusBadRequest)
	case eris.Is(err, service.ErrInvalidSession):
		http.Error(w, "invalid session id", http.StatusBadRequest)
	case eris.Is(err, repository.ErrSessionNotFound):
		http.Error(w, "session not found", http.StatusNotFound)
	case eris.Is(err, service.ErrExchangePending):
		http.Error(w, "a message is already being processed for this session", http.StatusConflict)
	default:
		h.logger.Error("chat request failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}
