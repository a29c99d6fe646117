package http

import (
	"net/http"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"dealdesk/domain"
	"dealdesk/service"
)

type MatchHandler struct {
	service *service.MatchService
	logger  *zap.Logger
}

func NewMatchHandler(service *service.MatchService, logger *zap.Logger) *MatchHandler {
	return &MatchHandler{service: service, logger: logger}
}

func (h *MatchHandler) MatchLenders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req domain.MatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.service.MatchLenders(r.Context(), req)
	if err != nil {
		if eris.Is(err, service.ErrInvalidSession) {
			http.Error(w, "invalid session id", http.StatusBadRequest)
			return
		}
		h.logger.Error("match lenders failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, result)
}
