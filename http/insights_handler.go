package http

import (
	"net/http"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"dealdesk/service"
)

type InsightsHandler struct {
	insights *service.InsightsService
	logger   *zap.Logger
}

func NewInsightsHandler(insights *service.InsightsService, logger *zap.Logger) *InsightsHandler {
	return &InsightsHandler{insights: insights, logger: logger}
}

// PropertyInsights passes the upstream JSON through unchanged.
func (h *InsightsHandler) PropertyInsights(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	data, err := h.insights.Fetch(r.Context(), r.URL.Query().Get("location"))
	if err != nil {
		switch {
		case eris.Is(err, service.ErrInsightsLocation):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case eris.Is(err, service.ErrInsightsDisabled):
			http.Error(w, "property insights are not configured", http.StatusServiceUnavailable)
		case eris.Is(err, service.ErrInsightsTimeout):
			http.Error(w, "property insights timed out", http.StatusGatewayTimeout)
		default:
			h.logger.Warn("property insights unavailable", zap.Error(err))
			http.Error(w, "property insights are temporarily unavailable", http.StatusBadGateway)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(data); err != nil {
		h.logger.Warn("failed to write response", zap.Error(err))
	}
}
