package http

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Toggle reports whether an optional collaborator is configured.
type Toggle interface {
	Enabled() bool
}

type HealthHandler struct {
	lenders  int
	llm      Toggle
	insights Toggle
	logger   *zap.Logger
	now      func() time.Time
}

func NewHealthHandler(lenders int, llm, insights Toggle, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{lenders: lenders, llm: llm, insights: insights, logger: logger, now: time.Now}
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Lenders   int       `json:"lenders"`
	LLM       string    `json:"llm"`
	Insights  string    `json:"insights"`
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, healthResponse{
		Status:    "OK",
		Timestamp: h.now().UTC(),
		Lenders:   h.lenders,
		LLM:       toggleStatus(h.llm),
		Insights:  toggleStatus(h.insights),
	})
}

func toggleStatus(t Toggle) string {
	if t != nil && t.Enabled() {
		return "configured"
	}
	return "disabled"
}
