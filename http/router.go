package http

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Handlers struct {
	Match    *MatchHandler
	Chat     *ChatHandler
	Insights *InsightsHandler
	Health   *HealthHandler
}

// NewRouter mounts the API. Every /api route except health is rate limited.
func NewRouter(h Handlers, limiter *RateLimiter) http.Handler {
	limited := func(fn http.HandlerFunc) http.Handler {
		return RateLimitMiddleware(limiter, fn)
	}

	mux := http.NewServeMux()
	mux.Handle("/api/match-lenders", limited(h.Match.MatchLenders))
	mux.Handle("/api/sessions", limited(h.Chat.CreateSession))
	mux.Handle("/api/sessions/reset", limited(h.Chat.ResetSession))
	mux.Handle("/api/chat", limited(h.Chat.Chat))
	mux.Handle("/api/property-insights", limited(h.Insights.PropertyInsights))
	mux.HandleFunc("/api/health", h.Health.Health)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}
