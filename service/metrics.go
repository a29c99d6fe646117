package service

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// scoringRequestsTotal counts scoring passes.
	// Labels: outcome (matched, more_info, cached)
	scoringRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dealdesk",
		Subsystem: "scoring",
		Name:      "requests_total",
		Help:      "Scoring requests by outcome",
	}, []string{"outcome"})

	scoringDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "dealdesk",
		Subsystem: "scoring",
		Name:      "duration_seconds",
		Help:      "Time spent scoring the catalog for one profile",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	})

	// chatMessagesTotal counts processed chat messages.
	// Labels: changes, hypothetical (true, false)
	chatMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dealdesk",
		Subsystem: "chat",
		Name:      "messages_total",
		Help:      "Chat messages by whether they changed parameters",
	}, []string{"changes", "hypothetical"})

	// collaboratorCallsTotal counts outbound calls.
	// Labels: collaborator (llm, insights), result (ok, timeout, auth, unavailable, error, stale)
	collaboratorCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dealdesk",
		Subsystem: "collaborator",
		Name:      "calls_total",
		Help:      "Outbound collaborator calls by result",
	}, []string{"collaborator", "result"})
)

func recordChatMessage(changes, hypothetical bool) {
	chatMessagesTotal.WithLabelValues(strconv.FormatBool(changes), strconv.FormatBool(hypothetical)).Inc()
}

func recordCollaborator(collaborator, result string) {
	collaboratorCallsTotal.WithLabelValues(collaborator, result).Inc()
}
