package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ParameterChangeSet is what the extractor found in one chat message.
type ParameterChangeSet struct {
	HasChanges           bool     `json:"hasChanges"`
	IsHypothetical       bool     `json:"isHypothetical"`
	CreditScore          *float64 `json:"creditScore"`
	DownPaymentPercent   *float64 `json:"downPaymentPercent"`
	PropertyValue        *float64 `json:"propertyValue"`
	PropertyType         *string  `json:"propertyType"`
	InvestmentExperience *string  `json:"investmentExperience"`
	PropertyLocation     *string  `json:"propertyLocation"`
}

type ParameterEntry struct {
	Parameter    Field     `json:"parameter"`
	Value        any       `json:"value"`
	Timestamp    time.Time `json:"timestamp"`
	IsCorrection bool      `json:"isCorrection"`
}

type Correction struct {
	Parameter Field     `json:"parameter"`
	OldValue  any       `json:"oldValue"`
	NewValue  any       `json:"newValue"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionState accumulates what the user revealed during one conversation.
type SessionState struct {
	MentionedParameters map[Field]any    `json:"mentionedParameters"`
	ParameterHistory    []ParameterEntry `json:"parameterHistory"`
	Corrections         []Correction     `json:"corrections"`
}

func NewSessionState() SessionState {
	return SessionState{
		MentionedParameters: make(map[Field]any),
		ParameterHistory:    []ParameterEntry{},
		Corrections:         []Correction{},
	}
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Session is one conversation: its reconciliation state, the persisted form
// snapshot, the recent message history and the last ranking shown.
// Search is bumped every time a new top-level search replaces the session
// contents.
type Session struct {
	ID          uuid.UUID       `json:"sessionId"`
	Search      uint64          `json:"search"`
	State       SessionState    `json:"sessionState"`
	Form        BuyerProfile    `json:"formSnapshot"`
	Insights    json.RawMessage `json:"propertyInsights,omitempty"`
	History     []ChatMessage   `json:"conversationHistory"`
	LastMatches []MatchResult   `json:"lastMatches,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

type ChatRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

type ChatReply struct {
	SessionID    string             `json:"sessionId"`
	Reply        string             `json:"reply"`
	ChangeSet    ParameterChangeSet `json:"changeSet"`
	Rescored     bool               `json:"rescored"`
	Hypothetical bool               `json:"hypothetical"`
	Result       *MatchResponse     `json:"result,omitempty"`
}
