package domain

import "encoding/json"

// ProgramScore is the outcome of scoring one program for one buyer.
type ProgramScore struct {
	ProgramName    string   `json:"programName"`
	Confidence     float64  `json:"confidence"`
	Rationale      string   `json:"rationale"`
	MaxLTV         *float64 `json:"maxLTV"`
	MinCreditScore *float64 `json:"minCreditScore"`
	MaxLoanAmount  *float64 `json:"maxLoanAmount"`
}

// MatchResult is one lender's entry in a ranked response. The best scoring
// program is promoted to the top-level fields; any other programs that
// cleared the inclusion floor are listed in Alternatives.
type MatchResult struct {
	LenderName         string                     `json:"lenderName"`
	LenderKey          string                     `json:"lenderKey"`
	ProgramName        string                     `json:"programName"`
	Confidence         float64                    `json:"confidence"`
	IsMatch            bool                       `json:"isMatch"`
	IsDefault          bool                       `json:"isDefault"`
	Rationale          string                     `json:"rationale"`
	MatchSummary       string                     `json:"matchSummary"`
	NonMatchReason     *string                    `json:"nonMatchReason"`
	MaxLTV             *float64                   `json:"maxLTV"`
	MinCreditScore     *float64                   `json:"minCreditScore"`
	MaxLoanAmount      *float64                   `json:"maxLoanAmount"`
	Website            *string                    `json:"website"`
	ContactPhone       *string                    `json:"contactPhone"`
	DepartmentContacts map[string]json.RawMessage `json:"departmentContacts"`
	Alternatives       []ProgramScore             `json:"alternatives,omitempty"`
}

// Analysis is the optional LLM-written summary of a scoring response.
type Analysis struct {
	Summary       string   `json:"summary"`
	TalkingPoints []string `json:"talkingPoints"`
}

// MatchRequest is the inbound scoring request. BuyerProfile is kept loosely
// typed so stringly-typed form values reach the normalizer untouched.
type MatchRequest struct {
	BuyerProfile     map[string]any  `json:"buyerProfile"`
	PropertyInsights json.RawMessage `json:"propertyInsights,omitempty"`
	SessionID        string          `json:"sessionId,omitempty"`
}

type MatchResponse struct {
	RequiresMoreInfo bool            `json:"requiresMoreInfo"`
	MissingFields    []Field         `json:"missingFields"`
	Message          string          `json:"message,omitempty"`
	Matches          []MatchResult   `json:"matches"`
	Analysis         *Analysis       `json:"analysis,omitempty"`
	PropertyInsights json.RawMessage `json:"propertyInsights,omitempty"`
}
