package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"dealdesk/domain"
)

var (
	ErrLLMDisabled    = eris.New("llm: not configured")
	ErrLLMTimeout     = eris.New("llm: request timed out")
	ErrLLMAuth        = eris.New("llm: authentication failed")
	ErrLLMUnavailable = eris.New("llm: service temporarily unavailable")
)

// Assistant writes the prose around a scoring result. Scoring never depends
// on it; every caller has a deterministic fallback.
type Assistant interface {
	Enabled() bool
	Analyze(ctx context.Context, p domain.BuyerProfile, insights json.RawMessage, matches []domain.MatchResult) (domain.Analysis, error)
	Reply(ctx context.Context, cc ChatContext) (string, error)
}

// ChatContext is everything the assistant sees for one chat exchange.
type ChatContext struct {
	Message             string
	History             []domain.ChatMessage
	Form                domain.BuyerProfile
	Missing             []domain.Field
	ConversationChanges string
	Matches             []domain.MatchResult
	Insights            json.RawMessage
	Hypothetical        bool
}

type AIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxTokens  int
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// AIService talks to an OpenAI-compatible chat completions endpoint.
type AIService struct {
	cfg    AIConfig
	logger *zap.Logger

	clientOnce sync.Once
	httpClient *http.Client
}

type OpenAIRequest struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens,omitempty"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type OpenAIResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

func NewAIService(cfg AIConfig, logger *zap.Logger) *AIService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 25 * time.Second
	}
	return &AIService{cfg: cfg, logger: logger}
}

func (s *AIService) Enabled() bool { return s.cfg.APIKey != "" }

// client builds the HTTP client on first use.
func (s *AIService) client() *http.Client {
	s.clientOnce.Do(func() {
		s.httpClient = &http.Client{Timeout: s.cfg.Timeout}
	})
	return s.httpClient
}

const systemPrompt = `You are a real estate lending consultant for Deal Desk. You help investors find lenders for their property deals.
Only mention lenders and programs that appear in the ranked results you are given. Never invent lender data.
If no lender fits, say: "Based on the lender database, there are currently no programs that match your specific situation."
Be friendly, concise and specific about credit, down payment and loan amount requirements.`

// Analyze asks for a short summary of a ranked response. The model is asked
// for JSON; plain text is accepted as the summary.
func (s *AIService) Analyze(
	ctx context.Context,
	p domain.BuyerProfile,
	insights json.RawMessage,
	matches []domain.MatchResult,
) (domain.Analysis, error) {
	if !s.Enabled() {
		return domain.Analysis{}, ErrLLMDisabled
	}

	prompt := fmt.Sprintf(`Summarize these lender matches for the buyer.

BUYER PROFILE:
%s
%s
RANKED LENDERS:
%s

Respond with JSON only: {"summary": "<2-3 sentences>", "talkingPoints": ["<point>", ...]} with at most 4 talking points.`,
		describeProfile(p), describeInsights(insights), describeMatches(matches, 5))

	content, err := s.callLLM(ctx, []Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return domain.Analysis{}, err
	}

	var a domain.Analysis
	if err := json.Unmarshal([]byte(stripCodeFence(content)), &a); err != nil || a.Summary == "" {
		return domain.Analysis{Summary: strings.TrimSpace(content), TalkingPoints: []string{}}, nil
	}
	if a.TalkingPoints == nil {
		a.TalkingPoints = []string{}
	}
	return a, nil
}

// Reply answers one chat message given the session context.
func (s *AIService) Reply(ctx context.Context, cc ChatContext) (string, error) {
	if !s.Enabled() {
		return "", ErrLLMDisabled
	}

	messages := []Message{
		{Role: "system", Content: systemPrompt},
		{Role: "system", Content: "User Context Analysis:\n\n" + describeChatContext(cc)},
	}
	for _, m := range cc.History {
		messages = append(messages, Message{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, Message{Role: "user", Content: cc.Message})

	return s.callLLM(ctx, messages)
}

func (s *AIService) callLLM(ctx context.Context, messages []Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	reqBody := OpenAIRequest{
		Model:     s.cfg.Model,
		Messages:  messages,
		MaxTokens: s.cfg.MaxTokens,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", eris.Wrap(err, "llm: encode request")
	}

	var content string
	err = retry(ctx, s.cfg.MaxRetries, s.cfg.RetryDelay, func() error {
		c, err := s.do(ctx, jsonData)
		if err != nil {
			s.logger.Debug("llm attempt failed", zap.Error(err))
			return err
		}
		content = c
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			err = ErrLLMTimeout
		}
		recordCollaborator("llm", collaboratorResult(err))
		return "", err
	}

	recordCollaborator("llm", "ok")
	return content, nil
}

func (s *AIService) do(ctx context.Context, body []byte) (string, error) {
	url := strings.TrimRight(s.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", backoff.Permanent(eris.Wrap(err, "llm: build request"))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)

	resp, err := s.client().Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", backoff.Permanent(ErrLLMTimeout)
		}
		return "", eris.Wrap(err, "llm: request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", classifyStatus(resp.StatusCode, string(data))
	}

	var openAIResp OpenAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&openAIResp); err != nil {
		return "", eris.Wrap(err, "llm: decode response")
	}
	if len(openAIResp.Choices) == 0 {
		return "", eris.New("llm: no choices in response")
	}
	return openAIResp.Choices[0].Message.Content, nil
}

// classifyStatus maps an upstream failure to a typed error. Auth failures
// and explicit unavailability are not retried.
func classifyStatus(code int, body string) error {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden,
		strings.Contains(body, "Invalid API key"):
		return backoff.Permanent(eris.Wrapf(ErrLLMAuth, "llm: status %d", code))
	case code == http.StatusServiceUnavailable,
		strings.Contains(body, "Service temporarily unavailable"):
		return backoff.Permanent(eris.Wrapf(ErrLLMUnavailable, "llm: status %d", code))
	default:
		return eris.Errorf("llm: status %d: %s", code, body)
	}
}

func collaboratorResult(err error) string {
	switch {
	case eris.Is(err, ErrLLMTimeout), eris.Is(err, ErrInsightsTimeout):
		return "timeout"
	case eris.Is(err, ErrLLMAuth):
		return "auth"
	case eris.Is(err, ErrLLMUnavailable), eris.Is(err, ErrInsightsUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func describeProfile(p domain.BuyerProfile) string {
	values := p.Map()
	var b strings.Builder
	for _, f := range profileFields {
		v := values[string(f)]
		if v == nil {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", f.Label(), formatValue(v))
	}
	if b.Len() == 0 {
		return "- (nothing provided yet)\n"
	}
	return b.String()
}

var profileFields = []domain.Field{
	domain.FieldPropertyValue,
	domain.FieldPropertyType,
	domain.FieldPropertyLocation,
	domain.FieldDownPaymentPercent,
	domain.FieldCreditScore,
	domain.FieldInvestmentExperience,
	domain.FieldCurrentRent,
	domain.FieldPropertyVacant,
}

func describeMatches(matches []domain.MatchResult, n int) string {
	if len(matches) == 0 {
		return "- (no lenders scored)\n"
	}
	var b strings.Builder
	for i, m := range matches {
		if i == n {
			break
		}
		status := "not a match"
		if m.IsMatch {
			status = "match"
		}
		fmt.Fprintf(&b, "%d. %s, %s: %.0f%% confidence (%s). %s\n",
			i+1, m.LenderName, m.ProgramName, m.Confidence*100, status, strings.TrimSpace(m.Rationale))
	}
	return b.String()
}

func describeChatContext(cc ChatContext) string {
	var b strings.Builder
	b.WriteString("AVAILABLE INFORMATION:\n")
	b.WriteString(describeProfile(cc.Form))

	b.WriteString("\nMISSING INFORMATION:\n")
	if len(cc.Missing) == 0 {
		b.WriteString("- (none)\n")
	}
	for _, f := range cc.Missing {
		fmt.Fprintf(&b, "- %s\n", f.Label())
	}

	b.WriteString(describeInsights(cc.Insights))

	if cc.ConversationChanges != "" {
		b.WriteString("\n" + cc.ConversationChanges + "\n")
	}
	if cc.Hypothetical {
		b.WriteString("\nThe user is exploring a hypothetical scenario; do not treat it as their actual situation.\n")
	}
	if len(cc.Matches) > 0 {
		b.WriteString("\nCURRENT LENDER MATCHES:\n")
		b.WriteString(describeMatches(cc.Matches, 5))
	}
	return b.String()
}

// describeInsights renders the property insights passed in with a search.
// The payload is opaque; invalid JSON is left out.
func describeInsights(insights json.RawMessage) string {
	if len(insights) == 0 || !json.Valid(insights) {
		return ""
	}
	var b bytes.Buffer
	if err := json.Compact(&b, insights); err != nil || b.String() == "null" {
		return ""
	}
	return "\nPROPERTY INSIGHTS:\n" + b.String() + "\n"
}

// FallbackAnalysis summarizes matches without the LLM.
func FallbackAnalysis(matches []domain.MatchResult) domain.Analysis {
	var hits []domain.MatchResult
	for _, m := range matches {
		if m.IsMatch {
			hits = append(hits, m)
		}
	}

	if len(hits) == 0 {
		return domain.Analysis{
			Summary:       "No lender in the database is a strong match for this profile yet. Review the credit and down payment requirements listed for each lender.",
			TalkingPoints: []string{},
		}
	}

	points := make([]string, 0, 3)
	for i, m := range hits {
		if i == 3 {
			break
		}
		points = append(points, fmt.Sprintf("%s (%s): %.0f%% confidence", m.LenderName, m.ProgramName, m.Confidence*100))
	}
	return domain.Analysis{
		Summary: fmt.Sprintf("%d of %d lenders match this profile. %s is the strongest fit.",
			len(hits), len(matches), hits[0].LenderName),
		TalkingPoints: points,
	}
}

// FallbackReply answers a chat message without the LLM.
func FallbackReply(cc ChatContext, err error) string {
	switch {
	case eris.Is(err, ErrLLMTimeout):
		return "That took longer than expected. Please try again in a moment."
	case eris.Is(err, ErrLLMUnavailable):
		return "Our chat service is temporarily unavailable. Please try again later or contact our team directly."
	}

	if len(cc.Missing) > 0 {
		return MissingFieldsMessage(cc.Missing)
	}
	if len(cc.Matches) == 0 {
		return "Based on the lender database, there are currently no programs that match your specific situation."
	}

	top := cc.Matches[0]
	prefix := "Here are your updated lender matches."
	if cc.Hypothetical {
		prefix = "In that scenario, here is how the lenders would look."
	}
	return fmt.Sprintf("%s %s (%s) leads at %.0f%% confidence.", prefix, top.LenderName, top.ProgramName, top.Confidence*100)
}
