package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dealdesk/domain"
)

func newTestMatchService(t *testing.T, assistant Assistant) (*MatchService, *ChatService) {
	t.Helper()
	chat, _ := newTestChat(t, assistant)
	return NewMatchService(chat.matcher, chat, assistant, formFields, zap.NewNop()), chat
}

func formRequest() map[string]any {
	return map[string]any{
		"propertyValue":        "$1,000,000",
		"propertyType":         "single_family",
		"propertyLocation":     "Phoenix, AZ",
		"downPaymentPercent":   "20",
		"creditScore":          "630",
		"investmentExperience": "first_time",
	}
}

func TestMatchLenders_ScoresAndAnalyzes(t *testing.T) {
	svc, _ := newTestMatchService(t, &stubAssistant{analysis: domain.Analysis{Summary: "LLM summary", TalkingPoints: []string{}}})

	resp, err := svc.MatchLenders(context.Background(), domain.MatchRequest{
		BuyerProfile:     formRequest(),
		PropertyInsights: json.RawMessage(`{"medianValue": 450000}`),
	})
	require.NoError(t, err)

	assert.False(t, resp.RequiresMoreInfo)
	assert.Empty(t, resp.MissingFields)
	assert.Len(t, resp.Matches, 2)
	assert.Equal(t, 0.38, resultFor(t, resp.Matches, "desert_capital").Confidence)
	require.NotNil(t, resp.Analysis)
	assert.Equal(t, "LLM summary", resp.Analysis.Summary)
	assert.JSONEq(t, `{"medianValue": 450000}`, string(resp.PropertyInsights))
}

func TestMatchLenders_FallbackAnalysis(t *testing.T) {
	svc, _ := newTestMatchService(t, NewAIService(AIConfig{}, nil))

	resp, err := svc.MatchLenders(context.Background(), domain.MatchRequest{BuyerProfile: formRequest()})
	require.NoError(t, err)
	require.NotNil(t, resp.Analysis)
	assert.Equal(t, FallbackAnalysis(resp.Matches), *resp.Analysis)
}

func TestMatchLenders_RequiresMoreInfo(t *testing.T) {
	svc, _ := newTestMatchService(t, &stubAssistant{})

	raw := formRequest()
	delete(raw, "creditScore")
	raw["propertyValue"] = "n/a"

	resp, err := svc.MatchLenders(context.Background(), domain.MatchRequest{BuyerProfile: raw})
	require.NoError(t, err)
	assert.True(t, resp.RequiresMoreInfo)
	assert.Equal(t, []domain.Field{domain.FieldPropertyValue, domain.FieldCreditScore}, resp.MissingFields)
	assert.Equal(t, "Please provide the following information to get lender recommendations: Property Value, Credit Score.", resp.Message)
	assert.Empty(t, resp.Matches)
	assert.Nil(t, resp.Analysis)
}

func TestMatchLenders_SessionStartsNewSearch(t *testing.T) {
	svc, chat := newTestMatchService(t, &stubAssistant{reply: "ok"})
	id := seedSession(t, chat, domain.BuyerProfile{})
	send(t, chat, id, "My credit score is 700")

	resp, err := svc.MatchLenders(context.Background(), domain.MatchRequest{
		BuyerProfile: formRequest(),
		SessionID:    id.String(),
	})
	require.NoError(t, err)

	sess, err := chat.Session(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, sess.State.ParameterHistory)
	assert.Empty(t, sess.History)
	assert.Equal(t, 630.0, *sess.Form.CreditScore)
	assert.Equal(t, resp.Matches, sess.LastMatches)
}

func TestMatchLenders_InvalidSession(t *testing.T) {
	svc, _ := newTestMatchService(t, &stubAssistant{})
	_, err := svc.MatchLenders(context.Background(), domain.MatchRequest{
		BuyerProfile: formRequest(),
		SessionID:    "nope",
	})
	assert.True(t, errors.Is(err, ErrInvalidSession))

	_, err = svc.MatchLenders(context.Background(), domain.MatchRequest{
		BuyerProfile: formRequest(),
		SessionID:    uuid.NewString(),
	})
	assert.NoError(t, err)
}

func TestMatchLenders_PropertyInsightsReachAssistant(t *testing.T) {
	assistant := &stubAssistant{reply: "ok", analysis: domain.Analysis{Summary: "s", TalkingPoints: []string{}}}
	svc, chat := newTestMatchService(t, assistant)
	id := seedSession(t, chat, domain.BuyerProfile{})
	insights := json.RawMessage(`{"medianValue": 450000}`)

	_, err := svc.MatchLenders(context.Background(), domain.MatchRequest{
		BuyerProfile:     formRequest(),
		PropertyInsights: insights,
		SessionID:        id.String(),
	})
	require.NoError(t, err)
	assert.JSONEq(t, string(insights), string(assistant.insights))

	send(t, chat, id, "Which lender should I call first?")
	assert.JSONEq(t, string(insights), string(assistant.last.Insights))
}
