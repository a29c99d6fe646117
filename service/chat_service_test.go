package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dealdesk/domain"
	"dealdesk/repository"
)

// stubAssistant records what it was asked and answers with a canned reply.
type stubAssistant struct {
	reply    string
	err      error
	analysis domain.Analysis
	last     ChatContext
	insights json.RawMessage
	calls    int
}

func (s *stubAssistant) Enabled() bool { return true }

func (s *stubAssistant) Analyze(_ context.Context, _ domain.BuyerProfile, insights json.RawMessage, _ []domain.MatchResult) (domain.Analysis, error) {
	s.insights = insights
	return s.analysis, s.err
}

func (s *stubAssistant) Reply(_ context.Context, cc ChatContext) (string, error) {
	s.calls++
	s.last = cc
	return s.reply, s.err
}

// blockingAssistant holds every reply until release is closed.
type blockingAssistant struct {
	stubAssistant
	started chan struct{}
	release chan struct{}
}

func newBlockingAssistant() *blockingAssistant {
	return &blockingAssistant{
		stubAssistant: stubAssistant{reply: "ok"},
		started:       make(chan struct{}, 1),
		release:       make(chan struct{}),
	}
}

func (b *blockingAssistant) Reply(ctx context.Context, cc ChatContext) (string, error) {
	b.started <- struct{}{}
	<-b.release
	return b.stubAssistant.Reply(ctx, cc)
}

func newTestChat(t *testing.T, assistant Assistant) (*ChatService, *repository.SessionRepositoryMemory) {
	t.Helper()
	store := repository.NewSessionRepositoryMemory()
	m := newTestMatcher(desertCatalog(t), DefaultMatcherConfig())
	return NewChatService(store, m, assistant, chatFields, 4, zap.NewNop()), store
}

func seedSession(t *testing.T, chat *ChatService, form domain.BuyerProfile) uuid.UUID {
	t.Helper()
	sess, err := chat.CreateSession(context.Background())
	require.NoError(t, err)
	_, err = chat.StartSearch(context.Background(), sess.ID, form, nil, nil)
	require.NoError(t, err)
	return sess.ID
}

func send(t *testing.T, chat *ChatService, id uuid.UUID, msg string) domain.ChatReply {
	t.Helper()
	reply, err := chat.ProcessMessage(context.Background(), domain.ChatRequest{SessionID: id.String(), Message: msg})
	require.NoError(t, err)
	return reply
}

func TestProcessMessage_CorrectionUpdatesSession(t *testing.T) {
	assistant := &stubAssistant{reply: "Noted."}
	chat, _ := newTestChat(t, assistant)
	id := seedSession(t, chat, completeProfile())

	send(t, chat, id, "My credit score is 680")
	reply := send(t, chat, id, "My credit score is actually 720")

	assert.True(t, reply.ChangeSet.HasChanges)
	assert.True(t, reply.Rescored)
	assert.False(t, reply.Hypothetical)
	assert.Equal(t, "Noted.", reply.Reply)

	sess, err := chat.Session(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 720.0, *sess.Form.CreditScore)
	require.Len(t, sess.State.Corrections, 1)
	assert.Equal(t, 680.0, sess.State.Corrections[0].OldValue)
	assert.Equal(t, 720.0, sess.State.Corrections[0].NewValue)
	assert.Contains(t, assistant.last.ConversationChanges, "creditScore corrected from 680 to 720")

	r := resultFor(t, sess.LastMatches, "desert_capital")
	assert.Equal(t, r.Confidence, resultFor(t, reply.Result.Matches, "desert_capital").Confidence)
}

func TestProcessMessage_HypotheticalIsTransient(t *testing.T) {
	assistant := &stubAssistant{reply: "In that case..."}
	chat, _ := newTestChat(t, assistant)

	form := completeProfile()
	form.CreditScore = domain.Float(750)
	id := seedSession(t, chat, form)
	before, err := chat.Session(context.Background(), id)
	require.NoError(t, err)

	reply := send(t, chat, id, "What if my credit score was 100 points lower?")

	assert.True(t, reply.Hypothetical)
	require.NotNil(t, reply.ChangeSet.CreditScore)
	assert.Equal(t, 650.0, *reply.ChangeSet.CreditScore)
	assert.True(t, reply.Rescored)
	assert.Equal(t, 650.0, *assistant.last.Form.CreditScore)
	assert.True(t, assistant.last.Hypothetical)

	after, err := chat.Session(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 750.0, *after.Form.CreditScore)
	assert.Equal(t, before.State, after.State)
	assert.Equal(t, before.LastMatches, after.LastMatches)
}

func TestProcessMessage_RecommendationRequestRescores(t *testing.T) {
	chat, _ := newTestChat(t, &stubAssistant{reply: "Sure."})
	id := seedSession(t, chat, completeProfile())

	reply := send(t, chat, id, "Can you suggest other lenders?")
	assert.False(t, reply.ChangeSet.HasChanges)
	assert.True(t, reply.Rescored)
	require.NotNil(t, reply.Result)
	assert.Len(t, reply.Result.Matches, 2)

	reply = send(t, chat, id, "Thanks, that helps!")
	assert.False(t, reply.Rescored)
	assert.Nil(t, reply.Result)
}

func TestProcessMessage_GatedWhenFormIncomplete(t *testing.T) {
	assistant := &stubAssistant{reply: "What is your credit score?"}
	chat, _ := newTestChat(t, assistant)
	id := seedSession(t, chat, domain.BuyerProfile{PropertyValue: domain.Float(500_000)})

	reply := send(t, chat, id, "I'd like a recommendation")
	require.NotNil(t, reply.Result)
	assert.True(t, reply.Result.RequiresMoreInfo)
	assert.False(t, reply.Rescored)
	assert.Contains(t, assistant.last.Missing, domain.FieldCreditScore)
	assert.NotContains(t, assistant.last.Missing, domain.FieldPropertyValue)
}

func TestProcessMessage_FallbackReply(t *testing.T) {
	chat, _ := newTestChat(t, &stubAssistant{err: ErrLLMUnavailable})
	id := seedSession(t, chat, completeProfile())

	reply := send(t, chat, id, "hello")
	assert.Contains(t, reply.Reply, "temporarily unavailable")
}

func TestProcessMessage_TrimsHistory(t *testing.T) {
	chat, _ := newTestChat(t, &stubAssistant{reply: "ok"})
	id := seedSession(t, chat, completeProfile())

	for i := 0; i < 5; i++ {
		send(t, chat, id, fmt.Sprintf("message %d", i))
	}

	sess, err := chat.Session(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, sess.History, 4)
	assert.Equal(t, "message 3", sess.History[0].Content)
	assert.Equal(t, "message 4", sess.History[2].Content)
}

func TestProcessMessage_Errors(t *testing.T) {
	chat, _ := newTestChat(t, &stubAssistant{reply: "ok"})
	ctx := context.Background()

	_, err := chat.ProcessMessage(ctx, domain.ChatRequest{SessionID: uuid.NewString(), Message: "  "})
	assert.True(t, errors.Is(err, ErrEmptyMessage))

	_, err = chat.ProcessMessage(ctx, domain.ChatRequest{SessionID: "not-a-uuid", Message: "hi"})
	assert.True(t, errors.Is(err, ErrInvalidSession))

	_, err = chat.ProcessMessage(ctx, domain.ChatRequest{SessionID: uuid.NewString(), Message: "hi"})
	assert.True(t, errors.Is(err, repository.ErrSessionNotFound))
}

func TestProcessMessage_RejectsConcurrentExchange(t *testing.T) {
	assistant := &stubAssistant{reply: "ok"}
	chat, _ := newTestChat(t, assistant)
	id := seedSession(t, chat, completeProfile())

	require.True(t, chat.acquire(id))
	_, err := chat.ProcessMessage(context.Background(), domain.ChatRequest{SessionID: id.String(), Message: "hi"})
	assert.True(t, errors.Is(err, ErrExchangePending))
	assert.Zero(t, assistant.calls)

	chat.release(id)
	send(t, chat, id, "hi")
	assert.Equal(t, 1, assistant.calls)
}

func TestResetSession(t *testing.T) {
	chat, _ := newTestChat(t, &stubAssistant{reply: "ok"})
	id := seedSession(t, chat, completeProfile())
	send(t, chat, id, "My credit score is 700")

	sess, err := chat.ResetSession(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, sess.ID)
	assert.Empty(t, sess.History)
	assert.Empty(t, sess.State.ParameterHistory)
	assert.Nil(t, sess.Form.CreditScore)
}

func TestProcessMessage_NewSearchDuringExchangeWins(t *testing.T) {
	tests := []struct {
		name    string
		restart func(chat *ChatService, id uuid.UUID) error
		want    domain.BuyerProfile
	}{
		{
			name: "start search",
			restart: func(chat *ChatService, id uuid.UUID) error {
				_, err := chat.StartSearch(context.Background(), id,
					domain.BuyerProfile{PropertyValue: domain.Float(333_333)}, nil, nil)
				return err
			},
			want: domain.BuyerProfile{PropertyValue: domain.Float(333_333)},
		},
		{
			name: "reset",
			restart: func(chat *ChatService, id uuid.UUID) error {
				_, err := chat.ResetSession(context.Background(), id)
				return err
			},
			want: domain.BuyerProfile{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assistant := newBlockingAssistant()
			chat, _ := newTestChat(t, assistant)
			id := seedSession(t, chat, completeProfile())

			done := make(chan error, 1)
			go func() {
				_, err := chat.ProcessMessage(context.Background(),
					domain.ChatRequest{SessionID: id.String(), Message: "My credit score is 720"})
				done <- err
			}()

			<-assistant.started
			require.NoError(t, tt.restart(chat, id))
			close(assistant.release)
			require.NoError(t, <-done)

			sess, err := chat.Session(context.Background(), id)
			require.NoError(t, err)
			assert.Equal(t, tt.want, sess.Form)
			assert.Empty(t, sess.State.MentionedParameters)
			assert.Empty(t, sess.State.ParameterHistory)
			assert.Empty(t, sess.History)

			send(t, chat, id, "hello")
			sess, err = chat.Session(context.Background(), id)
			require.NoError(t, err)
			assert.Len(t, sess.History, 2)
		})
	}
}
