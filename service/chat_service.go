package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"dealdesk/domain"
	"dealdesk/repository"
)

var (
	ErrEmptyMessage    = eris.New("chat: message is empty")
	ErrInvalidSession  = eris.New("chat: invalid session id")
	ErrExchangePending = eris.New("chat: an exchange is already pending for this session")
)

// ChatService runs one conversational exchange at a time per session:
// extract parameters, reconcile them with the session, re-score when
// needed and ask the assistant for a reply.
type ChatService struct {
	sessions     repository.SessionRepository
	matcher      *LenderMatcher
	assistant    Assistant
	required     []domain.Field
	historyLimit int
	logger       *zap.Logger
	now          func() time.Time

	mu      sync.Mutex
	pending map[uuid.UUID]struct{}

	// commitMu orders session writes so an exchange can tell whether a new
	// search replaced the session while it was waiting on the assistant.
	commitMu sync.Mutex
}

func NewChatService(
	sessions repository.SessionRepository,
	matcher *LenderMatcher,
	assistant Assistant,
	required []domain.Field,
	historyLimit int,
	logger *zap.Logger,
) *ChatService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if assistant == nil {
		assistant = NewAIService(AIConfig{}, logger)
	}
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &ChatService{
		sessions:     sessions,
		matcher:      matcher,
		assistant:    assistant,
		required:     required,
		historyLimit: historyLimit,
		logger:       logger,
		now:          time.Now,
		pending:      make(map[uuid.UUID]struct{}),
	}
}

// CreateSession starts an empty conversation.
func (s *ChatService) CreateSession(ctx context.Context) (domain.Session, error) {
	now := s.now()
	sess := domain.Session{
		ID:        uuid.New(),
		State:     domain.NewSessionState(),
		History:   []domain.ChatMessage{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		return domain.Session{}, eris.Wrap(err, "chat: save session")
	}
	return sess, nil
}

// StartSearch begins a new top-level search on the session: reconciliation
// state and history are cleared and the form snapshot and property insights
// are replaced. Unknown ids are created. An exchange still waiting on the
// assistant is discarded when it finishes.
func (s *ChatService) StartSearch(
	ctx context.Context,
	id uuid.UUID,
	form domain.BuyerProfile,
	insights json.RawMessage,
	matches []domain.MatchResult,
) (domain.Session, error) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	now := s.now()
	sess, err := s.sessions.Get(ctx, id)
	switch {
	case eris.Is(err, repository.ErrSessionNotFound):
		sess = domain.Session{ID: id, CreatedAt: now}
	case err != nil:
		return domain.Session{}, eris.Wrap(err, "chat: load session")
	}

	sess.Search++
	sess.State = domain.NewSessionState()
	sess.History = []domain.ChatMessage{}
	sess.Form = form
	sess.Insights = insights
	sess.LastMatches = matches
	sess.UpdatedAt = now

	if err := s.sessions.Save(ctx, sess); err != nil {
		return domain.Session{}, eris.Wrap(err, "chat: save session")
	}
	return sess, nil
}

// ResetSession clears everything but the session id.
func (s *ChatService) ResetSession(ctx context.Context, id uuid.UUID) (domain.Session, error) {
	return s.StartSearch(ctx, id, domain.BuyerProfile{}, nil, nil)
}

// commit saves the outcome of an exchange unless a new search started since
// the session was loaded. It reports whether the session was written.
func (s *ChatService) commit(ctx context.Context, sess domain.Session) (bool, error) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	current, err := s.sessions.Get(ctx, sess.ID)
	if err != nil {
		return false, eris.Wrap(err, "chat: reload session")
	}
	if current.Search != sess.Search {
		return false, nil
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		return false, eris.Wrap(err, "chat: save session")
	}
	return true, nil
}

func (s *ChatService) acquire(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.pending[id]; busy {
		return false
	}
	s.pending[id] = struct{}{}
	return true
}

func (s *ChatService) release(id uuid.UUID) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

// ProcessMessage handles one user message. Hypothetical messages are scored
// against a transient copy of the form and never change the session's
// parameters.
func (s *ChatService) ProcessMessage(ctx context.Context, req domain.ChatRequest) (domain.ChatReply, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return domain.ChatReply{}, ErrEmptyMessage
	}
	id, err := uuid.Parse(req.SessionID)
	if err != nil {
		return domain.ChatReply{}, eris.Wrapf(ErrInvalidSession, "chat: session %q", req.SessionID)
	}

	if !s.acquire(id) {
		return domain.ChatReply{}, ErrExchangePending
	}
	defer s.release(id)

	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		return domain.ChatReply{}, err
	}
	now := s.now()

	cs := DetectParameterChanges(message, sess.Form)
	profile := sess.Form
	if cs.HasChanges {
		if cs.IsHypothetical {
			profile = MergeChanges(sess.Form, cs)
		} else {
			sess.Form = MergeChanges(sess.Form, cs)
			ApplyChanges(&sess.State, cs, now)
			profile = sess.Form
		}
	}

	reply := domain.ChatReply{
		SessionID:    sess.ID.String(),
		ChangeSet:    cs,
		Hypothetical: cs.IsHypothetical,
	}

	matches := sess.LastMatches
	if cs.HasChanges || AsksForRecommendations(message) {
		resp := s.matcher.MatchProfile(ctx, profile, s.required)
		reply.Result = &resp
		if !resp.RequiresMoreInfo {
			reply.Rescored = true
			matches = resp.Matches
			if !cs.IsHypothetical {
				sess.LastMatches = resp.Matches
			}
		}
	}

	cc := ChatContext{
		Message:             message,
		History:             sess.History,
		Form:                profile,
		Missing:             MissingFields(profile, s.required),
		ConversationChanges: ConversationChanges(sess.State),
		Matches:             matches,
		Insights:            sess.Insights,
		Hypothetical:        cs.IsHypothetical,
	}
	text, err := s.assistant.Reply(ctx, cc)
	if err != nil {
		if !eris.Is(err, ErrLLMDisabled) {
			s.logger.Warn("assistant reply failed, using fallback",
				zap.String("session", sess.ID.String()), zap.Error(err))
		}
		text = FallbackReply(cc, err)
	}
	reply.Reply = text

	sess.History = append(sess.History,
		domain.ChatMessage{Role: "user", Content: message},
		domain.ChatMessage{Role: "assistant", Content: text},
	)
	if len(sess.History) > s.historyLimit {
		sess.History = sess.History[len(sess.History)-s.historyLimit:]
	}
	sess.UpdatedAt = now

	saved, err := s.commit(ctx, sess)
	if err != nil {
		return domain.ChatReply{}, err
	}
	if !saved {
		s.logger.Info("session restarted during exchange, discarding its changes",
			zap.String("session", sess.ID.String()))
	}

	recordChatMessage(cs.HasChanges, cs.IsHypothetical)
	s.logger.Debug("chat exchange",
		zap.String("session", sess.ID.String()),
		zap.Bool("changes", cs.HasChanges),
		zap.Bool("hypothetical", cs.IsHypothetical),
		zap.Bool("rescored", reply.Rescored),
	)
	return reply, nil
}

// Session returns a copy of the stored session.
func (s *ChatService) Session(ctx context.Context, id uuid.UUID) (domain.Session, error) {
	return s.sessions.Get(ctx, id)
}
