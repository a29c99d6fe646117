package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"dealdesk/domain"
)

// MatchService serves form submissions: normalize, gate, score, and attach
// an analysis. A request carrying a session id starts a new search on that
// session.
type MatchService struct {
	matcher   *LenderMatcher
	chat      *ChatService
	assistant Assistant
	required  []domain.Field
	logger    *zap.Logger
}

func NewMatchService(
	matcher *LenderMatcher,
	chat *ChatService,
	assistant Assistant,
	required []domain.Field,
	logger *zap.Logger,
) *MatchService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if assistant == nil {
		assistant = NewAIService(AIConfig{}, logger)
	}
	return &MatchService{
		matcher:   matcher,
		chat:      chat,
		assistant: assistant,
		required:  required,
		logger:    logger,
	}
}

func (s *MatchService) MatchLenders(ctx context.Context, req domain.MatchRequest) (domain.MatchResponse, error) {
	var sessionID uuid.UUID
	if req.SessionID != "" {
		id, err := uuid.Parse(req.SessionID)
		if err != nil {
			return domain.MatchResponse{}, eris.Wrapf(ErrInvalidSession, "match: session %q", req.SessionID)
		}
		sessionID = id
	}

	p := NormalizeProfile(req.BuyerProfile)
	resp := s.matcher.MatchProfile(ctx, p, s.required)
	resp.PropertyInsights = req.PropertyInsights

	if !resp.RequiresMoreInfo {
		analysis, err := s.assistant.Analyze(ctx, p, req.PropertyInsights, resp.Matches)
		if err != nil {
			if !eris.Is(err, ErrLLMDisabled) {
				s.logger.Warn("analysis failed, using fallback", zap.Error(err))
			}
			analysis = FallbackAnalysis(resp.Matches)
		}
		resp.Analysis = &analysis
	}

	if sessionID != uuid.Nil && s.chat != nil {
		if _, err := s.chat.StartSearch(ctx, sessionID, p, req.PropertyInsights, resp.Matches); err != nil {
			return domain.MatchResponse{}, err
		}
	}
	return resp, nil
}
