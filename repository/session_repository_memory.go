package repository

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"dealdesk/domain"
)

// SessionRepositoryMemory is an in-memory implementation of
// SessionRepository. Sessions are copied on the way in and out so callers
// never share state with the store.
type SessionRepositoryMemory struct {
	mu   sync.RWMutex
	data map[uuid.UUID]domain.Session
}

// NewSessionRepositoryMemory creates a new in-memory session repository.
func NewSessionRepositoryMemory() *SessionRepositoryMemory {
	return &SessionRepositoryMemory{
		data: make(map[uuid.UUID]domain.Session),
	}
}

func (r *SessionRepositoryMemory) Get(_ context.Context, id uuid.UUID) (domain.Session, error) {
	r.mu.RLock()
	s, ok := r.data[id]
	r.mu.RUnlock()
	if !ok {
		return domain.Session{}, ErrSessionNotFound
	}
	return cloneSession(s), nil
}

// Save stores the session, replacing any previous version.
func (r *SessionRepositoryMemory) Save(_ context.Context, s domain.Session) error {
	r.mu.Lock()
	r.data[s.ID] = cloneSession(s)
	r.mu.Unlock()
	return nil
}

func (r *SessionRepositoryMemory) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[id]; !ok {
		return ErrSessionNotFound
	}
	delete(r.data, id)
	return nil
}

func (r *SessionRepositoryMemory) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data)
}

func cloneSession(s domain.Session) domain.Session {
	out := s

	out.State.MentionedParameters = make(map[domain.Field]any, len(s.State.MentionedParameters))
	for k, v := range s.State.MentionedParameters {
		out.State.MentionedParameters[k] = v
	}
	out.State.ParameterHistory = append([]domain.ParameterEntry{}, s.State.ParameterHistory...)
	out.State.Corrections = append([]domain.Correction{}, s.State.Corrections...)

	out.Form = cloneProfile(s.Form)
	out.Insights = append([]byte(nil), s.Insights...)
	out.History = append([]domain.ChatMessage(nil), s.History...)
	out.LastMatches = append([]domain.MatchResult(nil), s.LastMatches...)
	return out
}

func cloneProfile(p domain.BuyerProfile) domain.BuyerProfile {
	f := func(v *float64) *float64 {
		if v == nil {
			return nil
		}
		return domain.Float(*v)
	}
	s := func(v *string) *string {
		if v == nil {
			return nil
		}
		return domain.String(*v)
	}
	return domain.BuyerProfile{
		PropertyValue:        f(p.PropertyValue),
		PropertyType:         s(p.PropertyType),
		PropertyLocation:     s(p.PropertyLocation),
		DownPaymentPercent:   f(p.DownPaymentPercent),
		PropertyVacant:       s(p.PropertyVacant),
		CurrentRent:          f(p.CurrentRent),
		CreditScore:          f(p.CreditScore),
		InvestmentExperience: s(p.InvestmentExperience),
	}
}
