package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"dealdesk/domain"
)

var ErrSessionNotFound = eris.New("session not found")

type SessionRepository interface {
	Get(ctx context.Context, id uuid.UUID) (domain.Session, error)
	Save(ctx context.Context, s domain.Session) error
	Delete(ctx context.Context, id uuid.UUID) error
}
