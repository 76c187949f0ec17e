package intakelog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("intake log not found")

type Repository interface {
	Create(ctx context.Context, l *IntakeLog) error
	GetByID(ctx context.Context, userID string, id uuid.UUID) (*IntakeLog, error)
	Delete(ctx context.Context, userID string, id uuid.UUID) error
	// ListRange returns logs with from <= taken_at < to, newest first.
	ListRange(ctx context.Context, userID string, from, to time.Time, limit, offset int) ([]*IntakeLog, int, error)
	// ListSince returns every log taken at or after from, oldest first.
	ListSince(ctx context.Context, userID string, from time.Time) ([]*IntakeLog, error)
	// LastChange returns the latest created_at for the user, or the zero time.
	LastChange(ctx context.Context, userID string) (time.Time, error)
}
