package protocol

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("protocol not found")

type Repository interface {
	Create(ctx context.Context, p *Protocol) error
	GetByID(ctx context.Context, userID string, id uuid.UUID) (*Protocol, error)
	Update(ctx context.Context, p *Protocol) error
	Delete(ctx context.Context, userID string, id uuid.UUID) error
	List(ctx context.Context, userID string, activeOnly bool, limit, offset int) ([]*Protocol, int, error)
	// ListActive returns every active protocol of the user, unpaginated, in
	// creation order.
	ListActive(ctx context.Context, userID string) ([]*Protocol, error)
	// ActiveUserIDs lists the users that own at least one active protocol.
	ActiveUserIDs(ctx context.Context) ([]string, error)
}
