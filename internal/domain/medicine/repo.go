package medicine

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("medicine not found")

// Repository stores medicines. Every lookup is scoped to the owning user;
// a medicine of another user is reported as ErrNotFound.
type Repository interface {
	Create(ctx context.Context, m *Medicine) error
	GetByID(ctx context.Context, userID string, id uuid.UUID) (*Medicine, error)
	Update(ctx context.Context, m *Medicine) error
	Delete(ctx context.Context, userID string, id uuid.UUID) error
	List(ctx context.Context, userID string, limit, offset int) ([]*Medicine, int, error)
	// AdjustStock adds delta to the stock, flooring the result at zero. It
	// returns the new quantity and the change actually applied.
	AdjustStock(ctx context.Context, userID string, id uuid.UUID, delta float64) (stock, applied float64, err error)
}
