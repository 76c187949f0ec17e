package medicine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var ErrInvalid = errors.New("invalid medicine")

const defaultDosageUnit = "mg"

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func validate(m *Medicine) error {
	m.Name = strings.TrimSpace(m.Name)
	if m.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if m.DosagePerPill < 0 {
		return fmt.Errorf("%w: dosage_per_pill must not be negative", ErrInvalid)
	}
	if m.StockQuantity < 0 {
		return fmt.Errorf("%w: stock_quantity must not be negative", ErrInvalid)
	}
	if m.DosageUnit == "" {
		m.DosageUnit = defaultDosageUnit
	}
	return nil
}

func (s *Service) CreateMedicine(ctx context.Context, m *Medicine) error {
	if err := validate(m); err != nil {
		return err
	}
	return s.repo.Create(ctx, m)
}

func (s *Service) GetMedicine(ctx context.Context, userID string, id uuid.UUID) (*Medicine, error) {
	return s.repo.GetByID(ctx, userID, id)
}

func (s *Service) UpdateMedicine(ctx context.Context, m *Medicine) error {
	if err := validate(m); err != nil {
		return err
	}
	return s.repo.Update(ctx, m)
}

func (s *Service) DeleteMedicine(ctx context.Context, userID string, id uuid.UUID) error {
	return s.repo.Delete(ctx, userID, id)
}

func (s *Service) ListMedicines(ctx context.Context, userID string, limit, offset int) ([]*Medicine, int, error) {
	return s.repo.List(ctx, userID, limit, offset)
}

// Restock adds quantity units to the stock.
func (s *Service) Restock(ctx context.Context, userID string, id uuid.UUID, quantity float64) (float64, error) {
	if quantity <= 0 {
		return 0, fmt.Errorf("%w: quantity must be positive", ErrInvalid)
	}
	stock, _, err := s.repo.AdjustStock(ctx, userID, id, quantity)
	return stock, err
}

// ConsumeStock removes quantity units taken in an intake and returns how many
// were actually deducted. Stock never goes below zero, so that may be less
// than quantity.
func (s *Service) ConsumeStock(ctx context.Context, userID string, id uuid.UUID, quantity float64) (float64, error) {
	if quantity <= 0 {
		return 0, fmt.Errorf("%w: quantity must be positive", ErrInvalid)
	}
	_, applied, err := s.repo.AdjustStock(ctx, userID, id, -quantity)
	if err != nil || applied >= 0 {
		return 0, err
	}
	return -applied, nil
}
