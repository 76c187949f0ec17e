package intakelog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/coelhotv/meus-remedios/internal/domain/medicine"
	"github.com/coelhotv/meus-remedios/internal/domain/protocol"
	"github.com/coelhotv/meus-remedios/internal/dosing"
	"github.com/coelhotv/meus-remedios/internal/platform/telemetry"
)

var ErrInvalid = errors.New("invalid intake log")

// maxFutureSkew bounds how far ahead of the server clock a taken_at may be.
const maxFutureSkew = 5 * time.Minute

type ProtocolLookup interface {
	GetProtocol(ctx context.Context, userID string, id uuid.UUID) (*protocol.Protocol, error)
}

// StockKeeper moves medicine stock. ConsumeStock returns the quantity
// actually deducted.
type StockKeeper interface {
	ConsumeStock(ctx context.Context, userID string, id uuid.UUID, quantity float64) (float64, error)
	Restock(ctx context.Context, userID string, id uuid.UUID, quantity float64) (float64, error)
}

// TxRunner runs fn atomically. db.WithTx bound to a pool satisfies it.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

func noTx(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

type Service struct {
	repo      Repository
	protocols ProtocolLookup
	stock     StockKeeper
	clock     dosing.Clock
	tx        TxRunner
	metrics   *telemetry.Provider
	listeners []func(userID string)
}

func NewService(repo Repository, protocols ProtocolLookup, stock StockKeeper, clock dosing.Clock) *Service {
	if clock == nil {
		clock = dosing.SystemClock{}
	}
	return &Service{repo: repo, protocols: protocols, stock: stock, clock: clock, tx: noTx}
}

// UseTx makes log writes and their stock adjustment atomic.
func (s *Service) UseTx(tx TxRunner) {
	if tx != nil {
		s.tx = tx
	}
}

func (s *Service) UseMetrics(p *telemetry.Provider) { s.metrics = p }

// OnChange registers fn to run after a user's logs change.
func (s *Service) OnChange(fn func(userID string)) {
	s.listeners = append(s.listeners, fn)
}

func (s *Service) notify(userID string) {
	for _, fn := range s.listeners {
		fn(userID)
	}
}

func (s *Service) resolve(ctx context.Context, l *IntakeLog) error {
	if l.QuantityTaken == 0 {
		l.QuantityTaken = 1
	}
	if l.QuantityTaken < 0 {
		return fmt.Errorf("%w: quantity_taken must be positive", ErrInvalid)
	}
	now := s.clock.Now()
	if l.TakenAt.IsZero() {
		l.TakenAt = now
	}
	if l.TakenAt.After(now.Add(maxFutureSkew)) {
		return fmt.Errorf("%w: taken_at is in the future", ErrInvalid)
	}

	if l.ProtocolID != nil {
		p, err := s.protocols.GetProtocol(ctx, l.UserID, *l.ProtocolID)
		if errors.Is(err, protocol.ErrNotFound) {
			return fmt.Errorf("%w: protocol %s does not exist", ErrInvalid, *l.ProtocolID)
		}
		if err != nil {
			return err
		}
		if l.MedicineID != uuid.Nil && l.MedicineID != p.MedicineID {
			return fmt.Errorf("%w: medicine does not match protocol", ErrInvalid)
		}
		l.MedicineID = p.MedicineID
	}
	if l.MedicineID == uuid.Nil {
		return fmt.Errorf("%w: medicine_id or protocol_id is required", ErrInvalid)
	}
	return nil
}

// LogIntake records an intake and deducts the quantity from the medicine's
// stock in the same transaction. The amount deducted is kept on the log so a
// later delete restores exactly that.
func (s *Service) LogIntake(ctx context.Context, l *IntakeLog) error {
	if err := s.resolve(ctx, l); err != nil {
		return err
	}
	err := s.tx(ctx, func(ctx context.Context) error {
		deducted, err := s.stock.ConsumeStock(ctx, l.UserID, l.MedicineID, l.QuantityTaken)
		if errors.Is(err, medicine.ErrNotFound) {
			return fmt.Errorf("%w: medicine %s does not exist", ErrInvalid, l.MedicineID)
		}
		if err != nil {
			return err
		}
		l.StockDeducted = deducted
		return s.repo.Create(ctx, l)
	})
	if err != nil {
		return err
	}
	s.metrics.IntakeLogged()
	zerolog.Ctx(ctx).Debug().
		Str("intake_id", l.ID.String()).
		Str("medicine_id", l.MedicineID.String()).
		Float64("quantity", l.QuantityTaken).
		Msg("intake logged")
	s.notify(l.UserID)
	return nil
}

func (s *Service) GetIntake(ctx context.Context, userID string, id uuid.UUID) (*IntakeLog, error) {
	return s.repo.GetByID(ctx, userID, id)
}

// DeleteIntake removes a log and returns what it deducted to stock.
func (s *Service) DeleteIntake(ctx context.Context, userID string, id uuid.UUID) error {
	err := s.tx(ctx, func(ctx context.Context) error {
		l, err := s.repo.GetByID(ctx, userID, id)
		if err != nil {
			return err
		}
		if err := s.repo.Delete(ctx, userID, id); err != nil {
			return err
		}
		if l.StockDeducted <= 0 {
			return nil
		}
		_, err = s.stock.Restock(ctx, userID, l.MedicineID, l.StockDeducted)
		if errors.Is(err, medicine.ErrNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return err
	}
	s.notify(userID)
	return nil
}

// ListIntakes returns logs taken in [from, to), newest first.
func (s *Service) ListIntakes(ctx context.Context, userID string, from, to time.Time, limit, offset int) ([]*IntakeLog, int, error) {
	if !to.After(from) {
		return nil, 0, fmt.Errorf("%w: to must be after from", ErrInvalid)
	}
	return s.repo.ListRange(ctx, userID, from, to, limit, offset)
}

func (s *Service) ListSince(ctx context.Context, userID string, from time.Time) ([]*IntakeLog, error) {
	return s.repo.ListSince(ctx, userID, from)
}

func (s *Service) LastChange(ctx context.Context, userID string) (time.Time, error) {
	return s.repo.LastChange(ctx, userID)
}
