package protocol

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/coelhotv/meus-remedios/internal/domain/medicine"
	"github.com/coelhotv/meus-remedios/internal/dosing"
)

var (
	ErrInvalid = errors.New("invalid protocol")
	// ErrTitrationInactive is returned when advancing a protocol that has no
	// active titration regimen.
	ErrTitrationInactive = errors.New("titration is not active")
)

const maxStageDays = 365

// MedicineLookup resolves the medicine a protocol refers to.
type MedicineLookup interface {
	GetMedicine(ctx context.Context, userID string, id uuid.UUID) (*medicine.Medicine, error)
}

type Service struct {
	repo      Repository
	medicines MedicineLookup
	clock     dosing.Clock
	listeners []func(userID string)
}

func NewService(repo Repository, medicines MedicineLookup, clock dosing.Clock) *Service {
	if clock == nil {
		clock = dosing.SystemClock{}
	}
	return &Service{repo: repo, medicines: medicines, clock: clock}
}

// OnChange registers fn to run after one of a user's protocols is written.
func (s *Service) OnChange(fn func(userID string)) {
	s.listeners = append(s.listeners, fn)
}

func (s *Service) notify(userID string) {
	for _, fn := range s.listeners {
		fn(userID)
	}
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Validate normalizes and checks p before it is written. Reads never
// validate, so rows written by older versions stay readable.
func Validate(p *Protocol) error {
	if p.MedicineID == uuid.Nil {
		return invalid("medicine_id is required")
	}
	if !p.Frequency.Kind.Known() {
		return invalid("unknown frequency kind %q", p.Frequency.Kind)
	}
	if p.Frequency.Kind == dosing.FrequencyWeekly {
		recognized := 0
		for _, day := range p.Frequency.Days {
			if _, ok := dosing.ParseWeekday(day); !ok {
				return invalid("unknown weekday %q", day)
			}
			recognized++
		}
		if recognized == 0 {
			return invalid("weekly frequency needs at least one day")
		}
	}
	if p.DosagePerIntake <= 0 {
		return invalid("dosage_per_intake must be positive")
	}

	seen := make(map[string]bool, len(p.TimeSchedule))
	normalized := make([]string, 0, len(p.TimeSchedule))
	for _, entry := range p.TimeSchedule {
		clock, err := dosing.ParseClock(entry)
		if err != nil {
			return invalid("time_schedule entry %q is not HH:MM", entry)
		}
		if seen[clock.String()] {
			return invalid("time_schedule entry %s is repeated", clock)
		}
		seen[clock.String()] = true
		normalized = append(normalized, clock.String())
	}
	if len(normalized) == 0 && p.Frequency.Kind != dosing.FrequencyAsNeeded {
		return invalid("time_schedule must not be empty")
	}
	p.TimeSchedule = normalized

	if p.StartDate != nil && p.EndDate != nil && p.EndDate.Before(*p.StartDate) {
		return invalid("end_date is before start_date")
	}
	return validateTitration(p)
}

func validateTitration(p *Protocol) error {
	if len(p.TitrationSchedule) == 0 {
		if p.TitrationStatus != dosing.TitrationNone {
			return invalid("titration_status set without titration_schedule")
		}
		p.CurrentStageIndex = 0
		return nil
	}
	for i, st := range p.TitrationSchedule {
		if st.DurationDays < 1 || st.DurationDays > maxStageDays {
			return invalid("stage %d duration must be between 1 and %d days", i+1, maxStageDays)
		}
		if st.Dosage <= 0 {
			return invalid("stage %d dosage must be positive", i+1)
		}
	}
	switch p.TitrationStatus {
	case dosing.TitrationNone:
		p.TitrationStatus = dosing.TitrationActive
	case dosing.TitrationActive, dosing.TitrationTargetReached:
	default:
		return invalid("unknown titration_status %q", p.TitrationStatus)
	}
	if p.CurrentStageIndex < 0 || p.CurrentStageIndex >= len(p.TitrationSchedule) {
		return invalid("current_stage_index %d outside schedule of %d stages", p.CurrentStageIndex, len(p.TitrationSchedule))
	}
	return nil
}

func (s *Service) checkMedicine(ctx context.Context, p *Protocol) error {
	if s.medicines == nil {
		return nil
	}
	m, err := s.medicines.GetMedicine(ctx, p.UserID, p.MedicineID)
	if errors.Is(err, medicine.ErrNotFound) {
		return invalid("medicine %s does not exist", p.MedicineID)
	}
	if err != nil {
		return err
	}
	p.MedicineName = m.Name
	if p.DosageUnit == "" {
		p.DosageUnit = m.DosageUnit
	}
	return nil
}

func (s *Service) CreateProtocol(ctx context.Context, p *Protocol) error {
	if err := Validate(p); err != nil {
		return err
	}
	if err := s.checkMedicine(ctx, p); err != nil {
		return err
	}
	if len(p.TitrationSchedule) > 0 && p.StageStartedAt == nil {
		now := s.clock.Now()
		p.StageStartedAt = &now
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return err
	}
	s.notify(p.UserID)
	return nil
}

func (s *Service) GetProtocol(ctx context.Context, userID string, id uuid.UUID) (*Protocol, error) {
	return s.repo.GetByID(ctx, userID, id)
}

func (s *Service) UpdateProtocol(ctx context.Context, p *Protocol) error {
	if err := Validate(p); err != nil {
		return err
	}
	if err := s.checkMedicine(ctx, p); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, p); err != nil {
		return err
	}
	s.notify(p.UserID)
	return nil
}

func (s *Service) DeleteProtocol(ctx context.Context, userID string, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, userID, id); err != nil {
		return err
	}
	s.notify(userID)
	return nil
}

func (s *Service) ListProtocols(ctx context.Context, userID string, activeOnly bool, limit, offset int) ([]*Protocol, int, error) {
	return s.repo.List(ctx, userID, activeOnly, limit, offset)
}

func (s *Service) ActiveProtocols(ctx context.Context, userID string) ([]*Protocol, error) {
	return s.repo.ListActive(ctx, userID)
}

func (s *Service) ActiveUserIDs(ctx context.Context) ([]string, error) {
	return s.repo.ActiveUserIDs(ctx)
}

// AdvanceTitration moves an active regimen to its next stage and stamps the
// stage start. Advancing from the last stage marks the target as reached.
func (s *Service) AdvanceTitration(ctx context.Context, userID string, id uuid.UUID) (*Protocol, error) {
	p, err := s.repo.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if p.TitrationStatus != dosing.TitrationActive || len(p.TitrationSchedule) == 0 {
		return nil, ErrTitrationInactive
	}
	if p.CurrentStageIndex < 0 || p.CurrentStageIndex >= len(p.TitrationSchedule) {
		return nil, &dosing.PreconditionError{ProtocolID: p.ID.String(), Index: p.CurrentStageIndex, Stages: len(p.TitrationSchedule)}
	}

	if p.CurrentStageIndex == len(p.TitrationSchedule)-1 {
		p.TitrationStatus = dosing.TitrationTargetReached
	} else {
		p.CurrentStageIndex++
		now := s.clock.Now()
		p.StageStartedAt = &now
	}
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	s.notify(userID)
	return p, nil
}
