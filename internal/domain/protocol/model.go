package protocol

import (
	"time"

	"github.com/google/uuid"

	"github.com/coelhotv/meus-remedios/internal/dosing"
)

// Protocol is a stored dosing plan: how often and at which times a medicine
// is taken, plus an optional titration regimen.
type Protocol struct {
	ID                uuid.UUID               `db:"id" json:"id"`
	UserID            string                  `db:"user_id" json:"user_id"`
	MedicineID        uuid.UUID               `db:"medicine_id" json:"medicine_id"`
	MedicineName      string                  `db:"-" json:"medicine_name,omitempty"`
	Name              string                  `db:"name" json:"name"`
	Active            bool                    `db:"active" json:"active"`
	Frequency         dosing.FrequencyRule    `db:"-" json:"frequency"`
	TimeSchedule      []string                `db:"time_schedule" json:"time_schedule"`
	DosagePerIntake   float64                 `db:"dosage_per_intake" json:"dosage_per_intake"`
	DosageUnit        string                  `db:"dosage_unit" json:"dosage_unit"`
	StartDate         *dosing.CivilDate       `db:"start_date" json:"start_date,omitempty"`
	EndDate           *dosing.CivilDate       `db:"end_date" json:"end_date,omitempty"`
	TitrationStatus   dosing.TitrationStatus  `db:"titration_status" json:"titration_status,omitempty"`
	TitrationSchedule []dosing.TitrationStage `db:"titration_schedule" json:"titration_schedule,omitempty"`
	CurrentStageIndex int                     `db:"current_stage_index" json:"current_stage_index"`
	StageStartedAt    *time.Time              `db:"stage_started_at" json:"stage_started_at,omitempty"`
	Notes             *string                 `db:"notes" json:"notes,omitempty"`
	CreatedAt         time.Time               `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time               `db:"updated_at" json:"updated_at"`
}

// ToDosing converts the stored protocol into the engine's value type.
func (p *Protocol) ToDosing() dosing.Protocol {
	return dosing.Protocol{
		ID:                p.ID.String(),
		MedicineID:        p.MedicineID.String(),
		MedicineName:      p.MedicineName,
		Active:            p.Active,
		Frequency:         p.Frequency,
		TimeSchedule:      p.TimeSchedule,
		DosagePerIntake:   p.DosagePerIntake,
		DosageUnit:        p.DosageUnit,
		StartDate:         p.StartDate,
		EndDate:           p.EndDate,
		TitrationStatus:   p.TitrationStatus,
		TitrationSchedule: p.TitrationSchedule,
		CurrentStageIndex: p.CurrentStageIndex,
		StageStartedAt:    p.StageStartedAt,
	}
}

// ToDosingAll converts a slice of stored protocols.
func ToDosingAll(ps []*Protocol) []dosing.Protocol {
	out := make([]dosing.Protocol, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.ToDosing())
	}
	return out
}
