package dosing

import "time"

// FrequencyKind tags the recurrence rule of a protocol.
type FrequencyKind string

const (
	FrequencyDaily       FrequencyKind = "daily"
	FrequencyWeekly      FrequencyKind = "weekly"
	FrequencyAlternating FrequencyKind = "alternating"
	FrequencyCustom      FrequencyKind = "custom"
	FrequencyAsNeeded    FrequencyKind = "as_needed"
)

// Known reports whether k is one of the supported rule shapes.
func (k FrequencyKind) Known() bool {
	switch k {
	case FrequencyDaily, FrequencyWeekly, FrequencyAlternating, FrequencyCustom, FrequencyAsNeeded:
		return true
	}
	return false
}

// FrequencyRule decides on which days a protocol expects intakes.
// Days is only read for weekly rules, StartDate only for alternating ones.
type FrequencyRule struct {
	Kind      FrequencyKind `json:"kind" yaml:"kind"`
	Days      []string      `json:"days,omitempty" yaml:"days,omitempty"`
	StartDate *CivilDate    `json:"start_date,omitempty" yaml:"start_date,omitempty"`
}

// TitrationStatus is the lifecycle state of a dose-escalation regimen.
type TitrationStatus string

const (
	TitrationNone          TitrationStatus = ""
	TitrationActive        TitrationStatus = "active"
	TitrationTargetReached TitrationStatus = "target_reached"
)

// TitrationStage is one step of a dose-escalation regimen.
type TitrationStage struct {
	Dosage       float64 `json:"dosage" yaml:"dosage"`
	DurationDays int     `json:"duration_days" yaml:"duration_days"`
	Description  string  `json:"description,omitempty" yaml:"description,omitempty"`
}

// Protocol is a recurring dosing plan for one medicine.
type Protocol struct {
	ID                string           `json:"id" yaml:"id"`
	MedicineID        string           `json:"medicine_id" yaml:"medicine_id"`
	MedicineName      string           `json:"medicine_name,omitempty" yaml:"medicine_name,omitempty"`
	Active            bool             `json:"active" yaml:"active"`
	Frequency         FrequencyRule    `json:"frequency" yaml:"frequency"`
	TimeSchedule      []string         `json:"time_schedule" yaml:"time_schedule"`
	DosagePerIntake   float64          `json:"dosage_per_intake" yaml:"dosage_per_intake"`
	DosageUnit        string           `json:"dosage_unit,omitempty" yaml:"dosage_unit,omitempty"`
	StartDate         *CivilDate       `json:"start_date,omitempty" yaml:"start_date,omitempty"`
	EndDate           *CivilDate       `json:"end_date,omitempty" yaml:"end_date,omitempty"`
	TitrationStatus   TitrationStatus  `json:"titration_status,omitempty" yaml:"titration_status,omitempty"`
	TitrationSchedule []TitrationStage `json:"titration_schedule,omitempty" yaml:"titration_schedule,omitempty"`
	CurrentStageIndex int              `json:"current_stage_index" yaml:"current_stage_index"`
	StageStartedAt    *time.Time       `json:"stage_started_at,omitempty" yaml:"stage_started_at,omitempty"`
}

// IntakeLog is one recorded intake event.
type IntakeLog struct {
	ID            string    `json:"id" yaml:"id"`
	ProtocolID    string    `json:"protocol_id,omitempty" yaml:"protocol_id,omitempty"`
	MedicineID    string    `json:"medicine_id" yaml:"medicine_id"`
	TakenAt       time.Time `json:"taken_at" yaml:"taken_at"`
	QuantityTaken float64   `json:"quantity_taken" yaml:"quantity_taken"`
}

// ExpectedSlot is one intake a protocol expects on a given day.
type ExpectedSlot struct {
	ProtocolID       string
	MedicineID       string
	ScheduledTime    string
	ExpectedQuantity float64
	Protocol         *Protocol
}

// DoseStatus classifies a reconciled dose.
type DoseStatus string

const (
	StatusTaken     DoseStatus = "taken"
	StatusMissed    DoseStatus = "missed"
	StatusScheduled DoseStatus = "scheduled"
)

// ClassifiedDose is a slot or a log after reconciliation. Synthetic doses
// (missed or scheduled) carry no Log.
type ClassifiedDose struct {
	ID               string     `json:"id"`
	ProtocolID       string     `json:"protocol_id,omitempty"`
	MedicineID       string     `json:"medicine_id"`
	Status           DoseStatus `json:"status"`
	ScheduledTime    *string    `json:"scheduled_time"`
	ExpectedQuantity float64    `json:"expected_quantity"`
	QuantityTaken    float64    `json:"quantity_taken"`
	TakenAt          *time.Time `json:"taken_at,omitempty"`
	IsExtra          bool       `json:"is_extra"`
	IsSynthetic      bool       `json:"is_synthetic"`
	Log              *IntakeLog `json:"log,omitempty"`
}

// DayResult is the reconciliation of one calendar day.
type DayResult struct {
	TakenDoses     []ClassifiedDose `json:"taken_doses"`
	MissedDoses    []ClassifiedDose `json:"missed_doses"`
	ScheduledDoses []ClassifiedDose `json:"scheduled_doses"`
}

func emptyDayResult() DayResult {
	return DayResult{
		TakenDoses:     []ClassifiedDose{},
		MissedDoses:    []ClassifiedDose{},
		ScheduledDoses: []ClassifiedDose{},
	}
}
