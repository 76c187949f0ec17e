package dosing

import "math"

// StageStatus is a titration stage's position relative to the current one.
type StageStatus string

const (
	StageCompleted StageStatus = "completed"
	StageCurrent   StageStatus = "current"
	StageFuture    StageStatus = "future"
)

// TitrationStep is one stage placed on the calendar.
type TitrationStep struct {
	StepNumber   int         `json:"step_number"`
	Dose         float64     `json:"dose"`
	Unit         string      `json:"unit"`
	DurationDays int         `json:"duration_days"`
	Status       StageStatus `json:"status"`
	StartDate    CivilDate   `json:"start_date"`
	EndDate      CivilDate   `json:"end_date"`
	Description  string      `json:"description,omitempty"`
}

// TitrationTimeline is a titration regimen expanded onto the calendar.
type TitrationTimeline struct {
	Steps            []TitrationStep `json:"steps"`
	CurrentStep      int             `json:"current_step"`
	TotalSteps       int             `json:"total_steps"`
	DaysUntilNext    int             `json:"days_until_next"`
	ProgressPercent  int             `json:"progress_percent"`
	EstimatedEndDate *CivilDate      `json:"estimated_end_date,omitempty"`
}

// TitrationSummary is the condensed view of an ongoing or finished regimen.
type TitrationSummary struct {
	CurrentStep        int        `json:"current_step"`
	TotalSteps         int        `json:"total_steps"`
	DaysUntilNext      int        `json:"days_until_next"`
	ProgressPercent    int        `json:"progress_percent"`
	CurrentDose        float64    `json:"current_dose"`
	CurrentDescription string     `json:"current_description,omitempty"`
	IsComplete         bool       `json:"is_complete"`
	EstimatedEndDate   *CivilDate `json:"estimated_end_date,omitempty"`
}

const defaultDosageUnit = "mg"

// ComputeTimeline lays the stages of p end to end starting at p.StartDate,
// or the day p.StageStartedAt falls on, or today. An empty schedule yields an
// empty timeline; a current stage index outside the schedule is a
// PreconditionError.
func (e *Engine) ComputeTimeline(p Protocol) (TitrationTimeline, error) {
	stages := p.TitrationSchedule
	if len(stages) == 0 {
		return TitrationTimeline{Steps: []TitrationStep{}}, nil
	}
	current := p.CurrentStageIndex
	if current < 0 || current >= len(stages) {
		return TitrationTimeline{}, &PreconditionError{ProtocolID: p.ID, Index: current, Stages: len(stages)}
	}

	today := e.Today()
	cursor := today
	switch {
	case p.StartDate != nil:
		cursor = *p.StartDate
	case p.StageStartedAt != nil:
		cursor = DateOf(*p.StageStartedAt, e.loc)
	}

	unit := p.DosageUnit
	if unit == "" {
		unit = defaultDosageUnit
	}

	tl := TitrationTimeline{
		Steps:       make([]TitrationStep, 0, len(stages)),
		CurrentStep: current + 1,
		TotalSteps:  len(stages),
	}
	totalDays := 0
	for i, st := range stages {
		duration := max(st.DurationDays, 1)
		end := cursor.AddDays(duration - 1)
		status := StageFuture
		switch {
		case i < current:
			status = StageCompleted
		case i == current:
			status = StageCurrent
		}
		tl.Steps = append(tl.Steps, TitrationStep{
			StepNumber:   i + 1,
			Dose:         st.Dosage,
			Unit:         unit,
			DurationDays: duration,
			Status:       status,
			StartDate:    cursor,
			EndDate:      end,
			Description:  st.Description,
		})
		totalDays += duration
		cursor = end.AddDays(1)
	}

	cur := tl.Steps[current]
	if current < len(stages)-1 {
		tl.DaysUntilNext = max(0, cur.EndDate.DaysSince(today))
	}

	done := 0
	for _, st := range tl.Steps[:current] {
		done += st.DurationDays
	}
	elapsed := min(max(today.DaysSince(cur.StartDate), 0), cur.DurationDays)
	progress := int(math.Round(100 * float64(done+elapsed) / float64(totalDays)))
	tl.ProgressPercent = min(progress, 100)

	last := tl.Steps[len(tl.Steps)-1].EndDate
	tl.EstimatedEndDate = &last
	return tl, nil
}

// TitrationSummary condenses the timeline of p. It returns nil unless the
// regimen is active or has reached its target.
func (e *Engine) TitrationSummary(p Protocol) (*TitrationSummary, error) {
	if p.TitrationStatus != TitrationActive && p.TitrationStatus != TitrationTargetReached {
		return nil, nil
	}
	if len(p.TitrationSchedule) == 0 {
		return nil, nil
	}
	tl, err := e.ComputeTimeline(p)
	if err != nil {
		return nil, err
	}
	stage := p.TitrationSchedule[p.CurrentStageIndex]
	return &TitrationSummary{
		CurrentStep:        tl.CurrentStep,
		TotalSteps:         tl.TotalSteps,
		DaysUntilNext:      tl.DaysUntilNext,
		ProgressPercent:    tl.ProgressPercent,
		CurrentDose:        stage.Dosage,
		CurrentDescription: stage.Description,
		IsComplete:         p.TitrationStatus == TitrationTargetReached,
		EstimatedEndDate:   tl.EstimatedEndDate,
	}, nil
}
