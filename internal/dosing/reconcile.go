package dosing

import (
	"fmt"
	"time"
)

// classifyUnmatched decides missed versus scheduled for a slot no log
// satisfied, relative to now in the reference zone.
func classifyUnmatched(slot ExpectedSlot, d CivilDate, now time.Time, loc *time.Location) ClassifiedDose {
	status := StatusScheduled
	today := DateOf(now, loc)
	switch {
	case d.Before(today):
		status = StatusMissed
	case d.Equal(today):
		clock, err := ParseClock(slot.ScheduledTime)
		if err == nil && clock.Minutes() < ClockOf(now, loc).Minutes() {
			status = StatusMissed
		}
	}

	scheduled := slot.ScheduledTime
	return ClassifiedDose{
		ID:               fmt.Sprintf("%s-%s-%s", status, slot.ProtocolID, slot.ScheduledTime),
		ProtocolID:       slot.ProtocolID,
		MedicineID:       slot.MedicineID,
		Status:           status,
		ScheduledTime:    &scheduled,
		ExpectedQuantity: slot.ExpectedQuantity,
		QuantityTaken:    0,
		IsSynthetic:      true,
	}
}

// ReconcileDay classifies the expected slots of d and the given logs into
// taken, missed and scheduled doses. Logs are used as given; callers pass
// the logs of d (see LogsOn). Every slot and every log lands in exactly one
// of the three lists. A nil date or an empty protocol list yields three
// empty lists.
func (e *Engine) ReconcileDay(d *CivilDate, logs []IntakeLog, protocols []Protocol) DayResult {
	result := emptyDayResult()
	if d == nil || len(protocols) == 0 {
		return result
	}
	now := e.clock.Now()

	slots := e.ExpectedSlots(protocols, *d)
	matches, unmatched, leftover := e.Match(slots, logs)

	for _, m := range matches {
		result.TakenDoses = append(result.TakenDoses, takenDose(m))
	}
	for _, slot := range unmatched {
		dose := classifyUnmatched(slot, *d, now, e.loc)
		if dose.Status == StatusMissed {
			result.MissedDoses = append(result.MissedDoses, dose)
		} else {
			result.ScheduledDoses = append(result.ScheduledDoses, dose)
		}
	}
	for _, l := range leftover {
		result.TakenDoses = append(result.TakenDoses, extraDose(l))
	}
	return result
}
