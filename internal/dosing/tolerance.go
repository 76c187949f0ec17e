package dosing

import "time"

// ToleranceWindow is how far a logged intake may sit from its scheduled time
// and still count as on time.
const ToleranceWindow = 120 * time.Minute

// IsWithinTolerance reports whether loggedAt lies within ToleranceWindow of
// scheduled ("HH:MM") on loggedAt's own civil day in loc. An unparseable
// scheduled time never matches.
func IsWithinTolerance(scheduled string, loggedAt time.Time, loc *time.Location) bool {
	clock, err := ParseClock(scheduled)
	if err != nil {
		return false
	}
	return withinTolerance(clock, loggedAt, loc)
}

func withinTolerance(clock ClockTime, loggedAt time.Time, loc *time.Location) bool {
	target := DateOf(loggedAt, loc).At(clock, loc)
	diff := loggedAt.Sub(target)
	if diff < 0 {
		diff = -diff
	}
	return diff <= ToleranceWindow
}

// IsWithinTolerance is IsWithinTolerance evaluated in the engine's zone.
func (e *Engine) IsWithinTolerance(scheduled string, loggedAt time.Time) bool {
	return IsWithinTolerance(scheduled, loggedAt, e.loc)
}

// Match pairs a slot with the log that satisfied it.
type Match struct {
	Slot ExpectedSlot
	Log  IntakeLog
}

// Match pairs logs to slots greedily. Slots are visited in order and each
// claims the first unclaimed log, in input order, that belongs to the same
// protocol and lies within tolerance. There is no nearest-in-time ranking.
func (e *Engine) Match(slots []ExpectedSlot, logs []IntakeLog) (matches []Match, unmatched []ExpectedSlot, leftover []IntakeLog) {
	claimed := make([]bool, len(logs))
	for _, slot := range slots {
		clock, err := ParseClock(slot.ScheduledTime)
		found := -1
		if err == nil {
			for i, l := range logs {
				if claimed[i] || l.ProtocolID == "" || l.ProtocolID != slot.ProtocolID {
					continue
				}
				if withinTolerance(clock, l.TakenAt, e.loc) {
					found = i
					break
				}
			}
		}
		if found < 0 {
			unmatched = append(unmatched, slot)
			continue
		}
		claimed[found] = true
		matches = append(matches, Match{Slot: slot, Log: logs[found]})
	}
	for i, l := range logs {
		if !claimed[i] {
			leftover = append(leftover, l)
		}
	}
	return matches, unmatched, leftover
}

func takenDose(m Match) ClassifiedDose {
	log := m.Log
	scheduled := m.Slot.ScheduledTime
	takenAt := log.TakenAt
	return ClassifiedDose{
		ID:               log.ID,
		ProtocolID:       m.Slot.ProtocolID,
		MedicineID:       medicineOf(log, m.Slot.MedicineID),
		Status:           StatusTaken,
		ScheduledTime:    &scheduled,
		ExpectedQuantity: m.Slot.ExpectedQuantity,
		QuantityTaken:    log.QuantityTaken,
		TakenAt:          &takenAt,
		Log:              &log,
	}
}

func extraDose(log IntakeLog) ClassifiedDose {
	qty := log.QuantityTaken
	if qty <= 0 {
		qty = 1
	}
	takenAt := log.TakenAt
	return ClassifiedDose{
		ID:               log.ID,
		ProtocolID:       log.ProtocolID,
		MedicineID:       log.MedicineID,
		Status:           StatusTaken,
		ExpectedQuantity: qty,
		QuantityTaken:    log.QuantityTaken,
		TakenAt:          &takenAt,
		IsExtra:          true,
		Log:              &log,
	}
}

func medicineOf(log IntakeLog, fallback string) string {
	if log.MedicineID != "" {
		return log.MedicineID
	}
	return fallback
}
