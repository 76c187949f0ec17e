package dosing

// IsDue reports whether p expects intakes on d.
func (e *Engine) IsDue(p Protocol, d CivilDate) bool {
	if !p.Active {
		return false
	}
	if p.StartDate != nil && d.Before(*p.StartDate) {
		return false
	}
	if p.EndDate != nil && d.After(*p.EndDate) {
		return false
	}

	switch p.Frequency.Kind {
	case FrequencyDaily:
		return true
	case FrequencyWeekly:
		return weekdayListed(p.Frequency.Days, d.Weekday())
	case FrequencyAlternating:
		if p.Frequency.StartDate == nil {
			return true
		}
		diff := d.DaysSince(*p.Frequency.StartDate)
		return ((diff%2)+2)%2 == 0
	case FrequencyCustom, FrequencyAsNeeded:
		return false
	}

	e.logger.Warn().
		Str("protocol_id", p.ID).
		Str("frequency", string(p.Frequency.Kind)).
		Bool("treated_as_due", e.unknownPolicy == FailOpen).
		Msg("unrecognized frequency rule")
	return e.unknownPolicy == FailOpen
}

// ExpectedSlots expands every protocol due on d into one slot per schedule
// entry, in protocol order then schedule order. Schedule entries that are not
// valid HH:MM times are skipped.
func (e *Engine) ExpectedSlots(protocols []Protocol, d CivilDate) []ExpectedSlot {
	var slots []ExpectedSlot
	for i := range protocols {
		p := &protocols[i]
		if !e.IsDue(*p, d) {
			continue
		}
		slots = append(slots, slotsFor(p)...)
	}
	return slots
}

func slotsFor(p *Protocol) []ExpectedSlot {
	slots := make([]ExpectedSlot, 0, len(p.TimeSchedule))
	for _, hhmm := range p.TimeSchedule {
		clock, err := ParseClock(hhmm)
		if err != nil {
			continue
		}
		slots = append(slots, ExpectedSlot{
			ProtocolID:       p.ID,
			MedicineID:       p.MedicineID,
			ScheduledTime:    clock.String(),
			ExpectedQuantity: p.DosagePerIntake,
			Protocol:         p,
		})
	}
	return slots
}
