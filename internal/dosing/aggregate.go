package dosing

import "math"

// StreakThreshold is the share of a day's expected doses that must be
// followed for the day to extend the streak.
const StreakThreshold = 0.8

// DayAdherence is the per-day breakdown behind AdherenceStats.
type DayAdherence struct {
	Date         CivilDate `json:"date"`
	Expected     int       `json:"expected"`
	Followed     int       `json:"followed"`
	TakenAnytime int       `json:"taken_anytime"`
	Successful   bool      `json:"successful"`
}

// AdherenceStats summarizes adherence over a rolling window ending today.
type AdherenceStats struct {
	Score         int            `json:"score"`
	Taken         int            `json:"taken"`
	TakenAnytime  int            `json:"taken_anytime"`
	Expected      int            `json:"expected"`
	CurrentStreak int            `json:"current_streak"`
	WindowDays    int            `json:"window_days"`
	Days          []DayAdherence `json:"days"`
}

// Aggregate computes adherence over the windowDays days ending today,
// walking backward from today. A negative window is an InputError.
func (e *Engine) Aggregate(logs []IntakeLog, protocols []Protocol, windowDays int) (AdherenceStats, error) {
	if windowDays < 0 {
		return AdherenceStats{}, &InputError{Field: "window_days", Reason: "must not be negative"}
	}
	stats := AdherenceStats{WindowDays: windowDays, Days: []DayAdherence{}}
	if windowDays == 0 {
		return stats, nil
	}

	var active []Protocol
	for _, p := range protocols {
		if p.Active {
			active = append(active, p)
		}
	}

	today := e.Today()
	byDay := make(map[CivilDate][]IntakeLog)
	for _, l := range logs {
		d := DateOf(l.TakenAt, e.loc)
		byDay[d] = append(byDay[d], l)
	}

	streakOpen := true
	for offset := 0; offset < windowDays; offset++ {
		d := today.AddDays(-offset)
		day := e.aggregateDay(d, byDay[d], active)
		stats.Days = append(stats.Days, day)
		stats.Expected += day.Expected
		stats.Taken += day.Followed
		stats.TakenAnytime += day.TakenAnytime

		if !streakOpen {
			continue
		}
		switch {
		case day.Successful:
			stats.CurrentStreak++
		case offset == 0:
			// today is still in progress
		case day.Expected > 0:
			streakOpen = false
		}
	}

	stats.Score = score(stats.Taken, stats.Expected)
	return stats, nil
}

func (e *Engine) aggregateDay(d CivilDate, dayLogs []IntakeLog, active []Protocol) DayAdherence {
	day := DayAdherence{Date: d}

	var slots []ExpectedSlot
	for i := range active {
		p := &active[i]
		if e.recurrenceTotals && !e.IsDue(*p, d) {
			continue
		}
		day.Expected += len(p.TimeSchedule)
		slots = append(slots, slotsFor(p)...)

		for _, l := range dayLogs {
			if l.ProtocolID != "" && l.ProtocolID == p.ID {
				day.TakenAnytime++
				break
			}
		}
	}

	matches, _, _ := e.Match(slots, dayLogs)
	day.Followed = len(matches)
	day.Successful = day.Expected > 0 && float64(day.Followed)/float64(day.Expected) >= StreakThreshold
	return day
}

func score(followed, expected int) int {
	if expected <= 0 {
		return 0
	}
	s := int(math.Round(100 * float64(followed) / float64(expected)))
	return max(0, min(100, s))
}
