package dosing

import (
	"math"
	"time"
)

// StockForecast projects when a medicine's stock runs out.
type StockForecast struct {
	Stock            float64    `json:"stock"`
	DailyConsumption float64    `json:"daily_consumption"`
	DaysRemaining    *int       `json:"days_remaining"`
	DepletionDate    *CivilDate `json:"depletion_date,omitempty"`
	Low              bool       `json:"low"`
}

// ForecastStock estimates daily consumption of medicineID from its active
// protocols and derives the days of stock left. Protocols for other
// medicines are ignored. With no consumption there is no depletion date.
func ForecastStock(medicineID string, stock float64, protocols []Protocol, today CivilDate, lowThresholdDays int) StockForecast {
	f := StockForecast{Stock: math.Max(stock, 0)}
	for _, p := range protocols {
		if !p.Active || p.MedicineID != medicineID {
			continue
		}
		if p.EndDate != nil && today.After(*p.EndDate) {
			continue
		}
		f.DailyConsumption += p.DosagePerIntake * float64(len(p.TimeSchedule)) * dailyShare(p.Frequency)
	}
	if f.DailyConsumption <= 0 {
		return f
	}

	days := int(math.Floor(f.Stock / f.DailyConsumption))
	depletion := today.AddDays(days)
	f.DaysRemaining = &days
	f.DepletionDate = &depletion
	f.Low = days <= lowThresholdDays
	return f
}

// dailyShare is the average fraction of days on which a rule expects intakes.
func dailyShare(rule FrequencyRule) float64 {
	switch rule.Kind {
	case FrequencyDaily:
		return 1
	case FrequencyWeekly:
		seen := make(map[time.Weekday]bool)
		for _, name := range rule.Days {
			if wd, ok := ParseWeekday(name); ok {
				seen[wd] = true
			}
		}
		return float64(len(seen)) / 7
	case FrequencyAlternating:
		return 0.5
	}
	return 0
}
