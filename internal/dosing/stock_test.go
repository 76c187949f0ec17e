package dosing

import "testing"

func TestForecastStock(t *testing.T) {
	today := mustDate(t, "2026-02-11")
	daily := dailyProtocol("p1", "08:00", "20:00")
	daily.MedicineID = "m1"
	weekly := dailyProtocol("p2", "09:00")
	weekly.MedicineID = "m1"
	weekly.DosagePerIntake = 7
	weekly.Frequency = FrequencyRule{Kind: FrequencyWeekly, Days: []string{"segunda", "Segunda-feira"}}
	other := dailyProtocol("p3", "08:00")
	other.MedicineID = "m2"

	f := ForecastStock("m1", 30, []Protocol{daily, weekly, other}, today, 7)

	if f.DailyConsumption != 3 {
		t.Errorf("expected consumption 3/day, got %v", f.DailyConsumption)
	}
	if f.DaysRemaining == nil || *f.DaysRemaining != 10 {
		t.Fatalf("expected 10 days remaining, got %v", f.DaysRemaining)
	}
	if f.DepletionDate.String() != "2026-02-21" {
		t.Errorf("expected depletion 2026-02-21, got %s", f.DepletionDate)
	}
	if f.Low {
		t.Error("expected stock not to be low")
	}

	f = ForecastStock("m1", 5, []Protocol{daily}, today, 7)
	if !f.Low || *f.DaysRemaining != 2 {
		t.Errorf("expected low stock with 2 days, got %+v", f)
	}
}

func TestForecastStock_NoConsumption(t *testing.T) {
	today := mustDate(t, "2026-02-11")
	ended := dailyProtocol("p1", "08:00")
	ended.MedicineID = "m1"
	ended.EndDate = datePtr(mustDate(t, "2026-02-01"))
	asNeeded := dailyProtocol("p2", "08:00")
	asNeeded.MedicineID = "m1"
	asNeeded.Frequency = FrequencyRule{Kind: FrequencyAsNeeded}

	f := ForecastStock("m1", -4, []Protocol{ended, asNeeded}, today, 7)

	if f.Stock != 0 {
		t.Errorf("expected negative stock clamped to 0, got %v", f.Stock)
	}
	if f.DaysRemaining != nil || f.DepletionDate != nil || f.Low {
		t.Errorf("expected no forecast without consumption, got %+v", f)
	}
}
