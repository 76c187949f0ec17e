package dosing

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func at(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, brt)
}

func newTestEngine(now time.Time, opts ...Option) *Engine {
	base := []Option{WithClock(FixedClock(now)), WithLocation(brt)}
	return New(append(base, opts...)...)
}

func dailyProtocol(id string, times ...string) Protocol {
	return Protocol{
		ID:              id,
		MedicineID:      "med-" + id,
		Active:          true,
		Frequency:       FrequencyRule{Kind: FrequencyDaily},
		TimeSchedule:    times,
		DosagePerIntake: 1,
	}
}

func intake(id, protocolID string, t time.Time) IntakeLog {
	return IntakeLog{ID: id, ProtocolID: protocolID, MedicineID: "med-" + protocolID, TakenAt: t, QuantityTaken: 1}
}

func datePtr(d CivilDate) *CivilDate { return &d }

func ids(doses []ClassifiedDose) []string {
	out := []string{}
	for _, d := range doses {
		out = append(out, d.ID)
	}
	return out
}

func TestReconcileDay_NoLogs_AllMissed(t *testing.T) {
	e := newTestEngine(at(2026, 2, 12, 12, 0))
	d := NewDate(2026, time.February, 11)

	res := e.ReconcileDay(&d, nil, []Protocol{dailyProtocol("p1", "08:00", "20:00")})

	if len(res.MissedDoses) != 2 {
		t.Errorf("expected 2 missed doses, got %d", len(res.MissedDoses))
	}
	if len(res.TakenDoses) != 0 {
		t.Errorf("expected 0 taken doses, got %d", len(res.TakenDoses))
	}
	if len(res.ScheduledDoses) != 0 {
		t.Errorf("expected 0 scheduled doses, got %d", len(res.ScheduledDoses))
	}
}

func TestReconcileDay_OneLogMatchesMorningSlot(t *testing.T) {
	e := newTestEngine(at(2026, 2, 12, 12, 0))
	d := NewDate(2026, time.February, 11)
	logs := []IntakeLog{intake("log-1", "p1", at(2026, 2, 11, 8, 30))}

	res := e.ReconcileDay(&d, logs, []Protocol{dailyProtocol("p1", "08:00", "20:00")})

	if len(res.TakenDoses) != 1 {
		t.Fatalf("expected 1 taken dose, got %d", len(res.TakenDoses))
	}
	taken := res.TakenDoses[0]
	if taken.ScheduledTime == nil || *taken.ScheduledTime != "08:00" {
		t.Errorf("expected scheduled time 08:00, got %v", taken.ScheduledTime)
	}
	if taken.IsExtra || taken.IsSynthetic {
		t.Error("matched dose must be neither extra nor synthetic")
	}
	if taken.Log == nil || taken.Log.ID != "log-1" {
		t.Error("expected matched dose to carry its log")
	}
	if len(res.MissedDoses) != 1 || *res.MissedDoses[0].ScheduledTime != "20:00" {
		t.Errorf("expected the 20:00 slot to be missed, got %v", ids(res.MissedDoses))
	}
}

func TestReconcileDay_SyntheticIDFormat(t *testing.T) {
	e := newTestEngine(at(2026, 2, 12, 12, 0))
	d := NewDate(2026, time.February, 11)

	res := e.ReconcileDay(&d, nil, []Protocol{dailyProtocol("proto-1", "08:00")})

	if len(res.MissedDoses) != 1 {
		t.Fatalf("expected 1 missed dose, got %d", len(res.MissedDoses))
	}
	m := res.MissedDoses[0]
	if m.ID != "missed-proto-1-08:00" {
		t.Errorf("expected id missed-proto-1-08:00, got %s", m.ID)
	}
	if !m.IsSynthetic || m.QuantityTaken != 0 || m.Log != nil {
		t.Errorf("expected synthetic dose with zero quantity, got %+v", m)
	}
}

func TestReconcileDay_ExtraDose(t *testing.T) {
	e := newTestEngine(at(2026, 2, 12, 12, 0))
	d := NewDate(2026, time.February, 11)
	logs := []IntakeLog{intake("log-1", "p1", at(2026, 2, 11, 14, 0))}

	res := e.ReconcileDay(&d, logs, []Protocol{dailyProtocol("p1", "08:00", "20:00")})

	if len(res.TakenDoses) != 1 {
		t.Fatalf("expected 1 taken dose, got %d", len(res.TakenDoses))
	}
	extra := res.TakenDoses[0]
	if !extra.IsExtra {
		t.Error("expected 14:00 log to be an extra dose")
	}
	if extra.ScheduledTime != nil {
		t.Errorf("extra dose must have no scheduled time, got %s", *extra.ScheduledTime)
	}
	if extra.ExpectedQuantity != 1 {
		t.Errorf("expected quantity 1, got %v", extra.ExpectedQuantity)
	}
	if len(res.MissedDoses) != 2 {
		t.Errorf("expected both slots missed, got %d", len(res.MissedDoses))
	}
}

func TestReconcileDay_ExtraDoseQuantityDefaultsToOne(t *testing.T) {
	e := newTestEngine(at(2026, 2, 12, 12, 0))
	d := NewDate(2026, time.February, 11)
	l := intake("log-1", "", at(2026, 2, 11, 14, 0))
	l.QuantityTaken = 0

	res := e.ReconcileDay(&d, []IntakeLog{l}, []Protocol{dailyProtocol("p1", "08:00")})

	if len(res.TakenDoses) != 1 || res.TakenDoses[0].ExpectedQuantity != 1 {
		t.Fatalf("expected one extra dose with quantity 1, got %+v", res.TakenDoses)
	}
}

func TestReconcileDay_WeeklyInclusion(t *testing.T) {
	e := newTestEngine(at(2026, 2, 12, 12, 0))
	d := NewDate(2026, time.February, 11) // Wednesday

	p := dailyProtocol("p1", "08:00", "20:00")
	p.Frequency = FrequencyRule{Kind: FrequencyWeekly, Days: []string{"quarta", "sexta"}}
	res := e.ReconcileDay(&d, nil, []Protocol{p})
	if len(res.MissedDoses) != 2 {
		t.Errorf("expected 2 missed doses on a listed weekday, got %d", len(res.MissedDoses))
	}

	p.Frequency = FrequencyRule{Kind: FrequencyWeekly, Days: []string{"segunda", "terça"}}
	res = e.ReconcileDay(&d, nil, []Protocol{p})
	if n := len(res.MissedDoses) + len(res.ScheduledDoses) + len(res.TakenDoses); n != 0 {
		t.Errorf("expected no slots on an unlisted weekday, got %d", n)
	}
}

func TestReconcileDay_TodaySplitsMissedAndScheduled(t *testing.T) {
	e := newTestEngine(at(2026, 2, 11, 12, 0))
	d := NewDate(2026, time.February, 11)

	res := e.ReconcileDay(&d, nil, []Protocol{dailyProtocol("p1", "08:00", "12:00", "20:00")})

	if diff := cmp.Diff([]string{"missed-p1-08:00"}, ids(res.MissedDoses)); diff != "" {
		t.Errorf("missed mismatch (-want +got):\n%s", diff)
	}
	// a slot at the current minute is not yet missed
	if diff := cmp.Diff([]string{"scheduled-p1-12:00", "scheduled-p1-20:00"}, ids(res.ScheduledDoses)); diff != "" {
		t.Errorf("scheduled mismatch (-want +got):\n%s", diff)
	}
}

func TestReconcileDay_FutureDateIsScheduled(t *testing.T) {
	e := newTestEngine(at(2026, 2, 11, 23, 0))
	d := NewDate(2026, time.February, 12)

	res := e.ReconcileDay(&d, nil, []Protocol{dailyProtocol("p1", "00:30", "08:00")})

	if len(res.ScheduledDoses) != 2 || len(res.MissedDoses) != 0 {
		t.Errorf("expected 2 scheduled and 0 missed, got %d and %d", len(res.ScheduledDoses), len(res.MissedDoses))
	}
}

func TestReconcileDay_MissingData(t *testing.T) {
	e := newTestEngine(at(2026, 2, 12, 12, 0))
	d := NewDate(2026, time.February, 11)
	logs := []IntakeLog{intake("log-1", "p1", at(2026, 2, 11, 8, 0))}

	for name, res := range map[string]DayResult{
		"nil date":     e.ReconcileDay(nil, logs, []Protocol{dailyProtocol("p1", "08:00")}),
		"no protocols": e.ReconcileDay(&d, logs, nil),
	} {
		if res.TakenDoses == nil || res.MissedDoses == nil || res.ScheduledDoses == nil {
			t.Errorf("%s: expected non-nil empty lists", name)
		}
		if len(res.TakenDoses)+len(res.MissedDoses)+len(res.ScheduledDoses) != 0 {
			t.Errorf("%s: expected empty result, got %+v", name, res)
		}
	}
}

func TestReconcileDay_PartitionCompleteness(t *testing.T) {
	e := newTestEngine(at(2026, 2, 11, 15, 0))
	d := NewDate(2026, time.February, 11)

	weekly := dailyProtocol("p3", "09:00")
	weekly.Frequency = FrequencyRule{Kind: FrequencyWeekly, Days: []string{"quarta"}}
	asNeeded := dailyProtocol("p4", "10:00")
	asNeeded.Frequency = FrequencyRule{Kind: FrequencyAsNeeded}
	protocols := []Protocol{
		dailyProtocol("p1", "08:00", "14:00", "20:00"),
		dailyProtocol("p2", "07:00", "22:00"),
		weekly,
		asNeeded,
	}
	logs := []IntakeLog{
		intake("l1", "p1", at(2026, 2, 11, 8, 15)),
		intake("l2", "p1", at(2026, 2, 11, 8, 20)),
		intake("l3", "p2", at(2026, 2, 11, 6, 0)),
		intake("l4", "p4", at(2026, 2, 11, 10, 0)),
		intake("l5", "p3", at(2026, 2, 11, 13, 30)),
		intake("l6", "", at(2026, 2, 11, 9, 0)),
	}

	res := e.ReconcileDay(&d, logs, protocols)

	slots := e.ExpectedSlots(protocols, d)
	total := len(res.TakenDoses) + len(res.MissedDoses) + len(res.ScheduledDoses)
	matched := 0
	for _, dose := range res.TakenDoses {
		if !dose.IsExtra {
			matched++
		}
	}
	if want := len(slots) + len(logs) - matched; total != want {
		t.Errorf("expected %d classified entries, got %d", want, total)
	}

	seen := map[string]bool{}
	for _, list := range [][]ClassifiedDose{res.TakenDoses, res.MissedDoses, res.ScheduledDoses} {
		for _, dose := range list {
			if seen[dose.ID] {
				t.Errorf("dose %s classified twice", dose.ID)
			}
			seen[dose.ID] = true
		}
	}
	for _, l := range logs {
		if !seen[l.ID] {
			t.Errorf("log %s missing from result", l.ID)
		}
	}
	for _, s := range slots {
		found := false
		for _, dose := range append(append([]ClassifiedDose{}, res.MissedDoses...), res.ScheduledDoses...) {
			if dose.ProtocolID == s.ProtocolID && *dose.ScheduledTime == s.ScheduledTime {
				found = true
			}
		}
		for _, dose := range res.TakenDoses {
			if !dose.IsExtra && dose.ProtocolID == s.ProtocolID && *dose.ScheduledTime == s.ScheduledTime {
				found = true
			}
		}
		if !found {
			t.Errorf("slot %s@%s missing from result", s.ProtocolID, s.ScheduledTime)
		}
	}
}

func TestMatch_FirstLogInInputOrderWins(t *testing.T) {
	e := newTestEngine(at(2026, 2, 11, 23, 0))
	p := dailyProtocol("p1", "08:00")
	slots := e.ExpectedSlots([]Protocol{p}, NewDate(2026, time.February, 11))
	logs := []IntakeLog{
		intake("later", "p1", at(2026, 2, 11, 9, 50)),
		intake("closer", "p1", at(2026, 2, 11, 8, 1)),
	}

	matches, unmatched, leftover := e.Match(slots, logs)

	if len(matches) != 1 || matches[0].Log.ID != "later" {
		t.Fatalf("expected first log in input order to be claimed, got %+v", matches)
	}
	if len(unmatched) != 0 {
		t.Errorf("expected no unmatched slots, got %d", len(unmatched))
	}
	if len(leftover) != 1 || leftover[0].ID != "closer" {
		t.Errorf("expected the other log to be left over, got %+v", leftover)
	}
}

func TestMatch_RequiresSameProtocol(t *testing.T) {
	e := newTestEngine(at(2026, 2, 11, 23, 0))
	slots := e.ExpectedSlots([]Protocol{dailyProtocol("p1", "08:00")}, NewDate(2026, time.February, 11))
	logs := []IntakeLog{intake("l1", "p2", at(2026, 2, 11, 8, 0))}

	matches, unmatched, leftover := e.Match(slots, logs)

	if len(matches) != 0 || len(unmatched) != 1 || len(leftover) != 1 {
		t.Errorf("expected no cross-protocol match, got %d/%d/%d", len(matches), len(unmatched), len(leftover))
	}
}

func TestIsWithinTolerance_Symmetry(t *testing.T) {
	base := at(2026, 2, 11, 10, 0)
	tests := []struct {
		offset time.Duration
		want   bool
	}{
		{-120 * time.Minute, true},
		{0, true},
		{120 * time.Minute, true},
		{-121 * time.Minute, false},
		{121 * time.Minute, false},
	}
	for _, tt := range tests {
		if got := IsWithinTolerance("10:00", base.Add(tt.offset), brt); got != tt.want {
			t.Errorf("offset %v: got %v, want %v", tt.offset, got, tt.want)
		}
	}
	if IsWithinTolerance("bogus", base, brt) {
		t.Error("expected malformed scheduled time never to match")
	}
}

func TestIsWithinTolerance_UsesLogsOwnDay(t *testing.T) {
	e := newTestEngine(at(2026, 2, 11, 12, 0))
	// 23:30 on the 10th is far from 00:30 on the 10th, even though it is
	// within two hours of 00:30 on the 11th.
	if e.IsWithinTolerance("00:30", at(2026, 2, 10, 23, 30)) {
		t.Error("expected comparison on the log's own calendar day")
	}
	if !e.IsWithinTolerance("23:00", at(2026, 2, 10, 23, 30)) {
		t.Error("expected 23:30 to be within tolerance of 23:00")
	}
}

func TestLogsOn(t *testing.T) {
	d := NewDate(2026, time.February, 11)
	logs := []IntakeLog{
		intake("a", "p1", at(2026, 2, 11, 0, 0)),
		intake("b", "p1", at(2026, 2, 10, 23, 59)),
		intake("c", "p1", time.Date(2026, 2, 12, 2, 0, 0, 0, time.UTC)), // 23:00 BRT on the 11th
	}
	got := LogsOn(d, logs, brt)
	var gotIDs []string
	for _, l := range got {
		gotIDs = append(gotIDs, l.ID)
	}
	if diff := cmp.Diff([]string{"a", "c"}, gotIDs); diff != "" {
		t.Errorf("LogsOn mismatch (-want +got):\n%s", diff)
	}
}
