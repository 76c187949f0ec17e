package dosing

import (
	"errors"
	"testing"
)

func TestAggregate_NoLogs(t *testing.T) {
	e := newTestEngine(at(2026, 2, 11, 21, 0))

	stats, err := e.Aggregate(nil, []Protocol{dailyProtocol("p1", "08:00", "20:00")}, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Score != 0 || stats.Taken != 0 || stats.CurrentStreak != 0 {
		t.Errorf("expected zero stats, got %+v", stats)
	}
	if stats.Expected != 14 {
		t.Errorf("expected 14 expected doses, got %d", stats.Expected)
	}
	if len(stats.Days) != 7 {
		t.Errorf("expected 7 day entries, got %d", len(stats.Days))
	}
}

func TestAggregate_PerfectAdherence(t *testing.T) {
	e := newTestEngine(at(2026, 2, 11, 21, 0))
	var logs []IntakeLog
	for i := 0; i < 5; i++ {
		day := 11 - i
		logs = append(logs,
			intake("m", "p1", at(2026, 2, day, 8, 10)),
			intake("e", "p1", at(2026, 2, day, 19, 45)),
		)
	}

	stats, err := e.Aggregate(logs, []Protocol{dailyProtocol("p1", "08:00", "20:00")}, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Score != 100 {
		t.Errorf("expected score 100, got %d", stats.Score)
	}
	if stats.CurrentStreak != 5 {
		t.Errorf("expected streak 5, got %d", stats.CurrentStreak)
	}
	if stats.Taken != 10 || stats.TakenAnytime != 5 {
		t.Errorf("expected taken 10 and taken anytime 5, got %d and %d", stats.Taken, stats.TakenAnytime)
	}
}

func TestAggregate_IncompleteTodayKeepsStreak(t *testing.T) {
	e := newTestEngine(at(2026, 2, 11, 9, 0))
	logs := []IntakeLog{
		intake("t1", "p1", at(2026, 2, 11, 8, 0)),
		intake("y1", "p1", at(2026, 2, 10, 8, 0)),
		intake("y2", "p1", at(2026, 2, 10, 20, 0)),
		intake("b1", "p1", at(2026, 2, 9, 8, 0)),
		intake("b2", "p1", at(2026, 2, 9, 20, 0)),
	}

	stats, err := e.Aggregate(logs, []Protocol{dailyProtocol("p1", "08:00", "20:00")}, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.CurrentStreak != 2 {
		t.Errorf("expected streak 2, got %d", stats.CurrentStreak)
	}
	if stats.Score != 83 {
		t.Errorf("expected score 83, got %d", stats.Score)
	}
}

func TestAggregate_GapEndsStreak(t *testing.T) {
	e := newTestEngine(at(2026, 2, 11, 21, 0))
	logs := []IntakeLog{
		intake("a", "p1", at(2026, 2, 11, 8, 0)),
		intake("b", "p1", at(2026, 2, 10, 8, 0)),
		// 2026-02-09 missing
		intake("c", "p1", at(2026, 2, 8, 8, 0)),
	}

	stats, err := e.Aggregate(logs, []Protocol{dailyProtocol("p1", "08:00")}, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.CurrentStreak != 2 {
		t.Errorf("expected streak 2, got %d", stats.CurrentStreak)
	}
	if stats.Score != 75 {
		t.Errorf("expected score 75, got %d", stats.Score)
	}
}

func TestAggregate_OffScheduleLogsCountOnlyAnytime(t *testing.T) {
	e := newTestEngine(at(2026, 2, 11, 21, 0))
	logs := []IntakeLog{intake("a", "p1", at(2026, 2, 11, 14, 0))}

	stats, err := e.Aggregate(logs, []Protocol{dailyProtocol("p1", "08:00")}, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Taken != 0 || stats.TakenAnytime != 1 {
		t.Errorf("expected taken 0 and taken anytime 1, got %d and %d", stats.Taken, stats.TakenAnytime)
	}
}

func TestAggregate_RecurrenceAwareTotals(t *testing.T) {
	p := dailyProtocol("p1", "08:00")
	p.Frequency = FrequencyRule{Kind: FrequencyWeekly, Days: []string{"quarta"}}

	plain := newTestEngine(at(2026, 2, 11, 21, 0))
	stats, _ := plain.Aggregate(nil, []Protocol{p}, 7)
	if stats.Expected != 7 {
		t.Errorf("expected every day counted by default, got %d", stats.Expected)
	}

	aware := newTestEngine(at(2026, 2, 11, 21, 0), WithRecurrenceAwareTotals(true))
	stats, _ = aware.Aggregate(nil, []Protocol{p}, 7)
	if stats.Expected != 1 {
		t.Errorf("expected only Wednesday counted, got %d", stats.Expected)
	}
}

func TestAggregate_WindowBounds(t *testing.T) {
	e := newTestEngine(at(2026, 2, 11, 21, 0))

	stats, err := e.Aggregate(nil, []Protocol{dailyProtocol("p1", "08:00")}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Expected != 0 || stats.Score != 0 || len(stats.Days) != 0 {
		t.Errorf("expected empty stats for zero window, got %+v", stats)
	}

	_, err = e.Aggregate(nil, nil, -1)
	var inErr *InputError
	if !errors.As(err, &inErr) || !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected InputError, got %v", err)
	}
	if inErr.Field != "window_days" {
		t.Errorf("expected field window_days, got %s", inErr.Field)
	}
}

func TestScore_Clamped(t *testing.T) {
	if got := score(3, 2); got != 100 {
		t.Errorf("expected score clamped to 100, got %d", got)
	}
	if got := score(2, 3); got != 67 {
		t.Errorf("expected 67, got %d", got)
	}
	if got := score(1, 0); got != 0 {
		t.Errorf("expected 0 with nothing expected, got %d", got)
	}
}
