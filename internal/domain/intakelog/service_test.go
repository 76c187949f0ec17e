package intakelog

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/coelhotv/meus-remedios/internal/domain/medicine"
	"github.com/coelhotv/meus-remedios/internal/domain/protocol"
	"github.com/coelhotv/meus-remedios/internal/dosing"
)

var testNow = time.Date(2026, 2, 11, 12, 0, 0, 0, time.UTC)

type mockIntakeLogRepo struct {
	items    map[uuid.UUID]*IntakeLog
	lastFrom time.Time
	lastTo   time.Time
}

func newMockIntakeLogRepo() *mockIntakeLogRepo {
	return &mockIntakeLogRepo{items: make(map[uuid.UUID]*IntakeLog)}
}

func (m *mockIntakeLogRepo) Create(_ context.Context, l *IntakeLog) error {
	l.ID = uuid.New()
	l.CreatedAt = testNow
	m.items[l.ID] = l
	return nil
}

func (m *mockIntakeLogRepo) GetByID(_ context.Context, userID string, id uuid.UUID) (*IntakeLog, error) {
	l, ok := m.items[id]
	if !ok || l.UserID != userID {
		return nil, ErrNotFound
	}
	return l, nil
}

func (m *mockIntakeLogRepo) Delete(_ context.Context, userID string, id uuid.UUID) error {
	l, ok := m.items[id]
	if !ok || l.UserID != userID {
		return ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *mockIntakeLogRepo) ListRange(_ context.Context, userID string, from, to time.Time, limit, offset int) ([]*IntakeLog, int, error) {
	m.lastFrom, m.lastTo = from, to
	var result []*IntakeLog
	for _, l := range m.items {
		if l.UserID == userID && !l.TakenAt.Before(from) && l.TakenAt.Before(to) {
			result = append(result, l)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].TakenAt.After(result[j].TakenAt) })
	return result, len(result), nil
}

func (m *mockIntakeLogRepo) ListSince(_ context.Context, userID string, from time.Time) ([]*IntakeLog, error) {
	var result []*IntakeLog
	for _, l := range m.items {
		if l.UserID == userID && !l.TakenAt.Before(from) {
			result = append(result, l)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].TakenAt.Before(result[j].TakenAt) })
	return result, nil
}

func (m *mockIntakeLogRepo) LastChange(_ context.Context, userID string) (time.Time, error) {
	var last time.Time
	for _, l := range m.items {
		if l.UserID == userID && l.CreatedAt.After(last) {
			last = l.CreatedAt
		}
	}
	return last, nil
}

type mockProtocols map[uuid.UUID]*protocol.Protocol

func (m mockProtocols) GetProtocol(_ context.Context, userID string, id uuid.UUID) (*protocol.Protocol, error) {
	p, ok := m[id]
	if !ok || p.UserID != userID {
		return nil, protocol.ErrNotFound
	}
	return p, nil
}

type mockStock map[uuid.UUID]float64

func (m mockStock) adjust(id uuid.UUID, delta float64) (float64, error) {
	cur, ok := m[id]
	if !ok {
		return 0, medicine.ErrNotFound
	}
	m[id] = max(cur+delta, 0)
	return m[id], nil
}

func (m mockStock) ConsumeStock(_ context.Context, _ string, id uuid.UUID, q float64) (float64, error) {
	before, ok := m[id]
	if !ok {
		return 0, medicine.ErrNotFound
	}
	after, _ := m.adjust(id, -q)
	return before - after, nil
}

func (m mockStock) Restock(_ context.Context, _ string, id uuid.UUID, q float64) (float64, error) {
	return m.adjust(id, q)
}

type fixture struct {
	svc        *Service
	repo       *mockIntakeLogRepo
	stock      mockStock
	medicineID uuid.UUID
	protocolID uuid.UUID
}

func newTestService() *fixture {
	f := &fixture{
		repo:       newMockIntakeLogRepo(),
		stock:      mockStock{},
		medicineID: uuid.New(),
		protocolID: uuid.New(),
	}
	f.stock[f.medicineID] = 30
	protocols := mockProtocols{
		f.protocolID: {ID: f.protocolID, UserID: "user-1", MedicineID: f.medicineID},
	}
	f.svc = NewService(f.repo, protocols, f.stock, dosing.FixedClock(testNow))
	return f
}

func TestLogIntake_Defaults(t *testing.T) {
	f := newTestService()
	var changed []string
	f.svc.OnChange(func(userID string) { changed = append(changed, userID) })

	l := &IntakeLog{UserID: "user-1", MedicineID: f.medicineID}
	if err := f.svc.LogIntake(context.Background(), l); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.QuantityTaken != 1 {
		t.Errorf("expected default quantity 1, got %v", l.QuantityTaken)
	}
	if !l.TakenAt.Equal(testNow) {
		t.Errorf("expected taken_at to default to now, got %v", l.TakenAt)
	}
	if f.stock[f.medicineID] != 29 {
		t.Errorf("expected stock 29, got %v", f.stock[f.medicineID])
	}
	if len(changed) != 1 || changed[0] != "user-1" {
		t.Errorf("expected one change notification, got %v", changed)
	}
}

func TestLogIntake_FillsMedicineFromProtocol(t *testing.T) {
	f := newTestService()
	l := &IntakeLog{UserID: "user-1", ProtocolID: &f.protocolID, QuantityTaken: 2, TakenAt: testNow.Add(-time.Hour)}
	if err := f.svc.LogIntake(context.Background(), l); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.MedicineID != f.medicineID {
		t.Errorf("expected medicine %s, got %s", f.medicineID, l.MedicineID)
	}
	if f.stock[f.medicineID] != 28 {
		t.Errorf("expected stock 28, got %v", f.stock[f.medicineID])
	}
}

func TestLogIntake_Invalid(t *testing.T) {
	f := newTestService()
	other := uuid.New()
	tests := []struct {
		name string
		log  IntakeLog
	}{
		{"no medicine", IntakeLog{UserID: "user-1"}},
		{"negative quantity", IntakeLog{UserID: "user-1", MedicineID: f.medicineID, QuantityTaken: -1}},
		{"future", IntakeLog{UserID: "user-1", MedicineID: f.medicineID, TakenAt: testNow.Add(6 * time.Minute)}},
		{"unknown protocol", IntakeLog{UserID: "user-1", ProtocolID: &other}},
		{"foreign protocol", IntakeLog{UserID: "user-2", ProtocolID: &f.protocolID}},
		{"medicine mismatch", IntakeLog{UserID: "user-1", ProtocolID: &f.protocolID, MedicineID: other}},
		{"unknown medicine", IntakeLog{UserID: "user-1", MedicineID: other}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := tt.log
			if err := f.svc.LogIntake(context.Background(), &l); !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestLogIntake_ClockSkewAllowed(t *testing.T) {
	f := newTestService()
	l := &IntakeLog{UserID: "user-1", MedicineID: f.medicineID, TakenAt: testNow.Add(4 * time.Minute)}
	if err := f.svc.LogIntake(context.Background(), l); err != nil {
		t.Errorf("expected small skew to be accepted, got %v", err)
	}
}

func TestLogIntake_RunsInTx(t *testing.T) {
	f := newTestService()
	calls := 0
	f.svc.UseTx(func(ctx context.Context, fn func(ctx context.Context) error) error {
		calls++
		return fn(ctx)
	})
	if err := f.svc.LogIntake(context.Background(), &IntakeLog{UserID: "user-1", MedicineID: f.medicineID}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 transaction, got %d", calls)
	}
}

func TestDeleteIntake_RestoresStock(t *testing.T) {
	f := newTestService()
	ctx := context.Background()
	l := &IntakeLog{UserID: "user-1", MedicineID: f.medicineID, QuantityTaken: 3}
	if err := f.svc.LogIntake(ctx, l); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	notified := 0
	f.svc.OnChange(func(string) { notified++ })

	if err := f.svc.DeleteIntake(ctx, "user-2", l.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for another user, got %v", err)
	}
	if err := f.svc.DeleteIntake(ctx, "user-1", l.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.stock[f.medicineID] != 30 {
		t.Errorf("expected stock restored to 30, got %v", f.stock[f.medicineID])
	}
	if notified != 1 {
		t.Errorf("expected one notification, got %d", notified)
	}
	if _, err := f.svc.GetIntake(ctx, "user-1", l.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected deleted log to be gone, got %v", err)
	}
}

func TestDeleteIntake_RestoresOnlyDeductedStock(t *testing.T) {
	f := newTestService()
	ctx := context.Background()
	f.stock[f.medicineID] = 1

	l := &IntakeLog{UserID: "user-1", MedicineID: f.medicineID, QuantityTaken: 2}
	if err := f.svc.LogIntake(ctx, l); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.StockDeducted != 1 || f.stock[f.medicineID] != 0 {
		t.Fatalf("expected 1 deducted leaving 0, got %v leaving %v", l.StockDeducted, f.stock[f.medicineID])
	}
	if err := f.svc.DeleteIntake(ctx, "user-1", l.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.stock[f.medicineID] != 1 {
		t.Errorf("expected stock back to 1, got %v", f.stock[f.medicineID])
	}

	empty := &IntakeLog{UserID: "user-1", MedicineID: f.medicineID}
	f.stock[f.medicineID] = 0
	if err := f.svc.LogIntake(ctx, empty); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.svc.DeleteIntake(ctx, "user-1", empty.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.stock[f.medicineID] != 0 {
		t.Errorf("expected nothing restored for an intake taken from empty stock, got %v", f.stock[f.medicineID])
	}
}

func TestListIntakes_Range(t *testing.T) {
	f := newTestService()
	ctx := context.Background()
	for _, h := range []int{1, 30, 60} {
		l := &IntakeLog{UserID: "user-1", MedicineID: f.medicineID, TakenAt: testNow.Add(-time.Duration(h) * time.Hour)}
		if err := f.svc.LogIntake(ctx, l); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	items, total, err := f.svc.ListIntakes(ctx, "user-1", testNow.Add(-48*time.Hour), testNow, 50, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 || !items[0].TakenAt.After(items[1].TakenAt) {
		t.Errorf("expected 2 logs newest first, got %d", total)
	}

	if _, _, err := f.svc.ListIntakes(ctx, "user-1", testNow, testNow, 50, 0); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid for empty range, got %v", err)
	}
}

func TestToDosing(t *testing.T) {
	f := newTestService()
	l := &IntakeLog{ID: uuid.New(), MedicineID: f.medicineID, TakenAt: testNow, QuantityTaken: 1}
	if got := l.ToDosing(); got.ProtocolID != "" || got.MedicineID != f.medicineID.String() {
		t.Errorf("unexpected conversion %+v", got)
	}
	l.ProtocolID = &f.protocolID
	if got := ToDosingAll([]*IntakeLog{l}); len(got) != 1 || got[0].ProtocolID != f.protocolID.String() {
		t.Errorf("unexpected conversion %+v", got)
	}
}
