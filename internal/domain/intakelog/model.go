package intakelog

import (
	"time"

	"github.com/google/uuid"

	"github.com/coelhotv/meus-remedios/internal/dosing"
)

// IntakeLog records that a user took a medicine at a given instant,
// optionally on behalf of a protocol.
type IntakeLog struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	UserID        string     `db:"user_id" json:"user_id"`
	ProtocolID    *uuid.UUID `db:"protocol_id" json:"protocol_id,omitempty"`
	MedicineID    uuid.UUID  `db:"medicine_id" json:"medicine_id"`
	TakenAt       time.Time  `db:"taken_at" json:"taken_at"`
	QuantityTaken float64    `db:"quantity_taken" json:"quantity_taken"`
	StockDeducted float64    `db:"stock_deducted" json:"stock_deducted"`
	Notes         *string    `db:"notes" json:"notes,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

func (l *IntakeLog) ToDosing() dosing.IntakeLog {
	out := dosing.IntakeLog{
		ID:            l.ID.String(),
		MedicineID:    l.MedicineID.String(),
		TakenAt:       l.TakenAt,
		QuantityTaken: l.QuantityTaken,
	}
	if l.ProtocolID != nil {
		out.ProtocolID = l.ProtocolID.String()
	}
	return out
}

func ToDosingAll(logs []*IntakeLog) []dosing.IntakeLog {
	out := make([]dosing.IntakeLog, 0, len(logs))
	for _, l := range logs {
		out = append(out, l.ToDosing())
	}
	return out
}
