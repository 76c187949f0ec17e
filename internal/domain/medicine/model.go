package medicine

import (
	"time"

	"github.com/google/uuid"
)

// Medicine is a drug the user keeps at home, with the quantity on hand.
type Medicine struct {
	ID               uuid.UUID `db:"id" json:"id"`
	UserID           string    `db:"user_id" json:"user_id"`
	Name             string    `db:"name" json:"name"`
	ActiveIngredient *string   `db:"active_ingredient" json:"active_ingredient,omitempty"`
	Laboratory       *string   `db:"laboratory" json:"laboratory,omitempty"`
	DosagePerPill    float64   `db:"dosage_per_pill" json:"dosage_per_pill"`
	DosageUnit       string    `db:"dosage_unit" json:"dosage_unit"`
	StockQuantity    float64   `db:"stock_quantity" json:"stock_quantity"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}
