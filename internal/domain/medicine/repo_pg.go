package medicine

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coelhotv/meus-remedios/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type medicineRepoPG struct{ pool *pgxpool.Pool }

func NewMedicineRepoPG(pool *pgxpool.Pool) Repository {
	return &medicineRepoPG{pool: pool}
}

func (r *medicineRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const medCols = `id, user_id, name, active_ingredient, laboratory,
	dosage_per_pill, dosage_unit, stock_quantity, created_at, updated_at`

func (r *medicineRepoPG) scanRow(row pgx.Row) (*Medicine, error) {
	var m Medicine
	err := row.Scan(&m.ID, &m.UserID, &m.Name, &m.ActiveIngredient, &m.Laboratory,
		&m.DosagePerPill, &m.DosageUnit, &m.StockQuantity, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *medicineRepoPG) Create(ctx context.Context, m *Medicine) error {
	m.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO medicine (id, user_id, name, active_ingredient, laboratory,
			dosage_per_pill, dosage_unit, stock_quantity)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at`,
		m.ID, m.UserID, m.Name, m.ActiveIngredient, m.Laboratory,
		m.DosagePerPill, m.DosageUnit, m.StockQuantity).Scan(&m.CreatedAt, &m.UpdatedAt)
}

func (r *medicineRepoPG) GetByID(ctx context.Context, userID string, id uuid.UUID) (*Medicine, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx,
		`SELECT `+medCols+` FROM medicine WHERE id = $1 AND user_id = $2`, id, userID))
}

func (r *medicineRepoPG) Update(ctx context.Context, m *Medicine) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE medicine SET name=$3, active_ingredient=$4, laboratory=$5,
			dosage_per_pill=$6, dosage_unit=$7, stock_quantity=$8, updated_at=NOW()
		WHERE id = $1 AND user_id = $2`,
		m.ID, m.UserID, m.Name, m.ActiveIngredient, m.Laboratory,
		m.DosagePerPill, m.DosageUnit, m.StockQuantity)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *medicineRepoPG) Delete(ctx context.Context, userID string, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM medicine WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *medicineRepoPG) List(ctx context.Context, userID string, limit, offset int) ([]*Medicine, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM medicine WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+medCols+` FROM medicine WHERE user_id = $1 ORDER BY name LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Medicine
	for rows.Next() {
		m, err := r.scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, m)
	}
	return items, total, rows.Err()
}

func (r *medicineRepoPG) AdjustStock(ctx context.Context, userID string, id uuid.UUID, delta float64) (float64, float64, error) {
	var stock, applied float64
	err := r.conn(ctx).QueryRow(ctx, `
		WITH cur AS (
			SELECT stock_quantity FROM medicine WHERE id = $1 AND user_id = $2 FOR UPDATE
		)
		UPDATE medicine m
		SET stock_quantity = GREATEST(cur.stock_quantity + $3, 0), updated_at = NOW()
		FROM cur
		WHERE m.id = $1 AND m.user_id = $2
		RETURNING m.stock_quantity, m.stock_quantity - cur.stock_quantity`, id, userID, delta).Scan(&stock, &applied)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, ErrNotFound
	}
	return stock, applied, err
}
