package intakelog

import (
	"context"
	"errors"
	"time"

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

type intakeLogRepoPG struct{ pool *pgxpool.Pool }

func NewIntakeLogRepoPG(pool *pgxpool.Pool) Repository {
	return &intakeLogRepoPG{pool: pool}
}

func (r *intakeLogRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const logCols = `id, user_id, protocol_id, medicine_id, taken_at, quantity_taken, stock_deducted, notes, created_at`

func (r *intakeLogRepoPG) scanRow(row pgx.Row) (*IntakeLog, error) {
	var l IntakeLog
	err := row.Scan(&l.ID, &l.UserID, &l.ProtocolID, &l.MedicineID, &l.TakenAt,
		&l.QuantityTaken, &l.StockDeducted, &l.Notes, &l.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *intakeLogRepoPG) collect(rows pgx.Rows) ([]*IntakeLog, error) {
	defer rows.Close()
	var items []*IntakeLog
	for rows.Next() {
		l, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, l)
	}
	return items, rows.Err()
}

func (r *intakeLogRepoPG) Create(ctx context.Context, l *IntakeLog) error {
	l.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO intake_log (id, user_id, protocol_id, medicine_id, taken_at, quantity_taken, stock_deducted, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at`,
		l.ID, l.UserID, l.ProtocolID, l.MedicineID, l.TakenAt, l.QuantityTaken, l.StockDeducted, l.Notes).Scan(&l.CreatedAt)
}

func (r *intakeLogRepoPG) GetByID(ctx context.Context, userID string, id uuid.UUID) (*IntakeLog, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx,
		`SELECT `+logCols+` FROM intake_log WHERE id = $1 AND user_id = $2`, id, userID))
}

func (r *intakeLogRepoPG) Delete(ctx context.Context, userID string, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM intake_log WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *intakeLogRepoPG) ListRange(ctx context.Context, userID string, from, to time.Time, limit, offset int) ([]*IntakeLog, int, error) {
	var total int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM intake_log
		WHERE user_id = $1 AND taken_at >= $2 AND taken_at < $3`, userID, from, to).Scan(&total)
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+logCols+` FROM intake_log
		WHERE user_id = $1 AND taken_at >= $2 AND taken_at < $3
		ORDER BY taken_at DESC LIMIT $4 OFFSET $5`, userID, from, to, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items, err := r.collect(rows)
	return items, total, err
}

func (r *intakeLogRepoPG) ListSince(ctx context.Context, userID string, from time.Time) ([]*IntakeLog, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+logCols+` FROM intake_log
		WHERE user_id = $1 AND taken_at >= $2
		ORDER BY taken_at`, userID, from)
	if err != nil {
		return nil, err
	}
	return r.collect(rows)
}

func (r *intakeLogRepoPG) LastChange(ctx context.Context, userID string) (time.Time, error) {
	var last *time.Time
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT MAX(created_at) FROM intake_log WHERE user_id = $1`, userID).Scan(&last)
	if err != nil || last == nil {
		return time.Time{}, err
	}
	return *last, nil
}
