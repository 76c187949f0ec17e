package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coelhotv/meus-remedios/internal/dosing"
	"github.com/coelhotv/meus-remedios/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type protocolRepoPG struct{ pool *pgxpool.Pool }

func NewProtocolRepoPG(pool *pgxpool.Pool) Repository {
	return &protocolRepoPG{pool: pool}
}

func (r *protocolRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const protoCols = `p.id, p.user_id, p.medicine_id, m.name, p.name, p.active,
	p.frequency_kind, p.frequency_days, p.frequency_start, p.time_schedule,
	p.dosage_per_intake, p.dosage_unit, p.start_date, p.end_date,
	p.titration_status, p.titration_schedule, p.current_stage_index, p.stage_started_at,
	p.notes, p.created_at, p.updated_at`

const protoFrom = ` FROM protocol p JOIN medicine m ON m.id = p.medicine_id`

func dateArg(d *dosing.CivilDate) *time.Time {
	if d == nil {
		return nil
	}
	t := d.Time()
	return &t
}

func dateFrom(t *time.Time) *dosing.CivilDate {
	if t == nil {
		return nil
	}
	d := dosing.DateOf(*t, time.UTC)
	return &d
}

// jsonColumns encodes the JSONB columns of p.
func jsonColumns(p *Protocol) (days, schedule, stages []byte, err error) {
	if days, err = json.Marshal(nonNil(p.Frequency.Days)); err != nil {
		return nil, nil, nil, err
	}
	if schedule, err = json.Marshal(nonNil(p.TimeSchedule)); err != nil {
		return nil, nil, nil, err
	}
	stageList := p.TitrationSchedule
	if stageList == nil {
		stageList = []dosing.TitrationStage{}
	}
	if stages, err = json.Marshal(stageList); err != nil {
		return nil, nil, nil, err
	}
	return days, schedule, stages, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func (r *protocolRepoPG) scanRow(row pgx.Row) (*Protocol, error) {
	var p Protocol
	var kind, status string
	var days, schedule, stages []byte
	var freqStart, start, end *time.Time
	err := row.Scan(&p.ID, &p.UserID, &p.MedicineID, &p.MedicineName, &p.Name, &p.Active,
		&kind, &days, &freqStart, &schedule,
		&p.DosagePerIntake, &p.DosageUnit, &start, &end,
		&status, &stages, &p.CurrentStageIndex, &p.StageStartedAt,
		&p.Notes, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	p.Frequency = dosing.FrequencyRule{Kind: dosing.FrequencyKind(kind), StartDate: dateFrom(freqStart)}
	p.StartDate = dateFrom(start)
	p.EndDate = dateFrom(end)
	p.TitrationStatus = dosing.TitrationStatus(status)
	if err := json.Unmarshal(days, &p.Frequency.Days); err != nil {
		return nil, fmt.Errorf("decode frequency_days of %s: %w", p.ID, err)
	}
	if err := json.Unmarshal(schedule, &p.TimeSchedule); err != nil {
		return nil, fmt.Errorf("decode time_schedule of %s: %w", p.ID, err)
	}
	if err := json.Unmarshal(stages, &p.TitrationSchedule); err != nil {
		return nil, fmt.Errorf("decode titration_schedule of %s: %w", p.ID, err)
	}
	return &p, nil
}

func (r *protocolRepoPG) Create(ctx context.Context, p *Protocol) error {
	days, schedule, stages, err := jsonColumns(p)
	if err != nil {
		return err
	}
	p.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO protocol (id, user_id, medicine_id, name, active,
			frequency_kind, frequency_days, frequency_start, time_schedule,
			dosage_per_intake, dosage_unit, start_date, end_date,
			titration_status, titration_schedule, current_stage_index, stage_started_at, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		RETURNING created_at, updated_at`,
		p.ID, p.UserID, p.MedicineID, p.Name, p.Active,
		string(p.Frequency.Kind), days, dateArg(p.Frequency.StartDate), schedule,
		p.DosagePerIntake, p.DosageUnit, dateArg(p.StartDate), dateArg(p.EndDate),
		string(p.TitrationStatus), stages, p.CurrentStageIndex, p.StageStartedAt, p.Notes,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *protocolRepoPG) GetByID(ctx context.Context, userID string, id uuid.UUID) (*Protocol, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx,
		`SELECT `+protoCols+protoFrom+` WHERE p.id = $1 AND p.user_id = $2`, id, userID))
}

func (r *protocolRepoPG) Update(ctx context.Context, p *Protocol) error {
	days, schedule, stages, err := jsonColumns(p)
	if err != nil {
		return err
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE protocol SET medicine_id=$3, name=$4, active=$5,
			frequency_kind=$6, frequency_days=$7, frequency_start=$8, time_schedule=$9,
			dosage_per_intake=$10, dosage_unit=$11, start_date=$12, end_date=$13,
			titration_status=$14, titration_schedule=$15, current_stage_index=$16,
			stage_started_at=$17, notes=$18, updated_at=NOW()
		WHERE id = $1 AND user_id = $2`,
		p.ID, p.UserID, p.MedicineID, p.Name, p.Active,
		string(p.Frequency.Kind), days, dateArg(p.Frequency.StartDate), schedule,
		p.DosagePerIntake, p.DosageUnit, dateArg(p.StartDate), dateArg(p.EndDate),
		string(p.TitrationStatus), stages, p.CurrentStageIndex, p.StageStartedAt, p.Notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *protocolRepoPG) Delete(ctx context.Context, userID string, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM protocol WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *protocolRepoPG) collect(rows pgx.Rows) ([]*Protocol, error) {
	defer rows.Close()
	var items []*Protocol
	for rows.Next() {
		p, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (r *protocolRepoPG) List(ctx context.Context, userID string, activeOnly bool, limit, offset int) ([]*Protocol, int, error) {
	where := ` WHERE p.user_id = $1 AND ($2 = false OR p.active)`
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*)`+protoFrom+where, userID, activeOnly).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+protoCols+protoFrom+where+` ORDER BY p.created_at LIMIT $3 OFFSET $4`,
		userID, activeOnly, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items, err := r.collect(rows)
	return items, total, err
}

func (r *protocolRepoPG) ListActive(ctx context.Context, userID string) ([]*Protocol, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+protoCols+protoFrom+` WHERE p.user_id = $1 AND p.active ORDER BY p.created_at`, userID)
	if err != nil {
		return nil, err
	}
	return r.collect(rows)
}

func (r *protocolRepoPG) ActiveUserIDs(ctx context.Context) ([]string, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT DISTINCT user_id FROM protocol WHERE active ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
