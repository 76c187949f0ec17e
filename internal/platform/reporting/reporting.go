// Package reporting runs predefined, user-scoped SQL measures over medicines
// and intake history.
package reporting

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"

	"github.com/coelhotv/meus-remedios/internal/platform/auth"
)

// MeasureDefinition is a named query. Every query takes the user id as $1;
// ranged measures also take the [from, to) bounds as $2 and $3, and zoned
// ones the reference time zone name as $4.
type MeasureDefinition struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Ranged      bool   `json:"ranged"`
	Zoned       bool   `json:"-"`
	SQL         string `json:"-"`
}

type MeasureReport struct {
	MeasureID   string                   `json:"measure_id"`
	MeasureName string                   `json:"measure_name"`
	GeneratedAt time.Time                `json:"generated_at"`
	From        *time.Time               `json:"from,omitempty"`
	To          *time.Time               `json:"to,omitempty"`
	Results     []map[string]interface{} `json:"results"`
}

var PredefinedMeasures = []MeasureDefinition{
	{
		ID:          "intakes-by-medicine",
		Name:        "Intakes by Medicine",
		Description: "Number of logged intakes and total quantity per medicine in the period",
		Ranged:      true,
		SQL: `SELECT m.name AS medicine, COUNT(l.id) AS intakes, COALESCE(SUM(l.quantity_taken), 0) AS quantity
FROM intake_log l JOIN medicine m ON m.id = l.medicine_id
WHERE l.user_id = $1 AND l.taken_at >= $2 AND l.taken_at < $3
GROUP BY m.name ORDER BY intakes DESC, m.name`,
	},
	{
		ID:          "intakes-by-hour",
		Name:        "Intakes by Hour of Day",
		Description: "Distribution of logged intakes over the hours of the day in the period",
		Ranged:      true,
		Zoned:       true,
		SQL: `SELECT EXTRACT(HOUR FROM l.taken_at AT TIME ZONE $4)::int AS hour, COUNT(*) AS intakes
FROM intake_log l
WHERE l.user_id = $1 AND l.taken_at >= $2 AND l.taken_at < $3
GROUP BY hour ORDER BY hour`,
	},
	{
		ID:          "stock-overview",
		Name:        "Stock Overview",
		Description: "Current stock of every medicine with the number of active protocols using it",
		SQL: `SELECT m.name AS medicine, m.stock_quantity AS stock,
       COUNT(p.id) FILTER (WHERE p.active) AS active_protocols
FROM medicine m LEFT JOIN protocol p ON p.medicine_id = m.id
WHERE m.user_id = $1
GROUP BY m.id, m.name, m.stock_quantity ORDER BY m.stock_quantity, m.name`,
	},
	{
		ID:          "protocols-by-frequency",
		Name:        "Protocols by Frequency",
		Description: "Active protocols grouped by frequency rule",
		SQL: `SELECT frequency_kind, COUNT(*) AS total
FROM protocol WHERE user_id = $1 AND active
GROUP BY frequency_kind ORDER BY total DESC`,
	},
}

func FindMeasure(id string) *MeasureDefinition {
	for i := range PredefinedMeasures {
		if PredefinedMeasures[i].ID == id {
			return &PredefinedMeasures[i]
		}
	}
	return nil
}

// Querier is satisfied by *pgxpool.Pool.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type Handler struct {
	db      Querier
	loc     *time.Location
	maxDays int
	now     func() time.Time
}

// NewHandler builds the reports API. Date bounds are read in loc; a ranged
// report may span at most maxDays days.
func NewHandler(db Querier, loc *time.Location, maxDays int) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	if maxDays <= 0 {
		maxDays = 365
	}
	return &Handler{db: db, loc: loc, maxDays: maxDays, now: time.Now}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/reports/measures", h.ListMeasures)
	api.GET("/reports/measures/:id", h.EvaluateMeasure)
}

func (h *Handler) ListMeasures(c echo.Context) error {
	return c.JSON(http.StatusOK, PredefinedMeasures)
}

// period parses ?from= and ?to= as inclusive YYYY-MM-DD days. Defaults to the
// last 30 days ending today.
func (h *Handler) period(c echo.Context) (time.Time, time.Time, error) {
	y, m, d := h.now().In(h.loc).Date()
	to := time.Date(y, m, d, 0, 0, 0, 0, h.loc).AddDate(0, 0, 1)
	from := to.AddDate(0, 0, -30)

	if v := c.QueryParam("from"); v != "" {
		t, err := time.ParseInLocation("2006-01-02", v, h.loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid from date %q", v)
		}
		from = t
	}
	if v := c.QueryParam("to"); v != "" {
		t, err := time.ParseInLocation("2006-01-02", v, h.loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid to date %q", v)
		}
		to = t.AddDate(0, 0, 1)
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("to must not be before from")
	}
	if to.Sub(from) > time.Duration(h.maxDays)*24*time.Hour+time.Hour {
		return time.Time{}, time.Time{}, fmt.Errorf("period exceeds %d days", h.maxDays)
	}
	return from, to, nil
}

func (h *Handler) EvaluateMeasure(c echo.Context) error {
	uid, err := auth.RequireUser(c)
	if err != nil {
		return err
	}
	measure := FindMeasure(c.Param("id"))
	if measure == nil {
		return echo.NewHTTPError(http.StatusNotFound, "measure not found")
	}

	report := MeasureReport{MeasureID: measure.ID, MeasureName: measure.Name}
	args := []any{uid}
	if measure.Ranged {
		from, to, err := h.period(c)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		report.From, report.To = &from, &to
		args = append(args, from, to)
		if measure.Zoned {
			args = append(args, h.loc.String())
		}
	}

	results, err := h.execute(c.Request().Context(), measure.SQL, args...)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("query failed: %v", err))
	}
	report.Results = results
	report.GeneratedAt = h.now().UTC()
	return c.JSON(http.StatusOK, report)
}

func (h *Handler) execute(ctx context.Context, sql string, args ...any) ([]map[string]interface{}, error) {
	rows, err := h.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	results := []map[string]interface{}{}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(map[string]interface{}, len(fields))
		for i, fd := range fields {
			row[fd.Name] = values[i]
		}
		results = append(results, row)
	}
	return results, rows.Err()
}
