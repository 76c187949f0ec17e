package intakelog

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/coelhotv/meus-remedios/internal/dosing"
	"github.com/coelhotv/meus-remedios/internal/platform/auth"
	"github.com/coelhotv/meus-remedios/pkg/pagination"
)

const defaultListDays = 7

type Handler struct {
	svc *Service
	loc *time.Location
}

// NewHandler builds the intake log API. Bare dates in query parameters are
// read as calendar days in loc.
func NewHandler(svc *Service, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{svc: svc, loc: loc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/intakes", h.ListIntakes)
	api.POST("/intakes", h.LogIntake)
	api.GET("/intakes/:id", h.GetIntake)
	api.DELETE("/intakes/:id", h.DeleteIntake)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "intake log not found")
	case errors.Is(err, ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func (h *Handler) LogIntake(c echo.Context) error {
	uid, err := auth.RequireUser(c)
	if err != nil {
		return err
	}
	var l IntakeLog
	if err := c.Bind(&l); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	l.UserID = uid
	if err := h.svc.LogIntake(c.Request().Context(), &l); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, l)
}

func (h *Handler) GetIntake(c echo.Context) error {
	uid, err := auth.RequireUser(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	l, err := h.svc.GetIntake(c.Request().Context(), uid, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, l)
}

func (h *Handler) DeleteIntake(c echo.Context) error {
	uid, err := auth.RequireUser(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteIntake(c.Request().Context(), uid, id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ListIntakes accepts from/to as YYYY-MM-DD (to inclusive) or RFC 3339
// instants (to exclusive). Defaults to the last seven days.
func (h *Handler) ListIntakes(c echo.Context) error {
	uid, err := auth.RequireUser(c)
	if err != nil {
		return err
	}
	today := dosing.DateOf(h.svc.clock.Now(), h.loc)
	from := today.AddDays(-(defaultListDays - 1)).At(dosing.ClockTime{}, h.loc)
	to := today.AddDays(1).At(dosing.ClockTime{}, h.loc)

	if v := c.QueryParam("from"); v != "" {
		if from, err = h.parseBound(v, false); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid from")
		}
	}
	if v := c.QueryParam("to"); v != "" {
		if to, err = h.parseBound(v, true); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid to")
		}
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListIntakes(c.Request().Context(), uid, from, to, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*IntakeLog{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) parseBound(v string, upper bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	d, err := dosing.ParseDate(v)
	if err != nil {
		return time.Time{}, err
	}
	if upper {
		d = d.AddDays(1)
	}
	return d.At(dosing.ClockTime{}, h.loc), nil
}
