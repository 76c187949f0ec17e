package adherence

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/coelhotv/meus-remedios/internal/domain/medicine"
	"github.com/coelhotv/meus-remedios/internal/domain/protocol"
	"github.com/coelhotv/meus-remedios/internal/dosing"
	"github.com/coelhotv/meus-remedios/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/adherence/day", h.Day)
	api.GET("/adherence/summary", h.Summary)
	api.GET("/protocols/:id/titration", h.Titration)
	api.GET("/protocols/:id/titration/summary", h.TitrationSummary)
	api.GET("/medicines/:id/stock", h.Stock)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, protocol.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "protocol not found")
	case errors.Is(err, medicine.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "medicine not found")
	case errors.Is(err, dosing.ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, dosing.ErrStageOutOfRange):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

type dayResponse struct {
	Date dosing.CivilDate `json:"date"`
	dosing.DayResult
}

func (h *Handler) Day(c echo.Context) error {
	uid, err := auth.RequireUser(c)
	if err != nil {
		return err
	}
	d := h.svc.Today()
	if v := c.QueryParam("date"); v != "" {
		if d, err = dosing.ParseDate(v); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		}
	}
	result, err := h.svc.Day(c.Request().Context(), uid, &d)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, dayResponse{Date: d, DayResult: result})
}

func (h *Handler) Summary(c echo.Context) error {
	uid, err := auth.RequireUser(c)
	if err != nil {
		return err
	}
	days := 0
	if v := c.QueryParam("days"); v != "" {
		if days, err = strconv.Atoi(v); err != nil || days < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "days must be a non-negative integer")
		}
	}
	stats, err := h.svc.Summary(c.Request().Context(), uid, days)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, stats)
}

func (h *Handler) Titration(c echo.Context) error {
	uid, err := auth.RequireUser(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	tl, err := h.svc.Titration(c.Request().Context(), uid, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, tl)
}

func (h *Handler) TitrationSummary(c echo.Context) error {
	uid, err := auth.RequireUser(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	s, err := h.svc.TitrationSummary(c.Request().Context(), uid, id)
	if err != nil {
		return httpError(err)
	}
	if s == nil {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) Stock(c echo.Context) error {
	uid, err := auth.RequireUser(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	f, err := h.svc.Stock(c.Request().Context(), uid, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, f)
}
