package medicine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/coelhotv/meus-remedios/internal/platform/auth"
)

func newTestHandler() (*Handler, *echo.Echo) {
	return NewHandler(newTestService()), echo.New()
}

func newRequest(method, body, userID string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, "/", nil)
	} else {
		req = httptest.NewRequest(method, "/", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if userID != "" {
		req = req.WithContext(auth.WithUserID(req.Context(), userID))
	}
	return req
}

func expectStatus(t *testing.T, err error, code int) {
	t.Helper()
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T (%v)", err, err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d", code, httpErr.Code)
	}
}

func TestHandler_CreateMedicine(t *testing.T) {
	h, e := newTestHandler()
	rec := httptest.NewRecorder()
	c := e.NewContext(newRequest(http.MethodPost, `{"name":"Losartana","dosage_per_pill":50,"stock_quantity":30}`, "user-1"), rec)

	if err := h.CreateMedicine(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var got Medicine
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.UserID != "user-1" || got.Name != "Losartana" {
		t.Errorf("unexpected medicine %+v", got)
	}
}

func TestHandler_CreateMedicine_BadRequest(t *testing.T) {
	h, e := newTestHandler()
	c := e.NewContext(newRequest(http.MethodPost, `{"stock_quantity":3}`, "user-1"), httptest.NewRecorder())
	expectStatus(t, h.CreateMedicine(c), http.StatusBadRequest)
}

func TestHandler_CreateMedicine_Unauthenticated(t *testing.T) {
	h, e := newTestHandler()
	c := e.NewContext(newRequest(http.MethodPost, `{"name":"X"}`, ""), httptest.NewRecorder())
	expectStatus(t, h.CreateMedicine(c), http.StatusUnauthorized)
}

func TestHandler_GetMedicine(t *testing.T) {
	h, e := newTestHandler()
	m := &Medicine{UserID: "user-1", Name: "Test"}
	h.svc.CreateMedicine(context.Background(), m)

	rec := httptest.NewRecorder()
	c := e.NewContext(newRequest(http.MethodGet, "", "user-1"), rec)
	c.SetParamNames("id")
	c.SetParamValues(m.ID.String())

	if err := h.GetMedicine(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_GetMedicine_NotFound(t *testing.T) {
	h, e := newTestHandler()
	c := e.NewContext(newRequest(http.MethodGet, "", "user-1"), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())
	expectStatus(t, h.GetMedicine(c), http.StatusNotFound)
}

func TestHandler_GetMedicine_InvalidID(t *testing.T) {
	h, e := newTestHandler()
	c := e.NewContext(newRequest(http.MethodGet, "", "user-1"), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")
	expectStatus(t, h.GetMedicine(c), http.StatusBadRequest)
}

func TestHandler_ListMedicines(t *testing.T) {
	h, e := newTestHandler()
	h.svc.CreateMedicine(context.Background(), &Medicine{UserID: "user-1", Name: "A"})

	rec := httptest.NewRecorder()
	c := e.NewContext(newRequest(http.MethodGet, "", "user-1"), rec)
	if err := h.ListMedicines(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body struct {
		Total int `json:"total"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Total != 1 {
		t.Errorf("expected total 1, got %d", body.Total)
	}
}

func TestHandler_UpdateMedicine(t *testing.T) {
	h, e := newTestHandler()
	m := &Medicine{UserID: "user-1", Name: "Old"}
	h.svc.CreateMedicine(context.Background(), m)

	rec := httptest.NewRecorder()
	c := e.NewContext(newRequest(http.MethodPut, `{"name":"New","stock_quantity":10}`, "user-1"), rec)
	c.SetParamNames("id")
	c.SetParamValues(m.ID.String())

	if err := h.UpdateMedicine(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := h.svc.GetMedicine(context.Background(), "user-1", m.ID)
	if got.Name != "New" || got.StockQuantity != 10 {
		t.Errorf("expected updated medicine, got %+v", got)
	}
}

func TestHandler_DeleteMedicine(t *testing.T) {
	h, e := newTestHandler()
	m := &Medicine{UserID: "user-1", Name: "Test"}
	h.svc.CreateMedicine(context.Background(), m)

	rec := httptest.NewRecorder()
	c := e.NewContext(newRequest(http.MethodDelete, "", "user-1"), rec)
	c.SetParamNames("id")
	c.SetParamValues(m.ID.String())

	if err := h.DeleteMedicine(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
}

func TestHandler_Restock(t *testing.T) {
	h, e := newTestHandler()
	m := &Medicine{UserID: "user-1", Name: "Test", StockQuantity: 2}
	h.svc.CreateMedicine(context.Background(), m)

	rec := httptest.NewRecorder()
	c := e.NewContext(newRequest(http.MethodPost, `{"quantity":28}`, "user-1"), rec)
	c.SetParamNames("id")
	c.SetParamValues(m.ID.String())

	if err := h.Restock(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"stock_quantity":30`) {
		t.Errorf("expected stock 30 in body, got %s", rec.Body.String())
	}
}
