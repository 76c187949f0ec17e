package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestAuthSkipper(t *testing.T) {
	tests := []struct {
		name      string
		method    string
		path      string
		preflight bool
		want      bool
	}{
		{"health", http.MethodGet, "/health", false, true},
		{"db health", http.MethodGet, "/health/db", false, true},
		{"metrics", http.MethodGet, "/metrics", false, true},
		{"medicines", http.MethodGet, "/api/v1/medicines", false, false},
		{"adherence", http.MethodGet, "/api/v1/adherence/summary", false, false},
		{"unknown health", http.MethodGet, "/health/extra", false, false},
		{"preflight", http.MethodOptions, "/api/v1/intakes", true, true},
		{"bare options", http.MethodOptions, "/api/v1/intakes", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.preflight {
				req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodPost)
			}
			c := e.NewContext(req, httptest.NewRecorder())
			c.SetPath(tt.path)

			if got := AuthSkipper(c); got != tt.want {
				t.Errorf("AuthSkipper(%s %s) = %v, want %v", tt.method, tt.path, got, tt.want)
			}
		})
	}
}
