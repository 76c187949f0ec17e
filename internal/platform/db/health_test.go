package db

import (
	"errors"
	"net/http"
	"testing"
)

func TestHealthReport_Healthy(t *testing.T) {
	stats := &PoolStats{TotalConns: 2, MaxConns: 10}
	status, report := healthReport(nil, stats)
	if status != http.StatusOK {
		t.Errorf("expected 200, got %d", status)
	}
	if report.Status != "healthy" || report.Error != "" {
		t.Errorf("unexpected report %+v", report)
	}
	if report.Pool != stats {
		t.Error("expected pool stats to be reported")
	}
}

func TestHealthReport_Unhealthy(t *testing.T) {
	status, report := healthReport(errors.New("connection refused"), &PoolStats{})
	if status != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", status)
	}
	if report.Status != "unhealthy" || report.Error != "connection refused" {
		t.Errorf("unexpected report %+v", report)
	}
}
