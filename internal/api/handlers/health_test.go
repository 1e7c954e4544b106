package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type stubChecker struct {
	status, message string
}

func (s stubChecker) CheckReady() (string, string) {
	return s.status, s.message
}

func okProbe() error { return nil }

func failProbe() error { return errors.New("недоступно") }

type readyBody struct {
	Status string                       `json:"status"`
	Checks map[string]healthCheckResult `json:"checks"`
}

func ready(t *testing.T, h *HealthHandler) (int, readyBody) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.HealthReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	var body readyBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("тело не JSON: %v", err)
	}
	return rec.Code, body
}

// TestHealthLive проверяет liveness probe.
func TestHealthLive(t *testing.T) {
	h := NewHealthHandler(nil, nil, nil, nil)
	rec := httptest.NewRecorder()

	h.HealthLive(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("статус = %d", rec.Code)
	}
}

// TestHealthReady проверяет итоговый статус по набору проверок.
func TestHealthReady(t *testing.T) {
	tests := []struct {
		name       string
		pg         ReadinessChecker
		storage    ProbeFunc
		pdal       ProbeFunc
		gdal       ProbeFunc
		wantCode   int
		wantStatus string
	}{
		{"всё доступно", stubChecker{"ok", ""}, okProbe, okProbe, okProbe, http.StatusOK, "ok"},
		{"нет pdal", stubChecker{"ok", ""}, okProbe, failProbe, okProbe, http.StatusOK, "degraded"},
		{"нет gdalinfo", stubChecker{"ok", ""}, okProbe, okProbe, failProbe, http.StatusOK, "degraded"},
		{"хранилище недоступно", stubChecker{"ok", ""}, failProbe, okProbe, okProbe, http.StatusServiceUnavailable, "fail"},
		{"PostgreSQL недоступен", stubChecker{"fail", "connection refused"}, okProbe, okProbe, okProbe, http.StatusServiceUnavailable, "fail"},
		{"не инициализирован", nil, nil, nil, nil, http.StatusServiceUnavailable, "fail"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := ready(t, NewHealthHandler(tt.pg, tt.storage, tt.pdal, tt.gdal))

			if code != tt.wantCode {
				t.Errorf("HTTP статус = %d, ожидается %d", code, tt.wantCode)
			}
			if body.Status != tt.wantStatus {
				t.Errorf("status = %q, ожидается %q", body.Status, tt.wantStatus)
			}
			for _, name := range []string{"postgresql", "storage", "pdal", "gdalinfo"} {
				if _, ok := body.Checks[name]; !ok {
					t.Errorf("нет проверки %s", name)
				}
			}
		})
	}
}

// TestHealthReady_Message проверяет передачу сообщения проверки.
func TestHealthReady_Message(t *testing.T) {
	_, body := ready(t, NewHealthHandler(stubChecker{"ok", ""}, okProbe, failProbe, okProbe))

	if got := body.Checks["pdal"]; got.Status != "degraded" || got.Message != "недоступно" {
		t.Errorf("pdal = %+v", got)
	}
}
