package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	apierrors "github.com/ABASgroup/AirBIM/internal/api/errors"
	"github.com/ABASgroup/AirBIM/internal/api/handlers"
	"github.com/ABASgroup/AirBIM/internal/api/middleware"
	"github.com/ABASgroup/AirBIM/internal/api/openapi"
	"github.com/ABASgroup/AirBIM/internal/domain/model"
	"github.com/ABASgroup/AirBIM/internal/service"
	"github.com/ABASgroup/AirBIM/internal/ui"
)

type stubCatalog struct{}

func (stubCatalog) List(context.Context, string) ([]*model.FileRecord, error) {
	return nil, nil
}

func (stubCatalog) Detail(context.Context, string, uuid.UUID) (*service.FileDetail, error) {
	return nil, service.ErrNotFound
}

func (stubCatalog) Delete(context.Context, string, uuid.UUID) (string, error) {
	return "", service.ErrNotFound
}

type stubUploader struct{}

func (stubUploader) Upload(context.Context, string, *service.Upload) (*service.UploadResult, error) {
	return nil, service.ErrMissingFile
}

// testAuth пропускает запросы с заголовком X-Test-Subject.
func testAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sub := r.Header.Get("X-Test-Subject")
		if sub == "" {
			apierrors.Unauthorized(w, "Authorization header is missing")
			return
		}
		next.ServeHTTP(w, r.WithContext(middleware.WithSubject(r.Context(), sub)))
	})
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	spec, err := openapi.Handler()
	if err != nil {
		t.Fatalf("openapi.Handler: %v", err)
	}

	return NewRouter(Handlers{
		Files:   handlers.NewFilesHandler(stubUploader{}, stubCatalog{}, 1<<20, 1<<10, logger),
		Health:  handlers.NewHealthHandler(nil, nil, nil, nil),
		UI:      ui.NewHandler(ui.SiteSettings{AppName: "AirBIM", Theme: ui.LookupTheme("")}, logger),
		OpenAPI: spec,
	}, testAuth, middleware.RequestLogger(logger), middleware.MetricsMiddleware())
}

// TestRouter проверяет маршрутизацию и границы аутентификации.
func TestRouter(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name       string
		method     string
		path       string
		authed     bool
		wantStatus int
		wantType   string
	}{
		{"liveness без токена", http.MethodGet, "/health/live", false, http.StatusOK, "application/json"},
		{"readiness без зависимостей", http.MethodGet, "/health/ready", false, http.StatusServiceUnavailable, "application/json"},
		{"метрики без токена", http.MethodGet, "/metrics", false, http.StatusOK, "text/plain"},
		{"openapi без токена", http.MethodGet, "/api/bim/openapi.json", false, http.StatusOK, "application/json"},
		{"список без токена", http.MethodGet, "/api/bim/files", false, http.StatusUnauthorized, "application/json"},
		{"список", http.MethodGet, "/api/bim/files", true, http.StatusOK, "application/json"},
		{"информация", http.MethodGet, "/api/bim/files/" + uuid.NewString(), true, http.StatusNotFound, "application/json"},
		{"некорректный id", http.MethodDelete, "/api/bim/files/42", true, http.StatusBadRequest, "application/json"},
		{"неизвестный API", http.MethodGet, "/api/bim/unknown", true, http.StatusNotFound, "application/json"},
		{"метод не поддерживается", http.MethodPut, "/api/bim/files", true, http.StatusMethodNotAllowed, "application/json"},
		{"страница без токена", http.MethodGet, "/bim/", false, http.StatusUnauthorized, "application/json"},
		{"главная страница", http.MethodGet, "/bim/", true, http.StatusOK, "text/html"},
		{"главная без слеша", http.MethodGet, "/bim", true, http.StatusOK, "text/html"},
		{"тестовая страница", http.MethodGet, "/bim/test", true, http.StatusOK, "text/html"},
		{"неизвестная страница", http.MethodGet, "/bim/missing", true, http.StatusNotFound, "text/html"},
		{"вне приложения", http.MethodGet, "/unknown", false, http.StatusNotFound, "text/html"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.authed {
				req.Header.Set("X-Test-Subject", "7")
			}
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("статус = %d, ожидается %d (тело: %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, tt.wantType) {
				t.Errorf("Content-Type = %q, ожидается %q", ct, tt.wantType)
			}
		})
	}
}
