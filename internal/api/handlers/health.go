// health.go — обработчики health endpoints AirBIM.
// /health/live — liveness probe (процесс жив)
// /health/ready — readiness probe (PostgreSQL, хранилище, pdal, gdalinfo)
// /metrics — Prometheus метрики
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ABASgroup/AirBIM/internal/config"
)

const (
	statusOK       = "ok"
	statusDegraded = "degraded"
	statusFail     = "fail"
)

// ReadinessChecker — интерфейс проверки готовности зависимости.
type ReadinessChecker interface {
	// CheckReady возвращает статус ("ok", "degraded", "fail") и сообщение.
	CheckReady() (status string, message string)
}

// ProbeFunc — проверка, возвращающая ошибку при недоступности ресурса.
type ProbeFunc func() error

// HealthHandler — обработчик health endpoints.
type HealthHandler struct {
	pgChecker ReadinessChecker
	// storage — проверка записи в хранилище (критичная)
	storage ProbeFunc
	// pdal, gdalinfo — наличие инструментов (некритичные: без них
	// недоступны конвертация и метаданные, но не список и удаление)
	pdal        ProbeFunc
	gdalinfo    ProbeFunc
	promHandler http.Handler
}

// NewHealthHandler создаёт обработчик health endpoints.
// Любая проверка может быть nil: критичные в этом случае считаются "fail",
// инструменты — "degraded".
func NewHealthHandler(pgChecker ReadinessChecker, storage, pdal, gdalinfo ProbeFunc) *HealthHandler {
	return &HealthHandler{
		pgChecker:   pgChecker,
		storage:     storage,
		pdal:        pdal,
		gdalinfo:    gdalinfo,
		promHandler: promhttp.Handler(),
	}
}

// healthCheckResult — результат проверки одной зависимости.
type healthCheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// healthLiveResponse — ответ liveness probe.
type healthLiveResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
}

// healthReadyResponse — ответ readiness probe.
type healthReadyResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
	Checks    struct {
		PostgreSQL healthCheckResult `json:"postgresql"`
		Storage    healthCheckResult `json:"storage"`
		PDAL       healthCheckResult `json:"pdal"`
		GDALInfo   healthCheckResult `json:"gdalinfo"`
	} `json:"checks"`
}

// HealthLive — liveness probe. Возвращает 200 если процесс жив.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthLiveResponse{
		Status:    statusOK,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   "airbim",
	})
}

// HealthReady — readiness probe.
// Возвращает 200 (ok/degraded) или 503 (fail).
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	resp := healthReadyResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   "airbim",
	}

	if h.pgChecker != nil {
		pgStatus, pgMsg := h.pgChecker.CheckReady()
		resp.Checks.PostgreSQL = healthCheckResult{Status: pgStatus, Message: pgMsg}
	} else {
		resp.Checks.PostgreSQL = healthCheckResult{Status: statusFail, Message: "не инициализирован"}
	}

	resp.Checks.Storage = probe(h.storage, statusFail)
	resp.Checks.PDAL = probe(h.pdal, statusDegraded)
	resp.Checks.GDALInfo = probe(h.gdalinfo, statusDegraded)

	resp.Status = overallStatus(
		resp.Checks.PostgreSQL.Status,
		resp.Checks.Storage.Status,
		resp.Checks.PDAL.Status,
		resp.Checks.GDALInfo.Status,
	)

	httpStatus := http.StatusOK
	if resp.Status == statusFail {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, resp)
}

// GetMetrics — Prometheus метрики.
func (h *HealthHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.promHandler.ServeHTTP(w, r)
}

// probe выполняет проверку; при ошибке возвращает failStatus.
func probe(fn ProbeFunc, failStatus string) healthCheckResult {
	if fn == nil {
		return healthCheckResult{Status: failStatus, Message: "не инициализирован"}
	}
	if err := fn(); err != nil {
		return healthCheckResult{Status: failStatus, Message: err.Error()}
	}
	return healthCheckResult{Status: statusOK}
}

// overallStatus вычисляет итоговый статус: fail > degraded > ok.
func overallStatus(statuses ...string) string {
	result := statusOK
	for _, s := range statuses {
		switch s {
		case statusFail:
			return statusFail
		case statusDegraded:
			result = statusDegraded
		}
	}
	return result
}

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
