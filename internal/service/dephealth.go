// dephealth.go — интеграция с topologymetrics SDK для мониторинга зависимостей.
//
// AirBIM мониторит:
//   - PostgreSQL — SQL checker через существующий pgxpool (connection pool mode, critical)
//   - JWKS endpoint провайдера идентификации (HTTP GET, critical)
//
// Метрики доступны на /metrics вместе с остальными Prometheus-метриками:
//   - app_dependency_health — состояние зависимости (1 = ok, 0 = fail)
//   - app_dependency_latency_seconds — задержка проверки
package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // регистрация HTTP checker factory
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"
	"github.com/prometheus/client_golang/prometheus"
)

// DephealthConfig — параметры мониторинга зависимостей.
type DephealthConfig struct {
	// ServiceID — имя вершины графа текущего приложения
	ServiceID string
	// Group — имя группы в метриках (BIM_DEPHEALTH_GROUP)
	Group string
	// DB — *sql.DB, полученный из pgxpool через stdlib.OpenDBFromPool()
	DB *sql.DB
	// PGConnURL — URL PostgreSQL (для лейблов, не для подключения)
	PGConnURL string
	// JWKSURL — URL JWKS endpoint
	JWKSURL string
	// JWKSTLSSkipVerify — не проверять TLS-сертификат JWKS endpoint
	JWKSTLSSkipVerify bool
	// CheckInterval — интервал проверки (BIM_DEPHEALTH_CHECK_INTERVAL)
	CheckInterval time.Duration
}

// DephealthService — сервис мониторинга зависимостей через topologymetrics.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// NewDephealthService создаёт сервис мониторинга зависимостей.
// Метрики регистрируются в глобальном Prometheus registry.
func NewDephealthService(cfg DephealthConfig, logger *slog.Logger) (*DephealthService, error) {
	return newDephealthService(cfg, logger)
}

// NewDephealthServiceWithRegisterer создаёт сервис с указанным Prometheus registerer.
// Используется в тестах для изоляции метрик.
func NewDephealthServiceWithRegisterer(
	cfg DephealthConfig,
	logger *slog.Logger,
	registerer prometheus.Registerer,
) (*DephealthService, error) {
	return newDephealthService(cfg, logger, dephealth.WithRegisterer(registerer))
}

// newDephealthService — внутренний конструктор.
func newDephealthService(cfg DephealthConfig, logger *slog.Logger, extraOpts ...dephealth.Option) (*DephealthService, error) {
	jwksOpts := []dephealth.DependencyOption{
		dephealth.FromURL(cfg.JWKSURL),
		dephealth.CheckInterval(cfg.CheckInterval),
		dephealth.Critical(true),
	}
	// FromURL берёт из URL только адрес, путь JWKS передаётся как probe path
	probePath, useTLS, err := parseJWKSProbe(cfg.JWKSURL)
	if err != nil {
		return nil, err
	}
	if probePath != "" {
		jwksOpts = append(jwksOpts, dephealth.WithHTTPHealthPath(probePath))
	}
	if useTLS {
		jwksOpts = append(jwksOpts, dephealth.WithHTTPTLSSkipVerify(cfg.JWKSTLSSkipVerify))
	}

	opts := make([]dephealth.Option, 0, 3+len(extraOpts))
	opts = append(opts,
		dephealth.WithLogger(logger),
		dephealth.AddDependency("postgresql", dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(cfg.DB)),
			dephealth.FromURL(cfg.PGConnURL),
			dephealth.CheckInterval(cfg.CheckInterval),
			dephealth.Critical(true),
		),
		dephealth.HTTP("jwks", jwksOpts...),
	)
	opts = append(opts, extraOpts...)

	dh, err := dephealth.New(cfg.ServiceID, cfg.Group, opts...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// parseJWKSProbe возвращает путь проверки JWKS endpoint и признак HTTPS.
func parseJWKSProbe(rawURL string) (string, bool, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", false, fmt.Errorf("некорректный JWKS URL %q: %w", rawURL, err)
	}
	if parsed.Host == "" {
		return "", false, fmt.Errorf("некорректный JWKS URL %q: отсутствует host", rawURL)
	}
	probe := parsed.EscapedPath()
	if probe != "" && parsed.RawQuery != "" {
		probe += "?" + parsed.RawQuery
	}
	return probe, parsed.Scheme == "https", nil
}

// Start запускает периодическую проверку зависимостей.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен")
	return ds.dh.Start(ctx)
}

// Stop останавливает мониторинг зависимостей.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health возвращает текущее состояние зависимостей.
// Ключ — имя зависимости, значение — true если ok.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}
