// Пакет database — пул PostgreSQL для каталога BIM-файлов, миграции схемы
// bim_files (golang-migrate) и проверка готовности каталога.
package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ABASgroup/AirBIM/internal/config"
)

// applicationName — имя подключения в pg_stat_activity.
const applicationName = "airbim"

// catalogTable — таблица каталога, которую создают миграции.
const catalogTable = "bim_files"

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Connect создаёт пул подключений к каталогу и проверяет его ping.
func Connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания пула подключений: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка подключения к PostgreSQL: %w", err)
	}

	logger.Info("Подключение к каталогу BIM установлено",
		slog.String("host", cfg.DBHost),
		slog.Int("port", cfg.DBPort),
		slog.String("database", cfg.DBName),
		slog.Int("max_conns", int(poolCfg.MaxConns)),
		slog.Int("min_conns", int(poolCfg.MinConns)),
	)

	return pool, nil
}

// poolConfig собирает настройки пула из конфигурации AirBIM.
func poolConfig(cfg *config.Config) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга DSN: %w", err)
	}

	if cfg.DBMaxConns > 0 {
		poolCfg.MaxConns = cfg.DBMaxConns
	}
	poolCfg.MinConns = cfg.DBMinConns
	if cfg.DBMaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.DBMaxConnLifetime
	}
	poolCfg.ConnConfig.RuntimeParams["application_name"] = applicationName

	return poolCfg, nil
}

// Migrate применяет миграции каталога из embedded FS.
// Версии хранятся в cfg.DBMigrationsTable. Схема в состоянии dirty
// (прерванная миграция) не чинится автоматически: возвращается ошибка с версией.
func Migrate(cfg *config.Config, logger *slog.Logger) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("ошибка создания источника миграций: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, migrateURL(cfg))
	if err != nil {
		return fmt.Errorf("ошибка инициализации миграций: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		var dirty migrate.ErrDirty
		if errors.As(err, &dirty) {
			return fmt.Errorf("схема %s в состоянии dirty (версия %d, таблица %s): требуется migrate force: %w",
				catalogTable, dirty.Version, cfg.DBMigrationsTable, err)
		}
		return fmt.Errorf("ошибка применения миграций: %w", err)
	}

	version, _, err := m.Version()
	if err != nil {
		return fmt.Errorf("ошибка чтения версии схемы: %w", err)
	}
	logger.Info("Схема каталога BIM актуальна",
		slog.Uint64("version", uint64(version)),
		slog.String("migrations_table", cfg.DBMigrationsTable),
	)

	return nil
}

// migrateURL возвращает URL для драйвера pgx5 golang-migrate
// с собственной таблицей версий AirBIM.
func migrateURL(cfg *config.Config) string {
	dbURL := "pgx5" + strings.TrimPrefix(cfg.DatabaseURL(), "postgres")
	if cfg.DBMigrationsTable == "" {
		return dbURL
	}
	return dbURL + "&x-migrations-table=" + url.QueryEscape(cfg.DBMigrationsTable)
}

// ReadinessChecker — готовность каталога для /health/ready:
// PostgreSQL доступен и таблица bim_files создана.
type ReadinessChecker struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// NewReadinessChecker создаёт проверку готовности каталога.
func NewReadinessChecker(pool *pgxpool.Pool) *ReadinessChecker {
	return &ReadinessChecker{pool: pool, timeout: 3 * time.Second}
}

// CheckReady возвращает статус ("ok", "fail") и сообщение.
func (c *ReadinessChecker) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	var exists bool
	if err := c.pool.QueryRow(ctx, "SELECT to_regclass($1) IS NOT NULL", catalogTable).Scan(&exists); err != nil {
		return "fail", fmt.Sprintf("PostgreSQL недоступен: %v", err)
	}
	if !exists {
		return "fail", fmt.Sprintf("таблица %s отсутствует: миграции не применены", catalogTable)
	}
	return "ok", "каталог доступен"
}
