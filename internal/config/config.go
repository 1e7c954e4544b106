// Пакет config — загрузка и валидация конфигурации AirBIM
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации AirBIM.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Таймауты HTTP-сервера. Чтение тела загрузки ограничено HTTPReadTimeout,
	// поэтому он задаёт минимальную скорость канала для MaxUploadSize
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	// Таймаут graceful shutdown
	ShutdownTimeout time.Duration

	// --- Хранилище файлов ---

	// Корневая директория хранения (аналог MEDIA_ROOT)
	StorageRoot string
	// Максимальный размер загружаемого файла в байтах
	MaxUploadSize int64
	// Объём multipart-данных, который держится в памяти; остальное сбрасывается во временный файл
	MultipartMemory int64

	// --- Внешние инструменты ---

	// Путь к исполняемому файлу PDAL
	PDALBin string
	// Путь к исполняемому файлу gdalinfo
	GDALInfoBin string
	// Таймаут запуска внешних инструментов (0 — без ограничения)
	ToolTimeout time.Duration

	// --- Кэш метаданных ---

	MetadataCacheSize int
	MetadataCacheTTL  time.Duration

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string
	// Размер пула подключений
	DBMaxConns int32
	DBMinConns int32
	// Время жизни подключения в пуле
	DBMaxConnLifetime time.Duration
	// Таблица версий golang-migrate; своя таблица позволяет делить БД с другими сервисами
	DBMigrationsTable string

	// --- JWT ---

	// URL JWKS endpoint провайдера идентификации
	JWKSUrl string
	// Путь к CA-сертификату для JWKS endpoint (опционально)
	JWKSCACert string
	// Пропускать проверку TLS-сертификата JWKS endpoint
	JWKSTLSSkipVerify bool
	// Таймаут HTTP-клиента JWKS
	JWKSClientTimeout time.Duration
	// Интервал обновления JWKS-ключей
	JWKSRefreshInterval time.Duration
	// Допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration

	// --- topologymetrics ---

	DephealthCheckInterval time.Duration
	DephealthGroup         string

	// --- Оформление страниц ---

	AppName             string
	AppLogo             string
	OrganizationName    string
	OrganizationWebsite string
	Theme               string
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
//
//nolint:cyclop,funlen // линейный разбор переменных окружения
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// BIM_PORT — порт HTTP-сервера (по умолчанию 8040)
	cfg.Port, err = getEnvInt("BIM_PORT", 8040)
	if err != nil {
		return nil, fmt.Errorf("BIM_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("BIM_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("BIM_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("BIM_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("BIM_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("BIM_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// 4 GiB за час — около 1.2 MB/s; для медленных каналов увеличить или задать 0
	if cfg.HTTPReadTimeout, err = getEnvDuration("BIM_HTTP_READ_TIMEOUT", time.Hour); err != nil {
		return nil, fmt.Errorf("BIM_HTTP_READ_TIMEOUT: %w", err)
	}
	// Таймаут записи отсчитывается от чтения заголовков и покрывает чтение тела
	// и конвертацию PDAL, поэтому он не меньше таймаута чтения
	if cfg.HTTPWriteTimeout, err = getEnvDuration("BIM_HTTP_WRITE_TIMEOUT", 90*time.Minute); err != nil {
		return nil, fmt.Errorf("BIM_HTTP_WRITE_TIMEOUT: %w", err)
	}
	if cfg.HTTPReadTimeout > 0 && cfg.HTTPWriteTimeout > 0 && cfg.HTTPWriteTimeout < cfg.HTTPReadTimeout {
		return nil, fmt.Errorf("BIM_HTTP_WRITE_TIMEOUT: значение %s меньше BIM_HTTP_READ_TIMEOUT %s",
			cfg.HTTPWriteTimeout, cfg.HTTPReadTimeout)
	}
	if cfg.HTTPIdleTimeout, err = getEnvDuration("BIM_HTTP_IDLE_TIMEOUT", 120*time.Second); err != nil {
		return nil, fmt.Errorf("BIM_HTTP_IDLE_TIMEOUT: %w", err)
	}
	if cfg.ShutdownTimeout, err = getEnvDuration("BIM_SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return nil, fmt.Errorf("BIM_SHUTDOWN_TIMEOUT: %w", err)
	}

	// --- Хранилище ---

	// BIM_STORAGE_ROOT — обязательный
	cfg.StorageRoot, err = getEnvRequired("BIM_STORAGE_ROOT")
	if err != nil {
		return nil, err
	}

	// BIM_MAX_UPLOAD_SIZE — по умолчанию 4 GiB (облака точек бывают большими)
	cfg.MaxUploadSize, err = getEnvInt64("BIM_MAX_UPLOAD_SIZE", 4<<30)
	if err != nil {
		return nil, fmt.Errorf("BIM_MAX_UPLOAD_SIZE: %w", err)
	}
	if cfg.MaxUploadSize <= 0 {
		return nil, fmt.Errorf("BIM_MAX_UPLOAD_SIZE: значение должно быть положительным")
	}

	cfg.MultipartMemory, err = getEnvInt64("BIM_MULTIPART_MEMORY", 32<<20)
	if err != nil {
		return nil, fmt.Errorf("BIM_MULTIPART_MEMORY: %w", err)
	}
	if cfg.MultipartMemory <= 0 {
		return nil, fmt.Errorf("BIM_MULTIPART_MEMORY: значение должно быть положительным")
	}

	// --- Внешние инструменты ---

	cfg.PDALBin = getEnvDefault("BIM_PDAL_BIN", "pdal")
	cfg.GDALInfoBin = getEnvDefault("BIM_GDALINFO_BIN", "gdalinfo")
	if cfg.ToolTimeout, err = getEnvDuration("BIM_TOOL_TIMEOUT", 0); err != nil {
		return nil, fmt.Errorf("BIM_TOOL_TIMEOUT: %w", err)
	}
	if cfg.ToolTimeout < 0 {
		return nil, fmt.Errorf("BIM_TOOL_TIMEOUT: значение не может быть отрицательным")
	}

	// --- Кэш метаданных ---

	cfg.MetadataCacheSize, err = getEnvInt("BIM_METADATA_CACHE_SIZE", 256)
	if err != nil {
		return nil, fmt.Errorf("BIM_METADATA_CACHE_SIZE: %w", err)
	}
	if cfg.MetadataCacheSize <= 0 {
		return nil, fmt.Errorf("BIM_METADATA_CACHE_SIZE: значение должно быть положительным")
	}
	if cfg.MetadataCacheTTL, err = getEnvDuration("BIM_METADATA_CACHE_TTL", 10*time.Minute); err != nil {
		return nil, fmt.Errorf("BIM_METADATA_CACHE_TTL: %w", err)
	}

	// --- PostgreSQL ---

	cfg.DBHost, err = getEnvRequired("BIM_DB_HOST")
	if err != nil {
		return nil, err
	}
	cfg.DBPort, err = getEnvInt("BIM_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("BIM_DB_PORT: %w", err)
	}
	cfg.DBName, err = getEnvRequired("BIM_DB_NAME")
	if err != nil {
		return nil, err
	}
	cfg.DBUser, err = getEnvRequired("BIM_DB_USER")
	if err != nil {
		return nil, err
	}
	cfg.DBPassword, err = getEnvRequired("BIM_DB_PASSWORD")
	if err != nil {
		return nil, err
	}
	cfg.DBSSLMode = getEnvDefault("BIM_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("BIM_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	maxConns, err := getEnvInt("BIM_DB_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("BIM_DB_MAX_CONNS: %w", err)
	}
	minConns, err := getEnvInt("BIM_DB_MIN_CONNS", 1)
	if err != nil {
		return nil, fmt.Errorf("BIM_DB_MIN_CONNS: %w", err)
	}
	if maxConns < 1 || maxConns > 1000 {
		return nil, fmt.Errorf("BIM_DB_MAX_CONNS: значение %d вне допустимого диапазона 1-1000", maxConns)
	}
	if minConns < 0 || minConns > maxConns {
		return nil, fmt.Errorf("BIM_DB_MIN_CONNS: значение %d вне диапазона 0-%d", minConns, maxConns)
	}
	cfg.DBMaxConns, cfg.DBMinConns = int32(maxConns), int32(minConns) //nolint:gosec // диапазон проверен выше
	if cfg.DBMaxConnLifetime, err = getEnvDuration("BIM_DB_MAX_CONN_LIFETIME", 30*time.Minute); err != nil {
		return nil, fmt.Errorf("BIM_DB_MAX_CONN_LIFETIME: %w", err)
	}
	cfg.DBMigrationsTable = getEnvDefault("BIM_DB_MIGRATIONS_TABLE", "bim_schema_migrations")
	if !isSQLIdentifier(cfg.DBMigrationsTable) {
		return nil, fmt.Errorf("BIM_DB_MIGRATIONS_TABLE: недопустимое имя таблицы %q", cfg.DBMigrationsTable)
	}

	// --- JWT ---

	cfg.JWKSUrl, err = getEnvRequired("BIM_JWKS_URL")
	if err != nil {
		return nil, err
	}
	cfg.JWKSCACert = getEnvDefault("BIM_JWKS_CA_CERT", "")
	cfg.JWKSTLSSkipVerify, err = getEnvBool("BIM_JWKS_TLS_SKIP_VERIFY", false)
	if err != nil {
		return nil, fmt.Errorf("BIM_JWKS_TLS_SKIP_VERIFY: %w", err)
	}
	if cfg.JWKSClientTimeout, err = getEnvDuration("BIM_JWKS_CLIENT_TIMEOUT", 5*time.Second); err != nil {
		return nil, fmt.Errorf("BIM_JWKS_CLIENT_TIMEOUT: %w", err)
	}
	if cfg.JWKSRefreshInterval, err = getEnvDuration("BIM_JWKS_REFRESH_INTERVAL", 15*time.Minute); err != nil {
		return nil, fmt.Errorf("BIM_JWKS_REFRESH_INTERVAL: %w", err)
	}
	if cfg.JWTLeeway, err = getEnvDuration("BIM_JWT_LEEWAY", 5*time.Second); err != nil {
		return nil, fmt.Errorf("BIM_JWT_LEEWAY: %w", err)
	}

	// --- topologymetrics ---

	if cfg.DephealthCheckInterval, err = getEnvDuration("BIM_DEPHEALTH_CHECK_INTERVAL", 15*time.Second); err != nil {
		return nil, fmt.Errorf("BIM_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}
	cfg.DephealthGroup = getEnvDefault("BIM_DEPHEALTH_GROUP", "airbim")

	// --- Оформление ---

	cfg.AppName = getEnvDefault("BIM_APP_NAME", "AirBIM")
	// BIM_APP_LOGO — URL логотипа; пустое значение — только название
	cfg.AppLogo = getEnvDefault("BIM_APP_LOGO", "")
	cfg.OrganizationName = getEnvDefault("BIM_ORGANIZATION_NAME", "ABAS group")
	cfg.OrganizationWebsite = getEnvDefault("BIM_ORGANIZATION_WEBSITE", "")
	cfg.Theme = getEnvDefault("BIM_THEME", "default")

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL подключения в формате postgres://.
// Используется golang-migrate и topologymetrics.
func (c *Config) DatabaseURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + c.DBSSLMode,
	}
	return u.String()
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// isSQLIdentifier — имя из строчных латинских букв, цифр и '_', не начинается с цифры.
func isSQLIdentifier(s string) bool {
	if s == "" || len(s) > 63 {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r == '_':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvInt64 возвращает int64 значение переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvBool возвращает bool значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное логическое значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 6h)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
