// Точка входа AirBIM — сервиса загрузки и каталогизации BIM-файлов.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL,
// собирает хранилище, внешние инструменты (pdal, gdalinfo), сервисный слой
// и HTTP handlers, запускает topologymetrics и HTTP-сервер с JWT middleware.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/ABASgroup/AirBIM/internal/api/handlers"
	"github.com/ABASgroup/AirBIM/internal/api/middleware"
	"github.com/ABASgroup/AirBIM/internal/api/openapi"
	"github.com/ABASgroup/AirBIM/internal/config"
	"github.com/ABASgroup/AirBIM/internal/database"
	"github.com/ABASgroup/AirBIM/internal/geoproc"
	"github.com/ABASgroup/AirBIM/internal/repository"
	"github.com/ABASgroup/AirBIM/internal/server"
	"github.com/ABASgroup/AirBIM/internal/service"
	"github.com/ABASgroup/AirBIM/internal/storage/filestore"
	"github.com/ABASgroup/AirBIM/internal/ui"
)

func main() {
	if err := run(); err != nil {
		slog.Error("AirBIM завершился с ошибкой", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

//nolint:funlen // последовательная сборка зависимостей
func run() error {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("AirBIM запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("storage_root", cfg.StorageRoot),
	)

	if os.Getenv("BIM_DEPHEALTH_GROUP") == "" {
		logger.Warn("BIM_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Хранилище файлов
	store, err := filestore.New(cfg.StorageRoot)
	if err != nil {
		return err
	}

	// 4. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		return err
	}

	// 5. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	// 5.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode)
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 6. Repository
	fileRepo := repository.NewBIMFileRepository(pool)

	// 7. Внешние инструменты
	runner := geoproc.ExecRunner{}
	converter := geoproc.NewConverter(runner, cfg.PDALBin, cfg.ToolTimeout, logger)
	extractor := geoproc.NewExtractor(runner, cfg.PDALBin, cfg.GDALInfoBin, cfg.ToolTimeout, logger)

	if err := converter.Available(); err != nil {
		logger.Warn("PDAL недоступен: загрузка LAS и метаданные облаков точек не будут работать",
			slog.String("bin", cfg.PDALBin),
			slog.String("error", err.Error()),
		)
	}
	if err := extractor.GDALAvailable(); err != nil {
		logger.Warn("gdalinfo недоступен: метаданные GeoTIFF не будут работать",
			slog.String("bin", cfg.GDALInfoBin),
			slog.String("error", err.Error()),
		)
	}

	// 8. Services
	metadataCache := service.NewMetadataCache(cfg.MetadataCacheSize, cfg.MetadataCacheTTL)
	ingestSvc := service.NewIngestService(fileRepo, store, converter, cfg.MaxUploadSize, logger)
	fileSvc := service.NewFileService(fileRepo, store, extractor, metadataCache, logger)

	// 9. Handlers
	healthHandler := handlers.NewHealthHandler(
		database.NewReadinessChecker(pool),
		store.CheckWritable,
		converter.Available,
		extractor.GDALAvailable,
	)
	filesHandler := handlers.NewFilesHandler(ingestSvc, fileSvc, cfg.MaxUploadSize, cfg.MultipartMemory, logger)
	uiHandler := ui.NewHandler(ui.NewSiteSettings(cfg), logger)
	openapiHandler, err := openapi.Handler()
	if err != nil {
		return err
	}

	// 10. JWT middleware
	jwtAuth, err := middleware.NewJWTAuth(middleware.JWTAuthConfig{
		JWKSURL:         cfg.JWKSUrl,
		CACertPath:      cfg.JWKSCACert,
		TLSSkipVerify:   cfg.JWKSTLSSkipVerify,
		ClientTimeout:   cfg.JWKSClientTimeout,
		RefreshInterval: cfg.JWKSRefreshInterval,
		JWTLeeway:       cfg.JWTLeeway,
	}, logger)
	if err != nil {
		return err
	}
	logger.Info("JWT middleware инициализирован",
		slog.String("jwks_url", cfg.JWKSUrl),
	)

	// 11. topologymetrics — мониторинг зависимостей (PostgreSQL + JWKS)
	dephealthSvc, err := service.NewDephealthService(service.DephealthConfig{
		ServiceID:         "airbim",
		Group:             cfg.DephealthGroup,
		DB:                pgDB,
		PGConnURL:         cfg.DatabaseURL(),
		JWKSURL:           cfg.JWKSUrl,
		JWKSTLSSkipVerify: cfg.JWKSTLSSkipVerify,
		CheckInterval:     cfg.DephealthCheckInterval,
	}, logger)
	if err != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", err.Error()),
		)
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics",
			slog.String("error", startErr.Error()),
		)
	} else {
		defer dephealthSvc.Stop()
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 12. HTTP-сервер (блокирующий вызов с graceful shutdown)
	srv := server.New(cfg, logger,
		server.Handlers{
			Files:   filesHandler,
			Health:  healthHandler,
			UI:      uiHandler,
			OpenAPI: openapiHandler,
		},
		jwtAuth.Middleware(),
		middleware.MetricsMiddleware(),
		middleware.RequestLogger(logger),
	)
	if err := srv.Run(); err != nil {
		return err
	}

	logger.Info("AirBIM остановлен")
	return nil
}
