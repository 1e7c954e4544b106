// Пакет server — HTTP-сервер AirBIM с graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на API Gateway.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/ABASgroup/AirBIM/internal/api/errors"
	"github.com/ABASgroup/AirBIM/internal/api/handlers"
	"github.com/ABASgroup/AirBIM/internal/config"
	"github.com/ABASgroup/AirBIM/internal/ui"
)

// Handlers — обработчики, из которых собирается маршрутизатор.
type Handlers struct {
	Files   *handlers.FilesHandler
	Health  *handlers.HealthHandler
	UI      *ui.Handler
	OpenAPI http.Handler
}

// Server — HTTP-сервер AirBIM.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с настроенными routes и middleware.
// auth — JWT middleware для /api/bim/* и /bim/*.
// middlewares — общие middleware (metrics, logging), применяются ко всем маршрутам.
func New(
	cfg *config.Config,
	logger *slog.Logger,
	h Handlers,
	auth func(http.Handler) http.Handler,
	middlewares ...func(http.Handler) http.Handler,
) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewRouter(h, auth, middlewares...),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// NewRouter собирает chi-маршрутизатор.
// Публичные: /health/*, /metrics, /api/bim/openapi.json.
// Под JWT: API файлов и страницы BIM.
func NewRouter(h Handlers, auth func(http.Handler) http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	router := chi.NewRouter()
	for _, mw := range middlewares {
		router.Use(mw)
	}

	router.Get("/health/live", h.Health.HealthLive)
	router.Get("/health/ready", h.Health.HealthReady)
	router.Get("/metrics", h.Health.GetMetrics)
	if h.OpenAPI != nil {
		router.Method(http.MethodGet, "/api/bim/openapi.json", h.OpenAPI)
	}

	router.Route("/api/bim", func(r chi.Router) {
		r.Use(auth)
		r.Post("/upload", h.Files.UploadFile)
		r.Get("/files", h.Files.ListFiles)
		r.Get("/files/{file_id}", handlers.WithFileID(h.Files.GetFile))
		r.Delete("/files/{file_id}", handlers.WithFileID(h.Files.DeleteFile))
	})

	// /bim и /bim/ отдают главную страницу
	router.Route("/bim", func(r chi.Router) {
		r.Use(auth, h.UI.Recoverer)
		r.Get("/", h.UI.HandleHome)
		r.Get("/test", h.UI.HandleTest)
		r.NotFound(h.UI.HandleNotFound)
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			apierrors.NotFound(w, "Endpoint not found")
			return
		}
		h.UI.HandleNotFound(w, r)
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		apierrors.WriteError(w, http.StatusMethodNotAllowed, apierrors.CodeValidationError, "Method not allowed")
	})

	return router
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	// Upload может ждать конвертации PDAL: незавершённые запросы
	// получают ShutdownTimeout на завершение
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
