// handler.go — HTTP-обработчики страниц BIM.
package ui

import (
	"log/slog"
	"net/http"

	"github.com/a-h/templ"

	"github.com/ABASgroup/AirBIM/internal/api/middleware"
)

// Пути страниц и API, на которые ссылаются страницы.
const (
	HomePath      = "/bim/"
	TestPath      = "/bim/test"
	UploadAPIPath = "/api/bim/upload"
	FilesAPIPath  = "/api/bim/files"
)

// Handler — обработчик HTML-страниц BIM.
type Handler struct {
	settings SiteSettings
	logger   *slog.Logger
}

// NewHandler создаёт обработчик страниц.
func NewHandler(settings SiteSettings, logger *slog.Logger) *Handler {
	return &Handler{
		settings: settings,
		logger:   logger.With(slog.String("component", "ui")),
	}
}

// HandleHome обрабатывает GET /bim/ — главная страница BIM.
func (h *Handler) HandleHome(w http.ResponseWriter, r *http.Request) {
	data := HomeData{
		Username:      middleware.UsernameFromContext(r.Context()),
		UploadURL:     UploadAPIPath,
		FilesURL:      FilesAPIPath,
		FileURLPrefix: FilesAPIPath + "/",
		TestURL:       TestPath,
	}
	h.render(w, r, http.StatusOK, Home(h.settings, data))
}

// HandleTest обрабатывает GET /bim/test.
func (h *Handler) HandleTest(w http.ResponseWriter, r *http.Request) {
	data := TestData{
		Username: middleware.UsernameFromContext(r.Context()),
		HomeURL:  "/bim",
	}
	h.render(w, r, http.StatusOK, Test(h.settings, data))
}

// HandleNotFound отображает HTML-страницу 404.
func (h *Handler) HandleNotFound(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusNotFound, ErrorPage(h.settings, http.StatusNotFound, "Страница не найдена"))
}

// Recoverer — middleware, перехватывающий panic обработчика страницы
// и отображающий HTML-страницу 500.
func (h *Handler) Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler { //nolint:errorlint // сравнение со значением panic
					panic(rec)
				}
				h.logger.Error("Panic при обработке страницы",
					slog.Any("panic", rec),
					slog.String("path", r.URL.Path),
				)
				h.render(w, r, http.StatusInternalServerError,
					ErrorPage(h.settings, http.StatusInternalServerError, "Внутренняя ошибка сервера"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// render отображает компонент с указанным статусом.
func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := c.Render(r.Context(), w); err != nil {
		h.logger.Error("Ошибка рендеринга страницы",
			slog.String("error", err.Error()),
			slog.String("path", r.URL.Path),
		)
	}
}
