// logging.go — журнал HTTP-запросов AirBIM.
// Каждая запись содержит операцию (upload, list, detail, delete, page),
// владельца из JWT и атрибуты, добавленные handlers через AnnotateRequest
// (file_id, file_type, size).
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// statusRecorder запоминает статус и размер ответа.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	n, err := rec.ResponseWriter.Write(b)
	rec.bytes += int64(n)
	return n, err
}

// Unwrap нужен http.ResponseController (Flush, SetWriteDeadline).
func (rec *statusRecorder) Unwrap() http.ResponseWriter {
	return rec.ResponseWriter
}

// requestNotes — атрибуты запроса, накопленные вложенными middleware и handlers.
// Auth и handlers работают с производными *http.Request, поэтому
// значение передаётся по указателю.
type requestNotes struct {
	mu    sync.Mutex
	attrs []slog.Attr
}

type notesKey struct{}

// AnnotateRequest добавляет атрибуты в запись журнала текущего запроса.
// Вне RequestLogger вызов ничего не делает.
func AnnotateRequest(ctx context.Context, attrs ...slog.Attr) {
	notes, ok := ctx.Value(notesKey{}).(*requestNotes)
	if !ok {
		return
	}
	notes.mu.Lock()
	notes.attrs = append(notes.attrs, attrs...)
	notes.mu.Unlock()
}

// RequestLogger логирует каждый запрос после его обработки.
// Уровень по статусу: INFO (1xx-3xx), WARN (4xx), ERROR (5xx).
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			notes := &requestNotes{}

			next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), notesKey{}, notes)))

			level := slog.LevelInfo
			switch {
			case rec.status >= 500:
				level = slog.LevelError
			case rec.status >= 400:
				level = slog.LevelWarn
			}

			route := normalizePath(r.URL.Path)
			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("route", route),
				slog.Int("status", rec.status),
				slog.Duration("duration", time.Since(start)),
				slog.Int64("bytes", rec.bytes),
				slog.String("remote_addr", r.RemoteAddr),
			}
			if op := operation(r.Method, route); op != "" {
				attrs = append(attrs, slog.String("operation", op))
			}
			if r.ContentLength > 0 {
				attrs = append(attrs, slog.Int64("request_bytes", r.ContentLength))
			}

			notes.mu.Lock()
			attrs = append(attrs, notes.attrs...)
			notes.mu.Unlock()

			logger.LogAttrs(r.Context(), level, "HTTP запрос", attrs...)
		})
	}
}

// operation возвращает имя операции BIM для нормализованного маршрута.
func operation(method, route string) string {
	switch route {
	case "/api/bim/upload":
		if method == http.MethodPost {
			return "upload"
		}
	case "/api/bim/files":
		if method == http.MethodGet {
			return "list"
		}
	case "/api/bim/files/{file_id}":
		switch method {
		case http.MethodGet:
			return "detail"
		case http.MethodDelete:
			return "delete"
		}
	case "/bim", "/bim/", "/bim/test":
		return "page"
	}
	return ""
}
