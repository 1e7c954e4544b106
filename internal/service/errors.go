// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import (
	"errors"
	"log/slog"
)

var (
	// ErrMissingFile — в запросе нет файла.
	ErrMissingFile = errors.New("файл не передан")
	// ErrUnsupportedType — расширение файла не входит в допустимый набор.
	ErrUnsupportedType = errors.New("неподдерживаемый тип файла")
	// ErrRead — не удалось прочитать содержимое загружаемого файла.
	ErrRead = errors.New("ошибка чтения файла")
	// ErrFileTooLarge — размер файла превышает допустимый.
	ErrFileTooLarge = errors.New("файл превышает допустимый размер")
	// ErrUploadFailed — сбой при записи, конвертации или финализации загрузки.
	ErrUploadFailed = errors.New("ошибка загрузки файла")
	// ErrNotFound — запись не найдена или принадлежит другому пользователю.
	ErrNotFound = errors.New("файл не найден")
	// ErrExtraction — не удалось получить метаданные файла.
	ErrExtraction = errors.New("ошибка получения информации о файле")
	// ErrDeleteFailed — не удалось удалить запись.
	ErrDeleteFailed = errors.New("ошибка удаления файла")
)

// logCleanupError логирует ошибку компенсирующей очистки и продолжает работу.
// Исходная ошибка операции остаётся главной.
func logCleanupError(logger *slog.Logger, step string, err error, attrs ...slog.Attr) {
	if err == nil {
		return
	}
	args := []any{slog.String("step", step), slog.String("error", err.Error())}
	for _, a := range attrs {
		args = append(args, a)
	}
	logger.Warn("Ошибка очистки после сбоя", args...)
}
