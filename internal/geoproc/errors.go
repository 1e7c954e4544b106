package geoproc

import "fmt"

// ConversionError — ошибка конвертации LAS → LAZ.
type ConversionError struct {
	// Unavailable — PDAL не установлен или не найден по настроенному пути.
	Unavailable bool
	// ExitCode — код выхода pdal (0, если процесс не завершился сам).
	ExitCode int
	// Diagnostic — stderr инструмента или описание причины.
	Diagnostic string
	Err        error
}

func (e *ConversionError) Error() string {
	if e.Unavailable {
		return "PDAL не установлен: конвертация LAS/LAZ недоступна"
	}
	return fmt.Sprintf("ошибка конвертации LAS в LAZ: %s", e.Diagnostic)
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

// Reason — причина ошибки извлечения метаданных.
type Reason string

const (
	// ReasonUnreadable — файл отсутствует или не читается.
	ReasonUnreadable Reason = "unreadable"
	// ReasonToolFailed — инструмент завершился с ошибкой.
	ReasonToolFailed Reason = "tool_failed"
	// ReasonParse — вывод инструмента не удалось разобрать.
	ReasonParse Reason = "parse"
	// ReasonUnavailable — инструмент не установлен.
	ReasonUnavailable Reason = "unavailable"
)

// MetadataError — ошибка извлечения метаданных.
type MetadataError struct {
	Reason     Reason
	Diagnostic string
	Err        error
}

func (e *MetadataError) Error() string {
	return fmt.Sprintf("ошибка получения метаданных (%s): %s", e.Reason, e.Diagnostic)
}

func (e *MetadataError) Unwrap() error {
	return e.Err
}
