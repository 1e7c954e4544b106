package geoproc

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Converter — конвертация облаков точек LAS в LAZ через `pdal translate`.
type Converter struct {
	runner  Runner
	bin     string
	timeout time.Duration
	logger  *slog.Logger
}

// NewConverter создаёт Converter. bin — путь к pdal,
// timeout — ограничение времени (0 — без ограничения).
func NewConverter(runner Runner, bin string, timeout time.Duration, logger *slog.Logger) *Converter {
	return &Converter{
		runner:  runner,
		bin:     bin,
		timeout: timeout,
		logger:  logger.With(slog.String("component", "converter")),
	}
}

// Convert конвертирует lasPath в lazPath и возвращает путь к результату.
// Исходный файл не удаляется.
func (c *Converter) Convert(ctx context.Context, lasPath, lazPath string) (string, error) {
	ctx, cancel := toolContext(ctx, c.timeout)
	defer cancel()

	res, err := run(ctx, c.runner, "pdal_translate", c.bin, "translate", lasPath, lazPath)
	if err != nil {
		if errors.Is(err, ErrToolNotFound) {
			c.logger.Error("PDAL не найден", slog.String("bin", c.bin))
			return "", &ConversionError{Unavailable: true, Diagnostic: err.Error(), Err: err}
		}
		c.logger.Error("Ошибка запуска pdal translate", slog.String("error", err.Error()))
		return "", &ConversionError{Diagnostic: err.Error(), Err: err}
	}

	if res.ExitCode != 0 {
		diag := strings.TrimSpace(string(res.Stderr))
		c.logger.Error("Не удалось конвертировать LAS в LAZ",
			slog.Int("exit_code", res.ExitCode),
			slog.String("stderr", diag),
		)
		return "", &ConversionError{ExitCode: res.ExitCode, Diagnostic: diag}
	}

	if _, err := os.Stat(lazPath); err != nil {
		return "", &ConversionError{Diagnostic: "pdal не создал выходной файл", Err: err}
	}

	c.logger.Info("LAS сконвертирован в LAZ",
		slog.String("input", lasPath),
		slog.String("output", lazPath),
	)
	return lazPath, nil
}

// Available проверяет наличие pdal.
func (c *Converter) Available() error {
	_, err := c.runner.LookPath(c.bin)
	return err
}
