// Пакет geoproc — запуск внешних геоинструментов (PDAL, GDAL):
// конвертация LAS → LAZ и извлечение метаданных облаков точек и растров.
package geoproc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ErrToolNotFound — исполняемый файл инструмента не найден.
var ErrToolNotFound = errors.New("инструмент не найден")

// Prometheus-метрики внешних инструментов.
var (
	toolRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bim_tool_runs_total",
		Help: "Количество запусков внешних инструментов (по инструменту и результату).",
	}, []string{"tool", "outcome"})

	toolDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bim_tool_duration_seconds",
		Help:    "Длительность выполнения внешних инструментов.",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900, 1800},
	}, []string{"tool"})
)

// Result — результат выполнения внешнего процесса.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// Runner — запуск внешних процессов.
// Run возвращает ErrToolNotFound, если исполняемый файл не найден;
// ненулевой код выхода ошибкой не является и передаётся в Result.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (*Result, error)
	LookPath(name string) (string, error)
}

// ExecRunner — Runner на основе os/exec.
type ExecRunner struct{}

// Run запускает процесс и собирает stdout и stderr.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) (*Result, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := &Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err == nil {
		return res, nil
	}

	// Имя со слэшем не ищется в PATH, и отсутствие файла приходит как fs.ErrNotExist
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%s прерван: %w", name, ctx.Err())
	}
	return nil, fmt.Errorf("ошибка запуска %s: %w", name, err)
}

// LookPath ищет исполняемый файл в PATH.
func (ExecRunner) LookPath(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return path, nil
}

// toolContext отвязывает запуск инструмента от отмены запроса:
// разрыв соединения клиентом не прерывает конвертацию.
// При timeout > 0 время выполнения ограничивается.
func toolContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if timeout > 0 {
		return context.WithTimeout(detached, timeout)
	}
	return context.WithCancel(detached)
}

// run выполняет инструмент с учётом метрик.
func run(ctx context.Context, runner Runner, tool, bin string, args ...string) (*Result, error) {
	start := time.Now()
	res, err := runner.Run(ctx, bin, args...)
	toolDuration.WithLabelValues(tool).Observe(time.Since(start).Seconds())

	switch {
	case errors.Is(err, ErrToolNotFound):
		toolRunsTotal.WithLabelValues(tool, "unavailable").Inc()
	case err != nil:
		toolRunsTotal.WithLabelValues(tool, "error").Inc()
	case res.ExitCode != 0:
		toolRunsTotal.WithLabelValues(tool, "failed").Inc()
	default:
		toolRunsTotal.WithLabelValues(tool, "success").Inc()
	}
	return res, err
}
