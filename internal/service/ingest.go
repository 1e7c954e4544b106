// Пакет service — бизнес-логика AirBIM.
// ingest.go — загрузка BIM-файлов: валидация, запись на диск,
// конвертация LAS → LAZ и финализация записи каталога.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ABASgroup/AirBIM/internal/domain/model"
	"github.com/ABASgroup/AirBIM/internal/repository"
	"github.com/ABASgroup/AirBIM/internal/storage/filestore"
)

// tempLASName — имя временного LAS-файла в директории записи.
const tempLASName = "temp.las"

// Prometheus-метрики загрузки.
var (
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bim_uploads_total",
		Help: "Общее количество загрузок BIM-файлов (по виду и статусу).",
	}, []string{"kind", "status"})

	uploadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bim_upload_bytes_total",
		Help: "Общее количество записанных байт загруженных файлов.",
	})
)

// Converter — конвертация LAS в LAZ.
type Converter interface {
	Convert(ctx context.Context, lasPath, lazPath string) (string, error)
}

// Upload — загружаемый файл. Содержимое передаётся либо через TempPath
// (multipart сбросил его во временный файл), либо через Content.
type Upload struct {
	// Filename — имя файла, заявленное клиентом
	Filename string
	// Size — размер, заявленный при загрузке
	Size int64
	// TempPath — путь к временному файлу с содержимым
	TempPath string
	// Content — содержимое в памяти
	Content io.Reader
}

// UploadResult — публичная проекция финализированной записи.
type UploadResult struct {
	ID       uuid.UUID
	Filename string
	Kind     model.Kind
	Message  string
	Size     int64
}

// IngestService — сервис загрузки BIM-файлов.
type IngestService struct {
	repo      repository.BIMFileRepository
	store     *filestore.FileStore
	converter Converter
	maxSize   int64
	logger    *slog.Logger
}

// NewIngestService создаёт сервис загрузки.
// maxSize — максимальный размер файла в байтах (0 — без ограничения).
func NewIngestService(
	repo repository.BIMFileRepository,
	store *filestore.FileStore,
	converter Converter,
	maxSize int64,
	logger *slog.Logger,
) *IngestService {
	return &IngestService{
		repo:      repo,
		store:     store,
		converter: converter,
		maxSize:   maxSize,
		logger:    logger.With(slog.String("component", "ingest_service")),
	}
}

// Upload сохраняет файл и регистрирует его в каталоге.
//
// Поток:
//  1. Проверка наличия файла, имени, расширения и размера
//  2. Открытие содержимого
//  3. Создание записи с пустым путём
//  4. Выделение директории записи
//  5. LAS: запись temp.las → pdal translate → удаление temp.las;
//     остальные виды: запись под исходным именем
//  6. Запись относительного пути (финализация)
//
// При ошибке после шага 3 директория записи и сама запись удаляются.
func (s *IngestService) Upload(ctx context.Context, ownerID string, upload *Upload) (*UploadResult, error) {
	if upload == nil || (upload.TempPath == "" && upload.Content == nil) {
		return nil, ErrMissingFile
	}

	name, err := baseName(upload.Filename)
	if err != nil {
		return nil, err
	}
	if !model.ValidateExtension(name, model.AllowedExtensions) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, name)
	}
	if s.maxSize > 0 && upload.Size > s.maxSize {
		return nil, fmt.Errorf("%w: %d байт, максимум %d", ErrFileTooLarge, upload.Size, s.maxSize)
	}
	kind := model.KindFromFilename(name)

	content, closeContent, err := openContent(upload)
	if err != nil {
		uploadsTotal.WithLabelValues(string(kind), "read_error").Inc()
		return nil, fmt.Errorf("%w: %w", ErrRead, err)
	}
	defer closeContent()
	reader := &trackingReader{r: content}

	rec := &model.FileRecord{
		ID:               uuid.New(),
		OwnerID:          ownerID,
		Kind:             kind,
		OriginalFilename: name,
		Size:             upload.Size,
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		uploadsTotal.WithLabelValues(string(kind), "error").Inc()
		s.logger.Error("Ошибка создания записи",
			slog.String("filename", name),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}

	log := s.logger.With(
		slog.String("file_id", rec.ID.String()),
		slog.String("owner_id", ownerID),
	)

	// Компенсирующая очистка: директория записи уникальна по ID,
	// поэтому удаляется целиком вместе с частично записанными файлами
	var dir string
	unwind := func(cause error) error {
		cleanupCtx := context.WithoutCancel(ctx)
		if dir != "" {
			logCleanupError(log, "remove_dir", s.store.RemoveDir(dir))
		}
		logCleanupError(log, "delete_record", s.repo.Delete(cleanupCtx, ownerID, rec.ID))

		if reader.err != nil {
			uploadsTotal.WithLabelValues(string(kind), "read_error").Inc()
			return fmt.Errorf("%w: %w", ErrRead, reader.err)
		}
		uploadsTotal.WithLabelValues(string(kind), "error").Inc()
		log.Error("Ошибка загрузки файла",
			slog.String("filename", name),
			slog.String("error", cause.Error()),
		)
		return fmt.Errorf("%w: %w", ErrUploadFailed, cause)
	}

	dir, err = s.store.AllocateDir(ownerID, kind, rec.ID.String())
	if err != nil {
		return nil, unwind(err)
	}

	finalPath, written, err := s.writeContent(ctx, log, dir, name, kind, reader)
	if err != nil {
		return nil, unwind(err)
	}

	relPath, err := s.store.RelPath(finalPath)
	if err != nil {
		return nil, unwind(err)
	}
	if err := s.repo.SetFilePath(ctx, rec.ID, relPath); err != nil {
		return nil, unwind(err)
	}

	uploadsTotal.WithLabelValues(string(kind), "success").Inc()
	uploadBytesTotal.Add(float64(written))

	log.Info("Файл загружен",
		slog.String("filename", name),
		slog.String("kind", string(kind)),
		slog.String("path", relPath),
		slog.Int64("size", upload.Size),
	)

	return &UploadResult{
		ID:       rec.ID,
		Filename: name,
		Kind:     kind,
		Message:  "File uploaded successfully",
		Size:     upload.Size,
	}, nil
}

// writeContent записывает содержимое в директорию записи и возвращает
// путь к итоговому файлу и количество записанных байт.
func (s *IngestService) writeContent(
	ctx context.Context,
	log *slog.Logger,
	dir, name string,
	kind model.Kind,
	content io.Reader,
) (string, int64, error) {
	if kind != model.KindLAS {
		res, err := s.store.WriteFile(dir, name, content)
		if err != nil {
			return "", 0, err
		}
		return res.FullPath, res.Size, nil
	}

	res, err := s.store.WriteFile(dir, tempLASName, content)
	if err != nil {
		return "", 0, err
	}

	stem := strings.TrimSuffix(name, filepath.Ext(name))
	lazPath, err := s.converter.Convert(ctx, res.FullPath, filepath.Join(dir, stem+".laz"))
	if err != nil {
		return "", 0, err
	}

	if err := os.Remove(res.FullPath); err != nil && !os.IsNotExist(err) {
		logCleanupError(log, "remove_temp_las", err)
	}
	return lazPath, res.Size, nil
}

// baseName оставляет от заявленного имени только последний компонент пути.
func baseName(filename string) (string, error) {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	switch name {
	case "", ".", "..", "/":
		return "", fmt.Errorf("%w: некорректное имя файла %q", ErrUnsupportedType, filename)
	}
	return name, nil
}

// openContent возвращает reader содержимого загрузки и функцию закрытия.
func openContent(upload *Upload) (io.Reader, func(), error) {
	if upload.TempPath == "" {
		return upload.Content, func() {}, nil
	}

	f, err := os.Open(upload.TempPath)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

// trackingReader запоминает ошибку чтения источника,
// чтобы отличить сбой чтения загрузки от сбоя записи на диск.
type trackingReader struct {
	r   io.Reader
	err error
}

func (t *trackingReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		t.err = err
	}
	return n, err
}
