// files.go — просмотр, получение метаданных и удаление BIM-файлов.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ABASgroup/AirBIM/internal/domain/model"
	"github.com/ABASgroup/AirBIM/internal/geoproc"
	"github.com/ABASgroup/AirBIM/internal/repository"
	"github.com/ABASgroup/AirBIM/internal/storage/filestore"
)

var deletesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bim_deletes_total",
	Help: "Общее количество удалений BIM-файлов (по статусу).",
}, []string{"status"})

// MetadataExtractor — извлечение метаданных файла по виду.
type MetadataExtractor interface {
	Extract(ctx context.Context, kind model.Kind, path string) (model.Metadata, error)
}

// FileDetail — запись с метаданными.
type FileDetail struct {
	Record   *model.FileRecord
	Metadata model.Metadata
}

// FileService — сервис просмотра и удаления BIM-файлов.
type FileService struct {
	repo      repository.BIMFileRepository
	store     *filestore.FileStore
	extractor MetadataExtractor
	cache     *MetadataCache
	logger    *slog.Logger
}

// NewFileService создаёт сервис. cache может быть nil.
func NewFileService(
	repo repository.BIMFileRepository,
	store *filestore.FileStore,
	extractor MetadataExtractor,
	cache *MetadataCache,
	logger *slog.Logger,
) *FileService {
	return &FileService{
		repo:      repo,
		store:     store,
		extractor: extractor,
		cache:     cache,
		logger:    logger.With(slog.String("component", "file_service")),
	}
}

// List возвращает финализированные файлы владельца.
func (s *FileService) List(ctx context.Context, ownerID string) ([]*model.FileRecord, error) {
	files, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка файлов: %w", err)
	}
	return files, nil
}

// Detail возвращает запись владельца и метаданные её файла.
// Отсутствующая, чужая и незавершённая записи неразличимы (ErrNotFound).
func (s *FileService) Detail(ctx context.Context, ownerID string, id uuid.UUID) (*FileDetail, error) {
	rec, err := s.get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	fullPath, err := s.store.FullPath(rec.FilePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExtraction, err)
	}

	// Кэш не отменяет проверку файла: пропавший файл — ошибка, а не метаданные
	if err := geoproc.CheckReadable(fullPath); err != nil {
		if s.cache != nil {
			s.cache.Delete(id)
		}
		s.logger.Error("Файл записи недоступен",
			slog.String("file_id", id.String()),
			slog.String("path", rec.FilePath),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %w", ErrExtraction, err)
	}

	if s.cache != nil {
		if md, ok := s.cache.Get(id); ok {
			return &FileDetail{Record: rec, Metadata: md}, nil
		}
	}

	md, err := s.extractor.Extract(ctx, rec.Kind, fullPath)
	if err != nil {
		s.logger.Error("Ошибка получения метаданных",
			slog.String("file_id", id.String()),
			slog.String("kind", string(rec.Kind)),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %w", ErrExtraction, err)
	}

	if s.cache != nil {
		s.cache.Set(id, md)
	}
	return &FileDetail{Record: rec, Metadata: md}, nil
}

// Delete удаляет файл с диска (best effort, с очисткой пустых директорий)
// и запись каталога. Возвращает исходное имя файла.
func (s *FileService) Delete(ctx context.Context, ownerID string, id uuid.UUID) (string, error) {
	rec, err := s.get(ctx, ownerID, id)
	if err != nil {
		return "", err
	}

	if err := s.store.RemoveFile(rec.FilePath); err != nil {
		s.logger.Warn("Не удалось удалить файл с диска",
			slog.String("file_id", id.String()),
			slog.String("path", rec.FilePath),
			slog.String("error", err.Error()),
		)
	}

	if s.cache != nil {
		s.cache.Delete(id)
	}

	if err := s.repo.Delete(ctx, ownerID, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Запись удалена параллельным запросом
			deletesTotal.WithLabelValues("not_found").Inc()
			return "", ErrNotFound
		}
		deletesTotal.WithLabelValues("error").Inc()
		s.logger.Error("Ошибка удаления записи",
			slog.String("file_id", id.String()),
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("%w: %w", ErrDeleteFailed, err)
	}

	deletesTotal.WithLabelValues("success").Inc()
	s.logger.Info("Файл удалён",
		slog.String("file_id", id.String()),
		slog.String("owner_id", ownerID),
		slog.String("filename", rec.OriginalFilename),
	)
	return rec.OriginalFilename, nil
}

// get возвращает финализированную запись владельца.
func (s *FileService) get(ctx context.Context, ownerID string, id uuid.UUID) (*model.FileRecord, error) {
	rec, err := s.repo.GetByOwner(ctx, ownerID, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения записи: %w", err)
	}
	return rec, nil
}
