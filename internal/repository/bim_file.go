package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ABASgroup/AirBIM/internal/domain/model"
)

// BIMFileRepository — интерфейс для таблицы bim_files.
// Чтение (GetByOwner, ListByOwner) видит только финализированные записи
// с непустым file_path и всегда ограничено владельцем.
type BIMFileRepository interface {
	// Create создаёт запись с пустым file_path.
	Create(ctx context.Context, f *model.FileRecord) error
	// SetFilePath записывает путь к файлу. Путь устанавливается один раз:
	// для уже финализированной записи возвращается ErrConflict.
	SetFilePath(ctx context.Context, id uuid.UUID, filePath string) error
	// GetByOwner возвращает финализированную запись владельца.
	GetByOwner(ctx context.Context, ownerID string, id uuid.UUID) (*model.FileRecord, error)
	// ListByOwner возвращает финализированные записи владельца, новые первыми.
	ListByOwner(ctx context.Context, ownerID string) ([]*model.FileRecord, error)
	// Delete удаляет запись владельца независимо от финализации.
	Delete(ctx context.Context, ownerID string, id uuid.UUID) error
}

// bimFileRepo — реализация BIMFileRepository.
type bimFileRepo struct {
	db DBTX
}

// NewBIMFileRepository создаёт репозиторий каталога BIM-файлов.
func NewBIMFileRepository(db DBTX) BIMFileRepository {
	return &bimFileRepo{db: db}
}

const bimFileColumns = `id, owner_id, file_type, original_filename, file_path, size, created_at, updated_at`

func (r *bimFileRepo) Create(ctx context.Context, f *model.FileRecord) error {
	query := `
		INSERT INTO bim_files (id, owner_id, file_type, original_filename, size)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING file_path, created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		f.ID, f.OwnerID, string(f.Kind), f.OriginalFilename, f.Size,
	).Scan(&f.FilePath, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: запись с таким ID уже существует", ErrConflict)
		}
		return fmt.Errorf("ошибка создания записи: %w", err)
	}
	return nil
}

func (r *bimFileRepo) SetFilePath(ctx context.Context, id uuid.UUID, filePath string) error {
	if filePath == "" {
		return fmt.Errorf("путь к файлу не может быть пустым")
	}

	tag, err := r.db.Exec(ctx, `
		UPDATE bim_files SET file_path = $2, updated_at = NOW()
		WHERE id = $1 AND file_path = ''`, id, filePath)
	if err != nil {
		return fmt.Errorf("ошибка записи пути файла: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Запись отсутствует или уже финализирована
	var exists bool
	err = r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM bim_files WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("ошибка проверки записи: %w", err)
	}
	if exists {
		return fmt.Errorf("%w: путь к файлу уже записан", ErrConflict)
	}
	return ErrNotFound
}

func (r *bimFileRepo) GetByOwner(ctx context.Context, ownerID string, id uuid.UUID) (*model.FileRecord, error) {
	query := `SELECT ` + bimFileColumns + `
		FROM bim_files
		WHERE id = $1 AND owner_id = $2 AND file_path <> ''`

	f, err := scanBIMFile(r.db.QueryRow(ctx, query, id, ownerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения записи: %w", err)
	}
	return f, nil
}

func (r *bimFileRepo) ListByOwner(ctx context.Context, ownerID string) ([]*model.FileRecord, error) {
	query := `SELECT ` + bimFileColumns + `
		FROM bim_files
		WHERE owner_id = $1 AND file_path <> ''
		ORDER BY created_at DESC, id`

	rows, err := r.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка файлов: %w", err)
	}
	defer rows.Close()

	result := []*model.FileRecord{}
	for rows.Next() {
		f, err := scanBIMFile(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи: %w", err)
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации записей: %w", err)
	}
	return result, nil
}

func (r *bimFileRepo) Delete(ctx context.Context, ownerID string, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM bim_files WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("ошибка удаления записи: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// scanBIMFile сканирует строку bim_files в FileRecord.
func scanBIMFile(row pgx.Row) (*model.FileRecord, error) {
	f := &model.FileRecord{}
	var kind string
	err := row.Scan(
		&f.ID, &f.OwnerID, &kind, &f.OriginalFilename,
		&f.FilePath, &f.Size, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	f.Kind = model.Kind(kind)
	return f, nil
}
