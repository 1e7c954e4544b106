package service

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/ABASgroup/AirBIM/internal/domain/model"
	"github.com/ABASgroup/AirBIM/internal/repository"
	"github.com/ABASgroup/AirBIM/internal/storage/filestore"
)

// --- Mock repository ---

// memRepo — in-memory BIMFileRepository. Поля *Fn позволяют внедрить ошибки.
type memRepo struct {
	mu      sync.Mutex
	records map[uuid.UUID]*model.FileRecord

	createFn      func(f *model.FileRecord) error
	setFilePathFn func(id uuid.UUID, p string) error
	deleteFn      func(owner string, id uuid.UUID) error
	listFn        func(owner string) ([]*model.FileRecord, error)
}

func newMemRepo() *memRepo {
	return &memRepo{records: map[uuid.UUID]*model.FileRecord{}}
}

func (m *memRepo) Create(_ context.Context, f *model.FileRecord) error {
	if m.createFn != nil {
		if err := m.createFn(f); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[f.ID]; ok {
		return repository.ErrConflict
	}
	cp := *f
	m.records[f.ID] = &cp
	return nil
}

func (m *memRepo) SetFilePath(_ context.Context, id uuid.UUID, p string) error {
	if m.setFilePathFn != nil {
		if err := m.setFilePathFn(id, p); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return repository.ErrNotFound
	}
	if rec.FilePath != "" {
		return repository.ErrConflict
	}
	rec.FilePath = p
	return nil
}

func (m *memRepo) GetByOwner(_ context.Context, owner string, id uuid.UUID) (*model.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok || rec.OwnerID != owner || rec.FilePath == "" {
		return nil, repository.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *memRepo) ListByOwner(_ context.Context, owner string) ([]*model.FileRecord, error) {
	if m.listFn != nil {
		return m.listFn(owner)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	result := []*model.FileRecord{}
	for _, rec := range m.records {
		if rec.OwnerID == owner && rec.FilePath != "" {
			cp := *rec
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID.String() < result[j].ID.String() })
	return result, nil
}

func (m *memRepo) Delete(_ context.Context, owner string, id uuid.UUID) error {
	if m.deleteFn != nil {
		if err := m.deleteFn(owner, id); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok || rec.OwnerID != owner {
		return repository.ErrNotFound
	}
	delete(m.records, id)
	return nil
}

// count возвращает общее число строк, включая незавершённые.
func (m *memRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// --- Mock converter ---

type mockConverter struct {
	convertFn func(ctx context.Context, lasPath, lazPath string) (string, error)
	mu        sync.Mutex
	calls     int
}

func (m *mockConverter) Convert(ctx context.Context, lasPath, lazPath string) (string, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.convertFn != nil {
		return m.convertFn(ctx, lasPath, lazPath)
	}
	data, err := os.ReadFile(lasPath)
	if err != nil {
		return "", err
	}
	return lazPath, os.WriteFile(lazPath, append([]byte("LAZ:"), data...), 0o600)
}

// --- Mock extractor ---

type mockExtractor struct {
	extractFn func(ctx context.Context, kind model.Kind, path string) (model.Metadata, error)
	calls     int
}

func (m *mockExtractor) Extract(ctx context.Context, kind model.Kind, path string) (model.Metadata, error) {
	m.calls++
	if m.extractFn != nil {
		return m.extractFn(ctx, kind, path)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	if kind == model.KindGeoTIFF {
		return &model.RasterMetadata{Width: 10, Height: 10, Bands: 1, DType: "uint8"}, nil
	}
	return &model.PointCloudMetadata{PointCount: 42, Bounds: map[string]float64{}, Dimensions: []string{"X"}}, nil
}

// --- Helpers ---

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *filestore.FileStore {
	t.Helper()
	store, err := filestore.New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}
	return store
}
