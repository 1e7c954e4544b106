// Пакет filestore — операции с BIM-файлами на диске.
// Выделяет директории записей, записывает содержимое через временный файл,
// удаляет файлы с очисткой опустевших родительских директорий.
package filestore

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ABASgroup/AirBIM/internal/domain/model"
)

// bimDir — поддиректория корня хранилища для файлов BIM.
// Она является границей очистки и сама никогда не удаляется.
const bimDir = "bim"

// ErrOutsideRoot возвращается для путей, выходящих за пределы хранилища.
var ErrOutsideRoot = errors.New("путь вне корня хранилища")

// FileStore — управление BIM-файлами на диске.
type FileStore struct {
	// root — корневая директория хранения (BIM_STORAGE_ROOT)
	root string
	// bimRoot — <root>/bim
	bimRoot string
}

// SaveResult — результат записи файла на диск.
type SaveResult struct {
	// FullPath — абсолютный путь файла на диске
	FullPath string
	// Size — количество записанных байт
	Size int64
}

// New создаёт FileStore и директорию <root>/bim, если её нет.
func New(root string) (*FileStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("некорректный корень хранилища %s: %w", root, err)
	}
	bimRoot := filepath.Join(abs, bimDir)
	if err := os.MkdirAll(bimRoot, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию %s: %w", bimRoot, err)
	}
	return &FileStore{root: abs, bimRoot: bimRoot}, nil
}

// Root возвращает абсолютный путь корня хранилища.
func (fs *FileStore) Root() string {
	return fs.root
}

// AllocateDir создаёт и возвращает директорию записи:
// <root>/bim/user_<owner>/<kind>/<id>, где <owner> — OwnerDirName(ownerID).
// Повторный вызов с теми же аргументами безопасен.
func (fs *FileStore) AllocateDir(ownerID string, kind model.Kind, id string) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("недопустимый вид файла %q", kind)
	}
	if !isSafeSegment(id) {
		return "", fmt.Errorf("недопустимый идентификатор записи %q", id)
	}
	owner, err := OwnerDirName(ownerID)
	if err != nil {
		return "", err
	}

	dir := filepath.Join(fs.bimRoot, "user_"+owner, kind.Dir(), id)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("ошибка создания директории %s: %w", dir, err)
	}
	return dir, nil
}

// WriteFile записывает данные из reader в файл name внутри dir.
//
// Паттерн: temp файл → запись → fsync → rename.
// При ошибке temp файл удаляется.
func (fs *FileStore) WriteFile(dir, name string, reader io.Reader) (*SaveResult, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return nil, fmt.Errorf("недопустимое имя файла %q", name)
	}
	if !fs.within(dir) {
		return nil, fmt.Errorf("%w: %s", ErrOutsideRoot, dir)
	}

	fullPath := filepath.Join(dir, name)
	tmpPath := fullPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	size, err := io.Copy(f, reader)
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка записи данных: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка переименования: %w", err)
	}

	return &SaveResult{FullPath: fullPath, Size: size}, nil
}

// RelPath возвращает путь относительно корня хранилища в формате со слэшами.
func (fs *FileStore) RelPath(fullPath string) (string, error) {
	if !fs.within(fullPath) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, fullPath)
	}
	rel, err := filepath.Rel(fs.root, fullPath)
	if err != nil {
		return "", fmt.Errorf("ошибка вычисления относительного пути: %w", err)
	}
	return filepath.ToSlash(rel), nil
}

// FullPath возвращает абсолютный путь для относительного пути записи.
func (fs *FileStore) FullPath(relPath string) (string, error) {
	full := filepath.Join(fs.root, filepath.FromSlash(relPath))
	if relPath == "" || !fs.within(full) {
		return "", fmt.Errorf("%w: %q", ErrOutsideRoot, relPath)
	}
	return full, nil
}

// RemoveFile удаляет файл записи и опустевшие родительские директории
// вплоть до <root>/bim (не включая её). Отсутствие файла ошибкой не считается.
// Ошибки очистки директорий не возвращаются.
func (fs *FileStore) RemoveFile(relPath string) error {
	full, err := fs.FullPath(relPath)
	if err != nil {
		return err
	}

	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ошибка удаления файла %s: %w", relPath, err)
	}

	fs.prune(filepath.Dir(full))
	return nil
}

// RemoveDir удаляет директорию записи целиком и опустевших родителей.
// Используется при откате неудачной загрузки.
func (fs *FileStore) RemoveDir(dir string) error {
	if !fs.within(dir) || filepath.Clean(dir) == fs.bimRoot {
		return fmt.Errorf("%w: %s", ErrOutsideRoot, dir)
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("ошибка удаления директории %s: %w", dir, err)
	}

	fs.prune(filepath.Dir(dir))
	return nil
}

// CheckWritable проверяет, что в <root>/bim можно создать файл.
func (fs *FileStore) CheckWritable() error {
	f, err := os.CreateTemp(fs.bimRoot, ".probe-*")
	if err != nil {
		return fmt.Errorf("хранилище недоступно для записи: %w", err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

// prune поднимается от dir к <root>/bim и удаляет пустые директории.
// os.Remove не удаляет непустую директорию, поэтому обход
// останавливается на первой непустой или недоступной.
func (fs *FileStore) prune(dir string) {
	for {
		dir = filepath.Clean(dir)
		if dir == fs.bimRoot || !fs.within(dir) {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

// within сообщает, лежит ли path строго внутри <root>/bim.
func (fs *FileStore) within(path string) bool {
	rel, err := filepath.Rel(fs.bimRoot, filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// maxOwnerDirLen — предел длины имени директории владельца (NAME_MAX 255 минус запас).
const maxOwnerDirLen = 200

// OwnerDirName кодирует владельца в имя директории без потери различимости:
// латинские буквы, цифры и '-' сохраняются, любой другой байт UTF-8
// записывается как '_' и две hex-цифры ("a.b" → "a_2eb", "a_b" → "a_5fb").
// Числовые id и UUID из sub не меняются.
func OwnerDirName(ownerID string) (string, error) {
	if ownerID == "" {
		return "", fmt.Errorf("пустой идентификатор владельца")
	}

	var b strings.Builder
	for i := 0; i < len(ownerID); i++ {
		c := ownerID[i]
		if isPlainByte(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('_')
		b.WriteString(hex.EncodeToString([]byte{c}))
	}

	if b.Len() > maxOwnerDirLen {
		return "", fmt.Errorf("идентификатор владельца слишком длинный: %d байт после кодирования", b.Len())
	}
	return b.String(), nil
}

func isPlainByte(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '-'
}

// isSafeSegment сообщает, что s — непустой компонент пути из букв, цифр, '-' и '_'.
func isSafeSegment(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isPlainByte(s[i]) && s[i] != '_' {
			return false
		}
	}
	return true
}
