package filestore

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ABASgroup/AirBIM/internal/domain/model"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	fs, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}
	return fs
}

// TestNew_CreatesBIMDirectory проверяет создание директории <root>/bim.
func TestNew_CreatesBIMDirectory(t *testing.T) {
	root := filepath.Join(t.TempDir(), "media")

	fs, err := New(root)
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}
	if fs.Root() != root {
		t.Errorf("ожидался корень %s, получен %s", root, fs.Root())
	}

	info, err := os.Stat(filepath.Join(root, "bim"))
	if err != nil {
		t.Fatalf("директория bim не создана: %v", err)
	}
	if !info.IsDir() {
		t.Fatal("bim не является директорией")
	}
}

// TestAllocateDir проверяет формат пути и идемпотентность.
func TestAllocateDir(t *testing.T) {
	fs := newTestStore(t)

	dir, err := fs.AllocateDir("42", model.KindGeoTIFF, "rec-1")
	if err != nil {
		t.Fatalf("AllocateDir: %v", err)
	}

	want := filepath.Join(fs.Root(), "bim", "user_42", "geotiff", "rec-1")
	if dir != want {
		t.Errorf("dir = %s, ожидается %s", dir, want)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("директория не создана: %v", err)
	}

	again, err := fs.AllocateDir("42", model.KindGeoTIFF, "rec-1")
	if err != nil {
		t.Fatalf("повторный AllocateDir: %v", err)
	}
	if again != dir {
		t.Errorf("повторный вызов вернул %s, ожидается %s", again, dir)
	}
}

// TestAllocateDir_EncodesOwner проверяет, что владелец не может выйти за пределы хранилища.
func TestAllocateDir_EncodesOwner(t *testing.T) {
	fs := newTestStore(t)

	dir, err := fs.AllocateDir("../../etc", model.KindLAZ, "rec-1")
	if err != nil {
		t.Fatalf("AllocateDir: %v", err)
	}
	want := filepath.Join(fs.Root(), "bim", "user__2e_2e_2f_2e_2e_2fetc", "laz", "rec-1")
	if dir != want {
		t.Errorf("dir = %s, ожидается %s", dir, want)
	}
}

func TestAllocateDir_RejectsInvalid(t *testing.T) {
	fs := newTestStore(t)

	if _, err := fs.AllocateDir("1", model.Kind("IFC"), "rec"); err == nil {
		t.Error("ожидалась ошибка для недопустимого вида")
	}
	if _, err := fs.AllocateDir("1", model.KindLAS, "../x"); err == nil {
		t.Error("ожидалась ошибка для идентификатора с '..'")
	}
	if _, err := fs.AllocateDir("1", model.KindLAS, ""); err == nil {
		t.Error("ожидалась ошибка для пустого идентификатора")
	}
}

// TestWriteFile проверяет запись и вычисление относительного пути.
func TestWriteFile(t *testing.T) {
	fs := newTestStore(t)
	dir, err := fs.AllocateDir("7", model.KindLAZ, "abc")
	if err != nil {
		t.Fatalf("AllocateDir: %v", err)
	}

	content := []byte("LASF тестовые байты")
	res, err := fs.WriteFile(dir, "scan.laz", bytes.NewReader(content))
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if res.Size != int64(len(content)) {
		t.Errorf("размер: ожидалось %d, получено %d", len(content), res.Size)
	}

	data, err := os.ReadFile(res.FullPath)
	if err != nil {
		t.Fatalf("ошибка чтения: %v", err)
	}
	if !bytes.Equal(data, content) {
		t.Error("содержимое файла не совпадает")
	}

	if _, err := os.Stat(res.FullPath + ".tmp"); !os.IsNotExist(err) {
		t.Error("временный файл не должен оставаться после записи")
	}

	rel, err := fs.RelPath(res.FullPath)
	if err != nil {
		t.Fatalf("RelPath: %v", err)
	}
	if rel != "bim/user_7/laz/abc/scan.laz" {
		t.Errorf("RelPath = %q", rel)
	}

	full, err := fs.FullPath(rel)
	if err != nil {
		t.Fatalf("FullPath: %v", err)
	}
	if full != res.FullPath {
		t.Errorf("FullPath = %s, ожидается %s", full, res.FullPath)
	}
}

func TestWriteFile_RejectsBadNames(t *testing.T) {
	fs := newTestStore(t)
	dir, _ := fs.AllocateDir("7", model.KindLAZ, "abc")

	for _, name := range []string{"", "..", "../evil.laz", "sub/scan.laz"} {
		if _, err := fs.WriteFile(dir, name, strings.NewReader("x")); err == nil {
			t.Errorf("ожидалась ошибка для имени %q", name)
		}
	}

	if _, err := fs.WriteFile(t.TempDir(), "scan.laz", strings.NewReader("x")); !errors.Is(err, ErrOutsideRoot) {
		t.Errorf("ожидалась ErrOutsideRoot, получено %v", err)
	}
}

func TestFullPath_RejectsEscape(t *testing.T) {
	fs := newTestStore(t)

	for _, rel := range []string{"", "../outside.laz", "bim", "bim/../../x"} {
		if _, err := fs.FullPath(rel); !errors.Is(err, ErrOutsideRoot) {
			t.Errorf("FullPath(%q): ожидалась ErrOutsideRoot, получено %v", rel, err)
		}
	}
}

// TestRemoveFile_PrunesEmptyParents проверяет очистку опустевших директорий
// и сохранение <root>/bim.
func TestRemoveFile_PrunesEmptyParents(t *testing.T) {
	fs := newTestStore(t)
	dir, _ := fs.AllocateDir("7", model.KindLAZ, "abc")
	res, err := fs.WriteFile(dir, "scan.laz", strings.NewReader("data"))
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	rel, _ := fs.RelPath(res.FullPath)

	if err := fs.RemoveFile(rel); err != nil {
		t.Fatalf("RemoveFile: %v", err)
	}

	if _, err := os.Stat(filepath.Join(fs.Root(), "bim", "user_7")); !os.IsNotExist(err) {
		t.Error("директория user_7 должна быть удалена")
	}
	if _, err := os.Stat(filepath.Join(fs.Root(), "bim")); err != nil {
		t.Errorf("директория bim должна сохраниться: %v", err)
	}
}

// TestRemoveFile_KeepsNonEmptySiblings проверяет, что очистка останавливается
// на первой непустой директории.
func TestRemoveFile_KeepsNonEmptySiblings(t *testing.T) {
	fs := newTestStore(t)

	dirA, _ := fs.AllocateDir("7", model.KindLAZ, "a")
	resA, _ := fs.WriteFile(dirA, "a.laz", strings.NewReader("a"))
	dirB, _ := fs.AllocateDir("7", model.KindLAZ, "b")
	if _, err := fs.WriteFile(dirB, "b.laz", strings.NewReader("b")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	relA, _ := fs.RelPath(resA.FullPath)
	if err := fs.RemoveFile(relA); err != nil {
		t.Fatalf("RemoveFile: %v", err)
	}

	if _, err := os.Stat(dirA); !os.IsNotExist(err) {
		t.Error("директория записи a должна быть удалена")
	}
	if _, err := os.Stat(dirB); err != nil {
		t.Errorf("директория записи b должна сохраниться: %v", err)
	}
}

func TestRemoveFile_MissingIsNotError(t *testing.T) {
	fs := newTestStore(t)
	dir, _ := fs.AllocateDir("7", model.KindLAS, "gone")

	if err := fs.RemoveFile("bim/user_7/las/gone/scan.laz"); err != nil {
		t.Fatalf("отсутствующий файл не должен давать ошибку: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("пустая директория записи должна быть удалена")
	}
}

func TestRemoveDir(t *testing.T) {
	fs := newTestStore(t)
	dir, _ := fs.AllocateDir("7", model.KindLAS, "rec")
	if _, err := fs.WriteFile(dir, "temp.las", strings.NewReader("las")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := fs.RemoveDir(dir); err != nil {
		t.Fatalf("RemoveDir: %v", err)
	}
	if _, err := os.Stat(filepath.Join(fs.Root(), "bim", "user_7")); !os.IsNotExist(err) {
		t.Error("опустевшие родители должны быть удалены")
	}

	if err := fs.RemoveDir(filepath.Join(fs.Root(), "bim")); err == nil {
		t.Error("удаление самой директории bim должно быть запрещено")
	}
}

func TestCheckWritable(t *testing.T) {
	fs := newTestStore(t)
	if err := fs.CheckWritable(); err != nil {
		t.Fatalf("CheckWritable: %v", err)
	}
}

func TestOwnerDirName(t *testing.T) {
	tests := []struct {
		input, want string
	}{
		{"42", "42"},
		{"3f2b9c1e-8a4d-4e2f-9b1a-7c6d5e4f3a2b", "3f2b9c1e-8a4d-4e2f-9b1a-7c6d5e4f3a2b"},
		{"a.b", "a_2eb"},
		{"a_b", "a_5fb"},
		{"ab", "ab"},
		{"../..", "_2e_2e_2f_2e_2e"},
		{"ив", "_d0_b8_d0_b2"},
	}

	for _, tt := range tests {
		got, err := OwnerDirName(tt.input)
		if err != nil {
			t.Fatalf("OwnerDirName(%q): %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("OwnerDirName(%q) = %q, ожидается %q", tt.input, got, tt.want)
		}
	}
}

// TestOwnerDirName_Distinct проверяет, что разные владельцы не делят директорию.
func TestOwnerDirName_Distinct(t *testing.T) {
	owners := []string{"ab", "a.b", "a_b", "a-b", "a_2eb", "a b", "A.B", "a/b"}
	seen := map[string]string{}

	for _, owner := range owners {
		name, err := OwnerDirName(owner)
		if err != nil {
			t.Fatalf("OwnerDirName(%q): %v", owner, err)
		}
		if prev, ok := seen[name]; ok {
			t.Errorf("владельцы %q и %q получили одну директорию %q", prev, owner, name)
		}
		seen[name] = owner
	}

	fs := newTestStore(t)
	dirA, err := fs.AllocateDir("a.b", model.KindLAZ, "rec-1")
	if err != nil {
		t.Fatal(err)
	}
	dirB, err := fs.AllocateDir("ab", model.KindLAZ, "rec-1")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Dir(filepath.Dir(dirA)) == filepath.Dir(filepath.Dir(dirB)) {
		t.Errorf("директории владельцев совпали: %s", dirA)
	}
}

func TestOwnerDirName_Invalid(t *testing.T) {
	if _, err := OwnerDirName(""); err == nil {
		t.Error("ожидалась ошибка для пустого владельца")
	}
	if _, err := OwnerDirName(strings.Repeat(".", 100)); err == nil {
		t.Error("ожидалась ошибка для слишком длинного имени")
	}
}
