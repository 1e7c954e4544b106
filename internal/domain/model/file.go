// Пакет model — доменные типы AirBIM: виды BIM-файлов, запись каталога
// и проверка расширений загружаемых файлов.
package model

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind — вид BIM-файла. Множество значений закрыто.
type Kind string

const (
	// KindLAZ — сжатое облако точек LAZ.
	KindLAZ Kind = "LAZ"
	// KindLAS — облако точек LAS. Хранится после конвертации в LAZ,
	// но запись сохраняет исходный вид.
	KindLAS Kind = "LAS"
	// KindGeoTIFF — растр GeoTIFF.
	KindGeoTIFF Kind = "GEOTIFF"
)

// AllowedExtensions — допустимые расширения загружаемых файлов.
var AllowedExtensions = []string{".las", ".laz", ".tif", ".tiff"}

// AllowedTypesLabel — перечень допустимых типов для сообщений об ошибках.
const AllowedTypesLabel = "LAZ, LAS or GeoTIFF"

// Valid проверяет, что значение входит в закрытое множество видов.
func (k Kind) Valid() bool {
	switch k {
	case KindLAZ, KindLAS, KindGeoTIFF:
		return true
	default:
		return false
	}
}

// Dir возвращает имя поддиректории вида в хранилище (нижний регистр).
func (k Kind) Dir() string {
	return strings.ToLower(string(k))
}

// IsPointCloud сообщает, является ли вид облаком точек.
func (k Kind) IsPointCloud() bool {
	return k == KindLAS || k == KindLAZ
}

// ValidateExtension проверяет, что имя файла оканчивается на одно из
// допустимых расширений. Сравнение регистронезависимое, содержимое файла
// не анализируется.
func ValidateExtension(filename string, allowed []string) bool {
	name := strings.ToLower(filename)
	for _, ext := range allowed {
		if ext == "" {
			continue
		}
		if strings.HasSuffix(name, strings.ToLower(ext)) {
			return true
		}
	}
	return false
}

// KindFromFilename определяет вид файла по расширению.
// .tif и .tiff дают GEOTIFF, остальные — расширение в верхнем регистре.
// Вызывается только для имён, прошедших ValidateExtension.
func KindFromFilename(filename string) Kind {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".tif", ".tiff":
		return KindGeoTIFF
	default:
		return Kind(strings.ToUpper(strings.TrimPrefix(ext, ".")))
	}
}

// FileRecord — запись каталога BIM-файлов (таблица bim_files).
type FileRecord struct {
	ID               uuid.UUID
	OwnerID          string
	Kind             Kind
	OriginalFilename string
	// FilePath — путь относительно корня хранилища; пустой до финализации.
	FilePath  string
	Size      int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Finalized сообщает, что путь к файлу записан и запись доступна
// для просмотра, получения и удаления.
func (r *FileRecord) Finalized() bool {
	return r.FilePath != ""
}
