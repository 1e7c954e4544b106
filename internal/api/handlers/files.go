// files.go — HTTP handlers для BIM-файлов: загрузка, список, информация, удаление.
// Тексты ошибок API совпадают с текстами веб-клиента BIM.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"

	openapi_types "github.com/oapi-codegen/runtime/types"

	apierrors "github.com/ABASgroup/AirBIM/internal/api/errors"
	"github.com/ABASgroup/AirBIM/internal/api/middleware"
	"github.com/ABASgroup/AirBIM/internal/domain/model"
	"github.com/ABASgroup/AirBIM/internal/service"
)

// multipartOverhead — запас на заголовки multipart сверх максимального размера файла.
const multipartOverhead = 1 << 20

// Тексты ответов API.
const (
	msgFileNotProvided = "File was not provided"
	msgUnsupportedType = "Unsupported file type. Allowed: " + model.AllowedTypesLabel
	msgFileNotFound    = "File not found"
)

// Uploader — загрузка BIM-файлов.
type Uploader interface {
	Upload(ctx context.Context, ownerID string, upload *service.Upload) (*service.UploadResult, error)
}

// FileCatalog — просмотр и удаление BIM-файлов.
type FileCatalog interface {
	List(ctx context.Context, ownerID string) ([]*model.FileRecord, error)
	Detail(ctx context.Context, ownerID string, id openapi_types.UUID) (*service.FileDetail, error)
	Delete(ctx context.Context, ownerID string, id openapi_types.UUID) (string, error)
}

// FilesHandler — обработчик файловых endpoints.
type FilesHandler struct {
	uploader        Uploader
	catalog         FileCatalog
	maxUploadSize   int64
	multipartMemory int64
	logger          *slog.Logger
}

// NewFilesHandler создаёт обработчик файловых endpoints.
// maxUploadSize ограничивает тело запроса загрузки, multipartMemory —
// объём файла, который держится в памяти до сброса во временный файл.
func NewFilesHandler(
	uploader Uploader,
	catalog FileCatalog,
	maxUploadSize, multipartMemory int64,
	logger *slog.Logger,
) *FilesHandler {
	return &FilesHandler{
		uploader:        uploader,
		catalog:         catalog,
		maxUploadSize:   maxUploadSize,
		multipartMemory: multipartMemory,
		logger:          logger.With(slog.String("component", "files_handler")),
	}
}

// uploadResponse — ответ на успешную загрузку.
type uploadResponse struct {
	Success  bool               `json:"success"`
	FileID   openapi_types.UUID `json:"file_id"`
	Filename string             `json:"filename"`
	FileType model.Kind         `json:"file_type"`
	Message  string             `json:"message"`
	Size     int64              `json:"size"`
}

// fileSummary — элемент списка файлов.
type fileSummary struct {
	ID       openapi_types.UUID `json:"id"`
	Filename string             `json:"filename"`
	FileType model.Kind         `json:"file_type"`
	Size     int64              `json:"size"`
}

// fileListResponse — ответ на запрос списка.
type fileListResponse struct {
	Files []fileSummary `json:"files"`
	Count int           `json:"count"`
}

// fileDetailResponse — информация о файле с метаданными.
type fileDetailResponse struct {
	ID       openapi_types.UUID `json:"id"`
	Filename string             `json:"filename"`
	FileType model.Kind         `json:"file_type"`
	Size     int64              `json:"size"`
	Metadata model.Metadata     `json:"metadata"`
	FilePath string             `json:"file_path"`
}

// deleteResponse — ответ на удаление.
type deleteResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// UploadFile обрабатывает POST /api/bim/upload.
// Multipart form: file (обязательно).
func (h *FilesHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize+multipartOverhead)
	if err := r.ParseMultipartForm(h.multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			apierrors.FileTooLarge(w, fmt.Sprintf("File exceeds the maximum size of %d bytes", h.maxUploadSize))
		case errors.Is(err, http.ErrNotMultipart), errors.Is(err, http.ErrMissingBoundary):
			apierrors.ValidationError(w, msgFileNotProvided)
		default:
			apierrors.ValidationError(w, fmt.Sprintf("Failed to read file: %s", err.Error()))
		}
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			h.logger.Warn("Не удалось удалить временные файлы multipart",
				slog.String("error", err.Error()),
			)
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		apierrors.ValidationError(w, msgFileNotProvided)
		return
	}
	defer file.Close()

	middleware.AnnotateRequest(r.Context(),
		slog.String("filename", header.Filename),
		slog.Int64("size", header.Size),
	)

	result, err := h.uploader.Upload(r.Context(), owner, uploadFromPart(file, header))
	if err != nil {
		h.writeUploadError(w, err)
		return
	}
	middleware.AnnotateRequest(r.Context(),
		slog.String("file_id", result.ID.String()),
		slog.String("file_type", string(result.Kind)),
	)

	writeJSON(w, http.StatusCreated, uploadResponse{
		Success:  true,
		FileID:   result.ID,
		Filename: result.Filename,
		FileType: result.Kind,
		Message:  result.Message,
		Size:     result.Size,
	})
}

// uploadFromPart формирует service.Upload из части multipart.
// Крупные файлы multipart уже сбросил на диск: передаём путь, а не reader.
func uploadFromPart(file multipart.File, header *multipart.FileHeader) *service.Upload {
	upload := &service.Upload{
		Filename: header.Filename,
		Size:     header.Size,
	}
	if f, ok := file.(*os.File); ok {
		upload.TempPath = f.Name()
	} else {
		upload.Content = file
	}
	return upload
}

// writeUploadError отображает ошибку сервиса загрузки в HTTP-ответ.
func (h *FilesHandler) writeUploadError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrMissingFile):
		apierrors.ValidationError(w, msgFileNotProvided)
	case errors.Is(err, service.ErrUnsupportedType):
		apierrors.ValidationError(w, msgUnsupportedType)
	case errors.Is(err, service.ErrFileTooLarge):
		apierrors.FileTooLarge(w, fmt.Sprintf("File exceeds the maximum size of %d bytes", h.maxUploadSize))
	case errors.Is(err, service.ErrRead):
		apierrors.ValidationError(w, fmt.Sprintf("Failed to read file: %s", err.Error()))
	default:
		apierrors.InternalError(w, fmt.Sprintf("Failed to upload file: %s", err.Error()))
	}
}

// ListFiles обрабатывает GET /api/bim/files.
func (h *FilesHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	files, err := h.catalog.List(r.Context(), owner)
	if err != nil {
		h.logger.Error("Ошибка получения списка файлов",
			slog.String("owner_id", owner),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, fmt.Sprintf("Failed to list files: %s", err.Error()))
		return
	}

	resp := fileListResponse{
		Files: make([]fileSummary, 0, len(files)),
		Count: len(files),
	}
	for _, f := range files {
		resp.Files = append(resp.Files, fileSummary{
			ID:       f.ID,
			Filename: f.OriginalFilename,
			FileType: f.Kind,
			Size:     f.Size,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetFile обрабатывает GET /api/bim/files/{file_id}.
func (h *FilesHandler) GetFile(w http.ResponseWriter, r *http.Request, fileID openapi_types.UUID) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	middleware.AnnotateRequest(r.Context(), slog.String("file_id", fileID.String()))

	detail, err := h.catalog.Detail(r.Context(), owner, fileID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			apierrors.NotFound(w, msgFileNotFound)
			return
		}
		apierrors.InternalError(w, fmt.Sprintf("Failed to get file info: %s", err.Error()))
		return
	}

	rec := detail.Record
	writeJSON(w, http.StatusOK, fileDetailResponse{
		ID:       rec.ID,
		Filename: rec.OriginalFilename,
		FileType: rec.Kind,
		Size:     rec.Size,
		Metadata: detail.Metadata,
		FilePath: rec.FilePath,
	})
}

// DeleteFile обрабатывает DELETE /api/bim/files/{file_id}.
func (h *FilesHandler) DeleteFile(w http.ResponseWriter, r *http.Request, fileID openapi_types.UUID) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	middleware.AnnotateRequest(r.Context(), slog.String("file_id", fileID.String()))

	filename, err := h.catalog.Delete(r.Context(), owner, fileID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			apierrors.NotFound(w, msgFileNotFound)
			return
		}
		apierrors.InternalError(w, fmt.Sprintf("Failed to delete file: %s", err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, deleteResponse{
		Success: true,
		Message: fmt.Sprintf("File %s deleted successfully", filename),
	})
}

// requireOwner извлекает владельца из JWT контекста.
func requireOwner(w http.ResponseWriter, r *http.Request) (string, bool) {
	owner := middleware.SubjectFromContext(r.Context())
	if owner == "" {
		apierrors.Unauthorized(w, "Token has no subject")
		return "", false
	}
	return owner, true
}
