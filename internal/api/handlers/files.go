// files.go — HTTP handler загрузки файлов Console Module.
// Принимает multipart form с полем "file" и сохраняет файл
// в каталог workflow под сгенерированным именем.
package handlers

import (
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/golazyllm/console-module/internal/api/errors"
	"github.com/bigkaa/golazyllm/console-module/internal/api/middleware"
	"github.com/bigkaa/golazyllm/console-module/internal/service"
)

// maxMultipartMemory — буфер парсинга multipart form в памяти,
// остальное уходит во временные файлы.
const maxMultipartMemory = 32 << 20 // 32 MB

// FilesHandler — обработчик файловых endpoints.
type FilesHandler struct {
	uploadSvc *service.UploadService
	logger    *slog.Logger
}

// NewFilesHandler создаёт обработчик файловых endpoints.
func NewFilesHandler(uploadSvc *service.UploadService, logger *slog.Logger) *FilesHandler {
	return &FilesHandler{
		uploadSvc: uploadSvc,
		logger:    logger.With(slog.String("component", "files_handler")),
	}
}

// uploadResponse — ответ успешной загрузки.
// file_path — относительный путь сохранённого файла.
type uploadResponse struct {
	FilePath string `json:"file_path"`
}

// UploadFile обрабатывает POST /console/api/files/upload.
// Multipart form: file (обязательно). Отсутствие поля — 400 normal_error.
func (h *FilesHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	// Извлекаем subject из JWT контекста
	subject := middleware.SubjectFromContext(r.Context())

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		apierrors.WriteError(w, apierrors.NormalError("Ошибка парсинга multipart: "+err.Error()))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		apierrors.WriteError(w, apierrors.NormalError("Поле 'file' обязательно"))
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	uploaded, uploadErr := h.uploadSvc.Upload(r.Context(), service.UploadParams{
		Reader:           file,
		OriginalFilename: header.Filename,
		ContentType:      contentType,
		UploadedBy:       subject,
	})
	if uploadErr != nil {
		apierrors.WriteError(w, apierrors.New(uploadErr.StatusCode, uploadErr.Code, uploadErr.Message))
		return
	}

	h.logger.Info("Файл загружен",
		slog.String("file_id", uploaded.FileID),
		slog.String("original_name", uploaded.OriginalName),
		slog.String("stored_path", uploaded.StoredPath),
		slog.Int64("size", uploaded.Size),
		slog.String("uploaded_by", subject),
	)

	writeJSON(w, http.StatusOK, uploadResponse{FilePath: uploaded.StoredPath})
}
