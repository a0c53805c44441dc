// upload.go — сервис загрузки файлов.
package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	apierrors "github.com/bigkaa/golazyllm/console-module/internal/api/errors"
	"github.com/bigkaa/golazyllm/console-module/internal/domain/model"
	"github.com/bigkaa/golazyllm/console-module/internal/repository"
	"github.com/bigkaa/golazyllm/console-module/internal/storage/uploads"
)

// UploadParams — параметры загрузки файла.
type UploadParams struct {
	// Reader — поток данных файла
	Reader io.Reader
	// OriginalFilename — имя файла, переданное клиентом
	OriginalFilename string
	// ContentType — MIME-тип из multipart-заголовка
	ContentType string
	// UploadedBy — идентификатор пользователя (пустой при отключённом auth)
	UploadedBy string
}

// UploadError — ошибка загрузки с HTTP-кодом.
type UploadError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// UploadService — сервис загрузки файлов: запись на диск + регистрация в БД.
type UploadService struct {
	store  *uploads.FileStore
	files  repository.FileRepository
	logger *slog.Logger
}

// NewUploadService создаёт сервис загрузки.
func NewUploadService(store *uploads.FileStore, files repository.FileRepository, logger *slog.Logger) *UploadService {
	return &UploadService{
		store:  store,
		files:  files,
		logger: logger.With(slog.String("component", "upload_service")),
	}
}

// Upload сохраняет файл в {root}/workflow/{uuid}{ext} и регистрирует запись.
// Путь каждого файла уникален; ошибка регистрации в БД не откатывает
// запись на диске (файл без записи подберёт внешняя очистка).
func (s *UploadService) Upload(ctx context.Context, params UploadParams) (*model.UploadedFile, *UploadError) {
	contentType := params.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	result, err := s.store.Save(params.Reader, uploads.WorkflowDir, params.OriginalFilename)
	if err != nil {
		s.logger.Error("Ошибка записи файла на диск",
			slog.String("filename", params.OriginalFilename),
			slog.String("error", err.Error()),
		)
		return nil, &UploadError{
			StatusCode: http.StatusInternalServerError,
			Code:       apierrors.CodeInternalError,
			Message:    "Ошибка сохранения файла",
		}
	}

	file := &model.UploadedFile{
		FileID:       uuid.NewString(),
		OriginalName: params.OriginalFilename,
		StoredPath:   result.StoredPath,
		Size:         result.Size,
		ContentType:  contentType,
		Checksum:     result.Checksum,
		UploadedBy:   params.UploadedBy,
	}

	if err := s.files.Register(ctx, file); err != nil {
		s.logger.Error("Ошибка регистрации файла в БД",
			slog.String("stored_path", result.StoredPath),
			slog.String("error", err.Error()),
		)
		return nil, &UploadError{
			StatusCode: http.StatusInternalServerError,
			Code:       apierrors.CodeInternalError,
			Message:    "Ошибка регистрации файла",
		}
	}

	s.logger.Info("Файл загружен",
		slog.String("file_id", file.FileID),
		slog.String("stored_path", file.StoredPath),
		slog.Int64("size", file.Size),
	)
	return file, nil
}
