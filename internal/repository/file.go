package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/golazyllm/console-module/internal/domain/model"
)

// FileRepository — интерфейс доступа к таблице uploaded_files.
type FileRepository interface {
	// Register создаёт запись о загруженном файле.
	Register(ctx context.Context, f *model.UploadedFile) error
	// GetByID возвращает запись по UUID.
	GetByID(ctx context.Context, fileID string) (*model.UploadedFile, error)
}

// fileRepo — реализация FileRepository.
type fileRepo struct {
	db DBTX
}

// NewFileRepository создаёт репозиторий загруженных файлов.
func NewFileRepository(db DBTX) FileRepository {
	return &fileRepo{db: db}
}

func (r *fileRepo) Register(ctx context.Context, f *model.UploadedFile) error {
	query := `
		INSERT INTO uploaded_files (file_id, original_name, stored_path, size, content_type, checksum, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING uploaded_at`

	err := r.db.QueryRow(ctx, query,
		f.FileID, f.OriginalName, f.StoredPath, f.Size, f.ContentType, f.Checksum, f.UploadedBy,
	).Scan(&f.UploadedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: файл с таким ID или путём уже зарегистрирован", ErrConflict)
		}
		return fmt.Errorf("ошибка регистрации файла: %w", err)
	}
	return nil
}

func (r *fileRepo) GetByID(ctx context.Context, fileID string) (*model.UploadedFile, error) {
	query := `
		SELECT file_id, original_name, stored_path, size, content_type, checksum, uploaded_by, uploaded_at
		FROM uploaded_files
		WHERE file_id = $1`

	f := &model.UploadedFile{}
	err := r.db.QueryRow(ctx, query, fileID).Scan(
		&f.FileID, &f.OriginalName, &f.StoredPath, &f.Size, &f.ContentType,
		&f.Checksum, &f.UploadedBy, &f.UploadedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения файла: %w", err)
	}
	return f, nil
}
