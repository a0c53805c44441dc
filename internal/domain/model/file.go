package model

import "time"

// UploadedFile — запись о загруженном файле.
// StoredPath уникален: имя генерируется случайно (UUID),
// коллизии при конкурентных загрузках исключены.
type UploadedFile struct {
	// FileID — UUID записи
	FileID string
	// OriginalName — имя файла, переданное клиентом
	OriginalName string
	// StoredPath — путь относительно корня загрузок (например, workflow/<uuid>.csv)
	StoredPath string
	// Size — размер файла в байтах
	Size int64
	// ContentType — MIME-тип из multipart-заголовка
	ContentType string
	// Checksum — SHA-256 содержимого (hex)
	Checksum string
	// UploadedBy — идентификатор пользователя (sub из JWT, пустой при отключённом auth)
	UploadedBy string
	// UploadedAt — время загрузки
	UploadedAt time.Time
}
