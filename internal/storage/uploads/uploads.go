// Пакет uploads — хранение загруженных файлов на диске.
// Streaming-запись с подсчётом SHA-256 на лету, случайные имена (UUID)
// с сохранением расширения, идемпотентное создание поддиректорий.
package uploads

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// WorkflowDir — поддиректория загрузок workflow-файлов.
const WorkflowDir = "workflow"

// FileStore — управление загруженными файлами на диске.
// Директории создаются через MkdirAll: конкурентное создание
// одной и той же директории безопасно.
type FileStore struct {
	// rootDir — корневая директория загрузок (LAZYLLM_UPLOAD_PATH)
	rootDir string
}

// SaveResult — результат сохранения файла.
type SaveResult struct {
	// StoredPath — путь относительно rootDir (например, workflow/<uuid>.csv)
	StoredPath string
	// FullPath — абсолютный путь на диске
	FullPath string
	// Size — размер записанных данных в байтах
	Size int64
	// Checksum — SHA-256 содержимого (hex)
	Checksum string
}

// New создаёт FileStore и корневую директорию, если её нет.
func New(rootDir string) (*FileStore, error) {
	if err := os.MkdirAll(rootDir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию загрузок %s: %w", rootDir, err)
	}
	return &FileStore{rootDir: rootDir}, nil
}

// Save записывает данные из reader в {rootDir}/{subDir}/{uuid}{ext}.
// Расширение берётся из originalFilename. Имя — UUID, поэтому пути
// конкурентных загрузок всегда различны.
//
// Паттерн: temp файл → запись + SHA-256 → fsync → atomic rename.
// При ошибке temp файл удаляется.
func (fs *FileStore) Save(reader io.Reader, subDir, originalFilename string) (*SaveResult, error) {
	dir := filepath.Join(fs.rootDir, subDir)
	// MkdirAll идемпотентен: гонка двух запросов за создание
	// одной директории не приводит к ошибке
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию %s: %w", dir, err)
	}

	storedName := uuid.NewString() + sanitizeExt(originalFilename)
	storedPath := filepath.Join(subDir, storedName)
	fullPath := filepath.Join(dir, storedName)
	tmpPath := fullPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	// Streaming запись с одновременным подсчётом SHA-256
	hasher := sha256.New()
	tee := io.TeeReader(reader, hasher)

	size, err := io.Copy(f, tee)
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

	// Атомарный rename
	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return &SaveResult{
		StoredPath: storedPath,
		FullPath:   fullPath,
		Size:       size,
		Checksum:   hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// Open открывает сохранённый файл для чтения.
// Вызывающий код обязан закрыть файл.
func (fs *FileStore) Open(storedPath string) (*os.File, error) {
	f, err := os.Open(filepath.Join(fs.rootDir, storedPath))
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия файла %s: %w", storedPath, err)
	}
	return f, nil
}

// sanitizeExt возвращает расширение оригинального имени файла
// или пустую строку, если расширения нет. Отбрасывает компоненты пути,
// переданные клиентом в имени файла.
func sanitizeExt(originalFilename string) string {
	return filepath.Ext(filepath.Base(originalFilename))
}
