// Пакет model — доменные модели Console Module.
package model

import (
	"errors"
	"time"
)

// TaskStatus — статус fine-tune задачи.
// Использовать экспортированные константы вместо сырых строк.
type TaskStatus string

const (
	// TaskPending — задача создана, исполнение не начато.
	TaskPending TaskStatus = "pending"
	// TaskInProgress — задача передана runtime и выполняется.
	TaskInProgress TaskStatus = "in_progress"
	// TaskCompleted — задача успешно завершена.
	TaskCompleted TaskStatus = "completed"
	// TaskFailed — задача завершилась ошибкой или потеряна.
	TaskFailed TaskStatus = "failed"
	// TaskCancelled — задача отменена пользователем.
	TaskCancelled TaskStatus = "cancelled"
)

// ErrUnknownStatus — неизвестное строковое значение статуса.
var ErrUnknownStatus = errors.New("неизвестный статус задачи")

// AllTaskStatuses — все допустимые статусы в стабильном порядке.
var AllTaskStatuses = []TaskStatus{
	TaskPending, TaskInProgress, TaskCompleted, TaskFailed, TaskCancelled,
}

// String возвращает строковое значение статуса.
func (s TaskStatus) String() string { return string(s) }

// Terminal возвращает true для конечных статусов
// (completed, failed, cancelled): из них переходы запрещены.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskCancelled:
		return true
	default:
		return false
	}
}

// ParseTaskStatus преобразует строку в TaskStatus.
func ParseTaskStatus(s string) (TaskStatus, error) {
	switch s {
	case string(TaskPending):
		return TaskPending, nil
	case string(TaskInProgress):
		return TaskInProgress, nil
	case string(TaskCompleted):
		return TaskCompleted, nil
	case string(TaskFailed):
		return TaskFailed, nil
	case string(TaskCancelled):
		return TaskCancelled, nil
	default:
		return "", ErrUnknownStatus
	}
}

// FinetuneTask — персистентная запись fine-tune задачи.
// Статус мутируется только единичными CAS-обновлениями
// (каждое — в собственной транзакции).
type FinetuneTask struct {
	// TaskID — UUID задачи
	TaskID string
	// Status — текущий статус жизненного цикла
	Status TaskStatus
	// ModelName — имя базовой модели
	ModelName string
	// CreatedBy — идентификатор владельца
	CreatedBy string
	// LastError — сообщение последней ошибки (пустое при успехе)
	LastError string
	// CreatedAt — время создания записи
	CreatedAt time.Time
	// StartedAt — время перехода в in_progress (nil — не запускалась)
	StartedAt *time.Time
	// FinishedAt — время перехода в терминальный статус
	FinishedAt *time.Time
	// UpdatedAt — время последнего изменения записи
	UpdatedAt time.Time
}
