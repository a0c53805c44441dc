package runtimeclient

import (
	"context"
	"log/slog"
	"sync"

	"github.com/bigkaa/golazyllm/console-module/internal/service"
)

// Local — локальная реализация TaskManager на случай, когда внешний
// runtime не сконфигурирован (CM_FINETUNE_RUNTIME_URL пуст).
// Принятые задачи сразу считаются успешно завершёнными, что позволяет
// прогонять полный жизненный цикл без внешнего сервиса.
type Local struct {
	mu        sync.Mutex
	cancelled map[string]bool
	logger    *slog.Logger
}

// NewLocal создаёт локальный менеджер задач.
func NewLocal(logger *slog.Logger) *Local {
	return &Local{
		cancelled: make(map[string]bool),
		logger:    logger.With(slog.String("component", "runtime_local")),
	}
}

// Start принимает задачу в исполнение.
func (l *Local) Start(ctx context.Context, taskID string) error {
	l.logger.Info("Задача принята локальным runtime", slog.String("task_id", taskID))
	return nil
}

// Cancel помечает задачу остановленной.
func (l *Local) Cancel(ctx context.Context, taskID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cancelled[taskID] = true
	return nil
}

// Status возвращает failed для остановленных задач и succeeded для остальных.
func (l *Local) Status(ctx context.Context, taskID string) (service.RuntimeStatus, string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancelled[taskID] {
		return service.RuntimeFailed, "задача остановлена", nil
	}
	return service.RuntimeSucceeded, "", nil
}

var _ service.TaskManager = (*Local)(nil)
