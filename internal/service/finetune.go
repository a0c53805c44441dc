// finetune.go — жизненный цикл fine-tune задач.
//
// Конечный автомат: pending → in_progress → {completed, failed, cancelled}.
// Переход в in_progress выполняется синхронно в Start, до передачи задачи
// runtime. Процесс может упасть между записью статуса и принятием задачи
// runtime — такие "осиротевшие" in_progress записи находит и закрывает
// CheckStatus (сверка).
//
// Все изменения статуса — CAS-обновления в собственных коротких транзакциях:
// сверка может работать одновременно с Start/Cancel по одному task_id.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/golazyllm/console-module/internal/domain/model"
	"github.com/bigkaa/golazyllm/console-module/internal/repository"
)

// Prometheus метрики сверки.
var (
	checkStatusRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cm_check_status_runs_total",
		Help: "Количество запусков сверки статусов fine-tune задач",
	})
	checkStatusReconciledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cm_check_status_reconciled_total",
		Help: "Количество задач, закрытых сверкой, по исходу",
	}, []string{"outcome"})
)

// RuntimeStatus — состояние исполнения задачи с точки зрения runtime.
type RuntimeStatus string

const (
	// RuntimeRunning — runtime выполняет задачу.
	RuntimeRunning RuntimeStatus = "running"
	// RuntimeSucceeded — runtime завершил задачу успешно.
	RuntimeSucceeded RuntimeStatus = "succeeded"
	// RuntimeFailed — runtime завершил задачу с ошибкой.
	RuntimeFailed RuntimeStatus = "failed"
	// RuntimeUnknown — runtime ничего не знает о задаче.
	RuntimeUnknown RuntimeStatus = "unknown"
)

// TaskManager — runtime-сервис исполнения fine-tune задач.
// Внедряется как интерфейс: в тестах заменяется фейком.
type TaskManager interface {
	// Start передаёт задачу на исполнение.
	Start(ctx context.Context, taskID string) error
	// Cancel запрашивает остановку задачи (best-effort, не блокирует
	// до фактической остановки).
	Cancel(ctx context.Context, taskID string) error
	// Status возвращает состояние исполнения и сообщение ошибки
	// (непустое только при RuntimeFailed).
	Status(ctx context.Context, taskID string) (RuntimeStatus, string, error)
}

// FinetuneService — управление жизненным циклом fine-tune задач.
type FinetuneService struct {
	tasks        repository.TaskRepository
	manager      TaskManager
	staleTimeout time.Duration
	logger       *slog.Logger
}

// NewFinetuneService создаёт сервис fine-tune задач.
// staleTimeout — возраст in_progress задачи без живого исполнения,
// после которого сверка признаёт её потерянной.
func NewFinetuneService(
	tasks repository.TaskRepository,
	manager TaskManager,
	staleTimeout time.Duration,
	logger *slog.Logger,
) *FinetuneService {
	return &FinetuneService{
		tasks:        tasks,
		manager:      manager,
		staleTimeout: staleTimeout,
		logger:       logger.With(slog.String("component", "finetune_service")),
	}
}

// CreateTask создаёт запись задачи в статусе pending и возвращает её.
func (s *FinetuneService) CreateTask(ctx context.Context, modelName, createdBy string) (*model.FinetuneTask, error) {
	task := &model.FinetuneTask{
		TaskID:    uuid.NewString(),
		Status:    model.TaskPending,
		ModelName: modelName,
		CreatedBy: createdBy,
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("создание fine-tune задачи: %w", err)
	}

	s.logger.Info("Fine-tune задача создана",
		slog.String("task_id", task.TaskID),
		slog.String("model", modelName),
	)
	return task, nil
}

// GetTask возвращает запись задачи.
func (s *FinetuneService) GetTask(ctx context.Context, taskID string) (*model.FinetuneTask, error) {
	return s.tasks.GetByID(ctx, taskID)
}

// Start переводит задачу pending → in_progress и передаёт её runtime.
// Статус пишется до обращения к runtime: упавший между этими шагами
// процесс оставит осиротевшую in_progress запись, которую закроет сверка.
func (s *FinetuneService) Start(ctx context.Context, taskID string) error {
	err := s.tasks.CompareAndSetStatus(ctx, taskID, model.TaskPending, model.TaskInProgress, "")
	if err != nil {
		if errors.Is(err, repository.ErrStatusMismatch) {
			// Повторная доставка задачи или гонка с Cancel — не ошибка исполнения
			s.logger.Warn("Start пропущен: задача уже не в pending",
				slog.String("task_id", taskID),
			)
			return nil
		}
		return fmt.Errorf("перевод задачи %s в in_progress: %w", taskID, err)
	}

	if mgrErr := s.manager.Start(ctx, taskID); mgrErr != nil {
		s.logger.Error("Runtime отклонил задачу",
			slog.String("task_id", taskID),
			slog.String("error", mgrErr.Error()),
		)
		if casErr := s.tasks.CompareAndSetStatus(ctx, taskID, model.TaskInProgress, model.TaskFailed, mgrErr.Error()); casErr != nil && !errors.Is(casErr, repository.ErrStatusMismatch) {
			return fmt.Errorf("фиксация отказа runtime для задачи %s: %w", taskID, casErr)
		}
		return fmt.Errorf("запуск задачи %s в runtime: %w", taskID, mgrErr)
	}

	s.logger.Info("Fine-tune задача запущена", slog.String("task_id", taskID))
	return nil
}

// Cancel запрашивает остановку задачи и помечает запись cancelled.
// Best-effort: ошибка runtime логируется, статус всё равно переводится —
// фактическую остановку исполнения подтвердит сверка.
func (s *FinetuneService) Cancel(ctx context.Context, taskID string) error {
	if mgrErr := s.manager.Cancel(ctx, taskID); mgrErr != nil {
		s.logger.Warn("Runtime не подтвердил отмену",
			slog.String("task_id", taskID),
			slog.String("error", mgrErr.Error()),
		)
	}

	// pending → cancelled, иначе in_progress → cancelled;
	// терминальные статусы не перезаписываются
	err := s.tasks.CompareAndSetStatus(ctx, taskID, model.TaskPending, model.TaskCancelled, "")
	if errors.Is(err, repository.ErrStatusMismatch) {
		err = s.tasks.CompareAndSetStatus(ctx, taskID, model.TaskInProgress, model.TaskCancelled, "")
	}
	if err != nil {
		if errors.Is(err, repository.ErrStatusMismatch) {
			s.logger.Warn("Cancel пропущен: задача уже в терминальном статусе",
				slog.String("task_id", taskID),
			)
			return nil
		}
		return fmt.Errorf("отмена задачи %s: %w", taskID, err)
	}

	s.logger.Info("Fine-tune задача отменена", slog.String("task_id", taskID))
	return nil
}

// CheckStatus — сверка: проходит все in_progress записи и приводит их
// статус к фактическому состоянию исполнения.
//
// Исходы:
//   - runtime succeeded → completed
//   - runtime failed → failed (с сообщением runtime)
//   - runtime running → запись не трогаем
//   - runtime unknown и старше staleTimeout → failed (потеряна)
//   - runtime unknown, моложе staleTimeout → запись не трогаем
//     (runtime мог ещё не принять задачу)
//
// CAS-промахи игнорируются: значит, запись уже изменили конкурентно.
func (s *FinetuneService) CheckStatus(ctx context.Context) error {
	checkStatusRunsTotal.Inc()

	inProgress, err := s.tasks.ListByStatus(ctx, model.TaskInProgress)
	if err != nil {
		return fmt.Errorf("выборка in_progress задач: %w", err)
	}

	cutoff := time.Now().UTC().Add(-s.staleTimeout)
	reconciled := 0

	for _, task := range inProgress {
		status, message, stErr := s.manager.Status(ctx, task.TaskID)
		if stErr != nil {
			// Недоступный runtime не повод признавать задачи потерянными
			s.logger.Error("Сверка: ошибка запроса состояния runtime",
				slog.String("task_id", task.TaskID),
				slog.String("error", stErr.Error()),
			)
			continue
		}

		switch status {
		case RuntimeSucceeded:
			if s.casFromInProgress(ctx, task.TaskID, model.TaskCompleted, "") {
				checkStatusReconciledTotal.WithLabelValues("completed").Inc()
				reconciled++
			}
		case RuntimeFailed:
			if s.casFromInProgress(ctx, task.TaskID, model.TaskFailed, message) {
				checkStatusReconciledTotal.WithLabelValues("failed").Inc()
				reconciled++
			}
		case RuntimeUnknown:
			if task.StartedAt != nil && task.StartedAt.Before(cutoff) {
				if s.casFromInProgress(ctx, task.TaskID, model.TaskFailed, "задача потеряна: runtime не знает об исполнении") {
					checkStatusReconciledTotal.WithLabelValues("stale").Inc()
					reconciled++
					s.logger.Warn("Сверка: потерянная задача переведена в failed",
						slog.String("task_id", task.TaskID),
						slog.Time("started_at", *task.StartedAt),
					)
				}
			}
		case RuntimeRunning:
			// Исполнение живо, ничего не делаем
		}
	}

	s.logger.Info("Сверка статусов завершена",
		slog.Int("in_progress", len(inProgress)),
		slog.Int("reconciled", reconciled),
	)
	return nil
}

// casFromInProgress выполняет CAS in_progress → next, игнорируя
// конкурентные изменения. Возвращает true, если переход применён.
func (s *FinetuneService) casFromInProgress(ctx context.Context, taskID string, next model.TaskStatus, lastError string) bool {
	err := s.tasks.CompareAndSetStatus(ctx, taskID, model.TaskInProgress, next, lastError)
	if err == nil {
		return true
	}
	if !errors.Is(err, repository.ErrStatusMismatch) && !errors.Is(err, repository.ErrNotFound) {
		s.logger.Error("Сверка: ошибка обновления статуса",
			slog.String("task_id", taskID),
			slog.String("error", err.Error()),
		)
	}
	return false
}
