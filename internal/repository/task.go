package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/golazyllm/console-module/internal/domain/model"
)

// TaskRepository — интерфейс доступа к таблице finetune_tasks.
// Статус мутируется только через CompareAndSetStatus: каждое обновление —
// отдельная короткая транзакция, last-write-wins между web-процессом
// и воркерами очереди.
type TaskRepository interface {
	// Create создаёт новую запись задачи в статусе pending.
	Create(ctx context.Context, task *model.FinetuneTask) error
	// GetByID возвращает задачу по UUID.
	GetByID(ctx context.Context, taskID string) (*model.FinetuneTask, error)
	// CompareAndSetStatus атомарно переводит задачу из expected в next.
	// Возвращает ErrStatusMismatch, если текущий статус не равен expected.
	CompareAndSetStatus(ctx context.Context, taskID string, expected, next model.TaskStatus, lastError string) error
	// ListByStatus возвращает все задачи с указанным статусом.
	ListByStatus(ctx context.Context, status model.TaskStatus) ([]*model.FinetuneTask, error)
	// ListStaleInProgress возвращает задачи in_progress, запущенные раньше cutoff.
	ListStaleInProgress(ctx context.Context, cutoff time.Time) ([]*model.FinetuneTask, error)
}

// taskRepo — реализация TaskRepository.
type taskRepo struct {
	db DBTX
}

// NewTaskRepository создаёт репозиторий fine-tune задач.
func NewTaskRepository(db DBTX) TaskRepository {
	return &taskRepo{db: db}
}

const taskColumns = `task_id, status, model_name, created_by, last_error,
	created_at, started_at, finished_at, updated_at`

func (r *taskRepo) Create(ctx context.Context, task *model.FinetuneTask) error {
	query := `
		INSERT INTO finetune_tasks (task_id, status, model_name, created_by)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		task.TaskID, task.Status, task.ModelName, task.CreatedBy,
	).Scan(&task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: задача с таким ID уже существует", ErrConflict)
		}
		return fmt.Errorf("ошибка создания задачи: %w", err)
	}
	return nil
}

func (r *taskRepo) GetByID(ctx context.Context, taskID string) (*model.FinetuneTask, error) {
	query := `SELECT ` + taskColumns + ` FROM finetune_tasks WHERE task_id = $1`

	task, err := scanTask(r.db.QueryRow(ctx, query, taskID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения задачи: %w", err)
	}
	return task, nil
}

// CompareAndSetStatus — единица мутации статуса.
// started_at выставляется при входе в in_progress,
// finished_at — при входе в терминальный статус.
func (r *taskRepo) CompareAndSetStatus(ctx context.Context, taskID string, expected, next model.TaskStatus, lastError string) error {
	query := `
		UPDATE finetune_tasks
		SET status = $1,
			last_error = $2,
			started_at = CASE WHEN $1 = 'in_progress' THEN now() ELSE started_at END,
			finished_at = CASE WHEN $1 IN ('completed', 'failed', 'cancelled') THEN now() ELSE finished_at END,
			updated_at = now()
		WHERE task_id = $3 AND status = $4`

	tag, err := r.db.Exec(ctx, query, next, lastError, taskID, expected)
	if err != nil {
		return fmt.Errorf("ошибка обновления статуса задачи: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Либо записи нет, либо статус изменён конкурентно
		if _, getErr := r.GetByID(ctx, taskID); getErr != nil {
			return getErr
		}
		return ErrStatusMismatch
	}
	return nil
}

func (r *taskRepo) ListByStatus(ctx context.Context, status model.TaskStatus) ([]*model.FinetuneTask, error) {
	query := `SELECT ` + taskColumns + `
		FROM finetune_tasks
		WHERE status = $1
		ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки задач по статусу: %w", err)
	}
	defer rows.Close()

	return collectTasks(rows)
}

func (r *taskRepo) ListStaleInProgress(ctx context.Context, cutoff time.Time) ([]*model.FinetuneTask, error) {
	query := `SELECT ` + taskColumns + `
		FROM finetune_tasks
		WHERE status = 'in_progress' AND started_at < $1
		ORDER BY started_at`

	rows, err := r.db.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки потерянных задач: %w", err)
	}
	defer rows.Close()

	return collectTasks(rows)
}

// scanTask читает одну строку finetune_tasks.
func scanTask(row pgx.Row) (*model.FinetuneTask, error) {
	t := &model.FinetuneTask{}
	err := row.Scan(
		&t.TaskID, &t.Status, &t.ModelName, &t.CreatedBy, &t.LastError,
		&t.CreatedAt, &t.StartedAt, &t.FinishedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// collectTasks читает все строки результата.
func collectTasks(rows pgx.Rows) ([]*model.FinetuneTask, error) {
	var tasks []*model.FinetuneTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения строки задачи: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка обхода результата: %w", err)
	}
	return tasks, nil
}
