// finetune.go — HTTP handlers жизненного цикла fine-tune задач.
// Создание задачи, постановка start/cancel в очередь, чтение состояния.
// Start и cancel выполняются асинхронно: endpoint лишь кладёт job
// в очередь и отвечает 202.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/golazyllm/console-module/internal/api/errors"
	"github.com/bigkaa/golazyllm/console-module/internal/api/middleware"
	"github.com/bigkaa/golazyllm/console-module/internal/domain/model"
	"github.com/bigkaa/golazyllm/console-module/internal/queue"
	"github.com/bigkaa/golazyllm/console-module/internal/repository"
	"github.com/bigkaa/golazyllm/console-module/internal/serialize"
	"github.com/bigkaa/golazyllm/console-module/internal/service"
)

// FinetuneHandler — обработчик endpoints fine-tune задач.
type FinetuneHandler struct {
	finetuneSvc *service.FinetuneService
	queueClient *queue.Client
	logger      *slog.Logger
}

// NewFinetuneHandler создаёт обработчик fine-tune endpoints.
func NewFinetuneHandler(finetuneSvc *service.FinetuneService, queueClient *queue.Client, logger *slog.Logger) *FinetuneHandler {
	return &FinetuneHandler{
		finetuneSvc: finetuneSvc,
		queueClient: queueClient,
		logger:      logger.With(slog.String("component", "finetune_handler")),
	}
}

// createTaskRequest — тело POST /console/api/finetune/tasks.
type createTaskRequest struct {
	ModelName string `json:"model_name"`
}

// taskResponse — представление задачи в ответах API.
type taskResponse struct {
	TaskID     string `json:"task_id"`
	Status     string `json:"status"`
	ModelName  string `json:"model_name"`
	CreatedBy  string `json:"created_by"`
	LastError  string `json:"last_error,omitempty"`
	CreatedAt  any    `json:"created_at"`
	StartedAt  any    `json:"started_at,omitempty"`
	FinishedAt any    `json:"finished_at,omitempty"`
}

func taskToResponse(task *model.FinetuneTask) taskResponse {
	resp := taskResponse{
		TaskID:    task.TaskID,
		Status:    string(task.Status),
		ModelName: task.ModelName,
		CreatedBy: task.CreatedBy,
		LastError: task.LastError,
		CreatedAt: serialize.FormatDatetime(task.CreatedAt),
	}
	if task.StartedAt != nil {
		resp.StartedAt = serialize.FormatDatetime(*task.StartedAt)
	}
	if task.FinishedAt != nil {
		resp.FinishedAt = serialize.FormatDatetime(*task.FinishedAt)
	}
	return resp
}

// enqueuedResponse — ответ на асинхронные операции start/cancel.
type enqueuedResponse struct {
	TaskID string `json:"task_id"`
	JobID  string `json:"job_id"`
}

// CreateTask обрабатывает POST /console/api/finetune/tasks.
// Создаёт задачу в статусе pending.
func (h *FinetuneHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.WriteError(w, apierrors.NormalError("Некорректное тело запроса: "+err.Error()))
		return
	}

	if strings.TrimSpace(req.ModelName) == "" {
		apierrors.WriteError(w, apierrors.NormalError("Поле 'model_name' обязательно"))
		return
	}

	createdBy := middleware.SubjectFromContext(r.Context())

	task, err := h.finetuneSvc.CreateTask(r.Context(), req.ModelName, createdBy)
	if err != nil {
		h.logger.Error("Ошибка создания задачи", slog.String("error", err.Error()))
		apierrors.WriteError(w, apierrors.InternalError("Не удалось создать задачу"))
		return
	}

	writeJSON(w, http.StatusCreated, taskToResponse(task))
}

// GetTask обрабатывает GET /console/api/finetune/tasks/{taskID}.
func (h *FinetuneHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	task, err := h.finetuneSvc.GetTask(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			apierrors.WriteError(w, apierrors.NotFound("Задача не найдена: "+taskID))
			return
		}
		h.logger.Error("Ошибка чтения задачи",
			slog.String("task_id", taskID),
			slog.String("error", err.Error()),
		)
		apierrors.WriteError(w, apierrors.InternalError("Не удалось получить задачу"))
		return
	}

	writeJSON(w, http.StatusOK, taskToResponse(task))
}

// StartTask обрабатывает POST /console/api/finetune/tasks/{taskID}/start.
// Кладёт job add_task в очередь; фактический запуск выполняет воркер.
func (h *FinetuneHandler) StartTask(w http.ResponseWriter, r *http.Request) {
	h.enqueueLifecycle(w, r, queue.JobAddTask)
}

// CancelTask обрабатывает POST /console/api/finetune/tasks/{taskID}/cancel.
// Кладёт job cancel_task в очередь; фактическая остановка выполняется воркером.
func (h *FinetuneHandler) CancelTask(w http.ResponseWriter, r *http.Request) {
	h.enqueueLifecycle(w, r, queue.JobCancelTask)
}

// enqueueLifecycle проверяет существование задачи и ставит lifecycle job в очередь.
func (h *FinetuneHandler) enqueueLifecycle(w http.ResponseWriter, r *http.Request, jobName string) {
	taskID := chi.URLParam(r, "taskID")

	task, err := h.finetuneSvc.GetTask(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			apierrors.WriteError(w, apierrors.NotFound("Задача не найдена: "+taskID))
			return
		}
		h.logger.Error("Ошибка чтения задачи",
			slog.String("task_id", taskID),
			slog.String("error", err.Error()),
		)
		apierrors.WriteError(w, apierrors.InternalError("Не удалось получить задачу"))
		return
	}

	if task.Status.Terminal() {
		apierrors.WriteError(w, apierrors.NormalError("Задача уже завершена: "+string(task.Status)))
		return
	}

	jobID, err := h.queueClient.Enqueue(r.Context(), jobName, queue.TaskPayload{TaskID: taskID})
	if err != nil {
		h.logger.Error("Ошибка постановки job в очередь",
			slog.String("task_id", taskID),
			slog.String("job", jobName),
			slog.String("error", err.Error()),
		)
		apierrors.WriteError(w, apierrors.InternalError("Не удалось поставить операцию в очередь"))
		return
	}

	writeJSON(w, http.StatusAccepted, enqueuedResponse{TaskID: taskID, JobID: jobID})
}
