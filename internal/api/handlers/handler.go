// handler.go — регистрация маршрутов HTTP API Console Module.
// Бизнес-endpoints живут под префиксом /console/api, служебные
// (health, metrics) — в корне.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// APIHandler — основной обработчик API Console Module.
// Объединяет файловые, fine-tune и статистические endpoints.
type APIHandler struct {
	files    *FilesHandler
	finetune *FinetuneHandler
	costs    *CostAuditHandler
	health   *HealthHandler
	logger   *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	files *FilesHandler,
	finetune *FinetuneHandler,
	costs *CostAuditHandler,
	health *HealthHandler,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		files:    files,
		finetune: finetune,
		costs:    costs,
		health:   health,
		logger:   logger.With(slog.String("component", "api_handler")),
	}
}

// RegisterRoutes регистрирует бизнес-маршруты под префиксом /console/api.
// authMiddleware может быть nil — тогда маршруты открыты.
func (h *APIHandler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	r.Route("/console/api", func(api chi.Router) {
		if authMiddleware != nil {
			api.Use(authMiddleware)
		}

		api.Post("/files/upload", h.files.UploadFile)

		api.Route("/finetune/tasks", func(tasks chi.Router) {
			tasks.Post("/", h.finetune.CreateTask)
			tasks.Get("/{taskID}", h.finetune.GetTask)
			tasks.Post("/{taskID}/start", h.finetune.StartTask)
			tasks.Post("/{taskID}/cancel", h.finetune.CancelTask)
		})

		api.Get("/cost-audit/stats/daily/{date}", h.costs.GetDailyStat)
	})
}

// RegisterServiceRoutes регистрирует служебные маршруты (без аутентификации).
func (h *APIHandler) RegisterServiceRoutes(r chi.Router) {
	r.Get("/health/live", h.health.HealthLive)
	r.Get("/health/ready", h.health.HealthReady)
	r.Get("/metrics", h.health.GetMetrics)
}

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
