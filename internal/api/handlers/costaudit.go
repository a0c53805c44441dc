// costaudit.go — HTTP handler чтения дневной статистики стоимости.
package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/golazyllm/console-module/internal/api/errors"
	"github.com/bigkaa/golazyllm/console-module/internal/service"
)

// CostAuditHandler — обработчик endpoints статистики стоимости.
type CostAuditHandler struct {
	costSvc *service.CostAuditService
	logger  *slog.Logger
}

// NewCostAuditHandler создаёт обработчик статистики стоимости.
func NewCostAuditHandler(costSvc *service.CostAuditService, logger *slog.Logger) *CostAuditHandler {
	return &CostAuditHandler{
		costSvc: costSvc,
		logger:  logger.With(slog.String("component", "costaudit_handler")),
	}
}

// GetDailyStat обрабатывает GET /console/api/cost-audit/stats/daily/{date}.
// date — день в формате YYYY-MM-DD.
func (h *CostAuditHandler) GetDailyStat(w http.ResponseWriter, r *http.Request) {
	day := chi.URLParam(r, "date")

	if _, err := time.ParseInLocation("2006-01-02", day, time.UTC); err != nil {
		apierrors.WriteError(w, apierrors.NormalError("Некорректная дата, ожидается YYYY-MM-DD: "+day))
		return
	}

	stat, err := h.costSvc.GetDaily(r.Context(), day)
	if err != nil {
		h.logger.Error("Ошибка получения дневной статистики",
			slog.String("day", day),
			slog.String("error", err.Error()),
		)
		apierrors.WriteError(w, apierrors.InternalError("Не удалось получить статистику"))
		return
	}

	writeJSON(w, http.StatusOK, stat)
}
