// costaudit.go — расчёт агрегатов расходов (cost audit).
//
// Периодическая задача daily_cost_audit_stat считает статистику
// за предыдущий календарный день и кладёт её в кэш по ключу периода.
// Повторный запуск за тот же день идемпотентен: агрегат
// перезаписывается, а не накапливается.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/golazyllm/console-module/internal/cache"
	"github.com/bigkaa/golazyllm/console-module/internal/domain/model"
	"github.com/bigkaa/golazyllm/console-module/internal/repository"
)

// Prometheus метрики cost audit.
var (
	statRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cm_stat_runs_total",
		Help: "Количество запусков расчёта статистики расходов",
	}, []string{"result"})
	statDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cm_stat_duration_seconds",
		Help:    "Длительность расчёта статистики расходов в секундах",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
	})
)

// CostAuditService — расчёт и чтение статистики расходов.
type CostAuditService struct {
	costs  repository.CostRepository
	cache  *cache.StatCache
	logger *slog.Logger
}

// NewCostAuditService создаёт сервис cost audit.
func NewCostAuditService(costs repository.CostRepository, statCache *cache.StatCache, logger *slog.Logger) *CostAuditService {
	return &CostAuditService{
		costs:  costs,
		cache:  statCache,
		logger: logger.With(slog.String("component", "cost_audit_service")),
	}
}

// RunDaily считает агрегат за календарный день day и записывает его в кэш.
func (s *CostAuditService) RunDaily(ctx context.Context, day time.Time) (*model.DailyCostStat, error) {
	start := time.Now()

	stat, err := s.costs.AggregateDay(ctx, day)
	if err != nil {
		statRunsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("агрегация расходов за %s: %w", day.Format("2006-01-02"), err)
	}

	if err := s.cache.SetDaily(ctx, stat); err != nil {
		statRunsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("запись агрегата за %s в кэш: %w", stat.Day, err)
	}

	duration := time.Since(start)
	statRunsTotal.WithLabelValues("success").Inc()
	statDurationSeconds.Observe(duration.Seconds())

	s.logger.Info("Статистика расходов рассчитана",
		slog.String("day", stat.Day),
		slog.Float64("total_amount", stat.TotalAmount),
		slog.Int64("total_calls", stat.TotalCalls),
		slog.Int("accounts", len(stat.Accounts)),
		slog.Duration("duration", duration),
	)
	return stat, nil
}

// RunForPreviousDay считает агрегат за предыдущий календарный день (UTC).
// Обработчик задачи daily_cost_audit_stat.
func (s *CostAuditService) RunForPreviousDay(ctx context.Context) error {
	yesterday := time.Now().UTC().AddDate(0, 0, -1)
	_, err := s.RunDaily(ctx, yesterday)
	return err
}

// GetDaily возвращает агрегат дня: из кэша, при промахе — пересчёт.
// day — строка формата YYYY-MM-DD.
func (s *CostAuditService) GetDaily(ctx context.Context, day string) (*model.DailyCostStat, error) {
	stat, err := s.cache.GetDaily(ctx, day)
	if err == nil {
		return stat, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		return nil, err
	}

	parsed, parseErr := time.ParseInLocation("2006-01-02", day, time.UTC)
	if parseErr != nil {
		return nil, fmt.Errorf("некорректный день %q: %w", day, parseErr)
	}

	s.logger.Debug("Промах кэша статистики, пересчёт", slog.String("day", day))
	return s.RunDaily(ctx, parsed)
}
