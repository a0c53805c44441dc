// scheduler.go — периодическая постановка фоновых задач в очередь.
//
// Планировщик не исполняет работу сам: при запуске и далее по тикеру
// он ставит задачи check_status и daily_cost_audit_stat в очередь,
// а исполняют их воркеры — возможно, в другом процессе. Повторная
// постановка безопасна: обе задачи идемпотентны.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/bigkaa/golazyllm/console-module/internal/queue"
)

// Scheduler — периодическая постановка фоновых задач.
type Scheduler struct {
	client       *queue.Client
	statInterval time.Duration
	// checkInterval — период постановки check_status
	checkInterval time.Duration
	logger        *slog.Logger
	cancel        context.CancelFunc
}

// NewScheduler создаёт планировщик.
func NewScheduler(client *queue.Client, statInterval, checkInterval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		client:        client,
		statInterval:  statInterval,
		checkInterval: checkInterval,
		logger:        logger.With(slog.String("component", "scheduler")),
	}
}

// Start запускает фоновые тикеры планировщика.
func (s *Scheduler) Start(ctx context.Context) {
	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	go s.run(schedCtx, s.checkInterval, queue.JobCheckStatus)
	go s.run(schedCtx, s.statInterval, queue.JobDailyCostAuditStat)

	s.logger.Info("Планировщик запущен",
		slog.String("stat_interval", s.statInterval.String()),
		slog.String("check_interval", s.checkInterval.String()),
	)
}

// Stop останавливает тикеры.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.logger.Info("Планировщик остановлен")
}

// run — цикл одного тикера: ставит задачу name сразу при запуске и далее
// каждые interval. Без немедленной постановки процесс, перезапускаемый
// чаще interval, никогда не дождался бы первого тика; идемпотентность
// задач делает постановку при каждом старте безопасной.
func (s *Scheduler) run(ctx context.Context, interval time.Duration, name string) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.enqueue(ctx, name)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.enqueue(ctx, name)
		}
	}
}

func (s *Scheduler) enqueue(ctx context.Context, name string) {
	if _, err := s.client.Enqueue(ctx, name, nil); err != nil {
		s.logger.Error("Ошибка постановки периодической задачи",
			slog.String("name", name),
			slog.String("error", err.Error()),
		)
	}
}
