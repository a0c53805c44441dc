package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Client — постановка фоновых задач в очередь.
// Безопасен для конкурентного использования.
type Client struct {
	rdb    redis.UniversalClient
	logger *slog.Logger
}

// NewClient создаёт клиента очереди.
func NewClient(rdb redis.UniversalClient, logger *slog.Logger) *Client {
	return &Client{
		rdb:    rdb,
		logger: logger.With(slog.String("component", "queue_client")),
	}
}

// Enqueue ставит задачу в очередь и возвращает её идентификатор.
// Ошибка постановки видна только вызывающему коду: воркеры
// о несостоявшейся задаче не узнают.
func (c *Client) Enqueue(ctx context.Context, name string, payload any) (string, error) {
	job, encoded, err := newJob(name, payload)
	if err != nil {
		return "", err
	}

	if err := c.rdb.LPush(ctx, keyPending, encoded).Err(); err != nil {
		return "", fmt.Errorf("ошибка постановки задачи %s в очередь: %w", name, err)
	}

	jobsEnqueuedTotal.WithLabelValues(name).Inc()

	c.logger.Debug("Задача поставлена в очередь",
		slog.String("job_id", job.ID),
		slog.String("name", name),
	)
	return job.ID, nil
}

// EnqueueAddTask ставит задачу запуска fine-tune.
func (c *Client) EnqueueAddTask(ctx context.Context, taskID string) (string, error) {
	return c.Enqueue(ctx, JobAddTask, TaskPayload{TaskID: taskID})
}

// EnqueueCancelTask ставит задачу отмены fine-tune.
func (c *Client) EnqueueCancelTask(ctx context.Context, taskID string) (string, error) {
	return c.Enqueue(ctx, JobCancelTask, TaskPayload{TaskID: taskID})
}
