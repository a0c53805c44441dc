// Пакет runtimeclient — HTTP-клиент runtime-сервиса исполнения
// fine-tune задач. Реализует service.TaskManager.
//
// Формат API runtime:
//   POST   {base}/api/v1/tasks/{id}/start
//   POST   {base}/api/v1/tasks/{id}/cancel
//   GET    {base}/api/v1/tasks/{id}  →  {"status": "...", "error": "..."}
package runtimeclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bigkaa/golazyllm/console-module/internal/service"
)

// Client — HTTP-клиент fine-tune runtime.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// New создаёт клиента runtime.
// baseURL — базовый URL runtime-сервиса, timeout — таймаут HTTP-запросов.
func New(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
			},
		},
		logger: logger.With(slog.String("component", "runtime_client")),
	}
}

// Start передаёт задачу на исполнение runtime.
func (c *Client) Start(ctx context.Context, taskID string) error {
	return c.post(ctx, fmt.Sprintf("%s/api/v1/tasks/%s/start", c.baseURL, taskID))
}

// Cancel запрашивает остановку задачи. Best-effort: runtime может
// остановить исполнение позже, фактический исход наблюдает сверка.
func (c *Client) Cancel(ctx context.Context, taskID string) error {
	return c.post(ctx, fmt.Sprintf("%s/api/v1/tasks/%s/cancel", c.baseURL, taskID))
}

// statusResponse — тело ответа GET /api/v1/tasks/{id}.
type statusResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Status возвращает состояние исполнения задачи.
// 404 от runtime трактуется как RuntimeUnknown, не как ошибка запроса.
func (c *Client) Status(ctx context.Context, taskID string) (service.RuntimeStatus, string, error) {
	reqURL := fmt.Sprintf("%s/api/v1/tasks/%s", c.baseURL, taskID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return service.RuntimeUnknown, "", fmt.Errorf("создание запроса Status: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return service.RuntimeUnknown, "", fmt.Errorf("запрос Status к runtime: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return service.RuntimeUnknown, "", nil
	}
	if resp.StatusCode != http.StatusOK {
		return service.RuntimeUnknown, "", fmt.Errorf("runtime вернул статус %d", resp.StatusCode)
	}

	var body statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return service.RuntimeUnknown, "", fmt.Errorf("разбор ответа runtime: %w", err)
	}

	switch body.Status {
	case "running":
		return service.RuntimeRunning, "", nil
	case "succeeded":
		return service.RuntimeSucceeded, "", nil
	case "failed":
		return service.RuntimeFailed, body.Error, nil
	default:
		c.logger.Warn("Неизвестный статус от runtime",
			slog.String("task_id", taskID),
			slog.String("status", body.Status),
		)
		return service.RuntimeUnknown, "", nil
	}
}

// post выполняет POST без тела и проверяет 2xx.
func (c *Client) post(ctx context.Context, reqURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("создание запроса: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("запрос к runtime: %w", err)
	}
	defer resp.Body.Close()
	// Тело нужно дочитать для переиспользования соединения
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("runtime вернул статус %d", resp.StatusCode)
	}
	return nil
}

// Проверка реализации интерфейса на этапе компиляции
var _ service.TaskManager = (*Client)(nil)
