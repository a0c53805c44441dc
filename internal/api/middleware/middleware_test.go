package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

// TestNormalizePath: динамические сегменты сворачиваются в плейсхолдеры,
// статические пути не меняются. Формат идентификатора не важен —
// нормализация режет по следующему "/".
func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/health/live", "/health/live"},
		{"/health/ready", "/health/ready"},
		{"/metrics", "/metrics"},
		{"/console/api/files/upload", "/console/api/files/upload"},
		{"/console/api/finetune/tasks", "/console/api/finetune/tasks"},
		{"/console/api/finetune/tasks/3e9c2f07-5a41-4c8e-9d14-8b2f6c1a0d55", "/console/api/finetune/tasks/{id}"},
		{"/console/api/finetune/tasks/3e9c2f07-5a41-4c8e-9d14-8b2f6c1a0d55/start", "/console/api/finetune/tasks/{id}/start"},
		{"/console/api/finetune/tasks/3e9c2f07-5a41-4c8e-9d14-8b2f6c1a0d55/cancel", "/console/api/finetune/tasks/{id}/cancel"},
		// Идентификаторы произвольной длины
		{"/console/api/finetune/tasks/42", "/console/api/finetune/tasks/{id}"},
		{"/console/api/finetune/tasks/42/start", "/console/api/finetune/tasks/{id}/start"},
		{"/console/api/finetune/tasks/42/cancel", "/console/api/finetune/tasks/{id}/cancel"},
		{"/console/api/finetune/tasks/ft-job-2026-08-31/start", "/console/api/finetune/tasks/{id}/start"},
		{"/console/api/finetune/tasks/42/unknown", "/console/api/finetune/tasks/{id}"},
		{"/console/api/cost-audit/stats/daily/2026-08-30", "/console/api/cost-audit/stats/daily/{date}"},
	}
	for _, tt := range tests {
		if got := normalizePath(tt.path); got != tt.want {
			t.Errorf("normalizePath(%q) = %q, ожидалось %q", tt.path, got, tt.want)
		}
	}
}

// TestRequestLevel: уровень записи соответствует классу статус-кода.
func TestRequestLevel(t *testing.T) {
	tests := []struct {
		status int
		want   slog.Level
	}{
		{http.StatusOK, slog.LevelInfo},
		{http.StatusNoContent, slog.LevelInfo},
		{http.StatusNotFound, slog.LevelWarn},
		{http.StatusUnprocessableEntity, slog.LevelWarn},
		{http.StatusInternalServerError, slog.LevelError},
		{http.StatusServiceUnavailable, slog.LevelError},
	}
	for _, tt := range tests {
		if got := requestLevel(tt.status); got != tt.want {
			t.Errorf("requestLevel(%d) = %v, ожидалось %v", tt.status, got, tt.want)
		}
	}
}

// TestRequestLogger: одна запись на запрос с фактическим статусом,
// размером ответа и уровнем по классу статус-кода.
func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("кипит"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/console/api/finetune/tasks", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var entry struct {
		Level  string `json:"level"`
		Msg    string `json:"msg"`
		Method string `json:"method"`
		Path   string `json:"path"`
		Status int    `json:"status"`
		Bytes  int64  `json:"bytes"`
	}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("не удалось разобрать запись лога: %v", err)
	}
	if entry.Msg != "Запрос обработан" {
		t.Errorf("сообщение: %q", entry.Msg)
	}
	if entry.Level != "WARN" {
		t.Errorf("уровень для 418: %q, ожидался WARN", entry.Level)
	}
	if entry.Method != http.MethodGet || entry.Path != "/console/api/finetune/tasks" {
		t.Errorf("метод/путь: %s %s", entry.Method, entry.Path)
	}
	if entry.Status != http.StatusTeapot {
		t.Errorf("статус: %d, ожидался 418", entry.Status)
	}
	if entry.Bytes != int64(len("кипит")) {
		t.Errorf("размер ответа: %d", entry.Bytes)
	}
}
