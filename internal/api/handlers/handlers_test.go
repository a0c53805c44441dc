package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/bigkaa/golazyllm/console-module/internal/cache"
	"github.com/bigkaa/golazyllm/console-module/internal/domain/model"
	"github.com/bigkaa/golazyllm/console-module/internal/queue"
	"github.com/bigkaa/golazyllm/console-module/internal/repository"
	"github.com/bigkaa/golazyllm/console-module/internal/service"
	"github.com/bigkaa/golazyllm/console-module/internal/storage/uploads"
)

// --- Фейки репозиториев ---

type memFileRepo struct {
	mu    sync.Mutex
	files map[string]*model.UploadedFile
}

func newMemFileRepo() *memFileRepo {
	return &memFileRepo{files: make(map[string]*model.UploadedFile)}
}

func (r *memFileRepo) Register(_ context.Context, f *model.UploadedFile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *f
	r.files[f.FileID] = &cp
	return nil
}

func (r *memFileRepo) GetByID(_ context.Context, fileID string) (*model.UploadedFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.files[fileID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *f
	return &cp, nil
}

type memTaskRepo struct {
	mu    sync.Mutex
	tasks map[string]*model.FinetuneTask
}

func newMemTaskRepo() *memTaskRepo {
	return &memTaskRepo{tasks: make(map[string]*model.FinetuneTask)}
}

func (r *memTaskRepo) Create(_ context.Context, task *model.FinetuneTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *task
	cp.CreatedAt = time.Now().UTC()
	r.tasks[task.TaskID] = &cp
	return nil
}

func (r *memTaskRepo) GetByID(_ context.Context, taskID string) (*model.FinetuneTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[taskID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *task
	return &cp, nil
}

func (r *memTaskRepo) CompareAndSetStatus(_ context.Context, taskID string, expected, next model.TaskStatus, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[taskID]
	if !ok {
		return repository.ErrNotFound
	}
	if task.Status != expected {
		return repository.ErrStatusMismatch
	}
	task.Status = next
	task.LastError = lastError
	return nil
}

func (r *memTaskRepo) ListByStatus(_ context.Context, status model.TaskStatus) ([]*model.FinetuneTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*model.FinetuneTask
	for _, task := range r.tasks {
		if task.Status == status {
			cp := *task
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (r *memTaskRepo) ListStaleInProgress(_ context.Context, _ time.Time) ([]*model.FinetuneTask, error) {
	return nil, nil
}

// setStatus выставляет статус напрямую, минуя CAS.
func (r *memTaskRepo) setStatus(taskID string, status model.TaskStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[taskID].Status = status
}

type noopManager struct{}

func (noopManager) Start(context.Context, string) error  { return nil }
func (noopManager) Cancel(context.Context, string) error { return nil }
func (noopManager) Status(context.Context, string) (service.RuntimeStatus, string, error) {
	return service.RuntimeRunning, "", nil
}

// --- Сборка тестового API ---

type testEnv struct {
	router   chi.Router
	taskRepo *memTaskRepo
	costRepo *memCostRepo
	rdb      *redis.Client
}

type memCostRepo struct{}

func (memCostRepo) Insert(context.Context, *model.CostRecord) error { return nil }
func (memCostRepo) AggregateDay(_ context.Context, day time.Time) (*model.DailyCostStat, error) {
	return &model.DailyCostStat{
		Day:        day.Format("2006-01-02"),
		ComputedAt: time.Now().UTC(),
	}, nil
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store, err := uploads.New(t.TempDir())
	if err != nil {
		t.Fatalf("Ошибка создания хранилища: %v", err)
	}

	taskRepo := newMemTaskRepo()
	costRepo := &memCostRepo{}

	uploadSvc := service.NewUploadService(store, newMemFileRepo(), logger)
	finetuneSvc := service.NewFinetuneService(taskRepo, noopManager{}, time.Hour, logger)
	statCache := cache.NewStatCache(rdb, 16, time.Minute, 0)
	costSvc := service.NewCostAuditService(costRepo, statCache, logger)
	queueClient := queue.NewClient(rdb, logger)

	api := NewAPIHandler(
		NewFilesHandler(uploadSvc, logger),
		NewFinetuneHandler(finetuneSvc, queueClient, logger),
		NewCostAuditHandler(costSvc, logger),
		NewHealthHandler(nil, cache.NewReadinessChecker(rdb)),
		logger,
	)

	router := chi.NewRouter()
	api.RegisterServiceRoutes(router)
	api.RegisterRoutes(router, nil)

	return &testEnv{router: router, taskRepo: taskRepo, costRepo: costRepo, rdb: rdb}
}

func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("Ошибка разбора тела ответа %q: %v", rec.Body.String(), err)
	}
}

// multipartFile собирает multipart тело с полем file.
func multipartFile(t *testing.T, fieldName, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	fw, err := mw.CreateFormFile(fieldName, filename)
	if err != nil {
		t.Fatalf("Ошибка создания multipart поля: %v", err)
	}
	if _, err := io.WriteString(fw, content); err != nil {
		t.Fatalf("Ошибка записи multipart: %v", err)
	}
	_ = mw.Close()
	return buf, mw.FormDataContentType()
}

// --- Upload ---

func TestUploadFile(t *testing.T) {
	env := newTestEnv(t)
	body, contentType := multipartFile(t, "file", "dataset.jsonl", "{\"prompt\":\"hi\"}\n")

	rec := env.do(t, http.MethodPost, "/console/api/files/upload", body, contentType)

	if rec.Code != http.StatusOK {
		t.Fatalf("Ожидался статус 200, получен %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		FilePath string `json:"file_path"`
	}
	decodeBody(t, rec, &resp)

	if !strings.HasPrefix(resp.FilePath, "workflow/") {
		t.Errorf("Путь не в каталоге workflow: %s", resp.FilePath)
	}
	if !strings.HasSuffix(resp.FilePath, ".jsonl") {
		t.Errorf("Расширение исходного файла потеряно: %s", resp.FilePath)
	}
}

func TestUploadFileDistinctPaths(t *testing.T) {
	env := newTestEnv(t)

	paths := make(map[string]bool)
	for i := 0; i < 3; i++ {
		body, contentType := multipartFile(t, "file", "same-name.txt", "данные")
		rec := env.do(t, http.MethodPost, "/console/api/files/upload", body, contentType)
		if rec.Code != http.StatusOK {
			t.Fatalf("Ожидался статус 200, получен %d", rec.Code)
		}
		var resp struct {
			FilePath string `json:"file_path"`
		}
		decodeBody(t, rec, &resp)
		if paths[resp.FilePath] {
			t.Fatalf("Повторяющийся путь при одинаковом имени файла: %s", resp.FilePath)
		}
		paths[resp.FilePath] = true
	}
}

func TestUploadFileMissingField(t *testing.T) {
	env := newTestEnv(t)
	// Поле называется не "file"
	body, contentType := multipartFile(t, "attachment", "x.txt", "данные")

	rec := env.do(t, http.MethodPost, "/console/api/files/upload", body, contentType)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Ожидался статус 400, получен %d", rec.Code)
	}

	var resp struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Status  int    `json:"status"`
	}
	decodeBody(t, rec, &resp)

	if resp.Code != "normal_error" {
		t.Errorf("Ожидался код normal_error, получен %q", resp.Code)
	}
	if resp.Status != http.StatusBadRequest {
		t.Errorf("Статус в теле не совпадает с HTTP-статусом: %d", resp.Status)
	}
}

// --- Fine-tune задачи ---

func TestCreateAndGetTask(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/console/api/finetune/tasks/",
		strings.NewReader(`{"model_name":"llama-7b"}`), "application/json")
	if rec.Code != http.StatusCreated {
		t.Fatalf("Ожидался статус 201, получен %d: %s", rec.Code, rec.Body.String())
	}

	var created struct {
		TaskID string `json:"task_id"`
		Status string `json:"status"`
	}
	decodeBody(t, rec, &created)
	if created.Status != "pending" {
		t.Errorf("Новая задача не в pending: %s", created.Status)
	}

	rec = env.do(t, http.MethodGet, "/console/api/finetune/tasks/"+created.TaskID, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Ожидался статус 200, получен %d", rec.Code)
	}
}

func TestCreateTaskWithoutModelName(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/console/api/finetune/tasks/",
		strings.NewReader(`{}`), "application/json")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Ожидался статус 400, получен %d", rec.Code)
	}
}

func TestGetUnknownTask(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/console/api/finetune/tasks/2b1f8c9a-0000-0000-0000-000000000000", nil, "")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("Ожидался статус 404, получен %d", rec.Code)
	}

	var resp struct {
		Code string `json:"code"`
	}
	decodeBody(t, rec, &resp)
	if resp.Code != "not_found" {
		t.Errorf("Ожидался код not_found, получен %q", resp.Code)
	}
}

func TestStartTaskEnqueuesJob(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rec := env.do(t, http.MethodPost, "/console/api/finetune/tasks/",
		strings.NewReader(`{"model_name":"llama-7b"}`), "application/json")
	var created struct {
		TaskID string `json:"task_id"`
	}
	decodeBody(t, rec, &created)

	rec = env.do(t, http.MethodPost, "/console/api/finetune/tasks/"+created.TaskID+"/start", nil, "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("Ожидался статус 202, получен %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		TaskID string `json:"task_id"`
		JobID  string `json:"job_id"`
	}
	decodeBody(t, rec, &resp)
	if resp.JobID == "" {
		t.Error("Ответ не содержит job_id")
	}

	// Job должен лежать в pending-очереди
	pending, err := env.rdb.LLen(ctx, "cm:queue:pending").Result()
	if err != nil {
		t.Fatalf("Ошибка чтения очереди: %v", err)
	}
	if pending != 1 {
		t.Errorf("Ожидался 1 job в очереди, найдено %d", pending)
	}
}

func TestStartTerminalTaskRejected(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/console/api/finetune/tasks/",
		strings.NewReader(`{"model_name":"llama-7b"}`), "application/json")
	var created struct {
		TaskID string `json:"task_id"`
	}
	decodeBody(t, rec, &created)

	env.taskRepo.setStatus(created.TaskID, model.TaskCompleted)

	rec = env.do(t, http.MethodPost, "/console/api/finetune/tasks/"+created.TaskID+"/start", nil, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Ожидался статус 400 для завершённой задачи, получен %d", rec.Code)
	}
}

func TestCancelTaskEnqueuesJob(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/console/api/finetune/tasks/",
		strings.NewReader(`{"model_name":"llama-7b"}`), "application/json")
	var created struct {
		TaskID string `json:"task_id"`
	}
	decodeBody(t, rec, &created)

	rec = env.do(t, http.MethodPost, "/console/api/finetune/tasks/"+created.TaskID+"/cancel", nil, "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("Ожидался статус 202, получен %d", rec.Code)
	}
}

// --- Статистика расходов ---

func TestGetDailyStat(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/console/api/cost-audit/stats/daily/2026-08-30", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Ожидался статус 200, получен %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Day string `json:"day"`
	}
	decodeBody(t, rec, &resp)
	if resp.Day != "2026-08-30" {
		t.Errorf("Неверный период в ответе: %s", resp.Day)
	}
}

func TestGetDailyStatMalformedDate(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/console/api/cost-audit/stats/daily/not-a-date", nil, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Ожидался статус 400, получен %d", rec.Code)
	}
}

// --- Служебные endpoints ---

func TestHealthLive(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health/live", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Ожидался статус 200, получен %d", rec.Code)
	}

	var resp struct {
		Status  string `json:"status"`
		Service string `json:"service"`
	}
	decodeBody(t, rec, &resp)
	if resp.Status != "ok" || resp.Service != "console-module" {
		t.Errorf("Неверный ответ liveness: %+v", resp)
	}
}

func TestHealthReadyFailsWithoutPostgres(t *testing.T) {
	env := newTestEnv(t)

	// PostgreSQL checker не задан — readiness должен отвечать 503
	rec := env.do(t, http.MethodGet, "/health/ready", nil, "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("Ожидался статус 503, получен %d", rec.Code)
	}
}
