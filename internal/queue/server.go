package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

// Prometheus метрики очереди.
var (
	jobsEnqueuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cm_jobs_enqueued_total",
		Help: "Общее количество поставленных в очередь фоновых задач",
	}, []string{"name"})

	jobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cm_jobs_processed_total",
		Help: "Общее количество обработанных фоновых задач",
	}, []string{"name", "result"})

	jobDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cm_job_duration_seconds",
		Help:    "Длительность обработки фоновых задач в секундах",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 30, 60, 300, 1800},
	}, []string{"name"})

	jobsReclaimedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cm_jobs_reclaimed_total",
		Help: "Количество задач, возвращённых в очередь после просроченной аренды",
	})
)

// dequeueOneScript атомарно переносит один элемент из pending в active
// со score = дедлайн аренды. Изъятие и аренда обязаны быть одной
// операцией: воркер, упавший между отдельными RPOP и ZADD, оставил бы
// задачу вне обоих ключей — и reclaim её бы не нашёл.
var dequeueOneScript = redis.NewScript(`
local v = redis.call('RPOP', KEYS[1])
if not v then return false end
redis.call('ZADD', KEYS[2], ARGV[1], v)
return v
`)

// reclaimOneScript атомарно возвращает один просроченный элемент
// active обратно в pending.
var reclaimOneScript = redis.NewScript(`
local akey = KEYS[1]
local pkey = KEYS[2]
local now  = ARGV[1]
local items = redis.call('ZRANGEBYSCORE', akey, '-inf', now, 'LIMIT', 0, 1)
if #items == 0 then return false end
local m = items[1]
local rem = redis.call('ZREM', akey, m)
if rem == 1 then
  redis.call('LPUSH', pkey, m)
  return m
end
return false
`)

// Handler — обработчик фоновой задачи.
// Ошибка обработчика не всплывает к поставившему задачу:
// она логируется, задача перемещается в dead.
type Handler func(ctx context.Context, payload []byte) error

// ServerConfig — конфигурация сервера очереди.
type ServerConfig struct {
	// Concurrency — количество воркеров
	Concurrency int
	// VisibilityTTL — аренда задачи воркером; по истечении задача
	// возвращается в pending (воркер считается упавшим)
	VisibilityTTL time.Duration
}

// Server — воркеры очереди фоновых задач.
type Server struct {
	rdb      redis.UniversalClient
	cfg      ServerConfig
	handlers map[string]Handler
	logger   *slog.Logger

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewServer создаёт сервер очереди.
func NewServer(rdb redis.UniversalClient, cfg ServerConfig, logger *slog.Logger) *Server {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.VisibilityTTL <= 0 {
		cfg.VisibilityTTL = 30 * time.Minute
	}
	return &Server{
		rdb:      rdb,
		cfg:      cfg,
		handlers: make(map[string]Handler),
		logger:   logger.With(slog.String("component", "queue_server")),
	}
}

// Handle регистрирует обработчик для имени задачи.
// Вызывать до Start.
func (s *Server) Handle(name string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[name] = h
}

// Start запускает воркеры и reclaim-цикл. Идемпотентен.
func (s *Server) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		s.logger.Warn("Сервер очереди уже запущен, повторный Start игнорируется")
		return
	}
	s.started = true
	srvCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	for i := 0; i < s.cfg.Concurrency; i++ {
		s.wg.Add(1)
		go s.worker(srvCtx)
	}

	s.wg.Add(1)
	go s.reclaimLoop(srvCtx)

	s.logger.Info("Сервер очереди запущен",
		slog.Int("concurrency", s.cfg.Concurrency),
		slog.String("visibility_ttl", s.cfg.VisibilityTTL.String()),
	)
}

// Stop останавливает воркеры и дожидается завершения текущих задач.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.logger.Info("Сервер очереди остановлен")
}

// pollInterval — пауза воркера при пустой очереди.
const pollInterval = 200 * time.Millisecond

// worker — цикл одного воркера: атомарная аренда pending → active → обработчик.
// Необработанная задача всегда находится ровно в одном из ключей очереди.
func (s *Server) worker(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		encoded, err := s.dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Error("Ошибка чтения из очереди", slog.String("error", err.Error()))
			// Пауза перед повтором, чтобы не крутить цикл при недоступном Redis
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if encoded == "" {
			// Очередь пуста
			select {
			case <-ctx.Done():
				return
			case <-time.After(pollInterval):
			}
			continue
		}

		s.process(ctx, encoded)
	}
}

// dequeue арендует одну задачу: элемент перемещается из pending в active
// с дедлайном now+VisibilityTTL одним скриптом. Пустая строка без ошибки —
// очередь пуста. Обрабатывать задачу без записанной аренды нельзя.
func (s *Server) dequeue(ctx context.Context) (string, error) {
	deadline := time.Now().Add(s.cfg.VisibilityTTL).UnixMilli()

	res, err := dequeueOneScript.Run(ctx, s.rdb, []string{keyPending, keyActive}, deadline).Result()
	if err != nil {
		if err == redis.Nil {
			return "", nil
		}
		return "", err
	}

	encoded, ok := res.(string)
	if !ok {
		return "", fmt.Errorf("неожиданный тип результата аренды: %T", res)
	}
	return encoded, nil
}

// process разбирает конверт, вызывает обработчик и снимает аренду.
func (s *Server) process(ctx context.Context, encoded string) {
	var job Job
	if err := json.Unmarshal([]byte(encoded), &job); err != nil {
		s.logger.Error("Некорректный конверт задачи, перемещение в dead",
			slog.String("error", err.Error()),
		)
		s.moveToDead(ctx, encoded)
		return
	}

	s.mu.Lock()
	handler, ok := s.handlers[job.Name]
	s.mu.Unlock()

	if !ok {
		s.logger.Error("Нет обработчика для задачи, перемещение в dead",
			slog.String("job_id", job.ID),
			slog.String("name", job.Name),
		)
		jobsProcessedTotal.WithLabelValues(job.Name, "no_handler").Inc()
		s.moveToDead(ctx, encoded)
		return
	}

	start := time.Now()
	err := handler(ctx, job.Payload)
	duration := time.Since(start)
	jobDurationSeconds.WithLabelValues(job.Name).Observe(duration.Seconds())

	if err != nil {
		// Ошибка задачи не всплывает наружу: лог + dead + метрика
		s.logger.Error("Задача завершилась ошибкой",
			slog.String("job_id", job.ID),
			slog.String("name", job.Name),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()),
		)
		jobsProcessedTotal.WithLabelValues(job.Name, "error").Inc()
		s.moveToDead(ctx, encoded)
		return
	}

	jobsProcessedTotal.WithLabelValues(job.Name, "success").Inc()
	s.logger.Info("Задача обработана",
		slog.String("job_id", job.ID),
		slog.String("name", job.Name),
		slog.Duration("duration", duration),
	)

	if err := s.rdb.ZRem(ctx, keyActive, encoded).Err(); err != nil && ctx.Err() == nil {
		s.logger.Error("Ошибка снятия аренды", slog.String("error", err.Error()))
	}
}

// moveToDead снимает аренду и кладёт элемент в dead.
func (s *Server) moveToDead(ctx context.Context, encoded string) {
	pipe := s.rdb.TxPipeline()
	pipe.ZRem(ctx, keyActive, encoded)
	pipe.LPush(ctx, keyDead, encoded)
	if _, err := pipe.Exec(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("Ошибка перемещения задачи в dead", slog.String("error", err.Error()))
	}
}

// reclaimLoop периодически возвращает просроченные аренды в pending.
func (s *Server) reclaimLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.reclaimExpired(ctx)
		}
	}
}

// reclaimExpired возвращает все просроченные элементы active в pending.
func (s *Server) reclaimExpired(ctx context.Context) {
	now := time.Now().UnixMilli()
	for {
		_, err := reclaimOneScript.Run(ctx, s.rdb, []string{keyActive, keyPending}, now).Result()
		if err != nil {
			// redis.Nil — просроченных аренд больше нет
			if err != redis.Nil && ctx.Err() == nil {
				s.logger.Error("Ошибка reclaim", slog.String("error", err.Error()))
			}
			return
		}
		jobsReclaimedTotal.Inc()
		s.logger.Warn("Просроченная аренда возвращена в очередь")
	}
}
