// Пакет cache — кэш агрегатов статистики расходов.
// Двухуровневый: in-process LRU с TTL (hashicorp/golang-lru, горячие чтения)
// поверх Redis (разделяемый между процессами, переживает рестарт).
// Запись — идемпотентный SET: повторный расчёт того же периода
// перезаписывает значение целиком.
package cache

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"github.com/bigkaa/golazyllm/console-module/internal/config"
	"github.com/bigkaa/golazyllm/console-module/internal/domain/model"
)

// ErrMiss — значение отсутствует в обоих уровнях кэша.
var ErrMiss = errors.New("значение отсутствует в кэше")

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cm_stat_cache_hits_total",
		Help: "Попадания в кэш статистики по уровням (lru, redis)",
	}, []string{"layer"})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cm_stat_cache_misses_total",
		Help: "Промахи кэша статистики (оба уровня)",
	})
)

// NewRedisClient создаёт клиента Redis из настроек конфигурации.
// Соединение создаётся один раз при старте и передаётся зависимостям
// явно — глобального мутируемого клиента нет.
func NewRedisClient(cfg config.RedisSettings) *redis.Client {
	opts := &redis.Options{
		Addr:     cfg.Addr(),
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.UseSSL {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return redis.NewClient(opts)
}

// ReadinessChecker — проверка доступности Redis для readiness probe.
type ReadinessChecker struct {
	rdb redis.UniversalClient
}

// NewReadinessChecker создаёт проверку готовности Redis.
func NewReadinessChecker(rdb redis.UniversalClient) *ReadinessChecker {
	return &ReadinessChecker{rdb: rdb}
}

// CheckReady проверяет доступность Redis через PING с таймаутом 2 секунды.
func (c *ReadinessChecker) CheckReady() (string, string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return "fail", "Redis недоступен: " + err.Error()
	}
	return "ok", ""
}

// StatCache — кэш дневных агрегатов расходов.
type StatCache struct {
	rdb redis.UniversalClient
	lru *expirable.LRU[string, *model.DailyCostStat]
	// ttl — время жизни записи в Redis
	ttl time.Duration
}

// NewStatCache создаёт кэш статистики.
// lruSize — размер in-process уровня, lruTTL — его TTL,
// redisTTL — TTL записей в Redis (0 — без истечения).
func NewStatCache(rdb redis.UniversalClient, lruSize int, lruTTL, redisTTL time.Duration) *StatCache {
	return &StatCache{
		rdb: rdb,
		lru: expirable.NewLRU[string, *model.DailyCostStat](lruSize, nil, lruTTL),
		ttl: redisTTL,
	}
}

// dayKey — ключ периода в Redis.
func dayKey(day string) string {
	return "cm:cost_audit:stat:day:" + day
}

// SetDaily записывает агрегат дня в оба уровня.
// Перезапись идемпотентна: повторный расчёт того же дня даёт тот же ключ.
func (c *StatCache) SetDaily(ctx context.Context, stat *model.DailyCostStat) error {
	encoded, err := json.Marshal(stat)
	if err != nil {
		return fmt.Errorf("ошибка сериализации агрегата: %w", err)
	}

	if err := c.rdb.Set(ctx, dayKey(stat.Day), encoded, c.ttl).Err(); err != nil {
		return fmt.Errorf("ошибка записи агрегата в Redis: %w", err)
	}

	c.lru.Add(stat.Day, stat)
	return nil
}

// GetDaily возвращает агрегат дня: LRU → Redis → ErrMiss.
// При попадании в Redis запись поднимается в LRU.
func (c *StatCache) GetDaily(ctx context.Context, day string) (*model.DailyCostStat, error) {
	if stat, ok := c.lru.Get(day); ok {
		cacheHitsTotal.WithLabelValues("lru").Inc()
		return stat, nil
	}

	encoded, err := c.rdb.Get(ctx, dayKey(day)).Bytes()
	if err != nil {
		if err == redis.Nil {
			cacheMissesTotal.Inc()
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("ошибка чтения агрегата из Redis: %w", err)
	}

	stat := &model.DailyCostStat{}
	if err := json.Unmarshal(encoded, stat); err != nil {
		return nil, fmt.Errorf("ошибка десериализации агрегата: %w", err)
	}

	cacheHitsTotal.WithLabelValues("redis").Inc()
	c.lru.Add(day, stat)
	return stat, nil
}
