package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/bigkaa/golazyllm/console-module/internal/domain/model"
)

func newTestCache(t *testing.T) (*StatCache, redis.UniversalClient) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewStatCache(rdb, 16, time.Minute, 0), rdb
}

func sampleStat(day string) *model.DailyCostStat {
	return &model.DailyCostStat{
		Day:         day,
		TotalAmount: 12.5,
		TotalCalls:  3,
		Accounts: []model.AccountCostStat{
			{AccountID: "acc-1", TotalAmount: 12.5, PromptTokens: 100, CompletionTokens: 200, Calls: 3},
		},
		ComputedAt: time.Date(2024, 5, 2, 0, 10, 0, 0, time.UTC),
	}
}

// TestSetGetDaily проверяет запись и чтение через оба уровня.
func TestSetGetDaily(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	if err := c.SetDaily(ctx, sampleStat("2024-05-01")); err != nil {
		t.Fatalf("SetDaily вернул ошибку: %v", err)
	}

	got, err := c.GetDaily(ctx, "2024-05-01")
	if err != nil {
		t.Fatalf("GetDaily вернул ошибку: %v", err)
	}
	if got.TotalAmount != 12.5 || got.TotalCalls != 3 {
		t.Errorf("агрегат = %+v, не совпадает с записанным", got)
	}
	if len(got.Accounts) != 1 || got.Accounts[0].AccountID != "acc-1" {
		t.Errorf("разбивка по аккаунтам = %+v", got.Accounts)
	}
}

// TestGetDaily_Miss проверяет ErrMiss для отсутствующего дня.
func TestGetDaily_Miss(t *testing.T) {
	c, _ := newTestCache(t)

	_, err := c.GetDaily(context.Background(), "1999-01-01")
	if err != ErrMiss {
		t.Fatalf("ошибка = %v, ожидался ErrMiss", err)
	}
}

// TestSetDaily_OverwriteIdempotent: повторная запись того же дня
// перезаписывает значение, а не накапливает.
func TestSetDaily_OverwriteIdempotent(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	first := sampleStat("2024-05-01")
	if err := c.SetDaily(ctx, first); err != nil {
		t.Fatalf("SetDaily вернул ошибку: %v", err)
	}

	second := sampleStat("2024-05-01")
	second.TotalAmount = 99
	second.TotalCalls = 7
	if err := c.SetDaily(ctx, second); err != nil {
		t.Fatalf("повторный SetDaily вернул ошибку: %v", err)
	}

	got, err := c.GetDaily(ctx, "2024-05-01")
	if err != nil {
		t.Fatalf("GetDaily вернул ошибку: %v", err)
	}
	if got.TotalAmount != 99 || got.TotalCalls != 7 {
		t.Errorf("агрегат = %+v, ожидалась полная перезапись", got)
	}
}

// TestGetDaily_RedisFallback: чтение из Redis после опустошения LRU
// (например, другой процесс записал агрегат).
func TestGetDaily_RedisFallback(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ctx := context.Background()

	// Пишем через один кэш, читаем через другой (пустой LRU)
	writer := NewStatCache(rdb, 16, time.Minute, 0)
	if err := writer.SetDaily(ctx, sampleStat("2024-05-03")); err != nil {
		t.Fatalf("SetDaily вернул ошибку: %v", err)
	}

	reader := NewStatCache(rdb, 16, time.Minute, 0)
	got, err := reader.GetDaily(ctx, "2024-05-03")
	if err != nil {
		t.Fatalf("GetDaily вернул ошибку: %v", err)
	}
	if got.Day != "2024-05-03" {
		t.Errorf("Day = %q, ожидался 2024-05-03", got.Day)
	}
}
