package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/bigkaa/golazyllm/console-module/internal/domain/model"
)

// CostRepository — интерфейс доступа к таблице cost_records.
type CostRepository interface {
	// Insert добавляет запись расхода.
	Insert(ctx context.Context, rec *model.CostRecord) error
	// AggregateDay агрегирует расходы за календарный день [day, day+24h)
	// с разбивкой по аккаунтам.
	AggregateDay(ctx context.Context, day time.Time) (*model.DailyCostStat, error)
}

// costRepo — реализация CostRepository.
type costRepo struct {
	db DBTX
}

// NewCostRepository создаёт репозиторий записей расходов.
func NewCostRepository(db DBTX) CostRepository {
	return &costRepo{db: db}
}

func (r *costRepo) Insert(ctx context.Context, rec *model.CostRecord) error {
	query := `
		INSERT INTO cost_records (account_id, app_id, amount, prompt_tokens, completion_tokens, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	err := r.db.QueryRow(ctx, query,
		rec.AccountID, rec.AppID, rec.Amount, rec.PromptTokens, rec.CompletionTokens, rec.CreatedAt,
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("ошибка записи расхода: %w", err)
	}
	return nil
}

// AggregateDay считает агрегат в одном запросе GROUP BY account_id.
// Границы дня — UTC.
func (r *costRepo) AggregateDay(ctx context.Context, day time.Time) (*model.DailyCostStat, error) {
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	query := `
		SELECT account_id,
			COALESCE(SUM(amount), 0),
			COALESCE(SUM(prompt_tokens), 0),
			COALESCE(SUM(completion_tokens), 0),
			COUNT(*)
		FROM cost_records
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY account_id
		ORDER BY account_id`

	rows, err := r.db.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("ошибка агрегации расходов: %w", err)
	}
	defer rows.Close()

	stat := &model.DailyCostStat{
		Day:        from.Format("2006-01-02"),
		Accounts:   []model.AccountCostStat{},
		ComputedAt: time.Now().UTC(),
	}

	for rows.Next() {
		var acc model.AccountCostStat
		if err := rows.Scan(&acc.AccountID, &acc.TotalAmount, &acc.PromptTokens, &acc.CompletionTokens, &acc.Calls); err != nil {
			return nil, fmt.Errorf("ошибка чтения строки агрегата: %w", err)
		}
		stat.Accounts = append(stat.Accounts, acc)
		stat.TotalAmount += acc.TotalAmount
		stat.TotalCalls += acc.Calls
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка обхода результата: %w", err)
	}

	return stat, nil
}
