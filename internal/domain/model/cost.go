package model

import "time"

// CostRecord — единичная запись расхода (вызов модели).
// Источник данных для агрегатов daily_cost_audit_stat.
type CostRecord struct {
	// ID — идентификатор записи
	ID int64
	// AccountID — идентификатор аккаунта
	AccountID string
	// AppID — идентификатор приложения
	AppID string
	// Amount — стоимость вызова
	Amount float64
	// PromptTokens — токены запроса
	PromptTokens int64
	// CompletionTokens — токены ответа
	CompletionTokens int64
	// CreatedAt — время вызова
	CreatedAt time.Time
}

// AccountCostStat — агрегат расходов одного аккаунта за период.
type AccountCostStat struct {
	AccountID        string  `json:"account_id"`
	TotalAmount      float64 `json:"total_amount"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	Calls            int64   `json:"calls"`
}

// DailyCostStat — агрегат расходов за календарный день.
// Сериализуется в JSON и кладётся в кэш по ключу периода;
// повторный расчёт того же дня перезаписывает значение целиком.
type DailyCostStat struct {
	// Day — день в формате YYYY-MM-DD
	Day string `json:"day"`
	// TotalAmount — суммарная стоимость за день
	TotalAmount float64 `json:"total_amount"`
	// TotalCalls — количество вызовов за день
	TotalCalls int64 `json:"total_calls"`
	// Accounts — разбивка по аккаунтам
	Accounts []AccountCostStat `json:"accounts"`
	// ComputedAt — время расчёта агрегата
	ComputedAt time.Time `json:"computed_at"`
}
