// Пакет queue — очередь фоновых задач Console Module поверх Redis.
//
// Устройство:
//   - pending (LIST) — задачи, готовые к исполнению
//   - active (ZSET) — задачи, арендованные воркерами; score — дедлайн аренды
//   - dead (LIST) — задачи, завершившиеся ошибкой обработчика
//
// Воркер забирает задачу из pending, помещает её в active с дедлайном
// now+VisibilityTTL и убирает из active по завершении. Упавший воркер
// задачу не теряет: reclaim-цикл возвращает просроченные элементы
// active обратно в pending.
//
// Порядок исполнения конкурентно поставленных задач не гарантируется.
package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Имена фоновых задач.
const (
	// JobAddTask — запуск fine-tune задачи: payload {"task_id": "..."}.
	JobAddTask = "add_task"
	// JobCancelTask — отмена fine-tune задачи: payload {"task_id": "..."}.
	JobCancelTask = "cancel_task"
	// JobCheckStatus — сверка статусов всех незавершённых задач, без аргументов.
	JobCheckStatus = "check_status"
	// JobDailyCostAuditStat — расчёт статистики расходов за прошлый день, без аргументов.
	JobDailyCostAuditStat = "daily_cost_audit_stat"
)

// Ключи Redis.
const (
	keyPending = "cm:queue:pending"
	keyActive  = "cm:queue:active"
	keyDead    = "cm:queue:dead"
)

// Job — конверт фоновой задачи. Сериализуется в JSON, элемент
// pending/active — сериализованный конверт целиком.
type Job struct {
	// ID — уникальный идентификатор постановки
	ID string `json:"id"`
	// Name — имя задачи, определяет обработчик
	Name string `json:"name"`
	// Payload — аргументы задачи (сырой JSON, может быть null)
	Payload json.RawMessage `json:"payload,omitempty"`
	// EnqueuedAt — время постановки (Unix ms)
	EnqueuedAt int64 `json:"enqueued_at"`
}

// TaskPayload — аргументы задач add_task и cancel_task.
type TaskPayload struct {
	TaskID string `json:"task_id"`
}

// newJob собирает конверт с новым UUID и сериализованными аргументами.
func newJob(name string, payload any) (*Job, []byte, error) {
	job := &Job{
		ID:         uuid.NewString(),
		Name:       name,
		EnqueuedAt: time.Now().UnixMilli(),
	}

	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, nil, fmt.Errorf("ошибка сериализации аргументов задачи %s: %w", name, err)
		}
		job.Payload = raw
	}

	encoded, err := json.Marshal(job)
	if err != nil {
		return nil, nil, fmt.Errorf("ошибка сериализации конверта задачи %s: %w", name, err)
	}
	return job, encoded, nil
}
