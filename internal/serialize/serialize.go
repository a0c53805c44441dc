// Пакет serialize — форматтеры значений для API-ответов.
// Все функции тотальные: некорректный вход не вызывает panic,
// а деградирует до безопасного значения по умолчанию.
package serialize

import (
	"strconv"
	"time"
)

// DatetimeLayout — формат дат в API-ответах.
const DatetimeLayout = "2006-01-02 15:04:05"

// FormatDatetime форматирует time.Time в строку "YYYY-MM-DD HH:MM:SS".
// Любое другое значение (включая nil) возвращается без изменений.
func FormatDatetime(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t.Format(DatetimeLayout)
	case *time.Time:
		if t == nil {
			return v
		}
		return t.Format(DatetimeLayout)
	default:
		return v
	}
}

// IntList приводит упорядоченную последовательность к срезу int.
// Пустые и falsy элементы (nil, "", 0, false) отбрасываются,
// остальные приводятся к int с сохранением порядка.
// Элементы, не приводимые к int, отбрасываются.
// Не-последовательность на входе даёт пустой срез.
func IntList(v any) []int {
	seq := asSequence(v)
	result := make([]int, 0, len(seq))
	for _, item := range seq {
		if !truthy(item) {
			continue
		}
		n, ok := toInt(item)
		if !ok {
			continue
		}
		result = append(result, n)
	}
	return result
}

// EnsureList нормализует произвольное JSON-значение к списку:
// nil → пустой список, список → он сам, map → пустой список,
// скаляр → список из одного элемента.
func EnsureList(v any) []any {
	if v == nil {
		return []any{}
	}
	switch t := v.(type) {
	case []any:
		return t
	case map[string]any:
		return []any{}
	default:
		return []any{t}
	}
}

// asSequence возвращает элементы последовательности или nil для не-последовательностей.
func asSequence(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case []int:
		result := make([]any, len(t))
		for i, n := range t {
			result[i] = n
		}
		return result
	case []string:
		result := make([]any, len(t))
		for i, s := range t {
			result[i] = s
		}
		return result
	case []float64:
		result := make([]any, len(t))
		for i, f := range t {
			result[i] = f
		}
		return result
	default:
		return nil
	}
}

// truthy — falsy-семантика для элементов последовательности:
// nil, пустая строка, нулевые числа и false считаются пустыми.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	default:
		return true
	}
}

// toInt приводит значение к int: числа усекаются, строки парсятся.
func toInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	case string:
		n, err := strconv.Atoi(t)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}
