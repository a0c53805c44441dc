package model

import "testing"

// TestParseTaskStatus проверяет разбор всех допустимых статусов.
func TestParseTaskStatus(t *testing.T) {
	for _, s := range AllTaskStatuses {
		got, err := ParseTaskStatus(s.String())
		if err != nil {
			t.Errorf("ParseTaskStatus(%q) вернул ошибку: %v", s, err)
		}
		if got != s {
			t.Errorf("ParseTaskStatus(%q) = %q", s, got)
		}
	}
}

// TestParseTaskStatus_Unknown проверяет отказ на неизвестном значении.
func TestParseTaskStatus_Unknown(t *testing.T) {
	_, err := ParseTaskStatus("running")
	if err == nil {
		t.Fatal("ожидалась ошибка для статуса \"running\"")
	}
}

// TestTaskStatus_Terminal проверяет классификацию терминальных статусов.
func TestTaskStatus_Terminal(t *testing.T) {
	terminal := map[TaskStatus]bool{
		TaskPending:    false,
		TaskInProgress: false,
		TaskCompleted:  true,
		TaskFailed:     true,
		TaskCancelled:  true,
	}
	for s, want := range terminal {
		if got := s.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, ожидался %v", s, got, want)
		}
	}
}
