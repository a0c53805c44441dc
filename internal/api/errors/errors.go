// Пакет errors — бизнес-ошибки HTTP API Console Module.
// Единый формат ответа: {"code": "...", "message": "...", "status": N}.
// Код, сообщение и статус фиксируются в момент создания ошибки,
// а не в момент сериализации.
package errors //nolint:revive // конфликт имени со stdlib допустим внутри api/

import (
	"encoding/json"
	"net/http"
)

// Машиночитаемые коды ошибок.
const (
	// CodeNormalError — общая клиентская ошибка (400).
	CodeNormalError = "normal_error"
	// CodeNotFound — ресурс не найден (404).
	CodeNotFound = "not_found"
	// CodeUnauthorized — требуется аутентификация (401).
	CodeUnauthorized = "unauthorized"
	// CodeInternalError — внутренняя ошибка (500).
	CodeInternalError = "internal_error"
)

// BusinessError — неизменяемая бизнес-ошибка с готовым HTTP-представлением.
type BusinessError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// Error реализует интерфейс error.
func (e *BusinessError) Error() string {
	return e.Code + ": " + e.Message
}

// New создаёт бизнес-ошибку с произвольным кодом и статусом.
func New(status int, code, message string) *BusinessError {
	return &BusinessError{Code: code, Message: message, Status: status}
}

// NormalError — общая клиентская ошибка 400.
func NormalError(message string) *BusinessError {
	return New(http.StatusBadRequest, CodeNormalError, message)
}

// NotFound — 404 ресурс не найден.
func NotFound(message string) *BusinessError {
	return New(http.StatusNotFound, CodeNotFound, message)
}

// Unauthorized — 401 требуется аутентификация.
func Unauthorized(message string) *BusinessError {
	return New(http.StatusUnauthorized, CodeUnauthorized, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(message string) *BusinessError {
	return New(http.StatusInternalServerError, CodeInternalError, message)
}

// WriteError записывает бизнес-ошибку в HTTP-ответ в стандартном формате.
func WriteError(w http.ResponseWriter, err *BusinessError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Status)
	_ = json.NewEncoder(w).Encode(err)
}
