package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// APIError — ошибка уровня API: сервер ответил не-2xx статусом.
//
// Message — безопасный текст из поля detail тела ответа (FastAPI-стиль);
// если сервер не прислал detail, подставляется стандартный текст статуса.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

// errorBody — тело ошибки replay-API: {"detail": "..."}.
type errorBody struct {
	Detail string `json:"detail"`
}

// newAPIError собирает APIError из статуса и тела ответа.
func newAPIError(status int, body []byte) *APIError {
	msg := ""

	if len(body) > 0 {
		var eb errorBody
		if err := json.Unmarshal(body, &eb); err == nil {
			msg = eb.Detail
		}
	}

	if msg == "" {
		msg = http.StatusText(status)
	}

	return &APIError{Status: status, Message: msg}
}

// Detail возвращает серверный текст ошибки, если err — APIError с непустым
// Message; иначе пустую строку. Сторы используют его для user-facing сообщений.
func Detail(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}

	return ""
}

// StatusOf возвращает HTTP-статус из APIError (0 — не APIError).
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}

	return 0
}

// IsUnauthorized сообщает, что ошибка — это 401 от сервера.
func IsUnauthorized(err error) bool {
	return StatusOf(err) == http.StatusUnauthorized
}
