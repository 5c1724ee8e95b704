// store содержит клиентские сторы коллекций replay-API: наблюдаемое
// состояние списков (элементы, пагинация, фильтры, loading/error) поверх
// транспорта. UI читает состояние через геттеры, а не ловит исключения
// из действий: все ошибки, кроме загрузки файла, оседают в error-слоте.
package store

import "github.com/nachos-replay/replay-client/internal/transport"

// errorMessage выбирает user-facing текст ошибки: detail от сервера,
// иначе переданный фолбэк.
func errorMessage(err error, fallback string) string {
	if detail := transport.Detail(err); detail != "" {
		return detail
	}

	return fallback
}
