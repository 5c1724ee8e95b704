// storage задаёт контракт персистентного хранилища учётных данных клиента.
//
// Хранилище — синхронный строковый key-value, переживающий перезапуск
// процесса (аналог localStorage в браузерном клиенте). Значения пишет
// только менеджер сессии; коллекционные сторы хранилище не трогают.
package storage

import "errors"

var (
	// ErrNotFound — ключ отсутствует в хранилище.
	ErrNotFound = errors.New("not found")
)

// Ключи, используемые клиентом.
const (
	// KeyAccessToken — короткоживущий bearer-токен.
	KeyAccessToken = "access_token"
	// KeyRefreshToken — долгоживущий токен обновления.
	KeyRefreshToken = "refresh_token"
	// KeyLocale — предпочитаемая локаль UI.
	KeyLocale = "locale"
)

//go:generate mockgen -source=storage.go -destination=../../mocks/mock_storage.go -package=mocks

// Storage выполняет операции над персистентными строковыми значениями.
type Storage interface {
	// Get возвращает значение по ключу; ErrNotFound, если ключа нет.
	Get(key string) (string, error)
	// Set сохраняет значение по ключу (перезаписывая существующее).
	Set(key, value string) error
	// Remove удаляет ключ; отсутствие ключа ошибкой не считается.
	Remove(key string) error
}
