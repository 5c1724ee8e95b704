package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// accessTokenExpiresAt достаёт exp-клейм access-токена без проверки подписи.
// Подпись проверяет сервер; клиенту момент истечения нужен только как
// подсказка, чтобы не отправлять заведомо просроченный токен при старте.
func accessTokenExpiresAt(raw string) (time.Time, bool) {
	claims := jwt.MapClaims{}

	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}, false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}

	return exp.Time, true
}
