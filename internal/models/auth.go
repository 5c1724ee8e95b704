package models

import "github.com/google/uuid"

// Role — роль пользователя в системе реплеев.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleAuditor Role = "auditor"
	RoleViewer  Role = "viewer"
)

// TokenPair — пара токенов, выдаваемая сервером при логине/обновлении.
//
// Описание:
//   - AccessToken — короткоживущий JWT для авторизации запросов;
//   - RefreshToken — долгоживущий секрет для выпуска новой пары;
//   - TokenType/ExpiresIn — метаданные из ответа сервера (bearer, секунды).
//
// Инвариант: токены живут только парой — клиент никогда не хранит
// access-токен без refresh-токена из того же обмена.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
}

// Empty сообщает, что пара не установлена.
func (p TokenPair) Empty() bool {
	return p.AccessToken == "" && p.RefreshToken == ""
}

// User — профиль аутентифицированного пользователя (GET /api/auth/me).
// Профиль не персистится: перечитывается при каждой инициализации сессии.
type User struct {
	ID          uuid.UUID `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	Role        Role      `json:"role"`
	Groups      []string  `json:"groups,omitempty"`
}

// LoginRequest — тело POST /api/auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RefreshRequest — тело POST /api/auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}
