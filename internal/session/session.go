// session содержит менеджер аутентифицированной сессии replay-клиента:
// логин/логаут, обмен refresh-токена, загрузку профиля и производные
// предикаты авторизации для роутинга.
//
// Основные аспекты:
//   - Менеджер — единственный владелец пары токенов и профиля; сторы
//     коллекций учётные данные не пишут.
//   - Пара токенов персистится во внешнем key-value хранилище и живёт
//     только целиком: access и refresh пишутся/стираются вместе, гибрид
//     из двух разных обменов невозможен (мьютекс + singleflight).
//   - Конкурентные Refresh из нескольких 401-обработчиков коалесцируются
//     в один обмен: первый вызов запускает его, остальные ждут тот же
//     результат.
//   - Сетевые ошибки логина/рефреша не выходят за границу менеджера:
//     наружу — булев результат и user-facing сообщение.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nachos-replay/replay-client/internal/models"
	"github.com/nachos-replay/replay-client/internal/storage"
	"github.com/nachos-replay/replay-client/internal/transport"
	logctx "github.com/nachos-replay/replay-client/pkg/log"
)

const (
	loginFailedMsg = "login failed: check your credentials"
)

// Manager — владелец состояния сессии.
type Manager struct {
	tr    *transport.Client
	store storage.Storage

	sf singleflight.Group

	mu      sync.RWMutex
	tokens  models.TokenPair
	user    *models.User
	loading bool
	errMsg  string
}

// New создаёт менеджер и восстанавливает пару токенов из хранилища.
//
// Если в хранилище лежит только половина пары (например, после сбоя),
// обе записи стираются: полупара бесполезна и нарушает инвариант.
func New(tr *transport.Client, store storage.Storage) *Manager {
	m := &Manager{tr: tr, store: store}

	access, errA := store.Get(storage.KeyAccessToken)
	refresh, errR := store.Get(storage.KeyRefreshToken)

	switch {
	case errA == nil && errR == nil:
		m.tokens = models.TokenPair{AccessToken: access, RefreshToken: refresh}
	case errA == nil || errR == nil:
		_ = store.Remove(storage.KeyAccessToken)
		_ = store.Remove(storage.KeyRefreshToken)
	}

	return m
}

// Init рехидрирует сессию при старте: если access-токен восстановлен из
// хранилища — перечитывает профиль (профиль не персистится). Просроченный
// access-токен сначала меняется через Refresh, чтобы не жечь заведомо
// мёртвый запрос.
func (m *Manager) Init(ctx context.Context) {
	const op = "session.session.Init"

	m.mu.RLock()
	access := m.tokens.AccessToken
	refresh := m.tokens.RefreshToken
	m.mu.RUnlock()

	if access == "" {
		return
	}

	lg := logctx.From(ctx)

	if exp, ok := accessTokenExpiresAt(access); ok && time.Now().After(exp) && refresh != "" {
		lg.Info("session_init_token_expired", slog.String("op", op))

		if !m.Refresh(ctx) {
			return
		}
	}

	m.FetchProfile(ctx)
}

// Login выполняет вход по имени пользователя и паролю.
//
// При успехе атомарно сохраняет пару токенов и подтягивает профиль.
// Любая ошибка переводится в false + user-facing сообщение (detail от
// сервера, иначе общий фолбэк); наружу ошибки не пробрасываются.
func (m *Manager) Login(ctx context.Context, username, password string) bool {
	const op = "session.session.Login"

	m.setLoading(true)
	defer m.setLoading(false)

	m.setError("")

	lg := logctx.From(ctx)

	var pair models.TokenPair

	// 401 логина — неверные учётные данные, а не повод для refresh-retry.
	rctx := transport.WithoutRetry(ctx)

	in := models.LoginRequest{Username: username, Password: password}
	if err := m.tr.Post(rctx, "/api/auth/login", in, &pair); err != nil {
		lg.Warn("login_failed",
			slog.String("op", op),
			slog.String("username", username),
			slog.Int("status", transport.StatusOf(err)),
		)

		if detail := transport.Detail(err); detail != "" {
			m.setError(detail)
		} else {
			m.setError(loginFailedMsg)
		}

		return false
	}

	m.storePair(ctx, pair)

	lg.Info("login_ok", slog.String("op", op), slog.String("username", username))

	m.FetchProfile(ctx)

	return true
}

// FetchProfile загружает профиль текущего пользователя.
//
// Возвращает nil без запроса, если access-токена нет. Финальный 401
// (транспорт уже попробовал один refresh-retry) означает, что токен мёртв
// безвозвратно, — сессия разбирается через Logout.
func (m *Manager) FetchProfile(ctx context.Context) *models.User {
	const op = "session.session.FetchProfile"

	if m.AccessToken() == "" {
		return nil
	}

	lg := logctx.From(ctx)

	var user models.User
	if err := m.tr.Get(ctx, "/api/auth/me", nil, &user); err != nil {
		if transport.IsUnauthorized(err) {
			lg.Warn("profile_fetch_unauthorized", slog.String("op", op))
			m.Logout(ctx)
		} else {
			lg.Warn("profile_fetch_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
		}

		return nil
	}

	m.mu.Lock()
	m.user = &user
	m.mu.Unlock()

	return &user
}

// Refresh обменивает refresh-токен на новую пару токенов.
//
// Конкурентные вызовы (несколько запросов одновременно словили 401)
// сливаются в один обмен: все получают результат первого. Любая ошибка
// обмена — терминальная: Logout и false. Персистентная пара после любого
// исхода внутренне согласована (оба токена из одного обмена).
func (m *Manager) Refresh(ctx context.Context) bool {
	v, _, _ := m.sf.Do("refresh", func() (any, error) {
		return m.refresh(ctx), nil
	})

	ok, _ := v.(bool)

	return ok
}

func (m *Manager) refresh(ctx context.Context) bool {
	const op = "session.session.refresh"

	m.mu.RLock()
	refresh := m.tokens.RefreshToken
	m.mu.RUnlock()

	if refresh == "" {
		return false
	}

	lg := logctx.From(ctx)

	// Сам обмен не участвует в refresh-retry: его 401 — терминальный.
	rctx := transport.WithoutRetry(ctx)

	var pair models.TokenPair
	if err := m.tr.Post(rctx, "/api/auth/refresh", models.RefreshRequest{RefreshToken: refresh}, &pair); err != nil {
		lg.Warn("token_refresh_failed",
			slog.String("op", op),
			slog.Int("status", transport.StatusOf(err)),
		)
		refreshTotal.WithLabelValues("failed").Inc()

		m.Logout(ctx)

		return false
	}

	m.storePair(ctx, pair)

	lg.Info("token_refresh_ok", slog.String("op", op))
	refreshTotal.WithLabelValues("ok").Inc()

	return true
}

// Logout разбирает сессию. Серверная инвалидация — best-effort: её ошибки
// игнорируются, локально логаут безусловно эффективен.
func (m *Manager) Logout(ctx context.Context) {
	const op = "session.session.Logout"

	if token := m.AccessToken(); token != "" {
		// Logout с мёртвым токеном вернёт 401 — это не повод для refresh.
		rctx := transport.WithoutRetry(ctx)

		if err := m.tr.Post(rctx, "/api/auth/logout", nil, nil); err != nil {
			logctx.From(ctx).Debug("logout_server_call_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
		}
	}

	m.mu.Lock()
	m.tokens = models.TokenPair{}
	m.user = nil
	m.mu.Unlock()

	_ = m.store.Remove(storage.KeyAccessToken)
	_ = m.store.Remove(storage.KeyRefreshToken)

	logctx.From(ctx).Info("logout_ok", slog.String("op", op))
}

// storePair устанавливает новую пару в памяти и в хранилище.
// Порядок записи: сначала refresh, затем access — при сбое между записями
// на диске не останется access-токена без refresh-токена рядом.
func (m *Manager) storePair(ctx context.Context, pair models.TokenPair) {
	const op = "session.session.storePair"

	m.mu.Lock()
	m.tokens = pair
	m.mu.Unlock()

	if err := m.store.Set(storage.KeyRefreshToken, pair.RefreshToken); err != nil {
		logctx.From(ctx).Warn("persist_refresh_token_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)

		return
	}

	if err := m.store.Set(storage.KeyAccessToken, pair.AccessToken); err != nil {
		logctx.From(ctx).Warn("persist_access_token_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
	}
}

// AccessToken реализует transport.TokenSource.
func (m *Manager) AccessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.tokens.AccessToken
}

// IsAuthenticated: токен держим и профиль загружен.
func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.tokens.AccessToken != "" && m.user != nil
}

// Role возвращает роль пользователя ("viewer" при отсутствии профиля).
func (m *Manager) Role() models.Role {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.user == nil || m.user.Role == "" {
		return models.RoleViewer
	}

	return m.user.Role
}

// IsAdmin — предикат администратора.
func (m *Manager) IsAdmin() bool {
	return m.Role() == models.RoleAdmin
}

// IsAuditorOrAdmin — предикат доступа к аудиту.
func (m *Manager) IsAuditorOrAdmin() bool {
	r := m.Role()

	return r == models.RoleAdmin || r == models.RoleAuditor
}

// DisplayName: display_name профиля, иначе username, иначе пустая строка.
func (m *Manager) DisplayName() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.user == nil {
		return ""
	}
	if m.user.DisplayName != "" {
		return m.user.DisplayName
	}

	return m.user.Username
}

// User возвращает загруженный профиль (nil — не аутентифицированы).
func (m *Manager) User() *models.User {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.user == nil {
		return nil
	}

	u := *m.user

	return &u
}

// Loading — идёт ли сейчас логин.
func (m *Manager) Loading() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.loading
}

// ErrorMessage — текущее user-facing сообщение об ошибке ("" — нет).
func (m *Manager) ErrorMessage() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.errMsg
}

// ClearError сбрасывает сообщение об ошибке.
func (m *Manager) ClearError() {
	m.setError("")
}

// Locale возвращает сохранённую локаль UI ("" — не задана).
func (m *Manager) Locale() string {
	v, err := m.store.Get(storage.KeyLocale)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			slog.Default().Debug("locale_read_failed", slog.String("err", err.Error()))
		}

		return ""
	}

	return v
}

// SetLocale сохраняет локаль UI.
func (m *Manager) SetLocale(locale string) error {
	if locale == "" {
		return m.store.Remove(storage.KeyLocale)
	}

	return m.store.Set(storage.KeyLocale, locale)
}

func (m *Manager) setLoading(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.loading = v
}

func (m *Manager) setError(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.errMsg = msg
}
