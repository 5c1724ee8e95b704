// transport — единая точка исходящих запросов к replay-API.
//
// Клиент подставляет bearer-токен из TokenSource в каждый запрос и на 401
// прозрачно выполняет ровно один цикл refresh-and-retry для исходного
// запроса. Маркер повтора живёт в контексте вызова, а не в самом запросе,
// поэтому повторный 401 (например, при мёртвом refresh-токене) наружу
// отдаётся как есть, без зацикливания.
//
// Конкурентные 401 коалесцируются на стороне TokenSource (см. session):
// транспорт лишь дожидается результата общего refresh.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nachos-replay/replay-client/internal/config"
	logctx "github.com/nachos-replay/replay-client/pkg/log"
)

// TokenSource выдаёт текущий access-токен и умеет обновлять пару токенов.
// Реализуется менеджером сессии.
type TokenSource interface {
	// AccessToken возвращает текущий access-токен ("" — токен не держим).
	AccessToken() string
	// Refresh обменивает refresh-токен на новую пару. false — сессия мертва.
	Refresh(ctx context.Context) bool
}

// Client — HTTP-клиент replay-API.
type Client struct {
	http      *http.Client
	baseURL   *url.URL
	userAgent string
	log       *slog.Logger

	mu sync.RWMutex
	ts TokenSource
}

// New создаёт клиент поверх базового URL API.
func New(cfg config.APIConfig, log *slog.Logger) (*Client, error) {
	const op = "transport.client.New"

	if log == nil {
		log = slog.Default()
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%s: parse base url: %w", op, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%s: base url %q must be absolute", op, cfg.BaseURL)
	}

	return &Client{
		http:      &http.Client{Timeout: cfg.Timeout},
		baseURL:   base,
		userAgent: cfg.UserAgent,
		log:       log,
	}, nil
}

// SetTokenSource подключает источник токенов. Вызывается один раз при сборке
// клиента; до подключения запросы уходят без Authorization и без retry.
func (c *Client) SetTokenSource(ts TokenSource) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ts = ts
}

func (c *Client) tokenSource() TokenSource {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.ts
}

// ResolveURL строит абсолютный URL для пути API (например, ссылку на стрим,
// которую плеер открывает напрямую, минуя стор).
func (c *Client) ResolveURL(path string) string {
	u := *c.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + path

	return u.String()
}

// ctxKey — ключи контекста транспорта.
type ctxKey string

const (
	// ctxRetried — маркер «этот исходный запрос уже проходил refresh-retry».
	ctxRetried ctxKey = "retried"
)

// WithoutRetry помечает контекст так, будто refresh-retry уже израсходован.
// Нужен самим вызовам логина/рефреша/логаута: их 401 — терминальный ответ,
// а не повод для рекурсивного обновления токенов.
func WithoutRetry(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxRetried, true)
}

func retried(ctx context.Context) bool {
	v, _ := ctx.Value(ctxRetried).(bool)
	return v
}

// Get выполняет GET-запрос и декодирует JSON-ответ в out.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, call{method: http.MethodGet, path: path, query: query}, out)
}

// Post выполняет POST с JSON-телом in и декодирует ответ в out.
// in == nil — запрос без тела (например, logout).
func (c *Client) Post(ctx context.Context, path string, in, out any) error {
	const op = "transport.client.Post"

	var body []byte
	contentType := ""

	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: marshal body: %w", op, err)
		}

		body = data
		contentType = "application/json"
	}

	return c.do(ctx, call{method: http.MethodPost, path: path, body: body, contentType: contentType}, out)
}

// Delete выполняет DELETE-запрос.
func (c *Client) Delete(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, call{method: http.MethodDelete, path: path, query: query}, out)
}

// call — параметры одного логического запроса. Тело хранится байтами,
// чтобы запрос можно было отправить повторно после refresh.
type call struct {
	method      string
	path        string
	query       url.Values
	body        []byte
	contentType string
	progress    func(int)
}

// do отправляет запрос и выполняет протокол refresh-and-retry:
//
//  1. не-401 ответ (успех или ошибка) — отдаётся как есть;
//  2. 401 при неизрасходованном маркере — TokenSource.Refresh, при успехе
//     повторная отправка с новым токеном; результат повтора (любой) — это
//     результат исходного вызова;
//  3. 401 при мёртвом refresh — исходная 401-ошибка наружу (сессия уже
//     разобрана внутри Refresh).
func (c *Client) do(ctx context.Context, cl call, out any) error {
	rid := uuid.NewString()

	status, body, err := c.send(ctx, cl, rid)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized && !retried(ctx) {
		if ts := c.tokenSource(); ts != nil && ts.Refresh(ctx) {
			retriesTotal.Inc()

			rctx := context.WithValue(ctx, ctxRetried, true)

			status, body, err = c.send(rctx, cl, rid)
			if err != nil {
				return err
			}
		}
	}

	return decode(status, body, out)
}

// send — одна физическая отправка. Повтор строит запрос заново из call,
// поэтому объект исходного запроса никогда не мутируется.
func (c *Client) send(ctx context.Context, cl call, rid string) (int, []byte, error) {
	const op = "transport.client.send"

	u := c.ResolveURL(cl.path)
	if len(cl.query) > 0 {
		u += "?" + cl.query.Encode()
	}

	var reader io.Reader
	if cl.body != nil {
		if cl.progress != nil {
			reader = newProgressReader(cl.body, cl.progress)
		} else {
			reader = bytes.NewReader(cl.body)
		}
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, u, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("%s: %w", op, err)
	}

	if cl.contentType != "" {
		req.Header.Set("Content-Type", cl.contentType)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("X-Request-Id", rid)

	if ts := c.tokenSource(); ts != nil {
		if token := ts.AccessToken(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	lg := logctx.From(ctx).With(
		slog.String("request_id", rid),
		slog.String("method", cl.method),
		slog.String("path", cl.path),
	)

	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		lg.Warn("http_transport_error",
			slog.String("err", err.Error()),
			slog.Duration("dur", time.Since(start)),
		)
		requestsTotal.WithLabelValues(cl.method, "error").Inc()

		return 0, nil, fmt.Errorf("%s: %w", op, err)
	}

	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("%s: read body: %w", op, err)
	}

	lg.Info("http",
		slog.Int("status", resp.StatusCode),
		slog.Duration("dur", time.Since(start)),
	)
	requestsTotal.WithLabelValues(cl.method, strconv.Itoa(resp.StatusCode)).Inc()

	return resp.StatusCode, body, nil
}

// decode превращает финальный ответ в результат вызова.
func decode(status int, body []byte, out any) error {
	const op = "transport.client.decode"

	if status < 200 || status > 299 {
		return newAPIError(status, body)
	}

	if out == nil || len(body) == 0 {
		return nil
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: unmarshal response: %w", op, err)
	}

	return nil
}
