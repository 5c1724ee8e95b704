package store

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nachos-replay/replay-client/internal/models"
	"github.com/nachos-replay/replay-client/internal/transport"
	logctx "github.com/nachos-replay/replay-client/pkg/log"
)

const (
	fetchStatsFailedMsg = "failed to load statistics"

	defaultTopUsersLimit = 5
	defaultOverTimeDays  = 14
)

// StatsStore — стор статистики дашборда. В отличие от коллекции реплеев
// у него нет пагинации и фильтров — только независимые загрузки сводки,
// рейтинга и временного ряда. Сбой одной загрузки не мешает остальным
// обновить свои слоты.
type StatsStore struct {
	tr *transport.Client

	mu       sync.Mutex
	overview models.Overview
	topUsers []models.TopUser
	overTime []models.TimePoint
	loading  bool
	errMsg   string
}

// NewStats создаёт стор статистики.
func NewStats(tr *transport.Client) *StatsStore {
	return &StatsStore{tr: tr}
}

// FetchOverview загружает сводную статистику.
func (s *StatsStore) FetchOverview(ctx context.Context) {
	const op = "store.stats.FetchOverview"

	s.mu.Lock()
	s.loading = true
	s.errMsg = ""
	s.mu.Unlock()

	var overview models.Overview
	err := s.tr.Get(ctx, "/api/stats/overview", nil, &overview)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.loading = false

	if err != nil {
		logctx.From(ctx).Warn("stats_overview_fetch_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		s.errMsg = errorMessage(err, fetchStatsFailedMsg)

		return
	}

	s.overview = overview
}

// FetchTopUsers загружает рейтинг пользователей (limit <= 0 — дефолт 5).
func (s *StatsStore) FetchTopUsers(ctx context.Context, limit int) {
	const op = "store.stats.FetchTopUsers"

	if limit <= 0 {
		limit = defaultTopUsersLimit
	}

	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))

	var top []models.TopUser
	if err := s.tr.Get(ctx, "/api/stats/top-users", q, &top); err != nil {
		logctx.From(ctx).Warn("stats_top_users_fetch_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)

		s.mu.Lock()
		s.errMsg = errorMessage(err, fetchStatsFailedMsg)
		s.mu.Unlock()

		return
	}

	s.mu.Lock()
	s.topUsers = top
	s.mu.Unlock()
}

// FetchOverTime загружает временной ряд за days дней (<= 0 — дефолт 14).
func (s *StatsStore) FetchOverTime(ctx context.Context, days int) {
	const op = "store.stats.FetchOverTime"

	if days <= 0 {
		days = defaultOverTimeDays
	}

	q := url.Values{}
	q.Set("days", strconv.Itoa(days))

	var series []models.TimePoint
	if err := s.tr.Get(ctx, "/api/stats/replays-over-time", q, &series); err != nil {
		logctx.From(ctx).Warn("stats_over_time_fetch_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)

		s.mu.Lock()
		s.errMsg = errorMessage(err, fetchStatsFailedMsg)
		s.mu.Unlock()

		return
	}

	s.mu.Lock()
	s.overTime = series
	s.mu.Unlock()
}

// FetchAll запускает все три загрузки конкурентно и возвращается, когда
// завершатся все. Ошибки отдельных загрузок не прерывают остальные: каждая
// пишет в свой слот состояния самостоятельно.
func (s *StatsStore) FetchAll(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.FetchOverview(gctx)
		return nil
	})
	g.Go(func() error {
		s.FetchTopUsers(gctx, defaultTopUsersLimit)
		return nil
	})
	g.Go(func() error {
		s.FetchOverTime(gctx, defaultOverTimeDays)
		return nil
	})

	_ = g.Wait()
}

// Overview — последняя загруженная сводка.
func (s *StatsStore) Overview() models.Overview {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.overview
}

// TopUsers — копия последнего загруженного рейтинга.
func (s *StatsStore) TopUsers() []models.TopUser {
	s.mu.Lock()
	defer s.mu.Unlock()

	top := make([]models.TopUser, len(s.topUsers))
	copy(top, s.topUsers)

	return top
}

// OverTime — копия последнего загруженного временного ряда.
func (s *StatsStore) OverTime() []models.TimePoint {
	s.mu.Lock()
	defer s.mu.Unlock()

	series := make([]models.TimePoint, len(s.overTime))
	copy(series, s.overTime)

	return series
}

// Loading — выполняется ли загрузка сводки.
func (s *StatsStore) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.loading
}

// ErrorMessage — текущее сообщение об ошибке ("" — нет).
func (s *StatsStore) ErrorMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.errMsg
}

// ClearError сбрасывает сообщение об ошибке.
func (s *StatsStore) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.errMsg = ""
}
