package store

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/nachos-replay/replay-client/internal/models"
	"github.com/nachos-replay/replay-client/internal/transport"
	logctx "github.com/nachos-replay/replay-client/pkg/log"
)

const (
	fetchReplaysFailedMsg = "failed to load replays"
	fetchReplayFailedMsg  = "failed to load replay"
	deleteReplayFailedMsg = "failed to delete replay"
	uploadReplayFailedMsg = "failed to upload replay"

	defaultPageSize = 20
)

// ReplaysStore — стор коллекции реплеев: страница элементов, курсор
// пагинации, активные фильтры и статус loading/error.
//
// Инварианты:
//   - неуспешный Fetch не трогает предыдущий список;
//   - ответ устаревшего Fetch (его обогнал более новый) отбрасывается
//     по номеру поколения, состояние применяет только последний;
//   - мутация фильтров сбрасывает страницу на 1;
//   - TotalPages >= 1 всегда, даже при total = 0.
type ReplaysStore struct {
	tr *transport.Client

	mu       sync.Mutex
	items    []models.Replay
	current  *models.Replay
	loading  bool
	errMsg   string
	page     int
	pageSize int
	total    int
	filters  models.ReplayFilters
	fetchSeq uint64
}

// NewReplays создаёт стор с размером страницы pageSize (<=0 — дефолт 20).
func NewReplays(tr *transport.Client, pageSize int) *ReplaysStore {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	return &ReplaysStore{tr: tr, page: 1, pageSize: pageSize}
}

// Fetch загружает текущую страницу с учётом активных фильтров.
//
// Критерии с пустым значением в запрос не попадают. Ошибка оседает в
// error-слоте, список остаётся прежним. Конкурирующие Fetch не отменяют
// друг друга: применяется только ответ последнего выданного запроса.
func (s *ReplaysStore) Fetch(ctx context.Context) {
	const op = "store.replays.Fetch"

	s.mu.Lock()
	s.fetchSeq++
	seq := s.fetchSeq
	s.loading = true
	s.errMsg = ""
	query := s.buildQuery()
	s.mu.Unlock()

	var page models.ReplayPage
	err := s.tr.Get(ctx, "/api/replays", query, &page)

	s.mu.Lock()
	defer s.mu.Unlock()

	// Ответ обогнал более новый запрос — молча выбрасываем.
	if seq != s.fetchSeq {
		return
	}

	s.loading = false

	if err != nil {
		logctx.From(ctx).Warn("replays_fetch_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		s.errMsg = errorMessage(err, fetchReplaysFailedMsg)

		return
	}

	s.items = page.Items
	s.total = page.Total
}

// buildQuery собирает query-параметры из пагинации и непустых фильтров.
// Вызывается под мьютексом.
func (s *ReplaysStore) buildQuery() url.Values {
	q := url.Values{}
	q.Set("page", strconv.Itoa(s.page))
	q.Set("page_size", strconv.Itoa(s.pageSize))

	setNonEmpty := func(key, value string) {
		if value != "" {
			q.Set(key, value)
		}
	}

	setNonEmpty("query", s.filters.Query)
	setNonEmpty("username", s.filters.Username)
	setNonEmpty("session_name", s.filters.SessionName)
	setNonEmpty("client_ip", s.filters.ClientIP)
	setNonEmpty("date_from", s.filters.DateFrom)
	setNonEmpty("date_to", s.filters.DateTo)
	setNonEmpty("status", s.filters.Status)
	setNonEmpty("sort_by", s.filters.SortBy)
	setNonEmpty("sort_order", s.filters.SortOrder)

	return q
}

// FetchOne загружает один реплей в отдельный слот "текущего".
func (s *ReplaysStore) FetchOne(ctx context.Context, id uuid.UUID) *models.Replay {
	const op = "store.replays.FetchOne"

	s.mu.Lock()
	s.loading = true
	s.errMsg = ""
	s.mu.Unlock()

	var replay models.Replay
	err := s.tr.Get(ctx, "/api/replays/"+id.String(), nil, &replay)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.loading = false

	if err != nil {
		logctx.From(ctx).Warn("replay_fetch_failed",
			slog.String("op", op),
			slog.String("id", id.String()),
			slog.String("err", err.Error()),
		)
		s.errMsg = errorMessage(err, fetchReplayFailedMsg)

		return nil
	}

	s.current = &replay

	return &replay
}

// Delete удаляет реплей и оптимистично сверяет локальное состояние:
// при успехе из списка уходит ровно один элемент с этим id, total
// уменьшается на единицу, без повторного Fetch. При ошибке список и
// total остаются байт-в-байт прежними.
func (s *ReplaysStore) Delete(ctx context.Context, id uuid.UUID, hardDelete bool) bool {
	const op = "store.replays.Delete"

	q := url.Values{}
	if hardDelete {
		q.Set("hard_delete", "true")
	}

	if err := s.tr.Delete(ctx, "/api/replays/"+id.String(), q, nil); err != nil {
		logctx.From(ctx).Warn("replay_delete_failed",
			slog.String("op", op),
			slog.String("id", id.String()),
			slog.String("err", err.Error()),
		)

		s.mu.Lock()
		s.errMsg = errorMessage(err, deleteReplayFailedMsg)
		s.mu.Unlock()

		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.items {
		if s.items[i].ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			break
		}
	}

	if s.total > 0 {
		s.total--
	}

	return true
}

// Upload загружает файл реплея multipart-запросом.
//
// onProgress получает целые проценты 0–100. При успехе новый реплей
// встаёт в голову списка, total увеличивается на единицу. В отличие от
// остальных действий ошибка не только оседает в error-слоте, но и
// возвращается вызывающему: ему нужно знать, что операция не завершилась
// (например, чтобы остановить мастер загрузки).
func (s *ReplaysStore) Upload(ctx context.Context, filename string, content []byte, onProgress func(int)) (*models.Replay, error) {
	const op = "store.replays.Upload"

	s.mu.Lock()
	s.loading = true
	s.errMsg = ""
	s.mu.Unlock()

	form := transport.MultipartForm{
		FileField: "file",
		FileName:  filename,
		Content:   content,
	}

	var replay models.Replay
	err := s.tr.PostMultipart(ctx, "/api/replays/upload", form, onProgress, &replay)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.loading = false

	if err != nil {
		logctx.From(ctx).Warn("replay_upload_failed",
			slog.String("op", op),
			slog.String("filename", filename),
			slog.String("err", err.Error()),
		)
		s.errMsg = errorMessage(err, uploadReplayFailedMsg)

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.items = append([]models.Replay{replay}, s.items...)
	s.total++

	return &replay, nil
}

// StreamURL строит URL стриминга реплея; сам стор его не запрашивает,
// ссылку открывает плеер.
func (s *ReplaysStore) StreamURL(id uuid.UUID) string {
	return s.tr.ResolveURL("/api/replays/" + id.String() + "/stream")
}

// SetFilters накатывает частичное обновление фильтров и сбрасывает
// страницу на 1: смена критериев обесценивает прежнюю страницу.
func (s *ReplaysStore) SetFilters(p models.ReplayFilterPatch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.filters = s.filters.Apply(p)
	s.page = 1
}

// ClearFilters сбрасывает фильтры в пустые значения и страницу на 1.
func (s *ReplaysStore) ClearFilters() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.filters = models.ReplayFilters{}
	s.page = 1
}

// SetPageSize меняет размер страницы (n <= 0 игнорируется) и сбрасывает
// страницу на 1.
func (s *ReplaysStore) SetPageSize(n int) {
	if n <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pageSize = n
	s.page = 1
}

// GoToPage переходит на страницу p и перечитывает список. Значение вне
// [1, TotalPages] — тихий no-op: ни состояния, ни запроса.
func (s *ReplaysStore) GoToPage(ctx context.Context, p int) {
	s.mu.Lock()

	if p < 1 || p > s.totalPages() {
		s.mu.Unlock()
		return
	}

	s.page = p
	s.mu.Unlock()

	s.Fetch(ctx)
}

// NextPage переходит на следующую страницу, если она есть.
func (s *ReplaysStore) NextPage(ctx context.Context) {
	s.mu.Lock()
	p := s.page + 1
	s.mu.Unlock()

	s.GoToPage(ctx, p)
}

// PrevPage переходит на предыдущую страницу, если она есть.
func (s *ReplaysStore) PrevPage(ctx context.Context) {
	s.mu.Lock()
	p := s.page - 1
	s.mu.Unlock()

	s.GoToPage(ctx, p)
}

// totalPages — ceil(total/pageSize), но не меньше 1. Под мьютексом.
func (s *ReplaysStore) totalPages() int {
	tp := (s.total + s.pageSize - 1) / s.pageSize
	if tp < 1 {
		tp = 1
	}

	return tp
}

// TotalPages — число страниц (всегда >= 1).
func (s *ReplaysStore) TotalPages() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.totalPages()
}

// HasNextPage — есть ли страница после текущей.
func (s *ReplaysStore) HasNextPage() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.page < s.totalPages()
}

// HasPrevPage — есть ли страница до текущей.
func (s *ReplaysStore) HasPrevPage() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.page > 1
}

// Items возвращает копию текущей страницы.
func (s *ReplaysStore) Items() []models.Replay {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]models.Replay, len(s.items))
	copy(items, s.items)

	return items
}

// Current — последний загруженный через FetchOne реплей (nil — нет).
func (s *ReplaysStore) Current() *models.Replay {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return nil
	}

	r := *s.current

	return &r
}

// Page — текущая страница (1-based).
func (s *ReplaysStore) Page() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.page
}

// PageSize — размер страницы.
func (s *ReplaysStore) PageSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.pageSize
}

// Total — общее число элементов на сервере под текущими фильтрами.
func (s *ReplaysStore) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.total
}

// Filters — копия активного набора фильтров.
func (s *ReplaysStore) Filters() models.ReplayFilters {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.filters
}

// Loading — выполняется ли сейчас запрос стора.
func (s *ReplaysStore) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.loading
}

// ErrorMessage — текущее сообщение об ошибке ("" — нет).
func (s *ReplaysStore) ErrorMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.errMsg
}

// ClearError сбрасывает сообщение об ошибке.
func (s *ReplaysStore) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.errMsg = ""
}
