package store

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/nachos-replay/replay-client/internal/config"
	"github.com/nachos-replay/replay-client/internal/models"
	"github.com/nachos-replay/replay-client/internal/transport"
)

// Пакет тестов стора коллекции реплеев.
//
// Покрытие:
//  - Fetch: пагинация и непустые фильтры в query, пустые не передаются;
//  - неуспешный Fetch не трогает предыдущий список, detail оседает в errMsg;
//  - устаревший ответ Fetch отбрасывается (гонка двух запросов);
//  - Delete: уходит ровно один элемент, total-1, без рефетча; ошибка не
//    меняет состояние; hard_delete попадает в query;
//  - Upload: прогресс, вставка в голову, total+1; ошибка возвращается
//    вызывающему и оседает в errMsg;
//  - FetchOne/Current, StreamURL;
//  - мутации фильтров и размера страницы сбрасывают страницу на 1;
//  - GoToPage вне диапазона — тихий no-op; Next/PrevPage; TotalPages >= 1;
//  - HasNextPage/HasPrevPage.

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newReplaysEnv(t *testing.T, h http.Handler, pageSize int) *ReplaysStore {
	t.Helper()

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	tr, err := transport.New(config.APIConfig{
		BaseURL:   srv.URL,
		Timeout:   5 * time.Second,
		UserAgent: "replay-client-test",
	}, discardLogger())
	require.NoError(t, err)

	return NewReplays(tr, pageSize)
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()

	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func sampleReplay(name string) models.Replay {
	return models.Replay{
		ID:          uuid.New(),
		Filename:    name + ".guac",
		SessionName: name,
		FileSize:    1024,
		ImportedAt:  time.Now().UTC(),
		Status:      models.ReplayStatusActive,
	}
}

func pageOf(items []models.Replay, total, page, pageSize int) models.ReplayPage {
	return models.ReplayPage{Items: items, Total: total, Page: page, PageSize: pageSize}
}

func strptr(s string) *string { return &s }

func TestFetch_QueryParams(t *testing.T) {
	t.Parallel()

	var gotQuery url.Values

	r := chi.NewRouter()
	r.Get("/api/replays", func(w http.ResponseWriter, req *http.Request) {
		gotQuery = req.URL.Query()
		writeJSON(t, w, pageOf([]models.Replay{sampleReplay("s1"), sampleReplay("s2")}, 45, 1, 20))
	})

	s := newReplaysEnv(t, r, 20)
	s.SetFilters(models.ReplayFilterPatch{
		Username: strptr("alice"),
		Status:   strptr("active"),
	})
	s.Fetch(context.Background())

	require.Empty(t, s.ErrorMessage())
	require.False(t, s.Loading())

	require.Equal(t, "1", gotQuery.Get("page"))
	require.Equal(t, "20", gotQuery.Get("page_size"))
	require.Equal(t, "alice", gotQuery.Get("username"))
	require.Equal(t, "active", gotQuery.Get("status"))

	// Пустые критерии в запрос не попадают.
	require.False(t, gotQuery.Has("query"))
	require.False(t, gotQuery.Has("session_name"))
	require.False(t, gotQuery.Has("date_from"))
	require.False(t, gotQuery.Has("sort_by"))

	require.Len(t, s.Items(), 2)
	require.Equal(t, 45, s.Total())
	require.Equal(t, 3, s.TotalPages())
}

// TestFetch_FailureKeepsPreviousItems — ошибка загрузки не трогает
// последний успешно загруженный список и total.
func TestFetch_FailureKeepsPreviousItems(t *testing.T) {
	t.Parallel()

	var calls int32

	r := chi.NewRouter()
	r.Get("/api/replays", func(w http.ResponseWriter, req *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			writeJSON(t, w, pageOf([]models.Replay{sampleReplay("s1")}, 10, 1, 20))
			return
		}

		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"detail": "db down"}`))
	})

	s := newReplaysEnv(t, r, 20)

	s.Fetch(context.Background())
	require.Empty(t, s.ErrorMessage())
	before := s.Items()

	s.Fetch(context.Background())
	require.Equal(t, "db down", s.ErrorMessage())
	require.Equal(t, before, s.Items())
	require.Equal(t, 10, s.Total())
	require.False(t, s.Loading())
}

// TestFetch_StaleResponseDiscarded — ответ первого Fetch приходит после
// ответа второго и молча выбрасывается: состояние остаётся от последнего.
func TestFetch_StaleResponseDiscarded(t *testing.T) {
	t.Parallel()

	firstGate := make(chan struct{})
	var calls int32

	r := chi.NewRouter()
	r.Get("/api/replays", func(w http.ResponseWriter, req *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			<-firstGate // первый ответ задерживаем до завершения второго
			writeJSON(t, w, pageOf([]models.Replay{sampleReplay("stale")}, 1, 1, 20))
			return
		}

		writeJSON(t, w, pageOf([]models.Replay{sampleReplay("fresh")}, 2, 1, 20))
	})

	s := newReplaysEnv(t, r, 20)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.Fetch(context.Background())
	}()

	// Ждём, пока первый запрос дойдёт до сервера, затем запускаем второй.
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) == 1
	}, 2*time.Second, 10*time.Millisecond)

	s.Fetch(context.Background())
	require.Equal(t, 2, s.Total())

	close(firstGate)
	wg.Wait()

	items := s.Items()
	require.Len(t, items, 1)
	require.Equal(t, "fresh", items[0].SessionName)
	require.Equal(t, 2, s.Total())
	require.False(t, s.Loading())
}

func TestDelete_RemovesExactlyOneAndDecrementsTotal(t *testing.T) {
	t.Parallel()

	a, b := sampleReplay("a"), sampleReplay("b")

	var fetches int32
	var gotHard string

	r := chi.NewRouter()
	r.Get("/api/replays", func(w http.ResponseWriter, req *http.Request) {
		atomic.AddInt32(&fetches, 1)
		writeJSON(t, w, pageOf([]models.Replay{a, b}, 45, 1, 20))
	})
	r.Delete("/api/replays/{id}", func(w http.ResponseWriter, req *http.Request) {
		require.Equal(t, a.ID.String(), chi.URLParam(req, "id"))
		gotHard = req.URL.Query().Get("hard_delete")

		writeJSON(t, w, map[string]string{"message": "deleted"})
	})

	s := newReplaysEnv(t, r, 20)
	s.Fetch(context.Background())

	require.True(t, s.Delete(context.Background(), a.ID, true))
	require.Equal(t, "true", gotHard)

	items := s.Items()
	require.Len(t, items, 1)
	require.Equal(t, b.ID, items[0].ID)
	require.Equal(t, 44, s.Total())

	// Удаление сверяет список локально, без повторного Fetch.
	require.Equal(t, int32(1), atomic.LoadInt32(&fetches))
}

func TestDelete_SoftOmitsHardDeleteParam(t *testing.T) {
	t.Parallel()

	id := uuid.New()

	r := chi.NewRouter()
	r.Delete("/api/replays/{id}", func(w http.ResponseWriter, req *http.Request) {
		require.False(t, req.URL.Query().Has("hard_delete"))
		writeJSON(t, w, map[string]string{"message": "deleted"})
	})

	s := newReplaysEnv(t, r, 20)
	require.True(t, s.Delete(context.Background(), id, false))
}

func TestDelete_FailureLeavesStateUntouched(t *testing.T) {
	t.Parallel()

	a, b := sampleReplay("a"), sampleReplay("b")

	r := chi.NewRouter()
	r.Get("/api/replays", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(t, w, pageOf([]models.Replay{a, b}, 45, 1, 20))
	})
	r.Delete("/api/replays/{id}", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"detail": "admin only"}`))
	})

	s := newReplaysEnv(t, r, 20)
	s.Fetch(context.Background())
	before := s.Items()

	require.False(t, s.Delete(context.Background(), a.ID, false))
	require.Equal(t, "admin only", s.ErrorMessage())
	require.Equal(t, before, s.Items())
	require.Equal(t, 45, s.Total())
}

func TestUpload_PrependsAndIncrementsTotal(t *testing.T) {
	t.Parallel()

	existing := sampleReplay("old")
	uploaded := sampleReplay("fresh")

	r := chi.NewRouter()
	r.Get("/api/replays", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(t, w, pageOf([]models.Replay{existing}, 10, 1, 20))
	})
	r.Post("/api/replays/upload", func(w http.ResponseWriter, req *http.Request) {
		require.NoError(t, req.ParseMultipartForm(1<<20))

		f, hdr, err := req.FormFile("file")
		require.NoError(t, err)
		defer func() { _ = f.Close() }()

		require.Equal(t, "fresh.guac", hdr.Filename)

		data, err := io.ReadAll(f)
		require.NoError(t, err)
		require.Equal(t, []byte("recording"), data)

		writeJSON(t, w, uploaded)
	})

	s := newReplaysEnv(t, r, 20)
	s.Fetch(context.Background())

	var progress []int
	got, err := s.Upload(context.Background(), "fresh.guac", []byte("recording"), func(pct int) {
		progress = append(progress, pct)
	})
	require.NoError(t, err)
	require.Equal(t, uploaded.ID, got.ID)

	require.NotEmpty(t, progress)
	require.Equal(t, 0, progress[0])
	require.Equal(t, 100, progress[len(progress)-1])

	items := s.Items()
	require.Len(t, items, 2)
	require.Equal(t, uploaded.ID, items[0].ID)
	require.Equal(t, 11, s.Total())
	require.Empty(t, s.ErrorMessage())
}

// TestUpload_FailureReturnsErrorAndSetsMessage — в отличие от остальных
// действий ошибка загрузки возвращается вызывающему.
func TestUpload_FailureReturnsErrorAndSetsMessage(t *testing.T) {
	t.Parallel()

	r := chi.NewRouter()
	r.Post("/api/replays/upload", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail": "invalid replay file"}`))
	})

	s := newReplaysEnv(t, r, 20)

	got, err := s.Upload(context.Background(), "bad.guac", []byte("junk"), nil)
	require.Error(t, err)
	require.Nil(t, got)
	require.Equal(t, "invalid replay file", s.ErrorMessage())
	require.Empty(t, s.Items())
	require.Zero(t, s.Total())
}

func TestFetchOne_PopulatesCurrent(t *testing.T) {
	t.Parallel()

	replay := sampleReplay("target")

	r := chi.NewRouter()
	r.Get("/api/replays/{id}", func(w http.ResponseWriter, req *http.Request) {
		require.Equal(t, replay.ID.String(), chi.URLParam(req, "id"))
		writeJSON(t, w, replay)
	})

	s := newReplaysEnv(t, r, 20)

	got := s.FetchOne(context.Background(), replay.ID)
	require.NotNil(t, got)
	require.Equal(t, replay.ID, got.ID)

	cur := s.Current()
	require.NotNil(t, cur)
	require.Equal(t, replay.ID, cur.ID)
}

func TestFetchOne_NotFound(t *testing.T) {
	t.Parallel()

	r := chi.NewRouter()
	r.Get("/api/replays/{id}", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail": "Replay not found"}`))
	})

	s := newReplaysEnv(t, r, 20)

	require.Nil(t, s.FetchOne(context.Background(), uuid.New()))
	require.Equal(t, "Replay not found", s.ErrorMessage())
	require.Nil(t, s.Current())
}

func TestStreamURL(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	s := newReplaysEnv(t, http.NotFoundHandler(), 20)

	u := s.StreamURL(id)
	require.Contains(t, u, "/api/replays/"+id.String()+"/stream")
}

func TestSetFilters_ResetsPageAndAppliesPatch(t *testing.T) {
	t.Parallel()

	r := chi.NewRouter()
	r.Get("/api/replays", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(t, w, pageOf(nil, 45, 1, 20))
	})

	s := newReplaysEnv(t, r, 20)
	s.Fetch(context.Background())
	s.GoToPage(context.Background(), 2)
	require.Equal(t, 2, s.Page())

	s.SetFilters(models.ReplayFilterPatch{Query: strptr("rdp")})
	require.Equal(t, 1, s.Page())
	require.Equal(t, "rdp", s.Filters().Query)

	// nil-поле патча не трогает значение, указатель на "" стирает его.
	s.SetFilters(models.ReplayFilterPatch{Username: strptr("alice")})
	require.Equal(t, "rdp", s.Filters().Query)

	s.SetFilters(models.ReplayFilterPatch{Query: strptr("")})
	require.Empty(t, s.Filters().Query)
	require.Equal(t, "alice", s.Filters().Username)
}

func TestClearFilters(t *testing.T) {
	t.Parallel()

	r := chi.NewRouter()
	r.Get("/api/replays", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(t, w, pageOf(nil, 45, 1, 20))
	})

	s := newReplaysEnv(t, r, 20)
	s.SetFilters(models.ReplayFilterPatch{Query: strptr("rdp"), Status: strptr("active")})
	s.Fetch(context.Background())
	s.GoToPage(context.Background(), 3)

	s.ClearFilters()
	require.Equal(t, models.ReplayFilters{}, s.Filters())
	require.Equal(t, 1, s.Page())
}

func TestSetPageSize(t *testing.T) {
	t.Parallel()

	s := newReplaysEnv(t, http.NotFoundHandler(), 20)

	s.SetPageSize(50)
	require.Equal(t, 50, s.PageSize())
	require.Equal(t, 1, s.Page())

	// Неположительное значение игнорируется.
	s.SetPageSize(0)
	require.Equal(t, 50, s.PageSize())
}

func TestGoToPage_OutOfRangeIsNoOp(t *testing.T) {
	t.Parallel()

	var calls int32
	var lastPage string

	r := chi.NewRouter()
	r.Get("/api/replays", func(w http.ResponseWriter, req *http.Request) {
		atomic.AddInt32(&calls, 1)
		lastPage = req.URL.Query().Get("page")
		writeJSON(t, w, pageOf(nil, 45, 1, 20))
	})

	s := newReplaysEnv(t, r, 20)
	s.Fetch(context.Background()) // total 45 -> 3 страницы
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))

	s.GoToPage(context.Background(), 0)
	s.GoToPage(context.Background(), 4)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
	require.Equal(t, 1, s.Page())

	s.GoToPage(context.Background(), 2)
	require.Equal(t, int32(2), atomic.LoadInt32(&calls))
	require.Equal(t, 2, s.Page())
	require.Equal(t, "2", lastPage)
}

func TestNextPrevPage(t *testing.T) {
	t.Parallel()

	r := chi.NewRouter()
	r.Get("/api/replays", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(t, w, pageOf(nil, 45, 1, 20))
	})

	s := newReplaysEnv(t, r, 20)
	s.Fetch(context.Background())

	require.False(t, s.HasPrevPage())
	require.True(t, s.HasNextPage())

	s.NextPage(context.Background())
	require.Equal(t, 2, s.Page())
	require.True(t, s.HasPrevPage())

	s.PrevPage(context.Background())
	require.Equal(t, 1, s.Page())

	// С первой страницы некуда назад — страница не меняется.
	s.PrevPage(context.Background())
	require.Equal(t, 1, s.Page())
}

func TestTotalPages_NeverBelowOne(t *testing.T) {
	t.Parallel()

	r := chi.NewRouter()
	r.Get("/api/replays", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(t, w, pageOf(nil, 0, 1, 20))
	})

	s := newReplaysEnv(t, r, 20)
	require.Equal(t, 1, s.TotalPages())

	s.Fetch(context.Background())
	require.Zero(t, s.Total())
	require.Equal(t, 1, s.TotalPages())
	require.False(t, s.HasNextPage())
}

func TestClearError_Replays(t *testing.T) {
	t.Parallel()

	r := chi.NewRouter()
	r.Get("/api/replays", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"detail": "boom"}`))
	})

	s := newReplaysEnv(t, r, 20)
	s.Fetch(context.Background())
	require.NotEmpty(t, s.ErrorMessage())

	s.ClearError()
	require.Empty(t, s.ErrorMessage())
}
