// replayctl — консольный клиент replay-API поверх SDK: сессия с
// прозрачным refresh, сторы реплеев и статистики.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nachos-replay/replay-client/internal/config"
	"github.com/nachos-replay/replay-client/internal/models"
	"github.com/nachos-replay/replay-client/internal/session"
	"github.com/nachos-replay/replay-client/internal/storage/file"
	"github.com/nachos-replay/replay-client/internal/store"
	"github.com/nachos-replay/replay-client/internal/transport"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	// .env — удобство локального запуска; отсутствие файла не ошибка.
	_ = godotenv.Load()

	cfg := config.MustLoad(configPath)

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)

	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer rootCancel()

	st, err := file.New(cfg.Credentials.Path)
	if err != nil {
		log.Error("credentials_store_init_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}

	tr, err := transport.New(cfg.API, log)
	if err != nil {
		log.Error("transport_init_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}

	sess := session.New(tr, st)
	tr.SetTokenSource(sess)

	replays := store.NewReplays(tr, cfg.Replays.PageSize)
	stats := store.NewStats(tr)

	if cfg.Metrics.Enabled() {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())

			srv := &http.Server{
				Addr:              cfg.Metrics.Addr(),
				Handler:           mux,
				ReadHeaderTimeout: 5 * time.Second,
			}

			if err := srv.ListenAndServe(); err != nil {
				log.Warn("metrics_serve_failed", slog.String("err", err.Error()))
			}
		}()
	}

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	sess.Init(rootCtx)

	if err := run(rootCtx, args, sess, replays, stats); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, sess *session.Manager, replays *store.ReplaysStore, stats *store.StatsStore) error {
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "login":
		return cmdLogin(ctx, rest, sess)
	case "logout":
		sess.Logout(ctx)
		fmt.Println("logged out")
		return nil
	case "whoami":
		return cmdWhoami(sess)
	case "list":
		return cmdList(ctx, rest, replays)
	case "get":
		return cmdGet(ctx, rest, replays)
	case "delete":
		return cmdDelete(ctx, rest, replays)
	case "upload":
		return cmdUpload(ctx, rest, replays)
	case "stats":
		return cmdStats(ctx, stats)
	case "locale":
		return cmdLocale(rest, sess)
	default:
		usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdLogin(ctx context.Context, args []string, sess *session.Manager) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	username := fs.String("u", "", "username")
	password := fs.String("p", "", "password")
	_ = fs.Parse(args)

	if *username == "" || *password == "" {
		return fmt.Errorf("login requires -u and -p")
	}

	if !sess.Login(ctx, *username, *password) {
		return fmt.Errorf("%s", sess.ErrorMessage())
	}

	fmt.Printf("logged in as %s (role %s)\n", sess.DisplayName(), sess.Role())

	return nil
}

func cmdWhoami(sess *session.Manager) error {
	if !sess.IsAuthenticated() {
		return fmt.Errorf("not authenticated")
	}

	u := sess.User()
	fmt.Printf("%s\t%s\t%s\n", u.Username, u.DisplayName, u.Role)

	return nil
}

func cmdList(ctx context.Context, args []string, replays *store.ReplaysStore) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	page := fs.Int("page", 1, "page number")
	query := fs.String("query", "", "free-text query")
	username := fs.String("username", "", "filter by username")
	status := fs.String("status", "", "filter by status")
	_ = fs.Parse(args)

	replays.SetFilters(patchFromFlags(*query, *username, *status))
	replays.Fetch(ctx)

	if msg := replays.ErrorMessage(); msg != "" {
		return fmt.Errorf("%s", msg)
	}

	if *page > 1 {
		replays.GoToPage(ctx, *page)

		if msg := replays.ErrorMessage(); msg != "" {
			return fmt.Errorf("%s", msg)
		}
	}

	for _, r := range replays.Items() {
		fmt.Printf("%s\t%s\t%s\t%s\n", r.ID, r.SessionName, r.OwnerUsername, r.Status)
	}
	fmt.Printf("page %d/%d, total %d\n", replays.Page(), replays.TotalPages(), replays.Total())

	return nil
}

func patchFromFlags(query, username, status string) models.ReplayFilterPatch {
	p := models.ReplayFilterPatch{}
	if query != "" {
		p.Query = &query
	}
	if username != "" {
		p.Username = &username
	}
	if status != "" {
		p.Status = &status
	}

	return p
}

func cmdGet(ctx context.Context, args []string, replays *store.ReplaysStore) error {
	if len(args) != 1 {
		return fmt.Errorf("get requires a replay id")
	}

	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("bad replay id: %w", err)
	}

	r := replays.FetchOne(ctx, id)
	if r == nil {
		return fmt.Errorf("%s", replays.ErrorMessage())
	}

	fmt.Printf("%s\t%s\t%d bytes\t%ds\t%s\n", r.ID, r.Filename, r.FileSize, r.DurationSeconds, r.Status)
	fmt.Println("stream:", replays.StreamURL(r.ID))

	return nil
}

func cmdDelete(ctx context.Context, args []string, replays *store.ReplaysStore) error {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	hard := fs.Bool("hard", false, "permanently delete the file")
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		return fmt.Errorf("delete requires a replay id")
	}

	id, err := uuid.Parse(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("bad replay id: %w", err)
	}

	if !replays.Delete(ctx, id, *hard) {
		return fmt.Errorf("%s", replays.ErrorMessage())
	}

	fmt.Println("deleted", id)

	return nil
}

func cmdUpload(ctx context.Context, args []string, replays *store.ReplaysStore) error {
	if len(args) != 1 {
		return fmt.Errorf("upload requires a file path")
	}

	content, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	r, err := replays.Upload(ctx, filepath.Base(args[0]), content, func(pct int) {
		fmt.Printf("\rupload: %d%%", pct)
	})
	fmt.Println()

	if err != nil {
		return err
	}

	fmt.Println("uploaded", r.ID)

	return nil
}

func cmdStats(ctx context.Context, stats *store.StatsStore) error {
	stats.FetchAll(ctx)

	if msg := stats.ErrorMessage(); msg != "" {
		return fmt.Errorf("%s", msg)
	}

	o := stats.Overview()
	fmt.Printf("replays: %d (today %d, week %d)\n", o.TotalReplays, o.ReplaysToday, o.ReplaysThisWeek)
	fmt.Printf("users: %d, active sessions: %d, storage: %d bytes\n", o.TotalUsers, o.ActiveSessions, o.TotalStorageBytes)

	for _, u := range stats.TopUsers() {
		fmt.Printf("top\t%s\t%d\n", u.Username, u.ReplayCount)
	}

	return nil
}

func cmdLocale(args []string, sess *session.Manager) error {
	if len(args) == 0 {
		fmt.Println(sess.Locale())
		return nil
	}

	return sess.SetLocale(args[0])
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: replayctl [-config path] <command>

commands:
  login -u <user> -p <pass>   authenticate and persist the token pair
  logout                      drop the session locally and server-side
  whoami                      show the authenticated user
  list [-page N] [-query S] [-username S] [-status S]
  get <id>                    show one replay and its stream URL
  delete [-hard] <id>         delete a replay
  upload <path>               upload a replay file with progress
  stats                       dashboard statistics
  locale [value]              get or set the persisted UI locale`)
}

func setupLogger(env string) *slog.Logger {
	switch env {
	case envLocal:
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envDev:
		return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envProd:
		return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
}
