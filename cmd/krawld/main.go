package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/jlescarlan11/project-krawl-sub003/internal/config"
	"github.com/jlescarlan11/project-krawl-sub003/internal/db"
	"github.com/jlescarlan11/project-krawl-sub003/internal/server"
	"github.com/jlescarlan11/project-krawl-sub003/internal/trail"
)

var mainDepsProvider = defaultDeps
var mainRunner = realMain

func main() {
	mainRunner(mainDepsProvider())
}

type mainDeps struct {
	loadConfig      func() config.Config
	connectPostgres func(config.Config) (*pgxpool.Pool, error)
	connectRedis    func(config.Config) *redis.Client
	notify          func(chan<- os.Signal, ...os.Signal)
	run             func(context.Context, config.Config, *pgxpool.Pool, *redis.Client, <-chan os.Signal, ListenFunc) error
}

func defaultDeps() mainDeps {
	return mainDeps{
		loadConfig:      config.Load,
		connectPostgres: db.ConnectPostgres,
		connectRedis:    db.ConnectRedis,
		notify:          signal.Notify,
		run:             Run,
	}
}

func realMain(deps mainDeps) {
	cfg := deps.loadConfig()

	pg, err := deps.connectPostgres(cfg)
	if err != nil {
		log.Printf("postgres connection failed: %v", err)
	}

	rdb := deps.connectRedis(cfg)

	signals := make(chan os.Signal, 1)
	deps.notify(signals, syscall.SIGINT, syscall.SIGTERM)

	if err := deps.run(context.Background(), cfg, pg, rdb, signals, nil); err != nil {
		log.Printf("server exited with error: %v", err)
	}
}

type ListenFunc func(app *fiber.App, addr string) error

var defaultListen ListenFunc = func(app *fiber.App, addr string) error {
	return app.Listen(addr)
}

var shutdownFn = func(app *fiber.App, ctx context.Context) error {
	return app.ShutdownWithContext(ctx)
}

// newTrailStore picks the trail backend. An unusable choice falls back to
// memory so the engine keeps running without persistence.
func newTrailStore(cfg config.Config, pg *pgxpool.Pool, rdb *redis.Client) trail.Store {
	switch cfg.TrailBackend {
	case "postgres":
		if pg != nil {
			return trail.NewPostgresStore(pg)
		}
		log.Printf("trail backend postgres unavailable, using memory")
	case "redis":
		if rdb != nil {
			return trail.NewRedisStore(rdb)
		}
		log.Printf("trail backend redis unavailable, using memory")
	}
	return trail.NewMemoryStore()
}

// Run starts the gateway and waits for termination signals.
func Run(ctx context.Context, cfg config.Config, pg *pgxpool.Pool, rdb *redis.Client, signals <-chan os.Signal, listen ListenFunc) error {
	store := newTrailStore(cfg, pg, rdb)

	if days := cfg.TrailRetainDays; days > 0 {
		// Opportunistic cleanup of stale trails; never blocks startup.
		go store.PruneOlderThan(context.Background(), days)
	}

	srv := server.NewServer(cfg, pg, rdb, store, nil)

	if listen == nil {
		listen = defaultListen
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- listen(srv.App, cfg.ServerPort)
	}()

	select {
	case <-signals:
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	srv.Krawl.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := shutdownFn(srv.App, shutdownCtx); err != nil {
		return err
	}
	if pg != nil {
		pg.Close()
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	return nil
}
