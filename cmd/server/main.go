package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/npezzotti/go-mystery/internal/api"
	"github.com/npezzotti/go-mystery/internal/config"
	"github.com/npezzotti/go-mystery/internal/database"
	"github.com/npezzotti/go-mystery/internal/game"
	"github.com/npezzotti/go-mystery/internal/logger"
	"github.com/npezzotti/go-mystery/internal/server"
	"github.com/npezzotti/go-mystery/internal/stats"
	"go.uber.org/zap"
)

var (
	addr    string
	dsn     string
	envFile string
)

func main() {
	flag.StringVar(&addr, "addr", "", "server address, overrides MYSTERY_ADDR")
	flag.StringVar(&dsn, "dsn", "", "postgres connection string, overrides MYSTERY_DATABASE_DSN")
	flag.StringVar(&envFile, "env-file", ".env", "optional file of environment variables")
	flag.Parse()

	cfg, err := config.Load(envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	cfg.Override(addr, dsn)

	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Encoding: cfg.LogEncoding})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	store := openStore(cfg, log)
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("store close", zap.Error(err))
		}
	}()

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)
	statsUpdater.Run()
	defer statsUpdater.Stop()

	svc := game.NewService(store, log, statsUpdater)
	gameServer := server.NewGameServer(log, store, svc, statsUpdater)
	srv := api.NewApp(mux, log, gameServer, svc, store, cfg)

	go gameServer.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		log.Info("received signal", zap.Stringer("signal", sig))
	case err := <-errCh:
		log.Error("server", zap.Error(err))
	}

	shutDownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		log.Error("HTTP server shutdown", zap.Error(err))
	}

	if err := gameServer.Shutdown(shutDownCtx); err != nil {
		log.Error("game server shutdown", zap.Error(err))
	}

	log.Info("shutdown complete")
}

// openStore picks the backend once for the life of the process: postgres
// when a DSN is configured and reachable, otherwise the in-memory demo store.
func openStore(cfg *config.Config, log *zap.Logger) database.Store {
	if !cfg.StoreConfigured() {
		log.Warn("no database configured, using in-memory store; state is lost on restart")
		return newMemoryStore(cfg, log)
	}

	pg, err := openPostgres(cfg, log)
	if err != nil {
		log.Warn("database unavailable, using in-memory store; state is lost on restart", zap.Error(err))
		return newMemoryStore(cfg, log)
	}
	return pg
}

func openPostgres(cfg *config.Config, log *zap.Logger) (*database.PostgresStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pg, err := database.NewPostgresStore(ctx, cfg.DatabaseDSN, log)
	if err != nil {
		return nil, err
	}

	if err := database.Migrate(pg.DB(), log); err != nil {
		pg.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return pg, nil
}

func newMemoryStore(cfg *config.Config, log *zap.Logger) *database.MemoryStore {
	return database.NewMemoryStore(log, database.MemoryStoreOptions{
		PollInterval:     cfg.PollInterval,
		ChatPollInterval: cfg.ChatPollInterval,
	})
}
