package main

import (
	"context"
	"errors"
	"fmt"
	logg "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jaam8/polls/internal/api"
	"github.com/jaam8/polls/internal/config"
	"github.com/jaam8/polls/internal/repository"
	"github.com/jaam8/polls/internal/seed"
	srv "github.com/jaam8/polls/internal/service"
	"github.com/jaam8/polls/pkg/logger"
	"github.com/jaam8/polls/pkg/redis"
	"github.com/jaam8/polls/pkg/sqldb"
	"github.com/jaam8/polls/pkg/tarantool"
	"go.uber.org/zap"
)

type storeOpener func(ctx context.Context, cfg *config.Config, log *zap.Logger) (repository.Store, error)

func main() {
	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()

	cfg, err := config.New()
	if err != nil {
		logg.Fatalf("failed to load config: %s", err)
	}
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		logg.Fatalf("failed to initalize logger: %s", err)
	}

	err = run(ctx, cfg, log, openStore)
	_ = log.Sync()
	if err != nil {
		logg.Fatalf("%s", err)
	}
}

// run owns the store for its whole life: whatever path it returns on, the
// store is closed first.
func run(ctx context.Context, cfg *config.Config, log *zap.Logger, open storeOpener) error {
	repo, err := open(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.StoreDriver, err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			log.Error("failed to close store", zap.Error(err))
		}
	}()

	if cfg.SeedPath != "" {
		if _, err = seed.Load(ctx, cfg.SeedPath, repo, log); err != nil {
			return fmt.Errorf("failed to seed store: %w", err)
		}
	}

	service := srv.New(repo, log)
	handler := api.New(service, log)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.NewRouter(handler, log, cfg.RequestTimeout),
		ReadHeaderTimeout: cfg.RequestTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server started",
			zap.String("addr", server.Addr),
			zap.String("store", cfg.StoreDriver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown http server: %w", err)
		}
		log.Info("server graceful stopped")
		return nil
	}
}

func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (repository.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreTarantool:
		conn, err := tarantool.New(cfg.Tarantool)
		if err != nil {
			return nil, err
		}
		return repository.NewTarantool(conn, log), nil
	case config.StoreRedis:
		connectCtx, cancel := context.WithTimeout(ctx, cfg.Redis.Timeout)
		defer cancel()
		client, err := redis.New(connectCtx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		return repository.NewRedis(client, log), nil
	case config.StoreSQL:
		connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		db, err := sqldb.New(connectCtx, cfg.SQL)
		if err != nil {
			return nil, err
		}
		repo := repository.NewSQL(db, cfg.SQL.Driver, log)
		if err = repo.Migrate(connectCtx); err != nil {
			_ = repo.Close()
			return nil, err
		}
		return repo, nil
	case config.StoreMemory:
		return repository.NewMemory(log), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
