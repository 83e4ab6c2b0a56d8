package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/relves/groupsync/internal/config"
	"github.com/relves/groupsync/internal/storage/sqlite"
	"github.com/relves/groupsync/pkg/group"
	"github.com/relves/groupsync/pkg/lifecycle"
	"github.com/relves/groupsync/pkg/server"
)

func main() {
	cfg, err := config.Load(getEnv("GROUPSYNC_CONFIG", "groupsync.yml"))
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	logger := slog.New(handler)
	slog.SetDefault(logger)

	identity, err := group.LoadOrCreateIdentity(cfg.DataPath)
	if err != nil {
		logger.Error("failed to load identity", "error", err)
		os.Exit(1)
	}
	logger.Info("replica identity ready", "memberID", identity.MemberID())

	storeManager := sqlite.NewStoreManager(cfg.DataPath)
	defer storeManager.CloseAll()

	engine := lifecycle.NewEngine(lifecycle.WithSink(lifecycle.SlogSink{Logger: logger}))

	service, err := group.NewService(group.ServiceConfig{
		Stores:   storeManager,
		Engine:   engine,
		Identity: identity,
		Logger:   logger,
	})
	if err != nil {
		logger.Error("failed to create group service", "error", err)
		os.Exit(1)
	}

	httpHandler, err := server.NewServer(
		server.WithService(service),
		server.WithLogger(logger),
	)
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: httpHandler,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", "addr", cfg.ListenAddr, "dataPath", cfg.DataPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
