package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/RichardoC/deeptok/internal/api"
	"github.com/RichardoC/deeptok/internal/config"
	"github.com/RichardoC/deeptok/internal/conversation"
	"github.com/RichardoC/deeptok/internal/db"
	"github.com/RichardoC/deeptok/internal/identity"
	"github.com/RichardoC/deeptok/internal/live"
	"github.com/RichardoC/deeptok/internal/prayer"
	"github.com/RichardoC/deeptok/internal/responder"
	"github.com/RichardoC/deeptok/web"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("failed to load configuration", zap.Error(err))
	}

	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()
	if envErr != nil {
		logger.Debug("no .env file loaded", zap.Error(envErr))
	}

	var opts []db.Option
	if cfg.RedisAddr != "" {
		ids := identity.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, "deeptok:")
		defer ids.Close()
		opts = append(opts, db.WithIdentityStore(ids))
		logger.Info("using redis identity store", zap.String("redisAddr", cfg.RedisAddr))
	}
	database := db.New(cfg.DBPath, logger.Named("db"), opts...)

	// The widget still starts without storage and reports itself unavailable.
	if err := database.Open(ctx); err != nil {
		logger.Error("chat storage unavailable",
			zap.Error(err),
			zap.String("dbPath", cfg.DBPath))
	}

	hub := live.NewHub(logger.Named("live"))
	defer hub.Close()

	prayers := prayer.New(cfg.PrayerBaseURL, cfg.PrayerTimeout, logger.Named("prayer"))
	chat := conversation.NewService(
		database,
		database.Identity(),
		responder.NewDefault(prayers),
		hub,
		conversation.Config{ReplyDelay: cfg.ReplyDelay, Assistant: cfg.AssistantName},
		logger.Named("conversation"),
	)

	handler := api.NewHandler(chat, logger.Named("api"))
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.NewRouter(handler, hub, web.Static()),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting server", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		chat.Wait()
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger(level string) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if level == "debug" {
		logger, err = zap.NewDevelopment()
	} else {
		cfg := zap.NewProductionConfig()
		if lvl, perr := zap.ParseAtomicLevel(level); perr == nil {
			cfg.Level = lvl
		}
		logger, err = cfg.Build()
	}
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
