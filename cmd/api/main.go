package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/foundernet/engine/internal/api"
	"github.com/foundernet/engine/internal/api/handlers"
	"github.com/foundernet/engine/internal/app"
	"github.com/foundernet/engine/pkg/config"
	"github.com/foundernet/engine/pkg/logger"
)

func main() {
	cfg := config.MustLoad()

	log, err := logger.Init(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	log.Info("starting founder API",
		zap.String("env", cfg.AppEnv),
		zap.String("addr", cfg.HTTPAddr),
	)

	ctx := context.Background()
	a, err := app.Open(ctx, cfg)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer a.Close()

	if err := a.Bucket.Verify(); err != nil {
		log.Fatal("avatar bucket missing; run migrate first", zap.Error(err))
	}

	// Sign-ups whose provisioning cannot finish inline are handed to the worker.
	queue := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	defer queue.Close()

	router := api.NewRouter(api.Dependencies{
		Verifier: a.Identities,
		AuthHandler: handlers.NewAuthHandler(a.Identities, a.Provisioner, queue, handlers.AuthOptions{
			ProvisionTimeout: cfg.ProvisionTimeout,
			TokenTTL:         cfg.TokenTTL,
		}),
		FoundersHandler: handlers.NewFoundersHandler(a.Identities, a.Provisioner, a.Profiles, a.Avatars),
		HealthHandler: handlers.NewHealthHandler(map[string]handlers.Check{
			"database": a.Ping,
			"bucket":   func(context.Context) error { return a.Bucket.Verify() },
		}),
		AvatarDir: a.Bucket.Dir(),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server starting", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-errCh:
		log.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", zap.Error(err))
	} else {
		log.Info("server exited gracefully")
	}
}
