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

	"github.com/dontdude/coderoom/internal/config"
	"github.com/dontdude/coderoom/internal/gateway"
	"github.com/dontdude/coderoom/internal/platform/docker"
	"github.com/dontdude/coderoom/internal/platform/queue"
	"github.com/dontdude/coderoom/internal/platform/web"
	"github.com/dontdude/coderoom/internal/protocol"
	"github.com/dontdude/coderoom/internal/session"
)

type application struct {
	cfg      *config.Config
	registry *session.Registry
	handler  *protocol.Handler
	// gateway is nil when Redis is unavailable; the execution API then answers 503.
	gateway *gateway.Gateway
	limiter *web.RateLimiter
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	config.SetupLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := session.NewRegistry()
	app := &application{
		cfg:      cfg,
		registry: registry,
		handler:  protocol.NewHandler(registry, session.NewBroadcaster(registry)),
		limiter:  web.NewRateLimiter(ctx, cfg.RateLimit, cfg.RateBurst),
	}

	redisQ, err := queue.NewRedisQueue(cfg.RedisAddr, cfg.JobStream, cfg.WorkerGroup, cfg.ResultChannel)
	if err != nil {
		slog.Warn("execution gateway disabled", "error", err)
	} else {
		defer redisQ.Close()
		gw := gateway.New(redisQ, docker.Runtimes(), cfg.ExecuteWait)
		if err := gw.Start(ctx); err != nil {
			slog.Error("failed to start execution gateway", "error", err)
			os.Exit(1)
		}
		app.gateway = gw
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           app.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", cfg.Port, "gateway", app.gateway != nil)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	slog.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}
