package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dontdude/coderoom/internal/config"
	"github.com/dontdude/coderoom/internal/domain"
	"github.com/dontdude/coderoom/internal/platform/docker"
	"github.com/dontdude/coderoom/internal/platform/queue"
	"github.com/dontdude/coderoom/internal/worker"
)

func main() {
	selfTest := flag.Bool("self-test", false, "run a python hello world in the sandbox and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	config.SetupLogger(cfg.LogLevel)
	slog.Info("Starting coderoom worker...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dockerClient, err := docker.NewClient(ctx)
	if err != nil {
		slog.Error("Docker unavailable", "error", err)
		os.Exit(1)
	}
	defer dockerClient.Close()

	if *selfTest {
		os.Exit(runSelfTest(ctx, dockerClient))
	}

	redisQ, err := queue.NewRedisQueue(cfg.RedisAddr, cfg.JobStream, cfg.WorkerGroup, cfg.ResultChannel)
	if err != nil {
		slog.Error("Redis unavailable", "error", err)
		os.Exit(1)
	}
	defer redisQ.Close()

	jobs, err := redisQ.Subscribe(ctx)
	if err != nil {
		slog.Error("Failed to subscribe to jobs", "error", err)
		os.Exit(1)
	}

	pool := worker.NewPool(cfg.WorkerConcurrency, dockerClient, redisQ)
	pool.Start()

	recovered := make(chan struct{})
	go func() {
		defer close(recovered)
		redisQ.StartRecoveryRoutine(ctx, cfg.RecoveryInterval, cfg.RecoveryMinIdle, pool.Submit)
	}()

	// Returns once the subscription closes on shutdown.
	pool.Consume(jobs)
	<-recovered
	pool.Stop()
	slog.Info("Worker exited")
}

// runSelfTest runs a known program through the sandbox and returns the exit status.
func runSelfTest(ctx context.Context, sandbox domain.Sandbox) int {
	// Generous deadline to allow for cold image pulls.
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	slog.Info("Running verification task...")
	resp, err := sandbox.Run(ctx, domain.ServiceRequest{
		Language: "python",
		Version:  "*",
		Files:    []domain.ServiceFile{{Name: "main.py", Content: "print('Hello from coderoom - Verified!')"}},
	})
	if err != nil {
		slog.Error("Verification failed", "error", err)
		return 1
	}
	if resp.Run == nil || resp.Run.Code == nil || *resp.Run.Code != 0 {
		slog.Error("Verification program did not exit cleanly", "response", resp)
		return 1
	}

	slog.Info("Execution finished successfully", "output", resp.Run.Output)
	return 0
}
