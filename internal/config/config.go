package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds settings shared by the server, the worker and the peer CLI.
type Config struct {
	Port     string
	LogLevel slog.Level

	RedisAddr     string
	JobStream     string
	WorkerGroup   string
	ResultChannel string

	WorkerConcurrency int
	RecoveryInterval  time.Duration
	RecoveryMinIdle   time.Duration

	RateLimit   float64
	RateBurst   float64
	ExecuteWait time.Duration

	ExecutorURL    string
	AllowedOrigins []string
}

// Load reads a .env file if one exists, then the environment. Unset variables
// take their defaults; malformed ones are an error.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	}

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		LogLevel:       parseLevel(os.Getenv("LOG_LEVEL")),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		JobStream:      getEnv("JOB_STREAM", "coderoom:jobs"),
		WorkerGroup:    getEnv("WORKER_GROUP", "coderoom:workers"),
		ResultChannel:  getEnv("RESULT_CHANNEL", "coderoom:results"),
		ExecutorURL:    getEnv("EXECUTOR_URL", "https://emkc.org/api/v2/piston/execute"),
		AllowedOrigins: strings.Fields(getEnv("ALLOWED_ORIGINS", "*")),
	}

	var err error
	if cfg.WorkerConcurrency, err = getInt("WORKER_CONCURRENCY", 4); err != nil {
		return nil, err
	}
	if cfg.RateLimit, err = getFloat("RATE_LIMIT", 0.5); err != nil {
		return nil, err
	}
	if cfg.RateBurst, err = getFloat("RATE_BURST", 5); err != nil {
		return nil, err
	}
	if cfg.ExecuteWait, err = getDuration("EXECUTE_WAIT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.RecoveryInterval, err = getDuration("RECOVERY_INTERVAL", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.RecoveryMinIdle, err = getDuration("RECOVERY_MIN_IDLE", 2*time.Minute); err != nil {
		return nil, err
	}

	if cfg.WorkerConcurrency < 1 {
		return nil, fmt.Errorf("WORKER_CONCURRENCY must be at least 1, got %d", cfg.WorkerConcurrency)
	}
	if cfg.RateLimit <= 0 || cfg.RateBurst < 1 {
		return nil, fmt.Errorf("RATE_LIMIT must be positive and RATE_BURST at least 1")
	}

	return cfg, nil
}

// SetupLogger installs a text slog handler on stdout at the given level.
func SetupLogger(level slog.Level) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func getFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return f, nil
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}
