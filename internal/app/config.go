package app

import (
	"time"

	"github.com/peakform/peakform-backend/internal/platform/envutil"
	"github.com/peakform/peakform-backend/internal/platform/logger"
	"github.com/peakform/peakform-backend/internal/taskqueue"
)

type Config struct {
	Environment    string
	Version        string
	JWTSecretKey   string
	AccessTokenTTL time.Duration

	RedisAddr   string
	QueuePrefix string

	WorkerSecret string
	WorkerRunURL string
	QueuePolicy  taskqueue.DispatchPolicy
}

func LoadConfig(log *logger.Logger) Config {
	policy := taskqueue.DefaultDispatchPolicy()
	policy.MaxAttempts = envutil.Int("QUEUE_MAX_ATTEMPTS", policy.MaxAttempts)
	policy.BaseBackoff = envutil.Duration("QUEUE_BASE_BACKOFF_SECONDS", policy.BaseBackoff)
	policy.MaxBackoff = envutil.Duration("QUEUE_MAX_BACKOFF_SECONDS", policy.MaxBackoff)
	policy.AttemptTimeout = envutil.Duration("QUEUE_ATTEMPT_TIMEOUT_SECONDS", policy.AttemptTimeout)

	cfg := Config{
		Environment:    envutil.Str("ENVIRONMENT", "development"),
		Version:        envutil.Str("SERVICE_VERSION", "dev"),
		JWTSecretKey:   envutil.Str("JWT_SECRET_KEY", "defaultsecret"),
		AccessTokenTTL: envutil.Duration("ACCESS_TOKEN_TTL", time.Hour),
		RedisAddr:      envutil.Str("REDIS_ADDR", "localhost:6379"),
		QueuePrefix:    envutil.Str("QUEUE_KEY_PREFIX", "peakform:stepq"),
		WorkerSecret:   envutil.Str("WORKER_SECRET", ""),
		WorkerRunURL:   envutil.Str("WORKER_RUN_URL", "http://localhost:8080/internal/worker/run-step"),
		QueuePolicy:    policy,
	}
	if cfg.WorkerSecret == "" {
		log.Warn("WORKER_SECRET is empty; worker endpoint will reject all deliveries")
	}
	return cfg
}
