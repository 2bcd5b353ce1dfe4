package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/peakform/peakform-backend/internal/platform/envutil"
	"github.com/peakform/peakform-backend/internal/platform/logger"
	"github.com/peakform/peakform-backend/internal/taskqueue"
)

// The dispatcher is the queue's delivery half: it pops pending step
// invocations off redis and POSTs them at the worker endpoint, scheduling
// redeliveries when the worker answers 503. It runs as its own process so
// the API can scale independently of delivery.
func main() {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	redisAddr := envutil.Str("REDIS_ADDR", "localhost:6379")
	queuePrefix := envutil.Str("QUEUE_KEY_PREFIX", "peakform:stepq")
	workerURL := envutil.Str("WORKER_RUN_URL", "http://localhost:8080/internal/worker/run-step")
	workerSecret := envutil.Str("WORKER_SECRET", "")
	if workerSecret == "" {
		log.Warn("WORKER_SECRET is empty; worker will reject deliveries")
	}

	policy := taskqueue.DefaultDispatchPolicy()
	policy.MaxAttempts = envutil.Int("QUEUE_MAX_ATTEMPTS", policy.MaxAttempts)
	policy.BaseBackoff = envutil.Duration("QUEUE_BASE_BACKOFF_SECONDS", policy.BaseBackoff)
	policy.MaxBackoff = envutil.Duration("QUEUE_MAX_BACKOFF_SECONDS", policy.MaxBackoff)
	policy.AttemptTimeout = envutil.Duration("QUEUE_ATTEMPT_TIMEOUT_SECONDS", policy.AttemptTimeout)

	queue, err := taskqueue.NewRedisQueue(log, redisAddr, queuePrefix)
	if err != nil {
		log.Error("Failed to init redis queue", "error", err)
		os.Exit(1)
	}
	defer queue.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dispatcher := taskqueue.NewDispatcher(log, queue, workerURL, workerSecret, policy)
	dispatcher.Start(ctx)
	log.Info("Dispatcher running", "worker_url", workerURL, "redis_addr", redisAddr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("Shutting down dispatcher")
}
