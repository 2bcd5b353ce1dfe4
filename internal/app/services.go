package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/peakform/peakform-backend/internal/jobs"
	"github.com/peakform/peakform-backend/internal/jobs/steps"
	"github.com/peakform/peakform-backend/internal/platform/logger"
	"github.com/peakform/peakform-backend/internal/services"
	"github.com/peakform/peakform-backend/internal/taskqueue"
)

type Services struct {
	Auth        services.AuthService
	AI          services.OpenAIClient
	ProgramJobs services.ProgramJobService
	Notifier    jobs.Notifier
	Pipeline    *jobs.Pipeline
	Registry    *jobs.Registry
	Runner      *jobs.Runner
	Queue       *taskqueue.RedisQueue
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, reposet Repos) (Services, error) {
	log.Info("Wiring services...")

	queue, err := taskqueue.NewRedisQueue(log, cfg.RedisAddr, cfg.QueuePrefix)
	if err != nil {
		return Services{}, fmt.Errorf("init redis queue: %w", err)
	}

	ai, err := services.NewOpenAIClient(log, reposet.AICalls)
	if err != nil {
		return Services{}, fmt.Errorf("init openai client: %w", err)
	}

	notifier := services.NewRedisNotifier(log, queue.Client())
	pipeline := jobs.LoadPipeline(log)

	registry := jobs.NewRegistry()
	if err := steps.RegisterAll(registry, log, ai); err != nil {
		return Services{}, fmt.Errorf("register pipeline steps: %w", err)
	}

	runner := jobs.NewRunner(log, reposet.Jobs, pipeline, registry, queue, reposet.Events, notifier)

	auth := services.NewAuthService(db, log, reposet.Users, cfg.JWTSecretKey, cfg.AccessTokenTTL)
	programJobs := services.NewProgramJobService(log, reposet.Jobs, reposet.Events, pipeline, queue, notifier)

	return Services{
		Auth:        auth,
		AI:          ai,
		ProgramJobs: programJobs,
		Notifier:    notifier,
		Pipeline:    pipeline,
		Registry:    registry,
		Runner:      runner,
		Queue:       queue,
	}, nil
}
