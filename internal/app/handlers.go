package app

import (
	"github.com/peakform/peakform-backend/internal/handlers"
	"github.com/peakform/peakform-backend/internal/platform/logger"
)

type Handlers struct {
	Healthcheck *handlers.HealthcheckHandler
	Auth        *handlers.AuthHandler
	Programs    *handlers.ProgramsHandler
	Jobs        *handlers.JobsHandler
	Worker      *handlers.WorkerHandler
}

func wireHandlers(log *logger.Logger, serviceset Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Healthcheck: handlers.NewHealthcheckHandler(),
		Auth:        handlers.NewAuthHandler(serviceset.Auth),
		Programs:    handlers.NewProgramsHandler(serviceset.ProgramJobs),
		Jobs:        handlers.NewJobsHandler(serviceset.ProgramJobs),
		Worker:      handlers.NewWorkerHandler(log, serviceset.Runner),
	}
}
