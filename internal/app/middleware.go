package app

import (
	"github.com/peakform/peakform-backend/internal/middleware"
	"github.com/peakform/peakform-backend/internal/platform/logger"
)

type Middleware struct {
	Auth   *middleware.AuthMiddleware
	Worker *middleware.WorkerAuthMiddleware
}

func wireMiddleware(log *logger.Logger, cfg Config, serviceset Services) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Auth:   middleware.NewAuthMiddleware(log, serviceset.Auth),
		Worker: middleware.NewWorkerAuthMiddleware(log, cfg.WorkerSecret),
	}
}
