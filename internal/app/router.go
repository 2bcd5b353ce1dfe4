package app

import (
	"github.com/gin-gonic/gin"

	"github.com/peakform/peakform-backend/internal/server"
)

func wireRouter(handlerset Handlers, middlewareset Middleware) *gin.Engine {
	return server.NewRouter(server.RouterConfig{
		HealthcheckHandler: handlerset.Healthcheck,
		AuthHandler:        handlerset.Auth,
		ProgramsHandler:    handlerset.Programs,
		JobsHandler:        handlerset.Jobs,
		WorkerHandler:      handlerset.Worker,
		AuthMiddleware:     middlewareset.Auth,
		WorkerMiddleware:   middlewareset.Worker,
	})
}
