package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/peakform/peakform-backend/internal/handlers"
	"github.com/peakform/peakform-backend/internal/middleware"
)

type RouterConfig struct {
	HealthcheckHandler *handlers.HealthcheckHandler
	AuthHandler        *handlers.AuthHandler
	ProgramsHandler    *handlers.ProgramsHandler
	JobsHandler        *handlers.JobsHandler
	WorkerHandler      *handlers.WorkerHandler
	AuthMiddleware     *middleware.AuthMiddleware
	WorkerMiddleware   *middleware.WorkerAuthMiddleware
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()
	router.Use(otelgin.Middleware("peakform-backend"))

	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
			"http://localhost:5174",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	// Public
	router.GET("/healthcheck", cfg.HealthcheckHandler.Healthcheck)
	api := router.Group("/api")
	{
		api.POST("/register", cfg.AuthHandler.Register)
		api.POST("/login", cfg.AuthHandler.Login)
	}

	// Protected
	protected := router.Group("/api")
	protected.Use(cfg.AuthMiddleware.RequireAuth())
	{
		protected.POST("/programs/generate", cfg.ProgramsHandler.Generate)
		protected.GET("/jobs/:id", cfg.JobsHandler.GetJobByID)
		protected.GET("/jobs/:id/events", cfg.JobsHandler.GetJobEvents)
	}

	// Internal, shared-secret only
	internal := router.Group("/internal")
	internal.Use(cfg.WorkerMiddleware.RequireWorkerSecret())
	{
		internal.POST("/worker/run-step", cfg.WorkerHandler.RunStep)
	}

	return router
}
