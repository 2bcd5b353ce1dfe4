package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/peakform/peakform-backend/internal/platform/logger"
	"github.com/peakform/peakform-backend/internal/taskqueue"
)

// WorkerAuthMiddleware guards the internal step endpoint with the shared
// secret the dispatcher stamps on every delivery. A 401 here is final: the
// dispatcher only retries 503s, so a misconfigured secret surfaces as dropped
// deliveries in the logs rather than a retry storm.
type WorkerAuthMiddleware struct {
	log    *logger.Logger
	secret string
}

func NewWorkerAuthMiddleware(log *logger.Logger, secret string) *WorkerAuthMiddleware {
	return &WorkerAuthMiddleware{
		log:    log.With("middleware", "WorkerAuthMiddleware"),
		secret: secret,
	}
}

func (wm *WorkerAuthMiddleware) RequireWorkerSecret() gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(taskqueue.WorkerSecretHeader)
		if wm.secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(wm.secret)) != 1 {
			wm.log.Warn("Rejected worker call with bad secret", "path", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
