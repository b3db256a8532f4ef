package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/trimtrack/vitals-backend/pkg/api"
	"go.uber.org/zap"
)

// HealthHandler implements the service health endpoint
type HealthHandler struct {
	pool   *pgxpool.Pool
	redis  *redis.Client
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. redis may be nil when draft
// scratch storage is not configured.
func NewHealthHandler(pool *pgxpool.Pool, redisClient *redis.Client, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		pool:   pool,
		redis:  redisClient,
		logger: logger,
	}
}

// GetHealth reports database and scratch-storage connectivity
func (h *HealthHandler) GetHealth(c *gin.Context) {
	ctx := c.Request.Context()
	checks := map[string]string{}
	healthy := true

	if err := h.pool.Ping(ctx); err != nil {
		h.logger.Error("health check failed: database unreachable", zap.Error(err))
		checks["database"] = "disconnected"
		healthy = false
	} else {
		checks["database"] = "connected"
	}

	if h.redis != nil {
		if err := h.redis.Ping(ctx).Err(); err != nil {
			h.logger.Error("health check failed: redis unreachable", zap.Error(err))
			checks["redis"] = "disconnected"
			healthy = false
		} else {
			checks["redis"] = "connected"
		}
	}

	status := "healthy"
	code := http.StatusOK
	if !healthy {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, api.HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Checks:    checks,
	})
}
