package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/marinapark/booking-backend/internal/database"
	"github.com/marinapark/booking-backend/internal/redisx"
)

// HealthHandler reports process and dependency health
type HealthHandler struct {
	db    *database.PostgresDB
	redis *redisx.Client
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(db *database.PostgresDB, redis *redisx.Client) *HealthHandler {
	return &HealthHandler{db: db, redis: redis}
}

// Health handles GET /health. Liveness only.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready handles GET /ready. Checks dependencies.
func (h *HealthHandler) Ready(c *gin.Context) {
	checks := gin.H{}
	healthy := true

	if err := h.db.HealthCheck(c.Request.Context()); err != nil {
		checks["postgres"] = err.Error()
		healthy = false
	} else {
		checks["postgres"] = "ok"
	}

	if err := h.redis.HealthCheck(c.Request.Context()); err != nil {
		checks["redis"] = err.Error()
		healthy = false
	} else {
		checks["redis"] = "ok"
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"status": checks})
}

// Metrics handles GET /metrics. Connection pool statistics for both
// backing stores.
func (h *HealthHandler) Metrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"postgres": postgresPoolMetrics(h.db.Stats()),
		"redis":    redisPoolMetrics(h.redis.Client().PoolStats()),
	})
}

func postgresPoolMetrics(s *pgxpool.Stat) gin.H {
	return gin.H{
		"total_conns":         s.TotalConns(),
		"idle_conns":          s.IdleConns(),
		"acquired_conns":      s.AcquiredConns(),
		"max_conns":           s.MaxConns(),
		"acquire_count":       s.AcquireCount(),
		"empty_acquire_count": s.EmptyAcquireCount(),
	}
}

func redisPoolMetrics(s *redis.PoolStats) gin.H {
	return gin.H{
		"total_conns": s.TotalConns,
		"idle_conns":  s.IdleConns,
		"stale_conns": s.StaleConns,
		"hits":        s.Hits,
		"misses":      s.Misses,
		"timeouts":    s.Timeouts,
	}
}
