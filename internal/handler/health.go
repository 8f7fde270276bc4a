package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BrokerConn is satisfied by *amqp.Connection.
type BrokerConn interface {
	IsClosed() bool
}

type HealthHandler struct {
	db          Pinger
	redisClient *redis.Client
	broker      BrokerConn
}

// NewHealthHandler reports on db and redis. broker may be nil when event
// publishing is disabled.
func NewHealthHandler(db Pinger, redisClient *redis.Client, broker BrokerConn) *HealthHandler {
	return &HealthHandler{db: db, redisClient: redisClient, broker: broker}
}

func (h *HealthHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HealthHandler) Readyz(c *gin.Context) {
	ctx := c.Request.Context()

	if err := h.db.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "postgres": "unavailable"})
		return
	}
	if err := h.redisClient.Ping(ctx).Err(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "redis": "unavailable"})
		return
	}

	resp := gin.H{"status": "ok", "postgres": "connected", "redis": "connected", "rabbitmq": "disabled"}
	if h.broker != nil {
		if h.broker.IsClosed() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "rabbitmq": "unavailable"})
			return
		}
		resp["rabbitmq"] = "connected"
	}
	c.JSON(http.StatusOK, resp)
}
