package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RateLimiter allows limit requests per client IP per period, counted in Redis
// under prefix. A nil client or a Redis error lets the request through.
func RateLimiter(client *redis.Client, prefix string, limit int64, period time.Duration, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if client == nil {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		key := "rate_limit:" + prefix + ":" + c.ClientIP()

		count, err := client.Incr(ctx, key).Result()
		if err != nil {
			logger.WarnContext(ctx, "rate limiter unavailable", "error", err)
			c.Next()
			return
		}
		if count == 1 {
			client.Expire(ctx, key, period)
		}

		if count > limit {
			if ttl, err := client.TTL(ctx, key).Result(); err == nil && ttl > 0 {
				c.Header("Retry-After", formatSeconds(ttl))
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}

		c.Next()
	}
}

func formatSeconds(d time.Duration) string {
	secs := int64(d.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}
