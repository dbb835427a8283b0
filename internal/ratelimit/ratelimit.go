package ratelimit

import (
	"context"
	"net/http"
	"time"

	"payment-service/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Counter is the fixed-window counter backing the limiter, implemented by
// the Redis client.
type Counter interface {
	IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, error)
}

// Limiter enforces a fixed-window request ceiling per user and route,
// before any reconciliation work begins.
type Limiter struct {
	counter Counter
	window  time.Duration
	max     int64
	logger  *zap.Logger
}

func NewLimiter(counter Counter, window time.Duration, max int64) *Limiter {
	return &Limiter{
		counter: counter,
		window:  window,
		max:     max,
		logger:  util.GetLogger(),
	}
}

// Middleware returns a gin middleware keyed on the authenticated user and
// the route path. A limiter backend failure opens the gate: reconciliation
// correctness never depends on the limiter.
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("user_id")
		key := userID + ":" + c.FullPath()

		count, err := l.counter.IncrementWindow(c.Request.Context(), key, l.window)
		if err != nil {
			l.logger.Warn("Rate limiter unavailable, allowing request", zap.Error(err))
			c.Next()
			return
		}

		if count > l.max {
			util.RateLimitedTotal.WithLabelValues(c.FullPath()).Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Too many requests, slow down",
			})
			return
		}

		c.Next()
	}
}
