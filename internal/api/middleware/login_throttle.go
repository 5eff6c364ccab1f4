package middleware

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"trackmyteam/internal/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// Limiter 按 key 判定是否放行。
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
}

// LoginThrottle 按客户端 IP 限制登录频率。
//
// Redis 不可用时放行，登录接口不因限流组件故障而不可用。
func LoginThrottle(limiter Limiter, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		allowed, retryAfter, err := limiter.Allow(ctx, "login:"+c.ClientIP())
		if err != nil {
			if logger != nil {
				logger.Warn("login throttle unavailable", slog.String("error", err.Error()))
			}
			c.Next()
			return
		}
		if !allowed {
			metrics.LoginThrottledTotal.Inc()
			seconds := int(math.Ceil(retryAfter.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many login attempts"})
			return
		}
		c.Next()
	}
}
