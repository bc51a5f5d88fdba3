// Package middleware provides HTTP middleware for the Supply Gate backend.
// ratelimit.go implements a per-IP rate limiter using a fixed-window counter
// in Redis, so limits hold across replicas. Applied to the credential-bearing
// auth endpoints (login, 2FA verify/resend, password reset, refresh).
package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// RateLimit returns middleware that limits requests per IP to maxRequests
// within the given window. The counter key is scoped to the matched route so
// each endpoint gets an independent budget. Returns 429 when exceeded.
//
// The limiter fails open: if Redis is unreachable the request proceeds and
// the error is logged. Locking an outage into a denial of auth service would
// be worse than briefly losing brute-force protection.
func RateLimit(rdb *redis.Client, maxRequests int, window time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			key := fmt.Sprintf("ratelimit:%s:%s", c.Path(), c.RealIP())

			count, err := rdb.Incr(ctx, key).Result()
			if err != nil {
				slog.Warn("rate limiter unavailable, allowing request",
					slog.String("key", key),
					slog.Any("error", err),
				)
				return next(c)
			}

			// First hit in a window starts the expiry clock. EXPIRE NX keeps
			// the window fixed even if this INCR raced another request.
			if count == 1 {
				if err := rdb.Expire(ctx, key, window).Err(); err != nil {
					slog.Warn("setting rate limit window failed",
						slog.String("key", key),
						slog.Any("error", err),
					)
				}
			}

			if count > int64(maxRequests) {
				return c.JSON(http.StatusTooManyRequests, map[string]string{
					"error":   "Too Many Requests",
					"message": "Rate limit exceeded. Please try again later.",
				})
			}

			return next(c)
		}
	}
}
