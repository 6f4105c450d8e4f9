package api

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Zentex1337/crypto-tracker-api/internal/domain/models"
	"github.com/Zentex1337/crypto-tracker-api/internal/service/ratelimit"
	xhttp "github.com/Zentex1337/crypto-tracker-api/pkg/http"
)

// RateLimitMiddleware applies the sliding-window budget of the resolved
// identity to every request. Rejected requests do not consume budget.
// Paths in skip bypass the check (health, metrics, the socket endpoint).
func RateLimitMiddleware(limiter *ratelimit.Limiter, anon models.TierLimits, skip ...string) echo.MiddlewareFunc {
	skipped := make(map[string]struct{}, len(skip))
	for _, p := range skip {
		skipped[p] = struct{}{}
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, ok := skipped[c.Request().URL.Path]; ok {
				return next(c)
			}
			id := resolveIdentity(c)
			limit, window := id.budget(anon)

			res := limiter.Check(c.Request().Context(), id.Key, limit, window)
			h := c.Response().Header()
			h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

			if !res.Allowed {
				return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("rate limit exceeded"))
			}
			return next(c)
		}
	}
}
