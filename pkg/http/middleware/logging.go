package middleware

import (
	"log"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestLogging logs HTTP requests. Paths in skip are not logged;
// health checks and websocket upgrades would otherwise dominate the
// output.
func RequestLogging(skip ...string) echo.MiddlewareFunc {
	skipped := make(map[string]struct{}, len(skip))
	for _, p := range skip {
		skipped[p] = struct{}{}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			res := c.Response()
			start := time.Now()

			err := next(c)

			if _, ok := skipped[c.Path()]; ok {
				return err
			}

			user := req.Header.Get("X-User-ID")
			if user == "" {
				user = "-"
			}

			log.Printf("[%s] %s %s user=%s - %d (%s)",
				req.Method,
				req.RequestURI,
				c.RealIP(),
				user,
				res.Status,
				time.Since(start),
			)

			return err
		}
	}
}
