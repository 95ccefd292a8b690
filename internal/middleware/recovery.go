package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"
)

// Recovery returns middleware that recovers from panics, logs the stack
// trace, and answers with the API's failure envelope so clients parse a
// panic like any other server error.
func Recovery() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (returnErr error) {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("panic recovered",
						slog.Any("panic", r),
						slog.String("stack", string(debug.Stack())),
						slog.String("method", c.Request().Method),
						slog.String("path", c.Request().URL.Path),
					)

					if c.Response().Committed {
						return
					}
					returnErr = c.JSON(http.StatusInternalServerError, map[string]any{
						"success": false,
						"error":   "Internal Server Error",
					})
				}
			}()

			return next(c)
		}
	}
}
