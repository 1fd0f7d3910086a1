package server

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v5"
)

// HeaderRequestID is the request correlation header.
const HeaderRequestID = "X-Request-ID"

// defaultBodyLimit caps request bodies at 1MB unless configured otherwise.
const defaultBodyLimit int64 = 1 << 20

// RequestIDMiddleware honors a client-provided X-Request-ID and generates a
// UUID when the header is missing. The ID is echoed on the response.
func RequestIDMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			rid := c.Request().Header.Get(HeaderRequestID)
			if rid == "" {
				rid = uuid.NewString()
			}
			c.Response().Header().Set(HeaderRequestID, rid)
			return next(c)
		}
	}
}

// RequestLoggerMiddleware emits one structured log line per request.
func RequestLoggerMiddleware(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			start := time.Now()
			err := next(c)

			req := c.Request()
			status := 0
			if resp, respErr := echo.UnwrapResponse(c.Response()); respErr == nil {
				status = resp.Status
			}
			attrs := []any{
				"method", req.Method,
				"path", req.URL.Path,
				"status", status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", c.Response().Header().Get(HeaderRequestID),
			}
			if err != nil {
				attrs = append(attrs, "error", err)
				logger.Error("request", attrs...)
				return err
			}
			logger.Info("request", attrs...)
			return nil
		}
	}
}

// BodyLimitMiddleware rejects request bodies larger than limit bytes with
// 413. Bodies without a declared length are capped while being read.
func BodyLimitMiddleware(limit int64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			req := c.Request()
			if req.ContentLength > limit {
				return c.JSON(http.StatusRequestEntityTooLarge, map[string]interface{}{
					"error": map[string]interface{}{
						"type":    "validation_error",
						"message": "request body too large",
					},
				})
			}
			req.Body = http.MaxBytesReader(c.Response(), req.Body, limit)
			return next(c)
		}
	}
}

// parseBodyLimit converts a human-readable size such as "1M" or "512K" into
// bytes. Empty or unparseable values fall back to the 1MB default.
func parseBodyLimit(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultBodyLimit
	}

	mult := int64(1)
	switch s[len(s)-1] {
	case 'K', 'k':
		mult = 1 << 10
		s = s[:len(s)-1]
	case 'M', 'm':
		mult = 1 << 20
		s = s[:len(s)-1]
	case 'G', 'g':
		mult = 1 << 30
		s = s[:len(s)-1]
	}

	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n <= 0 {
		return defaultBodyLimit
	}
	return n * mult
}
