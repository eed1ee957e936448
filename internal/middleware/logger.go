package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"servicemarket/internal/domain"
	"servicemarket/internal/metrics"
	"servicemarket/internal/pkg/response"
)

// ErrorLogger logs failed requests, recovers from panics and counts requests per route.
func ErrorLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		defer func() {
			if recovered := recover(); recovered != nil {
				err := fmt.Errorf("%v", recovered)
				logRequestError(log, c, start, "panic", err.Error()).
					Str("stack", string(debug.Stack())).
					Msg("request panicked")
				response.Abort(c, http.StatusInternalServerError, domain.CodeInternal, "Internal server error")
			}

			route := c.FullPath()
			if route == "" {
				route = "unmatched"
			}
			metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()

			if len(c.Errors) == 0 {
				if c.Writer.Status() >= http.StatusInternalServerError {
					logRequestError(log, c, start, "http_error", fmt.Sprintf("status=%d", c.Writer.Status())).Msg("request failed")
				}
				return
			}

			for _, err := range c.Errors {
				ev := logRequestError(log, c, start, fmt.Sprintf("%v", err.Type), err.Error())
				if err.Meta != nil {
					ev = ev.Interface("meta", err.Meta)
				}
				ev.Msg("request failed")
			}
		}()

		c.Next()
	}
}

func logRequestError(log zerolog.Logger, c *gin.Context, start time.Time, errType string, message string) *zerolog.Event {
	return log.Error().
		Str("type", errType).
		Int("status", c.Writer.Status()).
		Str("method", c.Request.Method).
		Str("path", c.Request.URL.Path).
		Str("query", c.Request.URL.RawQuery).
		Str("client_ip", c.ClientIP()).
		Int64("user_id", c.GetInt64(ctxUserID)).
		Str("role", c.GetString(ctxRole)).
		Str("request_id", requestID(c)).
		Dur("latency", time.Since(start)).
		Str("error", message)
}

func requestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = c.GetHeader("X-Request-Id")
	}
	return requestID
}
