package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/smallbiznis/hera/internal/orgcontext"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	RequestIDHeader = "X-Request-Id"

	// ActionKey is the gin context key under which RPC handlers record the
	// action they dispatched (CREATE, TRANSITION_STATUS, POST_DAILY, ...).
	ActionKey = "rpc_action"
)

const (
	outcomeOK       = "ok"
	outcomeRejected = "rejected"
	outcomeFailed   = "failed"
)

// MiddlewareConfig controls RPC request logging.
type MiddlewareConfig struct {
	Debug bool
	// ErrorClassifier maps the last handler error to the error envelope's
	// type and code.
	ErrorClassifier func(err error) (string, string)
}

// GinMiddleware writes one rpc_request entry per call, naming the resource
// and action. Rejected calls (4xx) log at info, forbidden at warn, failures
// at error; health and metrics scrapes at debug.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := ensureRequestID(c)
		c.Request = c.Request.WithContext(orgcontext.WithRequestID(c.Request.Context(), requestID))

		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		fields := []zap.Field{
			zap.String("resource", resourceOf(route)),
			zap.String("method", c.Request.Method),
			zap.Int("status", status),
			zap.String("outcome", outcomeOf(status)),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.Int64("bytes_in", max(c.Request.ContentLength, 0)),
			zap.Int("bytes_out", max(c.Writer.Size(), 0)),
		}
		if action := strings.TrimSpace(c.GetString(ActionKey)); action != "" {
			fields = append(fields, zap.String("action", action))
		}
		if route == "" {
			fields = append(fields, zap.String("path", c.Request.URL.Path))
		}
		if lastErr := c.Errors.Last(); lastErr != nil && cfg.ErrorClassifier != nil {
			errorType, errorCode := cfg.ErrorClassifier(lastErr.Err)
			fields = append(fields,
				zap.String("error_type", errorType),
				zap.String("error_code", errorCode),
			)
			if cfg.Debug && status >= http.StatusInternalServerError {
				fields = append(fields, zap.Stack("stack"))
			}
		}

		if ce := FromContext(c.Request.Context()).Check(levelFor(route, status), "rpc_request"); ce != nil {
			ce.Write(fields...)
		}
	}
}

func ensureRequestID(c *gin.Context) string {
	// Header lookup is canonicalised, so X-Request-ID matches too.
	requestID := strings.TrimSpace(c.GetHeader(RequestIDHeader))
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set("request_id", requestID)
	c.Header(RequestIDHeader, requestID)
	return requestID
}

// resourceOf reduces a route to its RPC resource: /api/v2/postings/daily
// becomes "postings/daily".
func resourceOf(route string) string {
	route = strings.TrimSpace(route)
	if route == "" {
		return "unknown"
	}
	if rest, ok := strings.CutPrefix(route, "/api/v2/"); ok {
		return rest
	}
	return strings.TrimPrefix(route, "/")
}

func outcomeOf(status int) string {
	switch {
	case status >= http.StatusInternalServerError:
		return outcomeFailed
	case status >= http.StatusBadRequest:
		return outcomeRejected
	default:
		return outcomeOK
	}
}

func levelFor(route string, status int) zapcore.Level {
	switch {
	case route == "/metrics" || route == "/health":
		return zap.DebugLevel
	case status >= http.StatusInternalServerError:
		return zap.ErrorLevel
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return zap.WarnLevel
	default:
		return zap.InfoLevel
	}
}
