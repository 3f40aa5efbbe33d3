package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig holds configuration for the tracing middleware
type TracingConfig struct {
	ServiceName string
	Enabled     bool
	// Filter excludes requests from tracing when it returns false
	Filter func(*http.Request) bool
}

// DefaultTracingConfig traces everything except health probes
func DefaultTracingConfig(serviceName string) TracingConfig {
	return TracingConfig{
		ServiceName: serviceName,
		Enabled:     true,
		Filter: func(r *http.Request) bool {
			return r.URL.Path != "/health"
		},
	}
}

// Tracing wraps otelgin, tags the server span with the request ID and marks
// 5xx responses as span errors.
func Tracing(cfg TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	var opts []otelgin.Option
	if cfg.Filter != nil {
		opts = append(opts, otelgin.WithFilter(cfg.Filter))
	}
	return otelgin.Middleware(cfg.ServiceName, opts...)
}

// SpanEnricher must run inside Tracing. It adds request attributes to the
// server span and marks server errors.
func SpanEnricher() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if span.IsRecording() {
			if id := GetRequestID(c); id != "" {
				span.SetAttributes(attribute.String("request_id", id))
			}
		}

		c.Next()

		if !span.IsRecording() {
			return
		}
		if claims := GetJWTClaims(c); claims != nil {
			span.SetAttributes(attribute.String("enduser.id", claims.Subject))
		}
		if status := c.Writer.Status(); status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}
