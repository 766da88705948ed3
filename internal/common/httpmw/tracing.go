package httpmw

import (
	"slices"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/windschord/claude-work/internal/common/logger"
	"github.com/windschord/claude-work/internal/tracing"
)

// untracedPaths are polled often enough to drown real traffic.
var untracedPaths = map[string]bool{
	"/health": true,
}

// OtelTracing wraps each request in a server span named after its route.
// Requests for a session or project carry the id as an attribute. Without an
// exporter configured the spans are no-ops.
func OtelTracing(serverName string) gin.HandlerFunc {
	tracer := tracing.Tracer(serverName)

	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		if untracedPaths[route] {
			c.Next()
			return
		}

		attrs := []attribute.KeyValue{
			semconv.HTTPRequestMethodKey.String(c.Request.Method),
			semconv.HTTPRouteKey.String(route),
		}
		if id, ok := c.Request.Context().Value(logger.RequestIDKey).(string); ok {
			attrs = append(attrs, attribute.String("request.id", id))
		}
		ctx, span := tracer.Start(c.Request.Context(), c.Request.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attrs...),
		)
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		if id := c.Param("id"); id != "" {
			span.SetAttributes(attribute.String(routeResource(route)+".id", id))
		}
		status := c.Writer.Status()
		span.SetAttributes(semconv.HTTPResponseStatusCodeKey.Int(status))
		if len(c.Errors) > 0 {
			span.RecordError(c.Errors.Last())
		}
		if status >= 500 {
			span.SetStatus(codes.Error, "HTTP "+strconv.Itoa(status))
		}
	}
}

// routeResource names the resource an :id parameter refers to.
func routeResource(route string) string {
	switch {
	case hasSegment(route, "sessions"), hasSegment(route, "terminal"):
		return "session"
	case hasSegment(route, "projects"):
		return "project"
	default:
		return "resource"
	}
}

func hasSegment(route, segment string) bool {
	return slices.Contains(strings.Split(route, "/"), segment)
}
