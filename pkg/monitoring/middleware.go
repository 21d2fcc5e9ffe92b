package monitoring

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/medrex/glucose-tracker/pkg/logger"
	"go.opentelemetry.io/otel/attribute"
)

// MonitoringMiddleware combines metrics, tracing, and logging
type MonitoringMiddleware struct {
	metrics *MetricsCollector
	tracing *TracingManager
	logger  *logger.Logger
}

// NewMonitoringMiddleware creates a new monitoring middleware
func NewMonitoringMiddleware(metrics *MetricsCollector, tracing *TracingManager, log *logger.Logger) *MonitoringMiddleware {
	return &MonitoringMiddleware{
		metrics: metrics,
		tracing: tracing,
		logger:  log,
	}
}

// HTTPMiddleware creates HTTP monitoring middleware. Endpoints are labelled
// by their mux route template so ids do not explode metric cardinality.
func (mm *MonitoringMiddleware) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		ctx := logger.ContextWithRequestID(r.Context(), requestID)

		endpoint := routeTemplate(r)
		ctx = mm.tracing.ExtractTraceContext(ctx, r.Header)
		ctx, span := mm.tracing.StartHTTPSpan(ctx, r.Method, endpoint)
		defer span.End()
		span.SetAttributes(attribute.String("request.id", requestID))

		wrapper := &monitoringResponseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}
		wrapper.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(wrapper, r.WithContext(ctx))

		duration := time.Since(start)
		mm.metrics.RecordHTTPRequest(r.Method, endpoint, strconv.Itoa(wrapper.statusCode), duration)

		span.SetAttributes(
			attribute.Int("http.status_code", wrapper.statusCode),
			attribute.Int64("http.response_size", wrapper.bytesWritten),
		)
		if wrapper.statusCode >= 500 {
			RecordError(span, errHTTPStatus(wrapper.statusCode))
		}

		mm.logger.HTTPRequest(ctx, r.Method, endpoint, wrapper.statusCode, duration.Milliseconds(), map[string]interface{}{
			"bytes_written": wrapper.bytesWritten,
		})
	})
}

// DatabaseMiddleware wraps a database call with timing, tracing and logging
func (mm *MonitoringMiddleware) DatabaseMiddleware(operation, table string) func(context.Context, func() (int64, error)) error {
	return func(ctx context.Context, fn func() (int64, error)) error {
		ctx, span := mm.tracing.StartSpan(ctx, "db."+operation,
			attribute.String("db.operation", operation),
			attribute.String("db.table", table),
		)
		defer span.End()

		start := time.Now()
		rows, err := fn()
		duration := time.Since(start)

		mm.metrics.RecordDBQuery(operation, duration)
		RecordError(span, err)
		mm.logger.DatabaseOperation(ctx, operation, table, duration.Milliseconds(), rows, err == nil)
		return err
	}
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}

type errHTTPStatus int

func (e errHTTPStatus) Error() string {
	return "http status " + strconv.Itoa(int(e)) + " " + http.StatusText(int(e))
}

// monitoringResponseWriter wraps http.ResponseWriter to capture status and size
type monitoringResponseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (mrw *monitoringResponseWriter) WriteHeader(code int) {
	mrw.statusCode = code
	mrw.ResponseWriter.WriteHeader(code)
}

func (mrw *monitoringResponseWriter) Write(b []byte) (int, error) {
	n, err := mrw.ResponseWriter.Write(b)
	mrw.bytesWritten += int64(n)
	return n, err
}
