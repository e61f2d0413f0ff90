package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"dexgrad/pkg/utils"
)

// RequestIDHeader - заголовок с id запроса
const RequestIDHeader = "X-Request-ID"

// HTTPRequestDuration - время обработки запросов по шаблону маршрута
var HTTPRequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "dexgrad",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route template, method and status",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"route", "method", "status"},
)

// responseWriter запоминает статус и размер ответа
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// Logging - middleware для логирования HTTP запросов
//
// Каждому запросу назначается id: берется из X-Request-ID или генерируется.
// Id возвращается в заголовке ответа и доступен через RequestIDFromContext.
//
// Поля лога: method, path, route, status, latency_ms, remote_addr, bytes, request_id.
// 5xx логируются на уровне error, 4xx на уровне warn, остальное info.
func Logging(next http.Handler) http.Handler {
	log := utils.L().WithComponent("http")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" || len(requestID) > 64 {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey, requestID))

		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		route := routeTemplate(r)
		HTTPRequestDuration.WithLabelValues(route, r.Method, strconv.Itoa(wrapped.statusCode)).Observe(duration.Seconds())

		fields := []utils.Field{
			utils.String("method", r.Method),
			utils.String("path", r.URL.Path),
			utils.String("route", route),
			utils.Int("status", wrapped.statusCode),
			utils.Latency(duration),
			utils.String("remote_addr", r.RemoteAddr),
			utils.Int64("bytes", wrapped.written),
			utils.RequestID(requestID),
		}

		switch {
		case wrapped.statusCode >= http.StatusInternalServerError:
			log.Error("request", fields...)
		case wrapped.statusCode >= http.StatusBadRequest:
			log.Warn("request", fields...)
		default:
			log.Info("request", fields...)
		}
	})
}

// routeTemplate возвращает шаблон маршрута mux, чтобы не плодить метки по id
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}
