package api

import (
	"net/http"
	"sync"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"
	httpmetrics "github.com/slok/go-http-metrics/metrics/prometheus"
	httpmiddleware "github.com/slok/go-http-metrics/middleware"
	httpstd "github.com/slok/go-http-metrics/middleware/std"
)

// RequestLogger emits one structured log line per handled request.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		log.WithFields(log.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start).String(),
			"request_id": chimiddleware.GetReqID(r.Context()),
			"remote":     r.RemoteAddr,
		}).Info("request handled")
	})
}

var (
	metricsOnce sync.Once
	metricsMdlw func(http.Handler) http.Handler
)

// MetricsMiddleware records request metrics into the default prometheus
// registry, which the ops server scrapes alongside the domain metrics.
// The recorder registers on first use; every router shares it.
func MetricsMiddleware() func(http.Handler) http.Handler {
	metricsOnce.Do(func() {
		mdlw := httpmiddleware.New(httpmiddleware.Config{
			Recorder: httpmetrics.NewRecorder(httpmetrics.Config{Prefix: "lingokit"}),
		})
		metricsMdlw = httpstd.HandlerProvider("", mdlw)
	})
	return metricsMdlw
}
