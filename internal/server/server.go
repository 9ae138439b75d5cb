package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/matheuscscp/echo-callback/internal/config"
	"github.com/matheuscscp/echo-callback/internal/constants"
	"github.com/matheuscscp/echo-callback/internal/logging"
)

const (
	pathHealthz = "/healthz"
	pathReadyz  = "/readyz"
	pathMetrics = "/metrics"

	// Path label for requests that matched no API route.
	unmatchedRoute = "unmatched"

	readHeaderTimeout = 10 * time.Second
)

func newServer(conf *config.Config, api http.Handler,
	promRegisterer prometheus.Registerer, promGatherer prometheus.Gatherer) *http.Server {

	if conf.Server.CORS {
		api = handleCORS(api)
	}

	promHandler := promhttp.HandlerFor(promGatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	requestDurationSecs := prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Name: "http_request_duration_seconds",
		Help: "Duration of HTTP requests in seconds",
	}, []string{"host", "method", "path", "status"})
	promRegisterer.MustRegister(requestDurationSecs)

	return &http.Server{
		Addr:              conf.Server.Addr,
		ReadHeaderTimeout: readHeaderTimeout,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t := time.Now()
			sr := &statusRecorder{ResponseWriter: w}
			path := r.URL.Path

			requestID := logging.RequestID(r)
			l := logging.NewRequestLogger(r, requestID)
			sr.Header().Set(constants.HeaderRequestID, requestID)

			defer func() {
				status := fmt.Sprintf("%d", sr.getStatusCode())
				elapsed := time.Since(t)
				requestDurationSecs.
					WithLabelValues(r.Host, r.Method, path, status).
					Observe(elapsed.Seconds())
				l.WithFields(logrus.Fields{
					"route":    path,
					"status":   sr.getStatusCode(),
					"bytes":    sr.bytesWritten,
					"duration": elapsed.String(),
				}).Debug("request served")
			}()

			w = sr
			r = logging.IntoRequest(r, l)

			switch r.URL.Path {
			case pathReadyz, pathHealthz:
				w.WriteHeader(http.StatusOK)
			case pathMetrics:
				promHandler.ServeHTTP(w, r)
			default:
				// The API router fills this route context, which gives a
				// path label without the endpoint ID.
				rctx := chi.NewRouteContext()
				r = r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
				api.ServeHTTP(w, r)
				path = rctx.RoutePattern()
				if path == "" {
					path = unmatchedRoute
				}
			}
		}),
	}
}
