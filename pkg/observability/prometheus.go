package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const metricsShutdownTimeout = 5 * time.Second

// PrometheusExporter exposes OTel instruments on a Prometheus scrape endpoint.
type PrometheusExporter struct {
	// Handler serves the /metrics scrape endpoint.
	Handler http.Handler
	// Provider collects the instruments created from its meters.
	Provider *sdkmetric.MeterProvider
}

// NewPrometheusExporter creates an exporter with its own registry, so
// several exporters never conflict over collector registration.
func NewPrometheusExporter() (*PrometheusExporter, error) {
	registry := prometheus.NewRegistry()

	exporter, err := promexporter.New(promexporter.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	return &PrometheusExporter{
		Handler:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		Provider: sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter)),
	}, nil
}

// Serve listens on addr and serves /metrics until ctx is cancelled.
// It returns once the listener is bound; serving continues in the background.
func (e *PrometheusExporter) Serve(ctx context.Context, addr string, logger *slog.Logger) (net.Addr, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", e.Handler)

	server := &http.Server{Handler: mux, ReadHeaderTimeout: metricsShutdownTimeout}

	go func() {
		serveErr := server.Serve(listener)
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", "error", serveErr)
		}
	}()

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), metricsShutdownTimeout)
		defer cancel()

		_ = server.Shutdown(shutdownCtx)
	}()

	return listener.Addr(), nil
}
