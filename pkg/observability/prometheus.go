package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// PrometheusBridge pairs a Prometheus-backed OTel MeterProvider with the
// http.Handler that serves its registry, the "Prometheus registry rather
// than OTLP push" fallback SPEC_FULL.md §6 describes for when no OTLP
// collector is configured.
type PrometheusBridge struct {
	MeterProvider *sdkmetric.MeterProvider
	Handler       http.Handler
}

// NewPrometheusBridge builds an independent Prometheus registry, wires an
// OTel Prometheus exporter as its reader, and returns the MeterProvider
// callers should install plus the http.Handler that serves /metrics.
func NewPrometheusBridge() (*PrometheusBridge, error) {
	registry := prometheus.NewRegistry()

	exporter, err := promexporter.New(promexporter.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))

	return &PrometheusBridge{
		MeterProvider: mp,
		Handler:       promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}, nil
}
