// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package telemetry wires OpenTelemetry tracing and Prometheus-exported
// metrics for the daemon.
package telemetry

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Provider owns the tracer and meter providers for the process.
type Provider struct {
	tp        *sdktrace.TracerProvider
	mp        *sdkmetric.MeterProvider
	collector *Collector
}

// New creates a provider, installs it globally, and builds the metrics
// collector backed by a Prometheus exporter.
func New(serviceName, version string) (*Provider, error) {
	// Empty schema URL avoids conflicts when merging with the default
	// resource.
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)

	promExporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promExporter),
	)

	collector, err := NewCollector(mp)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics collector: %w", err)
	}

	return &Provider{tp: tp, mp: mp, collector: collector}, nil
}

// Collector returns the process metrics collector.
func (p *Provider) Collector() *Collector {
	return p.collector
}

// MetricsHandler returns the Prometheus scrape handler. The OpenTelemetry
// prometheus exporter registers with the default registry, so the stock
// promhttp handler exposes everything.
func (p *Provider) MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// Shutdown flushes pending telemetry and releases resources.
func (p *Provider) Shutdown(ctx context.Context) error {
	if err := p.tp.Shutdown(ctx); err != nil {
		return err
	}
	return p.mp.Shutdown(ctx)
}
