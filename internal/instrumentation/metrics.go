// Package instrumentation wires OpenTelemetry metrics through the Prometheus
// exporter. Metrics are optional: a disabled provider hands out a no-op
// recorder so call sites never branch.
package instrumentation

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Metric attribute keys.
const (
	attrMethod   = "method"
	attrStatus   = "status"
	attrTool     = "tool"
	attrProvider = "provider"
)

// Status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Metrics records gateway observability metrics. The zero value is a no-op.
type Metrics struct {
	requestsTotal     metric.Int64Counter
	requestDuration   metric.Float64Histogram
	activeConnections metric.Int64UpDownCounter
	toolInvocations   metric.Int64Counter
	toolDuration      metric.Float64Histogram
	tokenRefreshTotal metric.Int64Counter
	storageFailures   metric.Int64Counter
}

// Provider owns the meter provider and the Prometheus registry behind it.
type Provider struct {
	meterProvider *sdkmetric.MeterProvider
	registry      *prometheus.Registry
	metrics       *Metrics
	enabled       bool
}

// NewProvider creates a metrics provider. When enabled is false, Metrics()
// returns a no-op recorder and Handler() serves an empty registry.
func NewProvider(serviceName, serviceVersion string, enabled bool) (*Provider, error) {
	if !enabled {
		return &Provider{metrics: &Metrics{}, registry: prometheus.NewRegistry()}, nil
	}

	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	res, err := resource.New(context.Background(), resource.WithAttributes(
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(serviceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)

	metrics, err := newMetrics(meterProvider.Meter(serviceName))
	if err != nil {
		return nil, err
	}

	return &Provider{
		meterProvider: meterProvider,
		registry:      registry,
		metrics:       metrics,
		enabled:       true,
	}, nil
}

// Metrics returns the recorder.
func (p *Provider) Metrics() *Metrics { return p.metrics }

// Enabled reports whether metrics collection is active.
func (p *Provider) Enabled() bool { return p.enabled }

// Handler returns the HTTP handler serving the Prometheus scrape endpoint.
func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops the meter provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.meterProvider == nil {
		return nil
	}
	return p.meterProvider.Shutdown(ctx)
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.requestsTotal, err = meter.Int64Counter(
		"rpc_requests_total",
		metric.WithDescription("Total number of JSON-RPC requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rpc_requests_total counter: %w", err)
	}

	m.requestDuration, err = meter.Float64Histogram(
		"rpc_request_duration_seconds",
		metric.WithDescription("JSON-RPC request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rpc_request_duration_seconds histogram: %w", err)
	}

	m.activeConnections, err = meter.Int64UpDownCounter(
		"active_connections",
		metric.WithDescription("Currently open client connections"),
		metric.WithUnit("{connection}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create active_connections counter: %w", err)
	}

	m.toolInvocations, err = meter.Int64Counter(
		"tool_invocations_total",
		metric.WithDescription("Total number of tool invocations"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool_invocations_total counter: %w", err)
	}

	m.toolDuration, err = meter.Float64Histogram(
		"tool_duration_seconds",
		metric.WithDescription("Tool handler duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool_duration_seconds histogram: %w", err)
	}

	m.tokenRefreshTotal, err = meter.Int64Counter(
		"oauth_token_refresh_total",
		metric.WithDescription("Total number of provider token refreshes"),
		metric.WithUnit("{refresh}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth_token_refresh_total counter: %w", err)
	}

	m.storageFailures, err = meter.Int64Counter(
		"vault_storage_failures_total",
		metric.WithDescription("Total number of vault storage failures"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault_storage_failures_total counter: %w", err)
	}

	return m, nil
}

// RecordRequest counts one JSON-RPC request with its outcome.
func (m *Metrics) RecordRequest(ctx context.Context, method, status string, seconds float64) {
	if m.requestsTotal == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(attrMethod, method),
		attribute.String(attrStatus, status),
	)
	m.requestsTotal.Add(ctx, 1, attrs)
	m.requestDuration.Record(ctx, seconds, attrs)
}

// ConnectionOpened increments the live connection gauge.
func (m *Metrics) ConnectionOpened(ctx context.Context) {
	if m.activeConnections == nil {
		return
	}
	m.activeConnections.Add(ctx, 1)
}

// ConnectionClosed decrements the live connection gauge.
func (m *Metrics) ConnectionClosed(ctx context.Context) {
	if m.activeConnections == nil {
		return
	}
	m.activeConnections.Add(ctx, -1)
}

// RecordToolInvocation counts one tool call with its outcome.
func (m *Metrics) RecordToolInvocation(ctx context.Context, tool, status string, seconds float64) {
	if m.toolInvocations == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(attrTool, tool),
		attribute.String(attrStatus, status),
	)
	m.toolInvocations.Add(ctx, 1, attrs)
	m.toolDuration.Record(ctx, seconds, attrs)
}

// RecordTokenRefresh counts one provider token refresh attempt.
func (m *Metrics) RecordTokenRefresh(ctx context.Context, providerName, status string) {
	if m.tokenRefreshTotal == nil {
		return
	}
	m.tokenRefreshTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrProvider, providerName),
		attribute.String(attrStatus, status),
	))
}

// RecordStorageFailure counts one vault storage failure.
func (m *Metrics) RecordStorageFailure(ctx context.Context) {
	if m.storageFailures == nil {
		return
	}
	m.storageFailures.Add(ctx, 1)
}
