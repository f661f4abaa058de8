package observe

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ProviderConfig configures telemetry for one process.
type ProviderConfig struct {
	// ServiceName defaults to "transcriptqa".
	ServiceName    string
	ServiceVersion string

	// SampleRatio is the fraction of new traces recorded. 0 and 1 both
	// record every trace. Incoming sampled parents are always honoured.
	SampleRatio float64

	// TraceExporter receives finished spans. Without one, spans only feed
	// correlation ids and log fields.
	TraceExporter sdktrace.SpanExporter

	// Registerer receives the Prometheus collector. Defaults to
	// [prometheus.DefaultRegisterer], which [MetricsHandler] serves.
	Registerer prometheus.Registerer
}

// InitProvider installs global meter and tracer providers plus the W3C
// propagator. The returned function flushes and stops both providers.
func InitProvider(ctx context.Context, cfg ProviderConfig) (func(context.Context) error, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "transcriptqa"
	}
	if cfg.SampleRatio < 0 || cfg.SampleRatio > 1 {
		return nil, fmt.Errorf("observe: sample ratio %v outside [0, 1]", cfg.SampleRatio)
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("observe: resource: %w", err)
	}

	var promOpts []promexporter.Option
	if cfg.Registerer != nil {
		promOpts = append(promOpts, promexporter.WithRegisterer(cfg.Registerer))
	}
	exporter, err := promexporter.New(promOpts...)
	if err != nil {
		return nil, fmt.Errorf("observe: prometheus exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(exporter))

	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(Sampler(cfg.SampleRatio)),
	}
	if cfg.TraceExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(cfg.TraceExporter))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)

	otel.SetMeterProvider(mp)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return func(ctx context.Context) error {
		// Spans first so their final metrics are still scraped.
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}

// Sampler returns the head sampler for ratio. Children follow their parent's
// decision.
func Sampler(ratio float64) sdktrace.Sampler {
	root := sdktrace.AlwaysSample()
	if ratio > 0 && ratio < 1 {
		root = sdktrace.TraceIDRatioBased(ratio)
	}
	return sdktrace.ParentBased(root)
}

// MetricsHandler serves the default Prometheus registry at /metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
