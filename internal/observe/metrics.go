// Package observe carries the transcriptqa telemetry: OpenTelemetry metrics
// exported for Prometheus, W3C trace propagation, trace-aware slog loggers and
// the HTTP middleware that ties them to every request.
//
// Components record through [DefaultMetrics], which is bound to the global
// meter provider installed by [InitProvider]. Tests build their own set with
// [NewMetrics] over a manual reader.
package observe

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/MrWong99/transcriptqa"

// Question outcomes recorded on [Metrics.Questions].
const (
	QuestionAnswered = "answered"
	QuestionNoData   = "no_data"
	QuestionInvalid  = "invalid"
	QuestionFailed   = "failed"
	QuestionTimeout  = "timeout"
)

// Metrics is the set of instruments transcriptqa records to.
type Metrics struct {
	SearchDuration        metric.Float64Histogram
	RetrievalDuration     metric.Float64Histogram // includes semantic re-ranking
	LLMDuration           metric.Float64Histogram
	EmbeddingDuration     metric.Float64Histogram
	ToolExecutionDuration metric.Float64Histogram
	HTTPRequestDuration   metric.Float64Histogram // method, route, status_class

	Searches           metric.Int64Counter // filtered
	Questions          metric.Int64Counter // outcome
	ProviderRequests   metric.Int64Counter // provider, kind, status
	ProviderErrors     metric.Int64Counter // provider, kind
	ToolCalls          metric.Int64Counter // tool, status
	BreakerTransitions metric.Int64Counter // breaker, to

	InflightQuestions metric.Int64UpDownCounter
}

// latencyBuckets spans sub-millisecond searches up to slow model replies.
var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// instruments creates instruments on one meter and keeps the first error of
// each so NewMetrics can report them together.
type instruments struct {
	meter metric.Meter
	errs  []error
}

func (b *instruments) latency(name, desc string) metric.Float64Histogram {
	h, err := b.meter.Float64Histogram("transcriptqa."+name,
		metric.WithDescription(desc),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	)
	b.check(name, err)
	return h
}

func (b *instruments) counter(name, desc string) metric.Int64Counter {
	c, err := b.meter.Int64Counter("transcriptqa."+name, metric.WithDescription(desc))
	b.check(name, err)
	return c
}

func (b *instruments) gauge(name, desc string) metric.Int64UpDownCounter {
	g, err := b.meter.Int64UpDownCounter("transcriptqa."+name, metric.WithDescription(desc))
	b.check(name, err)
	return g
}

func (b *instruments) check(name string, err error) {
	if err != nil {
		b.errs = append(b.errs, fmt.Errorf("%s: %w", name, err))
	}
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	b := &instruments{meter: mp.Meter(meterName)}
	m := &Metrics{
		SearchDuration:        b.latency("search.duration", "Latency of transcript search."),
		RetrievalDuration:     b.latency("retrieval.duration", "Latency of evidence retrieval for a question."),
		LLMDuration:           b.latency("llm.duration", "Latency of LLM completions."),
		EmbeddingDuration:     b.latency("embedding.duration", "Latency of embedding requests."),
		ToolExecutionDuration: b.latency("tool_execution.duration", "Latency of MCP tool calls."),
		HTTPRequestDuration:   b.latency("http.request.duration", "HTTP request latency by method, route and status class."),

		Searches:           b.counter("searches", "Search requests."),
		Questions:          b.counter("questions", "Questions by outcome."),
		ProviderRequests:   b.counter("provider.requests", "Provider calls by provider, kind and status."),
		ProviderErrors:     b.counter("provider.errors", "Failed provider calls by provider and kind."),
		ToolCalls:          b.counter("tool.calls", "MCP tool calls by tool and status."),
		BreakerTransitions: b.counter("breaker.transitions", "Circuit breaker state changes by breaker and target state."),

		InflightQuestions: b.gauge("inflight_questions", "Questions waiting on the model."),
	}
	if len(b.errs) > 0 {
		return nil, fmt.Errorf("observe: create instruments: %w", errors.Join(b.errs...))
	}
	return m, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the process-wide Metrics bound to the global meter
// provider. The global provider delegates, so instruments created before
// [InitProvider] still reach the exporter.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		m, err := NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic(err)
		}
		defaultMetrics = m
	})
	return defaultMetrics
}

// RecordProviderRequest counts one provider call. status is "ok" or "error".
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("kind", kind),
		attribute.String("status", status),
	))
}

func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("kind", kind),
	))
}

func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	m.ToolCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("status", status),
	))
}

// RecordSearch counts a search; filtered is set when a speaker filter applied.
func (m *Metrics) RecordSearch(ctx context.Context, filtered bool) {
	m.Searches.Add(ctx, 1, metric.WithAttributes(attribute.Bool("filtered", filtered)))
}

// RecordQuestion counts a question by one of the Question* outcomes.
func (m *Metrics) RecordQuestion(ctx context.Context, outcome string) {
	m.Questions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) RecordBreakerTransition(ctx context.Context, breaker, to string) {
	m.BreakerTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("breaker", breaker),
		attribute.String("to", to),
	))
}
