package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// newTestMux serves the handlers the middleware is usually wrapped around.
func newTestMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/search", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"results":[]}`))
	})
	mux.HandleFunc("GET /api/summary", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no summary", http.StatusNotFound)
	})
	mux.HandleFunc("POST /api/ask", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	return mux
}

type harness struct {
	handler http.Handler
	reader  *sdkmetric.ManualReader
	spans   *tracetest.InMemoryExporter
}

// newHarness installs an in-memory tracer provider globally, so tests using
// it must not run in parallel.
func newHarness(t *testing.T) *harness {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	return &harness{handler: Middleware(m)(newTestMux()), reader: reader, spans: exp}
}

func (h *harness) do(method, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func (h *harness) durationPoints(t *testing.T) []metricdata.HistogramDataPoint[float64] {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := h.reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	met := findMetric(rm, "transcriptqa.http.request.duration")
	if met == nil {
		t.Fatal("http duration metric not recorded")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("metric data is %T, want histogram", met.Data)
	}
	return hist.DataPoints
}

func TestMiddleware_CorrelationIDHeader(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/api/search?q=barak", nil)
	cid := rec.Header().Get("X-Correlation-ID")
	if len(cid) != 32 {
		t.Fatalf("X-Correlation-ID = %q, want a 32 char trace id", cid)
	}
	spans := h.spans.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	if got := spans[0].SpanContext.TraceID().String(); got != cid {
		t.Errorf("span trace id = %s, want %s", got, cid)
	}
}

func TestMiddleware_HonoursTraceparent(t *testing.T) {
	h := newHarness(t)

	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	rec := h.do(http.MethodGet, "/api/search?q=camp", http.Header{
		"Traceparent": {"00-" + traceID + "-00f067aa0ba902b7-01"},
	})
	if got := rec.Header().Get("X-Correlation-ID"); got != traceID {
		t.Errorf("X-Correlation-ID = %q, want %q", got, traceID)
	}
}

func TestMiddleware_LabelsByRoute(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		target     string
		wantRoute  string
		wantStatus int
		wantClass  string
	}{
		{"search", http.MethodGet, "/api/search?q=barak", "GET /api/search", http.StatusOK, "2xx"},
		{"missing summary", http.MethodGet, "/api/summary", "GET /api/summary", http.StatusNotFound, "4xx"},
		{"upstream failure", http.MethodPost, "/api/ask", "POST /api/ask", http.StatusBadGateway, "5xx"},
		{"no route", http.MethodGet, "/api/paragraphs/17", unmatchedRoute, http.StatusNotFound, "4xx"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			rec := h.do(tc.method, tc.target, nil)
			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}

			spans := h.spans.GetSpans()
			if len(spans) != 1 {
				t.Fatalf("spans = %d, want 1", len(spans))
			}
			if spans[0].Name != tc.wantRoute {
				t.Errorf("span name = %q, want %q", spans[0].Name, tc.wantRoute)
			}
			if !hasAttr(spans[0].Attributes, attribute.Int("http.response.status_code", tc.wantStatus)) {
				t.Errorf("span attributes %v missing status %d", spans[0].Attributes, tc.wantStatus)
			}

			points := h.durationPoints(t)
			if len(points) != 1 {
				t.Fatalf("data points = %d, want 1", len(points))
			}
			attrs := points[0].Attributes.ToSlice()
			for _, want := range []attribute.KeyValue{
				attribute.String("method", tc.method),
				attribute.String("route", tc.wantRoute),
				attribute.String("status_class", tc.wantClass),
			} {
				if !hasAttr(attrs, want) {
					t.Errorf("metric attributes %v missing %s=%s", attrs, want.Key, want.Value.Emit())
				}
			}
		})
	}
}

func TestMiddleware_RawPathNeverLabels(t *testing.T) {
	h := newHarness(t)

	for _, target := range []string{"/x/1", "/x/2", "/y"} {
		h.do(http.MethodGet, target, nil)
	}
	points := h.durationPoints(t)
	if len(points) != 1 {
		t.Fatalf("data points = %d, want unmatched paths folded into one series", len(points))
	}
	if points[0].Count != 3 {
		t.Errorf("count = %d, want 3", points[0].Count)
	}
}

func TestLogLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		route  string
		status int
		want   string
	}{
		{"GET /healthz", http.StatusOK, "DEBUG"},
		{"GET /readyz", http.StatusServiceUnavailable, "ERROR"},
		{"GET /api/search", http.StatusOK, "INFO"},
		{"POST /api/ask", http.StatusBadRequest, "INFO"},
		{"POST /api/ask", http.StatusGatewayTimeout, "ERROR"},
	}
	for _, tc := range tests {
		if got := logLevel(tc.route, tc.status).String(); got != tc.want {
			t.Errorf("logLevel(%q, %d) = %s, want %s", tc.route, tc.status, got, tc.want)
		}
	}
}

func hasAttr(attrs []attribute.KeyValue, want attribute.KeyValue) bool {
	for _, kv := range attrs {
		if kv.Key == want.Key && kv.Value == want.Value {
			return true
		}
	}
	return false
}
