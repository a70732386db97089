package observe

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func opsRequest(t *testing.T, m *Metrics, path string, inner http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	handler := Middleware(m)(inner)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
	return rec
}

func TestMiddleware_CorrelationHeader(t *testing.T) {
	m, _ := metricsForTest(t)
	spanRecorder(t)

	var inContext string
	rec := opsRequest(t, m, "/healthz", func(w http.ResponseWriter, r *http.Request) {
		inContext = CorrelationID(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	if len(inContext) != 32 {
		t.Fatalf("correlation ID in handler context = %q, want 32 hex chars", inContext)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != inContext {
		t.Errorf("X-Correlation-ID header = %q, want %q (the context's ID)", got, inContext)
	}
}

func TestMiddleware_SpanCarriesOutcome(t *testing.T) {
	m, _ := metricsForTest(t)
	exporter := spanRecorder(t)

	rec := opsRequest(t, m, "/readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("response status = %d, want 503", rec.Code)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	if got := spans[0].Name; got != "HTTP GET /readyz" {
		t.Errorf("span name = %q, want %q", got, "HTTP GET /readyz")
	}
	var status int64
	for _, kv := range spans[0].Attributes {
		if string(kv.Key) == "http.response.status_code" {
			status = kv.Value.AsInt64()
		}
	}
	if status != 503 {
		t.Errorf("span http.response.status_code = %d, want 503", status)
	}
}

func TestMiddleware_RecordsLatency(t *testing.T) {
	m, reader := metricsForTest(t)
	spanRecorder(t)

	opsRequest(t, m, "/metrics", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	met := metricNamed(t, reader, "voicesync.http.request.duration")
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("metric is %T, want Histogram[float64]", met.Data)
	}
	if len(hist.DataPoints) != 1 {
		t.Fatalf("histogram has %d data points, want 1", len(hist.DataPoints))
	}

	dp := hist.DataPoints[0]
	if dp.Count != 1 {
		t.Errorf("sample count = %d, want 1", dp.Count)
	}
	attrs := map[string]string{}
	for _, kv := range dp.Attributes.ToSlice() {
		attrs[string(kv.Key)] = kv.Value.AsString()
	}
	if attrs["method"] != "GET" || attrs["path"] != "/metrics" {
		t.Errorf("data point attributes = %v, want method=GET path=/metrics", attrs)
	}
}
