package observe

import (
	"context"
	"encoding/hex"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// spanRecorder swaps in a TracerProvider whose spans land in memory, and
// restores the previous global provider when the test ends.
func spanRecorder(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return exporter
}

// logCapture points slog.Default at a buffer and restores the original
// logger afterwards.
func logCapture(t *testing.T) *strings.Builder {
	t.Helper()
	var buf strings.Builder
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestCorrelationID(t *testing.T) {
	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID outside a span = %q, want empty", got)
	}

	spanRecorder(t)
	ctx, span := StartSpan(context.Background(), "unit")
	defer span.End()

	cid := CorrelationID(ctx)
	if len(cid) != 32 {
		t.Fatalf("CorrelationID length = %d, want 32", len(cid))
	}
	if _, err := hex.DecodeString(cid); err != nil {
		t.Errorf("CorrelationID %q is not hex: %v", cid, err)
	}
}

func TestStartSpan_RecordsNamedSpan(t *testing.T) {
	exporter := spanRecorder(t)

	_, span := StartSpan(context.Background(), "synthesize sentence")
	span.End()

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	if got := spans[0].Name; got != "synthesize sentence" {
		t.Errorf("span name = %q, want %q", got, "synthesize sentence")
	}
}

func TestLogger_AttachesTraceFields(t *testing.T) {
	spanRecorder(t)
	buf := logCapture(t)

	ctx, span := StartSpan(context.Background(), "unit")
	defer span.End()

	Logger(ctx).Info("synthesizing")

	out := buf.String()
	if !strings.Contains(out, "trace_id=") || !strings.Contains(out, "span_id=") {
		t.Errorf("log line missing trace fields: %s", out)
	}
}

func TestLogger_PlainOutsideSpan(t *testing.T) {
	buf := logCapture(t)

	Logger(context.Background()).Info("synthesizing")

	if out := buf.String(); strings.Contains(out, "trace_id") {
		t.Errorf("log line carries trace_id without a span: %s", out)
	}
}
