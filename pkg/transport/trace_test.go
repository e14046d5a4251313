package transport

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func newRecordingTracer() (trace.Tracer, *tracetest.SpanRecorder) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	return tp.Tracer("test"), recorder
}

func spanAttr(attrs []attribute.KeyValue, key string) (string, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value.Emit(), true
		}
	}
	return "", false
}

func TestTraceRecordsSpan(t *testing.T) {
	tracer, recorder := newRecordingTracer()

	handler := Trace(tracer, slog.New(slog.DiscardHandler))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !trace.SpanFromContext(r.Context()).SpanContext().IsValid() {
			t.Error("handler context should carry the server span")
		}
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest("POST", "/api/register?x=1", nil)
	req.Header.Set("User-Agent", "chat-test")
	req.Header.Set("Authorization", "Bearer secret")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	span := spans[0]
	if span.Name() != "POST /api/register" {
		t.Errorf("span name = %q", span.Name())
	}
	if span.SpanKind() != trace.SpanKindServer {
		t.Errorf("span kind = %v, want server", span.SpanKind())
	}

	attrs := span.Attributes()
	want := map[string]string{
		"http.method":                        "POST",
		"http.target":                        "/api/register?x=1",
		"http.user_agent":                    "chat-test",
		"http.status_code":                   "201",
		"http.request.header.authorization": "[redacted]",
	}
	for key, value := range want {
		got, ok := spanAttr(attrs, key)
		if !ok {
			t.Errorf("missing attribute %q", key)
			continue
		}
		if got != value {
			t.Errorf("attribute %q = %q, want %q", key, got, value)
		}
	}
	if span.Status().Code == codes.Error {
		t.Error("2xx response should not mark the span as error")
	}
}

func TestTraceMarksServerErrors(t *testing.T) {
	tracer, recorder := newRecordingTracer()

	handler := Trace(tracer, slog.New(slog.DiscardHandler))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/chat", nil))

	spans := recorder.Ended()
	if len(spans) != 1 || spans[0].Status().Code != codes.Error {
		t.Fatalf("expected one error span, got %v", spans)
	}
}

func TestTraceExtractsParent(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	tracer, recorder := newRecordingTracer()

	handler := Trace(tracer, slog.New(slog.DiscardHandler))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if got := spans[0].SpanContext().TraceID().String(); got != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("trace id = %s, want inherited id", got)
	}
	if !spans[0].Parent().IsRemote() {
		t.Error("parent should be the remote span")
	}
}

func TestTraceLogsStartAndFinish(t *testing.T) {
	tracer, _ := newRecordingTracer()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	handler := Trace(tracer, logger)(RequestID(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/missing", nil))

	out := buf.String()
	for _, want := range []string{
		"started processing request",
		"finished processing request",
		"status=404",
		"latency_us=",
		"request_id=" + rec.Header().Get(RequestIDHeader),
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}
