package main

import (
	"context"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// initTracing installs the process-wide TracerProvider ObservabilityMiddleware
// pulls its tracer from (pkg/middleware/observability.go's otel.Tracer call
// is a no-op until a provider is set). A CLI invocation has no collector to
// talk to, so it exports to stderr rather than over OTLP — matching the
// teacher's InitGlobalTracer shape (pkg/observability/tracer.go) scaled down
// to this command's lifetime.
func initTracing() (shutdown func(context.Context) error, err error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr))
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// slogEventSink relays ObservabilityMiddleware's structured events
// (chat_request_received, tool_call_executing, ...) onto the same
// log/slog logger the rest of the CLI logs through.
type slogEventSink struct{}

func (slogEventSink) Emit(ctx context.Context, name string, attrs map[string]any) {
	args := make([]any, 0, len(attrs)*2)
	for k, v := range attrs {
		args = append(args, k, v)
	}
	slog.Info(name, args...)
}
