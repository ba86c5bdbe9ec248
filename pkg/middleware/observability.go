package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/agentcore/orchestrator/pkg/llm"
)

// EventSink receives the lowercase-underscore structured events spec §6
// names (e.g. chat_request_received, tool_call_executing). The concrete
// sink (stdout exporter, collector) is an external collaborator; the core
// only depends on this interface.
type EventSink interface {
	Emit(ctx context.Context, name string, attrs map[string]any)
}

// ObservabilityMiddleware emits structured spans/events around each model
// and tool call without changing semantics (spec §4.4).
type ObservabilityMiddleware struct {
	Base
	tracer trace.Tracer
	sink   EventSink
}

// NewObservabilityMiddleware constructs the probe. sink may be nil to emit
// spans only, with no secondary event stream.
func NewObservabilityMiddleware(sink EventSink) *ObservabilityMiddleware {
	return &ObservabilityMiddleware{
		Base:   NewBase("observability"),
		tracer: otel.Tracer("agentcore/driver"),
		sink:   sink,
	}
}

func (m *ObservabilityMiddleware) emit(ctx context.Context, name string, attrs map[string]any) {
	if m.sink != nil {
		m.sink.Emit(ctx, name, attrs)
	}
}

// WrapModelCall implements Middleware.
func (m *ObservabilityMiddleware) WrapModelCall(next ModelCallFunc) ModelCallFunc {
	return func(ctx context.Context, req ModelRequest) (llm.Response, error) {
		ctx, span := m.tracer.Start(ctx, "model_call", trace.WithAttributes(
			attribute.Int("message_count", len(req.Messages)),
			attribute.Int("tool_count", len(req.Tools)),
		))
		defer span.End()

		m.emit(ctx, "model_call_executing", map[string]any{"message_count": len(req.Messages)})
		resp, err := next(ctx, req)
		if err != nil {
			span.RecordError(err)
			m.emit(ctx, "model_call_failed", map[string]any{"error": err.Error()})
			return resp, err
		}
		m.emit(ctx, "model_call_completed", map[string]any{"model": resp.Model, "tool_calls": len(resp.ToolCalls)})
		return resp, nil
	}
}

// WrapToolCall implements Middleware.
func (m *ObservabilityMiddleware) WrapToolCall(next ToolCallFunc) ToolCallFunc {
	return func(ctx context.Context, req ToolRequest) (ToolOutcome, error) {
		ctx, span := m.tracer.Start(ctx, "tool_call", trace.WithAttributes(
			attribute.String("tool_name", req.Call.Name),
		))
		defer span.End()

		m.emit(ctx, "tool_call_executing", map[string]any{"tool": req.Call.Name})
		outcome, err := next(ctx, req)
		if err != nil {
			span.RecordError(err)
			m.emit(ctx, "tool_call_failed", map[string]any{"tool": req.Call.Name, "error": err.Error()})
			return outcome, err
		}
		m.emit(ctx, "tool_call_completed", map[string]any{"tool": req.Call.Name})
		return outcome, nil
	}
}
