package middleware_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcore/orchestrator/pkg/llm"
	"github.com/agentcore/orchestrator/pkg/message"
	"github.com/agentcore/orchestrator/pkg/middleware"
	"github.com/agentcore/orchestrator/pkg/tool"
)

type recordingSink struct {
	names []string
}

func (s *recordingSink) Emit(ctx context.Context, name string, attrs map[string]any) {
	s.names = append(s.names, name)
}

func TestObservabilityMiddleware_WrapModelCallEmitsExecutingAndCompleted(t *testing.T) {
	sink := &recordingSink{}
	m := middleware.NewObservabilityMiddleware(sink)

	next := func(ctx context.Context, req middleware.ModelRequest) (llm.Response, error) {
		return llm.Response{Text: "hi"}, nil
	}

	resp, err := m.WrapModelCall(next)(context.Background(), middleware.ModelRequest{
		Messages: []message.Message{message.NewUser("hi")},
	})
	require.NoError(t, err)
	assert.Equal(t, "hi", resp.Text)
	assert.Equal(t, []string{"model_call_executing", "model_call_completed"}, sink.names)
}

func TestObservabilityMiddleware_WrapToolCallEmitsExecutingAndCompleted(t *testing.T) {
	sink := &recordingSink{}
	m := middleware.NewObservabilityMiddleware(sink)

	next := func(ctx context.Context, req middleware.ToolRequest) (middleware.ToolOutcome, error) {
		result := "ok"
		return middleware.ToolOutcome{Result: &result}, nil
	}

	req := middleware.ToolRequest{
		Call: message.ToolCall{ID: "c1", Name: "list_files"},
		Tool: tool.Tool{Name: "list_files"},
	}
	outcome, err := m.WrapToolCall(next)(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, outcome.Result)
	assert.Equal(t, "ok", *outcome.Result)
	assert.Equal(t, []string{"tool_call_executing", "tool_call_completed"}, sink.names)
}

func TestObservabilityMiddleware_NilSinkIsSpansOnly(t *testing.T) {
	m := middleware.NewObservabilityMiddleware(nil)

	next := func(ctx context.Context, req middleware.ModelRequest) (llm.Response, error) {
		return llm.Response{Text: "hi"}, nil
	}
	resp, err := m.WrapModelCall(next)(context.Background(), middleware.ModelRequest{})
	require.NoError(t, err)
	assert.Equal(t, "hi", resp.Text)
}
