package router_test

import (
	"context"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcore/orchestrator/pkg/checkpoint"
	"github.com/agentcore/orchestrator/pkg/driver"
	"github.com/agentcore/orchestrator/pkg/llm"
	"github.com/agentcore/orchestrator/pkg/message"
	"github.com/agentcore/orchestrator/pkg/router"
	"github.com/agentcore/orchestrator/pkg/skill"
	"github.com/agentcore/orchestrator/pkg/tool"
)

// routingBackend lets the test script a different reply depending on
// whether a handoff tool ("transfer_to_*") is present in the request's
// tool list, approximating "supervisor model" vs. "worker model" without
// needing two separate Gateways.
type routingBackend struct {
	supervisorReply llm.Response
	workerReply     llm.Response
}

func (b *routingBackend) Name() string { return "routing-backend" }

func (b *routingBackend) Generate(ctx context.Context, messages []message.Message, tools []llm.ToolDefinition, params llm.Params) (llm.Response, error) {
	for _, t := range tools {
		if len(t.Name) > len("transfer_to_") && t.Name[:len("transfer_to_")] == "transfer_to_" {
			return b.supervisorReply, nil
		}
	}
	return b.workerReply, nil
}

func (b *routingBackend) GenerateStream(ctx context.Context, messages []message.Message, tools []llm.ToolDefinition, params llm.Params) (iter.Seq2[llm.StreamChunk, error], error) {
	return nil, nil
}

func TestRouter_HandoffToWorker(t *testing.T) {
	backend := &routingBackend{
		supervisorReply: llm.Response{ToolCalls: []message.ToolCall{{ID: "1", Name: "transfer_to_coder", Arguments: map[string]any{"request": "write fib"}}}},
		workerReply:     llm.Response{Text: "def fib(n): ..."},
	}
	gateway := llm.NewGateway(llm.NewRing(backend))
	tools := tool.NewRegistry()
	mgr := checkpoint.NewManager(checkpoint.Config{Enabled: true}, checkpoint.NewMemoryStore(), nil)
	skills := skill.NewStore()

	r := router.New(gateway, tools, mgr, skills, "You are a supervisor.", nil)
	require.NoError(t, r.RegisterWorker("researcher", "You research things.", "researches topics"))
	require.NoError(t, r.RegisterWorker("coder", "You write code.", "writes code"))

	res, err := r.Run(context.Background(), "thread-1", []message.Message{message.NewUser("Write fib in Python")}, message.Metadata{SessionID: "s1"}, driver.Config{})
	require.NoError(t, err)
	assert.Equal(t, "coder", res.RoutedTo)

	last, ok := res.State.LastAssistant()
	require.True(t, ok)
	assert.Equal(t, "def fib(n): ...", last.Content)
}

func TestRouter_NoHandoffReturnsSupervisorReply(t *testing.T) {
	backend := &routingBackend{
		supervisorReply: llm.Response{Text: "I can answer this directly."},
	}
	gateway := llm.NewGateway(llm.NewRing(backend))
	tools := tool.NewRegistry()
	mgr := checkpoint.NewManager(checkpoint.Config{Enabled: true}, checkpoint.NewMemoryStore(), nil)
	skills := skill.NewStore()

	r := router.New(gateway, tools, mgr, skills, "You are a supervisor.", nil)
	require.NoError(t, r.RegisterWorker("coder", "You write code.", "writes code"))

	res, err := r.Run(context.Background(), "thread-2", []message.Message{message.NewUser("hi")}, message.Metadata{SessionID: "s2"}, driver.Config{})
	require.NoError(t, err)
	assert.Empty(t, res.RoutedTo)

	last, ok := res.State.LastAssistant()
	require.True(t, ok)
	assert.Equal(t, "I can answer this directly.", last.Content)
}
