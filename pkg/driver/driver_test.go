package driver_test

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
	"github.com/agentcore/orchestrator/pkg/middleware"
	"github.com/agentcore/orchestrator/pkg/skill"
	"github.com/agentcore/orchestrator/pkg/tool"
)

// scriptedBackend replays a fixed sequence of responses, one per call,
// regardless of the messages it is given — enough to drive the loop
// deterministically for scenarios S1/S2/S8.
type scriptedBackend struct {
	responses []llm.Response
	calls     int
}

func (b *scriptedBackend) Name() string { return "scripted" }

func (b *scriptedBackend) Generate(ctx context.Context, messages []message.Message, tools []llm.ToolDefinition, params llm.Params) (llm.Response, error) {
	if b.calls >= len(b.responses) {
		return llm.Response{Text: "done"}, nil
	}
	r := b.responses[b.calls]
	b.calls++
	return r, nil
}

func (b *scriptedBackend) GenerateStream(ctx context.Context, messages []message.Message, tools []llm.ToolDefinition, params llm.Params) (iter.Seq2[llm.StreamChunk, error], error) {
	return nil, nil
}

func newTestDriver(t *testing.T, backend llm.Backend, tools *tool.Registry) *driver.Driver {
	t.Helper()
	gateway := llm.NewGateway(llm.NewRing(backend))
	store := skill.NewStore()
	directive := middleware.NewSystemDirectiveMiddleware("You are a helpful agent.", store, nil)
	stack := middleware.NewStack(directive)
	mgr := checkpoint.NewManager(checkpoint.Config{Enabled: true}, checkpoint.NewMemoryStore(), nil)
	return driver.New(gateway, tools, stack, mgr)
}

func TestDriver_SingleAgentNoTools(t *testing.T) {
	backend := &scriptedBackend{responses: []llm.Response{
		{Text: "Decorators wrap functions to extend behavior without changing their source code definitions."},
	}}
	d := newTestDriver(t, backend, tool.NewRegistry())

	res, err := d.Run(context.Background(), "thread-1", []message.Message{message.NewUser("Explain decorators in 20 words.")}, message.Metadata{SessionID: "s1"}, driver.Config{})
	require.NoError(t, err)

	last, ok := res.State.LastAssistant()
	require.True(t, ok)
	assert.Contains(t, last.Content, "Decorators")
	assert.Equal(t, 1, res.Cycles)
	assert.Empty(t, res.HandoffTo)
}

func TestDriver_OneToolCycle(t *testing.T) {
	registry := tool.NewRegistry()
	require.NoError(t, registry.Register(tool.Tool{
		Name:        "web_search",
		Description: "search the web",
		Invoke: func(ctx context.Context, args map[string]any) (string, error) {
			return "doc: X", nil
		},
	}))

	backend := &scriptedBackend{responses: []llm.Response{
		{Text: "", ToolCalls: []message.ToolCall{{ID: "call-1", Name: "web_search", Arguments: map[string]any{"q": "X"}}}},
		{Text: "Found: doc: X"},
	}}
	d := newTestDriver(t, backend, registry)

	res, err := d.Run(context.Background(), "thread-2", []message.Message{message.NewUser("Search X")}, message.Metadata{SessionID: "s2"}, driver.Config{})
	require.NoError(t, err)

	last, ok := res.State.LastAssistant()
	require.True(t, ok)
	assert.Equal(t, "Found: doc: X", last.Content)

	var toolResults []message.Message
	for _, m := range res.State.Messages {
		if m.Kind == message.KindToolResult {
			toolResults = append(toolResults, m)
		}
	}
	require.Len(t, toolResults, 1)
	assert.Equal(t, "doc: X", toolResults[0].Content)
	assert.Equal(t, 2, res.Cycles)
}

func TestDriver_CycleCapExceeded(t *testing.T) {
	registry := tool.NewRegistry()
	require.NoError(t, registry.Register(tool.Tool{
		Name: "loop_tool",
		Invoke: func(ctx context.Context, args map[string]any) (string, error) {
			return "again", nil
		},
	}))

	// Every response re-emits a tool call, so the loop never terminates
	// naturally and must hit the cap.
	responses := make([]llm.Response, 0, 30)
	for i := 0; i < 30; i++ {
		responses = append(responses, llm.Response{ToolCalls: []message.ToolCall{{ID: "x", Name: "loop_tool"}}})
	}
	backend := &scriptedBackend{responses: responses}
	d := newTestDriver(t, backend, registry)

	res, err := d.Run(context.Background(), "thread-3", []message.Message{message.NewUser("go")}, message.Metadata{SessionID: "s3"}, driver.Config{CycleCap: 5})
	require.ErrorIs(t, err, driver.ErrCycleCapExceeded)
	assert.True(t, res.CycleCapExceeded)
	assert.Equal(t, 5, res.Cycles)
}

func TestDriver_HandoffStopsToolProcessing(t *testing.T) {
	registry := tool.NewRegistry()
	require.NoError(t, registry.Register(tool.Tool{Name: "transfer_to_coder", HandoffTarget: "coder"}))
	require.NoError(t, registry.Register(tool.Tool{
		Name: "normal_tool",
		Invoke: func(ctx context.Context, args map[string]any) (string, error) {
			return "should not run", nil
		},
	}))

	backend := &scriptedBackend{responses: []llm.Response{
		{ToolCalls: []message.ToolCall{
			{ID: "1", Name: "transfer_to_coder"},
			{ID: "2", Name: "normal_tool"},
		}},
	}}
	d := newTestDriver(t, backend, registry)

	res, err := d.Run(context.Background(), "thread-4", []message.Message{message.NewUser("write fib")}, message.Metadata{SessionID: "s4"}, driver.Config{})
	require.NoError(t, err)
	assert.Equal(t, "coder", res.HandoffTo)

	for _, m := range res.State.Messages {
		assert.NotEqual(t, "should not run", m.Content)
	}
}
