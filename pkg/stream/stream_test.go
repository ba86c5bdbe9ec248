package stream_test

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
	"github.com/agentcore/orchestrator/pkg/stream"
	"github.com/agentcore/orchestrator/pkg/tool"
)

// chunkedBackend streams a fixed sequence of text chunks, then a tool call
// chunk (if any), for a single Generate/GenerateStream cycle.
type chunkedBackend struct {
	chunks    []string
	toolCalls []message.ToolCall
}

func (b *chunkedBackend) Name() string { return "chunked" }

func (b *chunkedBackend) Generate(ctx context.Context, messages []message.Message, tools []llm.ToolDefinition, params llm.Params) (llm.Response, error) {
	return llm.Response{}, nil
}

func (b *chunkedBackend) GenerateStream(ctx context.Context, messages []message.Message, tools []llm.ToolDefinition, params llm.Params) (iter.Seq2[llm.StreamChunk, error], error) {
	return func(yield func(llm.StreamChunk, error) bool) {
		for _, c := range b.chunks {
			if !yield(llm.StreamChunk{Text: c}, nil) {
				return
			}
		}
		for _, tc := range b.toolCalls {
			tc := tc
			if !yield(llm.StreamChunk{ToolCall: &tc}, nil) {
				return
			}
		}
	}, nil
}

func newTestSource(backend llm.Backend, tools *tool.Registry) stream.Source {
	gateway := llm.NewGateway(llm.NewRing(backend))
	store := skill.NewStore()
	directive := middleware.NewSystemDirectiveMiddleware("You are a helpful agent.", store, nil)
	mgr := checkpoint.NewManager(checkpoint.Config{Enabled: true}, checkpoint.NewMemoryStore(), nil)
	return stream.Source{Gateway: gateway, Tools: tools, Stack: middleware.NewStack(directive), Checkpoints: mgr}
}

func collect(seq iter.Seq2[*stream.Event, error]) ([]*stream.Event, error) {
	var events []*stream.Event
	for ev, err := range seq {
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
	return events, nil
}

func TestMultiplexer_RelaysTokensInOrder(t *testing.T) {
	backend := &chunkedBackend{chunks: []string{"Hel", "lo, ", "world"}}
	source := newTestSource(backend, tool.NewRegistry())
	mux := stream.New(nil, driver.Config{})

	events, err := collect(mux.Run(context.Background(), "thread-1", source, []message.Message{message.NewUser("hi")}, message.Metadata{SessionID: "s1"}))
	require.NoError(t, err)

	var text string
	for _, ev := range events {
		if ev.Kind == stream.KindToken {
			text += ev.Text
		}
	}
	assert.Equal(t, "Hello, world", text)
	assert.Equal(t, stream.KindDone, events[len(events)-1].Kind)
}

func TestMultiplexer_FollowsHandoffAndRelaysWorkerTokens(t *testing.T) {
	tools := tool.NewRegistry()
	require.NoError(t, tools.Register(tool.Tool{Name: "transfer_to_coder", HandoffTarget: "coder"}))

	supervisorBackend := &chunkedBackend{toolCalls: []message.ToolCall{{ID: "1", Name: "transfer_to_coder"}}}
	workerBackend := &chunkedBackend{chunks: []string{"def ", "fib(): ..."}}

	supervisorSource := newTestSource(supervisorBackend, tools)
	workerSource := newTestSource(workerBackend, tool.NewRegistry())

	resolver := func(name string) (stream.Source, bool) {
		if name == "coder" {
			return workerSource, true
		}
		return stream.Source{}, false
	}
	mux := stream.New(resolver, driver.Config{})

	events, err := collect(mux.Run(context.Background(), "thread-2", supervisorSource, []message.Message{message.NewUser("write fib")}, message.Metadata{SessionID: "s2"}))
	require.NoError(t, err)

	var sawHandoff bool
	var workerText string
	for _, ev := range events {
		if ev.Kind == stream.KindHandoff {
			sawHandoff = true
			assert.Equal(t, "coder", ev.HandoffTo)
		}
		if ev.Kind == stream.KindToken && ev.WorkerName == "coder" {
			workerText += ev.Text
		}
	}
	assert.True(t, sawHandoff)
	assert.Equal(t, "def fib(): ...", workerText)
}
