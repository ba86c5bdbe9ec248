package orchestrator_test

import (
	"context"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcore/orchestrator/pkg/approval"
	"github.com/agentcore/orchestrator/pkg/checkpoint"
	"github.com/agentcore/orchestrator/pkg/config"
	"github.com/agentcore/orchestrator/pkg/driver"
	"github.com/agentcore/orchestrator/pkg/llm"
	"github.com/agentcore/orchestrator/pkg/message"
	"github.com/agentcore/orchestrator/pkg/middleware"
	"github.com/agentcore/orchestrator/pkg/orchestrator"
	"github.com/agentcore/orchestrator/pkg/skill"
	"github.com/agentcore/orchestrator/pkg/tool"
)

// fixedReplyBackend always answers with the same text, regardless of the
// request — enough to drive one dispatched cycle deterministically.
type fixedReplyBackend struct{ reply string }

func (b *fixedReplyBackend) Name() string { return "fixed" }

func (b *fixedReplyBackend) Generate(ctx context.Context, messages []message.Message, tools []llm.ToolDefinition, params llm.Params) (llm.Response, error) {
	return llm.Response{Text: b.reply}, nil
}

func (b *fixedReplyBackend) GenerateStream(ctx context.Context, messages []message.Message, tools []llm.ToolDefinition, params llm.Params) (iter.Seq2[llm.StreamChunk, error], error) {
	return func(yield func(llm.StreamChunk, error) bool) {
		yield(llm.StreamChunk{Text: b.reply}, nil)
	}, nil
}

func newFixedDriver(reply string) *driver.Driver {
	gateway := llm.NewGateway(llm.NewRing(&fixedReplyBackend{reply: reply}))
	store := skill.NewStore()
	directive := middleware.NewSystemDirectiveMiddleware("You are a helpful agent.", store, nil)
	stack := middleware.NewStack(directive)
	mgr := checkpoint.NewManager(checkpoint.Config{Enabled: true}, checkpoint.NewMemoryStore(), nil)
	return driver.New(gateway, tool.NewRegistry(), stack, mgr)
}

func testConfig() config.Config {
	cfg := config.Config{DefaultModel: "fixed", ModelRing: []string{"fixed"}}
	cfg.SetDefaults()
	return cfg
}

func TestOrchestrator_ExecuteSingleMode(t *testing.T) {
	single := newFixedDriver("hello from single")
	gate := approval.NewGate()

	o := orchestrator.New(single, nil, nil, gate, nil, tool.NewRegistry(), nil, testConfig())

	req := orchestrator.Request{
		Mode:      orchestrator.ModeSingle,
		SessionID: "s1",
		UserID:    "u1",
		Role:      "user",
		Messages:  []message.Message{message.NewUser("hi")},
	}
	state, err := o.Execute(context.Background(), req)
	require.NoError(t, err)

	last, ok := state.LastAssistant()
	require.True(t, ok)
	assert.Equal(t, "hello from single", last.Content)
}

func TestOrchestrator_ExecuteUnknownMode(t *testing.T) {
	single := newFixedDriver("x")
	gate := approval.NewGate()
	o := orchestrator.New(single, nil, nil, gate, nil, tool.NewRegistry(), nil, testConfig())

	_, err := o.Execute(context.Background(), orchestrator.Request{Mode: "bogus", SessionID: "s1"})
	require.Error(t, err)
}

func TestOrchestrator_ExecuteMultiModeRequiresRouter(t *testing.T) {
	single := newFixedDriver("x")
	gate := approval.NewGate()
	o := orchestrator.New(single, nil, nil, gate, nil, tool.NewRegistry(), nil, testConfig())

	_, err := o.Execute(context.Background(), orchestrator.Request{Mode: orchestrator.ModeMulti, SessionID: "s1"})
	require.Error(t, err)
}

func TestOrchestrator_ExecuteStreamSingleMode(t *testing.T) {
	single := newFixedDriver("streamed hello")
	gate := approval.NewGate()
	o := orchestrator.New(single, nil, nil, gate, nil, tool.NewRegistry(), nil, testConfig())

	req := orchestrator.Request{
		Mode:      orchestrator.ModeSingle,
		SessionID: "s-stream",
		Messages:  []message.Message{message.NewUser("hi")},
	}

	var text string
	var sawDone bool
	for ev, err := range o.ExecuteStream(context.Background(), req) {
		require.NoError(t, err)
		if ev.Kind == "token" {
			text += ev.Text
		}
		if ev.Kind == "done" {
			sawDone = true
		}
	}
	assert.Equal(t, "streamed hello", text)
	assert.True(t, sawDone)
}

func TestOrchestrator_ApprovalsPassthrough(t *testing.T) {
	single := newFixedDriver("x")
	gate := approval.NewGate()
	o := orchestrator.New(single, nil, nil, gate, nil, tool.NewRegistry(), nil, testConfig())

	req := gate.Create("s1", "u1", "send_email", "send a marketing email", nil, 0)
	pending := o.ListPendingApprovals("s1")
	require.Len(t, pending, 1)
	assert.Equal(t, req.ID, pending[0].ID)

	resolved, err := o.Approve("s1", req.ID, "looks fine")
	require.NoError(t, err)
	assert.Equal(t, approval.StatusApproved, resolved.Status)
}

func TestOrchestrator_RefreshExternalToolsWithNoBridges(t *testing.T) {
	single := newFixedDriver("x")
	gate := approval.NewGate()
	o := orchestrator.New(single, nil, nil, gate, nil, tool.NewRegistry(), nil, testConfig())

	n, err := o.RefreshExternalTools(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestOrchestrator_ListWorkflowTemplatesEmptyWithoutStore(t *testing.T) {
	single := newFixedDriver("x")
	gate := approval.NewGate()
	o := orchestrator.New(single, nil, nil, gate, nil, tool.NewRegistry(), nil, testConfig())

	assert.Empty(t, o.ListWorkflowTemplates())
}
