package workflow_test

import (
	"context"
	"iter"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/agentcore/orchestrator/pkg/checkpoint"
	"github.com/agentcore/orchestrator/pkg/driver"
	"github.com/agentcore/orchestrator/pkg/llm"
	"github.com/agentcore/orchestrator/pkg/message"
	"github.com/agentcore/orchestrator/pkg/middleware"
	"github.com/agentcore/orchestrator/pkg/skill"
	"github.com/agentcore/orchestrator/pkg/tool"
	"github.com/agentcore/orchestrator/pkg/worker"
	"github.com/agentcore/orchestrator/pkg/workflow"
)

// fixedReplyBackend always answers with the same text, regardless of the
// task it is given — enough to drive each worker-task invocation
// deterministically.
type fixedReplyBackend struct {
	name  string
	reply string
}

func (b *fixedReplyBackend) Name() string { return b.name }

func (b *fixedReplyBackend) Generate(ctx context.Context, messages []message.Message, tools []llm.ToolDefinition, params llm.Params) (llm.Response, error) {
	return llm.Response{Text: b.reply}, nil
}

func (b *fixedReplyBackend) GenerateStream(ctx context.Context, messages []message.Message, tools []llm.ToolDefinition, params llm.Params) (iter.Seq2[llm.StreamChunk, error], error) {
	return nil, nil
}

func newTestWorkerDriver(reply string) *driver.Driver {
	backend := &fixedReplyBackend{name: "w", reply: reply}
	gateway := llm.NewGateway(llm.NewRing(backend))
	store := skill.NewStore()
	directive := middleware.NewSystemDirectiveMiddleware("You are a worker.", store, nil)
	stack := middleware.NewStack(directive)
	mgr := checkpoint.NewManager(checkpoint.Config{Enabled: true}, checkpoint.NewMemoryStore(), nil)
	return driver.New(gateway, tool.NewRegistry(), stack, mgr)
}

func TestScheduler_ParallelThenDependent(t *testing.T) {
	registry := worker.NewRegistry()
	require.NoError(t, registry.Register(worker.Entry{Name: "researcher", Description: "researches", Driver: newTestWorkerDriver("research output")}))
	require.NoError(t, registry.Register(worker.Entry{Name: "analyst", Description: "analyzes", Driver: newTestWorkerDriver("analysis output")}))
	require.NoError(t, registry.Register(worker.Entry{Name: "coder", Description: "writes code", Driver: newTestWorkerDriver("final code")}))

	catalog := workflow.NewCatalog(registry)
	checkpoints := checkpoint.NewManager(checkpoint.Config{Enabled: true}, checkpoint.NewMemoryStore(), nil)

	plan := workflow.Plan{
		Name: "research-and-build",
		Steps: []workflow.Step{
			{ID: "a", WorkerName: "researcher", Task: "research topic"},
			{ID: "b", WorkerName: "analyst", Task: "analyze topic"},
			{ID: "c", WorkerName: "coder", Task: "build from results", DependsOn: []string{"a", "b"}},
		},
	}
	store := templateStoreWithPlan(t, plan)
	defer store.Close()

	scheduler := workflow.NewScheduler(catalog, store, nil, checkpoints)

	res, err := scheduler.Run(context.Background(), "thread-wf-1", "research-and-build", "do the thing", message.Metadata{SessionID: "s1"})
	require.NoError(t, err)

	require.Len(t, res.Results, 3)
	assert.Equal(t, "research output", res.Results["a"].Output)
	assert.Equal(t, "analysis output", res.Results["b"].Output)
	assert.Equal(t, "final code", res.Results["c"].Output)

	last, ok := res.State.LastAssistant()
	require.True(t, ok)
	assert.Contains(t, last.Content, "final code")
	assert.Equal(t, 2, res.Rounds)
}

func TestScheduler_FallsBackToSingleStepWhenNoPlanSource(t *testing.T) {
	registry := worker.NewRegistry()
	require.NoError(t, registry.Register(worker.Entry{Name: "coder", Description: "writes code", Driver: newTestWorkerDriver("done")}))

	catalog := workflow.NewCatalog(registry)
	checkpoints := checkpoint.NewManager(checkpoint.Config{Enabled: true}, checkpoint.NewMemoryStore(), nil)
	scheduler := workflow.NewScheduler(catalog, nil, nil, checkpoints)

	res, err := scheduler.Run(context.Background(), "thread-wf-2", "", "just do it", message.Metadata{SessionID: "s2"})
	require.NoError(t, err)
	require.Len(t, res.Plan.Steps, 1)
	assert.Equal(t, "coder", res.Plan.Steps[0].WorkerName)
}

// templateStoreWithPlan writes plan to a temp YAML file and loads a
// TemplateStore over that directory, so tests can exercise the explicit
// template-name resolution path without fabricating an LLM call.
func templateStoreWithPlan(t *testing.T, plan workflow.Plan) *workflow.TemplateStore {
	t.Helper()
	dir := t.TempDir()
	raw, err := yaml.Marshal(plan)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, plan.Name+".yaml"), raw, 0o644))

	store, err := workflow.NewTemplateStore(dir)
	require.NoError(t, err)
	return store
}
