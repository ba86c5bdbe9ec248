// Package driver implements the Agent Loop Driver (spec §4.5): the
// LLM-tool reasoning cycle, integrated with the middleware stack, the
// checkpoint store, and cancellation.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/agentcore/orchestrator/pkg/checkpoint"
	"github.com/agentcore/orchestrator/pkg/llm"
	"github.com/agentcore/orchestrator/pkg/message"
	"github.com/agentcore/orchestrator/pkg/middleware"
	"github.com/agentcore/orchestrator/pkg/tool"
)

// ErrCycleCapExceeded is surfaced (as both a returned error and an
// assistant-visible message) when a run exceeds Config.CycleCap
// (spec §4.5, §7).
var ErrCycleCapExceeded = errors.New("driver: cycle cap exceeded")

const defaultCycleCap = 25
const defaultNamespace = "default"

// Config controls one Driver.Run / Driver.RunFrom invocation.
type Config struct {
	// Role gates the tool list via the role filter and per-tool
	// RequiresRole (spec §4.5 step 3).
	Role string

	// Namespace is the checkpoint namespace for this run — distinct
	// namespaces let the same thread_id host independent cycles (e.g. the
	// Multi-Agent Router's supervisor vs. each worker, spec §4.7).
	Namespace string

	// CycleCap bounds the number of reason/act cycles (default 25).
	CycleCap int

	Params llm.Params
}

func (c Config) withDefaults() Config {
	if c.CycleCap <= 0 {
		c.CycleCap = defaultCycleCap
	}
	if c.Namespace == "" {
		c.Namespace = defaultNamespace
	}
	return c
}

// WithDefaults applies the same default-filling withDefaults does
// internally, exported for callers outside this package that run their
// own cycle loop against the same Config shape (e.g. pkg/stream's
// streaming multiplexer).
func (c Config) WithDefaults() Config {
	return c.withDefaults()
}

// Result is what one Run/RunFrom produces.
type Result struct {
	State message.AgentState

	// HandoffTo is non-empty when a tool call resolved to a Command{goto}
	// (spec §4.5 step 7, used by the Multi-Agent Router). When set, State
	// reflects everything committed before the jump and the run is NOT
	// otherwise terminal — the caller (the Router) decides what happens
	// next.
	HandoffTo string

	// CycleCapExceeded reports whether the run stopped because it hit
	// Config.CycleCap rather than reaching a natural no-tool-call
	// termination.
	CycleCapExceeded bool

	Cycles int
}

// Driver runs reason/act cycles for a single agent (supervisor, worker, or
// a standalone single-mode agent) over one LLM Gateway, tool Registry, and
// middleware Stack.
type Driver struct {
	Gateway     *llm.Gateway
	Tools       *tool.Registry
	Stack       *middleware.Stack
	Checkpoints *checkpoint.Manager

	log *slog.Logger
}

// New constructs a Driver.
func New(gateway *llm.Gateway, tools *tool.Registry, stack *middleware.Stack, checkpoints *checkpoint.Manager) *Driver {
	return &Driver{
		Gateway:     gateway,
		Tools:       tools,
		Stack:       stack,
		Checkpoints: checkpoints,
		log:         slog.Default().With("component", "driver"),
	}
}

// Run loads the latest checkpoint for (threadID, cfg.Namespace), merges
// incoming onto it, and drives the loop to completion (spec §4.5 step 1).
func (d *Driver) Run(ctx context.Context, threadID string, incoming []message.Message, metadata message.Metadata, cfg Config) (Result, error) {
	cfg = cfg.withDefaults()

	release, err := d.Checkpoints.AcquireCycle(ctx, threadID, cfg.Namespace)
	if err != nil {
		return Result{}, fmt.Errorf("driver: acquire cycle lock: %w", err)
	}
	defer release()

	state, parentID := d.loadState(ctx, threadID, cfg.Namespace, metadata)
	state = state.Append(incoming...)

	return d.runCycles(ctx, threadID, cfg.Namespace, state, parentID, cfg)
}

// RunFrom drives the loop from an explicit starting state instead of one
// restored from the checkpoint store (the latest checkpoint is read only
// for its id, the parent of this run's checkpoints) — used by the Multi-Agent Router
// to hand control from the supervisor to a worker with the current
// message list (spec §4.7), and by the Workflow Scheduler's worker-task
// invocations.
func (d *Driver) RunFrom(ctx context.Context, threadID, namespace string, state message.AgentState, cfg Config) (Result, error) {
	cfg = cfg.withDefaults()
	cfg.Namespace = namespace

	release, err := d.Checkpoints.AcquireCycle(ctx, threadID, namespace)
	if err != nil {
		return Result{}, fmt.Errorf("driver: acquire cycle lock: %w", err)
	}
	defer release()

	_, parentID := d.loadState(ctx, threadID, namespace, state.Metadata)
	return d.runCycles(ctx, threadID, namespace, state, parentID, cfg)
}

func (d *Driver) loadState(ctx context.Context, threadID, namespace string, metadata message.Metadata) (message.AgentState, string) {
	cp, ok := d.Checkpoints.Load(ctx, threadID, namespace)
	if !ok {
		return message.AgentState{Metadata: metadata}, ""
	}
	state := cp.ChannelValues.State
	state.Metadata = metadata
	return state, cp.CheckpointID
}

func (d *Driver) runCycles(ctx context.Context, threadID, namespace string, state message.AgentState, parentID string, cfg Config) (Result, error) {
	for cycle := 1; cycle <= cfg.CycleCap; cycle++ {
		if err := ctx.Err(); err != nil {
			return Result{State: state, Cycles: cycle - 1}, err
		}

		committed := state

		var err error
		state, err = d.Stack.RunBeforeModel(ctx, state)
		if err != nil {
			return Result{State: committed}, fmt.Errorf("driver: before_model: %w", err)
		}
		if ckCfg := d.Checkpoints.Config(); ckCfg.ShouldCheckpointBeforeLLM() {
			parentID = d.save(ctx, threadID, namespace, state, cycle, parentID, checkpoint.PhasePreLLM)
		}

		tools := d.Stack.FilterTools(cfg.Role, d.Tools.List(cfg.Role))
		toolDefs := toToolDefinitions(tools)

		modelCall := d.Stack.BuildModelCall(func(ctx context.Context, req middleware.ModelRequest) (llm.Response, error) {
			return d.Gateway.Call(ctx, req.Messages, req.Tools, req.Params)
		})
		resp, err := modelCall(ctx, middleware.ModelRequest{Messages: state.Messages, Tools: toolDefs, Params: cfg.Params})
		if err != nil {
			d.save(ctx, threadID, namespace, state, cycle, parentID, checkpoint.PhaseError)
			return Result{State: state, Cycles: cycle}, fmt.Errorf("driver: model call: %w", err)
		}

		assistant := message.NewAssistant(resp.Text, resp.ToolCalls)
		state = state.Append(assistant)
		parentID = d.save(ctx, threadID, namespace, state, cycle, parentID, checkpoint.PhasePostLLM)

		state, err = d.Stack.RunAfterModel(ctx, state)
		if err != nil {
			return Result{State: state, Cycles: cycle}, fmt.Errorf("driver: after_model: %w", err)
		}

		if !assistant.HasToolCalls() {
			d.save(ctx, threadID, namespace, state, cycle, parentID, checkpoint.PhaseIterationEnd)
			return Result{State: state, Cycles: cycle}, nil
		}

		var handoff string
		state, handoff, err = d.runToolCalls(ctx, state, assistant.ToolCalls, cfg)
		if err != nil {
			return Result{State: state, Cycles: cycle}, err
		}
		parentID = d.save(ctx, threadID, namespace, state, cycle, parentID, checkpoint.PhasePostTool)

		if handoff != "" {
			return Result{State: state, HandoffTo: handoff, Cycles: cycle}, nil
		}
	}

	capMsg := message.NewAssistant(ErrCycleCapExceeded.Error(), nil)
	state = state.Append(capMsg)
	d.save(ctx, threadID, namespace, state, cfg.CycleCap, parentID, checkpoint.PhaseError)
	return Result{State: state, CycleCapExceeded: true, Cycles: cfg.CycleCap}, ErrCycleCapExceeded
}

// runToolCalls processes tool calls in emission order. The first Command{goto}
// encountered stops processing immediately, matching spec §4.7's "take the
// first [handoff] in emission order" tie-break.
func (d *Driver) runToolCalls(ctx context.Context, state message.AgentState, calls []message.ToolCall, cfg Config) (message.AgentState, string, error) {
	toolCall := d.Stack.BuildToolCall(d.invokeTool())

	for _, call := range calls {
		if err := ctx.Err(); err != nil {
			return state, "", err
		}
		resolved, _ := d.Tools.Resolve(call.Name, cfg.Role)
		outcome, err := toolCall(ctx, middleware.ToolRequest{Call: call, Tool: resolved, State: state})
		if err != nil {
			return state, "", fmt.Errorf("driver: tool call %s: %w", call.Name, err)
		}
		if outcome.Goto != "" {
			return state, outcome.Goto, nil
		}
		result := ""
		if outcome.Result != nil {
			result = *outcome.Result
		}
		state = state.Append(message.NewToolResult(call.ID, result))
	}
	return state, "", nil
}

// invokeTool is the innermost ToolCallFunc: resolve-then-invoke. Any tool
// error is converted to an "Error: ..." result rather than a Go error
// (spec §7 propagation), so the model can recover on its next cycle.
func (d *Driver) invokeTool() middleware.ToolCallFunc {
	return func(ctx context.Context, req middleware.ToolRequest) (middleware.ToolOutcome, error) {
		t := req.Tool
		if t.Name == "" {
			result := fmt.Sprintf("Error: tool not found: %s", req.Call.Name)
			return middleware.ToolOutcome{Result: &result}, nil
		}
		if t.HandoffTarget != "" {
			return middleware.ToolOutcome{Goto: t.HandoffTarget}, nil
		}
		out, err := t.Invoke(ctx, req.Call.Arguments)
		if err != nil {
			result := fmt.Sprintf("Error: %s", err.Error())
			return middleware.ToolOutcome{Result: &result}, nil
		}
		return middleware.ToolOutcome{Result: &out}, nil
	}
}

func (d *Driver) save(ctx context.Context, threadID, namespace string, state message.AgentState, iteration int, parentID string, phase checkpoint.Phase) string {
	id := uuid.NewString()
	cp := checkpoint.Checkpoint{
		ThreadID:           threadID,
		Namespace:          namespace,
		CheckpointID:       id,
		ParentCheckpointID: parentID,
		ChannelValues:      checkpoint.StateSnapshot{State: state, Iteration: iteration},
		Phase:              phase,
		StrategyUsed:       d.Checkpoints.Config().Strategy,
		CreatedAt:          time.Now(),
	}
	if err := d.Checkpoints.Save(ctx, threadID, namespace, cp); err != nil {
		d.log.Warn("checkpoint save failed, treating step as unfinished", "thread_id", threadID, "namespace", namespace, "phase", phase, "error", err)
		return parentID
	}
	return id
}

func toToolDefinitions(tools []tool.Tool) []llm.ToolDefinition {
	out := make([]llm.ToolDefinition, len(tools))
	for i, t := range tools {
		out[i] = llm.ToolDefinition{Name: t.Name, Description: t.Description, Schema: t.Schema}
	}
	return out
}
