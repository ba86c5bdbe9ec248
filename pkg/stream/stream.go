// Package stream implements the Stream Multiplexer (spec §2, §6 Outbound
// "token/event stream"): it converts an Agent Loop Driver's reasoning
// cycle — including Multi-Agent Router handoffs — into one external,
// lazily-pulled sequence of events, relaying every chunk from whichever
// worker is currently active and surfacing the handoff itself as an
// observable event (spec §9 Open Questions).
package stream

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"

	"github.com/agentcore/orchestrator/pkg/checkpoint"
	"github.com/agentcore/orchestrator/pkg/driver"
	"github.com/agentcore/orchestrator/pkg/llm"
	"github.com/agentcore/orchestrator/pkg/message"
	"github.com/agentcore/orchestrator/pkg/middleware"
	"github.com/agentcore/orchestrator/pkg/tool"
)

// Kind tags the variant of a streamed Event.
type Kind string

const (
	// KindToken is one text fragment of the active agent's reply.
	KindToken Kind = "token"
	// KindToolCall marks a tool invocation starting/finishing.
	KindToolCall Kind = "tool_call"
	// KindHandoff marks the Multi-Agent Router transferring control to a
	// named worker — emitted once, before that worker's chunks begin.
	KindHandoff Kind = "handoff"
	// KindDone marks the end of the stream; no further events follow.
	KindDone Kind = "done"
)

// Event is one unit of the external stream.
type Event struct {
	Kind Kind

	// Text is the token fragment (KindToken).
	Text string

	// ToolName/ToolResult describe a KindToolCall event; ToolResult is
	// empty until the call completes.
	ToolName   string
	ToolResult string

	// WorkerName attributes the event to the agent currently producing
	// output — empty for a single-agent run, the worker name after a
	// handoff (spec §9: "all chunks from the active worker are relayed").
	WorkerName string

	// HandoffTo is set on a KindHandoff event.
	HandoffTo string
}

// Source is the narrow surface the Multiplexer needs from a driver.Driver
// to run one streaming reasoning cycle.
type Source struct {
	Gateway     *llm.Gateway
	Tools       *tool.Registry
	Stack       *middleware.Stack
	Checkpoints *checkpoint.Manager
}

// FromDriver adapts a *driver.Driver into a Source.
func FromDriver(d *driver.Driver) Source {
	return Source{Gateway: d.Gateway, Tools: d.Tools, Stack: d.Stack, Checkpoints: d.Checkpoints}
}

// Resolver looks up the Source for a worker name, used to continue
// streaming across a Multi-Agent Router handoff without the caller
// re-wiring anything (spec §4.7 combined with §2's stream multiplexer row).
type Resolver func(workerName string) (Source, bool)

// Multiplexer drives one or more chained streaming reasoning cycles
// (a single agent, or a supervisor followed by a worker after a handoff)
// and exposes them as one flat event sequence.
type Multiplexer struct {
	resolver Resolver
	cfg      driver.Config
}

// New constructs a Multiplexer. resolver may be nil for single-agent runs
// that never hand off.
func New(resolver Resolver, cfg driver.Config) *Multiplexer {
	return &Multiplexer{resolver: resolver, cfg: cfg}
}

// Run streams threadID's reasoning cycle starting from source, relaying
// tokens as they arrive and following any handoff via resolver.
func (m *Multiplexer) Run(ctx context.Context, threadID string, source Source, incoming []message.Message, metadata message.Metadata) iter.Seq2[*Event, error] {
	return func(yield func(*Event, error) bool) {
		workerName := ""
		cfg := m.cfg.WithDefaults()
		namespace := cfg.Namespace

		state := message.AgentState{Metadata: metadata}
		if cp, ok := source.Checkpoints.Load(ctx, threadID, namespace); ok {
			state = cp.ChannelValues.State
			state.Metadata = metadata
		}
		state = state.Append(incoming...)

		for {
			next, handoff, err := m.runCycle(ctx, threadID, namespace, source, state, workerName, cfg, yield)
			if err != nil {
				yield(nil, err)
				return
			}
			state = next
			if handoff == "" {
				break
			}
			if m.resolver == nil {
				yield(nil, fmt.Errorf("stream: handoff to %q but no resolver configured", handoff))
				return
			}
			nextSource, ok := m.resolver(handoff)
			if !ok {
				yield(nil, fmt.Errorf("stream: unknown worker %q", handoff))
				return
			}
			if !yield(&Event{Kind: KindHandoff, HandoffTo: handoff}, nil) {
				return
			}
			source = nextSource
			workerName = handoff
			namespace = "worker:" + handoff
		}

		yield(&Event{Kind: KindDone, WorkerName: workerName}, nil)
	}
}

// runCycle runs the driver.Driver's cycle loop (load, model stream,
// tool calls, repeat) against one Source, yielding a KindToken event per
// chunk and a pair of KindToolCall events (start/finish) per tool call. It
// mirrors driver.Driver.runCycles's control flow but calls
// Gateway.CallStream instead of Gateway.Call, since the two cannot share
// one implementation without either loop losing its defining property
// (Call's retry-on-failure vs. CallStream's non-restartable relay).
func (m *Multiplexer) runCycle(ctx context.Context, threadID, namespace string, source Source, state message.AgentState, workerName string, cfg driver.Config, yield func(*Event, error) bool) (message.AgentState, string, error) {
	release, err := source.Checkpoints.AcquireCycle(ctx, threadID, namespace)
	if err != nil {
		return state, "", fmt.Errorf("stream: acquire cycle lock: %w", err)
	}
	defer release()

	cp, loaded := source.Checkpoints.Load(ctx, threadID, namespace)
	parentID := ""
	if loaded {
		parentID = cp.CheckpointID
	}

	for cycle := 1; cycle <= cfg.CycleCap; cycle++ {
		if err := ctx.Err(); err != nil {
			return state, "", err
		}

		state, err = source.Stack.RunBeforeModel(ctx, state)
		if err != nil {
			return state, "", fmt.Errorf("stream: before_model: %w", err)
		}

		tools := source.Stack.FilterTools(cfg.Role, source.Tools.List(cfg.Role))
		toolDefs := make([]llm.ToolDefinition, len(tools))
		for i, t := range tools {
			toolDefs[i] = llm.ToolDefinition{Name: t.Name, Description: t.Description, Schema: t.Schema}
		}

		chunks, err := source.Gateway.CallStream(ctx, state.Messages, toolDefs, cfg.Params)
		if err != nil {
			return state, "", fmt.Errorf("stream: call stream: %w", err)
		}

		var text string
		var toolCalls []message.ToolCall
		for chunk, chunkErr := range chunks {
			if chunkErr != nil {
				return state, "", fmt.Errorf("stream: chunk: %w", chunkErr)
			}
			if chunk.Text != "" {
				text += chunk.Text
				if !yield(&Event{Kind: KindToken, Text: chunk.Text, WorkerName: workerName}, nil) {
					return state, "", nil
				}
			}
			if chunk.ToolCall != nil {
				toolCalls = append(toolCalls, *chunk.ToolCall)
			}
		}

		assistant := message.NewAssistant(text, toolCalls)
		state = state.Append(assistant)
		parentID = save(ctx, source.Checkpoints, threadID, namespace, state, cycle, parentID, checkpoint.PhasePostLLM)

		state, err = source.Stack.RunAfterModel(ctx, state)
		if err != nil {
			return state, "", fmt.Errorf("stream: after_model: %w", err)
		}

		if !assistant.HasToolCalls() {
			save(ctx, source.Checkpoints, threadID, namespace, state, cycle, parentID, checkpoint.PhaseIterationEnd)
			return state, "", nil
		}

		var handoff string
		state, handoff, err = m.runToolCalls(ctx, source, state, toolCalls, workerName, cfg, yield)
		if err != nil {
			return state, "", err
		}
		parentID = save(ctx, source.Checkpoints, threadID, namespace, state, cycle, parentID, checkpoint.PhasePostTool)
		if handoff != "" {
			return state, handoff, nil
		}
	}

	return state, "", driver.ErrCycleCapExceeded
}

func (m *Multiplexer) runToolCalls(ctx context.Context, source Source, state message.AgentState, calls []message.ToolCall, workerName string, cfg driver.Config, yield func(*Event, error) bool) (message.AgentState, string, error) {
	toolCall := source.Stack.BuildToolCall(func(ctx context.Context, req middleware.ToolRequest) (middleware.ToolOutcome, error) {
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
	})

	for _, call := range calls {
		if !yield(&Event{Kind: KindToolCall, ToolName: call.Name, WorkerName: workerName}, nil) {
			return state, "", nil
		}
		resolved, _ := source.Tools.Resolve(call.Name, cfg.Role)
		outcome, err := toolCall(ctx, middleware.ToolRequest{Call: call, Tool: resolved, State: state})
		if err != nil {
			return state, "", fmt.Errorf("stream: tool call %s: %w", call.Name, err)
		}
		if outcome.Goto != "" {
			return state, outcome.Goto, nil
		}
		result := ""
		if outcome.Result != nil {
			result = *outcome.Result
		}
		if !yield(&Event{Kind: KindToolCall, ToolName: call.Name, ToolResult: result, WorkerName: workerName}, nil) {
			return state, "", nil
		}
		state = state.Append(message.NewToolResult(call.ID, result))
	}
	return state, "", nil
}

// save persists one checkpoint the same way driver.Driver.save does,
// duplicated rather than shared because the two loops' state shapes
// diverge slightly (streaming accumulates chunk text before a Message
// exists at all) and a three-line helper isn't worth an exported seam.
func save(ctx context.Context, checkpoints *checkpoint.Manager, threadID, namespace string, state message.AgentState, iteration int, parentID string, phase checkpoint.Phase) string {
	id := uuid.NewString()
	cp := checkpoint.Checkpoint{
		ThreadID:           threadID,
		Namespace:          namespace,
		CheckpointID:       id,
		ParentCheckpointID: parentID,
		ChannelValues:      checkpoint.StateSnapshot{State: state, Iteration: iteration},
		Phase:              phase,
		StrategyUsed:       checkpoints.Config().Strategy,
		CreatedAt:          time.Now(),
	}
	if err := checkpoints.Save(ctx, threadID, namespace, cp); err != nil {
		return parentID
	}
	return id
}
