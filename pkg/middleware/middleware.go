// Package middleware implements the Agent Loop Driver's composable
// middleware stack (spec §4.4): before_model/after_model hooks and the
// wrap_model_call/wrap_tool_call onion chains.
package middleware

import (
	"context"

	"github.com/agentcore/orchestrator/pkg/llm"
	"github.com/agentcore/orchestrator/pkg/message"
	"github.com/agentcore/orchestrator/pkg/tool"
)

// ModelRequest is what reaches the LLM gateway through the wrap_model_call
// chain.
type ModelRequest struct {
	Messages []message.Message
	Tools    []llm.ToolDefinition
	Params   llm.Params
}

// ModelCallFunc performs (or forwards) one LLM gateway call.
type ModelCallFunc func(ctx context.Context, req ModelRequest) (llm.Response, error)

// ToolOutcome is the tagged union a wrap_tool_call chain link returns:
// either a ToolResult (Result non-nil) or a Command{goto} used by the
// Multi-Agent Router (Goto non-empty) — spec §4.4 step 7.
type ToolOutcome struct {
	Result *string
	Goto   string
}

// ToolRequest is what reaches a tool's Invoke through the wrap_tool_call
// chain.
type ToolRequest struct {
	Call  message.ToolCall
	Tool  tool.Tool
	State message.AgentState
}

// ToolCallFunc performs (or forwards) one tool invocation.
type ToolCallFunc func(ctx context.Context, req ToolRequest) (ToolOutcome, error)

// Middleware is a polymorphic value exposing four optional hooks plus a
// tool-list filter (spec §4.4). Embed Base to get no-op defaults and
// override only what's needed.
type Middleware interface {
	Name() string
	BeforeModel(ctx context.Context, state message.AgentState) (*message.AgentState, error)
	AfterModel(ctx context.Context, state message.AgentState) (*message.AgentState, error)
	WrapModelCall(next ModelCallFunc) ModelCallFunc
	WrapToolCall(next ToolCallFunc) ToolCallFunc
	FilterTools(role string, tools []tool.Tool) []tool.Tool
}

// Base provides no-op implementations of every Middleware hook; concrete
// middlewares embed it and override selectively, matching the teacher's
// pattern of small focused hook interfaces (pkg/reasoning/strategy.go).
type Base struct{ name string }

// NewBase constructs a Base carrying name, for Middleware.Name().
func NewBase(name string) Base { return Base{name: name} }

func (b Base) Name() string { return b.name }

func (b Base) BeforeModel(ctx context.Context, state message.AgentState) (*message.AgentState, error) {
	return nil, nil
}

func (b Base) AfterModel(ctx context.Context, state message.AgentState) (*message.AgentState, error) {
	return nil, nil
}

func (b Base) WrapModelCall(next ModelCallFunc) ModelCallFunc { return next }

func (b Base) WrapToolCall(next ToolCallFunc) ToolCallFunc { return next }

func (b Base) FilterTools(role string, tools []tool.Tool) []tool.Tool { return tools }

// Stack is an ordered list of middlewares. wrap_* forms an onion with
// index 0 outermost (spec §4.4 Stack semantics).
type Stack struct {
	middlewares []Middleware
}

// NewStack builds a Stack in the given order.
func NewStack(middlewares ...Middleware) *Stack {
	return &Stack{middlewares: middlewares}
}

// RunBeforeModel applies every before_model hook in order, accumulating
// state deltas (spec §4.5 step 2).
func (s *Stack) RunBeforeModel(ctx context.Context, state message.AgentState) (message.AgentState, error) {
	for _, m := range s.middlewares {
		delta, err := m.BeforeModel(ctx, state)
		if err != nil {
			return state, err
		}
		if delta != nil {
			state = *delta
		}
	}
	return state, nil
}

// RunAfterModel applies every after_model hook in order.
func (s *Stack) RunAfterModel(ctx context.Context, state message.AgentState) (message.AgentState, error) {
	for _, m := range s.middlewares {
		delta, err := m.AfterModel(ctx, state)
		if err != nil {
			return state, err
		}
		if delta != nil {
			state = *delta
		}
	}
	return state, nil
}

// BuildModelCall wraps inner with every middleware's WrapModelCall, index 0
// outermost.
func (s *Stack) BuildModelCall(inner ModelCallFunc) ModelCallFunc {
	chain := inner
	for i := len(s.middlewares) - 1; i >= 0; i-- {
		chain = s.middlewares[i].WrapModelCall(chain)
	}
	return chain
}

// BuildToolCall wraps inner with every middleware's WrapToolCall, index 0
// outermost.
func (s *Stack) BuildToolCall(inner ToolCallFunc) ToolCallFunc {
	chain := inner
	for i := len(s.middlewares) - 1; i >= 0; i-- {
		chain = s.middlewares[i].WrapToolCall(chain)
	}
	return chain
}

// FilterTools applies every middleware's FilterTools in order (spec §4.4
// Role-scoped tool filter runs here, but other middlewares may compose).
func (s *Stack) FilterTools(role string, tools []tool.Tool) []tool.Tool {
	for _, m := range s.middlewares {
		tools = m.FilterTools(role, tools)
	}
	return tools
}
