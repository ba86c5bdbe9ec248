package middleware

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/agentcore/orchestrator/pkg/message"
	"github.com/agentcore/orchestrator/pkg/skill"
)

// MemoryContextFunc supplies caller-provided memory context to inject into
// the directive (spec §4.4: "(c) any caller-provided memory context").
// The long-term semantic memory provider itself is out of scope (spec §1
// mem0 Non-goal); this is only the injection point.
type MemoryContextFunc func(ctx context.Context, state message.AgentState) string

// SystemDirectiveMiddleware is always enabled (spec §4.4). Its
// before_model renders a directive containing the system template, the
// skill index (names + descriptions only), and any memory context, and
// installs it as the first message in state.
type SystemDirectiveMiddleware struct {
	Base
	Skills *skill.Store
	Memory MemoryContextFunc

	mu       sync.RWMutex
	template string
}

// NewSystemDirectiveMiddleware constructs the always-on directive
// middleware.
func NewSystemDirectiveMiddleware(template string, skills *skill.Store, memory MemoryContextFunc) *SystemDirectiveMiddleware {
	return &SystemDirectiveMiddleware{
		Base:     NewBase("system_directive"),
		template: template,
		Skills:   skills,
		Memory:   memory,
	}
}

// SetTemplate replaces the rendered template text. The Multi-Agent Router
// calls this whenever register_worker changes the supervisor's worker
// catalog, so the next before_model hook picks up the new directive
// (spec §4.7: "the supervisor's system directive enumerates workers'
// descriptions").
func (m *SystemDirectiveMiddleware) SetTemplate(template string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.template = template
}

// Template returns the current template text.
func (m *SystemDirectiveMiddleware) Template() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.template
}

func (m *SystemDirectiveMiddleware) render(ctx context.Context, state message.AgentState) string {
	var b strings.Builder
	b.WriteString(m.Template())

	skills := m.Skills.List()
	if len(skills) > 0 {
		b.WriteString("\n\nAvailable skills:\n")
		for _, sk := range skills {
			fmt.Fprintf(&b, "- %s: %s\n", sk.Name, sk.Description)
		}
	}

	if m.Memory != nil {
		if mem := m.Memory(ctx, state); mem != "" {
			b.WriteString("\n\nMemory context:\n")
			b.WriteString(mem)
		}
	}
	return b.String()
}

// BeforeModel replaces any existing leading system_directive message with
// a freshly rendered one, or inserts one if absent.
func (m *SystemDirectiveMiddleware) BeforeModel(ctx context.Context, state message.AgentState) (*message.AgentState, error) {
	directive := message.NewSystemDirective(m.render(ctx, state))

	msgs := state.Messages
	if len(msgs) > 0 && msgs[0].Kind == message.KindSystemDirective {
		next := make([]message.Message, len(msgs))
		copy(next, msgs)
		next[0] = directive
		state.Messages = next
		return &state, nil
	}

	next := make([]message.Message, 0, len(msgs)+1)
	next = append(next, directive)
	next = append(next, msgs...)
	state.Messages = next
	return &state, nil
}
