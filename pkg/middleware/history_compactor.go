package middleware

import (
	"context"
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/agentcore/orchestrator/pkg/llm"
	"github.com/agentcore/orchestrator/pkg/message"
)

// HistoryCompactorMiddleware replaces all but the last Keep messages with a
// single synthesized summary once the conversation exceeds Threshold
// tokens (spec §4.4, default threshold ~4000, default keep 20).
// Summarization uses a separate LLM gateway/model setting.
type HistoryCompactorMiddleware struct {
	Base
	Threshold int
	Keep      int

	Summarizer *llm.Gateway
	Params     llm.Params

	encoding *tiktoken.Tiktoken
}

// NewHistoryCompactorMiddleware constructs the compactor. summarizer may
// target a different, typically cheaper, model than the main gateway.
func NewHistoryCompactorMiddleware(threshold, keep int, summarizer *llm.Gateway, params llm.Params) (*HistoryCompactorMiddleware, error) {
	if threshold <= 0 {
		threshold = 4000
	}
	if keep <= 0 {
		keep = 20
	}
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("history_compactor: load encoding: %w", err)
	}
	return &HistoryCompactorMiddleware{
		Base:       NewBase("history_compactor"),
		Threshold:  threshold,
		Keep:       keep,
		Summarizer: summarizer,
		Params:     params,
		encoding:   enc,
	}, nil
}

func (m *HistoryCompactorMiddleware) countTokens(messages []message.Message) int {
	total := 0
	for _, msg := range messages {
		total += len(m.encoding.Encode(msg.Content, nil, nil))
	}
	return total
}

func splitLeadingDirectives(messages []message.Message) (leading, rest []message.Message) {
	i := 0
	for i < len(messages) && messages[i].Kind == message.KindSystemDirective {
		i++
	}
	return messages[:i], messages[i:]
}

// BeforeModel implements Middleware.
func (m *HistoryCompactorMiddleware) BeforeModel(ctx context.Context, state message.AgentState) (*message.AgentState, error) {
	if m.countTokens(state.Messages) <= m.Threshold {
		return nil, nil
	}

	leading, rest := splitLeadingDirectives(state.Messages)
	if len(rest) <= m.Keep {
		return nil, nil
	}

	tail := rest[len(rest)-m.Keep:]
	toSummarize := rest[:len(rest)-m.Keep]

	summary, err := m.summarize(ctx, toSummarize)
	if err != nil {
		return nil, fmt.Errorf("history_compactor: summarize: %w", err)
	}

	next := make([]message.Message, 0, len(leading)+1+len(tail))
	next = append(next, leading...)
	next = append(next, message.NewAssistant(summary, nil))
	next = append(next, tail...)

	state.Messages = next
	return &state, nil
}

func (m *HistoryCompactorMiddleware) summarize(ctx context.Context, toSummarize []message.Message) (string, error) {
	prompt := message.NewUser("Summarize the following conversation history concisely, preserving all facts and decisions relevant to continuing the task:")
	resp, err := m.Summarizer.Call(ctx, append(toSummarize, prompt), nil, m.Params)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}
