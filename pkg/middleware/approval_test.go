package middleware_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcore/orchestrator/pkg/approval"
	"github.com/agentcore/orchestrator/pkg/message"
	"github.com/agentcore/orchestrator/pkg/middleware"
	"github.com/agentcore/orchestrator/pkg/tool"
)

func reqFor(toolName string, sensitiveFlag bool) middleware.ToolRequest {
	return middleware.ToolRequest{
		Call:  message.ToolCall{ID: "c1", Name: toolName, Arguments: map[string]any{}},
		Tool:  tool.Tool{Name: toolName, Sensitive: sensitiveFlag},
		State: message.AgentState{Metadata: message.Metadata{SessionID: "s1", UserID: "u1"}},
	}
}

func called(t *testing.T) (middleware.ToolCallFunc, *bool) {
	hit := false
	return func(ctx context.Context, req middleware.ToolRequest) (middleware.ToolOutcome, error) {
		hit = true
		result := "ok"
		return middleware.ToolOutcome{Result: &result}, nil
	}, &hit
}

func TestApprovalMiddleware_NonSensitiveToolPassesThrough(t *testing.T) {
	m := middleware.NewApprovalMiddleware(approval.NewGate(), nil)
	next, hit := called(t)

	outcome, err := m.WrapToolCall(next)(context.Background(), reqFor("list_files", false))
	require.NoError(t, err)
	assert.True(t, *hit)
	require.NotNil(t, outcome.Result)
	assert.Equal(t, "ok", *outcome.Result)
}

func TestApprovalMiddleware_PatternMatchedNameIsIntercepted(t *testing.T) {
	gate := approval.NewGate()
	m := middleware.NewApprovalMiddleware(gate, nil)
	next, hit := called(t)

	outcome, err := m.WrapToolCall(next)(context.Background(), reqFor("delete_record", false))
	require.NoError(t, err)
	assert.False(t, *hit, "next must not run before approval")
	require.NotNil(t, outcome.Result)
	assert.Contains(t, *outcome.Result, "Approval required")

	pending := gate.ListPending("s1")
	require.Len(t, pending, 1)
	assert.Equal(t, "tool_execution", pending[0].ActionType)
}

func TestApprovalMiddleware_ToolFlaggedSensitiveIsInterceptedEvenWithoutPatternMatch(t *testing.T) {
	gate := approval.NewGate()
	m := middleware.NewApprovalMiddleware(gate, nil)
	next, hit := called(t)

	// "wire_transfer" matches none of defaultSensitivePatterns, but the
	// tool itself declares Sensitive: true (spec §3 is_sensitive) — that
	// alone must be enough to gate it.
	outcome, err := m.WrapToolCall(next)(context.Background(), reqFor("wire_transfer", true))
	require.NoError(t, err)
	assert.False(t, *hit)
	require.NotNil(t, outcome.Result)
	assert.Contains(t, *outcome.Result, "Approval required")
	assert.Len(t, gate.ListPending("s1"), 1)
}

func TestApprovalMiddleware_PolicyBlockingResumesAfterApprove(t *testing.T) {
	gate := approval.NewGate()
	m := middleware.NewApprovalMiddleware(gate, nil)
	m.Policy = middleware.PolicyBlocking

	next, hit := called(t)

	done := make(chan middleware.ToolOutcome, 1)
	errs := make(chan error, 1)
	go func() {
		outcome, err := m.WrapToolCall(next)(context.Background(), reqFor("delete_record", false))
		errs <- err
		done <- outcome
	}()

	require.Eventually(t, func() bool {
		return len(gate.ListPending("s1")) == 1
	}, time.Second, 5*time.Millisecond)

	pending := gate.ListPending("s1")[0]
	_, err := gate.Approve("s1", pending.ID, "approved for test")
	require.NoError(t, err)

	select {
	case outcome := <-done:
		require.NoError(t, <-errs)
		assert.True(t, *hit)
		require.NotNil(t, outcome.Result)
		assert.Equal(t, "ok", *outcome.Result)
	case <-time.After(time.Second):
		t.Fatal("WrapToolCall did not resume after Approve")
	}
}

func TestApprovalMiddleware_PolicyBlockingRejectedReturnsStub(t *testing.T) {
	gate := approval.NewGate()
	m := middleware.NewApprovalMiddleware(gate, nil)
	m.Policy = middleware.PolicyBlocking

	next, hit := called(t)

	done := make(chan middleware.ToolOutcome, 1)
	go func() {
		outcome, _ := m.WrapToolCall(next)(context.Background(), reqFor("delete_record", false))
		done <- outcome
	}()

	require.Eventually(t, func() bool {
		return len(gate.ListPending("s1")) == 1
	}, time.Second, 5*time.Millisecond)

	pending := gate.ListPending("s1")[0]
	_, err := gate.Reject("s1", pending.ID, "denied")
	require.NoError(t, err)

	select {
	case outcome := <-done:
		assert.False(t, *hit)
		require.NotNil(t, outcome.Result)
		assert.Contains(t, *outcome.Result, "rejected")
	case <-time.After(time.Second):
		t.Fatal("WrapToolCall did not resolve after Reject")
	}
}
