package middleware

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/agentcore/orchestrator/pkg/approval"
)

// defaultSensitivePatterns is the documented default set (spec §4.6):
// substring matches on *delete, modify, update, write, execute_sql,
// send_email, plus the two skill-mutating built-ins.
var defaultSensitivePatterns = []string{
	"delete", "modify", "update", "write", "execute_sql", "send_email",
	"create_skill", "update_skill",
}

// Matcher decides whether a tool call is sensitive (spec §4.6
// "Determinism of sensitivity"). A name is sensitive if it matches any
// configured substring or, if the pattern looks like a regex (contains a
// metacharacter), any configured regex.
type Matcher struct {
	substrings []string
	regexes    []*regexp.Regexp
}

// NewMatcher compiles patterns into a Matcher. A nil/empty patterns slice
// falls back to defaultSensitivePatterns.
func NewMatcher(patterns []string) *Matcher {
	if len(patterns) == 0 {
		patterns = defaultSensitivePatterns
	}
	m := &Matcher{}
	for _, p := range patterns {
		if strings.ContainsAny(p, `.*+?()[]{}^$|\`) {
			if re, err := regexp.Compile(p); err == nil {
				m.regexes = append(m.regexes, re)
				continue
			}
		}
		m.substrings = append(m.substrings, strings.ToLower(p))
	}
	return m
}

// Sensitive reports whether toolName matches any configured pattern.
func (m *Matcher) Sensitive(toolName string) bool {
	lower := strings.ToLower(toolName)
	for _, s := range m.substrings {
		if strings.Contains(lower, s) {
			return true
		}
	}
	for _, re := range m.regexes {
		if re.MatchString(toolName) {
			return true
		}
	}
	return false
}

// Policy selects the Approval Gate's resume behavior (spec §4.6 and §9
// Open Questions: the source returns a stub tool_result with no automatic
// resumption path; a stricter blocking alternative is permitted if
// documented).
type Policy int

const (
	// PolicyStub is the default, literal spec §4.6 policy: synthesize a
	// "approval required" tool_result and return without calling next.
	// Execution resumes only when a later driver cycle re-emits the same
	// call after the approval becomes visible in state.
	PolicyStub Policy = iota

	// PolicyBlocking is the documented stricter alternative: block inside
	// wrap_tool_call on Gate.Wait(timeout) and, if approved by the
	// deadline, call next immediately. Honors cancellation.
	PolicyBlocking
)

// ApprovalMiddleware is the wrap_tool_call implementation of the Approval
// Gate (spec §4.6). Sensitive tool calls are intercepted; everything else
// is delegated to next unchanged.
type ApprovalMiddleware struct {
	Base
	Gate    *approval.Gate
	Matcher *Matcher
	Policy  Policy
	TTL     time.Duration

	// BlockingTimeout bounds PolicyBlocking's in-call wait. Zero means
	// wait indefinitely (still bounded by ctx cancellation).
	BlockingTimeout time.Duration
}

// NewApprovalMiddleware constructs the probe with PolicyStub and the
// default sensitivity pattern set.
func NewApprovalMiddleware(gate *approval.Gate, patterns []string) *ApprovalMiddleware {
	return &ApprovalMiddleware{
		Base:    NewBase("approval"),
		Gate:    gate,
		Matcher: NewMatcher(patterns),
		Policy:  PolicyStub,
		TTL:     time.Hour,
	}
}

// WrapToolCall implements Middleware.
func (m *ApprovalMiddleware) WrapToolCall(next ToolCallFunc) ToolCallFunc {
	return func(ctx context.Context, req ToolRequest) (ToolOutcome, error) {
		if !req.Tool.Sensitive && !m.Matcher.Sensitive(req.Call.Name) {
			return next(ctx, req)
		}

		data := map[string]any{
			"name":      req.Call.Name,
			"arguments": req.Call.Arguments,
		}
		sessionID := req.State.Metadata.SessionID
		description := fmt.Sprintf("execute tool %q", req.Call.Name)
		request := m.Gate.Create(sessionID, req.State.Metadata.UserID, "tool_execution", description, data, m.TTL)

		if m.Policy == PolicyBlocking {
			resolved, err := m.Gate.Wait(ctx, request.ID, m.BlockingTimeout)
			if err != nil {
				return ToolOutcome{}, err
			}
			if resolved.Status == approval.StatusApproved {
				return next(ctx, req)
			}
			result := stubResult(resolved)
			return ToolOutcome{Result: &result}, nil
		}

		result := fmt.Sprintf("Approval required, id=%s", request.ID)
		return ToolOutcome{Result: &result}, nil
	}
}

func stubResult(req approval.Request) string {
	switch req.Status {
	case approval.StatusApproved:
		return fmt.Sprintf("Approval required, id=%s (approved)", req.ID)
	case approval.StatusRejected:
		return fmt.Sprintf("Approval required, id=%s (rejected: %s)", req.ID, req.ReviewerComment)
	case approval.StatusExpired:
		return fmt.Sprintf("Approval required, id=%s (expired)", req.ID)
	default:
		return fmt.Sprintf("Approval required, id=%s", req.ID)
	}
}
