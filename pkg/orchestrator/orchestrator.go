// Package orchestrator implements the Inbound surface of the Agent
// Orchestration Core (spec §6): the single entry dispatcher that routes an
// execute() call to the Agent Loop Driver, Multi-Agent Router, or Workflow
// Scheduler according to its mode, and exposes the Approval Gate and
// Workflow Scheduler's template catalog to the outer service layer.
package orchestrator

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/agentcore/orchestrator/pkg/approval"
	"github.com/agentcore/orchestrator/pkg/checkpoint"
	"github.com/agentcore/orchestrator/pkg/config"
	"github.com/agentcore/orchestrator/pkg/driver"
	"github.com/agentcore/orchestrator/pkg/message"
	"github.com/agentcore/orchestrator/pkg/router"
	"github.com/agentcore/orchestrator/pkg/stream"
	"github.com/agentcore/orchestrator/pkg/tool"
	"github.com/agentcore/orchestrator/pkg/workflow"
)

// Mode selects which subsystem execute() dispatches to (spec §6).
type Mode string

const (
	ModeSingle   Mode = "single"
	ModeMulti    Mode = "multi"
	ModeWorkflow Mode = "workflow"
)

// Request is one execute() call's parameters (spec §6: "execute(mode,
// session_id, user_id, role, messages, template?)").
type Request struct {
	Mode      Mode
	SessionID string
	UserID    string
	Role      string
	Messages  []message.Message

	// Template names an explicit workflow plan template (mode == workflow
	// only); empty triggers the rest of the plan-source precedence chain
	// (spec §4.8.1).
	Template string
}

func (r Request) metadata() message.Metadata {
	return message.Metadata{SessionID: r.SessionID, UserID: r.UserID, UserRole: r.Role}
}

// Orchestrator composes the four subsystems spec.md names (§4.5-§4.8) plus
// the shared checkpoint store, approval gate, and tool registry, and
// exposes spec §6's Inbound contract over them.
type Orchestrator struct {
	single    *driver.Driver
	router    *router.Router
	scheduler *workflow.Scheduler
	mux       *stream.Multiplexer

	approvals   *approval.Gate
	templates   *workflow.TemplateStore
	tools       *tool.Registry
	checkpoints *checkpoint.Manager

	cfg config.Config
	log *slog.Logger
}

// New wires an Orchestrator from its already-constructed subsystems. cfg
// supplies the CycleCap every driver call runs under and the approval
// sweep interval; the subsystems
// themselves (single/router/scheduler/tools/checkpoints) are built by the
// caller (cmd/orchestrator) since their construction needs concrete LLM
// backends the config alone doesn't specify.
func New(single *driver.Driver, rtr *router.Router, scheduler *workflow.Scheduler, approvals *approval.Gate, templates *workflow.TemplateStore, tools *tool.Registry, checkpoints *checkpoint.Manager, cfg config.Config) *Orchestrator {
	o := &Orchestrator{
		single:      single,
		router:      rtr,
		scheduler:   scheduler,
		approvals:   approvals,
		templates:   templates,
		tools:       tools,
		checkpoints: checkpoints,
		cfg:         cfg,
		log:         slog.Default().With("component", "orchestrator"),
	}
	o.mux = stream.New(o.resolveWorker, driver.Config{CycleCap: cfg.CycleCap})
	return o
}

func (o *Orchestrator) driverConfig(role, namespace string) driver.Config {
	return driver.Config{Role: role, Namespace: namespace, CycleCap: o.cfg.CycleCap}
}

// Execute runs req to completion and returns the final state (spec §6
// "execute(...) → final_state"). thread_id is req.SessionID: one session
// is one checkpointed conversation thread.
func (o *Orchestrator) Execute(ctx context.Context, req Request) (message.AgentState, error) {
	switch req.Mode {
	case ModeSingle:
		res, err := o.single.Run(ctx, req.SessionID, req.Messages, req.metadata(), o.driverConfig(req.Role, "single"))
		if err != nil {
			return res.State, fmt.Errorf("orchestrator: single: %w", err)
		}
		return res.State, nil

	case ModeMulti:
		if o.router == nil {
			return message.AgentState{}, fmt.Errorf("orchestrator: multi mode requested but no router configured")
		}
		res, err := o.router.Run(ctx, req.SessionID, req.Messages, req.metadata(), o.driverConfig(req.Role, ""))
		if err != nil {
			return res.State, fmt.Errorf("orchestrator: multi: %w", err)
		}
		return res.State, nil

	case ModeWorkflow:
		if o.scheduler == nil {
			return message.AgentState{}, fmt.Errorf("orchestrator: workflow mode requested but no scheduler configured")
		}
		res, err := o.scheduler.Run(ctx, req.SessionID, req.Template, lastUserContent(req.Messages), req.metadata())
		if err != nil {
			return res.State, fmt.Errorf("orchestrator: workflow: %w", err)
		}
		return res.State, nil

	default:
		return message.AgentState{}, fmt.Errorf("orchestrator: unknown mode %q", req.Mode)
	}
}

// ExecuteStream runs req as a streamed sequence of token/tool-call/handoff
// events instead of waiting for the final state (spec §6 "... → stream").
// Only single and multi mode support streaming — the Workflow Scheduler's
// round-based parallel execution has no single active worker to stream
// from at any given moment (spec §4.8 is request/response by nature).
func (o *Orchestrator) ExecuteStream(ctx context.Context, req Request) iter.Seq2[*stream.Event, error] {
	return func(yield func(*stream.Event, error) bool) {
		var source stream.Source
		switch req.Mode {
		case ModeSingle:
			source = stream.FromDriver(o.single)
		case ModeMulti:
			if o.router == nil {
				yield(nil, fmt.Errorf("orchestrator: multi mode requested but no router configured"))
				return
			}
			source = stream.FromDriver(o.router.Supervisor())
		default:
			yield(nil, fmt.Errorf("orchestrator: mode %q does not support streaming", req.Mode))
			return
		}

		for ev, err := range o.mux.Run(ctx, req.SessionID, source, req.Messages, req.metadata()) {
			if !yield(ev, err) {
				return
			}
			if err != nil {
				return
			}
		}
	}
}

// resolveWorker is the stream.Resolver the Multiplexer uses to follow a
// Multi-Agent Router handoff mid-stream, built from the same worker
// registry router.Run dispatches to non-streaming.
func (o *Orchestrator) resolveWorker(name string) (stream.Source, bool) {
	if o.router == nil {
		return stream.Source{}, false
	}
	entry, ok := o.router.WorkerEntry(name)
	if !ok {
		return stream.Source{}, false
	}
	return stream.FromDriver(entry.Driver), true
}

// lastUserContent returns the most recent user message's content, used as
// the Workflow Scheduler's natural-language request (spec §4.8.1).
func lastUserContent(messages []message.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Kind == message.KindUser {
			return messages[i].Content
		}
	}
	return ""
}

// ListPendingApprovals returns session's outstanding ApprovalRequests,
// sweeping expired ones first (spec §4.6 list_pending / spec §6 Inbound).
func (o *Orchestrator) ListPendingApprovals(sessionID string) []approval.Request {
	return o.approvals.ListPending(sessionID)
}

// Approve resolves an ApprovalRequest as approved (spec §4.6 approve).
func (o *Orchestrator) Approve(sessionID, requestID, comment string) (approval.Request, error) {
	return o.approvals.Approve(sessionID, requestID, comment)
}

// Reject resolves an ApprovalRequest as rejected (spec §4.6 reject).
func (o *Orchestrator) Reject(sessionID, requestID, comment string) (approval.Request, error) {
	return o.approvals.Reject(sessionID, requestID, comment)
}

// RunApprovalSweeper starts the periodic expired-request sweep at the
// configured interval (spec §4.6 sweep_expired), blocking until ctx is
// cancelled — run it in its own goroutine.
func (o *Orchestrator) RunApprovalSweeper(ctx context.Context) {
	interval := o.cfg.ApprovalSweepInterval()
	if interval <= 0 {
		interval = 60 * time.Second
	}
	o.approvals.RunSweeper(ctx, interval)
}

// ListWorkflowTemplates returns the currently loaded plan templates'
// name/description pairs (spec §6 list_workflow_templates).
func (o *Orchestrator) ListWorkflowTemplates() []workflow.Info {
	if o.templates == nil {
		return nil
	}
	return o.templates.List()
}

// RefreshExternalTools re-discovers tools from every registered bridge
// (spec §6 refresh_external_tools). Returns the total number of tool
// descriptors (re-)registered across all bridges.
func (o *Orchestrator) RefreshExternalTools(ctx context.Context) (int, error) {
	total := 0
	for _, bridge := range o.tools.Bridges() {
		n, err := o.tools.Discover(ctx, bridge)
		if err != nil {
			return total, fmt.Errorf("orchestrator: refresh %s: %w", bridge.Name(), err)
		}
		total += n
	}
	return total, nil
}
