package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/agentcore/orchestrator/pkg/config"
	"github.com/agentcore/orchestrator/pkg/message"
	"github.com/agentcore/orchestrator/pkg/orchestrator"
)

// loadSystem reads cli.Config and wires every subsystem it names, ready
// for a single command invocation.
func loadSystem(ctx context.Context, cli *CLI) (*system, error) {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", cli.Config, err)
	}
	return build(ctx, cfg)
}

// RunCmd executes one request against the orchestration core (spec §6
// execute()) and prints the resulting assistant message.
type RunCmd struct {
	Mode      string `help:"Dispatch mode: single, multi, or workflow." default:"single" enum:"single,multi,workflow"`
	Session   string `help:"Session ID; defaults to cli-session if omitted."`
	User      string `help:"User ID attached to the request."`
	Role      string `help:"Caller's role, for role-scoped tool filtering." default:"user"`
	Template  string `help:"Explicit workflow plan template name (mode=workflow only)."`
	Message   string `arg:"" help:"User message to send."`
	Stream    bool   `help:"Stream tokens as they're generated instead of waiting for the final reply."`
}

func (c *RunCmd) Run(cli *CLI) error {
	ctx := context.Background()
	sys, err := loadSystem(ctx, cli)
	if err != nil {
		return err
	}
	defer sys.Close()

	sessionID := c.Session
	if sessionID == "" {
		sessionID = "cli-session"
	}

	req := orchestrator.Request{
		Mode:      orchestrator.Mode(c.Mode),
		SessionID: sessionID,
		UserID:    c.User,
		Role:      c.Role,
		Template:  c.Template,
		Messages:  []message.Message{message.NewUser(c.Message)},
	}

	if c.Stream {
		for ev, err := range sys.orc.ExecuteStream(ctx, req) {
			if err != nil {
				return err
			}
			switch ev.Kind {
			case "token":
				fmt.Print(ev.Text)
			case "done":
				fmt.Println()
			}
		}
		return nil
	}

	state, err := sys.orc.Execute(ctx, req)
	if err != nil {
		return err
	}
	last, ok := state.LastAssistant()
	if !ok {
		fmt.Fprintln(os.Stderr, "no assistant reply produced")
		return nil
	}
	fmt.Println(last.Content)
	return nil
}

// ApprovalsCmd groups approval-gate inspection and resolution (spec §6
// Inbound: list_pending_approvals, approve, reject).
type ApprovalsCmd struct {
	List    ApprovalsListCmd    `cmd:"" help:"List pending approval requests for a session."`
	Approve ApprovalsApproveCmd `cmd:"" help:"Approve a pending request."`
	Reject  ApprovalsRejectCmd  `cmd:"" help:"Reject a pending request."`
}

type ApprovalsListCmd struct {
	Session string `arg:"" help:"Session ID to list pending approvals for."`
}

func (c *ApprovalsListCmd) Run(cli *CLI) error {
	ctx := context.Background()
	sys, err := loadSystem(ctx, cli)
	if err != nil {
		return err
	}
	defer sys.Close()

	pending := sys.orc.ListPendingApprovals(c.Session)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(pending)
}

type ApprovalsApproveCmd struct {
	Session   string `arg:"" help:"Session ID the request belongs to."`
	RequestID string `arg:"" help:"Approval request ID."`
	Comment   string `help:"Reviewer comment recorded with the decision."`
}

func (c *ApprovalsApproveCmd) Run(cli *CLI) error {
	ctx := context.Background()
	sys, err := loadSystem(ctx, cli)
	if err != nil {
		return err
	}
	defer sys.Close()

	resolved, err := sys.orc.Approve(c.Session, c.RequestID, c.Comment)
	if err != nil {
		return err
	}
	fmt.Printf("%s -> %s\n", resolved.ID, resolved.Status)
	return nil
}

type ApprovalsRejectCmd struct {
	Session   string `arg:"" help:"Session ID the request belongs to."`
	RequestID string `arg:"" help:"Approval request ID."`
	Comment   string `help:"Reviewer comment recorded with the decision."`
}

func (c *ApprovalsRejectCmd) Run(cli *CLI) error {
	ctx := context.Background()
	sys, err := loadSystem(ctx, cli)
	if err != nil {
		return err
	}
	defer sys.Close()

	resolved, err := sys.orc.Reject(c.Session, c.RequestID, c.Comment)
	if err != nil {
		return err
	}
	fmt.Printf("%s -> %s\n", resolved.ID, resolved.Status)
	return nil
}

// WorkflowsCmd groups workflow plan template inspection (spec §6 Inbound:
// list_workflow_templates).
type WorkflowsCmd struct {
	List WorkflowsListCmd `cmd:"" help:"List loaded workflow plan templates."`
}

type WorkflowsListCmd struct{}

func (c *WorkflowsListCmd) Run(cli *CLI) error {
	ctx := context.Background()
	sys, err := loadSystem(ctx, cli)
	if err != nil {
		return err
	}
	defer sys.Close()

	for _, info := range sys.orc.ListWorkflowTemplates() {
		fmt.Printf("%s\t%s\n", info.Name, info.Description)
	}
	return nil
}

// ToolsCmd groups external tool bridge maintenance.
type ToolsCmd struct {
	Refresh ToolsRefreshCmd `cmd:"" help:"Re-run discovery against every configured external tool bridge."`
}

type ToolsRefreshCmd struct{}

func (c *ToolsRefreshCmd) Run(cli *CLI) error {
	ctx := context.Background()
	sys, err := loadSystem(ctx, cli)
	if err != nil {
		return err
	}
	defer sys.Close()

	n, err := sys.orc.RefreshExternalTools(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("discovered %d tools\n", n)
	return nil
}
