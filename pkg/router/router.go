// Package router implements the Multi-Agent Router (spec §4.7): a
// supervisor driver whose tool list is a set of declarative handoff
// descriptors, dispatching to named worker drivers.
package router

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/agentcore/orchestrator/pkg/checkpoint"
	"github.com/agentcore/orchestrator/pkg/driver"
	"github.com/agentcore/orchestrator/pkg/llm"
	"github.com/agentcore/orchestrator/pkg/message"
	"github.com/agentcore/orchestrator/pkg/middleware"
	"github.com/agentcore/orchestrator/pkg/skill"
	"github.com/agentcore/orchestrator/pkg/tool"
	"github.com/agentcore/orchestrator/pkg/worker"
)

const supervisorNamespace = "supervisor"
const workerNamespacePrefix = "worker:"

// Result is what one Router.Run produces.
type Result struct {
	State message.AgentState

	// RoutedTo is the worker name the supervisor handed off to, or empty
	// if the supervisor answered directly without a handoff.
	RoutedTo string
}

// Router composes one supervisor driver.Driver with a worker.Registry.
// Each worker runs the standard agent loop with the full (non-handoff)
// tool set; the supervisor only ever sees handoff tools (spec §4.7).
type Router struct {
	mu sync.RWMutex

	gateway     *llm.Gateway
	workerTools *tool.Registry
	checkpoints *checkpoint.Manager
	skills      *skill.Store
	shared      []middleware.Middleware

	baseTemplate        string
	supervisorDirective *middleware.SystemDirectiveMiddleware
	supervisorDriver     *driver.Driver

	workers *worker.Registry
}

// New constructs a Router. baseTemplate is the supervisor's fixed
// instruction text; the worker catalog (names + descriptions) is appended
// to it dynamically on every RegisterWorker call. workerTools is the full,
// non-handoff tool set every worker driver is built with. shared is the
// middleware list every driver (supervisor and workers alike) gets in
// addition to its own SystemDirectiveMiddleware — typically the role
// filter, metrics, observability, and approval probes (spec §4.4).
func New(gateway *llm.Gateway, workerTools *tool.Registry, checkpoints *checkpoint.Manager, skills *skill.Store, baseTemplate string, shared []middleware.Middleware) *Router {
	r := &Router{
		gateway:       gateway,
		workerTools:   workerTools,
		checkpoints:   checkpoints,
		skills:        skills,
		shared:        shared,
		baseTemplate:  baseTemplate,
		workers:       worker.NewRegistry(),
	}
	r.supervisorDirective = middleware.NewSystemDirectiveMiddleware(baseTemplate, skills, nil)
	r.rebuildSupervisor()
	return r
}

// RegisterWorker adds (or replaces) a named worker, rebuilding the
// supervisor's handoff tool set and system directive (spec §4.7).
func (r *Router) RegisterWorker(name, systemDirective, description string) error {
	if name == "" {
		return fmt.Errorf("router: worker name cannot be empty")
	}

	directive := middleware.NewSystemDirectiveMiddleware(systemDirective, r.skills, nil)
	stack := middleware.NewStack(append([]middleware.Middleware{directive}, r.shared...)...)
	d := driver.New(r.gateway, r.workerTools, stack, r.checkpoints)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.workers.Register(worker.Entry{Name: name, Description: description, Driver: d}); err != nil {
		return err
	}
	r.rebuildSupervisorLocked()
	return nil
}

func (r *Router) rebuildSupervisor() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rebuildSupervisorLocked()
}

// rebuildSupervisorLocked rebuilds the supervisor's handoff-only tool
// registry and directive text from the current worker catalog. Caller
// must hold r.mu.
func (r *Router) rebuildSupervisorLocked() {
	handoffTools := tool.NewRegistry()
	var b strings.Builder
	b.WriteString(r.baseTemplate)

	entries := r.workers.List()
	if len(entries) > 0 {
		b.WriteString("\n\nYou can transfer control to the following workers:\n")
		for _, e := range entries {
			toolName := "transfer_to_" + e.Name
			_ = handoffTools.Register(tool.Tool{
				Name:          toolName,
				Description:   fmt.Sprintf("Transfer control to the %s worker: %s", e.Name, e.Description),
				Schema:        map[string]any{"type": "object", "properties": map[string]any{"request": map[string]any{"type": "string"}}},
				HandoffTarget: e.Name,
			})
			fmt.Fprintf(&b, "- %s: %s\n", toolName, e.Description)
		}
	}

	r.supervisorDirective.SetTemplate(b.String())
	stack := middleware.NewStack(append([]middleware.Middleware{r.supervisorDirective}, r.shared...)...)
	r.supervisorDriver = driver.New(r.gateway, handoffTools, stack, r.checkpoints)
}

func (r *Router) supervisor() *driver.Driver {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.supervisorDriver
}

func (r *Router) worker(name string) (worker.Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.workers.Get(name)
}

// Workers returns the name -> description catalog currently registered.
func (r *Router) Workers() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.workers.Catalog()
}

// WorkerEntry exposes a registered worker's entry (including its Driver),
// for callers that need to drive it directly — e.g. pkg/orchestrator
// wiring a stream.Resolver so a streamed run can follow the same handoff
// this Router would take in non-streaming mode.
func (r *Router) WorkerEntry(name string) (worker.Entry, bool) {
	return r.worker(name)
}

// Supervisor exposes the current supervisor driver, for the same reason
// as WorkerEntry — a streamed run needs to start from the supervisor's
// own Gateway/Tools/Stack rather than re-deriving them.
func (r *Router) Supervisor() *driver.Driver {
	return r.supervisor()
}

// Run drives the supervisor; if its reply contains exactly one handoff
// tool call, control passes to that worker with the current message list
// and the worker's reply is returned as final — there is no round-trip
// back to the supervisor for the same turn (spec §4.7).
func (r *Router) Run(ctx context.Context, threadID string, incoming []message.Message, metadata message.Metadata, cfg driver.Config) (Result, error) {
	supCfg := cfg
	supCfg.Namespace = supervisorNamespace
	supRes, err := r.supervisor().Run(ctx, threadID, incoming, metadata, supCfg)
	if err != nil {
		return Result{}, fmt.Errorf("router: supervisor: %w", err)
	}
	if supRes.HandoffTo == "" {
		return Result{State: supRes.State}, nil
	}

	w, ok := r.worker(supRes.HandoffTo)
	if !ok {
		return Result{}, fmt.Errorf("router: supervisor transferred to unknown worker %q", supRes.HandoffTo)
	}

	workerCfg := cfg
	workerCfg.Namespace = workerNamespacePrefix + supRes.HandoffTo
	workerRes, err := w.Driver.RunFrom(ctx, threadID, workerCfg.Namespace, supRes.State, workerCfg)
	if err != nil {
		return Result{}, fmt.Errorf("router: worker %q: %w", supRes.HandoffTo, err)
	}
	return Result{State: workerRes.State, RoutedTo: supRes.HandoffTo}, nil
}
