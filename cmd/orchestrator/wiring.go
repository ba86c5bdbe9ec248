// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/agentcore/orchestrator/pkg/approval"
	"github.com/agentcore/orchestrator/pkg/checkpoint"
	"github.com/agentcore/orchestrator/pkg/config"
	"github.com/agentcore/orchestrator/pkg/driver"
	"github.com/agentcore/orchestrator/pkg/llm"
	"github.com/agentcore/orchestrator/pkg/middleware"
	"github.com/agentcore/orchestrator/pkg/orchestrator"
	"github.com/agentcore/orchestrator/pkg/router"
	"github.com/agentcore/orchestrator/pkg/skill"
	"github.com/agentcore/orchestrator/pkg/tool"
	"github.com/agentcore/orchestrator/pkg/worker"
	"github.com/agentcore/orchestrator/pkg/workflow"
)

const defaultSingleDirective = "You are a helpful assistant."
const defaultSupervisorDirective = "You are a supervisor that delegates work to specialist workers."

// system composes every long-lived piece wiring builds, so commands can
// close what needs closing (the bridge watcher, the workflow template
// watcher) once they're done.
type system struct {
	orc             *orchestrator.Orchestrator
	gate            *approval.Gate
	templates       *workflow.TemplateStore
	bridgeW         *config.BridgeWatcher
	tracingShutdown func(context.Context) error
}

func (s *system) Close() {
	if s.templates != nil {
		s.templates.Close()
	}
	if s.bridgeW != nil {
		s.bridgeW.Close()
	}
	if s.tracingShutdown != nil {
		_ = s.tracingShutdown(context.Background())
	}
}

// build wires cfg into a running system: the LLM Gateway over the
// configured model ring, the shared middleware stack, the Tool Registry
// (with any configured external bridges discovered), the single-agent
// Driver, the Multi-Agent Router (if worker_catalog is non-empty), the
// Workflow Scheduler, and the Approval Gate — then composes all of it
// into one Orchestrator (spec §6).
func build(ctx context.Context, cfg *config.Config) (*system, error) {
	tracingShutdown, err := initTracing()
	if err != nil {
		return nil, fmt.Errorf("wiring: tracing: %w", err)
	}

	ring, err := buildModelRing(ctx, cfg.ModelRing)
	if err != nil {
		return nil, fmt.Errorf("wiring: model ring: %w", err)
	}
	gateway := llm.NewGateway(ring)
	gateway.Attempts = cfg.RetryAttempts
	gateway.BackoffBase = cfg.RetryBackoffBase()

	checkpoints := checkpoint.NewManager(checkpoint.Config{Enabled: true, Strategy: checkpoint.StrategyHybrid}, checkpoint.NewMemoryStore(), checkpoint.NewMutexLock())

	tools := tool.NewRegistry()
	skills := skill.NewStore()
	for _, t := range tool.BuiltinTools(skills, nil) {
		if err := tools.Register(t); err != nil {
			return nil, fmt.Errorf("wiring: register builtin tool %s: %w", t.Name, err)
		}
	}

	gate := approval.NewGate()

	shared, err := buildSharedMiddleware(cfg, gateway, gate)
	if err != nil {
		return nil, err
	}

	singleDirective := middleware.NewSystemDirectiveMiddleware(defaultSingleDirective, skills, nil)
	singleStack := middleware.NewStack(append([]middleware.Middleware{singleDirective}, shared...)...)
	single := driver.New(gateway, tools, singleStack, checkpoints)

	var rtr *router.Router
	var scheduler *workflow.Scheduler
	var templates *workflow.TemplateStore

	if len(cfg.WorkerCatalog) > 0 {
		rtr = router.New(gateway, tools, checkpoints, skills, defaultSupervisorDirective, shared)

		workflowWorkers := worker.NewRegistry()
		for name, spec := range cfg.WorkerCatalog {
			if err := rtr.RegisterWorker(name, spec.SystemDirective, spec.Description); err != nil {
				return nil, fmt.Errorf("wiring: register worker %s: %w", name, err)
			}

			directive := middleware.NewSystemDirectiveMiddleware(spec.SystemDirective, skills, nil)
			stack := middleware.NewStack(append([]middleware.Middleware{directive}, shared...)...)
			d := driver.New(gateway, tools, stack, checkpoints)
			if err := workflowWorkers.Register(worker.Entry{Name: name, Description: spec.Description, Driver: d}); err != nil {
				return nil, fmt.Errorf("wiring: register workflow worker %s: %w", name, err)
			}
		}

		templates, err = workflow.NewTemplateStore(cfg.WorkflowTemplatesPath)
		if err != nil {
			return nil, fmt.Errorf("wiring: workflow templates: %w", err)
		}
		planner := workflow.NewPlanner(gateway)
		scheduler = workflow.NewScheduler(workflow.NewCatalog(workflowWorkers), templates, planner, checkpoints)
	}

	orc := orchestrator.New(single, rtr, scheduler, gate, templates, tools, checkpoints, *cfg)

	bridgeW, err := config.NewBridgeWatcher(cfg.ExternalToolBridgeConfig, func(f config.BridgeFile) {
		for _, spec := range f.Enabled() {
			bridge, err := buildBridge(spec)
			if err != nil {
				slog.Warn("skipping external tool bridge", "name", spec.Name, "error", err)
				continue
			}
			if _, err := tools.Discover(ctx, bridge); err != nil {
				slog.Warn("external tool bridge discovery failed", "name", spec.Name, "error", err)
			}
		}
	})
	if err != nil {
		return nil, fmt.Errorf("wiring: bridge watcher: %w", err)
	}

	return &system{orc: orc, gate: gate, templates: templates, bridgeW: bridgeW, tracingShutdown: tracingShutdown}, nil
}

// buildSharedMiddleware assembles the middleware every driver (single,
// supervisor, and every worker) wraps its own SystemDirectiveMiddleware
// with (spec §4.4): role filtering, the Approval Gate's sensitive-tool
// interception, span/event observability, metrics, and (optionally)
// history compaction.
func buildSharedMiddleware(cfg *config.Config, gateway *llm.Gateway, gate *approval.Gate) ([]middleware.Middleware, error) {
	approvalMW := middleware.NewApprovalMiddleware(gate, cfg.SensitiveToolPatterns)
	approvalMW.TTL = cfg.ApprovalTTL()
	shared := []middleware.Middleware{
		middleware.NewRoleFilterMiddleware(),
		approvalMW,
		middleware.NewObservabilityMiddleware(slogEventSink{}),
		middleware.NewMetricsMiddleware(prometheus.DefaultRegisterer),
	}

	if cfg.SummarizationModel != "" {
		summarizerBackend, err := buildBackend(context.Background(), cfg.SummarizationModel)
		if err != nil {
			return nil, fmt.Errorf("wiring: summarization_model: %w", err)
		}
		summarizer := llm.NewGateway(llm.NewRing(summarizerBackend))
		compactor, err := middleware.NewHistoryCompactorMiddleware(cfg.SummarizationTriggerTokens, cfg.SummarizationKeepMessages, summarizer, llm.Params{})
		if err != nil {
			return nil, fmt.Errorf("wiring: history compactor: %w", err)
		}
		shared = append(shared, compactor)
	}

	return shared, nil
}

// buildBridge constructs the tool.Bridge named by spec's type.
func buildBridge(spec config.BridgeSpec) (tool.Bridge, error) {
	switch spec.Type {
	case "mcp":
		return tool.NewMCPBridge(spec.Name, spec.URL), nil
	case "plugin":
		return tool.NewPluginBridge(spec.Name, spec.Command, spec.Args...), nil
	default:
		return nil, fmt.Errorf("unknown bridge type %q", spec.Type)
	}
}
