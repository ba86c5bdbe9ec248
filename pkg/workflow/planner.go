package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/agentcore/orchestrator/pkg/llm"
	"github.com/agentcore/orchestrator/pkg/message"
)

const defaultFallbackWorker = "coder"

const plannerSystemPrompt = `You are a workflow planner. Given a user request and a catalog of
available workers, emit a JSON object describing a plan to satisfy the request:

{"name": "...", "reasoning": "...", "steps": [{"id": "...", "worker": "...", "task": "...", "depends_on": ["..."]}]}

Rules:
- Each step id must be unique.
- depends_on may only reference step ids declared earlier in the array.
- worker must be one of the catalog names provided.
- Emit ONLY the JSON object, no surrounding prose.`

// Planner synthesizes a Plan for a request when no explicit template name
// was given and no heuristic template matched (spec §4.8.1 step 3).
type Planner struct {
	gateway *llm.Gateway
}

// NewPlanner constructs a Planner over gateway.
func NewPlanner(gateway *llm.Gateway) *Planner {
	return &Planner{gateway: gateway}
}

// Synthesize asks the LLM for a plan, validates it for DAG soundness, and
// returns the first valid candidate. workerCatalog is name -> description.
func (p *Planner) Synthesize(ctx context.Context, request string, workerCatalog map[string]string) (Plan, error) {
	prompt := fmt.Sprintf("%s\n\nAvailable workers:\n%s\n\nRequest: %s", plannerSystemPrompt, formatCatalog(workerCatalog), request)
	messages := []message.Message{message.NewUser(prompt)}

	resp, err := p.gateway.Call(ctx, messages, nil, llm.Params{})
	if err != nil {
		return Plan{}, fmt.Errorf("workflow: planner call: %w", err)
	}

	plan, err := parsePlan(resp.Text)
	if err != nil {
		return Plan{}, fmt.Errorf("workflow: planner response: %w", err)
	}
	if err := ValidatePlan(plan); err != nil {
		return Plan{}, err
	}
	for _, s := range plan.Steps {
		if _, ok := workerCatalog[s.WorkerName]; !ok {
			return Plan{}, fmt.Errorf("%w: step %q references unknown worker %q", ErrInvalidPlan, s.ID, s.WorkerName)
		}
	}
	return plan, nil
}

func formatCatalog(catalog map[string]string) string {
	out := ""
	for name, desc := range catalog {
		out += fmt.Sprintf("- %s: %s\n", name, desc)
	}
	return out
}

func parsePlan(text string) (Plan, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return Plan{}, fmt.Errorf("decode planner JSON: %w", err)
	}
	var plan Plan
	if err := mapstructure.Decode(raw, &plan); err != nil {
		return Plan{}, fmt.Errorf("decode plan shape: %w", err)
	}
	return plan, nil
}

// Resolve implements the plan-source precedence chain (spec §4.8.1):
// explicit template name, then heuristic match, then LLM synthesis, then a
// single-step fallback routed to defaultFallbackWorker.
func Resolve(ctx context.Context, templates *TemplateStore, planner *Planner, workerCatalog map[string]string, templateName, request string) (Plan, error) {
	if templateName != "" {
		if templates == nil {
			return Plan{}, fmt.Errorf("workflow: no template store configured, cannot resolve %q", templateName)
		}
		p, ok := templates.Get(templateName)
		if !ok {
			return Plan{}, fmt.Errorf("workflow: unknown template %q", templateName)
		}
		return p, nil
	}

	if templates != nil {
		if p, ok := templates.MatchHeuristic(ctx, request); ok {
			return p, nil
		}
	}

	if planner != nil {
		if p, err := planner.Synthesize(ctx, request, workerCatalog); err == nil {
			return p, nil
		}
	}

	return Plan{
		Name:      "fallback",
		Reasoning: "no template, heuristic match, or valid LLM synthesis available",
		Steps: []Step{
			{ID: "step-1", WorkerName: defaultFallbackWorker, Task: request},
		},
	}, nil
}
