// Package workflow implements the Workflow Scheduler (spec §4.8): a
// declarative DAG executor over the shared worker registry. Sequential and
// loop shapes (SPEC_FULL.md §C.5) are written as ordinary plans; there is
// no separate sequential or loop type.
package workflow

import (
	"errors"
	"fmt"

	"github.com/agentcore/orchestrator/pkg/message"
)

// ErrPlanStuck is surfaced when the round cap is exhausted without every
// step completing (spec §4.8.3).
var ErrPlanStuck = errors.New("workflow: plan stuck")

// ErrInvalidPlan is returned by ValidatePlan for any DAG-soundness
// violation (spec §3 WorkflowPlan invariants, §8 invariant 6).
var ErrInvalidPlan = errors.New("workflow: invalid plan")

// Step is one node of a WorkflowPlan (spec §3).
type Step struct {
	ID         string   `yaml:"id" json:"id"`
	WorkerName string   `yaml:"worker" json:"worker_name"`
	Task       string   `yaml:"task" json:"task"`
	DependsOn  []string `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
}

// Plan is a DAG of named steps, each routed to a named worker
// (spec §3 WorkflowPlan).
type Plan struct {
	Name      string `yaml:"name" json:"name"`
	Reasoning string `yaml:"reasoning" json:"reasoning"`
	Steps     []Step `yaml:"steps" json:"steps"`
}

// StepResult is one worker task's outcome, appended to a workflow's shared
// result log (spec §3).
type StepResult struct {
	StepID     string `json:"step_id"`
	WorkerName string `json:"worker_name"`
	Task       string `json:"task"`
	Output     string `json:"output"`
}

// State is the shared WorkflowState (spec §3): messages, the active plan,
// the grow-only completed-results set, the current round, and the final
// synthesized output.
type State struct {
	Messages         []message.Message
	Plan             *Plan
	CompletedResults map[string]StepResult
	CurrentRound     int
	FinalOutput      string
}

// NewState constructs an empty State ready for Planner/Scheduler use.
func NewState(messages []message.Message) State {
	return State{Messages: messages, CompletedResults: make(map[string]StepResult)}
}

// Merge folds results into dst via commutative, disjoint set union keyed
// by StepID (spec §3, §4.8.3, §8 invariant 5). A StepID already present
// anywhere in dst is an error — the reducer is a monoid over a *set*, so
// writing the same key twice is a caller bug, not silently idempotent.
func Merge(dst map[string]StepResult, results ...StepResult) error {
	for _, r := range results {
		if _, exists := dst[r.StepID]; exists {
			return fmt.Errorf("workflow: duplicate step result for step_id %q", r.StepID)
		}
		dst[r.StepID] = r
	}
	return nil
}

// ValidatePlan enforces spec §3's WorkflowPlan invariants: step ids are
// unique, depends_on references only prior step ids, and the dependency
// graph is acyclic (spec §8 invariant 6). "Prior" is enforced structurally
// (a dependency must appear earlier in Steps), which also makes the graph
// acyclic by construction — a DAG soundness check is still run explicitly
// so a planner that emits steps out of declaration order is still caught.
func ValidatePlan(p Plan) error {
	if len(p.Steps) == 0 {
		return fmt.Errorf("%w: plan has no steps", ErrInvalidPlan)
	}

	seen := make(map[string]int, len(p.Steps))
	for i, s := range p.Steps {
		if s.ID == "" {
			return fmt.Errorf("%w: step %d has an empty id", ErrInvalidPlan, i)
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("%w: duplicate step id %q", ErrInvalidPlan, s.ID)
		}
		seen[s.ID] = i
	}

	for _, s := range p.Steps {
		for _, dep := range s.DependsOn {
			depIdx, ok := seen[dep]
			if !ok {
				return fmt.Errorf("%w: step %q depends on unknown step %q", ErrInvalidPlan, s.ID, dep)
			}
			if depIdx >= seen[s.ID] {
				return fmt.Errorf("%w: step %q depends on %q, which is not declared earlier", ErrInvalidPlan, s.ID, dep)
			}
		}
	}

	return acyclic(p)
}

// acyclic runs a plain topological check as a second, independent line of
// defense against a planner that satisfies the "declared earlier" rule
// above but still encodes a cycle through duplicate/aliased ids.
func acyclic(p Plan) error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	byID := make(map[string]Step, len(p.Steps))
	for _, s := range p.Steps {
		byID[s.ID] = s
	}
	color := make(map[string]int, len(p.Steps))

	var visit func(id string) error
	visit = func(id string) error {
		switch color[id] {
		case black:
			return nil
		case gray:
			return fmt.Errorf("%w: cycle detected at step %q", ErrInvalidPlan, id)
		}
		color[id] = gray
		for _, dep := range byID[id].DependsOn {
			if err := visit(dep); err != nil {
				return err
			}
		}
		color[id] = black
		return nil
	}

	for _, s := range p.Steps {
		if err := visit(s.ID); err != nil {
			return err
		}
	}
	return nil
}

// Eligible computes { s : s.ID not in completed and s.DependsOn subset of completed }
// (spec §4.8.2 step 2).
func Eligible(plan Plan, completed map[string]StepResult) []Step {
	var out []Step
	for _, s := range plan.Steps {
		if _, done := completed[s.ID]; done {
			continue
		}
		if dependenciesSatisfied(s, completed) {
			out = append(out, s)
		}
	}
	return out
}

func dependenciesSatisfied(s Step, completed map[string]StepResult) bool {
	for _, dep := range s.DependsOn {
		if _, ok := completed[dep]; !ok {
			return false
		}
	}
	return true
}

// DependencyContext concatenates the output fields of step's dependencies,
// in dependency-declaration order (spec §4.8.2 step 2).
func DependencyContext(step Step, completed map[string]StepResult) string {
	var out string
	for _, dep := range step.DependsOn {
		if r, ok := completed[dep]; ok {
			out += fmt.Sprintf("## Result from %s\n%s\n\n", dep, r.Output)
		}
	}
	return out
}
