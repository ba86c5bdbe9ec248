package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/agentcore/orchestrator/pkg/checkpoint"
	"github.com/agentcore/orchestrator/pkg/message"
)

const workflowNamespacePrefix = "workflow:"

const (
	stageAssigner    = "assigner"
	stageWorkerTasks = "worker_tasks"
	stageSynthesizer = "synthesizer"
)

// Result is what one Scheduler.Run produces.
type Result struct {
	State   message.AgentState
	Plan    Plan
	Results map[string]StepResult
	Rounds  int
}

// Scheduler implements the Workflow Scheduler (spec §4.8): it resolves a
// Plan, then repeatedly assigns the currently-eligible steps to their
// workers in parallel rounds — planner -> assigner -> worker_task* ->
// check -> {assigner|synthesizer} — until every step has completed or the
// round cap is exhausted (spec §4.8.3).
type Scheduler struct {
	catalog     *Catalog
	templates   *TemplateStore
	planner     *Planner
	checkpoints *checkpoint.Manager
	log         *slog.Logger
}

// NewScheduler constructs a Scheduler. templates and planner may be nil,
// in which case plan resolution falls through to the single-step fallback
// (spec §4.8.1 step 4).
func NewScheduler(catalog *Catalog, templates *TemplateStore, planner *Planner, checkpoints *checkpoint.Manager) *Scheduler {
	return &Scheduler{
		catalog:     catalog,
		templates:   templates,
		planner:     planner,
		checkpoints: checkpoints,
		log:         slog.Default().With("component", "workflow_scheduler"),
	}
}

// Run resolves a plan for request (or templateName, if set) and executes
// it to completion, returning the synthesized final state.
func (s *Scheduler) Run(ctx context.Context, threadID, templateName, request string, metadata message.Metadata) (Result, error) {
	namespace := workflowNamespacePrefix + threadID
	release, err := s.checkpoints.AcquireCycle(ctx, threadID, namespace)
	if err != nil {
		return Result{}, fmt.Errorf("workflow: acquire cycle lock: %w", err)
	}
	defer release()

	st, parentID := s.loadOrInit(ctx, threadID, namespace, request, metadata)

	if st.Plan == nil {
		plan, err := Resolve(ctx, s.templates, s.planner, s.catalog.Describe(), templateName, request)
		if err != nil {
			return Result{}, fmt.Errorf("workflow: resolve plan: %w", err)
		}
		st.Plan = &plan
	}

	roundCap := len(st.Plan.Steps) + 2

	for st.CurrentRound < roundCap {
		if err := ctx.Err(); err != nil {
			s.save(ctx, threadID, namespace, st, parentID, stageAssigner)
			return Result{State: st.asAgentState(), Plan: *st.Plan, Results: st.CompletedResults, Rounds: st.CurrentRound}, err
		}

		if len(st.CompletedResults) == len(st.Plan.Steps) {
			break
		}

		eligible := Eligible(*st.Plan, st.CompletedResults)
		if len(eligible) == 0 {
			// Nothing eligible and not all done: the DAG is either stuck
			// behind a failed dependency or malformed past ValidatePlan's
			// structural check. Treat as stuck rather than spin.
			return s.stuck(ctx, threadID, namespace, st, parentID)
		}

		parentID = s.save(ctx, threadID, namespace, st, parentID, stageAssigner)

		results, err := s.runRound(ctx, threadID, eligible, st.CompletedResults)
		if err != nil {
			return Result{}, fmt.Errorf("workflow: round %d: %w", st.CurrentRound, err)
		}
		if err := Merge(st.CompletedResults, results...); err != nil {
			return Result{}, fmt.Errorf("workflow: merge round %d: %w", st.CurrentRound, err)
		}

		st.CurrentRound++
		parentID = s.save(ctx, threadID, namespace, st, parentID, stageWorkerTasks)
	}

	if len(st.CompletedResults) != len(st.Plan.Steps) {
		return s.stuck(ctx, threadID, namespace, st, parentID)
	}

	st.FinalOutput = synthesize(*st.Plan, st.CompletedResults)
	st.Messages = append(st.Messages, message.NewAssistant(st.FinalOutput, nil))
	s.save(ctx, threadID, namespace, st, parentID, stageSynthesizer)

	return Result{State: st.asAgentState(), Plan: *st.Plan, Results: st.CompletedResults, Rounds: st.CurrentRound}, nil
}

func (s *Scheduler) stuck(ctx context.Context, threadID, namespace string, st State, parentID string) (Result, error) {
	msg := fmt.Sprintf("Error: %s: round cap exhausted with %d/%d steps complete", ErrPlanStuck, len(st.CompletedResults), len(st.Plan.Steps))
	st.Messages = append(st.Messages, message.NewAssistant(msg, nil))
	s.save(ctx, threadID, namespace, st, parentID, stageAssigner)
	return Result{State: st.asAgentState(), Plan: *st.Plan, Results: st.CompletedResults, Rounds: st.CurrentRound}, ErrPlanStuck
}

// runRound invokes every eligible step's worker concurrently (errgroup
// fan-out, grounded on the teacher's parallel sub-agent execution). No
// step in this round observes another's result — dependency context is
// built solely from the snapshot passed in, and results are merged into
// the shared map only after the whole round completes (spec §4.8.3 "no
// task may observe another's result within the same round").
func (s *Scheduler) runRound(ctx context.Context, threadID string, eligible []Step, completedSnapshot map[string]StepResult) ([]StepResult, error) {
	group, groupCtx := errgroup.WithContext(ctx)
	results := make([]StepResult, len(eligible))

	for i, step := range eligible {
		i, step := i, step
		group.Go(func() error {
			w, err := s.catalog.Resolve(step.WorkerName)
			if err != nil {
				results[i] = StepResult{StepID: step.ID, WorkerName: step.WorkerName, Task: step.Task, Output: fmt.Sprintf("Error: %s", err.Error())}
				return nil
			}
			task := step.Task
			if depCtx := DependencyContext(step, completedSnapshot); depCtx != "" {
				task = depCtx + "\n" + task
			}
			out, err := w.Invoke(groupCtx, threadID, step.ID, task)
			if err != nil {
				out = fmt.Sprintf("Error: %s", err.Error())
			}
			results[i] = StepResult{StepID: step.ID, WorkerName: step.WorkerName, Task: step.Task, Output: out}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// synthesize concatenates each step's output in plan declaration order
// under a heading, the scheduler's default synthesizer (spec §4.8.2 step
// 4). A caller wanting an LLM-composed summary instead can post-process
// Result.Results itself.
func synthesize(plan Plan, completed map[string]StepResult) string {
	var b strings.Builder
	for _, step := range plan.Steps {
		r, ok := completed[step.ID]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "## %s (%s)\n%s\n\n", step.ID, r.WorkerName, r.Output)
	}
	return strings.TrimSpace(b.String())
}

func (s *Scheduler) loadOrInit(ctx context.Context, threadID, namespace, request string, metadata message.Metadata) (State, string) {
	cp, ok := s.checkpoints.Load(ctx, threadID, namespace)
	if !ok {
		st := NewState(nil)
		st.Messages = append(st.Messages, message.NewUser(request))
		return st, ""
	}
	st := stateFromSnapshot(cp.ChannelValues)
	st.Messages = append(st.Messages, message.NewUser(request))
	return st, cp.CheckpointID
}

func (s *Scheduler) save(ctx context.Context, threadID, namespace string, st State, parentID, stage string) string {
	id := uuid.NewString()
	cp := checkpoint.Checkpoint{
		ThreadID:           threadID,
		Namespace:          namespace,
		CheckpointID:       id,
		ParentCheckpointID: parentID,
		ChannelValues:      st.toSnapshot(stage),
		Phase:              checkpoint.PhaseIterationEnd,
		StrategyUsed:       s.checkpoints.Config().Strategy,
		CreatedAt:          time.Now(),
	}
	if err := s.checkpoints.Save(ctx, threadID, namespace, cp); err != nil {
		s.log.Warn("workflow checkpoint save failed, treating round as unfinished", "thread_id", threadID, "error", err)
		return parentID
	}
	return id
}

// toSnapshot serializes workflow-specific state into the shared
// checkpoint.StateSnapshot's Custom/WorkflowStage fields (spec §4.8.3
// "next run resumes from the assigner node").
func (st State) toSnapshot(stage string) checkpoint.StateSnapshot {
	resultsByID := make(map[string]StepResult, len(st.CompletedResults))
	for k, v := range st.CompletedResults {
		resultsByID[k] = v
	}
	return checkpoint.StateSnapshot{
		State:         message.AgentState{Messages: st.Messages},
		WorkflowStage: stage,
		Custom: map[string]any{
			"plan":              st.Plan,
			"completed_results": resultsByID,
			"current_round":     st.CurrentRound,
		},
	}
}

func stateFromSnapshot(snap checkpoint.StateSnapshot) State {
	st := State{Messages: snap.State.Messages, CompletedResults: make(map[string]StepResult)}
	if snap.Custom == nil {
		return st
	}
	if round, ok := snap.Custom["current_round"].(int); ok {
		st.CurrentRound = round
	}
	if plan, ok := snap.Custom["plan"].(*Plan); ok {
		st.Plan = plan
	}
	if results, ok := snap.Custom["completed_results"].(map[string]StepResult); ok {
		for k, v := range results {
			st.CompletedResults[k] = v
		}
	}
	return st
}

func (st State) asAgentState() message.AgentState {
	return message.AgentState{Messages: st.Messages}
}
