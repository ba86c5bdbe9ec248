package workflow_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcore/orchestrator/pkg/workflow"
)

func TestValidatePlan_RejectsDuplicateIDs(t *testing.T) {
	p := workflow.Plan{Steps: []workflow.Step{
		{ID: "a", WorkerName: "coder"},
		{ID: "a", WorkerName: "coder"},
	}}
	assert.ErrorIs(t, workflow.ValidatePlan(p), workflow.ErrInvalidPlan)
}

func TestValidatePlan_RejectsForwardReference(t *testing.T) {
	p := workflow.Plan{Steps: []workflow.Step{
		{ID: "a", WorkerName: "coder", DependsOn: []string{"b"}},
		{ID: "b", WorkerName: "coder"},
	}}
	assert.ErrorIs(t, workflow.ValidatePlan(p), workflow.ErrInvalidPlan)
}

func TestValidatePlan_AcceptsSoundDAG(t *testing.T) {
	p := workflow.Plan{Steps: []workflow.Step{
		{ID: "a", WorkerName: "researcher"},
		{ID: "b", WorkerName: "researcher"},
		{ID: "c", WorkerName: "coder", DependsOn: []string{"a", "b"}},
	}}
	assert.NoError(t, workflow.ValidatePlan(p))
}

func TestMerge_RejectsDuplicateStepID(t *testing.T) {
	dst := map[string]workflow.StepResult{"a": {StepID: "a", Output: "first"}}
	err := workflow.Merge(dst, workflow.StepResult{StepID: "a", Output: "second"})
	assert.Error(t, err)
	assert.Equal(t, "first", dst["a"].Output)
}

func TestMerge_IsOrderIndependent(t *testing.T) {
	a := workflow.StepResult{StepID: "a", Output: "A"}
	b := workflow.StepResult{StepID: "b", Output: "B"}

	dst1 := map[string]workflow.StepResult{}
	require.NoError(t, workflow.Merge(dst1, a, b))

	dst2 := map[string]workflow.StepResult{}
	require.NoError(t, workflow.Merge(dst2, b, a))

	assert.Equal(t, dst1, dst2)
}

func TestEligible_RespectsDependencies(t *testing.T) {
	plan := workflow.Plan{Steps: []workflow.Step{
		{ID: "a", WorkerName: "researcher"},
		{ID: "b", WorkerName: "researcher"},
		{ID: "c", WorkerName: "coder", DependsOn: []string{"a", "b"}},
	}}

	none := workflow.Eligible(plan, map[string]workflow.StepResult{})
	require.Len(t, none, 2)

	completed := map[string]workflow.StepResult{
		"a": {StepID: "a"},
		"b": {StepID: "b"},
	}
	eligible := workflow.Eligible(plan, completed)
	require.Len(t, eligible, 1)
	assert.Equal(t, "c", eligible[0].ID)
}

func TestDependencyContext_IncludesEachDependencyOutput(t *testing.T) {
	step := workflow.Step{ID: "c", DependsOn: []string{"a", "b"}}
	completed := map[string]workflow.StepResult{
		"a": {StepID: "a", Output: "result-a"},
		"b": {StepID: "b", Output: "result-b"},
	}
	ctx := workflow.DependencyContext(step, completed)
	assert.Contains(t, ctx, "result-a")
	assert.Contains(t, ctx, "result-b")
}
