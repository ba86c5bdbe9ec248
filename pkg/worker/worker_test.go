package worker_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcore/orchestrator/pkg/driver"
	"github.com/agentcore/orchestrator/pkg/worker"
)

func fakeDriver() *driver.Driver { return &driver.Driver{} }

func TestRegistry_TreeNavigation(t *testing.T) {
	r := worker.NewRegistry()
	require.NoError(t, r.Register(worker.Entry{Name: "coordinator", Description: "root", Driver: fakeDriver(), SubNames: []string{"team_a"}}))
	require.NoError(t, r.Register(worker.Entry{Name: "team_a", Description: "team", Driver: fakeDriver(), SubNames: []string{"specialist"}}))
	require.NoError(t, r.Register(worker.Entry{Name: "specialist", Description: "leaf", Driver: fakeDriver()}))

	found, ok := r.FindAgent("coordinator", "specialist")
	require.True(t, ok)
	assert.Equal(t, "leaf", found.Description)

	path := r.FindAgentPath("coordinator", "specialist")
	assert.Equal(t, []string{"team_a", "specialist"}, path)

	all := r.ListAgents("coordinator")
	require.Len(t, all, 3)
	assert.Equal(t, "coordinator", all[0].Name)

	_, ok = r.FindAgent("coordinator", "nonexistent")
	assert.False(t, ok)
}

func TestRegistry_RejectsEmptyNameOrNilDriver(t *testing.T) {
	r := worker.NewRegistry()
	assert.Error(t, r.Register(worker.Entry{Name: "", Driver: fakeDriver()}))
	assert.Error(t, r.Register(worker.Entry{Name: "x", Driver: nil}))
}

func TestRegistry_Catalog(t *testing.T) {
	r := worker.NewRegistry()
	require.NoError(t, r.Register(worker.Entry{Name: "researcher", Description: "finds things", Driver: fakeDriver()}))
	require.NoError(t, r.Register(worker.Entry{Name: "coder", Description: "writes code", Driver: fakeDriver()}))

	catalog := r.Catalog()
	assert.Equal(t, "finds things", catalog["researcher"])
	assert.Equal(t, "writes code", catalog["coder"])
}
