package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcore/orchestrator/pkg/config"
)

func TestConfig_SetDefaults(t *testing.T) {
	var cfg config.Config
	cfg.SetDefaults()

	assert.Equal(t, 3, cfg.RetryAttempts)
	assert.Equal(t, 25, cfg.CycleCap)
	assert.Equal(t, 4000, cfg.SummarizationTriggerTokens)
	assert.Equal(t, 20, cfg.SummarizationKeepMessages)
	assert.Equal(t, 3600, cfg.ApprovalTTLSeconds)
	assert.Equal(t, 60, cfg.ApprovalSweepIntervalSeconds)
	assert.NotNil(t, cfg.WorkerCatalog)
}

func TestConfig_Validate_RejectsMissingModelRing(t *testing.T) {
	cfg := config.Config{DefaultModel: "gpt"}
	cfg.SetDefaults()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model_ring")
}

func TestConfig_Validate_AcceptsMinimalConfig(t *testing.T) {
	cfg := config.Config{DefaultModel: "gpt", ModelRing: []string{"gpt"}}
	cfg.SetDefaults()
	assert.NoError(t, cfg.Validate())
}

func TestLoad_ExpandsEnvVarsAndAppliesDefaults(t *testing.T) {
	t.Setenv("TEST_ORCH_MODEL", "claude-sonnet")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := "default_model: ${TEST_ORCH_MODEL}\nmodel_ring:\n  - ${TEST_ORCH_MODEL}\n  - gpt-4o\ncycle_cap: 10\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "claude-sonnet", cfg.DefaultModel)
	assert.Equal(t, []string{"claude-sonnet", "gpt-4o"}, cfg.ModelRing)
	assert.Equal(t, 10, cfg.CycleCap)
	assert.Equal(t, 3, cfg.RetryAttempts) // default applied
}

func TestLoad_RejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cycle_cap: -1\n"), 0o644))

	_, err := config.Load(path)
	require.Error(t, err)
}
