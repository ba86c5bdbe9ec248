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

// Package config implements the Ambient Stack's configuration layer
// (SPEC_FULL.md §A.3): a YAML-first root Config with SetDefaults/Validate,
// following the same pattern as pkg/checkpoint's Config, plus .env loading
// and hot-reload of the external tool bridge file (spec §6 Configuration).
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration for one orchestrator process (spec §6
// Configuration).
type Config struct {
	// DefaultModel is required by Validate and read nowhere else: the
	// Gateway starts each call at the ring's current member, which is the
	// first ModelRing entry until a failure rotates the ring.
	DefaultModel string `yaml:"default_model"`
	// ModelRing is the ordered list of backend names the Gateway rotates
	// across on retry (spec §4.3).
	ModelRing []string `yaml:"model_ring"`
	// RetryAttempts is the number of attempts per backend before rotating
	// to the next one in ModelRing.
	RetryAttempts int `yaml:"retry_attempts"`
	// RetryBackoffBaseSeconds is the base of the exponential backoff
	// (base, 2*base, 4*base, ...) between attempts against one backend.
	RetryBackoffBaseSeconds float64 `yaml:"retry_backoff_base_seconds"`

	// PerBackendTimeoutSeconds is exposed as PerBackendTimeout; no
	// component applies it to backend calls.
	PerBackendTimeoutSeconds float64 `yaml:"per_backend_timeout_seconds"`
	// PerRequestBudgetSeconds is exposed as PerRequestBudget; no component
	// applies it to execute() calls.
	PerRequestBudgetSeconds float64 `yaml:"per_request_budget_seconds"`

	// CycleCap bounds reason/act cycles per driver.Run (spec §4.5).
	CycleCap int `yaml:"cycle_cap"`
	// WorkflowRoundCap is only checked to be non-negative: the Workflow
	// Scheduler always derives each plan's round cap as len(steps)+2
	// (spec §4.8) and does not read this field.
	WorkflowRoundCap int `yaml:"workflow_round_cap"`

	// SummarizationTriggerTokens is the history-compactor trigger
	// (SPEC_FULL.md §B, tiktoken-go-backed token counting).
	SummarizationTriggerTokens int `yaml:"summarization_trigger_tokens"`
	// SummarizationKeepMessages is how many trailing messages survive a
	// compaction uncompacted.
	SummarizationKeepMessages int `yaml:"summarization_keep_messages"`
	// SummarizationModel names the backend used to produce the summary.
	SummarizationModel string `yaml:"summarization_model"`

	// ApprovalTTLSeconds is the default ApprovalRequest expiry (spec §4.6).
	ApprovalTTLSeconds int `yaml:"approval_ttl_seconds"`
	// ApprovalSweepIntervalSeconds is how often expired requests are swept.
	ApprovalSweepIntervalSeconds int `yaml:"approval_sweep_interval_seconds"`

	// SensitiveToolPatterns is the substring/regex set the Approval Gate's
	// middleware matches tool names against (spec §4.6).
	SensitiveToolPatterns []string `yaml:"sensitive_tool_patterns"`

	// WorkerCatalog is name -> metadata for the Multi-Agent Router and
	// Workflow Scheduler's static worker catalog (spec §4.7, §4.8).
	WorkerCatalog map[string]WorkerSpec `yaml:"worker_catalog"`

	// WorkflowTemplatesPath is a directory of YAML plan templates,
	// hot-reloaded by pkg/workflow.TemplateStore.
	WorkflowTemplatesPath string `yaml:"workflow_templates_path"`

	// ExternalToolBridgeConfig is a path to a JSON file enumerating
	// external tool bridges (MCP servers, native plugins) and their
	// enabled flags (spec §6), hot-reloaded by BridgeWatcher.
	ExternalToolBridgeConfig string `yaml:"external_tool_bridge_config"`
}

// WorkerSpec is one worker_catalog entry (spec §6): enough to construct a
// worker.Entry once the caller supplies the backend/tools for its Driver.
type WorkerSpec struct {
	SystemDirective string `yaml:"system_directive"`
	Description     string `yaml:"description"`
}

const (
	defaultRetryAttempts             = 3
	defaultRetryBackoffBaseSeconds   = 1.0
	defaultCycleCap                  = 25
	defaultSummarizationTriggerToken = 4000
	defaultSummarizationKeepMessages = 20
	defaultApprovalTTLSeconds        = 3600
	defaultApprovalSweepSeconds      = 60
)

// SetDefaults fills zero-valued fields with the documented defaults
// (spec §6), mirroring pkg/checkpoint.Config.SetDefaults.
func (c *Config) SetDefaults() {
	if c.RetryAttempts == 0 {
		c.RetryAttempts = defaultRetryAttempts
	}
	if c.RetryBackoffBaseSeconds == 0 {
		c.RetryBackoffBaseSeconds = defaultRetryBackoffBaseSeconds
	}
	if c.CycleCap == 0 {
		c.CycleCap = defaultCycleCap
	}
	if c.SummarizationTriggerTokens == 0 {
		c.SummarizationTriggerTokens = defaultSummarizationTriggerToken
	}
	if c.SummarizationKeepMessages == 0 {
		c.SummarizationKeepMessages = defaultSummarizationKeepMessages
	}
	if c.ApprovalTTLSeconds == 0 {
		c.ApprovalTTLSeconds = defaultApprovalTTLSeconds
	}
	if c.ApprovalSweepIntervalSeconds == 0 {
		c.ApprovalSweepIntervalSeconds = defaultApprovalSweepSeconds
	}
	if c.WorkerCatalog == nil {
		c.WorkerCatalog = make(map[string]WorkerSpec)
	}
}

// ApprovalTTL/ApprovalSweepInterval/PerBackendTimeout/PerRequestBudget
// convert the documented float/int seconds fields to time.Duration for
// callers wiring the approval.Gate, llm.Gateway, etc.
func (c Config) ApprovalTTL() time.Duration {
	return time.Duration(c.ApprovalTTLSeconds) * time.Second
}

func (c Config) ApprovalSweepInterval() time.Duration {
	return time.Duration(c.ApprovalSweepIntervalSeconds) * time.Second
}

func (c Config) PerBackendTimeout() time.Duration {
	return time.Duration(c.PerBackendTimeoutSeconds * float64(time.Second))
}

func (c Config) PerRequestBudget() time.Duration {
	return time.Duration(c.PerRequestBudgetSeconds * float64(time.Second))
}

func (c Config) RetryBackoffBase() time.Duration {
	return time.Duration(c.RetryBackoffBaseSeconds * float64(time.Second))
}

// Validate rejects configurations that cannot produce a coherent
// orchestrator (mirrors pkg/checkpoint.Config.Validate's accumulate-then-
// join style, grounded on pkg/config.Config.Validate in the teacher repo).
func (c Config) Validate() error {
	var errs []string

	if c.DefaultModel == "" {
		errs = append(errs, "default_model is required")
	}
	if len(c.ModelRing) == 0 {
		errs = append(errs, "model_ring must name at least one backend")
	}
	if c.RetryAttempts < 1 {
		errs = append(errs, "retry_attempts must be >= 1")
	}
	if c.RetryBackoffBaseSeconds < 0 {
		errs = append(errs, "retry_backoff_base_seconds must be >= 0")
	}
	if c.CycleCap < 1 {
		errs = append(errs, "cycle_cap must be >= 1")
	}
	if c.WorkflowRoundCap < 0 {
		errs = append(errs, "workflow_round_cap must be >= 0")
	}
	if c.SummarizationTriggerTokens < 0 {
		errs = append(errs, "summarization_trigger_tokens must be >= 0")
	}
	if c.SummarizationKeepMessages < 0 {
		errs = append(errs, "summarization_keep_messages must be >= 0")
	}
	if c.ApprovalTTLSeconds < 1 {
		errs = append(errs, "approval_ttl_seconds must be >= 1")
	}
	if c.ApprovalSweepIntervalSeconds < 1 {
		errs = append(errs, "approval_sweep_interval_seconds must be >= 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: invalid configuration:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
