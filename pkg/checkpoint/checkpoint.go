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

// Package checkpoint implements the durable checkpoint store shared by the
// Agent Loop Driver, Multi-Agent Router, and Workflow Scheduler (spec §4.1).
package checkpoint

import (
	"errors"
	"time"

	"github.com/agentcore/orchestrator/pkg/message"
)

// ErrCollision is returned by Put when checkpoint_id already exists for the
// (thread_id, namespace) pair.
var ErrCollision = errors.New("checkpoint: checkpoint_id collision")

// ErrUnavailable wraps a transient storage failure — callers must treat the
// pending step as unfinished (spec §4.1 Failure).
var ErrUnavailable = errors.New("checkpoint: store unavailable")

// Phase marks where in the agent loop cycle a checkpoint was taken
// (SPEC_FULL.md §C.1, ported from the teacher's checkpoint phase enum).
type Phase string

const (
	PhaseInitialized  Phase = "initialized"
	PhasePreLLM       Phase = "pre_llm"
	PhasePostLLM      Phase = "post_llm"
	PhaseToolExec     Phase = "tool_execution"
	PhasePostTool     Phase = "post_tool"
	PhaseIterationEnd Phase = "iteration_end"
	PhaseToolApproval Phase = "tool_approval"
	PhaseError        Phase = "error"
)

// Strategy controls when checkpoints are taken automatically
// (SPEC_FULL.md §C.1).
type Strategy string

const (
	StrategyEvent    Strategy = "event"
	StrategyInterval Strategy = "interval"
	StrategyHybrid   Strategy = "hybrid"
)

// Write is one entry of a checkpoint's pending_writes (spec §3).
type Write struct {
	TaskID  string `json:"task_id"`
	Idx     int    `json:"idx"`
	Channel string `json:"channel"`
	Blob    []byte `json:"blob"`
}

// StateSnapshot is the channel_values payload captured at checkpoint time:
// the driver's AgentState plus loop-local bookkeeping needed to resume a
// cycle exactly where it left off.
type StateSnapshot struct {
	State            message.AgentState `json:"state"`
	Iteration        int                 `json:"iteration"`
	PendingToolCalls []message.ToolCall  `json:"pending_tool_calls,omitempty"`
	WorkflowStage    string              `json:"workflow_stage,omitempty"`
	Custom           map[string]any      `json:"custom,omitempty"`
}

// Checkpoint is one durable snapshot in a thread's checkpoint DAG
// (spec §3). ParentCheckpointID is empty for the first checkpoint of a
// thread/namespace pair.
type Checkpoint struct {
	ThreadID           string         `json:"thread_id"`
	Namespace          string         `json:"namespace"`
	CheckpointID       string         `json:"checkpoint_id"`
	ParentCheckpointID string         `json:"parent_checkpoint_id,omitempty"`
	ChannelValues      StateSnapshot  `json:"channel_values"`
	PendingWrites      []Write        `json:"pending_writes"`
	Phase              Phase          `json:"phase"`
	StrategyUsed       Strategy       `json:"strategy_used"`
	CreatedAt          time.Time      `json:"created_at"`
	Err                string         `json:"error,omitempty"`
}

// IsRecoverable reports whether a checkpoint represents a state a resume
// can continue from (i.e. not a terminal error with no pending work).
func (c Checkpoint) IsRecoverable() bool {
	return c.Phase != PhaseError || len(c.PendingWrites) > 0
}

// NeedsUserInput reports whether resuming this checkpoint requires a human
// approval decision before the loop can continue.
func (c Checkpoint) NeedsUserInput() bool {
	return c.Phase == PhaseToolApproval
}
