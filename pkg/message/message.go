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

// Package message defines the append-only conversation data model shared by
// the agent loop driver, the multi-agent router, and the workflow scheduler.
package message

import (
	"time"

	"github.com/google/uuid"
)

// Kind tags the variant of a Message.
type Kind string

const (
	KindUser            Kind = "user"
	KindAssistant       Kind = "assistant"
	KindToolResult      Kind = "tool_result"
	KindSystemDirective Kind = "system_directive"
)

// ToolCall is produced by the model and consumed by the driver.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Message is a tagged variant over {user, assistant, tool_result, system_directive}.
// Every message carries a stable id; ordering within a session is total and
// append-only (spec §3, §8 invariant 1).
type Message struct {
	ID        string     `json:"id"`
	Kind      Kind       `json:"kind"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"` // assistant only

	// ToolCallID references the ToolCall this result answers (tool_result only).
	ToolCallID string    `json:"tool_call_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func newID() string { return uuid.NewString() }

// NewUser creates a user message.
func NewUser(content string) Message {
	return Message{ID: newID(), Kind: KindUser, Content: content, CreatedAt: time.Now()}
}

// NewAssistant creates an assistant message, optionally carrying tool calls.
func NewAssistant(content string, calls []ToolCall) Message {
	return Message{ID: newID(), Kind: KindAssistant, Content: content, ToolCalls: calls, CreatedAt: time.Now()}
}

// NewToolResult creates a tool_result message answering toolCallID.
func NewToolResult(toolCallID, content string) Message {
	return Message{ID: newID(), Kind: KindToolResult, Content: content, ToolCallID: toolCallID, CreatedAt: time.Now()}
}

// NewSystemDirective creates a system_directive message.
func NewSystemDirective(content string) Message {
	return Message{ID: newID(), Kind: KindSystemDirective, Content: content, CreatedAt: time.Now()}
}

// HasToolCalls reports whether an assistant message contains tool calls.
func (m Message) HasToolCalls() bool { return len(m.ToolCalls) > 0 }

// Metadata carries per-thread identity propagated through every layer
// (spec §9 "Per-request context propagation").
type Metadata struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	UserRole  string `json:"user_role"`
}

// AgentState is the per-thread, monotonically-appended state (spec §3).
type AgentState struct {
	Messages []Message `json:"messages"`
	Metadata Metadata  `json:"metadata"`
}

// Append returns a new state with msgs appended; it never mutates history
// already observed by a caller, preserving the suffix-extension invariant
// (spec §8 invariant 1).
func (s AgentState) Append(msgs ...Message) AgentState {
	next := make([]Message, len(s.Messages)+len(msgs))
	copy(next, s.Messages)
	copy(next[len(s.Messages):], msgs)
	s.Messages = next
	return s
}

// LastAssistant returns the most recent assistant message, if any.
func (s AgentState) LastAssistant() (Message, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Kind == KindAssistant {
			return s.Messages[i], true
		}
	}
	return Message{}, false
}
