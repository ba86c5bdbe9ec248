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

// Package tool implements the Tool Registry: static and dynamically
// discovered tool descriptors, role-filtered resolution, and the built-in
// skill/knowledge tools every orchestrator core ships with.
package tool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/agentcore/orchestrator/pkg/registry"
)

// ErrNotFound is returned by Resolve when no tool is registered under name.
var ErrNotFound = errors.New("tool: not found")

// ErrForbidden is returned by Resolve when role lacks access to a
// role-restricted tool.
var ErrForbidden = errors.New("tool: forbidden for role")

// InvokeFunc executes a tool call and returns its textual result.
type InvokeFunc func(ctx context.Context, args map[string]any) (string, error)

// Tool is a callable unit the LLM gateway may request. Tools are stateless
// from the core's point of view; side effects live in Invoke's closure.
type Tool struct {
	Name         string
	Description  string
	Schema       map[string]any // JSON Schema for Arguments
	Invoke       InvokeFunc
	Sensitive    bool
	RequiresRole string // empty = no role restriction

	// Namespace is empty for statically registered tools and set to the
	// owning bridge's name for dynamically discovered ones.
	Namespace string

	// HandoffTarget is set only on the Multi-Agent Router's declarative
	// handoff descriptors ("transfer_to_<worker>", spec §4.7). Such a tool
	// is never invoked — the driver's innermost tool-call step recognizes
	// this field and returns a Command{goto} instead of calling Invoke,
	// which is left nil.
	HandoffTarget string
}

// Bridge is an external tool protocol source (MCP server, native plugin).
type Bridge interface {
	Name() string
	ListTools(ctx context.Context) ([]Descriptor, error)
	Invoke(ctx context.Context, name string, args map[string]any) (string, error)
}

// Descriptor is what a Bridge reports for one remote tool.
type Descriptor struct {
	Name        string
	Description string
	Schema      map[string]any
}

// Registry holds statically registered tools plus tools pulled from
// dynamically discovered bridges, and serves role-filtered views.
type Registry struct {
	base *registry.BaseRegistry[Tool]

	mu      sync.RWMutex
	bridges map[string]Bridge
}

// NewRegistry constructs an empty tool Registry.
func NewRegistry() *Registry {
	return &Registry{
		base:    registry.NewBaseRegistry[Tool](),
		bridges: make(map[string]Bridge),
	}
}

// Register adds or replaces a tool. Idempotent on Name (spec §4.2).
func (r *Registry) Register(t Tool) error {
	if t.Name == "" {
		return errors.New("tool: name cannot be empty")
	}
	return r.base.Register(t.Name, t)
}

// Discover pulls tool descriptors from bridge and registers each under the
// bridge's namespace, returning the count discovered. Safe to call while
// requests are in flight: each tool is registered with its own short write
// under the registry's lock, and no lock is held across the whole discovery
// (spec §5 "read-mostly" requirement).
func (r *Registry) Discover(ctx context.Context, bridge Bridge) (int, error) {
	descriptors, err := bridge.ListTools(ctx)
	if err != nil {
		return 0, fmt.Errorf("tool: discover %s: %w", bridge.Name(), err)
	}

	r.mu.Lock()
	r.bridges[bridge.Name()] = bridge
	r.mu.Unlock()

	for _, d := range descriptors {
		qualifiedName := bridge.Name() + "." + d.Name
		t := Tool{
			Name:        qualifiedName,
			Description: d.Description,
			Schema:      d.Schema,
			Namespace:   bridge.Name(),
			Invoke: func(ctx context.Context, args map[string]any) (string, error) {
				return bridge.Invoke(ctx, d.Name, args)
			},
		}
		if err := r.Register(t); err != nil {
			return 0, fmt.Errorf("tool: register discovered %s: %w", qualifiedName, err)
		}
	}
	return len(descriptors), nil
}

// Resolve looks up name and enforces role access.
func (r *Registry) Resolve(name, role string) (Tool, error) {
	t, ok := r.base.Get(name)
	if !ok {
		return Tool{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if t.RequiresRole != "" && t.RequiresRole != role {
		return Tool{}, fmt.Errorf("%w: %s requires role %s", ErrForbidden, name, t.RequiresRole)
	}
	return t, nil
}

// List returns every tool visible to role. An empty role sees only
// unrestricted tools.
func (r *Registry) List(role string) []Tool {
	all := r.base.List()
	out := make([]Tool, 0, len(all))
	for _, t := range all {
		if t.RequiresRole != "" && t.RequiresRole != role {
			continue
		}
		out = append(out, t)
	}
	return out
}

// All returns every registered tool regardless of role, for callers (the
// Multi-Agent Router building a supervisor's tool set, the Workflow
// Scheduler's planner prompt) that need the unfiltered catalog rather than
// a role-scoped view.
func (r *Registry) All() []Tool {
	return r.base.List()
}

// Bridges returns the currently registered bridges, for refresh_external_tools.
func (r *Registry) Bridges() []Bridge {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Bridge, 0, len(r.bridges))
	for _, b := range r.bridges {
		out = append(out, b)
	}
	return out
}
