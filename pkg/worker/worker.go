// Package worker holds the named worker catalog shared by the Multi-Agent
// Router (spec §4.7) and the Workflow Scheduler (spec §4.8): each worker is
// a standalone driver.Driver plus tree-navigation helpers ported from the
// teacher's agent tree (FindAgent/FindAgentPath/WalkAgents/ListAgents).
package worker

import (
	"fmt"

	"github.com/agentcore/orchestrator/pkg/driver"
	"github.com/agentcore/orchestrator/pkg/registry"
)

// Entry is one named worker: its own driver (system directive + middleware
// stack already wired in by the caller) plus the catalog metadata the
// supervisor's directive and the workflow planner's prompt both need.
// SubNames lets a worker itself delegate to a nested team, mirroring the
// teacher's recursive agent tree (SPEC_FULL.md §C.3), though the flat
// single-level catalog spec.md describes is the common case.
type Entry struct {
	Name        string
	Description string
	Driver      *driver.Driver
	SubNames    []string
}

// RegistryError mirrors the teacher's AgentRegistryError: a typed error
// naming the component/action/message for operator-facing diagnostics
// (spec §7 ambient error taxonomy).
type RegistryError struct {
	Action  string
	Message string
	Err     error
}

func (e *RegistryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("worker registry: %s: %s: %v", e.Action, e.Message, e.Err)
	}
	return fmt.Sprintf("worker registry: %s: %s", e.Action, e.Message)
}

func (e *RegistryError) Unwrap() error { return e.Err }

// Registry is the worker catalog (SPEC_FULL.md §C.7's static case; a
// Consul-backed dynamic catalog can populate the same Registry at
// startup/refresh — see ConsulSource).
type Registry struct {
	base *registry.BaseRegistry[Entry]
}

// NewRegistry constructs an empty worker Registry.
func NewRegistry() *Registry {
	return &Registry{base: registry.NewBaseRegistry[Entry]()}
}

// Register adds or replaces a worker entry (spec §4.7 register_worker).
func (r *Registry) Register(e Entry) error {
	if e.Name == "" {
		return &RegistryError{Action: "Register", Message: "worker name cannot be empty"}
	}
	if e.Driver == nil {
		return &RegistryError{Action: "Register", Message: fmt.Sprintf("worker %q: driver cannot be nil", e.Name)}
	}
	return r.base.Register(e.Name, e)
}

// Get returns the entry registered under name.
func (r *Registry) Get(name string) (Entry, bool) {
	return r.base.Get(name)
}

// List returns every registered worker, in unspecified order.
func (r *Registry) List() []Entry {
	return r.base.List()
}

// Catalog returns name -> description, the shape the supervisor's system
// directive and the workflow planner's prompt both consume.
func (r *Registry) Catalog() map[string]string {
	out := make(map[string]string)
	for _, e := range r.List() {
		out[e.Name] = e.Description
	}
	return out
}

// FindAgent returns the entry named name reachable from root via SubNames,
// depth-first, or ok=false if absent. Ported from the teacher's
// agent.FindAgent, generalized from a SubAgents() pointer tree to a
// name-indexed Registry.
func (r *Registry) FindAgent(root, name string) (Entry, bool) {
	rootEntry, ok := r.Get(root)
	if !ok {
		return Entry{}, false
	}
	if rootEntry.Name == name {
		return rootEntry, true
	}
	for _, sub := range rootEntry.SubNames {
		if found, ok := r.FindAgent(sub, name); ok {
			return found, true
		}
	}
	return Entry{}, false
}

// FindAgentPath returns the path of worker names from root to name
// (exclusive of root), or nil if name is unreachable. Ported from the
// teacher's agent.FindAgentPath.
func (r *Registry) FindAgentPath(root, name string) []string {
	rootEntry, ok := r.Get(root)
	if !ok {
		return nil
	}
	if rootEntry.Name == name {
		return []string{}
	}
	for _, sub := range rootEntry.SubNames {
		if path := r.FindAgentPath(sub, name); path != nil {
			return append([]string{sub}, path...)
		}
	}
	return nil
}

// WalkAgents visits root and every worker reachable via SubNames,
// depth-first, calling visit(entry, depth). Stops early if visit returns
// false. Ported from the teacher's agent.WalkAgents.
func (r *Registry) WalkAgents(root string, visit func(Entry, int) bool) {
	r.walk(root, 0, visit)
}

func (r *Registry) walk(name string, depth int, visit func(Entry, int) bool) bool {
	e, ok := r.Get(name)
	if !ok {
		return true
	}
	if !visit(e, depth) {
		return false
	}
	for _, sub := range e.SubNames {
		if !r.walk(sub, depth+1, visit) {
			return false
		}
	}
	return true
}

// ListAgents returns root and every descendant reachable via SubNames,
// depth-first. Ported from the teacher's agent.ListAgents.
func (r *Registry) ListAgents(root string) []Entry {
	var out []Entry
	r.WalkAgents(root, func(e Entry, _ int) bool {
		out = append(out, e)
		return true
	})
	return out
}
