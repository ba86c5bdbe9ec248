package workflow

import (
	"context"
	"fmt"

	"github.com/agentcore/orchestrator/pkg/driver"
	"github.com/agentcore/orchestrator/pkg/message"
	"github.com/agentcore/orchestrator/pkg/worker"
)

const workerTaskNamespacePrefix = "workflow:step:"

// Worker is the narrow surface the Scheduler needs from a worker catalog
// entry: run one task to completion and return its textual output. It
// adapts *driver.Driver.RunFrom so the same worker drivers the Multi-Agent
// Router dispatches to (spec §4.7) double as workflow worker-task
// executors (spec §4.8.2 step 2).
type Worker interface {
	Invoke(ctx context.Context, threadID, stepID string, task string) (string, error)
}

// driverWorker adapts a worker.Entry's Driver to the Worker interface.
type driverWorker struct {
	entry worker.Entry
}

func (w driverWorker) Invoke(ctx context.Context, threadID, stepID, task string) (string, error) {
	namespace := workerTaskNamespacePrefix + stepID
	state := message.AgentState{Messages: []message.Message{message.NewUser(task)}}
	res, err := w.entry.Driver.RunFrom(ctx, threadID, namespace, state, driver.Config{})
	if err != nil {
		return "", fmt.Errorf("workflow: worker %q: %w", w.entry.Name, err)
	}
	last, ok := res.State.LastAssistant()
	if !ok {
		return "", fmt.Errorf("workflow: worker %q produced no assistant reply", w.entry.Name)
	}
	return last.Content, nil
}

// Catalog resolves worker names (as referenced by Step.WorkerName) to
// Worker implementations via a shared worker.Registry.
type Catalog struct {
	registry *worker.Registry
}

// NewCatalog wraps a worker.Registry for the Scheduler's use.
func NewCatalog(registry *worker.Registry) *Catalog {
	return &Catalog{registry: registry}
}

// Resolve returns the Worker for name, or an error if it isn't registered.
func (c *Catalog) Resolve(name string) (Worker, error) {
	entry, ok := c.registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("workflow: unknown worker %q", name)
	}
	return driverWorker{entry: entry}, nil
}

// Describe returns name -> description for the Planner's prompt.
func (c *Catalog) Describe() map[string]string {
	return c.registry.Catalog()
}
