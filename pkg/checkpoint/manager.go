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

package checkpoint

import (
	"context"
	"fmt"
	"log/slog"
)

// ResumeFunc is invoked once per pending (thread_id, namespace) during
// RecoverOnStartup, given the most recent checkpoint for that pair.
type ResumeFunc func(ctx context.Context, threadID, namespace string, cp Checkpoint) error

// ThreadRef names one (thread_id, namespace) pair.
type ThreadRef struct {
	ThreadID  string
	Namespace string
}

// PendingLister is implemented by Stores that can enumerate every thread
// with at least one checkpoint, for startup recovery scans.
type PendingLister interface {
	ListPending(ctx context.Context) ([]ThreadRef, error)
}

// ListPending implements PendingLister for MemoryStore.
func (s *MemoryStore) ListPending(ctx context.Context) ([]ThreadRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ThreadRef, 0, len(s.entries))
	for k := range s.entries {
		out = append(out, ThreadRef{ThreadID: k.threadID, Namespace: k.namespace})
	}
	return out, nil
}

// Manager is the single entry point the Agent Loop Driver, Multi-Agent
// Router, and Workflow Scheduler use to read and persist checkpoints. It
// applies Config's strategy to decide *when* to checkpoint and enforces
// the single-active-cycle invariant via lock (spec §5; SPEC_FULL.md §C.1-2).
type Manager struct {
	config  Config
	storage Store
	lock    CycleLock
	log     *slog.Logger
}

// NewManager constructs a Manager. lock may be nil, in which case a
// process-local MutexLock is used.
func NewManager(config Config, storage Store, lock CycleLock) *Manager {
	config.SetDefaults()
	if lock == nil {
		lock = NewMutexLock()
	}
	return &Manager{
		config:  config,
		storage: storage,
		lock:    lock,
		log:     slog.Default().With("component", "checkpoint"),
	}
}

// IsEnabled reports whether checkpointing is configured on.
func (m *Manager) IsEnabled() bool { return m.config.Enabled }

// AcquireCycle enforces at most one active cycle per (thread_id, ns); the
// returned release func must be called when the cycle completes or is
// cancelled.
func (m *Manager) AcquireCycle(ctx context.Context, threadID, namespace string) (func(), error) {
	return m.lock.Acquire(ctx, threadID, namespace)
}

// Save persists cp if enabled, logging (not failing the cycle) on
// transient storage errors — the caller must still treat the step as
// unfinished per spec §4.1 Failure.
func (m *Manager) Save(ctx context.Context, threadID, namespace string, cp Checkpoint) error {
	if !m.config.Enabled {
		return nil
	}
	if err := m.storage.Put(ctx, threadID, namespace, cp); err != nil {
		m.log.Warn("checkpoint save failed", "thread_id", threadID, "namespace", namespace, "phase", cp.Phase, "error", err)
		return err
	}
	return nil
}

// Load returns the latest checkpoint, or ok=false if the session is fresh
// (including on a storage failure — spec §4.1 Failure: "treat the session
// as fresh").
func (m *Manager) Load(ctx context.Context, threadID, namespace string) (Checkpoint, bool) {
	cp, ok, err := m.storage.GetLatest(ctx, threadID, namespace)
	if err != nil {
		m.log.Warn("checkpoint load failed, treating session as fresh", "thread_id", threadID, "namespace", namespace, "error", err)
		return Checkpoint{}, false
	}
	if !ok {
		return Checkpoint{}, false
	}
	return *cp, true
}

// RecoverOnStartup scans every thread with a pending checkpoint and invokes
// resume for each, honoring RecoveryConfig.AutoResume /
// RecoveryConfig.AutoResumeHITL (SPEC_FULL.md §C.2).
func (m *Manager) RecoverOnStartup(ctx context.Context, resume ResumeFunc) error {
	if !m.config.Recovery.AutoResume {
		return nil
	}
	lister, ok := m.storage.(PendingLister)
	if !ok {
		m.log.Info("checkpoint store does not support recovery scans, skipping")
		return nil
	}
	refs, err := lister.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("checkpoint: recovery scan: %w", err)
	}
	for _, ref := range refs {
		cp, ok := m.Load(ctx, ref.ThreadID, ref.Namespace)
		if !ok || !cp.IsRecoverable() {
			continue
		}
		if cp.NeedsUserInput() && !m.config.Recovery.AutoResumeHITL {
			m.log.Info("skipping auto-resume of checkpoint awaiting approval", "thread_id", ref.ThreadID, "namespace", ref.Namespace)
			continue
		}
		recoverCtx, cancel := context.WithTimeout(ctx, m.config.Recovery.Timeout)
		err := resume(recoverCtx, ref.ThreadID, ref.Namespace, cp)
		cancel()
		if err != nil {
			m.log.Warn("resume failed", "thread_id", ref.ThreadID, "namespace", ref.Namespace, "error", err)
		}
	}
	return nil
}

// Config returns the manager's effective configuration.
func (m *Manager) Config() Config { return m.config }
