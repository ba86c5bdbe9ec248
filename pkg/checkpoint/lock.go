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
	"sync"
	"time"

	"github.com/go-zookeeper/zk"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// CycleLock enforces "at most one active cycle per (thread_id, ns)"
// (spec §5). Acquire blocks until the lock is held or ctx is cancelled;
// the returned release func must be called exactly once.
type CycleLock interface {
	Acquire(ctx context.Context, threadID, namespace string) (release func(), err error)
}

// MutexLock is the default single-process CycleLock: one *sync.Mutex per
// (thread_id, namespace) pair, matching the in-memory checkpoint store's
// own per-key serialization.
type MutexLock struct {
	mu    sync.Mutex
	locks map[threadKey]*sync.Mutex
}

// NewMutexLock constructs an empty MutexLock.
func NewMutexLock() *MutexLock {
	return &MutexLock{locks: make(map[threadKey]*sync.Mutex)}
}

func (m *MutexLock) Acquire(ctx context.Context, threadID, namespace string) (func(), error) {
	k := threadKey{threadID, namespace}
	m.mu.Lock()
	l, ok := m.locks[k]
	if !ok {
		l = &sync.Mutex{}
		m.locks[k] = l
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() { l.Lock(); close(done) }()
	select {
	case <-done:
		return func() { l.Unlock() }, nil
	case <-ctx.Done():
		go func() { <-done; l.Unlock() }() // lock may still land; release it once it does
		return nil, ctx.Err()
	}
}

// EtcdLock backs the cycle lock with an etcd compare-and-swap session,
// allowing multiple core processes to share the "one active cycle per
// thread" invariant (SPEC_FULL.md §C.6).
type EtcdLock struct {
	client *clientv3.Client
	ttl    int
}

// NewEtcdLock wraps an existing etcd client. ttlSeconds controls the lease
// a stuck process's lock expires under.
func NewEtcdLock(client *clientv3.Client, ttlSeconds int) *EtcdLock {
	if ttlSeconds <= 0 {
		ttlSeconds = 30
	}
	return &EtcdLock{client: client, ttl: ttlSeconds}
}

func (e *EtcdLock) Acquire(ctx context.Context, threadID, namespace string) (func(), error) {
	key := fmt.Sprintf("/agentcore/cycle-lock/%s/%s", namespace, threadID)
	lease, err := e.client.Grant(ctx, int64(e.ttl))
	if err != nil {
		return nil, fmt.Errorf("checkpoint: etcd grant lease: %w", err)
	}

	for {
		txn := e.client.Txn(ctx).
			If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
			Then(clientv3.OpPut(key, "held", clientv3.WithLease(lease.ID))).
			Else(clientv3.OpGet(key))
		resp, err := txn.Commit()
		if err != nil {
			return nil, fmt.Errorf("checkpoint: etcd txn: %w", err)
		}
		if resp.Succeeded {
			release := func() {
				_, _ = e.client.Revoke(context.Background(), lease.ID)
			}
			return release, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// ZKLock backs the cycle lock with a ZooKeeper ephemeral sequential node,
// an alternate distributed backend to EtcdLock (SPEC_FULL.md §C.6).
type ZKLock struct {
	conn *zk.Conn
	root string
}

// NewZKLock wraps an existing ZooKeeper connection; root is the parent
// znode under which per-thread lock nodes are created.
func NewZKLock(conn *zk.Conn, root string) *ZKLock {
	if root == "" {
		root = "/agentcore/cycle-lock"
	}
	return &ZKLock{conn: conn, root: root}
}

func (z *ZKLock) Acquire(ctx context.Context, threadID, namespace string) (func(), error) {
	path := fmt.Sprintf("%s/%s-%s", z.root, namespace, threadID)
	_, _ = z.conn.Create(z.root, nil, 0, zk.WorldACL(zk.PermAll))

	l := zk.NewLock(z.conn, path, zk.WorldACL(zk.PermAll))
	done := make(chan error, 1)
	go func() { done <- l.Lock() }()

	select {
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("checkpoint: zk lock: %w", err)
		}
		return func() { _ = l.Unlock() }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
