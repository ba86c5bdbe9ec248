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
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql" // mysql driver registration
	_ "github.com/lib/pq"              // postgres driver registration
	_ "github.com/mattn/go-sqlite3"    // sqlite driver registration
)

// Dialect distinguishes the placeholder syntax of the underlying driver.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
	DialectSQLite   Dialect = "sqlite3"
)

// SQLStore is a database/sql-backed Store persisting checkpoints and their
// pending_writes in the layout conceptually described by spec §6:
// checkpoints(thread_id, namespace, checkpoint_id, parent_id, payload,
// metadata) and checkpoint_writes(thread_id, namespace, checkpoint_id,
// task_id, idx, channel, blob).
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// OpenSQLStore opens (and migrates) a SQLStore using driverName ("postgres",
// "mysql", "sqlite3") and dsn.
func OpenSQLStore(ctx context.Context, dialect Dialect, dsn string) (*SQLStore, error) {
	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: open %s: %w", dialect, err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, dialect, err)
	}
	s := &SQLStore{db: db, dialect: dialect}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	autoIncrement := "SERIAL"
	if s.dialect != DialectPostgres {
		autoIncrement = "INTEGER"
	}
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS checkpoints (
			seq %s PRIMARY KEY,
			thread_id TEXT NOT NULL,
			namespace TEXT NOT NULL,
			checkpoint_id TEXT NOT NULL,
			parent_id TEXT,
			payload TEXT NOT NULL,
			metadata TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`, autoIncrement),
		`CREATE TABLE IF NOT EXISTS checkpoint_writes (
			thread_id TEXT NOT NULL,
			namespace TEXT NOT NULL,
			checkpoint_id TEXT NOT NULL,
			task_id TEXT NOT NULL,
			idx INTEGER NOT NULL,
			channel TEXT NOT NULL,
			blob BLOB
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("checkpoint: migrate: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) bind(n int) string {
	if s.dialect == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// Put inserts cp transactionally: the checkpoint row and all its
// pending_writes commit together, so readers never observe one without
// the other (spec §4.1 Atomicity).
func (s *SQLStore) Put(ctx context.Context, threadID, namespace string, cp Checkpoint) error {
	var exists int
	q := fmt.Sprintf(`SELECT COUNT(*) FROM checkpoints WHERE thread_id = %s AND namespace = %s AND checkpoint_id = %s`,
		s.bind(1), s.bind(2), s.bind(3))
	if err := s.db.QueryRowContext(ctx, q, threadID, namespace, cp.CheckpointID).Scan(&exists); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if exists > 0 {
		return fmt.Errorf("%w: thread=%s ns=%s id=%s", ErrCollision, threadID, namespace, cp.CheckpointID)
	}

	payload, err := json.Marshal(cp.ChannelValues)
	if err != nil {
		return fmt.Errorf("checkpoint: marshal payload: %w", err)
	}
	metadata, err := json.Marshal(struct {
		Phase        Phase    `json:"phase"`
		StrategyUsed Strategy `json:"strategy_used"`
		Err          string   `json:"error,omitempty"`
	}{cp.Phase, cp.StrategyUsed, cp.Err})
	if err != nil {
		return fmt.Errorf("checkpoint: marshal metadata: %w", err)
	}
	createdAt := cp.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", ErrUnavailable, err)
	}
	defer tx.Rollback()

	insertCP := fmt.Sprintf(`INSERT INTO checkpoints (thread_id, namespace, checkpoint_id, parent_id, payload, metadata, created_at)
		VALUES (%s, %s, %s, %s, %s, %s, %s)`,
		s.bind(1), s.bind(2), s.bind(3), s.bind(4), s.bind(5), s.bind(6), s.bind(7))
	if _, err := tx.ExecContext(ctx, insertCP, threadID, namespace, cp.CheckpointID, cp.ParentCheckpointID, string(payload), string(metadata), createdAt); err != nil {
		return fmt.Errorf("%w: insert checkpoint: %v", ErrUnavailable, err)
	}

	insertWrite := fmt.Sprintf(`INSERT INTO checkpoint_writes (thread_id, namespace, checkpoint_id, task_id, idx, channel, blob)
		VALUES (%s, %s, %s, %s, %s, %s, %s)`,
		s.bind(1), s.bind(2), s.bind(3), s.bind(4), s.bind(5), s.bind(6), s.bind(7))
	for _, w := range cp.PendingWrites {
		if _, err := tx.ExecContext(ctx, insertWrite, threadID, namespace, cp.CheckpointID, w.TaskID, w.Idx, w.Channel, w.Blob); err != nil {
			return fmt.Errorf("%w: insert write: %v", ErrUnavailable, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *SQLStore) scanCheckpoint(rows interface {
	Scan(dest ...any) error
}, threadID, namespace string) (Checkpoint, error) {
	var checkpointID, parentID, payload, metadata string
	var createdAt time.Time
	if err := rows.Scan(&checkpointID, &parentID, &payload, &metadata, &createdAt); err != nil {
		return Checkpoint{}, err
	}
	var snap StateSnapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return Checkpoint{}, fmt.Errorf("checkpoint: unmarshal payload: %w", err)
	}
	var meta struct {
		Phase        Phase    `json:"phase"`
		StrategyUsed Strategy `json:"strategy_used"`
		Err          string   `json:"error,omitempty"`
	}
	if err := json.Unmarshal([]byte(metadata), &meta); err != nil {
		return Checkpoint{}, fmt.Errorf("checkpoint: unmarshal metadata: %w", err)
	}
	return Checkpoint{
		ThreadID:           threadID,
		Namespace:          namespace,
		CheckpointID:       checkpointID,
		ParentCheckpointID: parentID,
		ChannelValues:      snap,
		Phase:              meta.Phase,
		StrategyUsed:        meta.StrategyUsed,
		Err:                meta.Err,
		CreatedAt:          createdAt,
	}, nil
}

// GetLatest returns the most recently inserted checkpoint for the pair.
// On failure callers must treat the session as fresh (spec §4.1 Failure).
func (s *SQLStore) GetLatest(ctx context.Context, threadID, namespace string) (*Checkpoint, bool, error) {
	q := fmt.Sprintf(`SELECT checkpoint_id, parent_id, payload, metadata, created_at FROM checkpoints
		WHERE thread_id = %s AND namespace = %s ORDER BY seq DESC LIMIT 1`, s.bind(1), s.bind(2))
	row := s.db.QueryRowContext(ctx, q, threadID, namespace)
	cp, err := s.scanCheckpoint(row, threadID, namespace)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &cp, true, nil
}

// List returns checkpoints in insertion order.
func (s *SQLStore) List(ctx context.Context, threadID, namespace string) ([]Checkpoint, error) {
	q := fmt.Sprintf(`SELECT checkpoint_id, parent_id, payload, metadata, created_at FROM checkpoints
		WHERE thread_id = %s AND namespace = %s ORDER BY seq ASC`, s.bind(1), s.bind(2))
	rows, err := s.db.QueryContext(ctx, q, threadID, namespace)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var out []Checkpoint
	for rows.Next() {
		cp, err := s.scanCheckpoint(rows, threadID, namespace)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

// Close releases the underlying *sql.DB.
func (s *SQLStore) Close() error { return s.db.Close() }
