package checkpoint

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_PutAndGetLatest(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, ok, err := s.GetLatest(ctx, "t1", "ns")
	require.NoError(t, err)
	assert.False(t, ok)

	cp1 := Checkpoint{CheckpointID: "c1", Phase: PhasePreLLM, CreatedAt: time.Now()}
	require.NoError(t, s.Put(ctx, "t1", "ns", cp1))

	cp2 := Checkpoint{CheckpointID: "c2", Phase: PhasePostLLM, CreatedAt: time.Now()}
	require.NoError(t, s.Put(ctx, "t1", "ns", cp2))

	latest, ok, err := s.GetLatest(ctx, "t1", "ns")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "c2", latest.CheckpointID)
}

func TestMemoryStore_CollisionRejected(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	cp := Checkpoint{CheckpointID: "dup"}
	require.NoError(t, s.Put(ctx, "t1", "ns", cp))

	err := s.Put(ctx, "t1", "ns", cp)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCollision))
}

func TestMemoryStore_ListInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Put(ctx, "t1", "ns", Checkpoint{CheckpointID: id}))
	}

	list, err := s.List(ctx, "t1", "ns")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{list[0].CheckpointID, list[1].CheckpointID, list[2].CheckpointID})
}

func TestMemoryStore_IndependentThreadsParallel(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Put(ctx, "t1", "ns", Checkpoint{CheckpointID: "c1"}))
	require.NoError(t, s.Put(ctx, "t2", "ns", Checkpoint{CheckpointID: "c1"})) // same id, different thread: no collision

	l1, _, _ := s.GetLatest(ctx, "t1", "ns")
	l2, _, _ := s.GetLatest(ctx, "t2", "ns")
	require.NotNil(t, l1)
	require.NotNil(t, l2)
}

func TestConfig_Defaults(t *testing.T) {
	c := Config{}
	c.SetDefaults()
	assert.Equal(t, StrategyHybrid, c.Strategy)
	assert.Equal(t, 5, c.Interval)
	require.NoError(t, c.Validate())
}

func TestConfig_ShouldCheckpointAtIteration(t *testing.T) {
	c := Config{Enabled: true, Strategy: StrategyInterval, Interval: 5}
	assert.False(t, c.ShouldCheckpointAtIteration(1))
	assert.True(t, c.ShouldCheckpointAtIteration(5))
	assert.True(t, c.ShouldCheckpointAtIteration(10))
}

func TestManager_RecoverOnStartup_SkipsApprovalUnlessHITLEnabled(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Put(ctx, "t1", "ns", Checkpoint{CheckpointID: "c1", Phase: PhaseToolApproval}))

	cfg := Config{Enabled: true, Recovery: RecoveryConfig{AutoResume: true}}
	mgr := NewManager(cfg, store, nil)

	resumed := 0
	err := mgr.RecoverOnStartup(ctx, func(ctx context.Context, threadID, namespace string, cp Checkpoint) error {
		resumed++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, resumed)

	mgr2 := NewManager(Config{Enabled: true, Recovery: RecoveryConfig{AutoResume: true, AutoResumeHITL: true}}, store, nil)
	err = mgr2.RecoverOnStartup(ctx, func(ctx context.Context, threadID, namespace string, cp Checkpoint) error {
		resumed++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, resumed)
}
