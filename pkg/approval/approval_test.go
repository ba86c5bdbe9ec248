package approval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGate_CreateApproveWaitUnblocks(t *testing.T) {
	g := NewGate()
	req := g.Create("sess1", "user1", "delete_record", "delete row 42", map[string]any{"id": 42}, time.Hour)
	assert.Equal(t, StatusPending, req.Status)

	unblocked := make(chan Request, 1)
	go func() {
		r, err := g.Wait(context.Background(), req.ID, 5*time.Second)
		require.NoError(t, err)
		unblocked <- r
	}()

	time.Sleep(10 * time.Millisecond)
	_, err := g.Approve("sess1", req.ID, "looks fine")
	require.NoError(t, err)

	select {
	case r := <-unblocked:
		assert.Equal(t, StatusApproved, r.Status)
	case <-time.After(time.Second):
		t.Fatal("Wait did not unblock after Approve")
	}
}

func TestGate_RejectIsTerminal(t *testing.T) {
	g := NewGate()
	req := g.Create("sess1", "", "update_skill", "", nil, time.Hour)

	r, err := g.Reject("sess1", req.ID, "nope")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, r.Status)

	// Approving an already-terminal request is idempotent, not an error.
	r2, err := g.Approve("sess1", req.ID, "")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, r2.Status)
}

func TestGate_CrossSessionForbidden(t *testing.T) {
	g := NewGate()
	req := g.Create("sess1", "", "delete_record", "", nil, time.Hour)

	_, err := g.Approve("sess2", req.ID, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrForbidden))
}

func TestGate_SweepExpired(t *testing.T) {
	g := NewGate()
	req := g.Create("sess1", "", "send_email", "", nil, time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	count := g.SweepExpired()
	assert.Equal(t, 1, count)

	got, err := g.Wait(context.Background(), req.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, got.Status)

	// A second sweep finds nothing new.
	assert.Equal(t, 0, g.SweepExpired())
}

func TestGate_ListPendingFiltersBySession(t *testing.T) {
	g := NewGate()
	g.Create("sess1", "", "a", "", nil, time.Hour)
	g.Create("sess2", "", "b", "", nil, time.Hour)

	assert.Len(t, g.ListPending("sess1"), 1)
	assert.Len(t, g.ListPending(""), 2)
}

func TestGate_WaitTimeoutReturnsPending(t *testing.T) {
	g := NewGate()
	req := g.Create("sess1", "", "a", "", nil, time.Hour)

	r, err := g.Wait(context.Background(), req.ID, 20*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, r.Status)
}
