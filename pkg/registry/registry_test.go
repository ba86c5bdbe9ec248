package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseRegistry_RegisterAndGet(t *testing.T) {
	r := NewBaseRegistry[string]()

	require.NoError(t, r.Register("a", "alpha"))

	got, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, "alpha", got)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestBaseRegistry_Overwrite(t *testing.T) {
	r := NewBaseRegistry[int]()
	require.NoError(t, r.Register("k", 1))
	require.NoError(t, r.Register("k", 2))

	got, ok := r.Get("k")
	require.True(t, ok)
	assert.Equal(t, 2, got)
	assert.Equal(t, 1, r.Count())
}

func TestBaseRegistry_RemoveAndClear(t *testing.T) {
	r := NewBaseRegistry[int]()
	require.NoError(t, r.Register("a", 1))
	require.NoError(t, r.Register("b", 2))

	assert.True(t, r.Remove("a"))
	assert.False(t, r.Remove("a"))
	assert.Equal(t, 1, r.Count())

	r.Clear()
	assert.Equal(t, 0, r.Count())
	assert.Empty(t, r.List())
}

func TestBaseRegistry_List(t *testing.T) {
	r := NewBaseRegistry[int]()
	require.NoError(t, r.Register("a", 1))
	require.NoError(t, r.Register("b", 2))

	assert.ElementsMatch(t, []int{1, 2}, r.List())
}
