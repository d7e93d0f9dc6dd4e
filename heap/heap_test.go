package heap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedRoots []Pointer

func (r fixedRoots) Roots() []Pointer { return r }

func TestAllocateAndGet(t *testing.T) {
	h := New(Config{NewSpaceSize: 8, OldSpaceSize: 8, TenureAfter: 2})
	ptr, err := h.Allocate(Header{ClassID: 1}, "hello", fixedRoots(nil))
	require.NoError(t, err)
	assert.Equal(t, "hello", h.Get(ptr))
}

func TestMinorCollectDropsUnreachable(t *testing.T) {
	h := New(Config{NewSpaceSize: 4, OldSpaceSize: 8, TenureAfter: 100})

	kept, err := h.Allocate(Header{ClassID: 1}, "kept", fixedRoots(nil))
	require.NoError(t, err)
	_, err = h.Allocate(Header{ClassID: 1}, "garbage", fixedRoots([]Pointer{kept}))
	require.NoError(t, err)

	h.MinorCollect(fixedRoots([]Pointer{kept}))

	assert.Equal(t, 1, h.from.NumAllocated())
	assert.Equal(t, "kept", h.from.slots[0].payload)
}

func TestAllocateExhaustedAfterCollectionErrors(t *testing.T) {
	h := New(Config{NewSpaceSize: 1, OldSpaceSize: 1, TenureAfter: 100})
	a, err := h.Allocate(Header{ClassID: 1}, "a", fixedRoots(nil))
	require.NoError(t, err)

	_, err = h.Allocate(Header{ClassID: 1}, "b", fixedRoots([]Pointer{a}))
	assert.Error(t, err)
}

func TestTenuringPromotesSurvivors(t *testing.T) {
	h := New(Config{NewSpaceSize: 4, OldSpaceSize: 4, TenureAfter: 1})
	ptr, err := h.Allocate(Header{ClassID: 1}, "survivor", fixedRoots(nil))
	require.NoError(t, err)

	roots := fixedRoots([]Pointer{ptr})
	h.MinorCollect(roots)

	assert.Equal(t, 1, h.old.NumAllocated())
	assert.Equal(t, 0, h.from.NumAllocated())
}

func TestStat(t *testing.T) {
	h := New(DefaultConfig())
	stat := h.Stat()
	assert.Equal(t, 0, stat.NewSpaceUsed)
	assert.Equal(t, DefaultConfig().NewSpaceSize, stat.NewSpaceCapacity)
}
