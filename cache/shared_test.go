//go:build linux

package cache

import (
	"fmt"
	"os"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/imageds/sample"
)

var nsCounter atomic.Int64

// uniqueNamespace keeps region names of concurrently running tests from
// colliding under /dev/shm.
func uniqueNamespace() string {
	return fmt.Sprintf("imageds_test_%d_%d", os.Getpid(), nsCounter.Add(1))
}

func TestSharedMemory_GetCachesOnce(t *testing.T) {
	p := newTestProvider(5)
	c := NewSharedMemory(p, "ds", WithNamespace(uniqueNamespace()))
	defer c.Close()

	first, err := c.Get(2)
	require.NoError(t, err)

	second, err := c.Get(2)
	require.NoError(t, err)

	assert.Equal(t, 1, p.materializeCount(2))
	assert.True(t, first.Equal(second))

	v, ok := second.Get("label")
	require.True(t, ok)
	assert.Equal(t, int64(20), v.I64)
}

func TestSharedMemory_CachedStateMonotonic(t *testing.T) {
	p := newTestProvider(5)
	c := NewSharedMemory(p, "ds", WithNamespace(uniqueNamespace()))
	defer c.Close()

	_, err := c.Get(2)
	require.NoError(t, err)

	for range 5 {
		require.True(t, c.isCached(2))
		_, err := c.Get(2)
		require.NoError(t, err)
	}
	assert.True(t, c.isCached(2))
	assert.Equal(t, 1, p.materializeCount(2))
}

func TestSharedMemory_CrossInstanceVisibility(t *testing.T) {
	ns := uniqueNamespace()

	p1 := newTestProvider(5)
	creator := NewSharedMemory(p1, "ds", WithNamespace(ns))

	p2 := newTestProvider(5)
	attacher := NewSharedMemory(p2, "ds", WithNamespace(ns))

	want, err := creator.Get(3)
	require.NoError(t, err)
	assert.True(t, creator.NeedsFill())

	got, err := attacher.Get(3)
	require.NoError(t, err)

	// The attacher served the item from the creator's write: only its own
	// schema sample (item 0) was ever materialized.
	assert.Equal(t, 0, p2.materializeCount(3))
	assert.Equal(t, 1, p2.materializeCount(0))
	assert.True(t, want.Equal(got))
	assert.False(t, attacher.NeedsFill())

	// Attachers detach before the creator unlinks.
	require.NoError(t, attacher.Close())
	require.NoError(t, creator.Close())
}

func TestSharedMemory_SchemaViolation(t *testing.T) {
	p := newTestProvider(5)
	p.breakFrom = 2
	c := NewSharedMemory(p, "ds", WithNamespace(uniqueNamespace()))
	defer c.Close()

	_, err := c.Get(1)
	require.NoError(t, err)

	_, err = c.Get(3)
	var schemaErr *sample.SchemaError
	require.ErrorAs(t, err, &schemaErr)
}

func TestSharedMemory_OutOfRange(t *testing.T) {
	c := NewSharedMemory(newTestProvider(5), "ds", WithNamespace(uniqueNamespace()))
	defer c.Close()

	_, err := c.Get(5)
	var rangeErr *RangeError
	require.ErrorAs(t, err, &rangeErr)
	assert.Equal(t, 5, rangeErr.Index)

	_, err = c.Get(-1)
	require.ErrorAs(t, err, &rangeErr)
}

func TestSharedMemory_EmptyDataset(t *testing.T) {
	c := NewSharedMemory(newTestProvider(0), "ds", WithNamespace(uniqueNamespace()))
	defer c.Close()

	_, err := c.Get(0)
	require.ErrorIs(t, err, ErrEmptyDataset)
}

func TestSharedMemory_Remap(t *testing.T) {
	c := NewSharedMemory(newTestProvider(5), "ds", WithNamespace(uniqueNamespace()))
	defer c.Close()

	_, err := c.Get(1)
	require.NoError(t, err)

	require.NoError(t, c.Remap("mask", "segmentation"))

	s, err := c.Get(1)
	require.NoError(t, err)
	assert.True(t, s.Has("segmentation"))
	assert.False(t, s.Has("mask"))
	assert.Contains(t, c.Schema(), "segmentation")

	// A not-yet-cached item follows the renamed schema too.
	s, err = c.Get(2)
	require.NoError(t, err)
	assert.True(t, s.Has("segmentation"))
	assert.False(t, s.Has("mask"))
}

func TestSharedMemory_CloseIdempotent(t *testing.T) {
	c := NewSharedMemory(newTestProvider(5), "ds", WithNamespace(uniqueNamespace()))

	_, err := c.Get(0)
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}
