//go:build linux

package shm

import (
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testName(t *testing.T) string {
	return fmt.Sprintf("imageds_test_%d_%s", os.Getpid(), t.Name())
}

func TestCreateOrAttach(t *testing.T) {
	name := testName(t)
	t.Cleanup(func() { _ = Unlink(name) })

	r1, err := CreateOrAttach(name, 64)
	require.NoError(t, err)
	defer r1.Close()

	assert.True(t, r1.Creator())
	assert.Equal(t, 64, r1.Size())

	// New regions are zero-filled.
	for _, b := range r1.Bytes() {
		require.Zero(t, b)
	}

	r1.Bytes()[7] = 42

	r2, err := CreateOrAttach(name, 64)
	require.NoError(t, err)
	defer r2.Close()

	assert.False(t, r2.Creator())
	assert.EqualValues(t, 42, r2.Bytes()[7])

	// Writes are visible both ways.
	r2.Bytes()[8] = 7
	assert.EqualValues(t, 7, r1.Bytes()[8])
}

func TestCreateOrAttach_InvalidArgs(t *testing.T) {
	_, err := CreateOrAttach("x", 0)
	assert.ErrorIs(t, err, ErrInvalidSize)

	_, err = CreateOrAttach("a/b", 16)
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = CreateOrAttach("", 16)
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestRegionClose(t *testing.T) {
	name := testName(t)
	t.Cleanup(func() { _ = Unlink(name) })

	r, err := CreateOrAttach(name, 16)
	require.NoError(t, err)

	require.NoError(t, r.Close())
	assert.Nil(t, r.Bytes())
	// Idempotent.
	require.NoError(t, r.Close())
}

func TestUnlink(t *testing.T) {
	name := testName(t)

	r, err := CreateOrAttach(name, 16)
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, Unlink(name))
	// Gone names unlink cleanly.
	require.NoError(t, Unlink(name))

	// A new acquisition after unlink creates a fresh region.
	r2, err := CreateOrAttach(name, 16)
	require.NoError(t, err)
	defer r2.Close()
	assert.True(t, r2.Creator())
	require.NoError(t, Unlink(name))
}
