package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/imageds/sample"
)

func TestRandomArray(t *testing.T) {
	rng := NewRNG(4711)

	a := rng.RandomArray(sample.DTypeInt16, 4, 8)

	assert.Equal(t, sample.DTypeInt16, a.DType)
	assert.Equal(t, []int{4, 8}, a.Shape)
	assert.Len(t, a.Data, 64)
}

func TestRandomImage(t *testing.T) {
	rng := NewRNG(4711)

	assert.Equal(t, []int{16, 16}, rng.RandomImage(16, 16, 0).Shape)
	assert.Equal(t, []int{16, 16, 3}, rng.RandomImage(16, 16, 3).Shape)
}

func TestRandomSample(t *testing.T) {
	rng := NewRNG(4711)

	schema := sample.Schema{
		"image": {Kind: sample.KindArray, DType: sample.DTypeUint8, Shape: []int{8, 8, 3}},
		"label": {Kind: sample.KindInt},
	}

	s := rng.RandomSample(schema)

	require.NoError(t, schema.Validate(s))
}

func TestReset(t *testing.T) {
	rng := NewRNG(4711)

	a1 := rng.RandomArray(sample.DTypeUint8, 32)
	rng.Reset()
	a2 := rng.RandomArray(sample.DTypeUint8, 32)

	assert.Equal(t, a1.Data, a2.Data)
}

func TestWriteImageTree(t *testing.T) {
	dir := t.TempDir()

	n := WriteImageTree(t, dir, []string{"cat", "dog"}, 3, 8, 8)
	assert.Equal(t, 6, n)

	entries, err := os.ReadDir(filepath.Join(dir, "cat"))
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}
