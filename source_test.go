package imageds

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/imageds/sample"
	"github.com/hupe1980/imageds/testutil"
)

func newImageTree(t *testing.T) (string, int) {
	t.Helper()
	dir := t.TempDir()
	n := testutil.WriteImageTree(t, dir, []string{"cat", "dog"}, 3, 8, 8)
	return dir, n
}

func TestImageSource_ListsAndLoads(t *testing.T) {
	dir, n := newImageTree(t)

	src, err := NewImageSource([]string{dir})
	require.NoError(t, err)

	assert.Equal(t, n, src.Len())
	assert.True(t, strings.HasSuffix(src.ItemName(0), ".png"))

	s, err := src.Load(0)
	require.NoError(t, err)
	assert.Equal(t, []int{8, 8, 3}, s.Array(ImageField).Shape)
}

func TestImageSource_NonRecursiveSkipsSubdirs(t *testing.T) {
	dir, _ := newImageTree(t)

	_, err := NewImageSource([]string{dir}, WithRecursive(false))
	require.Error(t, err)
}

func TestImageSource_ShapeNormalization(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteImagePNG(t, dir, "wide.png", 8, 16, 0)
	testutil.WriteImagePNG(t, dir, "tall.png", 16, 8, 1)

	src, err := NewImageSource([]string{dir}, WithShape(8, 8))
	require.NoError(t, err)

	for i := 0; i < src.Len(); i++ {
		s, err := src.Load(i)
		require.NoError(t, err)
		assert.Equal(t, []int{8, 8, 3}, s.Array(ImageField).Shape)
	}
}

func TestImageSource_LoadOutOfRange(t *testing.T) {
	dir, n := newImageTree(t)

	src, err := NewImageSource([]string{dir})
	require.NoError(t, err)

	_, err = src.Load(n)
	require.Error(t, err)
}

func TestImageSource_AddImageField(t *testing.T) {
	imgDir := t.TempDir()
	maskDir := t.TempDir()
	testutil.WriteImagePNG(t, imgDir, "a.png", 8, 8, 0)
	testutil.WriteImagePNG(t, imgDir, "b.png", 8, 8, 1)
	testutil.WriteImagePNG(t, maskDir, "a.png", 8, 8, 2)
	testutil.WriteImagePNG(t, maskDir, "b.png", 8, 8, 3)

	src, err := NewImageSource([]string{imgDir})
	require.NoError(t, err)
	require.NoError(t, src.AddImageField("mask", []string{maskDir}))

	s, err := src.Load(1)
	require.NoError(t, err)
	assert.True(t, s.Has("mask"))

	name, ok := src.FieldItemName("mask", 0)
	require.True(t, ok)
	assert.Equal(t, "a.png", name)

	// A field without its own files has no per-item name.
	_, ok = src.FieldItemName("depth", 0)
	assert.False(t, ok)
}

func TestImageSource_AddImageFieldUnmatched(t *testing.T) {
	imgDir := t.TempDir()
	maskDir := t.TempDir()
	testutil.WriteImagePNG(t, imgDir, "a.png", 8, 8, 0)
	testutil.WriteImagePNG(t, maskDir, "other.png", 8, 8, 1)

	src, err := NewImageSource([]string{imgDir})
	require.NoError(t, err)

	require.Error(t, src.AddImageField("mask", []string{maskDir}))
}

func TestImageSource_AddScalarField(t *testing.T) {
	dir, n := newImageTree(t)

	src, err := NewImageSource([]string{dir})
	require.NoError(t, err)

	require.Error(t, src.AddScalarField("label", []sample.Value{sample.Int(1)}))

	values := make([]sample.Value, n)
	for i := range values {
		values[i] = sample.Float(float64(i))
	}
	require.NoError(t, src.AddScalarField("weight", values))

	v, ok := src.Scalar("weight", 2)
	require.True(t, ok)
	assert.Equal(t, 2.0, v.F64)

	s, err := src.Load(2)
	require.NoError(t, err)
	assert.True(t, s.Has("weight"))
}

func TestImageSource_Subset(t *testing.T) {
	dir, n := newImageTree(t)

	src, err := NewImageSource([]string{dir})
	require.NoError(t, err)

	name3 := src.ItemName(3)
	require.NoError(t, src.Subset([]int{3, 0}))

	assert.Equal(t, 2, src.Len())
	assert.Equal(t, name3, src.ItemName(0))

	require.Error(t, src.Subset([]int{n}))
}

func TestImageSource_Remap(t *testing.T) {
	dir, _ := newImageTree(t)

	src, err := NewImageSource([]string{dir})
	require.NoError(t, err)
	require.NoError(t, src.Remap(ImageField, "input"))

	s, err := src.Load(0)
	require.NoError(t, err)
	assert.True(t, s.Has("input"))
	assert.False(t, s.Has(ImageField))
}

func TestImageSource_DefaultCacheDir(t *testing.T) {
	dir, _ := newImageTree(t)

	src, err := NewImageSource([]string{dir})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ".imageds-cache"), src.DefaultCacheDir())
}
