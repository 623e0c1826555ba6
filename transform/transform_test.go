package transform

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/imageds/sample"
)

func gradientImage(h, w, c int) *sample.Array {
	var a *sample.Array
	if c == 0 {
		a = sample.NewArray(sample.DTypeUint8, h, w)
	} else {
		a = sample.NewArray(sample.DTypeUint8, h, w, c)
	}
	for i := range a.Data {
		a.Data[i] = byte(i)
	}
	return a
}

func TestResizeArray(t *testing.T) {
	a := gradientImage(8, 8, 3)

	out, err := ResizeArray(a, 4, 4, false, InterpNearest)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 4, 3}, out.Shape)
}

func TestResizeArray_KeepRatio(t *testing.T) {
	a := gradientImage(8, 16, 0)

	// Fitting a 8x16 source into a 8x8 box halves both axes.
	out, err := ResizeArray(a, 8, 8, true, InterpBilinear)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 8}, out.Shape)
}

func TestResizeArray_NoopReturnsInput(t *testing.T) {
	a := gradientImage(8, 8, 3)

	out, err := ResizeArray(a, 8, 8, false, InterpNearest)
	require.NoError(t, err)
	assert.Same(t, a, out)
}

func TestResizeArray_NotAnImage(t *testing.T) {
	a := sample.NewArray(sample.DTypeFloat32, 8, 8)

	_, err := ResizeArray(a, 4, 4, false, InterpNearest)
	require.ErrorIs(t, err, ErrNotAnImage)
}

func TestPadArray(t *testing.T) {
	a := gradientImage(2, 2, 0)
	a.Data = []byte{1, 2, 3, 4}

	out, err := PadArray(a, 4, 4)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 4}, out.Shape)

	// Source centered, zeros around it.
	assert.Equal(t, []byte{
		0, 0, 0, 0,
		0, 1, 2, 0,
		0, 3, 4, 0,
		0, 0, 0, 0,
	}, out.Data)
}

func TestPadArray_TooLarge(t *testing.T) {
	a := gradientImage(8, 8, 0)

	_, err := PadArray(a, 4, 4)
	require.Error(t, err)
}

func TestResizeThenPadReachesTarget(t *testing.T) {
	s := sample.New()
	s.SetArray("image", gradientImage(6, 12, 3))

	p := NewPipeline().AddPre(Resize(8, 8, true, InterpBilinear), Pad(8, 8))

	out, err := p.PreCache(s)
	require.NoError(t, err)
	assert.Equal(t, []int{8, 8, 3}, out.Array("image").Shape)
}

func TestOpsSkipNonImageFields(t *testing.T) {
	s := sample.New()
	s.SetArray("image", gradientImage(8, 8, 3))
	s.SetArray("depth", sample.NewArray(sample.DTypeFloat32, 8, 8))
	s.Set("label", sample.Int(1))

	out, err := Resize(4, 4, false, InterpNearest).Apply(s)
	require.NoError(t, err)

	assert.Equal(t, []int{4, 4, 3}, out.Array("image").Shape)
	assert.Equal(t, []int{8, 8}, out.Array("depth").Shape)
}

func TestPipelinePhases(t *testing.T) {
	pre, post := 0, 0
	p := NewPipeline().
		AddPre(NewOp("count-pre", "", func(s *sample.Sample) (*sample.Sample, error) {
			pre++
			return s, nil
		})).
		AddPost(NewOp("count-post", "", func(s *sample.Sample) (*sample.Sample, error) {
			post++
			return s, nil
		}))

	s := sample.New()
	_, err := p.PreCache(s)
	require.NoError(t, err)
	_, err = p.PostCache(s)
	require.NoError(t, err)
	_, err = p.PostCache(s)
	require.NoError(t, err)

	assert.Equal(t, 1, pre)
	assert.Equal(t, 2, post)
}

func TestPipelineOpError(t *testing.T) {
	boom := errors.New("boom")
	p := NewPipeline().AddPre(NewOp("fail", "", func(s *sample.Sample) (*sample.Sample, error) {
		return nil, boom
	}))

	_, err := p.PreCache(sample.New())
	require.ErrorIs(t, err, boom)
}

func TestPipelineID(t *testing.T) {
	empty := NewPipeline()
	assert.Equal(t, "identity", empty.ID())

	a := NewPipeline().AddPre(Resize(8, 8, true, InterpBilinear))
	b := NewPipeline().AddPre(Resize(8, 8, true, InterpBilinear))
	c := NewPipeline().AddPre(Resize(16, 16, true, InterpBilinear))

	assert.Equal(t, a.ID(), b.ID())
	assert.NotEqual(t, a.ID(), c.ID())

	// Post-cache ops never invalidate stored samples.
	b.AddPost(Pad(8, 8))
	assert.Equal(t, a.ID(), b.ID())
}
