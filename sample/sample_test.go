package sample

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDTypeSize(t *testing.T) {
	assert.Equal(t, 1, DTypeUint8.Size())
	assert.Equal(t, 2, DTypeInt16.Size())
	assert.Equal(t, 2, DTypeUint16.Size())
	assert.Equal(t, 4, DTypeInt32.Size())
	assert.Equal(t, 4, DTypeUint32.Size())
	assert.Equal(t, 4, DTypeFloat32.Size())
	assert.Equal(t, 8, DTypeFloat64.Size())
	assert.Equal(t, 0, DTypeInvalid.Size())
}

func TestNewArray(t *testing.T) {
	a := NewArray(DTypeInt16, 4, 5)

	assert.Equal(t, 20, a.NumElems())
	assert.Equal(t, 40, a.NumBytes())
	assert.Equal(t, 2, a.Ndim())
	assert.Len(t, a.Int16s(), 20)
}

func TestArrayTypedViews(t *testing.T) {
	a := NewArray(DTypeFloat32, 3)
	a.Float32s()[1] = 1.5

	// The view aliases the backing bytes.
	b := a.Clone()
	assert.Equal(t, float32(1.5), b.Float32s()[1])

	b.Float32s()[1] = 2.5
	assert.Equal(t, float32(1.5), a.Float32s()[1])
	assert.False(t, a.Equal(b))
}

func TestArrayEqual(t *testing.T) {
	a := NewArray(DTypeUint8, 2, 2)
	b := NewArray(DTypeUint8, 2, 2)
	assert.True(t, a.Equal(b))

	b.Data[0] = 1
	assert.False(t, a.Equal(b))

	c := NewArray(DTypeUint8, 4)
	assert.False(t, a.Equal(c))
}

func TestSampleFields(t *testing.T) {
	s := New()
	s.SetArray("image", NewArray(DTypeUint8, 2, 2, 3))
	s.Set("label", Int(3))
	s.Set("weight", Float(0.5))

	assert.Equal(t, 3, s.Len())
	assert.Equal(t, []string{"image", "label", "weight"}, s.Fields())
	assert.True(t, s.Has("label"))

	s.Rename("label", "target")
	assert.False(t, s.Has("label"))
	v, ok := s.Get("target")
	require.True(t, ok)
	assert.Equal(t, int64(3), v.I64)

	s.Delete("weight")
	assert.Equal(t, 2, s.Len())

	assert.Nil(t, s.Array("target"))
	assert.NotNil(t, s.Array("image"))
}

func TestSampleCloneIsDeep(t *testing.T) {
	s := New()
	s.SetArray("image", NewArray(DTypeUint8, 4))
	s.Set("label", Int(1))

	c := s.Clone()
	require.True(t, s.Equal(c))

	c.Array("image").Data[0] = 9
	assert.False(t, s.Equal(c))
	assert.Zero(t, s.Array("image").Data[0])
}

func TestSchemaValidate(t *testing.T) {
	s := New()
	s.SetArray("image", NewArray(DTypeUint8, 4, 4, 3))
	s.Set("label", Int(2))

	schema := SchemaOf(s)
	require.NoError(t, schema.Validate(s))

	t.Run("missing field", func(t *testing.T) {
		bad := s.Clone()
		bad.Delete("label")

		var schemaErr *SchemaError
		require.ErrorAs(t, schema.Validate(bad), &schemaErr)
	})

	t.Run("extra field", func(t *testing.T) {
		bad := s.Clone()
		bad.Set("extra", Int(1))

		var schemaErr *SchemaError
		err := schema.Validate(bad)
		require.ErrorAs(t, err, &schemaErr)
		assert.Equal(t, "extra", schemaErr.Field)
	})

	t.Run("shape mismatch", func(t *testing.T) {
		bad := s.Clone()
		bad.SetArray("image", NewArray(DTypeUint8, 4, 5, 3))

		var schemaErr *SchemaError
		require.ErrorAs(t, schema.Validate(bad), &schemaErr)
	})

	t.Run("dtype mismatch", func(t *testing.T) {
		bad := s.Clone()
		bad.SetArray("image", NewArray(DTypeInt16, 4, 4, 3))

		var schemaErr *SchemaError
		require.ErrorAs(t, schema.Validate(bad), &schemaErr)
	})

	t.Run("kind mismatch", func(t *testing.T) {
		bad := s.Clone()
		bad.Set("label", String("two"))

		var schemaErr *SchemaError
		require.ErrorAs(t, schema.Validate(bad), &schemaErr)
	})
}

func TestSchemaFieldsAndItemBytes(t *testing.T) {
	s := New()
	s.SetArray("image", NewArray(DTypeUint8, 4, 4, 3))
	s.SetArray("mask", NewArray(DTypeInt16, 4, 4))
	s.Set("label", Int(0))

	schema := SchemaOf(s)

	assert.Equal(t, []string{"image", "mask"}, schema.ArrayFields())
	assert.Equal(t, []string{"label"}, schema.ScalarFields())
	assert.Equal(t, 4*4*3+4*4*2, schema.ItemBytes())

	schema.Rename("mask", "segmentation")
	assert.Contains(t, schema, "segmentation")
	assert.NotContains(t, schema, "mask")
}
