package imgio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/imageds/sample"
)

func TestIsImage(t *testing.T) {
	tests := []struct {
		name     string
		arr      *sample.Array
		expected bool
	}{
		{"Gray", sample.NewArray(sample.DTypeUint8, 4, 4), true},
		{"GrayChan", sample.NewArray(sample.DTypeUint8, 4, 4, 1), true},
		{"RGB", sample.NewArray(sample.DTypeUint8, 4, 4, 3), true},
		{"RGBA", sample.NewArray(sample.DTypeUint8, 4, 4, 4), true},
		{"TwoChannels", sample.NewArray(sample.DTypeUint8, 4, 4, 2), false},
		{"Int16", sample.NewArray(sample.DTypeInt16, 4, 4), false},
		{"OneDim", sample.NewArray(sample.DTypeUint8, 16), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsImage(tt.arr))
		})
	}
}

func TestPackableDType(t *testing.T) {
	assert.Equal(t, sample.DTypeInt16, PackableDType(sample.NewArray(sample.DTypeInt16, 4, 4)))
	assert.Equal(t, sample.DTypeUint32, PackableDType(sample.NewArray(sample.DTypeUint32, 2, 8)))
	assert.Equal(t, sample.DTypeInvalid, PackableDType(sample.NewArray(sample.DTypeUint8, 4, 4)))
	assert.Equal(t, sample.DTypeInvalid, PackableDType(sample.NewArray(sample.DTypeInt16, 4, 4, 1)))
	assert.Equal(t, sample.DTypeInvalid, PackableDType(sample.NewArray(sample.DTypeFloat32, 4, 4)))
}

func TestPNGRoundTrip(t *testing.T) {
	shapes := [][]int{{5, 7}, {5, 7, 1}, {5, 7, 3}, {5, 7, 4}}

	for _, shape := range shapes {
		arr := sample.NewArray(sample.DTypeUint8, shape...)
		for i := range arr.Data {
			arr.Data[i] = byte(i * 13)
		}

		data, err := EncodePNG(arr)
		require.NoError(t, err)

		channels := 1
		if len(shape) == 3 {
			channels = shape[2]
		}
		got, err := DecodePNG(data, channels)
		require.NoError(t, err)
		assert.Equal(t, arr.Data, got.Data, "shape %v", shape)
	}
}

func TestPackRoundTrip(t *testing.T) {
	dtypes := []sample.DType{sample.DTypeInt16, sample.DTypeUint16, sample.DTypeInt32, sample.DTypeUint32}

	for _, dtype := range dtypes {
		t.Run(dtype.String(), func(t *testing.T) {
			arr := sample.NewArray(dtype, 6, 9)
			// Bit patterns spanning the full value range, including the
			// extremes.
			for i := range arr.Data {
				arr.Data[i] = byte(i*31 + 7)
			}
			switch dtype {
			case sample.DTypeInt16:
				vals := arr.Int16s()
				vals[0], vals[1] = -32768, 32767
			case sample.DTypeUint16:
				vals := arr.Uint16s()
				vals[0], vals[1] = 0, 65535
			case sample.DTypeInt32:
				vals := arr.Int32s()
				vals[0], vals[1] = -2147483648, 2147483647
			case sample.DTypeUint32:
				vals := arr.Uint32s()
				vals[0], vals[1] = 0, 4294967295
			}

			packed, err := Pack(arr)
			require.NoError(t, err)
			require.True(t, IsImage(packed))

			got, err := Unpack(packed, dtype)
			require.NoError(t, err)
			assert.True(t, arr.Equal(got))
		})
	}
}

func TestPackRoundTripThroughPNG(t *testing.T) {
	arr := sample.NewArray(sample.DTypeUint16, 8, 8)
	vals := arr.Uint16s()
	for i := range vals {
		vals[i] = uint16(i * 1021)
	}

	packed, err := Pack(arr)
	require.NoError(t, err)

	data, err := EncodePNG(packed)
	require.NoError(t, err)

	img, err := DecodePNG(data, packed.Shape[2])
	require.NoError(t, err)

	got, err := Unpack(img, sample.DTypeUint16)
	require.NoError(t, err)
	assert.True(t, arr.Equal(got))
}

func TestRawRoundTrip(t *testing.T) {
	comps := []Compression{CompressionNone, CompressionLZ4, CompressionZSTD}

	arr := sample.NewArray(sample.DTypeFloat32, 3, 5, 2)
	vals := arr.Float32s()
	for i := range vals {
		vals[i] = float32(i) * 0.25
	}

	for _, comp := range comps {
		data, err := EncodeRaw(arr, comp)
		require.NoError(t, err)

		got, err := DecodeRaw(data)
		require.NoError(t, err)
		assert.True(t, arr.Equal(got), "compression %d", comp)
	}
}

func TestRawRoundTrip_Incompressible(t *testing.T) {
	arr := sample.NewArray(sample.DTypeUint8, 64)
	state := uint32(2463534242)
	for i := range arr.Data {
		state ^= state << 13
		state ^= state >> 17
		state ^= state << 5
		arr.Data[i] = byte(state)
	}

	data, err := EncodeRaw(arr, CompressionLZ4)
	require.NoError(t, err)

	got, err := DecodeRaw(data)
	require.NoError(t, err)
	assert.True(t, arr.Equal(got))
}

func TestDecodeRaw_Corrupt(t *testing.T) {
	_, err := DecodeRaw([]byte("bogus"))
	assert.ErrorIs(t, err, ErrBadRawHeader)

	arr := sample.NewArray(sample.DTypeUint8, 4)
	data, err := EncodeRaw(arr, CompressionNone)
	require.NoError(t, err)

	_, err = DecodeRaw(data[:len(data)-2])
	assert.ErrorIs(t, err, ErrBadRawHeader)
}
