package imgio

import (
	"fmt"

	"github.com/hupe1980/imageds/sample"
)

// Pack reinterprets a 2-D wide-integer array as an image-compatible uint8
// byte layout: 2-byte dtypes become (h,w,2) zero-padded to (h,w,3) for
// the codec, 4-byte dtypes become (h,w,4). Byte order follows the array's
// native layout, so Unpack restores the original bit pattern exactly.
func Pack(a *sample.Array) (*sample.Array, error) {
	dtype := PackableDType(a)
	if dtype == sample.DTypeInvalid {
		return nil, fmt.Errorf("%w: cannot pack %s with %d dims", ErrUnsupportedLayout, a.DType, a.Ndim())
	}

	h, w := a.Shape[0], a.Shape[1]
	width := dtype.Size()

	switch width {
	case 2:
		out := sample.NewArray(sample.DTypeUint8, h, w, 3)
		for i := range h * w {
			out.Data[i*3+0] = a.Data[i*2+0]
			out.Data[i*3+1] = a.Data[i*2+1]
		}
		return out, nil
	case 4:
		out := sample.NewArray(sample.DTypeUint8, h, w, 4)
		copy(out.Data, a.Data)
		return out, nil
	default:
		return nil, ErrUnsupportedLayout
	}
}

// Unpack reverses Pack. The original dtype is required context carried by
// the cache metadata; it is not recoverable from the image alone.
func Unpack(img *sample.Array, original sample.DType) (*sample.Array, error) {
	if img == nil || img.DType != sample.DTypeUint8 || img.Ndim() != 3 {
		return nil, ErrUnsupportedLayout
	}

	h, w, c := img.Shape[0], img.Shape[1], img.Shape[2]
	width := original.Size()

	switch {
	case width == 2 && (c == 2 || c == 3):
		out := sample.NewArray(original, h, w)
		for i := range h * w {
			out.Data[i*2+0] = img.Data[i*c+0]
			out.Data[i*2+1] = img.Data[i*c+1]
		}
		return out, nil
	case width == 4 && c == 4:
		out := sample.NewArray(original, h, w)
		copy(out.Data, img.Data)
		return out, nil
	default:
		return nil, fmt.Errorf("%w: cannot unpack %d channels into %s", ErrUnsupportedLayout, c, original)
	}
}
