package transform

import (
	"errors"
	"fmt"
	"image"

	xdraw "golang.org/x/image/draw"

	"github.com/hupe1980/imageds/sample"
)

// Interpolation selects the resampling kernel used by Resize.
type Interpolation uint8

const (
	// InterpNearest is nearest-neighbor resampling.
	InterpNearest Interpolation = iota
	// InterpBilinear is bilinear resampling.
	InterpBilinear
	// InterpCatmullRom is Catmull-Rom (cubic) resampling.
	InterpCatmullRom
)

func (ip Interpolation) scaler() xdraw.Scaler {
	switch ip {
	case InterpBilinear:
		return xdraw.BiLinear
	case InterpCatmullRom:
		return xdraw.CatmullRom
	default:
		return xdraw.NearestNeighbor
	}
}

// String implements fmt.Stringer.
func (ip Interpolation) String() string {
	switch ip {
	case InterpBilinear:
		return "bilinear"
	case InterpCatmullRom:
		return "catmullrom"
	default:
		return "nearest"
	}
}

// ErrNotAnImage is returned when a geometry op meets a non-image array.
var ErrNotAnImage = errors.New("transform: array is not an image layout")

func toImage(a *sample.Array) (image.Image, int, error) {
	if a.DType != sample.DTypeUint8 {
		return nil, 0, ErrNotAnImage
	}
	h, w := 0, 0
	c := 1
	switch a.Ndim() {
	case 2:
		h, w = a.Shape[0], a.Shape[1]
	case 3:
		h, w, c = a.Shape[0], a.Shape[1], a.Shape[2]
	default:
		return nil, 0, ErrNotAnImage
	}

	switch c {
	case 1:
		img := image.NewGray(image.Rect(0, 0, w, h))
		copy(img.Pix, a.Data)
		return img, c, nil
	case 3, 4:
		img := image.NewNRGBA(image.Rect(0, 0, w, h))
		for i := range h * w {
			img.Pix[i*4+0] = a.Data[i*c+0]
			img.Pix[i*4+1] = a.Data[i*c+1]
			img.Pix[i*4+2] = a.Data[i*c+2]
			if c == 4 {
				img.Pix[i*4+3] = a.Data[i*c+3]
			} else {
				img.Pix[i*4+3] = 0xff
			}
		}
		return img, c, nil
	default:
		return nil, 0, ErrNotAnImage
	}
}

func fromImage(img image.Image, ndim, c int) *sample.Array {
	b := img.Bounds()
	h, w := b.Dy(), b.Dx()

	var shape []int
	if ndim == 2 {
		shape = []int{h, w}
	} else {
		shape = []int{h, w, c}
	}
	out := sample.NewArray(sample.DTypeUint8, shape...)

	switch src := img.(type) {
	case *image.Gray:
		for y := range h {
			copy(out.Data[y*w:(y+1)*w], src.Pix[y*src.Stride:y*src.Stride+w])
		}
	case *image.NRGBA:
		for i := range h * w {
			for ch := range c {
				out.Data[i*c+ch] = src.Pix[i*4+ch]
			}
		}
	}
	return out
}

// ResizeArray resamples an image-layout uint8 array to the target
// height/width. With keepRatio the image is scaled to fit inside the
// target box preserving aspect ratio, so the result may be smaller than
// the target on one axis (pair with PadArray).
func ResizeArray(a *sample.Array, height, width int, keepRatio bool, interp Interpolation) (*sample.Array, error) {
	img, c, err := toImage(a)
	if err != nil {
		return nil, err
	}

	srcH, srcW := a.Shape[0], a.Shape[1]
	dstH, dstW := height, width
	if keepRatio {
		scaleH := float64(height) / float64(srcH)
		scaleW := float64(width) / float64(srcW)
		scale := min(scaleH, scaleW)
		dstH = max(1, int(float64(srcH)*scale+0.5))
		dstW = max(1, int(float64(srcW)*scale+0.5))
	}
	if dstH == srcH && dstW == srcW {
		return a, nil
	}

	var dst xdraw.Image
	if c == 1 {
		dst = image.NewGray(image.Rect(0, 0, dstW, dstH))
	} else {
		dst = image.NewNRGBA(image.Rect(0, 0, dstW, dstH))
	}
	interp.scaler().Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Src, nil)

	return fromImage(dst, a.Ndim(), c), nil
}

// PadArray zero-pads an image-layout uint8 array to the target
// height/width, centering the source.
func PadArray(a *sample.Array, height, width int) (*sample.Array, error) {
	if a.DType != sample.DTypeUint8 || a.Ndim() < 2 || a.Ndim() > 3 {
		return nil, ErrNotAnImage
	}
	srcH, srcW := a.Shape[0], a.Shape[1]
	if srcH == height && srcW == width {
		return a, nil
	}
	if srcH > height || srcW > width {
		return nil, fmt.Errorf("transform: cannot pad (%d,%d) into (%d,%d)", srcH, srcW, height, width)
	}

	c := 1
	var shape []int
	if a.Ndim() == 3 {
		c = a.Shape[2]
		shape = []int{height, width, c}
	} else {
		shape = []int{height, width}
	}
	out := sample.NewArray(sample.DTypeUint8, shape...)

	top := (height - srcH) / 2
	left := (width - srcW) / 2
	rowBytes := srcW * c
	for y := range srcH {
		dstOff := ((top+y)*width + left) * c
		copy(out.Data[dstOff:dstOff+rowBytes], a.Data[y*rowBytes:(y+1)*rowBytes])
	}
	return out, nil
}

func imageFields(s *sample.Sample) []string {
	var names []string
	for _, name := range s.Fields() {
		a := s.Array(name)
		if a == nil || a.DType != sample.DTypeUint8 {
			continue
		}
		if a.Ndim() == 2 || (a.Ndim() == 3 && (a.Shape[2] == 1 || a.Shape[2] == 3 || a.Shape[2] == 4)) {
			names = append(names, name)
		}
	}
	return names
}

// Resize returns an op that resamples every image-layout field.
func Resize(height, width int, keepRatio bool, interp Interpolation) Op {
	params := fmt.Sprintf("h=%d,w=%d,keep_ratio=%t,interp=%s", height, width, keepRatio, interp)
	return NewOp("resize", params, func(s *sample.Sample) (*sample.Sample, error) {
		for _, name := range imageFields(s) {
			resized, err := ResizeArray(s.Array(name), height, width, keepRatio, interp)
			if err != nil {
				return nil, err
			}
			s.SetArray(name, resized)
		}
		return s, nil
	})
}

// Pad returns an op that center-pads every image-layout field.
func Pad(height, width int) Op {
	params := fmt.Sprintf("h=%d,w=%d", height, width)
	return NewOp("pad", params, func(s *sample.Sample) (*sample.Sample, error) {
		for _, name := range imageFields(s) {
			padded, err := PadArray(s.Array(name), height, width)
			if err != nil {
				return nil, err
			}
			s.SetArray(name, padded)
		}
		return s, nil
	})
}
