// Package imgio handles the on-disk encodings of sample arrays: lossless
// PNG for image-like uint8 layouts, byte-packed PNG for 2-D wide-integer
// arrays, and a raw array dump (optionally compressed) for everything
// else.
package imgio

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io"
	"os"

	// Register decoders for the native extensions sources may list.
	_ "image/jpeg"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/hupe1980/imageds/sample"
)

func init() {
	image.RegisterFormat("bmp", "BM", bmp.Decode, bmp.DecodeConfig)
	image.RegisterFormat("tiff", "II\x2A\x00", tiff.Decode, tiff.DecodeConfig)
	image.RegisterFormat("tiff", "MM\x00\x2A", tiff.Decode, tiff.DecodeConfig)
}

// ErrUnsupportedLayout is returned when an array cannot be encoded as an
// image, or a decoded image cannot be mapped back onto the requested
// channel count.
var ErrUnsupportedLayout = errors.New("imgio: unsupported image layout")

// IsImage reports whether the array is a directly displayable image
// layout: uint8 with shape (h,w) or (h,w,c) for c in {1,3,4}.
func IsImage(a *sample.Array) bool {
	if a == nil || a.DType != sample.DTypeUint8 {
		return false
	}
	switch a.Ndim() {
	case 2:
		return true
	case 3:
		c := a.Shape[2]
		return c == 1 || c == 3 || c == 4
	default:
		return false
	}
}

// PackableDType returns the original dtype if the array is a 2-D
// wide-integer array whose bytes can be reinterpreted as image channels,
// and DTypeInvalid otherwise.
func PackableDType(a *sample.Array) sample.DType {
	if a == nil || a.Ndim() != 2 {
		return sample.DTypeInvalid
	}
	switch a.DType {
	case sample.DTypeInt16, sample.DTypeUint16, sample.DTypeInt32, sample.DTypeUint32:
		return a.DType
	default:
		return sample.DTypeInvalid
	}
}

// ReadFile decodes an image file into a uint8 array: (h,w) for grayscale,
// (h,w,3) for color without alpha, (h,w,4) with alpha.
func ReadFile(path string) (*sample.Array, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// Decode decodes an image stream into a uint8 array.
func Decode(r io.Reader) (*sample.Array, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("imgio: decode: %w", err)
	}
	return fromImage(img)
}

func fromImage(img image.Image) (*sample.Array, error) {
	b := img.Bounds()
	h, w := b.Dy(), b.Dx()

	switch src := img.(type) {
	case *image.Gray:
		out := sample.NewArray(sample.DTypeUint8, h, w)
		for y := range h {
			copy(out.Data[y*w:(y+1)*w], src.Pix[y*src.Stride:y*src.Stride+w])
		}
		return out, nil
	case *image.RGBA:
		if src.Opaque() {
			return rgbaToChannels(src.Pix, src.Stride, h, w, 3), nil
		}
		return rgbaToChannels(src.Pix, src.Stride, h, w, 4), nil
	case *image.NRGBA:
		if src.Opaque() {
			return rgbaToChannels(src.Pix, src.Stride, h, w, 3), nil
		}
		return rgbaToChannels(src.Pix, src.Stride, h, w, 4), nil
	default:
		// JPEG YCbCr and friends: draw through an NRGBA canvas.
		canvas := image.NewNRGBA(image.Rect(0, 0, w, h))
		draw.Draw(canvas, canvas.Bounds(), img, b.Min, draw.Src)
		return rgbaToChannels(canvas.Pix, canvas.Stride, h, w, 3), nil
	}
}

func rgbaToChannels(pix []byte, stride, h, w, c int) *sample.Array {
	out := sample.NewArray(sample.DTypeUint8, h, w, c)
	for y := range h {
		row := pix[y*stride:]
		for x := range w {
			for ch := range c {
				out.Data[(y*w+x)*c+ch] = row[x*4+ch]
			}
		}
	}
	return out
}

// EncodePNG losslessly encodes an image-layout uint8 array as PNG.
func EncodePNG(a *sample.Array) ([]byte, error) {
	if !IsImage(a) {
		return nil, ErrUnsupportedLayout
	}

	h, w := a.Shape[0], a.Shape[1]
	c := 1
	if a.Ndim() == 3 {
		c = a.Shape[2]
	}

	var img image.Image
	switch c {
	case 1:
		gray := image.NewGray(image.Rect(0, 0, w, h))
		copy(gray.Pix, a.Data)
		img = gray
	case 3, 4:
		nrgba := image.NewNRGBA(image.Rect(0, 0, w, h))
		for i := range h * w {
			nrgba.Pix[i*4+0] = a.Data[i*c+0]
			nrgba.Pix[i*4+1] = a.Data[i*c+1]
			nrgba.Pix[i*4+2] = a.Data[i*c+2]
			if c == 4 {
				nrgba.Pix[i*4+3] = a.Data[i*c+3]
			} else {
				nrgba.Pix[i*4+3] = 0xff
			}
		}
		img = nrgba
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("imgio: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodePNG decodes PNG bytes back into a uint8 array with the given
// channel count (1, 3 or 4). The channel count comes from the pinned
// schema, not from the file.
func DecodePNG(data []byte, channels int) (*sample.Array, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("imgio: decode png: %w", err)
	}

	b := img.Bounds()
	h, w := b.Dy(), b.Dx()

	switch channels {
	case 1:
		gray, ok := img.(*image.Gray)
		if !ok {
			return nil, ErrUnsupportedLayout
		}
		out := sample.NewArray(sample.DTypeUint8, h, w)
		for y := range h {
			copy(out.Data[y*w:(y+1)*w], gray.Pix[y*gray.Stride:y*gray.Stride+w])
		}
		return out, nil
	case 3, 4:
		var pix []byte
		var stride int
		switch src := img.(type) {
		case *image.RGBA:
			// Opaque truecolor round-trips byte-exact.
			pix, stride = src.Pix, src.Stride
		case *image.NRGBA:
			pix, stride = src.Pix, src.Stride
		default:
			return nil, ErrUnsupportedLayout
		}
		return rgbaToChannels(pix, stride, h, w, channels), nil
	default:
		return nil, ErrUnsupportedLayout
	}
}
