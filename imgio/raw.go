package imgio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/hupe1980/imageds/sample"
)

// Compression selects the payload compression of raw array dumps.
type Compression uint8

const (
	// CompressionNone stores array bytes verbatim.
	CompressionNone Compression = 0
	// CompressionLZ4 uses LZ4 block compression (fast).
	CompressionLZ4 Compression = 1
	// CompressionZSTD uses ZSTD block compression (better ratio).
	CompressionZSTD Compression = 2
)

// Raw dump layout:
//
//	magic "IARR" | version u8 | dtype u8 | compression u8 | ndim u8 |
//	ndim x dim u32 | payloadLen u32 | payload
//
// payloadLen is the compressed length; 0 means the payload is stored
// uncompressed even when a compression codec is declared (incompressible
// data).
var rawMagic = [4]byte{'I', 'A', 'R', 'R'}

const rawVersion = 1

// ErrBadRawHeader is returned for corrupt or foreign raw dumps.
var ErrBadRawHeader = errors.New("imgio: bad raw array header")

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// EncodeRaw serializes an array as a raw dump with the given compression.
func EncodeRaw(a *sample.Array, comp Compression) ([]byte, error) {
	if a == nil || a.DType == sample.DTypeInvalid {
		return nil, ErrUnsupportedLayout
	}

	payload := a.Data
	compressedLen := 0

	switch comp {
	case CompressionNone:
	case CompressionLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(a.Data)))
		n, err := lz4.CompressBlock(a.Data, dst, nil)
		if err != nil {
			return nil, fmt.Errorf("imgio: lz4 compress: %w", err)
		}
		if n > 0 && n < len(a.Data) {
			payload = dst[:n]
			compressedLen = n
		}
	case CompressionZSTD:
		enc := getZstdEncoder()
		dst := enc.EncodeAll(a.Data, nil)
		zstdEncoderPool.Put(enc)
		if len(dst) < len(a.Data) {
			payload = dst
			compressedLen = len(dst)
		}
	default:
		return nil, fmt.Errorf("imgio: unknown compression %d", comp)
	}

	out := make([]byte, 0, 8+4*len(a.Shape)+4+len(payload))
	out = append(out, rawMagic[:]...)
	out = append(out, rawVersion, byte(a.DType), byte(comp), byte(len(a.Shape)))
	for _, dim := range a.Shape {
		out = binary.LittleEndian.AppendUint32(out, uint32(dim))
	}
	out = binary.LittleEndian.AppendUint32(out, uint32(compressedLen))
	out = append(out, payload...)
	return out, nil
}

// DecodeRaw deserializes a raw dump produced by EncodeRaw.
func DecodeRaw(data []byte) (*sample.Array, error) {
	if len(data) < 8 || [4]byte(data[:4]) != rawMagic {
		return nil, ErrBadRawHeader
	}
	if data[4] != rawVersion {
		return nil, fmt.Errorf("%w: version %d", ErrBadRawHeader, data[4])
	}

	dtype := sample.DType(data[5])
	comp := Compression(data[6])
	ndim := int(data[7])
	if dtype.Size() == 0 {
		return nil, fmt.Errorf("%w: dtype %d", ErrBadRawHeader, data[5])
	}

	off := 8
	if len(data) < off+4*ndim+4 {
		return nil, ErrBadRawHeader
	}
	shape := make([]int, ndim)
	for i := range shape {
		shape[i] = int(binary.LittleEndian.Uint32(data[off:]))
		off += 4
	}
	compressedLen := int(binary.LittleEndian.Uint32(data[off:]))
	off += 4
	payload := data[off:]

	out := sample.NewArray(dtype, shape...)

	if compressedLen == 0 {
		if len(payload) != len(out.Data) {
			return nil, fmt.Errorf("%w: payload is %d bytes, want %d", ErrBadRawHeader, len(payload), len(out.Data))
		}
		copy(out.Data, payload)
		return out, nil
	}
	if len(payload) != compressedLen {
		return nil, fmt.Errorf("%w: payload is %d bytes, header says %d", ErrBadRawHeader, len(payload), compressedLen)
	}

	switch comp {
	case CompressionLZ4:
		n, err := lz4.UncompressBlock(payload, out.Data)
		if err != nil {
			return nil, fmt.Errorf("imgio: lz4 decompress: %w", err)
		}
		if n != len(out.Data) {
			return nil, fmt.Errorf("%w: decompressed %d bytes, want %d", ErrBadRawHeader, n, len(out.Data))
		}
	case CompressionZSTD:
		dec := getZstdDecoder()
		dst, err := dec.DecodeAll(payload, out.Data[:0])
		zstdDecoderPool.Put(dec)
		if err != nil {
			return nil, fmt.Errorf("imgio: zstd decompress: %w", err)
		}
		if len(dst) != len(out.Data) {
			return nil, fmt.Errorf("%w: decompressed %d bytes, want %d", ErrBadRawHeader, len(dst), len(out.Data))
		}
		copy(out.Data, dst)
	default:
		return nil, fmt.Errorf("%w: compressed payload with compression %d", ErrBadRawHeader, comp)
	}

	return out, nil
}
