package testutil

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/hupe1980/imageds/sample"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Uint64 returns a pseudo-random uint64.
func (r *RNG) Uint64() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Uint64()
}

// FillBytes fills dst with pseudo-random bytes.
// Locks only once per call (preferred over calling Intn in a loop).
func (r *RNG) FillBytes(dst []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Read(dst)
}

// RandomArray generates an array of the given dtype and shape with a
// pseudo-random payload.
func (r *RNG) RandomArray(dtype sample.DType, shape ...int) *sample.Array {
	a := sample.NewArray(dtype, shape...)
	r.FillBytes(a.Data)
	return a
}

// RandomImage generates a uint8 image array of the given layout
// (channels 0 means a 2-D grayscale array).
func (r *RNG) RandomImage(height, width, channels int) *sample.Array {
	if channels == 0 {
		return r.RandomArray(sample.DTypeUint8, height, width)
	}
	return r.RandomArray(sample.DTypeUint8, height, width, channels)
}

// RandomSample generates a sample conforming to the given schema.
func (r *RNG) RandomSample(schema sample.Schema) *sample.Sample {
	s := sample.New()
	for _, name := range schema.ArrayFields() {
		spec := schema[name]
		s.SetArray(name, r.RandomArray(spec.DType, spec.Shape...))
	}
	for _, name := range schema.ScalarFields() {
		switch schema[name].Kind {
		case sample.KindInt:
			s.Set(name, sample.Int(int64(r.Intn(1000))))
		case sample.KindFloat:
			s.Set(name, sample.Float(float64(r.Intn(1000))/10))
		default:
			s.Set(name, sample.String(fmt.Sprintf("item-%d", r.Intn(1000))))
		}
	}
	return s
}

// EncodeTestPNG renders a deterministic RGB test pattern as PNG bytes.
func EncodeTestPNG(t *testing.T, height, width int, seed byte) []byte {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: byte(x) + seed,
				G: byte(y) + seed,
				B: byte(x+y) + seed,
				A: 0xff,
			})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding test png: %v", err)
	}
	return buf.Bytes()
}

// WriteImagePNG writes a deterministic PNG test image and returns its
// path. Parent directories are created as needed.
func WriteImagePNG(t *testing.T, dir, name string, height, width int, seed byte) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("creating image dir: %v", err)
	}
	if err := os.WriteFile(path, EncodeTestPNG(t, height, width, seed), 0o644); err != nil {
		t.Fatalf("writing test png: %v", err)
	}
	return path
}

// WriteImageTree lays out a per-class folder structure of PNG images
// under root, itemsPerClass images in each class folder, and returns
// the total item count.
func WriteImageTree(t *testing.T, root string, classes []string, itemsPerClass, height, width int) int {
	t.Helper()

	n := 0
	for ci, class := range classes {
		for i := 0; i < itemsPerClass; i++ {
			name := filepath.Join(class, fmt.Sprintf("img_%s_%02d.png", class, i))
			WriteImagePNG(t, root, name, height, width, byte(ci*16+i))
			n++
		}
	}
	return n
}
