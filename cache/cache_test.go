package cache

import (
	"fmt"
	"sync"

	"github.com/hupe1980/imageds/sample"
)

// testProvider serves deterministic samples and counts materializations
// per item.
type testProvider struct {
	n int

	mu           sync.Mutex
	materialized map[int]int

	// breakFrom makes Materialize return a wrong-shaped sample for
	// indices >= breakFrom (0 disables).
	breakFrom int
}

func newTestProvider(n int) *testProvider {
	return &testProvider{n: n, materialized: make(map[int]int)}
}

func (p *testProvider) NumSamples() int { return p.n }

func (p *testProvider) Materialize(index int) (*sample.Sample, error) {
	if index < 0 || index >= p.n {
		return nil, &RangeError{Index: index, Length: p.n}
	}
	p.mu.Lock()
	p.materialized[index]++
	p.mu.Unlock()

	shape := []int{4, 5, 3}
	if p.breakFrom > 0 && index >= p.breakFrom {
		shape = []int{5, 4, 3}
	}

	img := sample.NewArray(sample.DTypeUint8, shape...)
	for i := range img.Data {
		img.Data[i] = byte(index*7 + i)
	}

	mask := sample.NewArray(sample.DTypeInt16, 4, 5)
	for i, elems := 0, mask.Int16s(); i < len(elems); i++ {
		elems[i] = int16(index*100 - i)
	}

	weights := sample.NewArray(sample.DTypeFloat32, 3)
	for i, elems := 0, weights.Float32s(); i < len(elems); i++ {
		elems[i] = float32(index) + float32(i)/10
	}

	s := sample.New()
	s.SetArray("image", img)
	s.SetArray("mask", mask)
	s.SetArray("weights", weights)
	s.Set("label", sample.Int(int64(index*10)))
	return s, nil
}

func (p *testProvider) ItemName(index int) string {
	return fmt.Sprintf("img_%03d.png", index)
}

func (p *testProvider) FieldItemName(field string, index int) (string, bool) {
	if field == "mask" {
		return fmt.Sprintf("mask_%03d.png", index), true
	}
	return "", false
}

func (p *testProvider) Scalar(field string, index int) (sample.Value, bool) {
	if field != "label" || index < 0 || index >= p.n {
		return sample.Value{}, false
	}
	return sample.Int(int64(index * 10)), true
}

func (p *testProvider) materializeCount(index int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.materialized[index]
}
