package cache

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/hupe1980/imageds/internal/shm"
	"github.com/hupe1980/imageds/sample"
)

// SharedMemory caches materialized samples in named shared-memory
// regions addressable by all cooperating worker processes: one
// fixed-shape array region per field plus a one-byte-per-item
// cached-state bitmap.
//
// No cross-process mutual exclusion guards the fill path. Two processes
// racing on the same miss both recompute and both write; the writes are
// identical bytes, so the race costs CPU, not correctness. Readers that
// observe a set bitmap entry are guaranteed a complete prior write.
type SharedMemory struct {
	provider  Provider
	datasetID string
	namespace string
	log       *slog.Logger

	mu          sync.Mutex // guards initialization and remap
	initialized bool

	schema  sample.Schema
	fields  map[string]*sharedField
	scalars []string
	renames [][2]string // backend-level renames, replayed onto misses

	bitmap *shm.Region
	bmMu   sync.RWMutex // in-process bitmap ordering; cross-process stays lock-free

	needsFill bool
	closed    bool
}

type sharedField struct {
	region    *shm.Region
	spec      sample.FieldSpec
	itemBytes int
}

// SharedOption configures a SharedMemory backend.
type SharedOption func(*SharedMemory)

// WithNamespace overrides the region-name namespace prefix.
func WithNamespace(ns string) SharedOption {
	return func(c *SharedMemory) { c.namespace = ns }
}

// WithSharedLogger sets the logger.
func WithSharedLogger(log *slog.Logger) SharedOption {
	return func(c *SharedMemory) {
		if log != nil {
			c.log = log
		}
	}
}

// NewSharedMemory creates a shared-memory backend bound to one dataset.
// No resources are acquired until Init.
func NewSharedMemory(provider Provider, datasetID string, opts ...SharedOption) *SharedMemory {
	c := &SharedMemory{
		provider:  provider,
		datasetID: datasetID,
		namespace: DefaultNamespace,
		log:       slog.Default(),
		fields:    make(map[string]*sharedField),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Init acquires or attaches the shared regions. The schema sample (item
// 0) sizes and types every region. Creation is idempotent: a region that
// already exists is attached, never recreated, and never re-zeroed.
func (c *SharedMemory) Init() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		return nil
	}

	n := c.provider.NumSamples()
	if n <= 0 {
		return ErrEmptyDataset
	}

	schemaSample, err := c.provider.Materialize(0)
	if err != nil {
		return fmt.Errorf("cache: materializing schema sample: %w", err)
	}
	c.schema = sample.SchemaOf(schemaSample)

	// Scalars stay in the dataset's ground-truth table; they must be
	// servable on hits without a materialize call.
	for _, name := range c.schema.ScalarFields() {
		if _, ok := c.provider.Scalar(name, 0); !ok {
			return fmt.Errorf("cache: scalar field %q not backed by a ground-truth table", name)
		}
		c.scalars = append(c.scalars, name)
	}

	bitmapName := BitmapRegionName(c.namespace, c.datasetID)
	bitmap, err := shm.CreateOrAttach(bitmapName, n)
	if err != nil {
		c.releaseLocked()
		return &AllocationError{Resource: "shared region " + bitmapName, cause: err}
	}
	c.bitmap = bitmap
	c.needsFill = bitmap.Creator()

	for _, name := range c.schema.ArrayFields() {
		spec := c.schema[name]
		itemBytes := spec.DType.Size()
		for _, dim := range spec.Shape {
			itemBytes *= dim
		}

		regionName := RegionName(c.namespace, name, c.datasetID)
		region, err := shm.CreateOrAttach(regionName, n*itemBytes)
		if err != nil {
			c.releaseLocked()
			return &AllocationError{Resource: "shared region " + regionName, cause: err}
		}
		if region.Creator() {
			c.needsFill = true
			c.log.Info("created shared region", "name", regionName, "bytes", n*itemBytes, "shape", spec.Shape)
		} else {
			c.log.Info("attached to existing shared region", "name", regionName)
		}
		c.fields[name] = &sharedField{region: region, spec: spec, itemBytes: itemBytes}
	}

	c.initialized = true
	return nil
}

// Get implements Backend.
func (c *SharedMemory) Get(index int) (*sample.Sample, error) {
	if err := c.Init(); err != nil {
		return nil, err
	}

	n := c.provider.NumSamples()
	if index < 0 || index >= n {
		return nil, &RangeError{Index: index, Length: n}
	}

	if c.isCached(index) {
		return c.readItem(index)
	}

	s, err := c.provider.Materialize(index)
	if err != nil {
		return nil, err
	}
	c.applyRenames(s)
	if err := c.schema.Validate(s); err != nil {
		return nil, err
	}

	for name, f := range c.fields {
		arr := s.Array(name)
		copy(f.region.Bytes()[index*f.itemBytes:(index+1)*f.itemBytes], arr.Data)
	}
	c.markCached(index)

	return s, nil
}

func (c *SharedMemory) isCached(index int) bool {
	c.bmMu.RLock()
	defer c.bmMu.RUnlock()
	bm := c.bitmap.Bytes()
	return bm != nil && bm[index] != 0
}

func (c *SharedMemory) markCached(index int) {
	c.bmMu.Lock()
	defer c.bmMu.Unlock()
	if bm := c.bitmap.Bytes(); bm != nil {
		bm[index] = 1
	}
}

// readItem copies the per-field slices at offset index out of the shared
// regions. Copying decouples the returned sample from a concurrent
// idempotent overwrite of the same item.
func (c *SharedMemory) readItem(index int) (*sample.Sample, error) {
	out := sample.New()
	for name, f := range c.fields {
		arr := sample.NewArray(f.spec.DType, f.spec.Shape...)
		copy(arr.Data, f.region.Bytes()[index*f.itemBytes:(index+1)*f.itemBytes])
		out.SetArray(name, arr)
	}
	for _, name := range c.scalars {
		v, ok := c.provider.Scalar(name, index)
		if !ok {
			return nil, fmt.Errorf("cache: scalar field %q missing for item %d", name, index)
		}
		out.Set(name, v)
	}
	return out, nil
}

// Remap implements Backend. The region name keeps its original
// field-derived name; only the in-process bookkeeping is renamed, so
// already attached siblings stay consistent.
func (c *SharedMemory) Remap(old, new string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if f, ok := c.fields[old]; ok {
		delete(c.fields, old)
		c.fields[new] = f
	}
	for i, name := range c.scalars {
		if name == old {
			c.scalars[i] = new
		}
	}
	c.schema.Rename(old, new)
	c.renames = append(c.renames, [2]string{old, new})
	return nil
}

// applyRenames replays recorded renames onto a freshly materialized
// sample, which may still carry pre-remap field names when only the
// backend was remapped. Renaming an absent field is a no-op.
func (c *SharedMemory) applyRenames(s *sample.Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.renames {
		s.Rename(r[0], r[1])
	}
}

// NeedsFill implements Backend.
func (c *SharedMemory) NeedsFill() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.needsFill
}

// Schema implements Backend.
func (c *SharedMemory) Schema() sample.Schema {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.schema
}

// Close detaches from every region. The process that created a region
// additionally unlinks its name; callers are responsible for closing
// creators only after all attachers are done.
func (c *SharedMemory) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.initialized = false
	c.releaseLocked()
	return nil
}

func (c *SharedMemory) releaseLocked() {
	release := func(r *shm.Region) {
		if r == nil {
			return
		}
		creator, name := r.Creator(), r.Name()
		if err := r.Close(); err != nil {
			c.log.Warn("detaching shared region failed", "name", name, "error", err)
		}
		if creator {
			if err := shm.Unlink(name); err != nil {
				c.log.Warn("unlinking shared region failed", "name", name, "error", err)
			}
		}
	}

	for _, f := range c.fields {
		release(f.region)
	}
	c.fields = make(map[string]*sharedField)
	release(c.bitmap)
	c.bitmap = nil
}

var _ Backend = (*SharedMemory)(nil)
