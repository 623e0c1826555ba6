package imageds

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/hupe1980/imageds/cache"
	"github.com/hupe1980/imageds/sample"
	"github.com/hupe1980/imageds/transform"
)

// Source produces raw samples for integer indices by reading backing
// storage and applying deterministic normalization. Implementations are
// polymorphic over how files are listed and images loaded (see
// ImageSource and ClassificationSource).
type Source interface {
	// Len returns the number of items.
	Len() int
	// Load reads item i. It fails with a not-found error when the index
	// is out of range or a backing file is missing.
	Load(index int) (*sample.Sample, error)
	// ItemName returns the canonical display filename of item i,
	// derived from the image field.
	ItemName(index int) string
	// FieldItemName returns the per-item filename of a field with its
	// own filename table, or false if the field has none.
	FieldItemName(field string, index int) (string, bool)
	// Scalar serves a non-array field from the in-memory ground-truth
	// table.
	Scalar(field string, index int) (sample.Value, bool)
	// Subset restricts the index space to the given original indices.
	Subset(indices []int) error
	// Remap renames a field across the source's bookkeeping.
	Remap(old, new string) error
}

// Dataset owns a sample source, an optional transform pipeline, and
// zero-or-one cache backend, and routes every item access through
// cache-or-direct logic transparently.
type Dataset struct {
	source    Source
	stage     transform.Stage
	id        string
	namespace string
	logger    *Logger

	sizeFactor  float64
	returnIndex bool
	returnTag   bool
	tags        map[string]sample.Value

	mu     sync.RWMutex // guards ignore
	ignore map[string]struct{}

	backend   cache.Backend
	group     singleflight.Group
	cacheUsed atomic.Bool
	closed    atomic.Bool
}

// NewDataset creates a dataset over the given source.
func NewDataset(source Source, opts ...Option) (*Dataset, error) {
	if source == nil {
		return nil, ErrNoSource
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	id := o.id
	if id == "" {
		id = "dataset"
	}

	d := &Dataset{
		source:      source,
		stage:       o.stage,
		id:          id,
		namespace:   o.namespace,
		logger:      o.logger.WithDataset(id),
		sizeFactor:  o.sizeFactor,
		returnIndex: o.returnIndex,
		returnTag:   o.returnTag,
		tags:        o.tags,
		ignore:      make(map[string]struct{}),
	}
	for _, k := range o.ignoreKeys {
		d.ignore[k] = struct{}{}
	}

	if o.backendFactory != nil {
		d.backend = o.backendFactory(d)
	}

	return d, nil
}

// ID returns the dataset identity string.
func (d *Dataset) ID() string { return d.id }

// RealLen returns the number of distinct items.
func (d *Dataset) RealLen() int { return d.source.Len() }

// Len returns the reported length (real length times the size factor).
func (d *Dataset) Len() int {
	return int(d.sizeFactor * float64(d.RealLen()))
}

// MultiplySize sets the size factor (see WithSizeFactor).
func (d *Dataset) MultiplySize(factor float64) {
	if factor > 0 {
		d.sizeFactor = factor
	}
}

// Cache returns the active cache backend, or nil when caching is
// disabled.
func (d *Dataset) Cache() cache.Backend { return d.backend }

// pipelineID returns the transform identity used in cache keys.
func (d *Dataset) pipelineID() string {
	if d.stage == nil {
		return "identity"
	}
	return d.stage.ID()
}

func (d *Dataset) defaultCacheDir() string {
	if s, ok := d.source.(interface{ DefaultCacheDir() string }); ok {
		if dir := s.DefaultCacheDir(); dir != "" {
			return dir
		}
	}
	return filepath.Join(os.TempDir(), "imageds-cache")
}

// NumSamples implements cache.Provider.
func (d *Dataset) NumSamples() int { return d.RealLen() }

// Materialize implements cache.Provider: raw load plus the
// deterministic pre-cache transform.
func (d *Dataset) Materialize(index int) (*sample.Sample, error) {
	s, err := d.source.Load(index)
	if err != nil {
		return nil, translateError(err)
	}
	if d.stage != nil {
		if s, err = d.stage.PreCache(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// ItemName implements cache.Provider.
func (d *Dataset) ItemName(index int) string { return d.source.ItemName(index) }

// FieldItemName implements cache.Provider.
func (d *Dataset) FieldItemName(field string, index int) (string, bool) {
	return d.source.FieldItemName(field, index)
}

// Scalar implements cache.Provider.
func (d *Dataset) Scalar(field string, index int) (sample.Value, bool) {
	return d.source.Scalar(field, index)
}

// Get returns item index: cache-or-source retrieval, post-cache
// transform (re-applied on every access), index/tag injection, and
// ignore-key filtering, in that order.
func (d *Dataset) Get(index int) (*sample.Sample, error) {
	if d.closed.Load() {
		return nil, ErrClosed
	}

	length := d.Len()
	if index < 0 || index >= length {
		return nil, translateError(&cache.RangeError{Index: index, Length: length})
	}
	real := index
	if real >= d.RealLen() {
		real %= d.RealLen()
	}

	s, err := d.loadArray(real)
	if err != nil {
		d.logger.LogGet(real, err)
		return nil, translateError(err)
	}

	if d.stage != nil {
		if s, err = d.stage.PostCache(s); err != nil {
			return nil, err
		}
	}

	if d.returnIndex {
		s.Set("index", sample.Int(int64(real)))
	}
	if d.returnTag {
		for name, v := range d.tags {
			s.Set(name, v)
		}
	}

	d.filter(s)
	d.logger.LogGet(real, nil)
	return s, nil
}

// loadArray retrieves the materialized item, through the cache backend
// when one is configured. Concurrent in-process requests for the same
// item share one computation.
func (d *Dataset) loadArray(index int) (*sample.Sample, error) {
	if d.backend == nil {
		return d.Materialize(index)
	}
	d.cacheUsed.Store(true)

	v, err, shared := d.group.Do(strconv.Itoa(index), func() (any, error) {
		return d.backend.Get(index)
	})
	if err != nil {
		return nil, err
	}
	s := v.(*sample.Sample)
	if shared {
		// Duplicate waiters get their own copy so per-caller post-cache
		// transforms cannot alias each other.
		s = s.Clone()
	}
	return s, nil
}

func (d *Dataset) filter(s *sample.Sample) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for k := range d.ignore {
		s.Delete(k)
	}
}

// SetIgnoreKeys adds fields to filter out of every returned sample.
func (d *Dataset) SetIgnoreKeys(keys ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, k := range keys {
		d.ignore[k] = struct{}{}
	}
}

// ClearIgnoreKeys removes all ignore-key filters.
func (d *Dataset) ClearIgnoreKeys() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ignore = make(map[string]struct{})
}

// Filename returns the display filename of item index.
func (d *Dataset) Filename(index int) string {
	return d.source.ItemName(index)
}

// Subset restricts the dataset to the given ordered original indices.
//
// Subsetting does not migrate a previously populated cache: backends
// address items by post-subset index, so applying Subset after cache
// use silently aliases stale entries. Apply it before the first cached
// access.
func (d *Dataset) Subset(indices []int) error {
	if d.cacheUsed.Load() {
		d.logger.Warn("subset applied after cache use; cached items now alias new indices")
	}
	return d.source.Subset(indices)
}

// Remap renames a field consistently across the source bookkeeping,
// ground-truth tables, and the active cache backend. It is idempotent
// and must not run concurrently with in-flight Get calls for the field.
func (d *Dataset) Remap(old, new string) error {
	if err := d.source.Remap(old, new); err != nil {
		return err
	}
	if d.backend != nil {
		if err := d.backend.Remap(old, new); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the cache backend. A shared-memory creator unlinks its
// regions; the caller is responsible for closing the creator only after
// all attaching workers are done.
func (d *Dataset) Close() error {
	if d.closed.Swap(true) {
		return nil
	}
	if d.backend != nil {
		if err := d.backend.Close(); err != nil {
			return fmt.Errorf("closing cache backend: %w", err)
		}
	}
	return nil
}
