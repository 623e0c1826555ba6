// Package cache implements the sample cache subsystem: lazy, at-most-once
// materialization of post-transform samples, stored either in named
// shared memory visible to cooperating worker processes, or on disk with
// a format chosen per field.
//
// Both backends share the same contract: the schema is pinned from the
// first materialized sample, the per-item cached-state tracker only ever
// transitions false to true while the backend is live, and concurrent
// recompute-and-overwrite races are tolerated because materialization is
// deterministic (last write wins, writes are idempotent).
package cache

import (
	"errors"
	"fmt"

	"github.com/hupe1980/imageds/sample"
)

// DefaultNamespace prefixes shared-memory region names.
const DefaultNamespace = "imageds"

// Provider supplies a backend with materialized (post pre-cache
// transform) samples and item naming. It is implemented by the owning
// dataset.
type Provider interface {
	// NumSamples returns the number of items in the index space.
	NumSamples() int
	// Materialize loads item i from the source and applies the
	// deterministic pre-cache transform.
	Materialize(index int) (*sample.Sample, error)
	// ItemName returns the canonical display filename of item i,
	// derived from the image field.
	ItemName(index int) string
	// FieldItemName returns the per-item filename of a field that has
	// its own filename table (ground-truth files with independent
	// names), or false if the field has none.
	FieldItemName(field string, index int) (string, bool)
	// Scalar serves a non-array field from the in-memory ground-truth
	// table. Scalars are never written to a backend.
	Scalar(field string, index int) (sample.Value, bool)
}

// Backend is the polymorphic cache contract.
type Backend interface {
	// Init lazily acquires backing storage. It is called on first
	// access, idempotent, and safe for concurrent use. Allocation
	// failures surface here and are fatal.
	Init() error
	// Get returns item i, computing and storing it on a miss.
	Get(index int) (*sample.Sample, error)
	// Remap renames a field across the backing storage and any
	// field-specific bookkeeping. It must not run concurrently with
	// in-flight Get calls for that field.
	Remap(old, new string) error
	// NeedsFill reports whether any backing storage was freshly created
	// at Init (informational only).
	NeedsFill() bool
	// Schema returns the pinned schema, or nil before Init.
	Schema() sample.Schema
	// Close releases backing resources. A shared-memory creator unlinks
	// region names; attachers merely detach.
	Close() error
}

// RangeError reports an index outside [0, Length).
type RangeError struct {
	Index  int
	Length int
}

// Error implements the error interface.
func (e *RangeError) Error() string {
	return fmt.Sprintf("cache: index %d out of range [0, %d)", e.Index, e.Length)
}

// AllocationError reports failed acquisition of backing storage at Init.
//
// The original underlying error can be accessed via errors.Unwrap.
type AllocationError struct {
	Resource string
	cause    error
}

// Error implements the error interface.
func (e *AllocationError) Error() string {
	return fmt.Sprintf("cache: allocating %s: %v", e.Resource, e.cause)
}

// Unwrap returns the underlying cause.
func (e *AllocationError) Unwrap() error { return e.cause }

// ErrEmptyDataset is returned when a backend is initialized over a
// provider with zero samples.
var ErrEmptyDataset = errors.New("cache: dataset has no samples")

// RegionName returns the shared-memory region name for a field's data,
// unique per (dataset identity, field) pair process-tree-wide.
func RegionName(namespace, field, datasetID string) string {
	return fmt.Sprintf("%s_%s_%s", namespace, field, datasetID)
}

// BitmapRegionName returns the shared-memory region name of the per-item
// cached-state bitmap.
func BitmapRegionName(namespace, datasetID string) string {
	return fmt.Sprintf("%s_%s_is_item_cached", namespace, datasetID)
}
