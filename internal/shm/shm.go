// Package shm provides named, process-shared memory regions with
// create-or-attach acquisition semantics.
//
// The first caller of CreateOrAttach for a given name creates and sizes
// the region; every later caller attaches to the existing one. "Already
// exists" is a normal branch, not an error. Only the creating process is
// expected to Unlink the name once all attachers are done; attachers
// merely Close (detach).
package shm

import (
	"errors"
	"sync/atomic"
)

var (
	// ErrUnsupported is returned on platforms without named shared memory.
	ErrUnsupported = errors.New("shm: named shared memory not supported on this platform")
	// ErrClosed is returned when accessing a detached region.
	ErrClosed = errors.New("shm: region is closed")
	// ErrInvalidSize is returned for non-positive sizes or when an
	// existing region is smaller than requested.
	ErrInvalidSize = errors.New("shm: invalid region size")
	// ErrInvalidName is returned for names that cannot identify a region.
	ErrInvalidName = errors.New("shm: invalid region name")
)

// Region is a named memory region shared between cooperating processes.
type Region struct {
	name    string
	data    []byte
	creator bool
	closed  atomic.Bool
	unmap   func([]byte) error
}

// Name returns the region name.
func (r *Region) Name() string { return r.name }

// Size returns the region size in bytes.
func (r *Region) Size() int { return len(r.data) }

// Creator reports whether this process created the region (as opposed to
// attaching to one that already existed).
func (r *Region) Creator() bool { return r.creator }

// Bytes returns the shared byte slice.
// The slice is valid only until Close() is called.
func (r *Region) Bytes() []byte {
	if r.closed.Load() {
		return nil
	}
	return r.data
}

// Close detaches from the region. It is idempotent and never removes the
// name; call Unlink for that.
func (r *Region) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	if r.unmap != nil && r.data != nil {
		return r.unmap(r.data)
	}
	return nil
}

// CreateOrAttach acquires the named region at the given size, creating it
// if it does not exist yet. Newly created regions are zero-filled by the
// OS; attaching never re-zeroes.
func CreateOrAttach(name string, size int) (*Region, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	return createOrAttach(name, size)
}

// Unlink removes the region name so no further process can attach.
// Existing mappings stay valid until each holder closes. Unlinking a
// name that is already gone is not an error.
func Unlink(name string) error {
	return unlink(name)
}
