package imageds

import (
	"errors"
	"fmt"
	"os"

	"github.com/hupe1980/imageds/cache"
	"github.com/hupe1980/imageds/sample"
)

var (
	// ErrNotFound is returned when the underlying sample source cannot
	// produce an item (index out of range, or backing file missing with
	// no fill policy).
	ErrNotFound = errors.New("item not found")

	// ErrNoSource is returned when a dataset is constructed without a
	// sample source.
	ErrNoSource = errors.New("dataset has no sample source")

	// ErrClosed is returned when accessing a closed dataset.
	ErrClosed = errors.New("dataset is closed")
)

// The cache subsystem surfaces three further error classes unchanged:
//
//   - *sample.SchemaError: a later sample disagrees with the schema
//     sample. Programming-contract violation, fatal.
//   - *cache.AllocationError: shared-memory or disk allocation failed at
//     Init. Fatal, surfaced immediately.
//   - *cache.RangeError: index outside [0, len). Lookup failure.
//
// No retries happen anywhere below the dataset; retry policy belongs to
// the caller's data-loader wrapper.

// translateError unifies lookup failures under ErrNotFound and passes
// everything else through.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	var re *cache.RangeError
	if errors.As(err, &re) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	return err
}

// IsSchemaViolation reports whether err is a schema-contract violation.
func IsSchemaViolation(err error) bool {
	var se *sample.SchemaError
	return errors.As(err, &se)
}

// IsAllocationFailure reports whether err is a failed cache storage
// acquisition.
func IsAllocationFailure(err error) bool {
	var ae *cache.AllocationError
	return errors.As(err, &ae)
}
