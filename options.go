package imageds

import (
	"path/filepath"

	"github.com/hupe1980/imageds/cache"
	"github.com/hupe1980/imageds/sample"
	"github.com/hupe1980/imageds/transform"
)

type options struct {
	id          string
	logger      *Logger
	stage       transform.Stage
	sizeFactor  float64
	returnIndex bool
	returnTag   bool
	tags        map[string]sample.Value
	ignoreKeys  []string
	namespace   string

	backendFactory func(d *Dataset) cache.Backend
}

// Option configures a Dataset.
type Option func(*options)

// WithID sets the dataset identity string. Cache backing stores are
// keyed by it: two datasets sharing identity and transform identity
// alias the same storage. This is a trust contract, not verified.
func WithID(id string) Option {
	return func(o *options) {
		o.id = id
	}
}

// WithLogger sets the logger. Defaults to a text logger at info level.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTransform sets the two-phase transform pipeline. The deterministic
// pre-cache phase runs once before an item is stored; the post-cache
// phase runs on every access, cache hit or not.
func WithTransform(stage transform.Stage) Option {
	return func(o *options) {
		o.stage = stage
	}
}

// WithSizeFactor multiplies the reported dataset length; indices beyond
// the real length wrap around. Useful to lengthen epochs over small
// datasets under heavy augmentation.
func WithSizeFactor(factor float64) Option {
	return func(o *options) {
		if factor > 0 {
			o.sizeFactor = factor
		}
	}
}

// WithReturnIndex injects the item index into every returned sample
// under the "index" field.
func WithReturnIndex() Option {
	return func(o *options) {
		o.returnIndex = true
	}
}

// WithTag attaches a constant tag field injected into every returned
// sample (e.g. the originating split of a concatenated dataset).
func WithTag(name string, v sample.Value) Option {
	return func(o *options) {
		if o.tags == nil {
			o.tags = make(map[string]sample.Value)
		}
		o.tags[name] = v
		o.returnTag = true
	}
}

// WithIgnoreKeys filters the named fields out of every returned sample.
func WithIgnoreKeys(keys ...string) Option {
	return func(o *options) {
		o.ignoreKeys = append(o.ignoreKeys, keys...)
	}
}

// WithNamespace overrides the shared-memory region namespace prefix.
func WithNamespace(ns string) Option {
	return func(o *options) {
		if ns != "" {
			o.namespace = ns
		}
	}
}

// WithSharedMemoryCache caches computed samples in named shared-memory
// regions shared across cooperating worker processes.
func WithSharedMemoryCache() Option {
	return func(o *options) {
		o.backendFactory = func(d *Dataset) cache.Backend {
			return cache.NewSharedMemory(d, d.id,
				cache.WithNamespace(d.namespace),
				cache.WithSharedLogger(d.logger.Logger),
			)
		}
	}
}

// WithDiskCache caches computed samples under dir, one file per
// (field, item). If dir is empty, a default next to the source data is
// used when the source provides one.
func WithDiskCache(dir string, diskOpts ...cache.DiskOption) Option {
	return func(o *options) {
		o.backendFactory = func(d *Dataset) cache.Backend {
			root := dir
			if root == "" {
				root = d.defaultCacheDir()
			}
			root = DiskCacheRoot(root, d.id, d.pipelineID())
			opts := append([]cache.DiskOption{cache.WithDiskLogger(d.logger.Logger)}, diskOpts...)
			return cache.NewDisk(d, root, opts...)
		}
	}
}

// WithCacheBackend installs a custom cache backend factory. The dataset
// itself is the backend's sample provider.
func WithCacheBackend(factory func(d *Dataset) cache.Backend) Option {
	return func(o *options) {
		o.backendFactory = factory
	}
}

// DiskCacheRoot composes a disk-cache root from a base directory, the
// dataset identity and the transform-pipeline identity.
func DiskCacheRoot(dir, datasetID, pipelineID string) string {
	return filepath.Join(dir, datasetID, pipelineID)
}

func defaultOptions() *options {
	return &options{
		logger:     NewLogger(nil),
		sizeFactor: 1,
		namespace:  cache.DefaultNamespace,
	}
}
