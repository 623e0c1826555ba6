// Package imageds is a dataset-loading layer for image-based
// machine-learning pipelines. It reads heterogeneous per-sample data
// (images plus associated ground-truth arrays or scalars), applies
// deterministic geometric normalization, and exposes a uniform indexable
// interface.
//
// The core of the package is a pluggable sample cache: computed
// (post-transform) samples can be stored either in named shared memory
// visible to independent data-loading worker processes, or on disk with
// a format chosen per field to minimize storage cost. Filling is lazy
// and at-most-once per item, reads are safe from many concurrent
// readers, and deterministic recompute-and-overwrite races are tolerated
// instead of serialized.
//
// Basic usage:
//
//	src, err := imageds.NewImageSource([]string{"/data/train"},
//	    imageds.WithShape(256, 256),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ds, err := imageds.NewDataset(src,
//	    imageds.WithID("train-v1"),
//	    imageds.WithSharedMemoryCache(),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ds.Close()
//
//	s, err := ds.Get(0)
//
// Subsetting and field renaming must happen before the first cached
// access: cache addressing is index- and field-name-based, so reshaping
// the index space afterwards silently aliases stale entries.
package imageds
