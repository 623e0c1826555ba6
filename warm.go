package imageds

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/imageds/resource"
)

// WarmOption configures a Warm run.
type WarmOption func(*resource.Config)

// WithWarmWorkers sets how many items are materialized concurrently
// (default 1).
func WithWarmWorkers(n int64) WarmOption {
	return func(c *resource.Config) { c.MaxWorkers = n }
}

// WithWarmMemoryLimit bounds the decoded sample bytes held in flight
// across workers.
func WithWarmMemoryLimit(bytes int64) WarmOption {
	return func(c *resource.Config) { c.MemoryLimitBytes = bytes }
}

// WithWarmIOLimit throttles the bytes per second pushed into the cache
// backend.
func WithWarmIOLimit(bytesPerSec int64) WarmOption {
	return func(c *resource.Config) { c.IOLimitBytesPerSec = bytesPerSec }
}

// Warm eagerly fills the cache backend for every item. Items already
// cached (by this process or a sibling) are served from the cache and
// skipped cheaply; the fill is cooperative across processes because the
// backend tolerates concurrent idempotent writes.
//
// Warm returns the first materialization error and cancels outstanding
// work. A dataset without a cache backend cannot be warmed.
func (d *Dataset) Warm(ctx context.Context, opts ...WarmOption) error {
	if d.closed.Load() {
		return ErrClosed
	}
	if d.backend == nil {
		return fmt.Errorf("warm: no cache backend configured")
	}

	var cfg resource.Config
	for _, opt := range opts {
		opt(&cfg)
	}
	ctrl := resource.NewController(cfg)

	if err := d.backend.Init(); err != nil {
		return translateError(err)
	}
	d.cacheUsed.Store(true)

	itemBytes := int64(d.backend.Schema().ItemBytes())
	n := d.RealLen()
	start := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		if err := ctrl.AcquireWorker(ctx); err != nil {
			break
		}
		g.Go(func() error {
			defer ctrl.ReleaseWorker()

			if err := ctrl.AcquireMemory(ctx, itemBytes); err != nil {
				return err
			}
			defer ctrl.ReleaseMemory(itemBytes)

			if err := ctrl.AcquireIO(ctx, int(itemBytes)); err != nil {
				return err
			}

			if _, err := d.backend.Get(i); err != nil {
				return fmt.Errorf("warming item %d: %w", i, translateError(err))
			}
			return nil
		})
	}

	err := g.Wait()
	d.logger.LogWarm(n, time.Since(start), err)
	return err
}
