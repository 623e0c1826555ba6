// Package resource bounds the resource usage of cache warm-up: how
// many items are materialized concurrently, how much decoded sample
// memory is held in flight, and how fast bytes are pushed into the
// cache backend.
package resource

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds warm-up resource limits.
type Config struct {
	// MaxWorkers is the number of items materialized concurrently.
	// If 0, defaults to 1.
	MaxWorkers int64

	// MemoryLimitBytes bounds the decoded sample bytes held in flight.
	// If 0, usage is tracked but not limited.
	MemoryLimitBytes int64

	// IOLimitBytesPerSec throttles bytes written into the backend.
	// If 0, unlimited.
	IOLimitBytesPerSec int64
}

// Controller enforces Config. A nil Controller enforces nothing.
type Controller struct {
	cfg Config

	workers *semaphore.Weighted

	memSem  *semaphore.Weighted // nil if unlimited
	memUsed atomic.Int64

	ioLimiter *rate.Limiter
}

// NewController creates a controller for the given limits.
func NewController(cfg Config) *Controller {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 1
	}

	c := &Controller{
		cfg:     cfg,
		workers: semaphore.NewWeighted(cfg.MaxWorkers),
	}

	if cfg.MemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}
	if cfg.IOLimitBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}

	return c
}

// MaxWorkers returns the configured worker count.
func (c *Controller) MaxWorkers() int64 {
	if c == nil {
		return 1
	}
	return c.cfg.MaxWorkers
}

// AcquireWorker reserves a worker slot, blocking until one is free or
// ctx is canceled.
func (c *Controller) AcquireWorker(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.workers.Acquire(ctx, 1)
}

// ReleaseWorker releases a worker slot.
func (c *Controller) ReleaseWorker() {
	if c == nil {
		return
	}
	c.workers.Release(1)
}

// AcquireMemory reserves in-flight sample bytes, blocking while the
// limit is exceeded.
func (c *Controller) AcquireMemory(ctx context.Context, bytes int64) error {
	if c == nil || bytes <= 0 {
		return nil
	}

	if c.memSem != nil {
		if err := c.memSem.Acquire(ctx, bytes); err != nil {
			return err
		}
	}

	c.memUsed.Add(bytes)
	return nil
}

// ReleaseMemory releases reserved bytes.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}

	if c.memSem != nil {
		c.memSem.Release(bytes)
	}
	c.memUsed.Add(-bytes)
}

// MemoryUsage returns the bytes currently in flight.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// AcquireIO waits until the throughput limit allows bytes more bytes.
func (c *Controller) AcquireIO(ctx context.Context, bytes int) error {
	if c == nil || c.ioLimiter == nil {
		return nil
	}
	burst := c.ioLimiter.Burst()
	// Oversized items are acquired in burst-sized slices so a single
	// large sample cannot exceed the limiter's capacity.
	for bytes > burst {
		if err := c.ioLimiter.WaitN(ctx, burst); err != nil {
			return err
		}
		bytes -= burst
	}
	return c.ioLimiter.WaitN(ctx, bytes)
}
