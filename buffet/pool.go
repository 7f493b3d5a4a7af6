package buffet

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

var ErrPoolClosed = errors.New("buffet: pool closed")

// Lease is a receive chunk checked out of a Pool.
type Lease interface {
	// Bytes returns the leased chunk. Its capacity is the pool chunk size.
	Bytes() []byte

	// Release returns the chunk to the pool for reuse.
	Release()

	// Destroy drops the chunk instead of returning it to the pool.
	Destroy()
}

// Pool hands out fixed-size receive chunks.
type Pool interface {
	Acquire(ctx context.Context) (Lease, error)
	ChunkSize() int
	Stats() PoolStats

	// Close drops idle chunks and blocks until every leased chunk is
	// released or destroyed. Acquire fails with ErrPoolClosed afterwards.
	Close()
}

// PoolStats contains statistics about a chunk pool.
//
// For Prometheus integration, expose these as:
//   - Gauges: TotalChunks, IdleChunks, ActiveChunks
//   - Counters: AcquireCount, AcquireWaitCount, CreatedChunks, DestroyedChunks, AcquireErrors
type PoolStats struct {
	AcquireCount      uint64 // Total acquire attempts
	AcquireWaitCount  uint64 // Acquires that had to wait
	CreatedChunks     uint64 // Total chunks allocated
	DestroyedChunks   uint64 // Total chunks dropped
	AcquireErrors     uint64 // Failed acquire attempts
	AcquireWaitTimeNs uint64 // Total nanoseconds spent waiting

	TotalChunks  int32 // Chunks owned by the pool (active + idle)
	IdleChunks   int32 // Chunks ready to be leased
	ActiveChunks int32 // Chunks currently leased
	_            int32
}

// Add returns the field-wise sum of s and o.
func (s PoolStats) Add(o PoolStats) PoolStats {
	return PoolStats{
		AcquireCount:      s.AcquireCount + o.AcquireCount,
		AcquireWaitCount:  s.AcquireWaitCount + o.AcquireWaitCount,
		CreatedChunks:     s.CreatedChunks + o.CreatedChunks,
		DestroyedChunks:   s.DestroyedChunks + o.DestroyedChunks,
		AcquireErrors:     s.AcquireErrors + o.AcquireErrors,
		AcquireWaitTimeNs: s.AcquireWaitTimeNs + o.AcquireWaitTimeNs,
		TotalChunks:       s.TotalChunks + o.TotalChunks,
		IdleChunks:        s.IdleChunks + o.IdleChunks,
		ActiveChunks:      s.ActiveChunks + o.ActiveChunks,
	}
}

// poolStatsCollector updates PoolStats from pool implementations.
type poolStatsCollector struct {
	stats PoolStats
}

func (c *poolStatsCollector) recordAcquire() {
	atomic.AddUint64(&c.stats.AcquireCount, 1)
}

func (c *poolStatsCollector) recordAcquireWait(d time.Duration) {
	atomic.AddUint64(&c.stats.AcquireWaitCount, 1)
	atomic.AddUint64(&c.stats.AcquireWaitTimeNs, uint64(d.Nanoseconds()))
}

func (c *poolStatsCollector) recordCreate() {
	atomic.AddUint64(&c.stats.CreatedChunks, 1)
	atomic.AddInt32(&c.stats.TotalChunks, 1)
}

func (c *poolStatsCollector) recordDestroy() {
	atomic.AddUint64(&c.stats.DestroyedChunks, 1)
	atomic.AddInt32(&c.stats.TotalChunks, -1)
}

func (c *poolStatsCollector) recordAcquireError() {
	atomic.AddUint64(&c.stats.AcquireErrors, 1)
}

func (c *poolStatsCollector) recordAcquireFromIdle() {
	atomic.AddInt32(&c.stats.IdleChunks, -1)
	atomic.AddInt32(&c.stats.ActiveChunks, 1)
}

func (c *poolStatsCollector) recordActivate() {
	atomic.AddInt32(&c.stats.ActiveChunks, 1)
}

func (c *poolStatsCollector) recordRelease() {
	atomic.AddInt32(&c.stats.IdleChunks, 1)
	atomic.AddInt32(&c.stats.ActiveChunks, -1)
}

func (c *poolStatsCollector) recordDeactivate() {
	atomic.AddInt32(&c.stats.ActiveChunks, -1)
}

func (c *poolStatsCollector) recordDropIdle() {
	atomic.AddInt32(&c.stats.IdleChunks, -1)
	c.recordDestroy()
}

func (c *poolStatsCollector) snapshot() PoolStats {
	return PoolStats{
		TotalChunks:       atomic.LoadInt32(&c.stats.TotalChunks),
		IdleChunks:        atomic.LoadInt32(&c.stats.IdleChunks),
		ActiveChunks:      atomic.LoadInt32(&c.stats.ActiveChunks),
		AcquireCount:      atomic.LoadUint64(&c.stats.AcquireCount),
		AcquireWaitCount:  atomic.LoadUint64(&c.stats.AcquireWaitCount),
		CreatedChunks:     atomic.LoadUint64(&c.stats.CreatedChunks),
		DestroyedChunks:   atomic.LoadUint64(&c.stats.DestroyedChunks),
		AcquireErrors:     atomic.LoadUint64(&c.stats.AcquireErrors),
		AcquireWaitTimeNs: atomic.LoadUint64(&c.stats.AcquireWaitTimeNs),
	}
}
