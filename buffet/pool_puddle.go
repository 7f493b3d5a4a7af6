package buffet

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/jackc/puddle/v2"
)

// NewPuddlePool creates a puddle-backed pool of chunkSize-byte receive
// chunks holding at most maxSize chunks. This is the default pool.
func NewPuddlePool(chunkSize int, maxSize int32) (Pool, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	p := &puddlePool{chunkSize: chunkSize}

	poolConfig := &puddle.Config[[]byte]{
		Constructor: func(ctx context.Context) ([]byte, error) {
			p.createdChunks.Add(1)
			return make([]byte, chunkSize), nil
		},
		Destructor: func([]byte) {
			p.destroyedChunks.Add(1)
		},
		MaxSize: maxSize,
	}

	pool, err := puddle.NewPool(poolConfig)
	if err != nil {
		return nil, err
	}
	p.pool = pool
	return p, nil
}

// puddlePool wraps puddle.Pool to implement Pool.
type puddlePool struct {
	pool            *puddle.Pool[[]byte]
	chunkSize       int
	createdChunks   atomic.Int64
	destroyedChunks atomic.Int64
}

func (p *puddlePool) Acquire(ctx context.Context) (Lease, error) {
	res, err := p.pool.Acquire(ctx)
	if err != nil {
		if errors.Is(err, puddle.ErrClosedPool) {
			return nil, ErrPoolClosed
		}
		return nil, err
	}
	return puddleLease{res: res}, nil
}

func (p *puddlePool) ChunkSize() int {
	return p.chunkSize
}

func (p *puddlePool) Close() {
	p.pool.Close()
}

// Stats maps puddle's statistics onto PoolStats.
func (p *puddlePool) Stats() PoolStats {
	s := p.pool.Stat()

	return PoolStats{
		TotalChunks:       s.TotalResources(),
		IdleChunks:        s.IdleResources(),
		ActiveChunks:      s.AcquiredResources(),
		AcquireCount:      uint64(s.AcquireCount()),
		AcquireWaitCount:  uint64(s.EmptyAcquireCount()), // pool was empty
		CreatedChunks:     uint64(p.createdChunks.Load()),
		DestroyedChunks:   uint64(p.destroyedChunks.Load()),
		AcquireErrors:     uint64(s.CanceledAcquireCount()),
		AcquireWaitTimeNs: uint64(s.EmptyAcquireWaitTime().Nanoseconds()),
	}
}

type puddleLease struct {
	res *puddle.Resource[[]byte]
}

func (l puddleLease) Bytes() []byte { return l.res.Value() }
func (l puddleLease) Release()      { l.res.Release() }
func (l puddleLease) Destroy()      { l.res.Destroy() }
