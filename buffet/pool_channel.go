package buffet

import (
	"context"
	"sync"

	"github.com/pior/wireloop/internal/coarsetime"
)

// NewChannelPool creates a channel-based pool of chunkSize-byte receive
// chunks holding at most maxSize chunks.
func NewChannelPool(chunkSize int, maxSize int32) Pool {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	p := &channelPool{
		chunkSize: chunkSize,
		maxSize:   maxSize,
		chunks:    make(chan *channelLease, maxSize),
	}
	p.drained = sync.NewCond(&p.mu)
	return p
}

// channelLease implements Lease for channelPool.
type channelLease struct {
	chunk []byte
	pool  *channelPool
}

func (l *channelLease) Bytes() []byte { return l.chunk }

func (l *channelLease) Release() { l.pool.put(l) }

func (l *channelLease) Destroy() {
	l.pool.stats.recordDeactivate()
	l.pool.removeChunk()
}

// channelPool keeps idle chunks in a buffered channel and allocates new ones
// while under maxSize.
type channelPool struct {
	chunkSize int
	maxSize   int32

	mu      sync.Mutex
	drained *sync.Cond // signaled when size drops while closed
	chunks  chan *channelLease
	size    int32
	closed  bool

	stats poolStatsCollector
}

func (p *channelPool) Acquire(ctx context.Context) (Lease, error) {
	p.stats.recordAcquire()

	// Idle chunk first
	select {
	case l, ok := <-p.chunks:
		if !ok {
			p.stats.recordAcquireError()
			return nil, ErrPoolClosed
		}
		p.stats.recordAcquireFromIdle()
		return l, nil
	default:
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.stats.recordAcquireError()
		return nil, ErrPoolClosed
	}

	if p.size < p.maxSize {
		p.size++
		p.mu.Unlock()

		p.stats.recordCreate()
		p.stats.recordActivate()
		return &channelLease{chunk: make([]byte, p.chunkSize), pool: p}, nil
	}
	p.mu.Unlock()

	// Pool is full, wait for a chunk to be released
	waitStart := coarsetime.Now()
	select {
	case l, ok := <-p.chunks:
		if !ok {
			p.stats.recordAcquireError()
			return nil, ErrPoolClosed
		}
		p.stats.recordAcquireWait(coarsetime.Since(waitStart))
		p.stats.recordAcquireFromIdle()
		return l, nil
	case <-ctx.Done():
		p.stats.recordAcquireError()
		return nil, ctx.Err()
	}
}

func (p *channelPool) put(l *channelLease) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		p.size--
		p.stats.recordDeactivate()
		p.stats.recordDestroy()
		p.drained.Broadcast()
		return
	}

	select {
	case p.chunks <- l:
		p.stats.recordRelease()
	default:
		// Channel full, drop this chunk
		p.size--
		p.stats.recordDeactivate()
		p.stats.recordDestroy()
	}
}

func (p *channelPool) removeChunk() {
	p.mu.Lock()
	p.size--
	if p.closed {
		p.drained.Broadcast()
	}
	p.mu.Unlock()
	p.stats.recordDestroy()
}

func (p *channelPool) ChunkSize() int {
	return p.chunkSize
}

// Close drops the idle chunks and blocks until every leased chunk has been
// released or destroyed.
func (p *channelPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true

	close(p.chunks)
	for range p.chunks {
		p.size--
		p.stats.recordDropIdle()
	}

	// Wait for leased chunks to come back.
	for p.size > 0 {
		p.drained.Wait()
	}
}

// Stats returns a snapshot of pool statistics.
func (p *channelPool) Stats() PoolStats {
	return p.stats.snapshot()
}
