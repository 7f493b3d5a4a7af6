package buffet

import (
	"errors"

	"github.com/pior/wireloop/internal"
)

// ShardedPool spreads leases over several pools. Each key (typically a peer
// host, without the port) always lands on the same shard, so one noisy host
// can drain at most one shard.
type ShardedPool struct {
	shards []Pool
}

// NewShardedPool builds n shards with newPool.
func NewShardedPool(n int, newPool func() (Pool, error)) (*ShardedPool, error) {
	if n <= 0 {
		return nil, errors.New("buffet: sharded pool needs at least one shard")
	}

	s := &ShardedPool{shards: make([]Pool, 0, n)}
	for i := 0; i < n; i++ {
		p, err := newPool()
		if err != nil {
			s.Close()
			return nil, err
		}
		s.shards = append(s.shards, p)
	}
	return s, nil
}

// For returns the shard owning key.
func (s *ShardedPool) For(key string) Pool {
	return s.shards[internal.Shard(key, len(s.shards))]
}

// NumShards returns the number of shards.
func (s *ShardedPool) NumShards() int { return len(s.shards) }

// Stats sums the statistics of every shard.
func (s *ShardedPool) Stats() PoolStats {
	var total PoolStats
	for _, p := range s.shards {
		total = total.Add(p.Stats())
	}
	return total
}

// Close closes every shard.
func (s *ShardedPool) Close() {
	for _, p := range s.shards {
		p.Close()
	}
}
