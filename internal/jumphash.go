package internal

import "github.com/zeebo/xxh3"

// Shard maps key onto one of n buckets with xxh3 and Jump consistent hash,
// so growing n only moves about 1/n of the keys.
func Shard(key string, n int) int {
	return jumpHash(xxh3.HashString(key), n)
}

// jumpHash implements Google's "Jump" consistent hash:
// https://arxiv.org/abs/1406.2294
func jumpHash(key uint64, numBuckets int) int {
	if numBuckets <= 1 {
		return 0
	}

	var b, j int64 = -1, 0
	for j < int64(numBuckets) {
		b = j
		key = key*2862933555777941757 + 1
		j = int64(float64(b+1) * (float64(int64(1)<<31) / float64((key>>33)+1)))
	}
	return int(b)
}
