package feature

import (
	"hash/fnv"
	"sync/atomic"
)

// numBuckets is the fixed shard count for both Map and ProductMap. Each
// bucket is guarded by its own mutex so that inserts under distinct buckets
// never contend (SPEC_FULL.md §4.1).
const numBuckets = 64

// bucketFor hashes key into [0, n) with FNV-1a. Shared by Map and
// ProductMap rather than factored into a generic container: the two key
// types differ enough in how their canonical byte form is derived (see
// JProduct.Key) that a thin shared hash-to-bucket helper reads more plainly
// than a parameterized bimap type (SPEC_FULL.md §9).
func bucketFor(key string, n int) int {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum64() % uint64(n))
}

// Counter is the monotone 32-bit J allocator. FeatureMap and ProductMap
// must allocate from the SAME Counter: an atomic J's value must always be
// strictly less than any product J that contains it (SPEC_FULL.md §3/§4.3),
// which only holds if both bimaps draw from one shared sequence rather than
// each counting independently from zero.
type Counter struct {
	next atomic.Uint32
}

// NewCounter returns a Counter starting at J 0.
func NewCounter() *Counter {
	return &Counter{}
}

func (c *Counter) allocate() (J, error) {
	v := c.next.Add(1) - 1
	if J(v) > MaxJ {
		return InvalidJ, &OverflowError{Requested: J(v)}
	}
	return J(v), nil
}

func (c *Counter) size() uint32 {
	return c.next.Load()
}

func (c *Counter) reset(n uint32) {
	c.next.Store(n)
}
