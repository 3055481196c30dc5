package feature

import (
	"encoding/binary"
	"sort"
	"sync"
)

// JProduct is a conjunction of atomic J's, stored as a strictly sorted,
// duplicate-free slice. The empty JProduct is the bias term
// (SPEC_FULL.md §3).
type JProduct []J

// Key returns a canonical byte-string encoding of p, used as the bucket map
// key. Two JProducts compare equal as keys iff they contain the same J's in
// the same order.
func (p JProduct) Key() string {
	buf := make([]byte, 4*len(p))
	for i, j := range p {
		binary.BigEndian.PutUint32(buf[i*4:], uint32(j))
	}
	return string(buf)
}

// Contains reports whether j appears in p. p must be sorted.
func (p JProduct) Contains(j J) bool {
	idx := sort.Search(len(p), func(i int) bool { return p[i] >= j })
	return idx < len(p) && p[idx] == j
}

// Union returns the sorted, duplicate-free union of p and q. Both must
// already be sorted.
func Union(p, q JProduct) JProduct {
	out := make(JProduct, 0, len(p)+len(q))
	i, k := 0, 0
	for i < len(p) && k < len(q) {
		switch {
		case p[i] < q[k]:
			out = append(out, p[i])
			i++
		case p[i] > q[k]:
			out = append(out, q[k])
			k++
		default:
			out = append(out, p[i])
			i++
			k++
		}
	}
	out = append(out, p[i:]...)
	out = append(out, q[k:]...)
	return out
}

type productEntry struct {
	product JProduct
	j       J
}

type productBucket struct {
	mu    sync.Mutex
	byKey map[string]*productEntry
}

// ProductMap is the concurrent bimap from JProduct to J (SPEC_FULL.md
// §4.1). Atomic J's referenced inside a stored JProduct are entries owned
// by a separate Map; ProductMap does not validate them. counter must be the
// SAME Counter given to that Map so product J's are always strictly
// greater than the atomic J's they contain (SPEC_FULL.md §4.3's dependees
// DAG invariant depends on this).
type ProductMap struct {
	buckets []productBucket
	counter *Counter

	syncMu sync.RWMutex
	j2key  []*productEntry
}

// NewProductMap constructs an empty ProductMap with its own private
// counter. Use NewProductMapWithCounter instead when pairing with a Map
// over the same feature universe.
func NewProductMap() *ProductMap {
	return NewProductMapWithCounter(NewCounter())
}

// NewProductMapWithCounter constructs an empty ProductMap allocating J's
// from c.
func NewProductMapWithCounter(c *Counter) *ProductMap {
	pm := &ProductMap{buckets: make([]productBucket, numBuckets), counter: c}
	for i := range pm.buckets {
		pm.buckets[i].byKey = make(map[string]*productEntry)
	}
	return pm
}

func (pm *ProductMap) bucket(key string) *productBucket {
	return &pm.buckets[bucketFor(key, len(pm.buckets))]
}

// Intern inserts p if absent and returns its J.
func (pm *ProductMap) Intern(p JProduct) (J, error) {
	key := p.Key()
	b := pm.bucket(key)
	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok := b.byKey[key]; ok {
		return e.j, nil
	}
	j, err := pm.counter.allocate()
	if err != nil {
		return InvalidJ, err
	}
	b.byKey[key] = &productEntry{product: p, j: j}
	return j, nil
}

// Lookup returns the J for p, if interned.
func (pm *ProductMap) Lookup(p JProduct) (J, bool) {
	key := p.Key()
	b := pm.bucket(key)
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.byKey[key]
	if !ok {
		return InvalidJ, false
	}
	return e.j, true
}

// Contains reports whether p has been interned.
func (pm *ProductMap) Contains(p JProduct) bool {
	_, ok := pm.Lookup(p)
	return ok
}

// Size returns the size of the J space drawn from pm's Counter. When the
// Counter is shared with a Map (NewUniverse), this counts atomic J's as
// well as product ones.
func (pm *ProductMap) Size() int {
	return int(pm.counter.size())
}

// SyncJToKey materialises the dense J-indexed view required before JToKey
// may be called.
func (pm *ProductMap) SyncJToKey() {
	pm.syncMu.Lock()
	defer pm.syncMu.Unlock()
	size := int(pm.counter.size())
	j2key := make([]*productEntry, size)
	for i := range pm.buckets {
		b := &pm.buckets[i]
		b.mu.Lock()
		for _, e := range b.byKey {
			if int(e.j) < size {
				j2key[e.j] = e
			}
		}
		b.mu.Unlock()
	}
	pm.j2key = j2key
}

// JToKey returns the JProduct for j. Valid only after SyncJToKey.
func (pm *ProductMap) JToKey(j J) (JProduct, bool) {
	pm.syncMu.RLock()
	defer pm.syncMu.RUnlock()
	if int(j) >= len(pm.j2key) || pm.j2key[j] == nil {
		return nil, false
	}
	return pm.j2key[j].product, true
}

// Renumber applies r to both the product J's themselves and to the atomic
// J's referenced inside each stored JProduct. A product whose atomic factor
// was removed without the product itself being removed would violate the
// dependees DAG invariant (SPEC_FULL.md §4.3); callers are expected never to
// construct such a Renumbering, but Renumber drops such entries defensively
// rather than leaving a dangling reference.
func (pm *ProductMap) Renumber(r Renumbering) {
	pm.syncMu.Lock()
	defer pm.syncMu.Unlock()

	newBuckets := make([]productBucket, numBuckets)
	for i := range newBuckets {
		newBuckets[i].byKey = make(map[string]*productEntry)
	}
	for i := range pm.buckets {
		b := &pm.buckets[i]
		b.mu.Lock()
		for _, e := range b.byKey {
			nj, ok := r.Apply(e.j)
			if !ok {
				continue
			}
			remapped := make(JProduct, len(e.product))
			dropped := false
			for i2, atomJ := range e.product {
				na, ok2 := r.Apply(atomJ)
				if !ok2 {
					dropped = true
					break
				}
				remapped[i2] = na
			}
			if dropped {
				continue
			}
			newKey := remapped.Key()
			nb := &newBuckets[bucketFor(newKey, numBuckets)]
			nb.byKey[newKey] = &productEntry{product: remapped, j: nj}
		}
		b.mu.Unlock()
	}
	pm.buckets = newBuckets
	pm.counter.reset(uint32(r.NextJ))
	pm.j2key = nil
}
