package feature

import "sync"

// featureEntry is the heap-allocated record owned by exactly one bucket.
type featureEntry struct {
	name string
	j    J
}

type featureBucket struct {
	mu     sync.Mutex
	byName map[string]*featureEntry
}

// Map is the concurrent bimap from atomic feature name to J (FeatureMap in
// SPEC_FULL.md §4.1). The zero value is not usable; construct with NewMap or
// NewMapWithCounter. counter must be the SAME Counter given to the
// ProductMap sharing this feature universe, so atomic J's and product J's
// come from one dense sequence (see Counter).
type Map struct {
	buckets []featureBucket
	counter *Counter

	// syncMu guards j2key; it is also taken (write-locked) during
	// Renumber since Renumber touches the same dense view.
	syncMu sync.RWMutex
	j2key  []*featureEntry
}

// NewMap constructs an empty FeatureMap with its own private counter. Use
// NewMapWithCounter instead when pairing with a ProductMap over the same
// feature universe.
func NewMap() *Map {
	return NewMapWithCounter(NewCounter())
}

// NewMapWithCounter constructs an empty FeatureMap allocating J's from c.
func NewMapWithCounter(c *Counter) *Map {
	m := &Map{buckets: make([]featureBucket, numBuckets), counter: c}
	for i := range m.buckets {
		m.buckets[i].byName = make(map[string]*featureEntry)
	}
	return m
}

func (m *Map) bucket(name string) *featureBucket {
	return &m.buckets[bucketFor(name, len(m.buckets))]
}

// Intern inserts name if absent and returns its J. Concurrent interns of
// the same name return the same J.
func (m *Map) Intern(name string) (J, error) {
	b := m.bucket(name)
	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok := b.byName[name]; ok {
		return e.j, nil
	}
	j, err := m.counter.allocate()
	if err != nil {
		return InvalidJ, err
	}
	b.byName[name] = &featureEntry{name: name, j: j}
	return j, nil
}

// Lookup returns the J for name, if interned.
func (m *Map) Lookup(name string) (J, bool) {
	b := m.bucket(name)
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.byName[name]
	if !ok {
		return InvalidJ, false
	}
	return e.j, true
}

// Contains reports whether name has been interned.
func (m *Map) Contains(name string) bool {
	_, ok := m.Lookup(name)
	return ok
}

// Size returns the size of the J space drawn from m's Counter. When the
// Counter is shared with a ProductMap (NewUniverse), this counts product
// J's as well as atomic ones.
func (m *Map) Size() int {
	return int(m.counter.size())
}

// SyncJToKey materialises the dense J-indexed view required before JToKey
// may be called. No inserts may race with SyncJToKey.
func (m *Map) SyncJToKey() {
	m.syncMu.Lock()
	defer m.syncMu.Unlock()
	size := int(m.counter.size())
	j2key := make([]*featureEntry, size)
	for i := range m.buckets {
		b := &m.buckets[i]
		b.mu.Lock()
		for _, e := range b.byName {
			if int(e.j) < size {
				j2key[e.j] = e
			}
		}
		b.mu.Unlock()
	}
	m.j2key = j2key
}

// JToKey returns the feature name for j. Valid only after SyncJToKey; no
// reads may race with Renumber.
func (m *Map) JToKey(j J) (string, bool) {
	m.syncMu.RLock()
	defer m.syncMu.RUnlock()
	if int(j) >= len(m.j2key) || m.j2key[j] == nil {
		return "", false
	}
	return m.j2key[j].name, true
}

// Renumber applies r, rebuilding the bucket table and invalidating the
// J->key view (callers must SyncJToKey again before the next JToKey). No
// concurrent readers are permitted during Renumber.
func (m *Map) Renumber(r Renumbering) {
	m.syncMu.Lock()
	defer m.syncMu.Unlock()

	newBuckets := make([]featureBucket, numBuckets)
	for i := range newBuckets {
		newBuckets[i].byName = make(map[string]*featureEntry)
	}
	for i := range m.buckets {
		b := &m.buckets[i]
		b.mu.Lock()
		for name, e := range b.byName {
			nj, ok := r.Apply(e.j)
			if !ok {
				continue
			}
			nb := &newBuckets[bucketFor(name, numBuckets)]
			nb.byName[name] = &featureEntry{name: name, j: nj}
		}
		b.mu.Unlock()
	}
	m.buckets = newBuckets
	m.counter.reset(uint32(r.NextJ))
	m.j2key = nil
}
