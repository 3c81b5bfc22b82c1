package index

import (
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/sanyexieai/sevino/internal/metadata"
)

const stripeCount = 32 // power of two

// Index holds the in-memory views over on-disk state: the bucket registry,
// the per-bucket key→object-id map, and the per-bucket etag→object-ids
// multimap. All three are a rebuildable cache; sidecars own the durable
// truth.
//
// State is striped by bucket name so writers in different buckets do not
// contend. Everything for one bucket lives on one stripe, which is what lets
// Update hold a single write lock across a paired disk+index mutation.
type Index struct {
	stripes [stripeCount]*stripe
}

func New() *Index {
	ix := &Index{}
	for i := range ix.stripes {
		ix.stripes[i] = newStripe()
	}
	return ix
}

func (ix *Index) stripeFor(bucket string) *stripe {
	return ix.stripes[xxhash.Sum64String(bucket)&(stripeCount-1)]
}

// View runs fn with the bucket's stripe read-locked. fn must not perform I/O
// that depends on entries surviving past the unlock; readers resolve ids
// under the lock, drop it, then hit the disk and tolerate NotFound.
func (ix *Index) View(bucket string, fn func(tx *Tx) error) error {
	s := ix.stripeFor(bucket)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&Tx{s: s, bucket: bucket})
}

// Update runs fn with the bucket's stripe write-locked. Disk mutations that
// must be atomic with the index mutation happen inside fn: publish disk
// before the index on adds, mutate the index before removing disk state on
// deletes.
func (ix *Index) Update(bucket string, fn func(tx *Tx) error) error {
	s := ix.stripeFor(bucket)
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&Tx{s: s, bucket: bucket, write: true})
}

// Buckets snapshots the registry, in no particular order.
func (ix *Index) Buckets() []*metadata.Bucket {
	var out []*metadata.Bucket
	for _, s := range ix.stripes {
		s.mu.RLock()
		for _, b := range s.buckets {
			out = append(out, b)
		}
		s.mu.RUnlock()
	}
	return out
}

// GetBucket looks up a registered bucket.
func (ix *Index) GetBucket(name string) (*metadata.Bucket, bool) {
	s := ix.stripeFor(name)
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.buckets[name]
	return b, ok
}

// HasBucket reports whether the bucket is registered.
func (ix *Index) HasBucket(name string) bool {
	_, ok := ix.GetBucket(name)
	return ok
}

// ObjectCount returns the number of keys indexed for the bucket.
func (ix *Index) ObjectCount(bucket string) int {
	s := ix.stripeFor(bucket)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects[bucket])
}

// Counts returns registry-wide totals for stats and metrics.
func (ix *Index) Counts() (buckets int, objects int) {
	for _, s := range ix.stripes {
		s.mu.RLock()
		buckets += len(s.buckets)
		for _, keys := range s.objects {
			objects += len(keys)
		}
		s.mu.RUnlock()
	}
	return buckets, objects
}

// PerBucketCounts returns the object count per registered bucket.
func (ix *Index) PerBucketCounts() map[string]int {
	out := make(map[string]int)
	for _, s := range ix.stripes {
		s.mu.RLock()
		for name := range s.buckets {
			out[name] = len(s.objects[name])
		}
		s.mu.RUnlock()
	}
	return out
}

// Loader populates fresh index state during a rebuild.
type Loader struct {
	ix *Index
}

func (l *Loader) AddBucket(b *metadata.Bucket) {
	s := l.ix.stripeFor(b.Name)
	s.buckets[b.Name] = b
}

func (l *Loader) SetObject(bucket, key, id string) {
	s := l.ix.stripeFor(bucket)
	keys, ok := s.objects[bucket]
	if !ok {
		keys = make(map[string]string)
		s.objects[bucket] = keys
	}
	keys[key] = id
}

func (l *Loader) AddETag(bucket, etag, id string) {
	s := l.ix.stripeFor(bucket)
	etags, ok := s.etags[bucket]
	if !ok {
		etags = make(map[string][]string)
		s.etags[bucket] = etags
	}
	etags[etag] = append(etags[etag], id)
}

// Rebuild clears all state and repopulates it through fn while every stripe
// is write-locked, so no reader or writer observes the half-built index. The
// disk scan runs inside fn; if it fails the index is left empty rather than
// half-populated.
func (ix *Index) Rebuild(fn func(load *Loader) error) error {
	for _, s := range ix.stripes {
		s.mu.Lock()
	}
	defer func() {
		for _, s := range ix.stripes {
			s.mu.Unlock()
		}
	}()

	for _, s := range ix.stripes {
		s.reset()
	}
	if err := fn(&Loader{ix: ix}); err != nil {
		for _, s := range ix.stripes {
			s.reset()
		}
		return err
	}
	return nil
}

type stripe struct {
	mu      sync.RWMutex
	buckets map[string]*metadata.Bucket  // registry
	objects map[string]map[string]string // bucket → key → object-id
	etags   map[string]map[string][]string
}

func newStripe() *stripe {
	s := &stripe{}
	s.reset()
	return s
}

func (s *stripe) reset() {
	s.buckets = make(map[string]*metadata.Bucket)
	s.objects = make(map[string]map[string]string)
	s.etags = make(map[string]map[string][]string)
}
