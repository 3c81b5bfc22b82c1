package objectstore

import (
	"sort"

	"go.uber.org/zap"

	"github.com/sanyexieai/sevino/internal/index"
	"github.com/sanyexieai/sevino/internal/metadata"
	"github.com/sanyexieai/sevino/internal/storage"
)

// Store is the storage core: it owns the pairing of on-disk state (data
// files, sidecars, bucket.json) with the in-memory indexes. All mutations go
// through here so that disk and indexes move in lockstep under the index
// write lock.
type Store struct {
	engine storage.Engine
	idx    *index.Index
	log    *zap.SugaredLogger
	events EventFunc
}

// New creates a Store over engine. events may be nil. Call Load before
// serving to populate the indexes from disk.
func New(engine storage.Engine, log *zap.SugaredLogger, events EventFunc) *Store {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Store{engine: engine, idx: index.New(), log: log, events: events}
}

// Load scans the data directory and (re)builds every index from the sidecar
// tree. The scan is the sole authority for consistency: unparseable sidecars
// are skipped, a missing bucket.json gets a synthesized record. Orphan data
// files (no sidecar) simply stay unindexed.
func (s *Store) Load() error {
	err := s.idx.Rebuild(func(load *index.Loader) error {
		buckets, err := s.engine.ListBucketDirs()
		if err != nil {
			return errIO("scan data dir", err)
		}
		for _, name := range buckets {
			b, err := s.engine.ReadBucketMeta(name)
			if err != nil {
				s.log.Warnw("bucket.json missing or unreadable, synthesizing", "bucket", name, "error", err)
				b = metadata.NewBucket(name)
			}
			load.AddBucket(b)

			entries, err := s.engine.ListSidecars(name, "", 0)
			if err != nil {
				return errIO("scan sidecars", err)
			}
			for _, e := range entries {
				load.SetObject(name, e.Meta.Key, e.ID)
				load.AddETag(name, e.Meta.ETag, e.ID)
			}
			s.log.Infow("bucket indexed", "bucket", name, "objects", len(entries))
		}
		return nil
	})
	if err != nil {
		return err
	}
	buckets, objects := s.idx.Counts()
	s.log.Infow("index rebuilt", "buckets", buckets, "objects", objects)
	return nil
}

// RebuildIndexes is the explicit repair operation: identical to the startup
// scan, run against the live store. Writers block for its duration.
func (s *Store) RebuildIndexes() error {
	return s.Load()
}

// CreateBucket validates the name, writes the directory skeleton and
// bucket.json, then registers the bucket. Disk is published before the
// registry entry so a crash in between leaves only a re-scannable directory.
func (s *Store) CreateBucket(name string) (*metadata.Bucket, error) {
	if err := ValidateBucketName(name); err != nil {
		return nil, err
	}
	var created *metadata.Bucket
	err := s.idx.Update(name, func(tx *index.Tx) error {
		if _, ok := tx.Bucket(); ok {
			return errBucketExists(name)
		}
		b := metadata.NewBucket(name)
		if err := s.engine.CreateBucketDir(name); err != nil {
			return errIO("create bucket", err)
		}
		if err := s.engine.WriteBucketMeta(b); err != nil {
			return errIO("write bucket meta", err)
		}
		tx.RegisterBucket(b)
		created = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emit(Event{Type: EventBucketCreated, Bucket: name})
	return created, nil
}

// ListBuckets snapshots the registry, sorted by name for stable output.
func (s *Store) ListBuckets() []*metadata.Bucket {
	buckets := s.idx.Buckets()
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Name < buckets[j].Name })
	return buckets
}

// GetBucket looks up a registered bucket.
func (s *Store) GetBucket(name string) (*metadata.Bucket, error) {
	b, ok := s.idx.GetBucket(name)
	if !ok {
		return nil, errBucketNotFound(name)
	}
	return b, nil
}

// DeleteBucket removes an empty bucket. The registry entry goes first, the
// directory second: a crash in between leaves a directory the next scan
// re-registers, never a registry entry pointing at nothing.
func (s *Store) DeleteBucket(name string) error {
	err := s.idx.Update(name, func(tx *index.Tx) error {
		if _, ok := tx.Bucket(); !ok {
			return errBucketNotFound(name)
		}
		if tx.ObjectCount() > 0 {
			return errBucketNotEmpty(name)
		}
		tx.UnregisterBucket()
		if err := s.engine.RemoveBucketDir(name); err != nil {
			return errIO("remove bucket dir", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.emit(Event{Type: EventBucketDeleted, Bucket: name})
	return nil
}

// Stats summarizes the store for the stats endpoint and metrics.
type Stats struct {
	Buckets    int   `json:"buckets"`
	Objects    int   `json:"objects"`
	TotalBytes int64 `json:"total_bytes"`
}

// Stats counts from the indexes and sums data bytes from disk.
func (s *Store) Stats() Stats {
	buckets, objects := s.idx.Counts()
	st := Stats{Buckets: buckets, Objects: objects}
	for _, b := range s.idx.Buckets() {
		n, err := s.engine.BucketBytes(b.Name)
		if err != nil {
			s.log.Debugw("bucket size walk failed", "bucket", b.Name, "error", err)
			continue
		}
		st.TotalBytes += n
	}
	return st
}

// ObjectCounts returns per-bucket object counts for the metrics collector.
func (s *Store) ObjectCounts() map[string]int {
	return s.idx.PerBucketCounts()
}
