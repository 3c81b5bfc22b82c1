// Package journal keeps a capped, timestamp-ordered record of store
// mutations in a bbolt file. It backs the activity and stats endpoints and
// survives restarts independently of the in-memory indexes.
package journal

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

var entriesBucket = []byte("journal")

// Entry is one recorded mutation.
type Entry struct {
	Time     int64  `json:"time"` // unix nanos
	Op       string `json:"op"`
	Bucket   string `json:"bucket"`
	Key      string `json:"key,omitempty"`
	ObjectID string `json:"object_id,omitempty"`
	ETag     string `json:"etag,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

type Journal struct {
	db  *bolt.DB
	max int

	mu    sync.Mutex
	count int
}

// Open creates or opens the journal file. maxEntries caps the retained
// history; 0 keeps everything.
func Open(path string, maxEntries int) (*Journal, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	j := &Journal{db: db, max: maxEntries}
	err = db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(entriesBucket)
		if err != nil {
			return err
		}
		j.count = b.Stats().KeyN
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init journal: %w", err)
	}
	return j, nil
}

func (j *Journal) Close() error { return j.db.Close() }

func entryKey(nanos int64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(nanos))
	return key
}

// Record appends the entry keyed by its timestamp, nudging the key forward
// on a nanosecond collision, and drops the oldest entries past the cap.
func (j *Journal) Record(e Entry) error {
	if e.Time == 0 {
		e.Time = time.Now().UnixNano()
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	deleted := 0
	err := j.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(entriesBucket)
		for b.Get(entryKey(e.Time)) != nil {
			e.Time++
		}
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		if err := b.Put(entryKey(e.Time), data); err != nil {
			return err
		}
		if j.max <= 0 {
			return nil
		}
		for n := j.count + 1 - j.max; n > 0; n-- {
			k, _ := b.Cursor().First()
			if k == nil {
				break
			}
			if err := b.Delete(k); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	if err != nil {
		return err
	}
	j.count = j.count + 1 - deleted
	return nil
}

// Recent returns entries newest first. limit caps the result; 0 means all.
func (j *Journal) Recent(limit int) ([]Entry, error) {
	var entries []Entry
	err := j.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(entriesBucket).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				continue
			}
			entries = append(entries, e)
			if limit > 0 && len(entries) >= limit {
				break
			}
		}
		return nil
	})
	return entries, err
}

// Count reports how many entries are retained.
func (j *Journal) Count() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.count
}
