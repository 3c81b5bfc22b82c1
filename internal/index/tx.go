package index

import "github.com/sanyexieai/sevino/internal/metadata"

// Tx is a bucket-scoped view of one stripe, valid only inside the View or
// Update closure that produced it.
type Tx struct {
	s      *stripe
	bucket string
	write  bool
}

// Bucket returns the registered bucket record.
func (tx *Tx) Bucket() (*metadata.Bucket, bool) {
	b, ok := tx.s.buckets[tx.bucket]
	return b, ok
}

// RegisterBucket adds the bucket to the registry.
func (tx *Tx) RegisterBucket(b *metadata.Bucket) {
	tx.mustWrite()
	tx.s.buckets[tx.bucket] = b
}

// UnregisterBucket drops the bucket and both of its per-bucket maps.
func (tx *Tx) UnregisterBucket() {
	tx.mustWrite()
	delete(tx.s.buckets, tx.bucket)
	delete(tx.s.objects, tx.bucket)
	delete(tx.s.etags, tx.bucket)
}

// ObjectID resolves key → object-id.
func (tx *Tx) ObjectID(key string) (string, bool) {
	id, ok := tx.s.objects[tx.bucket][key]
	return id, ok
}

// ObjectCount returns the number of keys indexed for the bucket.
func (tx *Tx) ObjectCount() int {
	return len(tx.s.objects[tx.bucket])
}

// SetObject maps key → id, creating the bucket map on first use.
func (tx *Tx) SetObject(key, id string) {
	tx.mustWrite()
	keys, ok := tx.s.objects[tx.bucket]
	if !ok {
		keys = make(map[string]string)
		tx.s.objects[tx.bucket] = keys
	}
	keys[key] = id
}

// DeleteObject removes the key mapping. The bucket map is kept (possibly
// empty) while the bucket stays registered.
func (tx *Tx) DeleteObject(key string) {
	tx.mustWrite()
	delete(tx.s.objects[tx.bucket], key)
}

// IDsByETag returns the object-ids recorded for the etag, oldest first.
// The returned slice is shared; callers must not mutate it.
func (tx *Tx) IDsByETag(etag string) []string {
	return tx.s.etags[tx.bucket][etag]
}

// AddETag appends id to the etag's id list.
func (tx *Tx) AddETag(etag, id string) {
	tx.mustWrite()
	etags, ok := tx.s.etags[tx.bucket]
	if !ok {
		etags = make(map[string][]string)
		tx.s.etags[tx.bucket] = etags
	}
	etags[etag] = append(etags[etag], id)
}

// RemoveETag removes one occurrence of id from the etag's list, dropping the
// etag entry when its list empties and the bucket entry when no etags remain.
func (tx *Tx) RemoveETag(etag, id string) {
	tx.mustWrite()
	etags, ok := tx.s.etags[tx.bucket]
	if !ok {
		return
	}
	ids := etags[etag]
	for i, candidate := range ids {
		if candidate == id {
			ids = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(etags, etag)
	} else {
		etags[etag] = ids
	}
	if len(etags) == 0 {
		delete(tx.s.etags, tx.bucket)
	}
}

func (tx *Tx) mustWrite() {
	if !tx.write {
		panic("index: mutation inside View")
	}
}
