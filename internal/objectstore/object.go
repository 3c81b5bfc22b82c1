package objectstore

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/sanyexieai/sevino/internal/index"
	"github.com/sanyexieai/sevino/internal/metadata"
)

// PutOptions carries the optional inputs of a put.
type PutOptions struct {
	ContentType  string
	UserMetadata map[string]string
	Dedup        DedupPolicy
	// EmitVersionID stamps a fresh version id on the sidecar. Reserved: not
	// exposed over HTTP.
	EmitVersionID bool
}

type putGuard struct {
	ifNotExists bool
	expectETag  *string
}

// PutObject stores data under (bucket, key) subject to the dedup policy.
// Identical bytes under the same key refresh last_modified and user metadata
// without rewriting data.
func (s *Store) PutObject(bucket, key string, data []byte, opts PutOptions) (metadata.Object, error) {
	return s.put(bucket, key, data, opts, putGuard{})
}

// PutObjectIfNotExists fails with AlreadyExists where PutObject would take
// the same-key idempotency path.
func (s *Store) PutObjectIfNotExists(bucket, key string, data []byte, opts PutOptions) (metadata.Object, error) {
	return s.put(bucket, key, data, opts, putGuard{ifNotExists: true})
}

// PutObjectIfETagMismatch fails with PreconditionFailed when the key's
// current etag equals expected. The inversion is the observed behavior of
// the wire protocol and is kept as such.
func (s *Store) PutObjectIfETagMismatch(bucket, key string, data []byte, expected string, opts PutOptions) (metadata.Object, error) {
	return s.put(bucket, key, data, opts, putGuard{expectETag: &expected})
}

func (s *Store) put(bucket, key string, data []byte, opts PutOptions, guard putGuard) (metadata.Object, error) {
	var zero metadata.Object
	if err := ValidateObjectKey(key); err != nil {
		return zero, err
	}

	etag := ETagFor(data)
	contentType := ResolveContentType(key, opts.ContentType)
	userMeta := opts.UserMetadata
	if userMeta == nil {
		userMeta = map[string]string{}
	}

	var (
		result *metadata.ObjectMeta
		event  Event
	)
	err := s.idx.Update(bucket, func(tx *index.Tx) error {
		if _, ok := tx.Bucket(); !ok {
			return errBucketNotFound(bucket)
		}

		// Current sidecar for this key, if the index knows one. A stale
		// index entry whose sidecar is gone counts as absent; the write
		// below re-publishes disk state either way.
		var existing *metadata.ObjectMeta
		id := ObjectID(bucket, key)
		if indexed, ok := tx.ObjectID(key); ok {
			m, err := s.engine.ReadSidecar(bucket, indexed)
			if err != nil {
				s.log.Warnw("index entry without sidecar", "bucket", bucket, "key", key, "error", err)
			} else {
				existing = m
			}
		}

		if guard.expectETag != nil && existing != nil && existing.ETag == *guard.expectETag {
			return errPreconditionFailed(*guard.expectETag)
		}

		// Same-key idempotency: same bytes never rewrite the data file.
		if existing != nil && existing.ETag == etag {
			if guard.ifNotExists {
				return errObjectExists(key, bucket)
			}
			updated := existing.Clone()
			updated.LastModified = time.Now().UTC()
			updated.UserMetadata = userMeta
			if err := s.engine.WriteSidecar(bucket, id, updated); err != nil {
				return errIO("write sidecar", err)
			}
			result = updated
			event = Event{Type: EventObjectUpdated, Bucket: bucket, Key: key, ObjectID: id, ETag: etag, Size: updated.Size}
			return nil
		}

		switch opts.Dedup {
		case DedupReject:
			if dupKey, found := s.findDuplicateKey(tx, bucket, etag, key); found {
				return errDuplicateContent(etag, dupKey)
			}
		case DedupReference:
			holderID, holder := s.selectHolder(tx, bucket, etag, key)
			if holder != nil {
				meta, err := s.writeReference(tx, bucket, key, id, etag, contentType, userMeta, int64(len(data)), existing, holderID, holder, opts)
				if err != nil {
					return err
				}
				result = meta
				event = Event{Type: EventObjectCreated, Bucket: bucket, Key: key, ObjectID: id, ETag: etag, Size: meta.Size}
				return nil
			}
			// no duplicate content in the bucket: plain standalone write
		}

		meta, err := s.writeStandalone(tx, bucket, key, id, etag, contentType, userMeta, data, existing, opts)
		if err != nil {
			return err
		}
		result = meta
		event = Event{Type: EventObjectCreated, Bucket: bucket, Key: key, ObjectID: id, ETag: etag, Size: meta.Size}
		return nil
	})
	if err != nil {
		return zero, err
	}
	s.emit(event)
	return result.Object(), nil
}

// findDuplicateKey reports the first key (etag-list order, oldest first)
// other than self that holds content with this etag.
func (s *Store) findDuplicateKey(tx *index.Tx, bucket, etag, self string) (string, bool) {
	for _, id := range tx.IDsByETag(etag) {
		m, err := s.engine.ReadSidecar(bucket, id)
		if err != nil {
			continue // stale index entry, tolerated
		}
		if m.Key != self {
			return m.Key, true
		}
	}
	return "", false
}

// selectHolder picks the data holder for a reference put: among the bucket's
// same-etag sidecars (excluding self), resolve each candidate to its holder
// (a referencing candidate counts via its data_holder_id, so holders never
// chain) and take the holder with the highest reference count, first seen
// winning ties.
func (s *Store) selectHolder(tx *index.Tx, bucket, etag, self string) (string, *metadata.ObjectMeta) {
	var (
		bestID   string
		bestMeta *metadata.ObjectMeta
	)
	for _, id := range tx.IDsByETag(etag) {
		cand, err := s.engine.ReadSidecar(bucket, id)
		if err != nil || cand.Key == self {
			continue
		}
		holderID, holder := id, cand
		if cand.IsReference() {
			holderID = *cand.DataHolderID
			holder, err = s.engine.ReadSidecar(bucket, holderID)
			if err != nil {
				s.log.Warnw("reference with missing holder skipped", "bucket", bucket, "key", cand.Key, "holder", holderID)
				continue
			}
		}
		if !s.engine.DataExists(bucket, holderID) {
			// pointing a new reference at it would only dangle
			s.log.Warnw("holder with missing data skipped", "bucket", bucket, "holder", holderID)
			continue
		}
		if bestMeta == nil || holder.ReferenceCount > bestMeta.ReferenceCount {
			bestID, bestMeta = holderID, holder
		}
	}
	return bestID, bestMeta
}

// writeStandalone is the write procedure for Allow and for Reference puts
// that found no duplicate: data file first, sidecar second, indexes last.
func (s *Store) writeStandalone(tx *index.Tx, bucket, key, id, etag, contentType string, userMeta map[string]string, data []byte, existing *metadata.ObjectMeta, opts PutOptions) (*metadata.ObjectMeta, error) {
	// Live references pin the holder's bytes; overwriting them in place would
	// change what every reference serves. Same guard as delete.
	if existing != nil && !existing.IsReference() && existing.ReferenceCount > 0 {
		return nil, errHasReferences(existing.ReferenceCount)
	}

	now := time.Now().UTC()
	meta := &metadata.ObjectMeta{
		Key:          key,
		BucketName:   bucket,
		Size:         int64(len(data)),
		ContentType:  contentType,
		ETag:         etag,
		CreatedAt:    now,
		LastModified: now,
		UserMetadata: userMeta,
	}
	if opts.EmitVersionID {
		v := uuid.NewString()
		meta.VersionID = &v
	}

	if err := s.engine.WriteData(bucket, id, data); err != nil {
		return nil, errIO("write data", err)
	}
	if err := s.engine.WriteSidecar(bucket, id, meta); err != nil {
		// best-effort cleanup; a leftover orphan is collapsed by the next
		// index rebuild
		s.engine.RemoveData(bucket, id)
		return nil, errIO("write sidecar", err)
	}

	if existing != nil {
		tx.RemoveETag(existing.ETag, id)
		if existing.IsReference() {
			s.decrementHolder(bucket, *existing.DataHolderID)
		}
	}
	tx.SetObject(key, id)
	tx.AddETag(etag, id)
	return meta, nil
}

// writeReference points (bucket, key) at holderID instead of writing data:
// bump the holder's count, write the pointing sidecar, then index it.
func (s *Store) writeReference(tx *index.Tx, bucket, key, id, etag, contentType string, userMeta map[string]string, size int64, existing *metadata.ObjectMeta, holderID string, holder *metadata.ObjectMeta, opts PutOptions) (*metadata.ObjectMeta, error) {
	// Overwriting a holder that still has references with a reference
	// sidecar would chain holders; refuse like delete does.
	if existing != nil && !existing.IsReference() && existing.ReferenceCount > 0 {
		return nil, errHasReferences(existing.ReferenceCount)
	}

	bumped := holder.Clone()
	bumped.ReferenceCount++
	if err := s.engine.WriteSidecar(bucket, holderID, bumped); err != nil {
		return nil, errIO("update holder", err)
	}

	now := time.Now().UTC()
	meta := &metadata.ObjectMeta{
		Key:          key,
		BucketName:   bucket,
		Size:         size,
		ContentType:  contentType,
		ETag:         etag,
		CreatedAt:    now,
		LastModified: now,
		UserMetadata: userMeta,
		DataHolderID: &holderID,
	}
	if opts.EmitVersionID {
		v := uuid.NewString()
		meta.VersionID = &v
	}
	if err := s.engine.WriteSidecar(bucket, id, meta); err != nil {
		// roll the holder bump back so the count stays an upper bound of
		// actual references
		s.decrementHolder(bucket, holderID)
		return nil, errIO("write sidecar", err)
	}

	if existing != nil {
		tx.RemoveETag(existing.ETag, id)
		if existing.IsReference() {
			s.decrementHolder(bucket, *existing.DataHolderID)
		} else if existing.ReferenceCount == 0 {
			// the key owned standalone data; nothing points at it anymore
			s.engine.RemoveData(bucket, id)
		}
	}
	tx.SetObject(key, id)
	tx.AddETag(etag, id)
	return meta, nil
}

// decrementHolder is the read-modify-write on a holder's sidecar. Callers
// hold the bucket's index write lock, which is what makes concurrent count
// updates safe. Best-effort: a missing holder is logged, not fatal.
func (s *Store) decrementHolder(bucket, holderID string) {
	holder, err := s.engine.ReadSidecar(bucket, holderID)
	if err != nil {
		s.log.Warnw("holder sidecar missing on decrement", "bucket", bucket, "holder", holderID, "error", err)
		return
	}
	if holder.ReferenceCount == 0 {
		return
	}
	updated := holder.Clone()
	updated.ReferenceCount--
	if err := s.engine.WriteSidecar(bucket, holderID, updated); err != nil {
		s.log.Errorw("holder refcount persist failed", "bucket", bucket, "holder", holderID, "error", err)
	}
}

// GetObject reads the object's bytes and its own sidecar, following the
// holder indirection for references. The index is consulted under a read
// lock that is dropped before any disk I/O; a concurrent delete surfaces as
// NotFound from the disk read.
func (s *Store) GetObject(bucket, key string) ([]byte, *metadata.ObjectMeta, error) {
	id, err := s.resolveID(bucket, key)
	if err != nil {
		return nil, nil, err
	}
	meta, err := s.engine.ReadSidecar(bucket, id)
	if err != nil {
		return nil, nil, errMetadataNotFound()
	}
	dataID := id
	if meta.IsReference() {
		holderID := *meta.DataHolderID
		if _, err := s.engine.ReadSidecar(bucket, holderID); err != nil {
			return nil, nil, errDanglingReference(holderID)
		}
		dataID = holderID
	}
	data, err := s.engine.ReadData(bucket, dataID)
	if err != nil {
		return nil, nil, errDataMissing()
	}
	return data, meta, nil
}

// GetObjectMetadata returns the object's own sidecar (never the holder's).
func (s *Store) GetObjectMetadata(bucket, key string) (*metadata.ObjectMeta, error) {
	id, err := s.resolveID(bucket, key)
	if err != nil {
		return nil, err
	}
	meta, err := s.engine.ReadSidecar(bucket, id)
	if err != nil {
		return nil, errMetadataNotFound()
	}
	return meta, nil
}

func (s *Store) resolveID(bucket, key string) (string, error) {
	var id string
	err := s.idx.View(bucket, func(tx *index.Tx) error {
		if _, ok := tx.Bucket(); !ok {
			return errBucketNotFound(bucket)
		}
		oid, ok := tx.ObjectID(key)
		if !ok {
			return errObjectNotFound(key, bucket)
		}
		id = oid
		return nil
	})
	return id, err
}

// DeleteObject removes (bucket, key). Deleting a reference decrements its
// holder; deleting a holder fails while references still point at it.
func (s *Store) DeleteObject(bucket, key string) error {
	return s.deleteObject(bucket, key, false)
}

// ForceDeleteObject deletes a holder even while references point at it,
// leaving them dangling. Internal-only: not routed over HTTP.
func (s *Store) ForceDeleteObject(bucket, key string) error {
	return s.deleteObject(bucket, key, true)
}

func (s *Store) deleteObject(bucket, key string, force bool) error {
	var event Event
	err := s.idx.Update(bucket, func(tx *index.Tx) error {
		if _, ok := tx.Bucket(); !ok {
			return errBucketNotFound(bucket)
		}
		id, ok := tx.ObjectID(key)
		if !ok {
			return errObjectNotFound(key, bucket)
		}
		meta, err := s.engine.ReadSidecar(bucket, id)
		if err != nil {
			return errMetadataNotFound()
		}

		if meta.IsReference() {
			// index first, then disk: an index miss never dangles
			tx.DeleteObject(key)
			tx.RemoveETag(meta.ETag, id)
			if err := s.engine.RemoveSidecar(bucket, id); err != nil {
				return errIO("remove sidecar", err)
			}
			s.decrementHolder(bucket, *meta.DataHolderID)
		} else {
			if !force && meta.ReferenceCount > 0 {
				return errHasReferences(meta.ReferenceCount)
			}
			tx.DeleteObject(key)
			tx.RemoveETag(meta.ETag, id)
			if err := s.engine.RemoveData(bucket, id); err != nil {
				return errIO("remove data", err)
			}
			if err := s.engine.RemoveSidecar(bucket, id); err != nil {
				return errIO("remove sidecar", err)
			}
		}
		event = Event{Type: EventObjectDeleted, Bucket: bucket, Key: key, ObjectID: id, ETag: meta.ETag, Size: meta.Size}
		return nil
	})
	if err != nil {
		return err
	}
	s.emit(event)
	return nil
}

// UpdateObjectMetadata overwrites the provided fields and bumps
// last_modified. customETag is accepted for schema compatibility but never
// written; the stored etag always reflects the data bytes.
func (s *Store) UpdateObjectMetadata(bucket, key string, contentType *string, userMeta map[string]string, customETag *string) (metadata.Object, error) {
	_ = customETag

	var zero metadata.Object
	var result *metadata.ObjectMeta
	err := s.idx.Update(bucket, func(tx *index.Tx) error {
		if _, ok := tx.Bucket(); !ok {
			return errBucketNotFound(bucket)
		}
		id, ok := tx.ObjectID(key)
		if !ok {
			return errObjectNotFound(key, bucket)
		}
		meta, err := s.engine.ReadSidecar(bucket, id)
		if err != nil {
			return errMetadataNotFound()
		}
		updated := meta.Clone()
		if contentType != nil {
			updated.ContentType = *contentType
		}
		if userMeta != nil {
			updated.UserMetadata = userMeta
		}
		updated.LastModified = time.Now().UTC()
		if err := s.engine.WriteSidecar(bucket, id, updated); err != nil {
			return errIO("write sidecar", err)
		}
		result = updated
		return nil
	})
	if err != nil {
		return zero, err
	}
	s.emit(Event{Type: EventObjectUpdated, Bucket: bucket, Key: key, ObjectID: ObjectID(bucket, key), ETag: result.ETag, Size: result.Size})
	return result.Object(), nil
}

// ListObjectVersions returns every sidecar in the bucket whose key matches,
// newest created_at first. With deterministic object-ids there is at most
// one match unless versioned sidecars are introduced.
func (s *Store) ListObjectVersions(bucket, key string) ([]*metadata.ObjectMeta, error) {
	if err := s.requireBucket(bucket); err != nil {
		return nil, err
	}
	entries, err := s.engine.ListSidecars(bucket, "", 0)
	if err != nil {
		return nil, errIO("scan sidecars", err)
	}
	versions := []*metadata.ObjectMeta{}
	for _, e := range entries {
		if e.Meta.Key == key {
			versions = append(versions, e.Meta)
		}
	}
	sort.Slice(versions, func(i, j int) bool {
		return versions[i].CreatedAt.After(versions[j].CreatedAt)
	})
	return versions, nil
}

func (s *Store) requireBucket(bucket string) error {
	if !s.idx.HasBucket(bucket) {
		return errBucketNotFound(bucket)
	}
	return nil
}
