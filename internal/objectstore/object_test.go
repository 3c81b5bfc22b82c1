package objectstore

import (
	"fmt"
	"testing"
)

const helloETag = `"8b1a9953c4611296a827abf8c47804d7"`

func TestPutGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	mustCreateBucket(t, s, "b")

	obj := mustPut(t, s, "b", "hello.txt", "Hello", PutOptions{})
	if obj.ETag != helloETag {
		t.Errorf("ETag = %q, want %q", obj.ETag, helloETag)
	}
	if obj.Size != 5 {
		t.Errorf("Size = %d, want 5", obj.Size)
	}
	if obj.ContentType != "text/plain" {
		t.Errorf("ContentType = %q, want text/plain", obj.ContentType)
	}

	data, meta, err := s.GetObject("b", "hello.txt")
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}
	if string(data) != "Hello" {
		t.Errorf("data = %q, want Hello", data)
	}
	if meta.ETag != helloETag {
		t.Errorf("meta ETag = %q", meta.ETag)
	}
	if meta.IsReference() {
		t.Error("plain put produced a reference")
	}
}

func TestPutSameBytesRefreshesMetadataOnly(t *testing.T) {
	s := newTestStore(t)
	mustCreateBucket(t, s, "b")

	first := mustPut(t, s, "b", "k.txt", "Hello", PutOptions{UserMetadata: map[string]string{"v": "1"}})
	second := mustPut(t, s, "b", "k.txt", "Hello", PutOptions{UserMetadata: map[string]string{"v": "2"}})

	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("CreatedAt changed: %v -> %v", first.CreatedAt, second.CreatedAt)
	}
	if second.LastModified.Before(first.LastModified) {
		t.Errorf("LastModified went backwards: %v -> %v", first.LastModified, second.LastModified)
	}
	if second.UserMetadata["v"] != "2" {
		t.Errorf("UserMetadata = %v, want v=2", second.UserMetadata)
	}

	objects, err := s.ListObjects("b", ListQuery{})
	if err != nil {
		t.Fatalf("ListObjects: %v", err)
	}
	if len(objects) != 1 {
		t.Errorf("got %d objects, want 1", len(objects))
	}
}

func TestPutOverwriteDifferentBytes(t *testing.T) {
	s := newTestStore(t)
	mustCreateBucket(t, s, "b")

	old := mustPut(t, s, "b", "k.txt", "one", PutOptions{})
	neu := mustPut(t, s, "b", "k.txt", "two", PutOptions{})
	if neu.ETag == old.ETag {
		t.Fatal("etag did not change across overwrite")
	}

	data, _, err := s.GetObject("b", "k.txt")
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}
	if string(data) != "two" {
		t.Errorf("data = %q, want two", data)
	}

	// the old etag must be gone from the etag index
	stale, err := s.ListObjects("b", ListQuery{ETagFilter: old.ETag})
	if err != nil {
		t.Fatalf("ListObjects: %v", err)
	}
	if len(stale) != 0 {
		t.Errorf("old etag still listed: %+v", stale)
	}
}

func TestPutValidation(t *testing.T) {
	s := newTestStore(t)
	mustCreateBucket(t, s, "b")

	if _, err := s.PutObject("b", "a/../b", []byte("x"), PutOptions{}); KindOf(err) != KindInvalidKey {
		t.Errorf("traversal key: kind = %v", KindOf(err))
	}
	if _, err := s.PutObject("b", "", []byte("x"), PutOptions{}); KindOf(err) != KindInvalidKey {
		t.Errorf("empty key: kind = %v", KindOf(err))
	}
	_, err := s.PutObject("nope", "k", []byte("x"), PutOptions{})
	if KindOf(err) != KindNotFound {
		t.Errorf("missing bucket: kind = %v", KindOf(err))
	}
}

func TestPutIfNotExists(t *testing.T) {
	s := newTestStore(t)
	mustCreateBucket(t, s, "b")

	if _, err := s.PutObjectIfNotExists("b", "k.txt", []byte("one"), PutOptions{}); err != nil {
		t.Fatalf("fresh put: %v", err)
	}

	_, err := s.PutObjectIfNotExists("b", "k.txt", []byte("one"), PutOptions{})
	if KindOf(err) != KindAlreadyExists {
		t.Fatalf("same bytes: kind = %v, err = %v", KindOf(err), err)
	}
	if err.Error() != "Object 'k.txt' already exists in bucket 'b'" {
		t.Errorf("message = %q", err.Error())
	}

	// different bytes bypass the guard: only the idempotent path is fenced
	if _, err := s.PutObjectIfNotExists("b", "k.txt", []byte("two"), PutOptions{}); err != nil {
		t.Fatalf("different bytes: %v", err)
	}
	data, _, err := s.GetObject("b", "k.txt")
	if err != nil || string(data) != "two" {
		t.Fatalf("data = %q, err = %v", data, err)
	}
}

func TestPutIfETagMismatch(t *testing.T) {
	s := newTestStore(t)
	mustCreateBucket(t, s, "b")

	obj := mustPut(t, s, "b", "k.txt", "one", PutOptions{})

	// matching etag fails: the guard is inverted on purpose
	_, err := s.PutObjectIfETagMismatch("b", "k.txt", []byte("two"), obj.ETag, PutOptions{})
	if KindOf(err) != KindPreconditionFailed {
		t.Fatalf("matching etag: kind = %v, err = %v", KindOf(err), err)
	}
	if err.Error() != fmt.Sprintf("Precondition failed: ETag matches %s", obj.ETag) {
		t.Errorf("message = %q", err.Error())
	}

	// a non-matching expectation lets the write through
	if _, err := s.PutObjectIfETagMismatch("b", "k.txt", []byte("two"), `"deadbeef"`, PutOptions{}); err != nil {
		t.Fatalf("mismatching etag: %v", err)
	}
	data, _, err := s.GetObject("b", "k.txt")
	if err != nil || string(data) != "two" {
		t.Fatalf("data = %q, err = %v", data, err)
	}
}

func TestDedupReject(t *testing.T) {
	s := newTestStore(t)
	mustCreateBucket(t, s, "b")

	objA := mustPut(t, s, "b", "a", "X", PutOptions{})

	_, err := s.PutObject("b", "b", []byte("X"), PutOptions{Dedup: DedupReject})
	if KindOf(err) != KindDuplicateContent {
		t.Fatalf("duplicate: kind = %v, err = %v", KindOf(err), err)
	}
	want := fmt.Sprintf("Duplicate content: ETag %s already stored under key 'a'", objA.ETag)
	if err.Error() != want {
		t.Errorf("message = %q, want %q", err.Error(), want)
	}

	if _, err := s.PutObject("b", "b", []byte("Y"), PutOptions{Dedup: DedupReject}); err != nil {
		t.Fatalf("distinct content: %v", err)
	}

	// same key, same bytes: idempotency runs before the policy
	if _, err := s.PutObject("b", "a", []byte("X"), PutOptions{Dedup: DedupReject}); err != nil {
		t.Fatalf("idempotent rewrite under reject: %v", err)
	}
}

func TestDedupReferenceLifecycle(t *testing.T) {
	s := newTestStore(t)
	mustCreateBucket(t, s, "b")

	mustPut(t, s, "b", "a", "DATA", PutOptions{})
	mustPut(t, s, "b", "ref", "DATA", PutOptions{Dedup: DedupReference})

	refMeta, err := s.GetObjectMetadata("b", "ref")
	if err != nil {
		t.Fatalf("ref metadata: %v", err)
	}
	holderID := ObjectID("b", "a")
	if refMeta.DataHolderID == nil || *refMeta.DataHolderID != holderID {
		t.Fatalf("DataHolderID = %v, want %s", refMeta.DataHolderID, holderID)
	}

	holderMeta, err := s.GetObjectMetadata("b", "a")
	if err != nil {
		t.Fatalf("holder metadata: %v", err)
	}
	if holderMeta.ReferenceCount != 1 {
		t.Errorf("holder ReferenceCount = %d, want 1", holderMeta.ReferenceCount)
	}

	data, _, err := s.GetObject("b", "ref")
	if err != nil {
		t.Fatalf("GetObject through reference: %v", err)
	}
	if string(data) != "DATA" {
		t.Errorf("data = %q, want DATA", data)
	}

	err = s.DeleteObject("b", "a")
	if KindOf(err) != KindHasReferences {
		t.Fatalf("delete referenced holder: kind = %v, err = %v", KindOf(err), err)
	}
	if err.Error() != "Cannot delete object: 1 reference(s) still point to it" {
		t.Errorf("message = %q", err.Error())
	}

	if err := s.DeleteObject("b", "ref"); err != nil {
		t.Fatalf("delete reference: %v", err)
	}
	holderMeta, err = s.GetObjectMetadata("b", "a")
	if err != nil {
		t.Fatalf("holder metadata after ref delete: %v", err)
	}
	if holderMeta.ReferenceCount != 0 {
		t.Errorf("ReferenceCount after ref delete = %d, want 0", holderMeta.ReferenceCount)
	}

	if err := s.DeleteObject("b", "a"); err != nil {
		t.Fatalf("delete freed holder: %v", err)
	}
	if err := s.DeleteBucket("b"); err != nil {
		t.Fatalf("bucket empty after lifecycle: %v", err)
	}
}

// A reference put always resolves to the data holder, never to another
// reference, so holders never chain.
func TestDedupReferenceResolvesToHolder(t *testing.T) {
	s := newTestStore(t)
	mustCreateBucket(t, s, "b")

	mustPut(t, s, "b", "a", "DATA", PutOptions{})
	mustPut(t, s, "b", "r1", "DATA", PutOptions{Dedup: DedupReference})
	mustPut(t, s, "b", "r2", "DATA", PutOptions{Dedup: DedupReference})

	holderID := ObjectID("b", "a")
	for _, key := range []string{"r1", "r2"} {
		m, err := s.GetObjectMetadata("b", key)
		if err != nil {
			t.Fatalf("%s metadata: %v", key, err)
		}
		if m.DataHolderID == nil || *m.DataHolderID != holderID {
			t.Errorf("%s DataHolderID = %v, want %s", key, m.DataHolderID, holderID)
		}
	}
	holder, err := s.GetObjectMetadata("b", "a")
	if err != nil {
		t.Fatalf("holder metadata: %v", err)
	}
	if holder.ReferenceCount != 2 {
		t.Errorf("holder ReferenceCount = %d, want 2", holder.ReferenceCount)
	}
}

// With two holders of the same content the one with more references wins;
// on a tie the first seen does.
func TestDedupReferencePicksBusiestHolder(t *testing.T) {
	s := newTestStore(t)
	mustCreateBucket(t, s, "b")

	mustPut(t, s, "b", "a", "X", PutOptions{})
	mustPut(t, s, "b", "b2", "X", PutOptions{}) // second standalone holder, same bytes

	mustPut(t, s, "b", "r1", "X", PutOptions{Dedup: DedupReference})
	r1, err := s.GetObjectMetadata("b", "r1")
	if err != nil {
		t.Fatalf("r1 metadata: %v", err)
	}
	firstHolder := *r1.DataHolderID

	mustPut(t, s, "b", "r2", "X", PutOptions{Dedup: DedupReference})
	r2, err := s.GetObjectMetadata("b", "r2")
	if err != nil {
		t.Fatalf("r2 metadata: %v", err)
	}
	if *r2.DataHolderID != firstHolder {
		t.Errorf("r2 holder = %s, want the busier %s", *r2.DataHolderID, firstHolder)
	}
}

func TestDedupReferenceNoDuplicateWritesStandalone(t *testing.T) {
	s := newTestStore(t)
	mustCreateBucket(t, s, "b")

	mustPut(t, s, "b", "only", "unique", PutOptions{Dedup: DedupReference})
	m, err := s.GetObjectMetadata("b", "only")
	if err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if m.IsReference() {
		t.Error("no duplicate existed, yet a reference was written")
	}
	data, _, err := s.GetObject("b", "only")
	if err != nil || string(data) != "unique" {
		t.Fatalf("data = %q, err = %v", data, err)
	}
}

func TestDedupInvalidMode(t *testing.T) {
	_, err := ParseDedupPolicy("mirror")
	if KindOf(err) != KindInvalidDeduplicationMode {
		t.Fatalf("kind = %v, err = %v", KindOf(err), err)
	}
	if err.Error() != "Invalid deduplication mode: 'mirror'" {
		t.Errorf("message = %q", err.Error())
	}
}

func TestForceDeleteLeavesDanglingReference(t *testing.T) {
	s := newTestStore(t)
	mustCreateBucket(t, s, "b")

	mustPut(t, s, "b", "a", "DATA", PutOptions{})
	mustPut(t, s, "b", "ref", "DATA", PutOptions{Dedup: DedupReference})

	if err := s.ForceDeleteObject("b", "a"); err != nil {
		t.Fatalf("ForceDeleteObject: %v", err)
	}

	_, _, err := s.GetObject("b", "ref")
	if KindOf(err) != KindDanglingReference {
		t.Fatalf("get through dangling reference: kind = %v, err = %v", KindOf(err), err)
	}

	// the reference's own sidecar is still readable
	if _, err := s.GetObjectMetadata("b", "ref"); err != nil {
		t.Errorf("GetObjectMetadata on dangling reference: %v", err)
	}
}

func TestOverwriteReferenceDecrementsHolder(t *testing.T) {
	s := newTestStore(t)
	mustCreateBucket(t, s, "b")

	mustPut(t, s, "b", "a", "DATA", PutOptions{})
	mustPut(t, s, "b", "ref", "DATA", PutOptions{Dedup: DedupReference})

	// overwriting the reference with fresh bytes releases its hold
	mustPut(t, s, "b", "ref", "NEW", PutOptions{})

	holder, err := s.GetObjectMetadata("b", "a")
	if err != nil {
		t.Fatalf("holder metadata: %v", err)
	}
	if holder.ReferenceCount != 0 {
		t.Errorf("ReferenceCount = %d, want 0", holder.ReferenceCount)
	}
	if err := s.DeleteObject("b", "a"); err != nil {
		t.Errorf("delete holder after overwrite released it: %v", err)
	}
}

func TestOverwriteReferencedHolderRefused(t *testing.T) {
	s := newTestStore(t)
	mustCreateBucket(t, s, "b")

	mustPut(t, s, "b", "a", "DATA", PutOptions{})
	mustPut(t, s, "b", "ref", "DATA", PutOptions{Dedup: DedupReference})

	_, err := s.PutObject("b", "a", []byte("NEW"), PutOptions{})
	if KindOf(err) != KindHasReferences {
		t.Fatalf("KindOf(err) = %v, want KindHasReferences", KindOf(err))
	}

	// the shared bytes stay pinned
	data, _, err := s.GetObject("b", "ref")
	if err != nil || string(data) != "DATA" {
		t.Fatalf("reference data = %q, err = %v", data, err)
	}
}

func TestReferencePutReplacesStandalone(t *testing.T) {
	s := newTestStore(t)
	mustCreateBucket(t, s, "b")

	mustPut(t, s, "b", "a", "DATA", PutOptions{})
	old := mustPut(t, s, "b", "k", "OLD", PutOptions{})

	mustPut(t, s, "b", "k", "DATA", PutOptions{Dedup: DedupReference})

	m, err := s.GetObjectMetadata("b", "k")
	if err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if m.DataHolderID == nil || *m.DataHolderID != ObjectID("b", "a") {
		t.Fatalf("DataHolderID = %v, want holder of a", m.DataHolderID)
	}
	data, _, err := s.GetObject("b", "k")
	if err != nil || string(data) != "DATA" {
		t.Fatalf("data = %q, err = %v", data, err)
	}

	// the old content's etag must have left the index
	stale, err := s.ListObjects("b", ListQuery{ETagFilter: old.ETag})
	if err != nil {
		t.Fatalf("ListObjects: %v", err)
	}
	if len(stale) != 0 {
		t.Errorf("old etag still listed: %+v", stale)
	}
}

func TestGetMissingObject(t *testing.T) {
	s := newTestStore(t)
	mustCreateBucket(t, s, "b")

	_, _, err := s.GetObject("b", "nope")
	if KindOf(err) != KindNotFound {
		t.Fatalf("kind = %v", KindOf(err))
	}
	if err.Error() != "Object 'nope' not found in bucket 'b'" {
		t.Errorf("message = %q", err.Error())
	}
	if _, _, err := s.GetObject("ghost", "k"); KindOf(err) != KindNotFound {
		t.Errorf("missing bucket: kind = %v", KindOf(err))
	}
}

func TestUpdateObjectMetadata(t *testing.T) {
	s := newTestStore(t)
	mustCreateBucket(t, s, "b")

	obj := mustPut(t, s, "b", "k.txt", "Hello", PutOptions{UserMetadata: map[string]string{"old": "1"}})

	ct := "application/json"
	custom := `"feedface"`
	updated, err := s.UpdateObjectMetadata("b", "k.txt", &ct, map[string]string{"new": "2"}, &custom)
	if err != nil {
		t.Fatalf("UpdateObjectMetadata: %v", err)
	}
	if updated.ContentType != "application/json" {
		t.Errorf("ContentType = %q", updated.ContentType)
	}
	if updated.UserMetadata["new"] != "2" || updated.UserMetadata["old"] != "" {
		t.Errorf("UserMetadata = %v", updated.UserMetadata)
	}
	if updated.ETag != obj.ETag {
		t.Errorf("custom etag was written: %q", updated.ETag)
	}
	if updated.LastModified.Before(obj.LastModified) {
		t.Errorf("LastModified went backwards")
	}

	// nil fields leave the sidecar alone
	again, err := s.UpdateObjectMetadata("b", "k.txt", nil, nil, nil)
	if err != nil {
		t.Fatalf("second update: %v", err)
	}
	if again.ContentType != "application/json" || again.UserMetadata["new"] != "2" {
		t.Errorf("nil update changed fields: %+v", again)
	}
}

func TestListObjectVersions(t *testing.T) {
	s := newTestStore(t)
	mustCreateBucket(t, s, "b")
	mustPut(t, s, "b", "k.txt", "Hello", PutOptions{})

	versions, err := s.ListObjectVersions("b", "k.txt")
	if err != nil {
		t.Fatalf("ListObjectVersions: %v", err)
	}
	if len(versions) != 1 || versions[0].Key != "k.txt" {
		t.Fatalf("versions = %+v", versions)
	}

	empty, err := s.ListObjectVersions("b", "ghost")
	if err != nil {
		t.Fatalf("ListObjectVersions(ghost): %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("versions for absent key = %+v", empty)
	}

	if _, err := s.ListObjectVersions("nope", "k"); KindOf(err) != KindNotFound {
		t.Errorf("missing bucket: kind = %v", KindOf(err))
	}
}

func TestPutEmitsVersionID(t *testing.T) {
	s := newTestStore(t)
	mustCreateBucket(t, s, "b")

	mustPut(t, s, "b", "k", "data", PutOptions{EmitVersionID: true})
	m, err := s.GetObjectMetadata("b", "k")
	if err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if m.VersionID == nil || *m.VersionID == "" {
		t.Error("VersionID not set")
	}

	mustPut(t, s, "b", "plain", "data2", PutOptions{})
	m, err = s.GetObjectMetadata("b", "plain")
	if err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if m.VersionID != nil {
		t.Errorf("VersionID = %v, want nil", m.VersionID)
	}
}
