package storage

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sanyexieai/sevino/internal/metadata"
)

func newTestEngine(t *testing.T) *FileSystem {
	t.Helper()
	fs, err := NewFileSystem(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewFileSystem: %v", err)
	}
	return fs
}

func testID(bucket, key string) string {
	sum := sha256.Sum256([]byte(bucket + ":" + key))
	return hex.EncodeToString(sum[:])
}

func testMeta(bucket, key string) *metadata.ObjectMeta {
	now := time.Now().UTC()
	return &metadata.ObjectMeta{
		Key:          key,
		BucketName:   bucket,
		Size:         1,
		ContentType:  "application/octet-stream",
		ETag:         `"x"`,
		CreatedAt:    now,
		LastModified: now,
		UserMetadata: map[string]string{},
	}
}

func TestFileSystem_DataRoundTrip(t *testing.T) {
	fs := newTestEngine(t)
	if err := fs.CreateBucketDir("b"); err != nil {
		t.Fatalf("CreateBucketDir: %v", err)
	}

	id := testID("b", "file.txt")
	data := []byte("hello world")
	if err := fs.WriteData("b", id, data); err != nil {
		t.Fatalf("WriteData: %v", err)
	}

	// Sharded layout: <bucket>/<id[0:4]>/<id[4:6]>/<id>
	want := filepath.Join(fs.DataDir(), "b", id[:4], id[4:6], id)
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("data file not at sharded path %s: %v", want, err)
	}

	got, err := fs.ReadData("b", id)
	if err != nil {
		t.Fatalf("ReadData: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("ReadData: got %q, want %q", got, data)
	}

	if !fs.DataExists("b", id) {
		t.Error("DataExists: expected true")
	}
	if err := fs.RemoveData("b", id); err != nil {
		t.Fatalf("RemoveData: %v", err)
	}
	if fs.DataExists("b", id) {
		t.Error("DataExists after remove: expected false")
	}

	// Shard directories are cleaned up when empty
	if _, err := os.Stat(filepath.Join(fs.DataDir(), "b", id[:4])); !os.IsNotExist(err) {
		t.Errorf("expected empty shard dir to be removed, stat err = %v", err)
	}
}

func TestFileSystem_RemoveDataMissing(t *testing.T) {
	fs := newTestEngine(t)
	fs.CreateBucketDir("b")
	if err := fs.RemoveData("b", testID("b", "nope")); err != nil {
		t.Fatalf("RemoveData on missing file: %v", err)
	}
}

func TestFileSystem_SidecarRoundTrip(t *testing.T) {
	fs := newTestEngine(t)
	fs.CreateBucketDir("b")

	id := testID("b", "k")
	meta := testMeta("b", "k")
	meta.UserMetadata["author"] = "me"

	if err := fs.WriteSidecar("b", id, meta); err != nil {
		t.Fatalf("WriteSidecar: %v", err)
	}

	// Pretty-printed JSON on disk
	raw, err := os.ReadFile(filepath.Join(fs.DataDir(), "b", ".sevino.meta", "objects", id+".json"))
	if err != nil {
		t.Fatalf("read sidecar file: %v", err)
	}
	if !bytes.Contains(raw, []byte("\n  \"key\"")) {
		t.Errorf("sidecar not pretty-printed: %s", raw)
	}
	if !bytes.Contains(raw, []byte(`"data_holder_id": null`)) {
		t.Errorf("expected null data_holder_id in sidecar: %s", raw)
	}

	got, err := fs.ReadSidecar("b", id)
	if err != nil {
		t.Fatalf("ReadSidecar: %v", err)
	}
	if got.Key != "k" || got.BucketName != "b" || got.UserMetadata["author"] != "me" {
		t.Errorf("ReadSidecar mismatch: %+v", got)
	}
}

func TestFileSystem_BucketMeta(t *testing.T) {
	fs := newTestEngine(t)
	fs.CreateBucketDir("photos")

	b := metadata.NewBucket("photos")
	if err := fs.WriteBucketMeta(b); err != nil {
		t.Fatalf("WriteBucketMeta: %v", err)
	}
	got, err := fs.ReadBucketMeta("photos")
	if err != nil {
		t.Fatalf("ReadBucketMeta: %v", err)
	}
	if got.Name != "photos" {
		t.Errorf("name: got %q, want photos", got.Name)
	}
	if got.Metadata == nil {
		t.Error("metadata map should never be nil")
	}
}

func TestFileSystem_ListBucketDirs(t *testing.T) {
	fs := newTestEngine(t)
	for _, b := range []string{"alpha", "beta"} {
		fs.CreateBucketDir(b)
	}
	// dot-prefixed entries are system-reserved
	os.MkdirAll(filepath.Join(fs.DataDir(), ".tmp"), 0755)

	dirs, err := fs.ListBucketDirs()
	if err != nil {
		t.Fatalf("ListBucketDirs: %v", err)
	}
	if len(dirs) != 2 {
		t.Fatalf("expected 2 bucket dirs, got %v", dirs)
	}
}

func TestFileSystem_ListSidecars_OrderMarkerMax(t *testing.T) {
	fs := newTestEngine(t)
	fs.CreateBucketDir("b")

	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("k%d", i)
		if err := fs.WriteSidecar("b", testID("b", key), testMeta("b", key)); err != nil {
			t.Fatalf("WriteSidecar: %v", err)
		}
	}

	all, err := fs.ListSidecars("b", "", 0)
	if err != nil {
		t.Fatalf("ListSidecars: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("expected 5 sidecars, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].ID >= all[i].ID {
			t.Fatalf("not in filename order: %s before %s", all[i-1].ID, all[i].ID)
		}
	}

	// marker resumes strictly after its match
	rest, err := fs.ListSidecars("b", all[1].ID, 0)
	if err != nil {
		t.Fatalf("ListSidecars with marker: %v", err)
	}
	if len(rest) != 3 || rest[0].ID != all[2].ID {
		t.Errorf("marker resume: got %d entries, want 3 starting at %s", len(rest), all[2].ID)
	}

	// marker accepts the raw filename form too
	rest2, err := fs.ListSidecars("b", all[1].ID+".json", 0)
	if err != nil {
		t.Fatalf("ListSidecars with filename marker: %v", err)
	}
	if len(rest2) != 3 {
		t.Errorf("filename marker: got %d entries, want 3", len(rest2))
	}

	// maxKeys caps the page
	page, err := fs.ListSidecars("b", "", 2)
	if err != nil {
		t.Fatalf("ListSidecars with maxKeys: %v", err)
	}
	if len(page) != 2 {
		t.Errorf("maxKeys: got %d entries, want 2", len(page))
	}
}

func TestFileSystem_ListSidecars_SkipsMalformed(t *testing.T) {
	fs := newTestEngine(t)
	fs.CreateBucketDir("b")

	id := testID("b", "good")
	fs.WriteSidecar("b", id, testMeta("b", "good"))

	bad := filepath.Join(fs.DataDir(), "b", ".sevino.meta", "objects", "not-json.json")
	if err := os.WriteFile(bad, []byte("{oops"), 0644); err != nil {
		t.Fatalf("write bad sidecar: %v", err)
	}

	entries, err := fs.ListSidecars("b", "", 0)
	if err != nil {
		t.Fatalf("ListSidecars: %v", err)
	}
	if len(entries) != 1 || entries[0].Meta.Key != "good" {
		t.Errorf("expected only the valid sidecar, got %+v", entries)
	}
}

func TestFileSystem_ListSidecars_NoBucket(t *testing.T) {
	fs := newTestEngine(t)
	entries, err := fs.ListSidecars("ghost", "", 0)
	if err != nil {
		t.Fatalf("ListSidecars on missing bucket: %v", err)
	}
	if entries != nil {
		t.Errorf("expected nil entries, got %v", entries)
	}
}

func TestFileSystem_BucketBytes(t *testing.T) {
	fs := newTestEngine(t)
	fs.CreateBucketDir("b")

	fs.WriteData("b", testID("b", "a"), []byte("12345"))
	fs.WriteData("b", testID("b", "c"), []byte("678"))
	// sidecars live under the dot-dir and must not count
	fs.WriteSidecar("b", testID("b", "a"), testMeta("b", "a"))

	total, err := fs.BucketBytes("b")
	if err != nil {
		t.Fatalf("BucketBytes: %v", err)
	}
	if total != 8 {
		t.Errorf("BucketBytes: got %d, want 8", total)
	}
}
