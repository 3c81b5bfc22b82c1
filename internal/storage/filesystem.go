package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sanyexieai/sevino/internal/metadata"
)

const (
	metaDirName    = ".sevino.meta"
	objectsDirName = "objects"
	bucketMetaFile = "bucket.json"
	sidecarSuffix  = ".json"
)

// FileSystem implements Engine on the local filesystem.
type FileSystem struct {
	dataDir string
	log     *zap.SugaredLogger
}

func NewFileSystem(dataDir string, log *zap.SugaredLogger) (*FileSystem, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &FileSystem{dataDir: dataDir, log: log}, nil
}

func (fs *FileSystem) DataDir() string { return fs.dataDir }

func (fs *FileSystem) bucketPath(bucket string) string {
	return filepath.Join(fs.dataDir, bucket)
}

// dataPath shards by the first hex runs of the object-id so no directory
// grows unbounded: <bucket>/<id[0:4]>/<id[4:6]>/<id>.
func (fs *FileSystem) dataPath(bucket, id string) string {
	return filepath.Join(fs.dataDir, bucket, id[:4], id[4:6], id)
}

func (fs *FileSystem) sidecarDir(bucket string) string {
	return filepath.Join(fs.dataDir, bucket, metaDirName, objectsDirName)
}

func (fs *FileSystem) sidecarPath(bucket, id string) string {
	return filepath.Join(fs.sidecarDir(bucket), id+sidecarSuffix)
}

func (fs *FileSystem) bucketMetaPath(bucket string) string {
	return filepath.Join(fs.dataDir, bucket, metaDirName, bucketMetaFile)
}

func (fs *FileSystem) CreateBucketDir(bucket string) error {
	if err := os.MkdirAll(filepath.Join(fs.bucketPath(bucket), metaDirName, objectsDirName), 0755); err != nil {
		return fmt.Errorf("create bucket dir: %w", err)
	}
	return nil
}

func (fs *FileSystem) RemoveBucketDir(bucket string) error {
	if err := os.RemoveAll(fs.bucketPath(bucket)); err != nil {
		return fmt.Errorf("remove bucket dir: %w", err)
	}
	return nil
}

// ListBucketDirs returns top-level directory names. Entries starting with a
// dot are reserved for system use and skipped.
func (fs *FileSystem) ListBucketDirs() ([]string, error) {
	entries, err := os.ReadDir(fs.dataDir)
	if err != nil {
		return nil, fmt.Errorf("read data dir: %w", err)
	}
	var buckets []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		buckets = append(buckets, e.Name())
	}
	return buckets, nil
}

func (fs *FileSystem) WriteBucketMeta(b *metadata.Bucket) error {
	data, err := metadata.EncodeBucket(b)
	if err != nil {
		return err
	}
	path := fs.bucketMetaPath(b.Name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create meta dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write bucket meta: %w", err)
	}
	return nil
}

func (fs *FileSystem) ReadBucketMeta(bucket string) (*metadata.Bucket, error) {
	data, err := os.ReadFile(fs.bucketMetaPath(bucket))
	if err != nil {
		return nil, fmt.Errorf("read bucket meta: %w", err)
	}
	return metadata.DecodeBucket(data)
}

func (fs *FileSystem) WriteData(bucket, id string, data []byte) error {
	path := fs.dataPath(bucket, id)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create shard dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		os.Remove(path)
		return fmt.Errorf("write data: %w", err)
	}
	return nil
}

func (fs *FileSystem) ReadData(bucket, id string) ([]byte, error) {
	data, err := os.ReadFile(fs.dataPath(bucket, id))
	if err != nil {
		return nil, fmt.Errorf("read data: %w", err)
	}
	return data, nil
}

func (fs *FileSystem) RemoveData(bucket, id string) error {
	path := fs.dataPath(bucket, id)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove data: %w", err)
	}

	// Clean up empty shard directories
	dir := filepath.Dir(path)
	bucketDir := fs.bucketPath(bucket)
	for dir != bucketDir {
		entries, _ := os.ReadDir(dir)
		if len(entries) > 0 {
			break
		}
		os.Remove(dir)
		dir = filepath.Dir(dir)
	}
	return nil
}

func (fs *FileSystem) DataExists(bucket, id string) bool {
	info, err := os.Stat(fs.dataPath(bucket, id))
	return err == nil && !info.IsDir()
}

func (fs *FileSystem) WriteSidecar(bucket, id string, meta *metadata.ObjectMeta) error {
	data, err := metadata.EncodeSidecar(meta)
	if err != nil {
		return err
	}
	path := fs.sidecarPath(bucket, id)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create sidecar dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write sidecar: %w", err)
	}
	return nil
}

func (fs *FileSystem) ReadSidecar(bucket, id string) (*metadata.ObjectMeta, error) {
	data, err := os.ReadFile(fs.sidecarPath(bucket, id))
	if err != nil {
		return nil, fmt.Errorf("read sidecar: %w", err)
	}
	return metadata.DecodeSidecar(data)
}

func (fs *FileSystem) RemoveSidecar(bucket, id string) error {
	if err := os.Remove(fs.sidecarPath(bucket, id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove sidecar: %w", err)
	}
	return nil
}

// ListSidecars enumerates sidecars in lexicographic filename order. marker
// names a sidecar filename (with or without the .json suffix); results begin
// strictly after it. maxKeys caps the count when positive. Sidecars that fail
// to parse are skipped and logged, never fatal: the scan must survive a
// partially written file.
func (fs *FileSystem) ListSidecars(bucket, marker string, maxKeys int) ([]SidecarEntry, error) {
	dir := fs.sidecarDir(bucket)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read sidecar dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), sidecarSuffix) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	marker = strings.TrimSuffix(marker, sidecarSuffix)

	var out []SidecarEntry
	for _, name := range names {
		id := strings.TrimSuffix(name, sidecarSuffix)
		if marker != "" && id <= marker {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			fs.log.Warnw("skip unreadable sidecar", "bucket", bucket, "file", name, "error", err)
			continue
		}
		meta, err := metadata.DecodeSidecar(data)
		if err != nil {
			fs.log.Warnw("skip malformed sidecar", "bucket", bucket, "file", name, "error", err)
			continue
		}
		out = append(out, SidecarEntry{ID: id, Meta: meta})
		if maxKeys > 0 && len(out) >= maxKeys {
			break
		}
	}
	return out, nil
}

// BucketBytes sums data-file sizes under the bucket's shard directories,
// skipping the reserved metadata subtree.
func (fs *FileSystem) BucketBytes(bucket string) (int64, error) {
	var total int64
	root := fs.bucketPath(bucket)
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // skip errors
		}
		if info.IsDir() {
			if strings.HasPrefix(info.Name(), ".") && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walk bucket: %w", err)
	}
	return total, nil
}
