package storage

import "github.com/sanyexieai/sevino/internal/metadata"

// Engine defines the on-disk layout operations. Objects are addressed by
// their object-id, never by key: the data file for id H in bucket B lives at
// <root>/<B>/<H[0:4]>/<H[4:6]>/<H> and its sidecar at
// <root>/<B>/.sevino.meta/objects/<H>.json. Disk state is the durable truth;
// indexes are rebuilt from it.
type Engine interface {
	// Bucket directories
	CreateBucketDir(bucket string) error
	RemoveBucketDir(bucket string) error
	ListBucketDirs() ([]string, error)

	// Bucket metadata (bucket.json)
	WriteBucketMeta(b *metadata.Bucket) error
	ReadBucketMeta(bucket string) (*metadata.Bucket, error)

	// Data files
	WriteData(bucket, id string, data []byte) error
	ReadData(bucket, id string) ([]byte, error)
	RemoveData(bucket, id string) error
	DataExists(bucket, id string) bool

	// Sidecars
	WriteSidecar(bucket, id string, meta *metadata.ObjectMeta) error
	ReadSidecar(bucket, id string) (*metadata.ObjectMeta, error)
	RemoveSidecar(bucket, id string) error
	ListSidecars(bucket, marker string, maxKeys int) ([]SidecarEntry, error)

	// Stats
	BucketBytes(bucket string) (int64, error)
}

// SidecarEntry pairs a parsed sidecar with the object-id its filename names.
type SidecarEntry struct {
	ID   string
	Meta *metadata.ObjectMeta
}
