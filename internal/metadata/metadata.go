package metadata

import (
	"encoding/json"
	"fmt"
	"time"
)

// Bucket is the durable record stored at <root>/<bucket>/.sevino.meta/bucket.json.
type Bucket struct {
	Name      string            `json:"name"`
	CreatedAt time.Time         `json:"created_at"`
	Metadata  map[string]string `json:"metadata"`
}

// NewBucket returns a bucket record with an empty metadata map.
func NewBucket(name string) *Bucket {
	return &Bucket{
		Name:      name,
		CreatedAt: time.Now().UTC(),
		Metadata:  map[string]string{},
	}
}

// Object is the API view of a stored object.
type Object struct {
	Key          string            `json:"key"`
	BucketName   string            `json:"bucket_name"`
	Size         int64             `json:"size"`
	ContentType  string            `json:"content_type"`
	ETag         string            `json:"etag"`
	CreatedAt    time.Time         `json:"created_at"`
	LastModified time.Time         `json:"last_modified"`
	UserMetadata map[string]string `json:"user_metadata"`
}

// ObjectMeta is the sidecar record stored at
// <root>/<bucket>/.sevino.meta/objects/<object-id>.json. It is a flat
// superset of Object. VersionID and DataHolderID serialize as null when
// unset so sidecars written by older deployments stay byte-compatible.
type ObjectMeta struct {
	Key            string            `json:"key"`
	BucketName     string            `json:"bucket_name"`
	Size           int64             `json:"size"`
	ContentType    string            `json:"content_type"`
	ETag           string            `json:"etag"`
	CreatedAt      time.Time         `json:"created_at"`
	LastModified   time.Time         `json:"last_modified"`
	UserMetadata   map[string]string `json:"user_metadata"`
	VersionID      *string           `json:"version_id"`
	IsDeleteMarker bool              `json:"is_delete_marker"`
	ReferenceCount uint32            `json:"reference_count"`
	DataHolderID   *string           `json:"data_holder_id"`
}

// Object projects the sidecar onto its API view.
func (m *ObjectMeta) Object() Object {
	um := m.UserMetadata
	if um == nil {
		um = map[string]string{}
	}
	return Object{
		Key:          m.Key,
		BucketName:   m.BucketName,
		Size:         m.Size,
		ContentType:  m.ContentType,
		ETag:         m.ETag,
		CreatedAt:    m.CreatedAt,
		LastModified: m.LastModified,
		UserMetadata: um,
	}
}

// IsReference reports whether this object points at a data holder instead of
// owning a data file.
func (m *ObjectMeta) IsReference() bool {
	return m.DataHolderID != nil && *m.DataHolderID != ""
}

// Clone returns a deep copy. Sidecars are mutated copy-on-write so concurrent
// readers never observe a half-updated record.
func (m *ObjectMeta) Clone() *ObjectMeta {
	cp := *m
	if m.UserMetadata != nil {
		cp.UserMetadata = make(map[string]string, len(m.UserMetadata))
		for k, v := range m.UserMetadata {
			cp.UserMetadata[k] = v
		}
	}
	if m.VersionID != nil {
		v := *m.VersionID
		cp.VersionID = &v
	}
	if m.DataHolderID != nil {
		h := *m.DataHolderID
		cp.DataHolderID = &h
	}
	return &cp
}

// EncodeSidecar renders a sidecar as pretty-printed JSON, the on-disk format.
func EncodeSidecar(m *ObjectMeta) ([]byte, error) {
	if m.UserMetadata == nil {
		m.UserMetadata = map[string]string{}
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode sidecar: %w", err)
	}
	return data, nil
}

// DecodeSidecar parses a sidecar file.
func DecodeSidecar(data []byte) (*ObjectMeta, error) {
	var m ObjectMeta
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode sidecar: %w", err)
	}
	if m.UserMetadata == nil {
		m.UserMetadata = map[string]string{}
	}
	return &m, nil
}

// EncodeBucket renders bucket.json, pretty-printed like sidecars.
func EncodeBucket(b *Bucket) ([]byte, error) {
	if b.Metadata == nil {
		b.Metadata = map[string]string{}
	}
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode bucket meta: %w", err)
	}
	return data, nil
}

// DecodeBucket parses bucket.json.
func DecodeBucket(data []byte) (*Bucket, error) {
	var b Bucket
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode bucket meta: %w", err)
	}
	if b.Metadata == nil {
		b.Metadata = map[string]string{}
	}
	return &b, nil
}
