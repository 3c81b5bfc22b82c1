package objectstore

import (
	"strings"
	"time"

	"github.com/sanyexieai/sevino/internal/metadata"
)

// MetadataFilter is one custom_<name>=<value> equality test against an
// object's user metadata.
type MetadataFilter struct {
	Name  string
	Value string
}

// ListQuery carries the optional filters of a listing. Pagination (Marker,
// MaxKeys) applies at the sidecar scan, before any filter.
type ListQuery struct {
	Prefix        string
	Delimiter     string
	MaxKeys       int
	Marker        string
	ETagFilter    string
	CustomFilters []MetadataFilter
}

// ListObjects scans the bucket's sidecars in filesystem order and applies,
// in sequence: pagination, prefix, etag glob, custom-metadata equality, and
// the delimiter rollup.
func (s *Store) ListObjects(bucket string, q ListQuery) ([]metadata.Object, error) {
	if err := s.requireBucket(bucket); err != nil {
		return nil, err
	}
	entries, err := s.engine.ListSidecars(bucket, q.Marker, q.MaxKeys)
	if err != nil {
		return nil, errIO("scan sidecars", err)
	}

	objects := make([]metadata.Object, 0, len(entries))
	for _, e := range entries {
		m := e.Meta
		if q.Prefix != "" && !strings.HasPrefix(m.Key, q.Prefix) {
			continue
		}
		if q.ETagFilter != "" && !globMatch(q.ETagFilter, m.ETag) {
			continue
		}
		if !matchesFilters(m.UserMetadata, q.CustomFilters) {
			continue
		}
		objects = append(objects, m.Object())
	}

	if q.Delimiter != "" {
		objects = rollupCommonPrefixes(objects, q.Prefix, q.Delimiter, bucket)
	}
	return objects, nil
}

func matchesFilters(userMeta map[string]string, filters []MetadataFilter) bool {
	for _, f := range filters {
		if userMeta[f.Name] != f.Value {
			return false
		}
	}
	return true
}

// rollupCommonPrefixes folds keys that contain the delimiter past the
// listing prefix into one directory pseudo-entry per common prefix, kept in
// order of first appearance. Keys without a further delimiter pass through.
func rollupCommonPrefixes(objects []metadata.Object, prefix, delimiter, bucket string) []metadata.Object {
	rolled := make([]metadata.Object, 0, len(objects))
	seen := make(map[string]struct{}, len(objects))
	now := time.Now().UTC()
	for _, obj := range objects {
		rest := obj.Key[len(prefix):]
		idx := strings.Index(rest, delimiter)
		if idx < 0 {
			rolled = append(rolled, obj)
			continue
		}
		common := obj.Key[:len(prefix)+idx+len(delimiter)]
		if _, dup := seen[common]; dup {
			continue
		}
		seen[common] = struct{}{}
		rolled = append(rolled, metadata.Object{
			Key:          common,
			BucketName:   bucket,
			ContentType:  "application/x-directory",
			CreatedAt:    now,
			LastModified: now,
			UserMetadata: map[string]string{},
		})
	}
	return rolled
}

// globMatch reports whether s matches pattern, where '*' matches any run of
// characters and '?' matches exactly one. Matching is against the stored
// (quoted) etag string.
func globMatch(pattern, s string) bool {
	var pi, si int
	star, starSi := -1, 0
	for si < len(s) {
		switch {
		case pi < len(pattern) && (pattern[pi] == '?' || pattern[pi] == s[si]):
			pi++
			si++
		case pi < len(pattern) && pattern[pi] == '*':
			star, starSi = pi, si
			pi++
		case star >= 0:
			starSi++
			pi, si = star+1, starSi
		default:
			return false
		}
	}
	for pi < len(pattern) && pattern[pi] == '*' {
		pi++
	}
	return pi == len(pattern)
}
