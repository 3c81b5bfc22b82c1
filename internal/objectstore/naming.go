package objectstore

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"strings"
)

const maxKeyLength = 1024

// ValidateBucketName enforces ^[A-Za-z][A-Za-z0-9-]{0,62}$ with no
// leading/trailing hyphen, reported check by check so callers see the same
// message a client would.
func ValidateBucketName(name string) error {
	if name == "" {
		return errInvalidName("Bucket name cannot be empty")
	}
	if len(name) > 63 {
		return errInvalidName("Bucket name cannot be longer than 63 characters")
	}
	for _, c := range name {
		if !isAlnum(c) && c != '-' {
			return errInvalidName("Bucket name can only contain alphanumeric characters and hyphens")
		}
	}
	if name[0] == '-' || name[len(name)-1] == '-' {
		return errInvalidName("Bucket name cannot start or end with a hyphen")
	}
	if name[0] >= '0' && name[0] <= '9' {
		return errInvalidName("Bucket name cannot start with a number")
	}
	return nil
}

func isAlnum(c rune) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// ValidateObjectKey enforces non-empty, ≤1024 chars, no ".." substring.
func ValidateObjectKey(key string) error {
	if key == "" {
		return errInvalidKey("Object key cannot be empty")
	}
	if len(key) > maxKeyLength {
		return errInvalidKey("Object key cannot be longer than 1024 characters")
	}
	if strings.Contains(key, "..") {
		return errInvalidKey("Object key cannot contain '..'")
	}
	return nil
}

// ObjectID derives the content address for (bucket, key):
// sha256_hex(bucket + ":" + key). Stable under the same pair, case-sensitive,
// independent of the object's bytes.
func ObjectID(bucket, key string) string {
	sum := sha256.Sum256([]byte(bucket + ":" + key))
	return hex.EncodeToString(sum[:])
}

// ETagFor returns the quoted MD5 hex of data. Identical bytes produce
// identical ETags, which is what the dedup index keys on.
func ETagFor(data []byte) string {
	sum := md5.Sum(data)
	return fmt.Sprintf("\"%x\"", sum)
}

const defaultContentType = "application/octet-stream"

var mimeByExt = map[string]string{
	"html": "text/html",
	"htm":  "text/html",
	"css":  "text/css",
	"js":   "application/javascript",
	"json": "application/json",
	"xml":  "application/xml",
	"txt":  "text/plain",
	"pdf":  "application/pdf",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"svg":  "image/svg+xml",
	"ico":  "image/x-icon",
	"zip":  "application/zip",
	"tar":  "application/x-tar",
	"gz":   "application/gzip",
	"mp4":  "video/mp4",
	"mp3":  "audio/mpeg",
	"wav":  "audio/wav",
}

// InferContentType maps the key's extension to a MIME type, falling back to
// application/octet-stream.
func InferContentType(key string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(key), "."))
	if ct, ok := mimeByExt[ext]; ok {
		return ct
	}
	return defaultContentType
}

// ResolveContentType picks the effective content type for a put: the caller's
// value wins unless it is empty or the generic default, in which case the key
// extension decides.
func ResolveContentType(key, provided string) string {
	if provided == "" || provided == defaultContentType {
		return InferContentType(key)
	}
	return provided
}
