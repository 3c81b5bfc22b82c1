package objectstore

import (
	"errors"
	"fmt"
)

// Kind classifies store errors so the transport can map them to HTTP
// statuses without string matching.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidName
	KindInvalidKey
	KindInvalidDeduplicationMode
	KindInvalidMetadata
	KindNotFound
	KindAlreadyExists
	KindNotEmpty
	KindDuplicateContent
	KindHasReferences
	KindPreconditionFailed
	KindDanglingReference
	KindDataMissing
	KindIO
)

// Error is the structured error surfaced by the store. Message strings are
// part of the API contract; clients match on them.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the Kind from err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

func errf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func errInvalidName(msg string) *Error {
	return &Error{Kind: KindInvalidName, Message: msg}
}

func errInvalidKey(msg string) *Error {
	return &Error{Kind: KindInvalidKey, Message: msg}
}

func errInvalidDeduplicationMode(mode string) *Error {
	return errf(KindInvalidDeduplicationMode, "Invalid deduplication mode: '%s'", mode)
}

func errBucketNotFound(name string) *Error {
	return errf(KindNotFound, "Bucket '%s' not found", name)
}

func errBucketExists(name string) *Error {
	return errf(KindAlreadyExists, "Bucket '%s' already exists", name)
}

func errBucketNotEmpty(name string) *Error {
	return errf(KindNotEmpty, "Cannot delete non-empty bucket '%s'", name)
}

func errObjectNotFound(key, bucket string) *Error {
	return errf(KindNotFound, "Object '%s' not found in bucket '%s'", key, bucket)
}

func errMetadataNotFound() *Error {
	return &Error{Kind: KindNotFound, Message: "Object metadata not found"}
}

func errDataMissing() *Error {
	return &Error{Kind: KindDataMissing, Message: "Object data not found"}
}

func errObjectExists(key, bucket string) *Error {
	return errf(KindAlreadyExists, "Object '%s' already exists in bucket '%s'", key, bucket)
}

func errDuplicateContent(etag, key string) *Error {
	return errf(KindDuplicateContent, "Duplicate content: ETag %s already stored under key '%s'", etag, key)
}

func errHasReferences(count uint32) *Error {
	return errf(KindHasReferences, "Cannot delete object: %d reference(s) still point to it", count)
}

func errPreconditionFailed(etag string) *Error {
	return errf(KindPreconditionFailed, "Precondition failed: ETag matches %s", etag)
}

func errDanglingReference(holderID string) *Error {
	return errf(KindDanglingReference, "Dangling reference: data holder '%s' is missing", holderID)
}

func errIO(op string, err error) *Error {
	return &Error{Kind: KindIO, Message: op, Err: err}
}
