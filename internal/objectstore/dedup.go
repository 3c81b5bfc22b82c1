package objectstore

import "strings"

// DedupPolicy controls what a put does when the same bytes already exist in
// the bucket under another key.
type DedupPolicy int

const (
	// DedupAllow stores an independent copy. The default.
	DedupAllow DedupPolicy = iota
	// DedupReject refuses the put when another key holds identical bytes.
	DedupReject
	// DedupReference stores only a sidecar pointing at an existing holder
	// and bumps the holder's reference count.
	DedupReference
)

func (p DedupPolicy) String() string {
	switch p {
	case DedupReject:
		return "reject"
	case DedupReference:
		return "reference"
	default:
		return "allow"
	}
}

// ParseDedupPolicy parses the wire form. Empty means allow.
func ParseDedupPolicy(s string) (DedupPolicy, error) {
	switch strings.ToLower(s) {
	case "", "allow":
		return DedupAllow, nil
	case "reject":
		return DedupReject, nil
	case "reference":
		return DedupReference, nil
	default:
		return DedupAllow, errInvalidDeduplicationMode(s)
	}
}
