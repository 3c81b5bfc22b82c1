package objectstore

import "time"

// EventType names a store mutation.
type EventType string

const (
	EventBucketCreated EventType = "bucket:created"
	EventBucketDeleted EventType = "bucket:deleted"
	EventObjectCreated EventType = "object:created"
	EventObjectDeleted EventType = "object:deleted"
	EventObjectUpdated EventType = "object:updated"
)

// Event describes a successful mutation. Emitted after disk and index state
// are both published, never from inside the index lock.
type Event struct {
	Type     EventType `json:"type"`
	Bucket   string    `json:"bucket"`
	Key      string    `json:"key,omitempty"`
	ObjectID string    `json:"object_id,omitempty"`
	ETag     string    `json:"etag,omitempty"`
	Size     int64     `json:"size,omitempty"`
	Time     time.Time `json:"time"`
}

// EventFunc receives store events. Implementations must not block; slow
// consumers queue or drop on their side.
type EventFunc func(Event)

func (s *Store) emit(ev Event) {
	if s.events == nil {
		return
	}
	ev.Time = time.Now().UTC()
	s.events(ev)
}
