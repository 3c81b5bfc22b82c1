// Package accesslog appends one JSON line per finished request to a file.
package accesslog

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

type AccessEntry struct {
	Time       time.Time `json:"time"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	Bucket     string    `json:"bucket,omitempty"`
	Key        string    `json:"key,omitempty"`
	Status     int       `json:"status"`
	Bytes      int64     `json:"bytes"`
	DurationMS float64   `json:"duration_ms"`
	ClientIP   string    `json:"client_ip"`
	RequestID  string    `json:"request_id,omitempty"`
}

type AccessLogger struct {
	file *os.File
	enc  *json.Encoder
	mu   sync.Mutex
}

func NewAccessLogger(path string) (*AccessLogger, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &AccessLogger{
		file: f,
		enc:  json.NewEncoder(f),
	}, nil
}

// Log appends the entry. Nil receivers are tolerated so callers can wire
// the logger conditionally.
func (l *AccessLogger) Log(entry AccessEntry) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enc.Encode(entry)
}

func (l *AccessLogger) Close() error {
	if l == nil {
		return nil
	}
	return l.file.Close()
}
