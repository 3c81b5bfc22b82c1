package journal

import (
	"path/filepath"
	"testing"
)

func openTestJournal(t *testing.T, max int) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"), max)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRecordAndRecent(t *testing.T) {
	j := openTestJournal(t, 0)

	ops := []string{"bucket:created", "object:created", "object:deleted"}
	for i, op := range ops {
		err := j.Record(Entry{Op: op, Bucket: "b", Key: "k", Size: int64(i)})
		if err != nil {
			t.Fatalf("Record(%s): %v", op, err)
		}
	}

	entries, err := j.Recent(0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	// newest first
	if entries[0].Op != "object:deleted" || entries[2].Op != "bucket:created" {
		t.Errorf("order = [%s %s %s]", entries[0].Op, entries[1].Op, entries[2].Op)
	}
	for i := 0; i < len(entries)-1; i++ {
		if entries[i].Time < entries[i+1].Time {
			t.Errorf("entries not newest-first at %d", i)
		}
	}

	limited, err := j.Recent(2)
	if err != nil {
		t.Fatalf("Recent(2): %v", err)
	}
	if len(limited) != 2 || limited[0].Op != "object:deleted" {
		t.Errorf("limited = %+v", limited)
	}
}

func TestRetentionCap(t *testing.T) {
	j := openTestJournal(t, 2)

	for _, op := range []string{"one", "two", "three"} {
		if err := j.Record(Entry{Op: op, Bucket: "b"}); err != nil {
			t.Fatalf("Record(%s): %v", op, err)
		}
	}

	if j.Count() != 2 {
		t.Errorf("Count = %d, want 2", j.Count())
	}
	entries, err := j.Recent(0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Op != "three" || entries[1].Op != "two" {
		t.Errorf("retained = [%s %s], want [three two]", entries[0].Op, entries[1].Op)
	}
}

func TestReopenKeepsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := Open(path, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := j.Record(Entry{Op: "object:created", Bucket: "b", Key: "k"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	j2, err := Open(path, 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer j2.Close()
	if j2.Count() != 1 {
		t.Errorf("Count after reopen = %d, want 1", j2.Count())
	}
	entries, err := j2.Recent(0)
	if err != nil || len(entries) != 1 {
		t.Fatalf("Recent after reopen = %+v, err = %v", entries, err)
	}
	if entries[0].Key != "k" {
		t.Errorf("entry = %+v", entries[0])
	}
}
