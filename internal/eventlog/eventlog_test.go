package eventlog

import (
	"fmt"
	"testing"
	"time"
)

func TestLogEvictsOldest(t *testing.T) {
	l := New(DefaultCapacity)
	for i := 1; i <= 21; i++ {
		l.Info(fmt.Sprintf("message %d", i))
	}

	entries := l.Entries()
	if len(entries) != 20 {
		t.Fatalf("len = %d, want 20", len(entries))
	}
	if entries[0].Message != "message 2" {
		t.Errorf("oldest remaining = %q, want message 2", entries[0].Message)
	}
	for i, e := range entries {
		if want := fmt.Sprintf("message %d", i+2); e.Message != want {
			t.Fatalf("entry %d = %q, want %q", i, e.Message, want)
		}
	}
}

func TestLogNeverExceedsCapacity(t *testing.T) {
	l := New(3)
	for i := 0; i < 100; i++ {
		l.Add("x", Warning)
		if l.Len() > 3 {
			t.Fatalf("log grew to %d", l.Len())
		}
	}
}

func TestLogDefaultsAndTimestamps(t *testing.T) {
	l := New(0)
	if l.Capacity() != DefaultCapacity {
		t.Fatalf("capacity = %d", l.Capacity())
	}
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return fixed }

	e := l.Add("DEM data downloaded successfully", "")
	if e.Severity != Info {
		t.Errorf("empty severity should default to info, got %q", e.Severity)
	}
	if !e.Timestamp.Equal(fixed) {
		t.Errorf("timestamp = %v", e.Timestamp)
	}
	if got := l.Error("boom"); got.Severity != Error {
		t.Errorf("severity = %q", got.Severity)
	}
}

func TestEntriesIsCopy(t *testing.T) {
	l := New(5)
	l.Success("ok")
	entries := l.Entries()
	entries[0].Message = "changed"
	if l.Entries()[0].Message != "ok" {
		t.Error("Entries must return a copy")
	}
}
