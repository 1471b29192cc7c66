package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func testLogger(buf *bytes.Buffer) *Logger {
	return New(Config{Level: LevelDebug, Output: buf, Component: "test"})
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []LogEntry {
	t.Helper()
	var entries []LogEntry
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry LogEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("bad log line %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestLiftedFieldsSurviveReuse(t *testing.T) {
	var buf bytes.Buffer
	lg := testLogger(&buf).
		WithField("user_id", "u-1").
		WithDuration(1500 * time.Microsecond)

	lg.Info("first")
	lg.Info("second")

	entries := decodeLines(t, &buf)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	for i, entry := range entries {
		if entry.UserID != "u-1" {
			t.Errorf("entry %d UserID = %q, want u-1", i, entry.UserID)
		}
		if entry.Duration != 1.5 {
			t.Errorf("entry %d Duration = %v, want 1.5", i, entry.Duration)
		}
		if _, ok := entry.Fields["user_id"]; ok {
			t.Errorf("entry %d still carries user_id inside fields", i)
		}
	}
}

func TestWithFieldDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := testLogger(&buf).WithField("request_id", "r-1")
	parent.WithField("extra", "child-only").Info("child")

	parent.Info("parent")

	entries := decodeLines(t, &buf)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if _, ok := entries[1].Fields["extra"]; ok {
		t.Error("child field leaked into the parent logger")
	}
	if entries[1].Fields["request_id"] != "r-1" {
		t.Errorf("request_id = %v, want r-1", entries[1].Fields["request_id"])
	}
}

func TestConcurrentLogsOnSharedLogger(t *testing.T) {
	var buf bytes.Buffer
	lg := testLogger(&buf).WithError(errors.New("boom"))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lg.Warn("shared")
		}()
	}
	wg.Wait()

	entries := decodeLines(t, &buf)
	if len(entries) != 16 {
		t.Fatalf("got %d entries, want 16", len(entries))
	}
	for i, entry := range entries {
		if entry.Error != "boom" {
			t.Errorf("entry %d Error = %q, want boom", i, entry.Error)
		}
	}
}
