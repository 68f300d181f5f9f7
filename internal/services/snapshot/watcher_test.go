package snapshot

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const testDebounce = 20 * time.Millisecond

func newTestWatcher(t *testing.T, path string) *Watcher {
	t.Helper()
	w, err := NewWatcher(path, testDebounce)
	if err != nil {
		t.Fatalf("NewWatcher() failed: %v", err)
	}
	t.Cleanup(func() {
		_ = w.Close()
	})
	return w
}

func waitFor(t *testing.T, w *Watcher, want EventType) Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-w.Events():
			if ev.Type == want {
				return ev
			}
		case <-timeout:
			t.Fatalf("timeout waiting for event type %d", want)
		}
	}
}

func TestNewWatcher_LoadsExistingFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "snapshot.json", validSnapshot)
	w := newTestWatcher(t, path)

	ev := waitFor(t, w, EventLoaded)
	if ev.Snapshot == nil || len(ev.Snapshot.Entities) != 1 {
		t.Fatalf("expected loaded snapshot with 1 entity, got %+v", ev.Snapshot)
	}
	if w.Path() != path {
		t.Errorf("Path() = %s, want %s", w.Path(), path)
	}
}

func TestNewWatcher_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	w := newTestWatcher(t, path)

	select {
	case ev := <-w.Events():
		t.Fatalf("unexpected event before file exists: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}

	if err := os.WriteFile(path, []byte(validSnapshot), 0o600); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	ev := waitFor(t, w, EventLoaded)
	if len(ev.Snapshot.CostRecords) != 1 {
		t.Errorf("expected 1 cost record, got %d", len(ev.Snapshot.CostRecords))
	}
}

func TestNewWatcher_EmptyPath(t *testing.T) {
	if _, err := NewWatcher("", 0); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestWatcher_ReplacesWholeSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "snapshot.json", validSnapshot)
	w := newTestWatcher(t, path)
	waitFor(t, w, EventLoaded)

	next := `{"costRecords": [{"dailyCost": 1}, {"dailyCost": 2}]}`
	if err := os.WriteFile(path, []byte(next), 0o600); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	ev := waitFor(t, w, EventLoaded)
	if len(ev.Snapshot.CostRecords) != 2 {
		t.Errorf("expected 2 cost records, got %d", len(ev.Snapshot.CostRecords))
	}
	if len(ev.Snapshot.Entities) != 0 {
		t.Errorf("expected entities from the old snapshot to be gone, got %d", len(ev.Snapshot.Entities))
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "snapshot.json", validSnapshot)
	w := newTestWatcher(t, path)
	waitFor(t, w, EventLoaded)

	writeFile(t, dir, "other.json", `{"costRecords": []}`)

	select {
	case ev := <-w.Events():
		t.Fatalf("unexpected event for unrelated file: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWatcher_InvalidRewrite(t *testing.T) {
	path := writeFile(t, t.TempDir(), "snapshot.json", validSnapshot)
	w := newTestWatcher(t, path)
	waitFor(t, w, EventLoaded)

	if err := os.WriteFile(path, []byte(`{"costRecords": "oops"}`), 0o600); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	ev := waitFor(t, w, EventError)
	if ev.Error == nil {
		t.Error("expected error on invalid rewrite")
	}
}

func TestWatcher_SendEventDropsOldest(t *testing.T) {
	w := newTestWatcher(t, filepath.Join(t.TempDir(), "snapshot.json"))

	for i := 0; i < eventBuffer+5; i++ {
		w.sendEvent(Event{Type: EventError})
	}
	if len(w.Events()) != eventBuffer {
		t.Errorf("expected %d buffered events, got %d", eventBuffer, len(w.Events()))
	}
}

func TestWatcher_CloseTwice(t *testing.T) {
	w, err := NewWatcher(filepath.Join(t.TempDir(), "snapshot.json"), testDebounce)
	if err != nil {
		t.Fatalf("NewWatcher() failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("first Close() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
