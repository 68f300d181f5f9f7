package snapshot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/j-veylop/spendlens/internal/logger"
	"github.com/j-veylop/spendlens/internal/models"
)

// DefaultDebounce is used when the watcher is created with a zero debounce.
const DefaultDebounce = 250 * time.Millisecond

const eventBuffer = 16

// EventType defines the type of watcher event.
type EventType int

const (
	EventLoaded EventType = iota
	EventError
)

// Event is emitted each time the snapshot file is (re)loaded or fails to load.
// Every EventLoaded carries a complete snapshot; there are no partial updates.
type Event struct {
	Type     EventType
	Snapshot *models.RawSnapshot
	Error    error
}

// Watcher reloads a snapshot file whenever the collector rewrites it.
type Watcher struct {
	mu            sync.Mutex
	path          string
	debounce      time.Duration
	watcher       *fsnotify.Watcher
	eventChan     chan Event
	stopChan      chan struct{}
	debounceTimer *time.Timer
	closeOnce     sync.Once
}

// NewWatcher loads the snapshot at path if it exists and starts watching its
// directory for replacements. A missing file is not an error; the first
// EventLoaded arrives once the collector writes it.
func NewWatcher(path string, debounce time.Duration) (*Watcher, error) {
	if path == "" {
		return nil, errors.New("snapshot path is required")
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w := &Watcher{
		path:      path,
		debounce:  debounce,
		eventChan: make(chan Event, eventBuffer),
		stopChan:  make(chan struct{}),
	}

	if err := w.startWatcher(); err != nil {
		return nil, fmt.Errorf("failed to start snapshot watcher: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		w.reload()
	} else if !os.IsNotExist(err) {
		w.sendEvent(Event{Type: EventError, Error: err})
	}

	return w, nil
}

// Events returns the channel of load results.
func (w *Watcher) Events() <-chan Event {
	return w.eventChan
}

// Path returns the watched snapshot path.
func (w *Watcher) Path() string {
	return w.path
}

func (w *Watcher) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = watcher

	// Watch the directory so atomic rename-into-place writes are seen.
	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		if closeErr := watcher.Close(); closeErr != nil {
			logger.Error("failed to close watcher", "error", closeErr)
		}
		return err
	}

	go w.watchLoop()
	return nil
}

// watchLoop handles file system events with debouncing.
func (w *Watcher) watchLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.schedule()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.sendEvent(Event{Type: EventError, Error: err})

		case <-w.stopChan:
			return
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debounce, w.reload)
}

// reload reads the whole file again and publishes the result.
func (w *Watcher) reload() {
	select {
	case <-w.stopChan:
		return
	default:
	}

	raw, err := LoadFile(w.path)
	if err != nil {
		logger.Warn("snapshot reload failed", "path", w.path, "error", err)
		w.sendEvent(Event{Type: EventError, Error: err})
		return
	}
	logger.Debug("snapshot reloaded", "path", w.path)
	w.sendEvent(Event{Type: EventLoaded, Snapshot: raw})
}

// sendEvent delivers without blocking. When the buffer is full the oldest
// event is dropped; a newer snapshot supersedes an older one anyway.
func (w *Watcher) sendEvent(event Event) {
	select {
	case w.eventChan <- event:
	default:
		select {
		case <-w.eventChan:
		default:
		}
		select {
		case w.eventChan <- event:
		default:
		}
	}
}

// Close stops watching. It is safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.stopChan)

		w.mu.Lock()
		if w.debounceTimer != nil {
			w.debounceTimer.Stop()
		}
		w.mu.Unlock()

		if w.watcher != nil {
			err = w.watcher.Close()
		}
	})
	return err
}
