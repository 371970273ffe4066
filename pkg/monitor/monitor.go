package monitor

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"mcp-toolserver/pkg/logging"
)

// FileEvent is a debounced change to a watched file
type FileEvent struct {
	Type string // create, modify or delete
	Path string
}

// FileSystemMonitor watches directories holding file-backed resources
type FileSystemMonitor struct {
	watcher       *fsnotify.Watcher
	debounceDelay time.Duration
	extensions    map[string]bool
	logger        *logging.StructuredLogger

	mu        sync.Mutex
	callbacks []func(FileEvent)
	timers    map[string]*time.Timer
	watched   map[string]bool
	startOnce sync.Once
	closed    bool
}

// NewFileSystemMonitor creates a monitor. When extensions are given only
// files with those extensions produce events.
func NewFileSystemMonitor(logger *logging.StructuredLogger, extensions ...string) (*FileSystemMonitor, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	exts := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts[strings.ToLower(ext)] = true
	}

	return &FileSystemMonitor{
		watcher:       watcher,
		debounceDelay: 500 * time.Millisecond,
		extensions:    exts,
		logger:        logger,
		timers:        make(map[string]*time.Timer),
		watched:       make(map[string]bool),
	}, nil
}

// SetDebounceDelay changes the quiet period before an event is delivered
func (fsm *FileSystemMonitor) SetDebounceDelay(d time.Duration) {
	fsm.mu.Lock()
	defer fsm.mu.Unlock()
	fsm.debounceDelay = d
}

// WatchDirectory starts watching a directory and registers callback for
// events from any watched directory. Watching the same directory twice only
// adds the callback.
func (fsm *FileSystemMonitor) WatchDirectory(path string, callback func(FileEvent)) error {
	path = filepath.Clean(path)

	fsm.mu.Lock()
	if fsm.closed {
		fsm.mu.Unlock()
		return fmt.Errorf("file watcher is closed")
	}
	if !fsm.watched[path] {
		if err := fsm.watcher.Add(path); err != nil {
			fsm.mu.Unlock()
			return fmt.Errorf("failed to watch directory %s: %w", path, err)
		}
		fsm.watched[path] = true
	}
	if callback != nil {
		fsm.callbacks = append(fsm.callbacks, callback)
	}
	fsm.mu.Unlock()

	fsm.startOnce.Do(func() { go fsm.monitorEvents() })

	if fsm.logger != nil {
		fsm.logger.WithContext("fs_path", path).Debug("Started monitoring directory")
	}
	return nil
}

// StopWatching stops the file system monitoring. Calling it twice is safe.
func (fsm *FileSystemMonitor) StopWatching() error {
	fsm.mu.Lock()
	if fsm.closed {
		fsm.mu.Unlock()
		return nil
	}
	fsm.closed = true
	for path, timer := range fsm.timers {
		timer.Stop()
		delete(fsm.timers, path)
	}
	fsm.mu.Unlock()

	return fsm.watcher.Close()
}

func (fsm *FileSystemMonitor) accepts(name string) bool {
	if len(fsm.extensions) == 0 {
		return true
	}
	return fsm.extensions[strings.ToLower(filepath.Ext(name))]
}

// monitorEvents processes file system events with debouncing
func (fsm *FileSystemMonitor) monitorEvents() {
	for {
		select {
		case event, ok := <-fsm.watcher.Events:
			if !ok {
				return
			}
			if !fsm.accepts(event.Name) {
				continue
			}
			fsm.debounce(event)

		case err, ok := <-fsm.watcher.Errors:
			if !ok {
				return
			}
			if fsm.logger != nil {
				fsm.logger.WithError(err).Warn("File watcher error")
			}
		}
	}
}

func (fsm *FileSystemMonitor) debounce(event fsnotify.Event) {
	fsm.mu.Lock()
	defer fsm.mu.Unlock()

	if fsm.closed {
		return
	}
	if timer, exists := fsm.timers[event.Name]; exists {
		timer.Stop()
	}
	fsm.timers[event.Name] = time.AfterFunc(fsm.debounceDelay, func() {
		fsm.mu.Lock()
		delete(fsm.timers, event.Name)
		callbacks := append([]func(FileEvent){}, fsm.callbacks...)
		fsm.mu.Unlock()

		fsm.processEvent(event, callbacks)
	})
}

// processEvent converts fsnotify events to FileEvent and calls callbacks
func (fsm *FileSystemMonitor) processEvent(event fsnotify.Event, callbacks []func(FileEvent)) {
	var eventType string
	switch {
	case event.Op.Has(fsnotify.Create):
		eventType = "create"
	case event.Op.Has(fsnotify.Write):
		eventType = "modify"
	case event.Op.Has(fsnotify.Remove), event.Op.Has(fsnotify.Rename):
		eventType = "delete"
	default:
		return
	}

	fileEvent := FileEvent{Type: eventType, Path: event.Name}
	for _, callback := range callbacks {
		callback(fileEvent)
	}

	if fsm.logger != nil {
		fsm.logger.WithContext("fs_event_type", eventType).
			WithContext("fs_path", event.Name).
			Debug("File system event detected")
	}
}
