package watch

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeHandler receives the new content of a watched block file.
type ChangeHandler func(blockID, content string)

// Watcher watches mirror files and reports edits, debounced per file.
type Watcher struct {
	watcher  *fsnotify.Watcher
	onChange ChangeHandler
	debounce time.Duration

	mu       sync.Mutex
	watching map[string]string // absolute path -> block id
	dirs     map[string]bool
	timers   map[string]*time.Timer
	done     chan struct{}
}

func NewWatcher(debounce time.Duration, onChange ChangeHandler) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	w := &Watcher{
		watcher:  fw,
		onChange: onChange,
		debounce: debounce,
		watching: make(map[string]string),
		dirs:     make(map[string]bool),
		timers:   make(map[string]*time.Timer),
		done:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Watch starts reporting edits of path as edits of blockID. Editors that
// save by rename are covered because the directory is watched.
func (w *Watcher) Watch(blockID, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for p, id := range w.watching {
		if id == blockID && p != abs {
			delete(w.watching, p)
		}
	}
	w.watching[abs] = blockID
	dir := filepath.Dir(abs)
	if w.dirs[dir] {
		return nil
	}
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	w.dirs[dir] = true
	return nil
}

// Unwatch stops reporting edits for blockID.
func (w *Watcher) Unwatch(blockID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for p, id := range w.watching {
		if id == blockID {
			delete(w.watching, p)
			if t, ok := w.timers[p]; ok {
				t.Stop()
				delete(w.timers, p)
			}
		}
	}
}

func (w *Watcher) Close() error {
	close(w.done)
	w.mu.Lock()
	for _, t := range w.timers {
		t.Stop()
	}
	w.mu.Unlock()
	return w.watcher.Close()
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			abs, _ := filepath.Abs(event.Name)
			w.schedule(abs)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[Watch] watcher error: %v", err)
		}
	}
}

func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	blockID, ok := w.watching[path]
	if !ok {
		return
	}
	if t, exists := w.timers[path]; exists {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		current, still := w.watching[path]
		w.mu.Unlock()
		if !still || current != blockID {
			return
		}
		content, err := os.ReadFile(path)
		if err != nil {
			log.Printf("[Watch] read %s: %v", path, err)
			return
		}
		w.onChange(blockID, string(content))
	})
}
