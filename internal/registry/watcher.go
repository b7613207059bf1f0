package registry

import (
	"fmt"
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher re-loads an agents file into a Registry when the file changes.
// Load counters for agents present both before and after a reload carry
// over, so in-flight work stays accounted for.
type Watcher struct {
	registry *Registry
	path     string
	watcher  *fsnotify.Watcher
	done     chan struct{}
}

// Watch starts watching the agents file at path. The file is loaded once
// before the watcher starts; a file that fails to parse on a later change
// is logged and skipped, keeping the previous agent set.
func Watch(r *Registry, path string) (*Watcher, error) {
	agents, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	r.Replace(agents)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	// Watch the directory: editors often replace files atomically, which
	// drops a watch on the file itself.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	w := &Watcher{
		registry: r,
		path:     path,
		watcher:  fw,
		done:     make(chan struct{}),
	}
	go w.loop()

	return w, nil
}

// loop processes filesystem events until Close is called.
func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()
		case <-w.watcher.Errors:
			// Keep watching.
		}
	}
}

// reload re-reads the agents file and swaps the registry's agent set.
func (w *Watcher) reload() {
	agents, err := LoadFile(w.path)
	if err != nil {
		log.Printf("[registry] reload of %s failed, keeping previous agents: %v", w.path, err)
		return
	}
	w.registry.Replace(agents)
	log.Printf("[registry] reloaded %d agents from %s", len(agents), w.path)
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
